package storage

import (
	"time"

	"github.com/google/uuid"

	"github.com/posturelab/posturehub/pkg/model"
)

// Interface is implemented by the storage
type Interface interface {
	Devices() DeviceStore
	Sessions() SessionStore
	Readings() ReadingStore
}

// DeviceStore is responsible for managing the Device model
type DeviceStore interface {
	FetchAll() (map[uuid.UUID]model.Device, error)
	FindByID(id uuid.UUID) (*model.Device, error)
	Create(m *model.Device) error
	Update(m *model.Device) error
	// TouchLastSeen updates only the last_seen column.
	TouchLastSeen(id uuid.UUID, at time.Time) error
	Delete(id uuid.UUID) error
}

// SessionStore is responsible for managing the Session model. EndActive and
// SetIdle are atomic conditional updates on the unique active session of a
// device, so concurrent callers cannot break the single-active-session
// invariant or double-trigger a transition.
type SessionStore interface {
	FetchAll() (map[int64]model.Session, error)
	FindByID(id int64) (*model.Session, error)
	FindActiveByDeviceID(deviceID uuid.UUID) (*model.Session, error)
	Create(m *model.Session) error
	// EndActive sets end_time on the active session of the device and clears
	// the idle flag. Returns ErrNotFound when no active session exists.
	EndActive(deviceID uuid.UUID, at time.Time) (*model.Session, error)
	// SetIdle flips is_idle on the active session. Returns false when there
	// is no active session or the flag already holds the requested value.
	SetIdle(deviceID uuid.UUID, idle bool) (bool, error)
}

// ReadingStore is responsible for managing the PostureReading model
type ReadingStore interface {
	Create(m *model.PostureReading) error
	FindLatestByDeviceID(deviceID uuid.UUID) (*model.PostureReading, error)
	FetchByDeviceID(deviceID uuid.UUID, limit int) ([]model.PostureReading, error)
}
