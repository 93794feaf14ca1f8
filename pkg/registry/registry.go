package registry

import (
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/posturelab/posturehub/pkg/model"
	"github.com/posturelab/posturehub/pkg/storage"
)

// Registry authenticates devices by id and API key and keeps their last_seen
// timestamp fresh.
type Registry struct {
	store storage.Interface
}

func New(store storage.Interface) *Registry {
	return &Registry{
		store: store,
	}
}

// Authenticate looks up the device and verifies its API key. On success the
// device's last_seen is touched as a side effect and a snapshot of the
// device is returned. Failures are reported as an AuthError with a distinct
// reason, never as a bare storage error.
func (r *Registry) Authenticate(deviceID, apiKey string) (*model.Device, error) {
	id, err := uuid.Parse(deviceID)
	if err != nil {
		return nil, NewAuthError(AuthReasonInvalidFormat, "device id is not a valid UUID")
	}

	device, err := r.store.Devices().FindByID(id)
	if err == storage.ErrNotFound {
		return nil, NewAuthError(AuthReasonNotFound, "no such device")
	} else if err != nil {
		return nil, err
	}

	// Unclaimed (inactive) devices cannot connect, same as a wrong key.
	if !device.IsActive || apiKey == "" || device.APIKey != apiKey {
		return nil, NewAuthError(AuthReasonKeyMismatch, "invalid device credentials")
	}

	now := time.Now().Round(time.Second).UTC()
	if err := r.store.Devices().TouchLastSeen(id, now); err != nil {
		// Staleness of last_seen is tolerable, the login still succeeds.
		log.Warnf("registry failed to touch last_seen for device '%s': %v", id, err)
	} else {
		device.LastSeen = &now
	}

	return device, nil
}

// TouchLastSeen updates the device's last_seen timestamp. It is best-effort:
// a failure is logged and never propagated to the caller.
func (r *Registry) TouchLastSeen(deviceID uuid.UUID) {
	now := time.Now().Round(time.Second).UTC()
	if err := r.store.Devices().TouchLastSeen(deviceID, now); err != nil {
		log.Warnf("registry failed to touch last_seen for device '%s': %v", deviceID, err)
	}
}
