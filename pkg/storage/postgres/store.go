package postgres

import (
	"github.com/jmoiron/sqlx"
	// Register the PostgreSQL driver for sqlx.Open("postgres", ...)
	_ "github.com/lib/pq"

	"github.com/posturelab/posturehub/pkg/storage"
)

// store contains all PostgreSQL based sub-stores for managing the models
type store struct {
	devices  *deviceStore
	sessions *sessionStore
	readings *readingStore
}

// NewStore creates a new PostgreSQL based Storage interface
func NewStore(db *sqlx.DB) storage.Interface {
	return &store{
		devices:  newDeviceStore(db),
		sessions: newSessionStore(db),
		readings: newReadingStore(db),
	}
}

// Devices returns a sub-store for managing the Device model
func (s *store) Devices() storage.DeviceStore {
	return s.devices
}

// Sessions returns a sub-store for managing the Session model
func (s *store) Sessions() storage.SessionStore {
	return s.sessions
}

// Readings returns a sub-store for managing the PostureReading model
func (s *store) Readings() storage.ReadingStore {
	return s.readings
}
