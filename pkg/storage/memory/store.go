package memory

import "github.com/posturelab/posturehub/pkg/storage"

// store contains all memory-based sub-stores for managing the persistent models
type store struct {
	devices  *deviceStore
	sessions *sessionStore
	readings *readingStore
}

// NewStore creates a new memory-based Storage interface
func NewStore() storage.Interface {
	return &store{
		devices:  newDeviceStore(),
		sessions: newSessionStore(),
		readings: newReadingStore(),
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
