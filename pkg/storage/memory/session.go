package memory

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/posturelab/posturehub/pkg/model"
	"github.com/posturelab/posturehub/pkg/storage"
)

type sessionStore struct {
	store  map[int64]model.Session
	nextID int64
	sync.RWMutex
}

func newSessionStore() *sessionStore {
	return &sessionStore{
		store:  make(map[int64]model.Session),
		nextID: 1,
	}
}

func (s *sessionStore) FetchAll() (map[int64]model.Session, error) {
	s.RLock()
	defer s.RUnlock()
	models := make(map[int64]model.Session, len(s.store))

	for id, m := range s.store {
		models[id] = m
	}

	return models, nil
}

func (s *sessionStore) FindByID(id int64) (*model.Session, error) {
	s.RLock()
	defer s.RUnlock()
	if m, ok := s.store[id]; ok {
		return &m, nil
	}

	return nil, storage.ErrNotFound
}

func (s *sessionStore) FindActiveByDeviceID(deviceID uuid.UUID) (*model.Session, error) {
	s.RLock()
	defer s.RUnlock()

	if m, ok := s.findActive(deviceID); ok {
		return &m, nil
	}

	return nil, storage.ErrNotFound
}

func (s *sessionStore) Create(m *model.Session) error {
	s.Lock()
	defer s.Unlock()

	m.ID = s.getNextID()
	if m.StartTime.IsZero() {
		m.StartTime = time.Now().Round(time.Second).UTC()
	}
	m.CreatedAt = time.Now().Round(time.Second).UTC()
	m.UpdatedAt = time.Now().Round(time.Second).UTC()

	s.store[m.ID] = *m

	return nil
}

func (s *sessionStore) EndActive(deviceID uuid.UUID, at time.Time) (*model.Session, error) {
	s.Lock()
	defer s.Unlock()

	m, ok := s.findActive(deviceID)
	if !ok {
		return nil, storage.ErrNotFound
	}

	m.EndTime = &at
	m.IsIdle = false
	m.UpdatedAt = time.Now().Round(time.Second).UTC()
	s.store[m.ID] = m

	return &m, nil
}

func (s *sessionStore) SetIdle(deviceID uuid.UUID, idle bool) (bool, error) {
	s.Lock()
	defer s.Unlock()

	m, ok := s.findActive(deviceID)
	if !ok || m.IsIdle == idle {
		return false, nil
	}

	m.IsIdle = idle
	m.UpdatedAt = time.Now().Round(time.Second).UTC()
	s.store[m.ID] = m

	return true, nil
}

// findActive must be called with the lock held.
func (s *sessionStore) findActive(deviceID uuid.UUID) (model.Session, bool) {
	for _, m := range s.store {
		if m.DeviceID == deviceID && m.EndTime == nil {
			return m, true
		}
	}
	return model.Session{}, false
}

func (s *sessionStore) getNextID() int64 {
	id := s.nextID
	s.nextID++
	return id
}
