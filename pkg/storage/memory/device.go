package memory

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/posturelab/posturehub/pkg/model"
	"github.com/posturelab/posturehub/pkg/storage"
)

type deviceStore struct {
	store map[uuid.UUID]model.Device
	sync.RWMutex
}

func newDeviceStore() *deviceStore {
	return &deviceStore{
		store: make(map[uuid.UUID]model.Device),
	}
}

func (s *deviceStore) FetchAll() (map[uuid.UUID]model.Device, error) {
	s.RLock()
	defer s.RUnlock()
	models := make(map[uuid.UUID]model.Device, len(s.store))

	for id, m := range s.store {
		models[id] = m
	}

	return models, nil
}

func (s *deviceStore) FindByID(id uuid.UUID) (*model.Device, error) {
	s.RLock()
	defer s.RUnlock()
	if m, ok := s.store[id]; ok {
		return &m, nil
	}

	return nil, storage.ErrNotFound
}

func (s *deviceStore) Create(m *model.Device) error {
	s.Lock()
	defer s.Unlock()

	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	m.CreatedAt = time.Now().Round(time.Second).UTC()
	m.UpdatedAt = time.Now().Round(time.Second).UTC()

	s.store[m.ID] = *m

	return nil
}

func (s *deviceStore) Update(m *model.Device) error {
	s.Lock()
	defer s.Unlock()

	if _, ok := s.store[m.ID]; !ok {
		return storage.ErrNotFound
	}

	m.UpdatedAt = time.Now().Round(time.Second).UTC()
	s.store[m.ID] = *m

	return nil
}

func (s *deviceStore) TouchLastSeen(id uuid.UUID, at time.Time) error {
	s.Lock()
	defer s.Unlock()

	m, ok := s.store[id]
	if !ok {
		return storage.ErrNotFound
	}

	m.LastSeen = &at
	s.store[id] = m

	return nil
}

func (s *deviceStore) Delete(id uuid.UUID) error {
	s.Lock()
	defer s.Unlock()

	_, ok := s.store[id]
	if !ok {
		return storage.ErrNotFound
	}

	delete(s.store, id)

	return nil
}
