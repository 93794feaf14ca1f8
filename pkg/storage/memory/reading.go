package memory

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/posturelab/posturehub/pkg/model"
	"github.com/posturelab/posturehub/pkg/storage"
)

type readingStore struct {
	store           map[int64]model.PostureReading
	nextID          int64
	nextComponentID int64
	sync.RWMutex
}

func newReadingStore() *readingStore {
	return &readingStore{
		store:           make(map[int64]model.PostureReading),
		nextID:          1,
		nextComponentID: 1,
	}
}

func (s *readingStore) Create(m *model.PostureReading) error {
	s.Lock()
	defer s.Unlock()

	m.ID = s.nextID
	s.nextID++
	if m.Timestamp.IsZero() {
		m.Timestamp = time.Now().Round(time.Second).UTC()
	}
	m.CreatedAt = time.Now().Round(time.Second).UTC()

	for i := range m.Components {
		m.Components[i].ID = s.nextComponentID
		s.nextComponentID++
		m.Components[i].ReadingID = m.ID
	}

	s.store[m.ID] = *m

	return nil
}

func (s *readingStore) FindLatestByDeviceID(deviceID uuid.UUID) (*model.PostureReading, error) {
	s.RLock()
	defer s.RUnlock()

	var latest *model.PostureReading
	for _, m := range s.store {
		if m.DeviceID != deviceID {
			continue
		}
		m := m
		if latest == nil || m.Timestamp.After(latest.Timestamp) {
			latest = &m
		}
	}

	if latest == nil {
		return nil, storage.ErrNotFound
	}

	return latest, nil
}

func (s *readingStore) FetchByDeviceID(deviceID uuid.UUID, limit int) ([]model.PostureReading, error) {
	s.RLock()
	defer s.RUnlock()

	models := make([]model.PostureReading, 0)
	for _, m := range s.store {
		if m.DeviceID == deviceID {
			models = append(models, m)
		}
	}

	// Newest first, like the readings listing of the API
	sort.Slice(models, func(i, j int) bool {
		return models[i].Timestamp.After(models[j].Timestamp)
	})

	if limit > 0 && len(models) > limit {
		models = models[:limit]
	}

	return models, nil
}
