package resource

import (
	"sort"
	"time"

	"github.com/posturelab/posturehub/pkg/model"
)

type SessionResource struct {
	ID        int64      `json:"id"`
	DeviceID  string     `json:"deviceId"`
	StartTime time.Time  `json:"startTime"`
	EndTime   *time.Time `json:"endTime,omitempty"`
	IsIdle    bool       `json:"isIdle"`
	Active    bool       `json:"active"`
}

type SessionListResource struct {
	Members []*SessionResource `json:"members"`
}

// SessionStatusResource is the answer of the session status endpoint. Session
// is nil when the device has no active session.
type SessionStatusResource struct {
	HasActiveSession bool             `json:"hasActiveSession"`
	Session          *SessionResource `json:"session,omitempty"`
}

func NewSession(m *model.Session) (out *SessionResource) {
	out = &SessionResource{
		ID:        m.ID,
		DeviceID:  m.DeviceID.String(),
		StartTime: m.StartTime,
		EndTime:   m.EndTime,
		IsIdle:    m.IsIdle,
		Active:    m.Active(),
	}

	return // out
}

func NewSessionList(m map[int64]model.Session) (out *SessionListResource) {
	out = &SessionListResource{
		Members: make([]*SessionResource, 0),
	}

	for _, elem := range m {
		out.Members = append(out.Members, NewSession(&elem))
	}

	// Default sort by ID
	sort.Slice(out.Members, func(i, j int) bool {
		return out.Members[i].ID < out.Members[j].ID
	})

	return // out
}
