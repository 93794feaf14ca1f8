package model

import (
	"time"

	"github.com/google/uuid"
)

// Session is a model of the persistency layer. EndTime is nil while the
// session is active; at most one session per device is active at any time.
type Session struct {
	ID        int64
	DeviceID  uuid.UUID
	StartTime time.Time
	EndTime   *time.Time
	IsIdle    bool

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Active reports whether the session has not ended yet.
func (s *Session) Active() bool {
	return s.EndTime == nil
}
