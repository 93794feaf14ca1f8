package model

import (
	"time"

	"github.com/google/uuid"
)

// ComponentType enumerates the measured posture components. A reading holds
// exactly one component of each type.
type ComponentType string

const (
	ComponentNeck      ComponentType = "neck"
	ComponentTorso     ComponentType = "torso"
	ComponentShoulders ComponentType = "shoulders"
)

// ComponentTypes lists all valid component types.
var ComponentTypes = []ComponentType{ComponentNeck, ComponentTorso, ComponentShoulders}

// IsValidComponentType reports whether s names a known component type.
func IsValidComponentType(s string) bool {
	for _, t := range ComponentTypes {
		if string(t) == s {
			return true
		}
	}
	return false
}

// PostureComponent is a single component measurement of a reading.
type PostureComponent struct {
	ID        int64
	ReadingID int64
	Type      ComponentType
	Score     int
}

// PostureReading is a model of the persistency layer. Immutable once created;
// OverallScore is the floor of the mean of the component scores.
type PostureReading struct {
	ID           int64
	DeviceID     uuid.UUID
	Timestamp    time.Time
	OverallScore int
	Components   []PostureComponent

	CreatedAt time.Time
}
