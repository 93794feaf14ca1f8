package model

import (
	"time"

	"github.com/google/uuid"
)

// Device is a model of the persistency layer. The API key is generated once
// at creation and never changes afterwards.
type Device struct {
	ID                 uuid.UUID
	OwnerID            *string
	Name               string
	APIKey             string
	IsActive           bool
	Sensitivity        int
	VibrationIntensity int
	AudioIntensity     int
	LastSeen           *time.Time
	CreatedAt          time.Time
	UpdatedAt          time.Time
}
