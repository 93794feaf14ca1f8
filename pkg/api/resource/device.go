package resource

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/posturelab/posturehub/pkg/model"
)

type DeviceResource struct {
	ID                 string     `json:"id"`
	OwnerID            *string    `json:"ownerId,omitempty"`
	Name               string     `json:"name"`
	IsActive           bool       `json:"isActive"`
	Sensitivity        int        `json:"sensitivity"`
	VibrationIntensity int        `json:"vibrationIntensity"`
	AudioIntensity     int        `json:"audioIntensity"`
	LastSeen           *time.Time `json:"lastSeen,omitempty"`
	CreatedAt          *time.Time `json:"createdAt,omitempty"`
	UpdatedAt          *time.Time `json:"updatedAt,omitempty"`
}

// DeviceWithKeyResource is returned only on creation. The API key is not
// retrievable afterwards.
type DeviceWithKeyResource struct {
	DeviceResource
	APIKey string `json:"apiKey"`
}

type DeviceListResource struct {
	Members []*DeviceResource `json:"members"`
}

func NewDevice(m *model.Device) (out *DeviceResource) {
	out = &DeviceResource{
		ID:                 m.ID.String(),
		OwnerID:            m.OwnerID,
		Name:               m.Name,
		IsActive:           m.IsActive,
		Sensitivity:        m.Sensitivity,
		VibrationIntensity: m.VibrationIntensity,
		AudioIntensity:     m.AudioIntensity,
		LastSeen:           m.LastSeen,
	}

	if !m.CreatedAt.IsZero() {
		out.CreatedAt = &time.Time{}
		*out.CreatedAt = m.CreatedAt.Round(time.Second)
	}
	if !m.UpdatedAt.IsZero() {
		out.UpdatedAt = &time.Time{}
		*out.UpdatedAt = m.UpdatedAt.Round(time.Second)
	}

	return // out
}

func NewDeviceWithKey(m *model.Device) *DeviceWithKeyResource {
	return &DeviceWithKeyResource{
		DeviceResource: *NewDevice(m),
		APIKey:         m.APIKey,
	}
}

func NewDeviceList(m map[uuid.UUID]model.Device) (out *DeviceListResource) {
	out = &DeviceListResource{
		Members: make([]*DeviceResource, 0),
	}

	for _, elem := range m {
		out.Members = append(out.Members, NewDevice(&elem))
	}

	// Default sort by ID
	sort.Slice(out.Members, func(i, j int) bool {
		return out.Members[i].ID < out.Members[j].ID
	})

	return // out
}

type CreateDeviceRequest struct {
	Name    string  `json:"name"`
	OwnerID *string `json:"ownerId"`
}

func ValidateCreateDevice(r *CreateDeviceRequest) (*model.Device, error) {
	if r.Name == "" {
		return nil, fmt.Errorf("name is required")
	}

	m := &model.Device{
		Name:    r.Name,
		OwnerID: r.OwnerID,
		// Devices stay inactive until they are claimed.
		IsActive: r.OwnerID != nil,
		// Mid-scale defaults until the owner tunes the device.
		Sensitivity:        50,
		VibrationIntensity: 50,
		AudioIntensity:     50,
	}

	return m, nil
}

type UpdateSettingsRequest struct {
	Sensitivity        int `json:"sensitivity"`
	VibrationIntensity int `json:"vibrationIntensity"`
	AudioIntensity     int `json:"audioIntensity"`
}

func ValidateUpdateSettings(r *UpdateSettingsRequest) error {
	for _, v := range []struct {
		name  string
		value int
	}{
		{"sensitivity", r.Sensitivity},
		{"vibrationIntensity", r.VibrationIntensity},
		{"audioIntensity", r.AudioIntensity},
	} {
		if v.value < 0 || v.value > 100 {
			return fmt.Errorf("%s must be between 0 and 100", v.name)
		}
	}
	return nil
}

type ClaimDeviceRequest struct {
	OwnerID string `json:"ownerId"`
	Name    string `json:"name"`
}

type RenameDeviceRequest struct {
	Name string `json:"name"`
}

// AliveResource reports whether the device has been seen very recently on an
// open connection.
type AliveResource struct {
	Alive    bool       `json:"alive"`
	LastSeen *time.Time `json:"lastSeen,omitempty"`
}
