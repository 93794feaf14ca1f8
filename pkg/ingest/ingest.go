package ingest

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/posturelab/posturehub/pkg/model"
	"github.com/posturelab/posturehub/pkg/sessiontrack"
	"github.com/posturelab/posturehub/pkg/storage"
)

// ComponentInput is one submitted component measurement.
type ComponentInput struct {
	Type  string `json:"component_type"`
	Score int    `json:"score"`
}

// ValidationError reports invalid posture components. It is recoverable: the
// caller answers with an error response and keeps the connection open.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func IsValidationError(e error) bool {
	_, ok := e.(*ValidationError)
	return ok
}

// Ingestor validates and stores posture readings. Posture data may only be
// recorded while the device is monitored, i.e. has an active session.
type Ingestor struct {
	store   storage.Interface
	tracker *sessiontrack.Tracker
}

func New(store storage.Interface, tracker *sessiontrack.Tracker) *Ingestor {
	return &Ingestor{
		store:   store,
		tracker: tracker,
	}
}

// Submit persists one reading with its components. The overall score is the
// floor of the mean of the component scores and is never updated afterwards.
func (ing *Ingestor) Submit(deviceID uuid.UUID, components []ComponentInput) (*model.PostureReading, error) {
	active, err := ing.tracker.HasActive(deviceID)
	if err != nil {
		return nil, err
	}
	if !active {
		return nil, sessiontrack.ErrNoActiveSession
	}

	if err := validateComponents(components); err != nil {
		return nil, err
	}

	total := 0
	modelComponents := make([]model.PostureComponent, 0, len(components))
	for _, c := range components {
		total += c.Score
		modelComponents = append(modelComponents, model.PostureComponent{
			Type:  model.ComponentType(c.Type),
			Score: c.Score,
		})
	}

	reading := model.PostureReading{
		DeviceID:     deviceID,
		Timestamp:    time.Now().Round(time.Second).UTC(),
		OverallScore: total / len(components),
		Components:   modelComponents,
	}
	if err := ing.store.Readings().Create(&reading); err != nil {
		return nil, err
	}

	return &reading, nil
}

func validateComponents(components []ComponentInput) error {
	if len(components) == 0 {
		return &ValidationError{Message: "at least one posture component is required"}
	}

	seen := make(map[string]bool, len(components))
	for _, c := range components {
		if !model.IsValidComponentType(c.Type) {
			return &ValidationError{Message: fmt.Sprintf("unknown component type: %s", c.Type)}
		}
		if seen[c.Type] {
			return &ValidationError{Message: "duplicate component types are not allowed"}
		}
		seen[c.Type] = true
		if c.Score < 0 {
			return &ValidationError{Message: fmt.Sprintf("component %s has a negative score", c.Type)}
		}
	}

	missing := make([]string, 0)
	for _, t := range model.ComponentTypes {
		if !seen[string(t)] {
			missing = append(missing, string(t))
		}
	}
	if len(missing) > 0 {
		msg := "missing required component types:"
		for i, m := range missing {
			if i > 0 {
				msg += ","
			}
			msg += " " + m
		}
		return &ValidationError{Message: msg}
	}

	return nil
}
