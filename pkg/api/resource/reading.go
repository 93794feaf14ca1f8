package resource

import (
	"time"

	"github.com/posturelab/posturehub/pkg/model"
)

type ComponentResource struct {
	ComponentType string `json:"componentType"`
	Score         int    `json:"score"`
}

type ReadingResource struct {
	ID           int64               `json:"id"`
	DeviceID     string              `json:"deviceId"`
	Timestamp    time.Time           `json:"timestamp"`
	OverallScore int                 `json:"overallScore"`
	Components   []ComponentResource `json:"components"`
}

type ReadingListResource struct {
	Members []*ReadingResource `json:"members"`
}

func NewReading(m *model.PostureReading) (out *ReadingResource) {
	out = &ReadingResource{
		ID:           m.ID,
		DeviceID:     m.DeviceID.String(),
		Timestamp:    m.Timestamp,
		OverallScore: m.OverallScore,
		Components:   make([]ComponentResource, 0, len(m.Components)),
	}

	for _, c := range m.Components {
		out.Components = append(out.Components, ComponentResource{
			ComponentType: string(c.Type),
			Score:         c.Score,
		})
	}

	return // out
}

func NewReadingList(m []model.PostureReading) (out *ReadingListResource) {
	out = &ReadingListResource{
		Members: make([]*ReadingResource, 0, len(m)),
	}

	for i := range m {
		out.Members = append(out.Members, NewReading(&m[i]))
	}

	return // out
}
