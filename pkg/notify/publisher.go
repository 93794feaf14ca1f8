// Package notify is the bridge the REST layer uses to reach connected
// devices: after committing a mutation it calls the publisher, which pushes
// an event into the notification bus. Publishing is strictly best-effort; a
// bus failure never rolls back the mutation that triggered it.
package notify

import (
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/posturelab/posturehub/pkg/bus"
	"github.com/posturelab/posturehub/pkg/sessiontrack"
)

type Publisher struct {
	b       bus.Interface
	tracker *sessiontrack.Tracker
}

func NewPublisher(b bus.Interface, tracker *sessiontrack.Tracker) *Publisher {
	return &Publisher{
		b:       b,
		tracker: tracker,
	}
}

// DeviceSettingsChanged fans a settings-changed event out to every open
// connection of the device. Call it after persisting a settings mutation, a
// claim or a release.
func (p *Publisher) DeviceSettingsChanged(deviceID uuid.UUID) {
	ev := bus.Event{
		DeviceID:  deviceID,
		Kind:      bus.KindSettingsChanged,
		Timestamp: time.Now().Round(time.Second).UTC(),
	}
	p.fillSessionFlags(&ev)

	if err := p.b.Publish(ev); err != nil {
		log.Errorf("notify failed to publish settings change for device '%s': %v", deviceID, err)
	}
}

// SessionStatusChanged fans a session lifecycle event (start/stop/idle/
// resume) out to every open connection of the device.
func (p *Publisher) SessionStatusChanged(deviceID uuid.UUID, action string) {
	ev := bus.Event{
		DeviceID:  deviceID,
		Kind:      bus.KindSessionStatus,
		Action:    action,
		Timestamp: time.Now().Round(time.Second).UTC(),
	}
	p.fillSessionFlags(&ev)

	if err := p.b.Publish(ev); err != nil {
		log.Errorf("notify failed to publish session %s for device '%s': %v", action, deviceID, err)
	}
}

func (p *Publisher) fillSessionFlags(ev *bus.Event) {
	active, err := p.tracker.HasActive(ev.DeviceID)
	if err != nil {
		log.Warnf("notify could not read session state for device '%s': %v", ev.DeviceID, err)
		return
	}
	ev.HasActiveSession = active

	if active {
		idle, err := p.tracker.IsIdle(ev.DeviceID)
		if err == nil {
			ev.IsIdle = idle
		}
	}
}
