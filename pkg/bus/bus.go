package bus

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Kind discriminates the events traveling over the notification bus.
type Kind string

const (
	// KindSettingsChanged is published after a device's configuration was
	// mutated; subscribers re-read the settings and push a fresh snapshot.
	KindSettingsChanged Kind = "settings_changed"
	// KindSessionStatus is published on session lifecycle transitions.
	KindSessionStatus Kind = "session_status"
)

// Session status actions carried by KindSessionStatus events.
const (
	ActionStart  = "start"
	ActionStop   = "stop"
	ActionIdle   = "idle"
	ActionResume = "resume"
)

// Event is delivered to every subscriber of the device's channel.
type Event struct {
	DeviceID         uuid.UUID `json:"device_id"`
	Kind             Kind      `json:"kind"`
	Action           string    `json:"action,omitempty"`
	HasActiveSession bool      `json:"has_active_session"`
	IsIdle           bool      `json:"is_idle"`
	Timestamp        time.Time `json:"timestamp"`
}

// subscriptionBufferSize absorbs publish bursts; a subscriber that cannot
// keep up loses events rather than blocking the publisher.
const subscriptionBufferSize = 32

// Subscription is one subscriber's membership in a device channel. Events
// arrive on C in publish order until Unsubscribe is called, after which C is
// closed.
type Subscription struct {
	C chan Event

	deviceID  uuid.UUID
	cancel    func()
	closeOnce sync.Once
}

// NewSubscription wraps an event channel and a cancel function into a
// Subscription. Used by adapter implementations; in-process subscribers get
// theirs from Subscribe.
func NewSubscription(ch chan Event, deviceID uuid.UUID, cancel func()) *Subscription {
	return &Subscription{
		C:        ch,
		deviceID: deviceID,
		cancel:   cancel,
	}
}

// DeviceID returns the device channel this subscription belongs to.
func (s *Subscription) DeviceID() uuid.UUID {
	return s.deviceID
}

// Cancel detaches the subscription from its fabric and closes C. Idempotent.
func (s *Subscription) Cancel() {
	s.closeOnce.Do(func() {
		if s.cancel != nil {
			s.cancel()
		}
		close(s.C)
	})
}

// Interface is the notification fabric contract. Implementations exist for a
// single process and for NATS; the consumers do not care which one they get.
type Interface interface {
	// Subscribe registers a new subscriber under the device's channel.
	// Multiple simultaneous subscriptions per device are all valid and all
	// receive every event.
	Subscribe(deviceID uuid.UUID) (*Subscription, error)
	// Unsubscribe removes exactly this subscription; no-op if absent.
	Unsubscribe(sub *Subscription)
	// Publish delivers the event to every current subscriber of the
	// device's channel. It never blocks on slow subscribers.
	Publish(ev Event) error
}
