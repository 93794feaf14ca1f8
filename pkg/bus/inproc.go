package bus

import (
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// InProcess is the single-process notification fabric: a concurrency-safe
// registry of per-device subscriber sets with buffered fan-out channels.
type InProcess struct {
	mu   sync.RWMutex
	subs map[uuid.UUID]map[*Subscription]struct{}
}

func NewInProcess() *InProcess {
	return &InProcess{
		subs: make(map[uuid.UUID]map[*Subscription]struct{}),
	}
}

func (b *InProcess) Subscribe(deviceID uuid.UUID) (*Subscription, error) {
	sub := &Subscription{
		C:        make(chan Event, subscriptionBufferSize),
		deviceID: deviceID,
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	set, ok := b.subs[deviceID]
	if !ok {
		set = make(map[*Subscription]struct{})
		b.subs[deviceID] = set
	}
	set[sub] = struct{}{}

	return sub, nil
}

func (b *InProcess) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}

	b.mu.Lock()
	set, ok := b.subs[sub.deviceID]
	if ok {
		if _, member := set[sub]; !member {
			b.mu.Unlock()
			return
		}
		delete(set, sub)
		if len(set) == 0 {
			delete(b.subs, sub.deviceID)
		}
	}
	b.mu.Unlock()

	if !ok {
		return
	}

	// No publisher can hold a reference anymore: Publish sends under the
	// read lock and we held the write lock during removal.
	sub.Cancel()
}

func (b *InProcess) Publish(ev Event) error {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().Round(time.Second).UTC()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	for sub := range b.subs[ev.DeviceID] {
		select {
		case sub.C <- ev:
		default:
			// One stuck subscriber must not affect the publisher or the
			// other subscribers.
			log.Warnf("bus dropped %s event for device '%s': subscriber buffer full",
				ev.Kind, ev.DeviceID)
		}
	}

	return nil
}
