// Package natsio adapts the notification bus contract onto a NATS
// connection, so several hub instances can fan settings events out to device
// connections held by other processes.
package natsio

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	nats "github.com/nats-io/nats.go"
	log "github.com/sirupsen/logrus"

	"github.com/posturelab/posturehub/pkg/bus"
)

const subscriptionBufferSize = 32

type natsBus struct {
	nc          *nats.Conn
	baseSubject string
}

// New creates a NATS backed notification bus. Every device gets its own
// subject below baseSubject; NATS preserves per-subject publish order, which
// satisfies the FIFO-per-channel guarantee.
func New(nc *nats.Conn, baseSubject string) bus.Interface {
	if baseSubject == "" {
		baseSubject = "posturehub.devices"
	}
	return &natsBus{
		nc:          nc,
		baseSubject: baseSubject,
	}
}

func (b *natsBus) subject(deviceID uuid.UUID) string {
	return fmt.Sprintf("%s.%s.events", b.baseSubject, deviceID)
}

func (b *natsBus) Subscribe(deviceID uuid.UUID) (*bus.Subscription, error) {
	ch := make(chan bus.Event, subscriptionBufferSize)

	natsSub, err := b.nc.Subscribe(b.subject(deviceID), func(msg *nats.Msg) {
		ev := bus.Event{}
		if err := json.Unmarshal(msg.Data, &ev); err != nil {
			log.Errorf("bus failed to unmarshal event for device '%s': %v", deviceID, err)
			return
		}

		select {
		case ch <- ev:
		default:
			log.Warnf("bus dropped %s event for device '%s': subscriber buffer full",
				ev.Kind, deviceID)
		}
	})
	if err != nil {
		return nil, err
	}

	return bus.NewSubscription(ch, deviceID, func() {
		if err := natsSub.Unsubscribe(); err != nil {
			log.Errorf("bus failed to unsubscribe device '%s': %v", deviceID, err)
		}
	}), nil
}

func (b *natsBus) Unsubscribe(sub *bus.Subscription) {
	if sub == nil {
		return
	}
	sub.Cancel()
}

func (b *natsBus) Publish(ev bus.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}

	return b.nc.Publish(b.subject(ev.DeviceID), data)
}
