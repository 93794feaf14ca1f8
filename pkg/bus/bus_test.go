package bus

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func receiveEvent(t *testing.T, sub *Subscription) Event {
	t.Helper()
	select {
	case ev := <-sub.C:
		return ev
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

func TestPublishFansOutToAllSubscribers(t *testing.T) {
	b := NewInProcess()
	deviceID := uuid.New()

	first, err := b.Subscribe(deviceID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := b.Subscribe(deviceID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ev := Event{DeviceID: deviceID, Kind: KindSessionStatus, Action: ActionStart}
	if err := b.Publish(ev); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, sub := range []*Subscription{first, second} {
		got := receiveEvent(t, sub)
		if got.Kind != KindSessionStatus || got.Action != ActionStart {
			t.Fatalf("unexpected event: %+v", got)
		}

		// Exactly once per subscriber.
		select {
		case extra := <-sub.C:
			t.Fatalf("unexpected second event: %+v", extra)
		default:
		}
	}
}

func TestPublishIsScopedToDevice(t *testing.T) {
	b := NewInProcess()

	sub, err := b.Subscribe(uuid.New())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := b.Publish(Event{DeviceID: uuid.New(), Kind: KindSettingsChanged}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	select {
	case ev := <-sub.C:
		t.Fatalf("received event for another device: %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	b := NewInProcess()
	deviceID := uuid.New()

	sub, err := b.Subscribe(deviceID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	b.Unsubscribe(sub)

	if err := b.Publish(Event{DeviceID: deviceID, Kind: KindSettingsChanged}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// The channel is closed, a receive must not yield an event.
	select {
	case _, ok := <-sub.C:
		if ok {
			t.Fatal("received event on unsubscribed channel")
		}
	case <-time.After(time.Second):
		t.Fatal("expected subscription channel to be closed")
	}

	// A second unsubscribe is a no-op.
	b.Unsubscribe(sub)
}

func TestEventsArriveInPublishOrder(t *testing.T) {
	b := NewInProcess()
	deviceID := uuid.New()

	sub, err := b.Subscribe(deviceID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	actions := []string{ActionStart, ActionIdle, ActionResume, ActionStop}
	for _, action := range actions {
		if err := b.Publish(Event{DeviceID: deviceID, Kind: KindSessionStatus, Action: action}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	for _, want := range actions {
		got := receiveEvent(t, sub)
		if got.Action != want {
			t.Fatalf("expected action %s, got %s", want, got.Action)
		}
	}
}

func TestSlowSubscriberDoesNotBlockPublish(t *testing.T) {
	b := NewInProcess()
	deviceID := uuid.New()

	if _, err := b.Subscribe(deviceID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Nobody drains the channel; publishing beyond the buffer must not
	// block.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < subscriptionBufferSize*2; i++ {
			b.Publish(Event{DeviceID: deviceID, Kind: KindSettingsChanged})
		}
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}
}
