package channel

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/posturelab/posturehub/config"
	"github.com/posturelab/posturehub/pkg/bus"
	"github.com/posturelab/posturehub/pkg/ingest"
	"github.com/posturelab/posturehub/pkg/model"
	"github.com/posturelab/posturehub/pkg/notify"
	"github.com/posturelab/posturehub/pkg/registry"
	"github.com/posturelab/posturehub/pkg/sessiontrack"
	"github.com/posturelab/posturehub/pkg/storage"
	"github.com/posturelab/posturehub/pkg/storage/memory"
)

type testEnv struct {
	ch      *Channel
	store   storage.Interface
	bus     bus.Interface
	tracker *sessiontrack.Tracker
	device  *model.Device
}

// newTestEnv builds an already admitted channel without websocket workers, so
// a test can feed frames through HandleMessage and observe the outbox.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	cfg := &config.Config{
		IdleThreshold:          time.Minute,
		InactivityTimeout:      time.Hour,
		HeartbeatInterval:      30 * time.Second,
		EndSessionOnDisconnect: true,
	}

	store := memory.NewStore()
	b := bus.NewInProcess()
	tracker := sessiontrack.New(store)
	reg := registry.New(store)
	ing := ingest.New(store, tracker)
	pub := notify.NewPublisher(b, tracker)

	ctrl := NewController(cfg, store, b, reg, tracker, ing, pub)

	device := &model.Device{
		ID:                 uuid.New(),
		Name:               "desk sensor",
		APIKey:             "secret-key",
		IsActive:           true,
		Sensitivity:        30,
		VibrationIntensity: 40,
		AudioIntensity:     50,
	}
	if err := store.Devices().Create(device); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	sub, err := b.Subscribe(device.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ch := &Channel{
		ctrl:          ctrl,
		status:        StatusActive,
		deviceID:      device.ID,
		sub:           sub,
		stopCh:        make(chan struct{}),
		wsTerminateCh: make(chan struct{}),
		wsOutboxCh:    make(chan *Response, 100),
	}

	return &testEnv{ch: ch, store: store, bus: b, tracker: tracker, device: device}
}

func (env *testEnv) nextOutbox(t *testing.T) map[string]interface{} {
	t.Helper()

	select {
	case res := <-env.ch.wsOutboxCh:
		frame := make(map[string]interface{})
		if err := json.Unmarshal(res.Data, &frame); err != nil {
			t.Fatalf("outbox message is not valid JSON: %v", err)
		}
		return frame
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for outbox message")
		return nil
	}
}

func (env *testEnv) nextBusEvent(t *testing.T) bus.Event {
	t.Helper()

	select {
	case ev := <-env.ch.sub.C:
		return ev
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for bus event")
		return bus.Event{}
	}
}

func TestSettingsRequestReturnsSnapshot(t *testing.T) {
	env := newTestEnv(t)

	if _, _, err := env.ch.HandleMessage([]byte(`{"type": "settings_request"}`)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	frame := env.nextOutbox(t)
	if frame["type"] != "settings" {
		t.Fatalf("expected settings frame, got %v", frame["type"])
	}

	data := frame["data"].(map[string]interface{})
	if data["sensitivity"] != float64(30) {
		t.Fatalf("expected sensitivity 30, got %v", data["sensitivity"])
	}
	if data["has_active_session"] != false {
		t.Fatalf("expected no active session, got %v", data["has_active_session"])
	}
}

func TestPostureDataWithoutSessionIsRejected(t *testing.T) {
	env := newTestEnv(t)

	payload := `{
		"type": "posture_data",
		"data": {
			"components": [
				{"component_type": "neck", "score": 80},
				{"component_type": "torso", "score": 70},
				{"component_type": "shoulders", "score": 90}
			]
		}
	}`
	if _, _, err := env.ch.HandleMessage([]byte(payload)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	frame := env.nextOutbox(t)
	if frame["type"] != "posture_data_response" || frame["status"] != "error" {
		t.Fatalf("expected error response, got %v", frame)
	}
}

func TestPostureDataIsStored(t *testing.T) {
	env := newTestEnv(t)

	if _, _, err := env.tracker.Start(env.device.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	payload := `{
		"type": "posture_data",
		"data": {
			"components": [
				{"component_type": "neck", "score": 80},
				{"component_type": "torso", "score": 70},
				{"component_type": "shoulders", "score": 90}
			]
		}
	}`
	if _, _, err := env.ch.HandleMessage([]byte(payload)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	frame := env.nextOutbox(t)
	if frame["type"] != "posture_data_response" || frame["status"] != "success" {
		t.Fatalf("expected success response, got %v", frame)
	}

	reading, err := env.store.Readings().FindLatestByDeviceID(env.device.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reading.OverallScore != 80 {
		t.Fatalf("expected overall score 80, got %d", reading.OverallScore)
	}
}

func TestMalformedFrameKeepsConnectionOpen(t *testing.T) {
	env := newTestEnv(t)

	_, flag, err := env.ch.HandleMessage([]byte(`{not json`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if flag != FlagContinue {
		t.Fatalf("expected FlagContinue, got %d", flag)
	}

	frame := env.nextOutbox(t)
	if frame["type"] != "error" || frame["error"] != "Invalid JSON format" {
		t.Fatalf("expected invalid JSON error frame, got %v", frame)
	}
}

func TestExitIdleModeResumesSession(t *testing.T) {
	env := newTestEnv(t)

	sess := model.Session{
		DeviceID:  env.device.ID,
		StartTime: time.Now().Add(-2 * time.Minute).Round(time.Second).UTC(),
		IsIdle:    true,
	}
	if err := env.store.Sessions().Create(&sess); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, _, err := env.ch.HandleMessage([]byte(`{"type": "exit_idle_mode"}`)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	frame := env.nextOutbox(t)
	if frame["type"] != "exit_idle_mode_response" || frame["status"] != "success" {
		t.Fatalf("expected success response, got %v", frame)
	}

	ev := env.nextBusEvent(t)
	if ev.Kind != bus.KindSessionStatus || ev.Action != bus.ActionResume {
		t.Fatalf("expected resume event, got %+v", ev)
	}

	idle, err := env.tracker.IsIdle(env.device.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if idle {
		t.Fatal("expected session to no longer be idle")
	}
}

func TestHeartbeatMarksStaleSessionIdle(t *testing.T) {
	env := newTestEnv(t)

	sess := model.Session{
		DeviceID:  env.device.ID,
		StartTime: time.Now().Add(-5 * time.Minute).Round(time.Second).UTC(),
	}
	if err := env.store.Sessions().Create(&sess); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, _, err := env.ch.HandleMessage([]byte(`{"type": "heartbeat"}`)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ev := env.nextBusEvent(t)
	if ev.Kind != bus.KindSessionStatus || ev.Action != bus.ActionIdle {
		t.Fatalf("expected idle event, got %+v", ev)
	}

	// A second heartbeat does not announce the transition again.
	if _, _, err := env.ch.HandleMessage([]byte(`{"type": "heartbeat"}`)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	select {
	case ev := <-env.ch.sub.C:
		t.Fatalf("unexpected second event: %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHeartbeatEndsTimedOutSession(t *testing.T) {
	env := newTestEnv(t)

	sess := model.Session{
		DeviceID:  env.device.ID,
		StartTime: time.Now().Add(-2 * time.Hour).Round(time.Second).UTC(),
	}
	if err := env.store.Sessions().Create(&sess); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, _, err := env.ch.HandleMessage([]byte(`{"type": "heartbeat"}`)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ev := env.nextBusEvent(t)
	if ev.Kind != bus.KindSessionStatus || ev.Action != bus.ActionStop {
		t.Fatalf("expected stop event, got %+v", ev)
	}

	active, err := env.tracker.HasActive(env.device.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if active {
		t.Fatal("expected session to be ended")
	}
}

func TestBusEventsArePushedToDevice(t *testing.T) {
	env := newTestEnv(t)

	env.ch.handleBusEvent(bus.Event{
		DeviceID: env.device.ID,
		Kind:     bus.KindSettingsChanged,
	})

	frame := env.nextOutbox(t)
	if frame["type"] != "settings" {
		t.Fatalf("expected settings frame, got %v", frame["type"])
	}

	env.ch.handleBusEvent(bus.Event{
		DeviceID:         env.device.ID,
		Kind:             bus.KindSessionStatus,
		Action:           bus.ActionStart,
		HasActiveSession: true,
	})

	frame = env.nextOutbox(t)
	if frame["type"] != "session_status" || frame["action"] != "start" {
		t.Fatalf("expected session status frame, got %v", frame)
	}

	// Start and stop also refresh the settings snapshot.
	frame = env.nextOutbox(t)
	if frame["type"] != "settings" {
		t.Fatalf("expected settings refresh, got %v", frame["type"])
	}
}

// TestDeviceLifecycleScenario walks the happy path: the device asks for its
// settings, the management side starts a session, the device observes the
// transition and submits posture data.
func TestDeviceLifecycleScenario(t *testing.T) {
	env := newTestEnv(t)

	go env.ch.busWorker()
	defer close(env.ch.stopCh)

	if _, _, err := env.ch.HandleMessage([]byte(`{"type": "settings_request"}`)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	frame := env.nextOutbox(t)
	if frame["type"] != "settings" {
		t.Fatalf("expected settings frame, got %v", frame["type"])
	}
	if frame["data"].(map[string]interface{})["has_active_session"] != false {
		t.Fatal("expected no active session initially")
	}

	// The management REST layer starts a session and notifies.
	pub := notify.NewPublisher(env.bus, env.tracker)
	if _, _, err := env.tracker.Start(env.device.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	pub.SessionStatusChanged(env.device.ID, bus.ActionStart)

	frame = env.nextOutbox(t)
	if frame["type"] != "session_status" || frame["action"] != "start" {
		t.Fatalf("expected session status frame, got %v", frame)
	}
	if frame["has_active_session"] != true {
		t.Fatal("expected has_active_session true")
	}

	frame = env.nextOutbox(t)
	if frame["type"] != "settings" {
		t.Fatalf("expected settings refresh, got %v", frame["type"])
	}

	payload := `{
		"type": "posture_data",
		"data": {
			"components": [
				{"component_type": "neck", "score": 80},
				{"component_type": "torso", "score": 70},
				{"component_type": "shoulders", "score": 90}
			]
		}
	}`
	if _, _, err := env.ch.HandleMessage([]byte(payload)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	frame = env.nextOutbox(t)
	if frame["type"] != "posture_data_response" || frame["status"] != "success" {
		t.Fatalf("expected success response, got %v", frame)
	}
}

func TestShutdownEndsSessionOnDisconnect(t *testing.T) {
	env := newTestEnv(t)
	terminateCh := make(chan struct{})
	env.ch.wsTerminateCh = terminateCh

	if _, _, err := env.tracker.Start(env.device.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Second subscription stands in for another open connection of the same
	// device that must learn about the stop.
	observer, err := env.bus.Subscribe(env.device.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	env.ch.Close()

	select {
	case <-terminateCh:
	case <-time.After(time.Second):
		t.Fatal("expected terminate channel to be closed")
	}

	active, err := env.tracker.HasActive(env.device.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if active {
		t.Fatal("expected session to be ended on disconnect")
	}

	select {
	case ev := <-observer.C:
		if ev.Kind != bus.KindSessionStatus || ev.Action != bus.ActionStop {
			t.Fatalf("expected stop event, got %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for stop event")
	}

	// Close is idempotent.
	env.ch.Close()
}
