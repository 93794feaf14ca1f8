package sessiontrack

import (
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/posturelab/posturehub/pkg/model"
	"github.com/posturelab/posturehub/pkg/storage/memory"
)

func TestStartIsIdempotent(t *testing.T) {
	store := memory.NewStore()
	tracker := New(store)
	deviceID := uuid.New()

	first, created, err := tracker.Start(deviceID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !created {
		t.Fatal("expected first start to create a session")
	}

	second, created, err := tracker.Start(deviceID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if created {
		t.Fatal("expected second start to return the existing session")
	}
	if first.ID != second.ID {
		t.Fatalf("expected session %d, got %d", first.ID, second.ID)
	}
}

func TestConcurrentStartsCreateOneSession(t *testing.T) {
	store := memory.NewStore()
	tracker := New(store)
	deviceID := uuid.New()

	var wg sync.WaitGroup
	createdCount := make(chan bool, 16)

	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, created, err := tracker.Start(deviceID)
			if err != nil {
				t.Errorf("unexpected error: %v", err)
				return
			}
			createdCount <- created
		}()
	}
	wg.Wait()
	close(createdCount)

	total := 0
	for created := range createdCount {
		if created {
			total++
		}
	}
	if total != 1 {
		t.Fatalf("expected exactly one session to be created, got %d", total)
	}
}

func TestStopEndsSessionOnce(t *testing.T) {
	store := memory.NewStore()
	tracker := New(store)
	deviceID := uuid.New()

	if _, _, err := tracker.Start(deviceID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	sess, err := tracker.Stop(deviceID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sess.EndTime == nil {
		t.Fatal("expected stopped session to have an end time")
	}

	if _, err := tracker.Stop(deviceID); err != ErrNoActiveSession {
		t.Fatalf("expected ErrNoActiveSession, got %v", err)
	}
}

func TestStartAfterStopCreatesNewSession(t *testing.T) {
	store := memory.NewStore()
	tracker := New(store)
	deviceID := uuid.New()

	first, _, err := tracker.Start(deviceID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := tracker.Stop(deviceID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	second, created, err := tracker.Start(deviceID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !created {
		t.Fatal("expected a new session after stop")
	}
	if first.ID == second.ID {
		t.Fatal("expected a different session ID after restart")
	}
}

func TestMarkIdleIfStale(t *testing.T) {
	store := memory.NewStore()
	tracker := New(store)
	deviceID := uuid.New()

	sess := model.Session{
		DeviceID:  deviceID,
		StartTime: time.Now().Add(-2 * time.Minute).Round(time.Second).UTC(),
	}
	if err := store.Sessions().Create(&sess); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	changed, err := tracker.MarkIdleIfStale(deviceID, time.Minute)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !changed {
		t.Fatal("expected session to be marked idle")
	}

	// A second check does not transition again.
	changed, err = tracker.MarkIdleIfStale(deviceID, time.Minute)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if changed {
		t.Fatal("expected no second idle transition")
	}

	idle, err := tracker.IsIdle(deviceID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !idle {
		t.Fatal("expected session to be idle")
	}
}

func TestMarkIdleSkipsFreshSession(t *testing.T) {
	store := memory.NewStore()
	tracker := New(store)
	deviceID := uuid.New()

	if _, _, err := tracker.Start(deviceID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	changed, err := tracker.MarkIdleIfStale(deviceID, time.Minute)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if changed {
		t.Fatal("expected fresh session to stay non-idle")
	}
}

func TestRecentReadingKeepsSessionFresh(t *testing.T) {
	store := memory.NewStore()
	tracker := New(store)
	deviceID := uuid.New()

	sess := model.Session{
		DeviceID:  deviceID,
		StartTime: time.Now().Add(-10 * time.Minute).Round(time.Second).UTC(),
	}
	if err := store.Sessions().Create(&sess); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	reading := model.PostureReading{
		DeviceID:  deviceID,
		Timestamp: time.Now().Round(time.Second).UTC(),
	}
	if err := store.Readings().Create(&reading); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	changed, err := tracker.MarkIdleIfStale(deviceID, time.Minute)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if changed {
		t.Fatal("expected session with recent reading to stay non-idle")
	}
}

func TestEndIfStale(t *testing.T) {
	store := memory.NewStore()
	tracker := New(store)
	deviceID := uuid.New()

	sess := model.Session{
		DeviceID:  deviceID,
		StartTime: time.Now().Add(-2 * time.Hour).Round(time.Second).UTC(),
	}
	if err := store.Sessions().Create(&sess); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ended, err := tracker.EndIfStale(deviceID, time.Hour)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ended {
		t.Fatal("expected stale session to be ended")
	}

	active, err := tracker.HasActive(deviceID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if active {
		t.Fatal("expected no active session after timeout")
	}

	// No session left, nothing to end.
	ended, err = tracker.EndIfStale(deviceID, time.Hour)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ended {
		t.Fatal("expected no second end transition")
	}
}

func TestClearIdle(t *testing.T) {
	store := memory.NewStore()
	tracker := New(store)
	deviceID := uuid.New()

	if _, err := tracker.ClearIdle(deviceID); err != ErrNoActiveSession {
		t.Fatalf("expected ErrNoActiveSession, got %v", err)
	}

	sess := model.Session{
		DeviceID:  deviceID,
		StartTime: time.Now().Add(-2 * time.Minute).Round(time.Second).UTC(),
		IsIdle:    true,
	}
	if err := store.Sessions().Create(&sess); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	changed, err := tracker.ClearIdle(deviceID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !changed {
		t.Fatal("expected idle flag to be cleared")
	}

	changed, err = tracker.ClearIdle(deviceID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if changed {
		t.Fatal("expected clearing a non-idle session to be a no-op")
	}
}
