package memory

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/posturelab/posturehub/pkg/model"
	"github.com/posturelab/posturehub/pkg/storage"
)

func TestSessionEndActive(t *testing.T) {
	store := NewStore()
	deviceID := uuid.New()

	if _, err := store.Sessions().EndActive(deviceID, time.Now()); err != storage.ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	sess := model.Session{DeviceID: deviceID, IsIdle: true}
	if err := store.Sessions().Create(&sess); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	at := time.Now().Round(time.Second).UTC()
	ended, err := store.Sessions().EndActive(deviceID, at)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ended.EndTime == nil || !ended.EndTime.Equal(at) {
		t.Fatalf("expected end time %v, got %v", at, ended.EndTime)
	}
	// Ending a session always clears the idle flag.
	if ended.IsIdle {
		t.Fatal("expected idle flag to be cleared")
	}

	if _, err := store.Sessions().FindActiveByDeviceID(deviceID); err != storage.ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if _, err := store.Sessions().EndActive(deviceID, time.Now()); err != storage.ErrNotFound {
		t.Fatalf("expected ErrNotFound on second end, got %v", err)
	}
}

func TestSessionSetIdle(t *testing.T) {
	store := NewStore()
	deviceID := uuid.New()

	changed, err := store.Sessions().SetIdle(deviceID, true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if changed {
		t.Fatal("expected no change without an active session")
	}

	sess := model.Session{DeviceID: deviceID}
	if err := store.Sessions().Create(&sess); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	changed, err = store.Sessions().SetIdle(deviceID, true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !changed {
		t.Fatal("expected idle flag to change")
	}

	// Same value again reports no change.
	changed, err = store.Sessions().SetIdle(deviceID, true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if changed {
		t.Fatal("expected no change when the flag already holds the value")
	}
}

func TestSessionIDsAreAssigned(t *testing.T) {
	store := NewStore()

	first := model.Session{DeviceID: uuid.New()}
	second := model.Session{DeviceID: uuid.New()}
	if err := store.Sessions().Create(&first); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := store.Sessions().Create(&second); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if first.ID == 0 || second.ID == 0 || first.ID == second.ID {
		t.Fatalf("expected distinct non-zero IDs, got %d and %d", first.ID, second.ID)
	}

	all, err := store.Sessions().FetchAll()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 sessions, got %d", len(all))
	}
}
