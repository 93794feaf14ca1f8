package sessiontrack

import (
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/posturelab/posturehub/pkg/model"
	"github.com/posturelab/posturehub/pkg/storage"
)

type trackerError string

func (e trackerError) Error() string {
	return string(e)
}

// ErrNoActiveSession is returned when an operation requires an active session
// and the device has none.
const ErrNoActiveSession = trackerError("no active session")

// Tracker owns the session lifecycle of every device. All mutations for one
// device are serialized through a per-device mutex on top of the store's
// conditional updates, so the single-active-session invariant holds even when
// two connections of the same device race.
type Tracker struct {
	store storage.Interface

	mu    sync.Mutex
	locks map[uuid.UUID]*sync.Mutex
}

func New(store storage.Interface) *Tracker {
	return &Tracker{
		store: store,
		locks: make(map[uuid.UUID]*sync.Mutex),
	}
}

func (t *Tracker) deviceLock(deviceID uuid.UUID) *sync.Mutex {
	t.mu.Lock()
	defer t.mu.Unlock()

	l, ok := t.locks[deviceID]
	if !ok {
		l = &sync.Mutex{}
		t.locks[deviceID] = l
	}
	return l
}

// Start creates a new active session for the device. When one is active
// already it is returned unchanged; the second return value reports whether a
// session was actually created.
func (t *Tracker) Start(deviceID uuid.UUID) (*model.Session, bool, error) {
	l := t.deviceLock(deviceID)
	l.Lock()
	defer l.Unlock()

	existing, err := t.store.Sessions().FindActiveByDeviceID(deviceID)
	if err == nil {
		return existing, false, nil
	} else if err != storage.ErrNotFound {
		return nil, false, err
	}

	sess := model.Session{
		DeviceID:  deviceID,
		StartTime: time.Now().Round(time.Second).UTC(),
	}
	if err := t.store.Sessions().Create(&sess); err != nil {
		return nil, false, err
	}

	log.Infof("sessiontrack started session %d for device '%s'", sess.ID, deviceID)
	return &sess, true, nil
}

// Stop ends the active session of the device. A concurrent second stop
// observes ErrNoActiveSession.
func (t *Tracker) Stop(deviceID uuid.UUID) (*model.Session, error) {
	l := t.deviceLock(deviceID)
	l.Lock()
	defer l.Unlock()

	sess, err := t.store.Sessions().EndActive(deviceID, time.Now().Round(time.Second).UTC())
	if err == storage.ErrNotFound {
		return nil, ErrNoActiveSession
	} else if err != nil {
		return nil, err
	}

	log.Infof("sessiontrack stopped session %d for device '%s'", sess.ID, deviceID)
	return sess, nil
}

// MarkIdleIfStale flags the active session idle when the device has produced
// no reading within the threshold. Returns true only for the caller that
// performed the transition, so a status notification fires exactly once.
func (t *Tracker) MarkIdleIfStale(deviceID uuid.UUID, threshold time.Duration) (bool, error) {
	l := t.deviceLock(deviceID)
	l.Lock()
	defer l.Unlock()

	stale, err := t.isStale(deviceID, threshold)
	if err != nil || !stale {
		return false, err
	}

	changed, err := t.store.Sessions().SetIdle(deviceID, true)
	if err != nil {
		return false, err
	}
	if changed {
		log.Infof("sessiontrack marked session idle for device '%s'", deviceID)
	}
	return changed, nil
}

// EndIfStale is the harder timeout: it ends (not just idles) a session whose
// last reading is older than the threshold. Returns true when a session was
// ended by this call.
func (t *Tracker) EndIfStale(deviceID uuid.UUID, threshold time.Duration) (bool, error) {
	l := t.deviceLock(deviceID)
	l.Lock()
	defer l.Unlock()

	stale, err := t.isStale(deviceID, threshold)
	if err != nil || !stale {
		return false, err
	}

	_, err = t.store.Sessions().EndActive(deviceID, time.Now().Round(time.Second).UTC())
	if err == storage.ErrNotFound {
		return false, nil
	} else if err != nil {
		return false, err
	}

	log.Infof("sessiontrack ended stale session for device '%s'", deviceID)
	return true, nil
}

// ClearIdle is the explicit client-initiated exit from the idle state.
func (t *Tracker) ClearIdle(deviceID uuid.UUID) (bool, error) {
	l := t.deviceLock(deviceID)
	l.Lock()
	defer l.Unlock()

	if _, err := t.store.Sessions().FindActiveByDeviceID(deviceID); err == storage.ErrNotFound {
		return false, ErrNoActiveSession
	} else if err != nil {
		return false, err
	}

	return t.store.Sessions().SetIdle(deviceID, false)
}

// HasActive reports whether the device has a session with no end time.
func (t *Tracker) HasActive(deviceID uuid.UUID) (bool, error) {
	_, err := t.store.Sessions().FindActiveByDeviceID(deviceID)
	if err == storage.ErrNotFound {
		return false, nil
	} else if err != nil {
		return false, err
	}
	return true, nil
}

// IsIdle reports whether the device's active session is flagged idle. A
// device without an active session is never idle.
func (t *Tracker) IsIdle(deviceID uuid.UUID) (bool, error) {
	sess, err := t.store.Sessions().FindActiveByDeviceID(deviceID)
	if err == storage.ErrNotFound {
		return false, nil
	} else if err != nil {
		return false, err
	}
	return sess.IsIdle, nil
}

// isStale must be called with the device lock held. The session start time
// serves as the baseline when the device has not submitted any reading yet.
func (t *Tracker) isStale(deviceID uuid.UUID, threshold time.Duration) (bool, error) {
	sess, err := t.store.Sessions().FindActiveByDeviceID(deviceID)
	if err == storage.ErrNotFound {
		return false, nil
	} else if err != nil {
		return false, err
	}

	baseline := sess.StartTime
	reading, err := t.store.Readings().FindLatestByDeviceID(deviceID)
	if err == nil && reading.Timestamp.After(baseline) {
		baseline = reading.Timestamp
	} else if err != nil && err != storage.ErrNotFound {
		return false, err
	}

	return time.Since(baseline) > threshold, nil
}
