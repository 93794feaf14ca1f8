package channel

import (
	"net"
	"sync"
	"time"

	"github.com/gobwas/ws"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/posturelab/posturehub/pkg/bus"
	"github.com/posturelab/posturehub/pkg/deviceconn/proto"
	"github.com/posturelab/posturehub/pkg/ingest"
	"github.com/posturelab/posturehub/pkg/registry"
	"github.com/posturelab/posturehub/pkg/sessiontrack"
)

type Status int

const (
	StatusConnecting Status = iota
	StatusActive
	StatusClosed
)

// Channel is the server side of one device websocket connection. It owns the
// inbox/outbox workers, the subscription on the notification bus and the
// server heartbeat ticker.
type Channel struct {
	sync.RWMutex
	ctrl          *Controller
	conn          net.Conn
	status        Status
	deviceID      uuid.UUID
	sub           *bus.Subscription
	lastMessageAt time.Time
	stopCh        chan struct{}
	wsTerminateCh chan<- struct{}
	wsOutboxCh    chan *Response
	closeOnce     sync.Once
	terminateOnce sync.Once
}

type Flag int

const (
	FlagContinue Flag = iota
	FlagCloseGracefully
	FlagTerminate
)

type Response struct {
	Flag Flag
	Data []byte
}

// Open authenticates the connection and admits it as an active device
// channel. On failure the websocket is closed with an application close code
// and the returned error describes the rejection.
func (ch *Channel) Open(deviceIDParam, apiKey string) error {
	deviceID, err := uuid.Parse(deviceIDParam)
	if err != nil {
		ch.rejectAndClose(CloseCodeInvalidIdentifier, CloseReasonInvalidIdentifier)
		return errors.Wrap(err, "invalid device identifier")
	}

	if _, err := ch.ctrl.registry.Authenticate(deviceIDParam, apiKey); err != nil {
		if registry.IsAuthError(err) {
			log.Warnf("device channel rejected for device '%s': %s", deviceIDParam, err.Error())
			if registry.AuthErrorReason(err) == registry.AuthReasonInvalidFormat {
				ch.rejectAndClose(CloseCodeInvalidIdentifier, CloseReasonInvalidIdentifier)
			} else {
				ch.rejectAndClose(CloseCodeUnauthorized, CloseReasonUnauthorized)
			}
			return err
		}

		log.Errorf("device channel authentication failed for device '%s': %s", deviceIDParam, err.Error())
		ch.rejectAndClose(CloseCodeInternalError, CloseReasonInternalError)
		return err
	}

	sub, err := ch.ctrl.bus.Subscribe(deviceID)
	if err != nil {
		log.Errorf("device channel could not subscribe to notifications for device '%s': %s", deviceID, err.Error())
		ch.rejectAndClose(CloseCodeInternalError, CloseReasonInternalError)
		return errors.Wrap(err, "could not subscribe to notifications")
	}

	ch.Lock()
	ch.deviceID = deviceID
	ch.sub = sub
	ch.status = StatusActive
	ch.lastMessageAt = time.Now().Round(time.Second).UTC()
	ch.Unlock()

	go ch.inboxWorker()
	go ch.busWorker()
	go ch.heartbeatWorker()

	// The initial settings snapshot tells the device right away whether it
	// is monitored.
	ch.pushSettings()

	log.Infof("device channel opened for device '%s'", deviceID)
	return nil
}

// Close is called when the websocket handler method is exiting, e.g. the
// connection is closed.
func (ch *Channel) Close() {
	ch.shutdown()
}

func (ch *Channel) shutdown() {
	ch.closeOnce.Do(func() {
		ch.Lock()
		wasActive := ch.status == StatusActive
		ch.status = StatusClosed
		deviceID := ch.deviceID
		sub := ch.sub
		ch.Unlock()

		close(ch.stopCh)

		if !wasActive {
			ch.terminate()
			return
		}

		if ch.ctrl.cfg.EndSessionOnDisconnect {
			if _, err := ch.ctrl.tracker.Stop(deviceID); err == sessiontrack.ErrNoActiveSession {
				log.Debugf("device channel closed for device '%s' without active session", deviceID)
			} else if err != nil {
				log.Errorf("device channel could not end session for device '%s': %s", deviceID, err.Error())
			} else {
				ch.ctrl.publisher.SessionStatusChanged(deviceID, bus.ActionStop)
			}
		}

		if sub != nil {
			ch.ctrl.bus.Unsubscribe(sub)
		}

		log.Infof("device channel closed for device '%s'", deviceID)
		ch.terminate()
	})
}

func (ch *Channel) terminate() {
	ch.terminateOnce.Do(func() {
		close(ch.wsTerminateCh)
	})
}

func (ch *Channel) rejectAndClose(code ws.StatusCode, reason string) {
	frame := ws.NewCloseFrame(ws.NewCloseFrameBody(code, reason))
	if err := ws.WriteFrame(ch.conn, frame); err != nil {
		log.Errorf("websocket write close frame error: %s", err)
	}
	ch.shutdown()
}

func (ch *Channel) device() uuid.UUID {
	ch.RLock()
	defer ch.RUnlock()
	return ch.deviceID
}

// HandleMessage is called by the inbox worker when data is received from the
// connected device. Malformed frames are answered with an error message; the
// connection stays open.
func (ch *Channel) HandleMessage(data []byte) ([]byte, Flag, error) {
	log.Debugf("device channel handles message '%s'", string(data))

	msgType, msg, err := proto.UnmarshalMessage(data)
	if err == proto.ErrInvalidJSON {
		return ch.errorMessage("Invalid JSON format")
	} else if err != nil {
		return ch.errorMessage(err.Error())
	}

	switch msgType {
	case proto.MessageTypeHeartbeat:
		return ch.handleMessage(msg, ch.ensureActive(ch.heartbeatHandler()))
	case proto.MessageTypeSettingsRequest:
		return ch.handleMessage(msg, ch.ensureActive(ch.settingsRequestHandler()))
	case proto.MessageTypePostureData:
		return ch.handleMessage(msg, ch.ensureActive(ch.postureDataHandler()))
	case proto.MessageTypeExitIdleMode:
		return ch.handleMessage(msg, ch.ensureActive(ch.exitIdleModeHandler()))
	}

	return ch.errorMessage("unsupported message type")
}

// messageHandler is a tooling for handling incoming messages. It is similar
// to the go http handler implementation. It allows us to create middleware
// handlers, e.g. the ensureActive handler.
type messageHandler interface {
	Handle(msg interface{}) ([]byte, Flag, error)
}

type messageHandlerFunc func(msg interface{}) ([]byte, Flag, error)

func (f messageHandlerFunc) Handle(msg interface{}) ([]byte, Flag, error) {
	return f(msg)
}

func (ch *Channel) handleMessage(msg interface{}, h messageHandler) ([]byte, Flag, error) {
	ch.Lock()
	ch.lastMessageAt = time.Now().Round(time.Second).UTC()
	ch.Unlock()

	// Any well-formed frame proves the device is alive.
	ch.ctrl.registry.TouchLastSeen(ch.device())

	return h.Handle(msg)
}

func (ch *Channel) ensureActive(next messageHandler) messageHandler {
	return messageHandlerFunc(func(msg interface{}) ([]byte, Flag, error) {
		ch.RLock()
		active := ch.status == StatusActive
		ch.RUnlock()
		if !active {
			return ch.terminateAndLog("device channel is not active")
		}
		return next.Handle(msg)
	})
}

// heartbeatHandler runs the inactivity checks. The hard timeout ends a stale
// session; the softer threshold only flags it idle. The resulting transition
// is announced through the bus so every open connection of the device learns
// about it, including this one.
func (ch *Channel) heartbeatHandler() messageHandlerFunc {
	return messageHandlerFunc(func(msg interface{}) ([]byte, Flag, error) {
		deviceID := ch.device()

		ended, err := ch.ctrl.tracker.EndIfStale(deviceID, ch.ctrl.cfg.InactivityTimeout)
		if err != nil {
			log.Errorf("device channel inactivity check failed for device '%s': %s", deviceID, err.Error())
			return ch.continueWithoutMessage()
		}
		if ended {
			ch.ctrl.publisher.SessionStatusChanged(deviceID, bus.ActionStop)
			return ch.continueWithoutMessage()
		}

		idled, err := ch.ctrl.tracker.MarkIdleIfStale(deviceID, ch.ctrl.cfg.IdleThreshold)
		if err != nil {
			log.Errorf("device channel idle check failed for device '%s': %s", deviceID, err.Error())
			return ch.continueWithoutMessage()
		}
		if idled {
			ch.ctrl.publisher.SessionStatusChanged(deviceID, bus.ActionIdle)
		}

		return ch.continueWithoutMessage()
	})
}

func (ch *Channel) settingsRequestHandler() messageHandlerFunc {
	return messageHandlerFunc(func(msg interface{}) ([]byte, Flag, error) {
		snapshot, err := ch.settingsSnapshot()
		if err != nil {
			log.Errorf("device channel could not load settings for device '%s': %s", ch.device(), err.Error())
			return ch.errorMessage("could not load settings")
		}
		return ch.settingsMessage(snapshot)
	})
}

func (ch *Channel) postureDataHandler() messageHandlerFunc {
	return messageHandlerFunc(func(msg interface{}) ([]byte, Flag, error) {
		postureMsg, err := proto.MustPostureDataMessage(msg)
		if err != nil {
			return ch.terminateAndLogError("posture data message expected", err)
		}

		components := make([]ingest.ComponentInput, 0, len(postureMsg.Components))
		for _, c := range postureMsg.Components {
			components = append(components, ingest.ComponentInput{
				Type:  c.ComponentType,
				Score: c.Score,
			})
		}

		deviceID := ch.device()
		if _, err := ch.ctrl.ingestor.Submit(deviceID, components); err != nil {
			if err == sessiontrack.ErrNoActiveSession {
				return ch.postureDataResponse(proto.StatusError, "no active session")
			}
			if ingest.IsValidationError(err) {
				return ch.postureDataResponse(proto.StatusError, err.Error())
			}
			log.Errorf("device channel could not store posture data for device '%s': %s", deviceID, err.Error())
			return ch.postureDataResponse(proto.StatusError, "internal error")
		}

		return ch.postureDataResponse(proto.StatusSuccess, "")
	})
}

func (ch *Channel) exitIdleModeHandler() messageHandlerFunc {
	return messageHandlerFunc(func(msg interface{}) ([]byte, Flag, error) {
		deviceID := ch.device()

		changed, err := ch.ctrl.tracker.ClearIdle(deviceID)
		if err == sessiontrack.ErrNoActiveSession {
			return ch.exitIdleModeResponse(proto.StatusError, "no active session")
		} else if err != nil {
			log.Errorf("device channel could not clear idle state for device '%s': %s", deviceID, err.Error())
			return ch.exitIdleModeResponse(proto.StatusError, "internal error")
		}

		if changed {
			ch.ctrl.publisher.SessionStatusChanged(deviceID, bus.ActionResume)
		}

		return ch.exitIdleModeResponse(proto.StatusSuccess, "")
	})
}

// busWorker pumps notification events into the websocket until the
// subscription or the channel is closed.
func (ch *Channel) busWorker() {
	for {
		select {
		case ev, ok := <-ch.sub.C:
			if !ok {
				log.Debug("device channel bus worker subscription closed")
				return
			}
			ch.handleBusEvent(ev)
		case <-ch.stopCh:
			log.Debug("device channel bus worker received stop signal")
			return
		}
	}
}

func (ch *Channel) handleBusEvent(ev bus.Event) {
	switch ev.Kind {
	case bus.KindSettingsChanged:
		ch.pushSettings()
	case bus.KindSessionStatus:
		out, err := proto.MarshalNewSessionStatusMessage(ev.Action, ev.HasActiveSession, ev.IsIdle)
		if err != nil {
			log.Errorf("device channel could not marshal session status: %s", err.Error())
			return
		}
		ch.pushBackMessage(FlagContinue, out)

		// Starting or stopping a session changes the monitored flags inside
		// the settings snapshot, so push a fresh one as well.
		if ev.Action == bus.ActionStart || ev.Action == bus.ActionStop {
			ch.pushSettings()
		}
	}
}

// heartbeatWorker emits server-initiated heartbeat frames in the configured
// interval.
func (ch *Channel) heartbeatWorker() {
	ticker := time.NewTicker(ch.ctrl.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			out, err := proto.MarshalNewHeartbeatMessage()
			if err != nil {
				log.Errorf("device channel could not marshal heartbeat: %s", err.Error())
				continue
			}
			ch.pushBackMessage(FlagContinue, out)
		case <-ch.stopCh:
			log.Debug("device channel heartbeat worker received stop signal")
			return
		}
	}
}

func (ch *Channel) settingsSnapshot() (proto.SettingsData, error) {
	deviceID := ch.device()

	device, err := ch.ctrl.store.Devices().FindByID(deviceID)
	if err != nil {
		return proto.SettingsData{}, err
	}

	active, err := ch.ctrl.tracker.HasActive(deviceID)
	if err != nil {
		return proto.SettingsData{}, err
	}
	idle := false
	if active {
		if idle, err = ch.ctrl.tracker.IsIdle(deviceID); err != nil {
			return proto.SettingsData{}, err
		}
	}

	return proto.SettingsData{
		Sensitivity:        device.Sensitivity,
		VibrationIntensity: device.VibrationIntensity,
		AudioIntensity:     device.AudioIntensity,
		HasActiveSession:   active,
		IsIdle:             idle,
	}, nil
}

func (ch *Channel) pushSettings() {
	snapshot, err := ch.settingsSnapshot()
	if err != nil {
		log.Errorf("device channel could not load settings for device '%s': %s", ch.device(), err.Error())
		return
	}

	out, err := proto.MarshalNewSettingsMessage(snapshot)
	if err != nil {
		log.Errorf("device channel could not marshal settings: %s", err.Error())
		return
	}

	ch.pushBackMessage(FlagContinue, out)
}

func (ch *Channel) terminateAndLog(message string) ([]byte, Flag, error) {
	log.Errorf("device channel terminates with message: %s", message)
	ch.pushBackMessage(FlagTerminate, nil)
	return nil, FlagTerminate, nil
}

func (ch *Channel) terminateAndLogError(message string, err error) ([]byte, Flag, error) {
	log.Errorf("device channel terminates with message and error: %s: %s", message, err.Error())
	ch.pushBackMessage(FlagTerminate, nil)
	return nil, FlagTerminate, nil
}

func (ch *Channel) settingsMessage(snapshot proto.SettingsData) ([]byte, Flag, error) {
	out, err := proto.MarshalNewSettingsMessage(snapshot)
	// This error should happen never! If it happens log an urgent error
	// and terminate the websocket session for safety.
	if err != nil {
		return ch.terminateAndLogError("could not marshal message", err)
	}
	ch.pushBackMessage(FlagContinue, out)
	return out, FlagContinue, nil
}

func (ch *Channel) postureDataResponse(status, errMessage string) ([]byte, Flag, error) {
	out, err := proto.MarshalNewPostureDataResponse(status, errMessage)
	if err != nil {
		return ch.terminateAndLogError("could not marshal message", err)
	}
	ch.pushBackMessage(FlagContinue, out)
	return out, FlagContinue, nil
}

func (ch *Channel) exitIdleModeResponse(status, errMessage string) ([]byte, Flag, error) {
	out, err := proto.MarshalNewExitIdleModeResponse(status, errMessage)
	if err != nil {
		return ch.terminateAndLogError("could not marshal message", err)
	}
	ch.pushBackMessage(FlagContinue, out)
	return out, FlagContinue, nil
}

func (ch *Channel) errorMessage(errMessage string) ([]byte, Flag, error) {
	out, err := proto.MarshalNewErrorMessage(errMessage)
	if err != nil {
		return ch.terminateAndLogError("could not marshal message", err)
	}
	ch.pushBackMessage(FlagContinue, out)
	return out, FlagContinue, nil
}

func (ch *Channel) continueWithoutMessage() ([]byte, Flag, error) {
	return nil, FlagContinue, nil
}

func (ch *Channel) pushBackMessage(flag Flag, data []byte) bool {
	select {
	case ch.wsOutboxCh <- newResponse(flag, data):
		return true
	default:
		return false // Buffer is full
	}
}

func newResponse(flag Flag, data []byte) *Response {
	r := &Response{
		Flag: flag,
	}
	if data != nil {
		r.Data = make([]byte, len(data))
		copy(r.Data, data)
	}
	return r
}
