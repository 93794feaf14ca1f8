package channel

import (
	"io/ioutil"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	log "github.com/sirupsen/logrus"
)

func (ch *Channel) inboxWorker() {
	defer ch.shutdown()

	state := ws.StateServerSide
	controlHandler := wsutil.ControlFrameHandler(ch.conn, state)

	r := &wsutil.Reader{
		Source:         ch.conn,
		State:          state,
		CheckUTF8:      true,
		OnIntermediate: controlHandler,
	}

	for {
		h, err := r.NextFrame()
		if err != nil {
			log.Errorf("websocket read message error: %v", err)

			// We should not return the error because echo framework
			// doesn't expect an error at this stage. If you return an
			// error you will see hijacked messages on the console.
			return
		}

		// We received an operation control frame and handle it before
		// continuation.
		if h.OpCode.IsControl() {
			// Check for OpClose before handling the control frame. On
			// OpClose the socket was closed by the client. We can exit our
			// handler now.
			if h.OpCode == ws.OpClose {
				log.Info("websocket connection closed gracefully")
				return
			}

			if err = controlHandler(h, r); err != nil {
				log.Errorf("websocket handles control frame error: %v", err)
				return
			}
			continue
		}

		// Read all data from websocket client
		req, err := ioutil.ReadAll(r)
		if err != nil {
			log.Errorf("websocket read error: %v", err)
			return
		}

		// Handle the received data
		if _, _, err := ch.HandleMessage(req); err != nil {
			log.Errorf("websocket handle request error: %v", err)
			return
		}
	}
}

func (ch *Channel) outboxWorker() {
	state := ws.StateServerSide
	w := wsutil.NewWriter(ch.conn, state, 0)

	for {
		select {
		case res := <-ch.wsOutboxCh:
			log.Debugf("device channel has an outbox message with flag(%d): %s", res.Flag, string(res.Data))
			ch.webSocketWrite(w, state, res)
		case <-ch.stopCh:
			log.Debug("device channel outbox worker received stop signal")
			return
		}
	}
}

func (ch *Channel) webSocketWrite(w *wsutil.Writer, state ws.State, res *Response) {
	if res.Data != nil {
		// Setup the writer with proper websocket frame settings.
		w.Reset(ch.conn, state, ws.OpText)

		var err error
		if _, err = w.Write(res.Data); err == nil {
			err = w.Flush()
		}
		if err != nil {
			log.Errorf("websocket write error: %s", err)
			return
		}
	}

	if res.Flag == FlagCloseGracefully {
		ch.webSocketCloseGraceful(w, state)
	} else if res.Flag == FlagTerminate {
		ch.terminate()
	}
}

func (ch *Channel) webSocketCloseGraceful(w *wsutil.Writer, state ws.State) {
	log.Info("websocket graceful close initiated")

	w.Reset(ch.conn, state, ws.OpClose)

	var err error
	if _, err = w.Write([]byte("")); err == nil {
		err = w.Flush()
	}
	if err != nil {
		log.Errorf("websocket write error: %s", err)
	}

	ch.terminate()
}
