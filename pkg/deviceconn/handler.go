// Package deviceconn serves the websocket endpoint posture sensors connect
// to. The route carries the device identifier in the path and the API key in
// the query string; everything after the upgrade is handled by the channel
// package.
package deviceconn

import (
	"github.com/gobwas/ws"
	"github.com/labstack/echo"
	log "github.com/sirupsen/logrus"

	"github.com/posturelab/posturehub/pkg/deviceconn/channel"
)

// Handler contains all properties to serve the device websocket endpoint
type Handler struct {
	ctrl *channel.Controller
}

// NewHandler create a new device connection handler
func NewHandler(ctrl *channel.Controller) *Handler {
	return &Handler{
		ctrl: ctrl,
	}
}

// RegisterRoutes attaches the handlers to the echo web server
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	log.Debug("Register deviceconn routes")
	// Devices in the field request the path both with and without the
	// trailing slash.
	e.Any("/ws/device-connection/:device_id", h.deviceChannelHandler())
	e.Any("/ws/device-connection/:device_id/", h.deviceChannelHandler())
}

func (h *Handler) deviceChannelHandler() echo.HandlerFunc {
	return func(c echo.Context) error {
		conn, _, _, err := ws.UpgradeHTTP(c.Request(), c.Response())
		if err != nil {
			return err
		}
		defer conn.Close()

		terminateCh := make(chan struct{})

		ch := h.ctrl.NewChannel(conn, terminateCh)
		defer ch.Close()

		if err := ch.Open(c.Param("device_id"), c.QueryParam("api_key")); err != nil {
			log.Infof("device connection rejected: %v", err)
			return nil
		}

		<-terminateCh

		log.Debug("handler exit device channel handler func")
		return nil
	}
}
