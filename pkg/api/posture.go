package api

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo"

	"github.com/posturelab/posturehub/pkg/api/resource"
	"github.com/posturelab/posturehub/pkg/ingest"
	"github.com/posturelab/posturehub/pkg/registry"
	"github.com/posturelab/posturehub/pkg/sessiontrack"
)

type submitPostureDataRequest struct {
	Components []ingest.ComponentInput `json:"components"`
}

// handleSubmitPostureData is the HTTP fallback for devices without an open
// websocket. The device authenticates itself with the same credentials it
// would use on the websocket handshake, carried in headers.
func (h *Handler) handleSubmitPostureData(c echo.Context) error {
	deviceID := c.Request().Header.Get("X-Device-ID")
	apiKey := c.Request().Header.Get("X-API-KEY")
	if deviceID == "" || apiKey == "" {
		return c.JSON(http.StatusUnauthorized, resource.NewError(fmt.Errorf("missing device credentials")))
	}

	device, err := h.registry.Authenticate(deviceID, apiKey)
	if err != nil {
		if registry.IsAuthError(err) {
			return c.JSON(http.StatusUnauthorized, resource.NewError(err))
		}
		return c.JSON(http.StatusInternalServerError, resource.NewError(err))
	}

	r := &submitPostureDataRequest{}
	if err := c.Bind(r); err != nil {
		return c.JSON(http.StatusBadRequest, resource.NewError(err))
	}

	reading, err := h.ingestor.Submit(device.ID, r.Components)
	if err == sessiontrack.ErrNoActiveSession {
		return c.JSON(http.StatusBadRequest, resource.NewError(err))
	} else if ingest.IsValidationError(err) {
		return c.JSON(http.StatusBadRequest, resource.NewError(err))
	} else if err != nil {
		return c.JSON(http.StatusInternalServerError, resource.NewError(err))
	}

	return c.JSON(http.StatusCreated, resource.NewReading(reading))
}
