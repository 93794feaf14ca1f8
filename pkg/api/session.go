package api

import (
	"net/http"

	"github.com/labstack/echo"

	"github.com/posturelab/posturehub/pkg/api/resource"
	"github.com/posturelab/posturehub/pkg/bus"
	"github.com/posturelab/posturehub/pkg/sessiontrack"
	"github.com/posturelab/posturehub/pkg/storage"
)

func (h *Handler) handleFetchSessions(c echo.Context) error {
	m, err := h.store.Sessions().FetchAll()
	if err != nil {
		return c.JSON(http.StatusInternalServerError, resource.NewError(err))
	}

	return c.JSON(http.StatusOK, resource.NewSessionList(m))
}

func (h *Handler) handleStartSession(c echo.Context) error {
	device, err := h.findDevice(c)
	if device == nil {
		return err
	}

	sess, created, err := h.tracker.Start(device.ID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, resource.NewError(err))
	}

	if !created {
		// Idempotent: the already active session is returned unchanged.
		return c.JSON(http.StatusOK, resource.NewSession(sess))
	}

	h.publisher.SessionStatusChanged(device.ID, bus.ActionStart)

	return c.JSON(http.StatusCreated, resource.NewSession(sess))
}

func (h *Handler) handleStopSession(c echo.Context) error {
	device, err := h.findDevice(c)
	if device == nil {
		return err
	}

	sess, err := h.tracker.Stop(device.ID)
	if err == sessiontrack.ErrNoActiveSession {
		return c.JSON(http.StatusNotFound, resource.NewError(err))
	} else if err != nil {
		return c.JSON(http.StatusInternalServerError, resource.NewError(err))
	}

	h.publisher.SessionStatusChanged(device.ID, bus.ActionStop)

	return c.JSON(http.StatusOK, resource.NewSession(sess))
}

func (h *Handler) handleGetSessionStatus(c echo.Context) error {
	device, err := h.findDevice(c)
	if device == nil {
		return err
	}

	sess, err := h.store.Sessions().FindActiveByDeviceID(device.ID)
	if err == storage.ErrNotFound {
		return c.JSON(http.StatusOK, &resource.SessionStatusResource{})
	} else if err != nil {
		return c.JSON(http.StatusInternalServerError, resource.NewError(err))
	}

	return c.JSON(http.StatusOK, &resource.SessionStatusResource{
		HasActiveSession: true,
		Session:          resource.NewSession(sess),
	})
}
