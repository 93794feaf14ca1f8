package api

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo"

	"github.com/posturelab/posturehub/pkg/api/resource"
	"github.com/posturelab/posturehub/pkg/model"
	"github.com/posturelab/posturehub/pkg/storage"
)

func (h *Handler) handleFetchDevices(c echo.Context) error {
	m, err := h.store.Devices().FetchAll()
	if err != nil {
		return c.JSON(http.StatusInternalServerError, resource.NewError(err))
	}

	return c.JSON(http.StatusOK, resource.NewDeviceList(m))
}

func (h *Handler) handleGetDeviceByID(c echo.Context) error {
	m, err := h.findDevice(c)
	if m == nil {
		return err
	}

	return c.JSON(http.StatusOK, resource.NewDevice(m))
}

func (h *Handler) handleCreateDevice(c echo.Context) error {
	r := &resource.CreateDeviceRequest{}
	if err := c.Bind(r); err != nil {
		return c.JSON(http.StatusBadRequest, resource.NewError(err))
	}

	m, err := resource.ValidateCreateDevice(r)
	if err != nil {
		return c.JSON(http.StatusBadRequest, resource.NewError(err))
	}

	m.ID = uuid.New()
	m.APIKey = newAPIKey()

	if err := h.store.Devices().Create(m); err != nil {
		return c.JSON(http.StatusInternalServerError, resource.NewError(err))
	}

	// The only response that ever carries the API key.
	return c.JSON(http.StatusCreated, resource.NewDeviceWithKey(m))
}

func (h *Handler) handleDeleteDevice(c echo.Context) error {
	m, err := h.findDevice(c)
	if m == nil {
		return err
	}

	if err := h.store.Devices().Delete(m.ID); err != nil {
		return c.JSON(http.StatusInternalServerError, resource.NewError(err))
	}

	return c.JSON(http.StatusNoContent, nil)
}

func (h *Handler) handleClaimDevice(c echo.Context) error {
	m, err := h.findDevice(c)
	if m == nil {
		return err
	}

	r := &resource.ClaimDeviceRequest{}
	if err := c.Bind(r); err != nil {
		return c.JSON(http.StatusBadRequest, resource.NewError(err))
	}
	if r.OwnerID == "" {
		return c.JSON(http.StatusBadRequest, resource.NewError(fmt.Errorf("ownerId is required")))
	}

	if m.OwnerID != nil && *m.OwnerID != r.OwnerID {
		return c.JSON(http.StatusConflict, resource.NewError(fmt.Errorf("device is already claimed")))
	}

	ownerID := r.OwnerID
	m.OwnerID = &ownerID
	// Claiming activates the device so it can authenticate.
	m.IsActive = true
	if r.Name != "" {
		m.Name = r.Name
	}
	if err := h.store.Devices().Update(m); err != nil {
		return c.JSON(http.StatusInternalServerError, resource.NewError(err))
	}

	h.publisher.DeviceSettingsChanged(m.ID)

	return c.JSON(http.StatusOK, resource.NewDevice(m))
}

func (h *Handler) handleReleaseDevice(c echo.Context) error {
	m, err := h.findDevice(c)
	if m == nil {
		return err
	}

	if m.OwnerID != nil || m.IsActive {
		m.OwnerID = nil
		m.IsActive = false
		if err := h.store.Devices().Update(m); err != nil {
			return c.JSON(http.StatusInternalServerError, resource.NewError(err))
		}

		h.publisher.DeviceSettingsChanged(m.ID)
	}

	return c.JSON(http.StatusOK, resource.NewDevice(m))
}

func (h *Handler) handleRenameDevice(c echo.Context) error {
	m, err := h.findDevice(c)
	if m == nil {
		return err
	}

	r := &resource.RenameDeviceRequest{}
	if err := c.Bind(r); err != nil {
		return c.JSON(http.StatusBadRequest, resource.NewError(err))
	}
	if r.Name == "" {
		return c.JSON(http.StatusBadRequest, resource.NewError(fmt.Errorf("name is required")))
	}

	m.Name = r.Name
	if err := h.store.Devices().Update(m); err != nil {
		return c.JSON(http.StatusInternalServerError, resource.NewError(err))
	}

	return c.JSON(http.StatusOK, resource.NewDevice(m))
}

func (h *Handler) handleUpdateSettings(c echo.Context) error {
	m, err := h.findDevice(c)
	if m == nil {
		return err
	}

	r := &resource.UpdateSettingsRequest{}
	if err := c.Bind(r); err != nil {
		return c.JSON(http.StatusBadRequest, resource.NewError(err))
	}
	if err := resource.ValidateUpdateSettings(r); err != nil {
		return c.JSON(http.StatusBadRequest, resource.NewError(err))
	}

	m.Sensitivity = r.Sensitivity
	m.VibrationIntensity = r.VibrationIntensity
	m.AudioIntensity = r.AudioIntensity
	if err := h.store.Devices().Update(m); err != nil {
		return c.JSON(http.StatusInternalServerError, resource.NewError(err))
	}

	// Connected devices pick the new configuration up immediately.
	h.publisher.DeviceSettingsChanged(m.ID)

	return c.JSON(http.StatusOK, resource.NewDevice(m))
}

// aliveWindow is how recent the last frame of a device must be to report it
// as connected right now.
const aliveWindow = 5 * time.Second

func (h *Handler) handleGetDeviceAlive(c echo.Context) error {
	m, err := h.findDevice(c)
	if m == nil {
		return err
	}

	out := &resource.AliveResource{LastSeen: m.LastSeen}
	if m.LastSeen != nil && time.Since(*m.LastSeen) <= aliveWindow {
		out.Alive = true
	}

	return c.JSON(http.StatusOK, out)
}

func (h *Handler) handleFetchReadings(c echo.Context) error {
	m, err := h.findDevice(c)
	if m == nil {
		return err
	}

	limit := 100
	if limitParam := c.QueryParam("limit"); limitParam != "" {
		if _, err := fmt.Sscanf(limitParam, "%d", &limit); err != nil || limit < 1 {
			return c.JSON(http.StatusBadRequest, resource.NewError(fmt.Errorf("invalid limit")))
		}
	}

	readings, err := h.store.Readings().FetchByDeviceID(m.ID, limit)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, resource.NewError(err))
	}

	return c.JSON(http.StatusOK, resource.NewReadingList(readings))
}

// findDevice resolves the :id path parameter. When it returns a nil device
// the HTTP answer has already been written and the caller must bail out with
// the returned error.
func (h *Handler) findDevice(c echo.Context) (*model.Device, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return nil, c.JSON(http.StatusBadRequest, resource.NewError(fmt.Errorf("invalid device id")))
	}

	m, err := h.store.Devices().FindByID(id)
	if err != nil && err == storage.ErrNotFound {
		return nil, c.JSON(http.StatusNotFound, resource.NewError(err))
	} else if err != nil {
		return nil, c.JSON(http.StatusInternalServerError, resource.NewError(err))
	}

	return m, nil
}

func newAPIKey() string {
	return strings.ReplaceAll(uuid.New().String()+uuid.New().String(), "-", "")
}
