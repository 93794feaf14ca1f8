// Package api serves the management REST interface: device provisioning,
// claiming, settings, session control and posture data retrieval. Mutations
// that connected devices care about are fanned out through the notification
// publisher after they are persisted.
package api

import (
	"github.com/labstack/echo"
	log "github.com/sirupsen/logrus"

	"github.com/posturelab/posturehub/pkg/ingest"
	"github.com/posturelab/posturehub/pkg/notify"
	"github.com/posturelab/posturehub/pkg/registry"
	"github.com/posturelab/posturehub/pkg/sessiontrack"
	"github.com/posturelab/posturehub/pkg/storage"
)

// Handler contains all properties to serve the API
type Handler struct {
	store     storage.Interface
	registry  *registry.Registry
	tracker   *sessiontrack.Tracker
	ingestor  *ingest.Ingestor
	publisher *notify.Publisher
}

// NewHandler create a new API handler
func NewHandler(store storage.Interface, reg *registry.Registry,
	tracker *sessiontrack.Tracker, ing *ingest.Ingestor,
	pub *notify.Publisher) *Handler {
	return &Handler{
		store:     store,
		registry:  reg,
		tracker:   tracker,
		ingestor:  ing,
		publisher: pub,
	}
}

// RegisterRoutes attaches the handlers to the echo web server
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	log.Debug("Register API routes")
	api := e.Group("/api/v1")

	api.GET("/devices", h.handleFetchDevices)
	api.POST("/devices", h.handleCreateDevice)
	api.GET("/devices/:id", h.handleGetDeviceByID)
	api.DELETE("/devices/:id", h.handleDeleteDevice)
	api.POST("/devices/:id/claim", h.handleClaimDevice)
	api.POST("/devices/:id/release", h.handleReleaseDevice)
	api.PUT("/devices/:id/name", h.handleRenameDevice)
	api.PUT("/devices/:id/settings", h.handleUpdateSettings)

	api.PUT("/devices/:id/session/start", h.handleStartSession)
	api.PUT("/devices/:id/session/stop", h.handleStopSession)
	api.GET("/devices/:id/session", h.handleGetSessionStatus)
	api.GET("/devices/:id/alive", h.handleGetDeviceAlive)
	api.GET("/devices/:id/readings", h.handleFetchReadings)

	api.GET("/sessions", h.handleFetchSessions)

	api.POST("/posture-data", h.handleSubmitPostureData)
}
