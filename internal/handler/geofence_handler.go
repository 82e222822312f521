package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/jengzang/records-tracks-go/internal/middleware"
	"github.com/jengzang/records-tracks-go/internal/models"
	"github.com/jengzang/records-tracks-go/internal/service"
	"github.com/jengzang/records-tracks-go/pkg/response"
)

// GeofenceHandler handles HTTP requests for areas and places
type GeofenceHandler struct {
	geofenceService *service.GeofenceService
}

// NewGeofenceHandler creates a new geofence handler
func NewGeofenceHandler(geofenceService *service.GeofenceService) *GeofenceHandler {
	return &GeofenceHandler{geofenceService: geofenceService}
}

// ListGeofences handles GET /api/v1/geofences
func (h *GeofenceHandler) ListGeofences(c *gin.Context) {
	fences, err := h.geofenceService.List(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		fail(c, err, "")
		return
	}
	response.Success(c, fences)
}

// CreateGeofence handles POST /api/v1/geofences
func (h *GeofenceHandler) CreateGeofence(c *gin.Context) {
	var in models.Geofence
	if err := c.ShouldBindJSON(&in); err != nil {
		response.BadRequest(c, "Invalid request body")
		return
	}

	g, err := h.geofenceService.Create(c.Request.Context(), middleware.UserID(c), in)
	if err != nil {
		fail(c, err, "")
		return
	}
	response.Created(c, g)
}
