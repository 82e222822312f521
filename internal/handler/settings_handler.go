package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/jengzang/records-tracks-go/internal/middleware"
	"github.com/jengzang/records-tracks-go/internal/models"
	"github.com/jengzang/records-tracks-go/internal/service"
	"github.com/jengzang/records-tracks-go/pkg/response"
)

// SettingsHandler handles HTTP requests for user thresholds
type SettingsHandler struct {
	settingsService *service.SettingsService
}

// NewSettingsHandler creates a new settings handler
func NewSettingsHandler(settingsService *service.SettingsService) *SettingsHandler {
	return &SettingsHandler{settingsService: settingsService}
}

// GetSettings handles GET /api/v1/settings
func (h *SettingsHandler) GetSettings(c *gin.Context) {
	settings, err := h.settingsService.Get(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		fail(c, err, "")
		return
	}
	response.Success(c, settings)
}

// UpdateSettings handles PUT /api/v1/settings
func (h *SettingsHandler) UpdateSettings(c *gin.Context) {
	var in models.UserSettings
	if err := c.ShouldBindJSON(&in); err != nil {
		response.BadRequest(c, "Invalid request body")
		return
	}

	settings, err := h.settingsService.Update(c.Request.Context(), middleware.UserID(c), in)
	if err != nil {
		fail(c, err, "")
		return
	}
	response.Success(c, settings)
}
