package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/jengzang/records-tracks-go/internal/middleware"
	"github.com/jengzang/records-tracks-go/internal/service"
	"github.com/jengzang/records-tracks-go/pkg/response"
)

// TrackHandler handles HTTP requests for tracks
type TrackHandler struct {
	trackService *service.TrackService
}

// NewTrackHandler creates a new track handler
func NewTrackHandler(trackService *service.TrackService) *TrackHandler {
	return &TrackHandler{trackService: trackService}
}

// ListTracks handles GET /api/v1/tracks?from=&to=
func (h *TrackHandler) ListTracks(c *gin.Context) {
	from, to, ok := timeRange(c)
	if !ok {
		return
	}

	tracks, err := h.trackService.List(c.Request.Context(), middleware.UserID(c), from, to)
	if err != nil {
		fail(c, err, "")
		return
	}
	response.Success(c, gin.H{"tracks": tracks, "total": len(tracks)})
}

// GetTrack handles GET /api/v1/tracks/:id
func (h *TrackHandler) GetTrack(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}

	track, err := h.trackService.Get(c.Request.Context(), middleware.UserID(c), id)
	if err != nil {
		fail(c, err, "Track not found")
		return
	}
	response.Success(c, track)
}
