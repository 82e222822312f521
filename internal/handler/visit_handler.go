package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/jengzang/records-tracks-go/internal/middleware"
	"github.com/jengzang/records-tracks-go/internal/service"
	"github.com/jengzang/records-tracks-go/pkg/response"
)

// VisitHandler handles HTTP requests for visits
type VisitHandler struct {
	visitService *service.VisitService
}

// NewVisitHandler creates a new visit handler
func NewVisitHandler(visitService *service.VisitService) *VisitHandler {
	return &VisitHandler{visitService: visitService}
}

// ListVisits handles GET /api/v1/visits?from=&to=
func (h *VisitHandler) ListVisits(c *gin.Context) {
	from, to, ok := timeRange(c)
	if !ok {
		return
	}

	visits, err := h.visitService.List(c.Request.Context(), middleware.UserID(c), from, to)
	if err != nil {
		fail(c, err, "")
		return
	}
	response.Success(c, gin.H{"visits": visits, "total": len(visits)})
}
