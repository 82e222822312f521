package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/jengzang/records-tracks-go/internal/middleware"
	"github.com/jengzang/records-tracks-go/internal/service"
	"github.com/jengzang/records-tracks-go/pkg/response"
)

// JobHandler handles HTTP requests for recomputation jobs
type JobHandler struct {
	service *service.JobService
}

// NewJobHandler creates a new job handler
func NewJobHandler(service *service.JobService) *JobHandler {
	return &JobHandler{service: service}
}

// CreateJob queues a recomputation for the caller
// POST /api/v1/jobs
func (h *JobHandler) CreateJob(c *gin.Context) {
	var req service.CreateJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request body")
		return
	}

	job, err := h.service.Create(c.Request.Context(), middleware.UserID(c), req)
	if err != nil {
		fail(c, err, "")
		return
	}
	response.Accepted(c, job)
}

// GetJob retrieves a job by ID
// GET /api/v1/jobs/:id
func (h *JobHandler) GetJob(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}

	job, err := h.service.Get(c.Request.Context(), middleware.UserID(c), id)
	if err != nil {
		fail(c, err, "Job not found")
		return
	}
	response.Success(c, job)
}

// ListJobs lists the caller's jobs
// GET /api/v1/jobs?status=&limit=&offset=
func (h *JobHandler) ListJobs(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if err != nil {
		limit = 20
	}
	offset, err := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if err != nil {
		offset = 0
	}

	jobs, err := h.service.List(c.Request.Context(), middleware.UserID(c), c.Query("status"), limit, offset)
	if err != nil {
		fail(c, err, "")
		return
	}
	response.Success(c, gin.H{
		"jobs":   jobs,
		"limit":  limit,
		"offset": offset,
	})
}
