package handler

import (
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/jengzang/records-tracks-go/internal/logging"
	"github.com/jengzang/records-tracks-go/internal/service"
	"github.com/jengzang/records-tracks-go/internal/store"
	"github.com/jengzang/records-tracks-go/pkg/response"
)

// fail maps service and store errors to responses.
func fail(c *gin.Context, err error, notFound string) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		response.NotFound(c, notFound)
	case errors.Is(err, service.ErrInvalidJob),
		errors.Is(err, service.ErrInvalidRange),
		errors.Is(err, service.ErrInvalidSettings),
		errors.Is(err, service.ErrInvalidGeofence):
		response.BadRequest(c, err.Error())
	case errors.Is(err, service.ErrQueueFull):
		response.ServiceUnavailable(c, err.Error())
	default:
		_ = c.Error(err)
		logging.Error().Err(err).Str("path", c.FullPath()).Msg("request failed")
		response.InternalError(c, "Internal server error")
	}
}

// paramID parses the :id path parameter.
func paramID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		response.BadRequest(c, "Invalid ID")
		return 0, false
	}
	return id, true
}

// timeRange parses optional unix "from" and "to" query parameters.
func timeRange(c *gin.Context) (from, to *int64, ok bool) {
	parse := func(name string) (*int64, bool) {
		raw := c.Query(name)
		if raw == "" {
			return nil, true
		}
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			response.BadRequest(c, "Invalid "+name+" parameter")
			return nil, false
		}
		return &v, true
	}
	if from, ok = parse("from"); !ok {
		return nil, nil, false
	}
	if to, ok = parse("to"); !ok {
		return nil, nil, false
	}
	return from, to, true
}
