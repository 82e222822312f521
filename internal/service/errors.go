package service

import "errors"

// Validation and capacity errors. Handlers map them to 4xx/503 responses.
var (
	ErrInvalidJob      = errors.New("invalid job")
	ErrQueueFull       = errors.New("job queue is full")
	ErrInvalidRange    = errors.New("invalid time range")
	ErrInvalidSettings = errors.New("invalid settings")
	ErrInvalidGeofence = errors.New("invalid geofence")
)
