package tracks

import (
	"context"
	"fmt"
	"time"

	"github.com/jengzang/records-tracks-go/internal/buffer"
	"github.com/jengzang/records-tracks-go/internal/models"
)

// DefaultGracePeriod is how old the last point of a trailing run must be
// before the run is finalized by a BufferHandler.
const DefaultGracePeriod = 5 * time.Minute

// IncompleteSegmentHandler decides the fate of the trailing run of a pipeline.
type IncompleteSegmentHandler interface {
	// ShouldFinalize reports whether the run can become a track now.
	ShouldFinalize(run []models.Point) bool
	// Defer keeps the run for a later pass.
	Defer(ctx context.Context, run []models.Point) error
	// Finalized is called after the trailing run was handled as final.
	Finalized(ctx context.Context) error
}

// BufferHandler defers trailing runs younger than the grace period into the
// side buffer of (user, day).
type BufferHandler struct {
	buf    buffer.Buffer
	userID int64
	day    string
	grace  time.Duration
	now    func() time.Time
}

// NewBufferHandler creates a handler. A non-positive grace uses DefaultGracePeriod,
// a nil clock uses time.Now.
func NewBufferHandler(buf buffer.Buffer, userID int64, day string, grace time.Duration, now func() time.Time) *BufferHandler {
	if grace <= 0 {
		grace = DefaultGracePeriod
	}
	if now == nil {
		now = time.Now
	}
	return &BufferHandler{buf: buf, userID: userID, day: day, grace: grace, now: now}
}

// ShouldFinalize implements IncompleteSegmentHandler.
func (h *BufferHandler) ShouldFinalize(run []models.Point) bool {
	if len(run) == 0 {
		return true
	}
	cutoff := h.now().Add(-h.grace).Unix()
	return run[len(run)-1].Timestamp < cutoff
}

// Defer implements IncompleteSegmentHandler.
func (h *BufferHandler) Defer(ctx context.Context, run []models.Point) error {
	if err := h.buf.Store(ctx, h.userID, h.day, run); err != nil {
		return fmt.Errorf("failed to buffer trailing run: %w", err)
	}
	return nil
}

// Finalized implements IncompleteSegmentHandler by clearing the day's buffer.
func (h *BufferHandler) Finalized(ctx context.Context) error {
	if err := h.buf.Clear(ctx, h.userID, h.day); err != nil {
		return fmt.Errorf("failed to clear side buffer: %w", err)
	}
	return nil
}

// IgnoreHandler always finalizes. Used for closed historical windows where
// no more points can arrive.
type IgnoreHandler struct{}

// ShouldFinalize implements IncompleteSegmentHandler.
func (IgnoreHandler) ShouldFinalize([]models.Point) bool { return true }

// Defer implements IncompleteSegmentHandler.
func (IgnoreHandler) Defer(context.Context, []models.Point) error { return nil }

// Finalized implements IncompleteSegmentHandler.
func (IgnoreHandler) Finalized(context.Context) error { return nil }
