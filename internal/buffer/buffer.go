// Package buffer holds trailing track runs that were too fresh to finalize,
// keyed by user and UTC day, until a later incremental run picks them up.
package buffer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jengzang/records-tracks-go/internal/models"
)

// DefaultTTL is how long a buffered run survives without being cleared.
const DefaultTTL = 7 * 24 * time.Hour

// Buffer is the side-buffer contract. Only one pipeline per (user, day) may
// use a key at a time; callers serialize runs per user.
type Buffer interface {
	// Store replaces the buffered run for (user, day).
	Store(ctx context.Context, userID int64, day string, points []models.Point) error
	// Retrieve returns the buffered run, or nil when nothing is buffered.
	Retrieve(ctx context.Context, userID int64, day string) ([]models.Point, error)
	// Clear removes the buffered run. Clearing an empty key is not an error.
	Clear(ctx context.Context, userID int64, day string) error
}

// Key returns the storage key for (user, day).
func Key(userID int64, day string) string {
	return fmt.Sprintf("track_buffer:%d:%s", userID, day)
}

// MemoryBuffer keeps buffered runs in a map. Useful for tests and for
// deployments without a buffer directory.
type MemoryBuffer struct {
	mu   sync.Mutex
	runs map[string][]models.Point
}

// NewMemoryBuffer creates an empty in-memory buffer.
func NewMemoryBuffer() *MemoryBuffer {
	return &MemoryBuffer{runs: make(map[string][]models.Point)}
}

// Store implements Buffer.
func (b *MemoryBuffer) Store(_ context.Context, userID int64, day string, points []models.Point) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.runs[Key(userID, day)] = append([]models.Point(nil), points...)
	return nil
}

// Retrieve implements Buffer.
func (b *MemoryBuffer) Retrieve(_ context.Context, userID int64, day string) ([]models.Point, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	pts, ok := b.runs[Key(userID, day)]
	if !ok {
		return nil, nil
	}
	return append([]models.Point(nil), pts...), nil
}

// Clear implements Buffer.
func (b *MemoryBuffer) Clear(_ context.Context, userID int64, day string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.runs, Key(userID, day))
	return nil
}
