package buffer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/jengzang/records-tracks-go/internal/logging"
	"github.com/jengzang/records-tracks-go/internal/models"
)

// BadgerBuffer persists buffered runs in BadgerDB so they survive restarts.
// Entries expire after the configured TTL.
type BadgerBuffer struct {
	db  *badger.DB
	ttl time.Duration
}

// NewBadgerBuffer wraps an open BadgerDB. A non-positive ttl uses DefaultTTL.
func NewBadgerBuffer(db *badger.DB, ttl time.Duration) *BadgerBuffer {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &BadgerBuffer{db: db, ttl: ttl}
}

// Open opens a BadgerDB at path, or an in-memory one when inMemory is set.
func Open(path string, inMemory bool) (*badger.DB, error) {
	opts := badger.DefaultOptions(path)
	if inMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	}
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}
	return db, nil
}

// Store implements Buffer.
func (b *BadgerBuffer) Store(_ context.Context, userID int64, day string, points []models.Point) error {
	data, err := json.Marshal(points)
	if err != nil {
		return fmt.Errorf("marshal buffered points: %w", err)
	}

	return b.db.Update(func(txn *badger.Txn) error {
		return txn.SetEntry(badger.NewEntry([]byte(Key(userID, day)), data).WithTTL(b.ttl))
	})
}

// Retrieve implements Buffer.
func (b *BadgerBuffer) Retrieve(_ context.Context, userID int64, day string) ([]models.Point, error) {
	var points []models.Point

	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(Key(userID, day)))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &points)
		})
	})
	if err != nil {
		return nil, fmt.Errorf("retrieve buffered points: %w", err)
	}
	return points, nil
}

// Clear implements Buffer.
func (b *BadgerBuffer) Clear(_ context.Context, userID int64, day string) error {
	return b.db.Update(func(txn *badger.Txn) error {
		err := txn.Delete([]byte(Key(userID, day)))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		return err
	})
}

// RunGC rewrites value log files until nothing is left to reclaim. In-memory
// databases have no value log and return nil.
func (b *BadgerBuffer) RunGC() error {
	for {
		err := b.db.RunValueLogGC(0.5)
		switch {
		case errors.Is(err, badger.ErrNoRewrite), errors.Is(err, badger.ErrGCInMemoryMode):
			return nil
		case err != nil:
			return fmt.Errorf("run value log gc: %w", err)
		}
	}
}

// GCService runs RunGC periodically under the supervisor.
type GCService struct {
	buf      *BadgerBuffer
	interval time.Duration
}

// NewGCService creates a GC loop; a non-positive interval uses 10 minutes.
func NewGCService(buf *BadgerBuffer, interval time.Duration) *GCService {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	return &GCService{buf: buf, interval: interval}
}

// Serve implements suture.Service.
func (s *GCService) Serve(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := s.buf.RunGC(); err != nil {
				logging.Warn().Err(err).Str("component", "buffer").Msg("badger gc failed")
			}
		}
	}
}

// String implements fmt.Stringer for supervisor logs.
func (s *GCService) String() string {
	return "buffer-gc"
}
