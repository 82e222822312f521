package analysis

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/jengzang/records-tracks-go/internal/buffer"
	"github.com/jengzang/records-tracks-go/internal/models"
	"github.com/jengzang/records-tracks-go/internal/store"
)

// Analyzer is the interface that all recomputation skills must implement
type Analyzer interface {
	// Analyze runs the skill for job.UserID with the job's window parameters.
	Analyze(ctx context.Context, job *models.Job) (*Result, error)

	// Name returns the skill name of the analyzer
	Name() string
}

// Result summarizes one analyzer run
type Result struct {
	Processed int                    // entities (tracks, visits, points) handled
	Failed    int                    // entities skipped after a recoverable error
	Summary   map[string]interface{} // stored as JSON on the job row
}

// Deps are the collaborators handed to analyzer factories
type Deps struct {
	Points    store.PointStore
	Tracks    store.TrackStore
	Visits    store.VisitStore
	Geofences store.GeofenceProvider
	Settings  store.SettingsProvider
	Buffer    buffer.Buffer

	// GracePeriod is the minimum age of a trailing point before its run is finalized.
	GracePeriod time.Duration
	// Now is the clock used for grace-period decisions; time.Now when nil.
	Now func() time.Time
}

// Clock returns d.Now, defaulting to time.Now.
func (d Deps) Clock() func() time.Time {
	if d.Now != nil {
		return d.Now
	}
	return time.Now
}

// AnalyzerFactory is a function that creates an analyzer instance
type AnalyzerFactory func(deps Deps) Analyzer

var (
	registryMu sync.RWMutex
	registry   = make(map[string]AnalyzerFactory)
)

// RegisterAnalyzer registers an analyzer factory for a skill name
func RegisterAnalyzer(skillName string, factory AnalyzerFactory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[skillName] = factory
}

// GetAnalyzer returns an analyzer for a skill name, or nil when none is registered
func GetAnalyzer(skillName string, deps Deps) Analyzer {
	registryMu.RLock()
	factory, ok := registry[skillName]
	registryMu.RUnlock()
	if !ok {
		return nil
	}
	return factory(deps)
}

// IsRegistered reports whether a skill has an analyzer
func IsRegistered(skillName string) bool {
	registryMu.RLock()
	defer registryMu.RUnlock()
	_, ok := registry[skillName]
	return ok
}

// Skills lists registered skill names in sorted order
func Skills() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
