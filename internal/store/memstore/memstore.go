// Package memstore is an in-memory implementation of every store interface.
// It is used by engine tests and by dry runs that must not touch sqlite.
package memstore

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/jengzang/records-tracks-go/internal/models"
	"github.com/jengzang/records-tracks-go/internal/store"
)

// Store keeps all entities in maps guarded by one mutex. Every method copies
// values in and out so callers never share memory with the store.
type Store struct {
	mu sync.Mutex

	points    map[int64]*models.Point
	tracks    map[int64]*models.Track
	segments  map[int64][]models.TrackSegment
	visits    map[int64]*models.Visit
	geofences map[int64][]models.Geofence
	settings  map[int64]models.UserSettings
	jobs      map[int64]*models.Job

	nextPoint int64
	nextTrack int64
	nextSeg   int64
	nextVisit int64
	nextJob   int64
	nextFence int64

	// FailNextWrite, when set, makes the next mutating call return it without
	// applying any change. Used to exercise rollback paths.
	FailNextWrite error
}

var (
	_ store.PointStore    = (*Store)(nil)
	_ store.TrackStore    = (*Store)(nil)
	_ store.VisitStore    = (*Store)(nil)
	_ store.GeofenceStore = (*Store)(nil)
	_ store.SettingsStore = (*Store)(nil)
	_ store.JobStore      = (*Store)(nil)
)

// New returns an empty store.
func New() *Store {
	return &Store{
		points:    make(map[int64]*models.Point),
		tracks:    make(map[int64]*models.Track),
		segments:  make(map[int64][]models.TrackSegment),
		visits:    make(map[int64]*models.Visit),
		geofences: make(map[int64][]models.Geofence),
		settings:  make(map[int64]models.UserSettings),
		jobs:      make(map[int64]*models.Job),
	}
}

func (s *Store) failed() error {
	if err := s.FailNextWrite; err != nil {
		s.FailNextWrite = nil
		return err
	}
	return nil
}

// AddPoints inserts points, assigning ids to those without one. Returns the
// stored points in input order.
func (s *Store) AddPoints(points ...models.Point) []models.Point {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]models.Point, len(points))
	for i, p := range points {
		if p.ID == 0 {
			s.nextPoint++
			p.ID = s.nextPoint
		} else if p.ID > s.nextPoint {
			s.nextPoint = p.ID
		}
		cp := p
		s.points[p.ID] = &cp
		out[i] = p
	}
	return out
}

// Point returns a copy of the stored point.
func (s *Store) Point(id int64) (models.Point, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.points[id]
	if !ok {
		return models.Point{}, false
	}
	return *p, true
}

// AddGeofence registers a geofence for its user and assigns an id when missing.
func (s *Store) AddGeofence(g models.Geofence) models.Geofence {
	s.mu.Lock()
	defer s.mu.Unlock()
	if g.ID == 0 {
		s.nextFence++
		g.ID = s.nextFence
	} else if g.ID > s.nextFence {
		s.nextFence = g.ID
	}
	s.geofences[g.UserID] = append(s.geofences[g.UserID], g)
	return g
}

// AddTrack stores a pre-built track and assigns the given points to it.
func (s *Store) AddTrack(t models.Track, pointIDs []int64) models.Track {
	if err := s.CreateTrack(context.Background(), &t, pointIDs, nil); err != nil {
		panic(err)
	}
	return t
}

// Tracks returns all tracks of a user ordered by start_at.
func (s *Store) Tracks(userID int64) []models.Track {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tracksWhere(userID, func(models.Track) bool { return true })
}

// Visits returns all visits of a user ordered by started_at.
func (s *Store) Visits(userID int64) []models.Visit {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.visitsWhere(userID, nil, nil)
}

func usable(p *models.Point) bool {
	return p.Timestamp > 0 && !math.IsNaN(p.Latitude) && !math.IsNaN(p.Longitude)
}

func matches(p *models.Point, q store.PointQuery) bool {
	switch {
	case p.UserID != q.UserID || !usable(p):
		return false
	case q.From != nil && p.Timestamp < *q.From:
		return false
	case q.To != nil && p.Timestamp > *q.To:
		return false
	case q.After != nil && p.Timestamp <= *q.After:
		return false
	case q.UnassignedOnly && p.TrackID != nil:
		return false
	}
	return true
}

// FindPoints implements store.PointStore.
func (s *Store) FindPoints(_ context.Context, q store.PointQuery) ([]models.Point, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []models.Point
	for _, p := range s.points {
		if matches(p, q) {
			out = append(out, *p)
		}
	}
	sortPoints(out)
	return out, nil
}

// PointSpan implements store.PointStore.
func (s *Store) PointSpan(_ context.Context, q store.PointQuery) (first, last int64, ok bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, p := range s.points {
		if !matches(p, q) {
			continue
		}
		if !ok || p.Timestamp < first {
			first = p.Timestamp
		}
		if !ok || p.Timestamp > last {
			last = p.Timestamp
		}
		ok = true
	}
	return first, last, ok, nil
}

func sortPoints(points []models.Point) {
	sort.Slice(points, func(i, j int) bool {
		if points[i].Timestamp != points[j].Timestamp {
			return points[i].Timestamp < points[j].Timestamp
		}
		return points[i].ID < points[j].ID
	})
}

func (s *Store) tracksWhere(userID int64, keep func(models.Track) bool) []models.Track {
	var out []models.Track
	for _, t := range s.tracks {
		if t.UserID == userID && keep(*t) {
			cp := *t
			cp.PointCount = s.countTrackPoints(t.ID)
			out = append(out, cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartAt != out[j].StartAt {
			return out[i].StartAt < out[j].StartAt
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (s *Store) countTrackPoints(trackID int64) int {
	n := 0
	for _, p := range s.points {
		if p.TrackID != nil && *p.TrackID == trackID {
			n++
		}
	}
	return n
}

// TracksWithin implements store.TrackStore.
func (s *Store) TracksWithin(_ context.Context, userID int64, from, to *int64) ([]models.Track, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tracksWhere(userID, func(t models.Track) bool {
		return (from == nil || t.StartAt >= *from) && (to == nil || t.EndAt <= *to)
	}), nil
}

// TracksOverlapping implements store.TrackStore.
func (s *Store) TracksOverlapping(_ context.Context, userID int64, start, end int64) ([]models.Track, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tracksWhere(userID, func(t models.Track) bool { return t.Overlaps(start, end) }), nil
}

// LatestTrack implements store.TrackStore.
func (s *Store) LatestTrack(_ context.Context, userID int64, start, end int64) (*models.Track, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tracks := s.tracksWhere(userID, func(t models.Track) bool {
		return t.StartAt <= end && t.EndAt >= start
	})
	if len(tracks) == 0 {
		return nil, nil
	}
	latest := tracks[0]
	for _, t := range tracks[1:] {
		if t.EndAt > latest.EndAt {
			latest = t
		}
	}
	return &latest, nil
}

// GetTrack implements store.TrackStore.
func (s *Store) GetTrack(_ context.Context, userID, trackID int64) (*models.Track, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tracks[trackID]
	if !ok || t.UserID != userID {
		return nil, store.ErrNotFound
	}
	cp := *t
	cp.PointCount = s.countTrackPoints(t.ID)
	cp.Segments = append([]models.TrackSegment(nil), s.segments[t.ID]...)
	return &cp, nil
}

// TrackPoints implements store.TrackStore.
func (s *Store) TrackPoints(_ context.Context, trackID int64) ([]models.Point, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Point
	for _, p := range s.points {
		if p.TrackID != nil && *p.TrackID == trackID {
			out = append(out, *p)
		}
	}
	sortPoints(out)
	return out, nil
}

// CreateTrack implements store.TrackStore.
func (s *Store) CreateTrack(_ context.Context, track *models.Track, pointIDs []int64, segments []models.TrackSegment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failed(); err != nil {
		return err
	}

	s.nextTrack++
	track.ID = s.nextTrack
	now := time.Now()
	track.CreatedAt, track.UpdatedAt = now, now
	cp := *track
	cp.Segments = nil
	s.tracks[track.ID] = &cp

	id := track.ID
	for _, pid := range pointIDs {
		if p, ok := s.points[pid]; ok {
			tid := id
			p.TrackID = &tid
		}
	}
	s.segments[id] = s.numberSegments(id, segments)
	return nil
}

func (s *Store) numberSegments(trackID int64, segments []models.TrackSegment) []models.TrackSegment {
	out := make([]models.TrackSegment, len(segments))
	for i, seg := range segments {
		s.nextSeg++
		seg.ID = s.nextSeg
		seg.TrackID = trackID
		out[i] = seg
	}
	return out
}

// DeleteTracks implements store.TrackStore.
func (s *Store) DeleteTracks(_ context.Context, userID int64, trackIDs []int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failed(); err != nil {
		return err
	}

	doomed := make(map[int64]bool, len(trackIDs))
	for _, id := range trackIDs {
		if t, ok := s.tracks[id]; ok && t.UserID == userID {
			doomed[id] = true
		}
	}
	for _, p := range s.points {
		if p.TrackID != nil && doomed[*p.TrackID] {
			p.TrackID = nil
		}
	}
	for id := range doomed {
		delete(s.tracks, id)
		delete(s.segments, id)
	}
	return nil
}

// ApplyTrim implements store.TrackStore.
func (s *Store) ApplyTrim(_ context.Context, trim store.TrackTrim) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failed(); err != nil {
		return err
	}

	t, ok := s.tracks[trim.TrackID]
	if !ok {
		return store.ErrNotFound
	}
	for _, pid := range trim.DetachPointIDs {
		if p, ok := s.points[pid]; ok && p.TrackID != nil && *p.TrackID == trim.TrackID {
			p.TrackID = nil
		}
	}
	if trim.Delete {
		for _, p := range s.points {
			if p.TrackID != nil && *p.TrackID == trim.TrackID {
				p.TrackID = nil
			}
		}
		delete(s.tracks, trim.TrackID)
		delete(s.segments, trim.TrackID)
		return nil
	}
	r := trim.Rebuilt
	t.StartAt, t.EndAt, t.Duration = r.StartAt, r.EndAt, r.Duration
	t.Distance, t.AvgSpeed = r.Distance, r.AvgSpeed
	t.ElevationGain, t.ElevationLoss = r.ElevationGain, r.ElevationLoss
	t.ElevationMax, t.ElevationMin = r.ElevationMax, r.ElevationMin
	t.DominantMode, t.Path = r.DominantMode, r.Path
	t.UpdatedAt = time.Now()
	s.segments[trim.TrackID] = s.numberSegments(trim.TrackID, trim.Segments)
	return nil
}

// ReplaceSegments implements store.TrackStore.
func (s *Store) ReplaceSegments(_ context.Context, trackID int64, dominantMode string, segments []models.TrackSegment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failed(); err != nil {
		return err
	}
	t, ok := s.tracks[trackID]
	if !ok {
		return store.ErrNotFound
	}
	t.DominantMode = dominantMode
	t.UpdatedAt = time.Now()
	s.segments[trackID] = s.numberSegments(trackID, segments)
	return nil
}

// ListSegments implements store.TrackStore.
func (s *Store) ListSegments(_ context.Context, trackID int64) ([]models.TrackSegment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.TrackSegment(nil), s.segments[trackID]...), nil
}

// FindVisit implements store.VisitStore.
func (s *Store) FindVisit(_ context.Context, key models.VisitKey) (*models.Visit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, v := range s.visits {
		if v.Key() == key {
			cp := *v
			return &cp, nil
		}
	}
	return nil, nil
}

// SaveVisit implements store.VisitStore.
func (s *Store) SaveVisit(_ context.Context, visit *models.Visit, pointIDs []int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failed(); err != nil {
		return err
	}

	now := time.Now()
	if visit.ID == 0 {
		s.nextVisit++
		visit.ID = s.nextVisit
		visit.CreatedAt = now
	}
	visit.UpdatedAt = now
	cp := *visit
	s.visits[visit.ID] = &cp

	keep := make(map[int64]bool, len(pointIDs))
	for _, id := range pointIDs {
		keep[id] = true
	}
	vid := visit.ID
	for id, p := range s.points {
		switch {
		case keep[id]:
			v := vid
			p.VisitID = &v
		case p.VisitID != nil && *p.VisitID == vid:
			p.VisitID = nil
		}
	}
	return nil
}

func (s *Store) visitsWhere(userID int64, from, to *int64) []models.Visit {
	var out []models.Visit
	for _, v := range s.visits {
		if v.UserID != userID {
			continue
		}
		if from != nil && v.EndedAt < *from {
			continue
		}
		if to != nil && v.StartedAt > *to {
			continue
		}
		cp := *v
		for _, p := range s.points {
			if p.VisitID != nil && *p.VisitID == v.ID {
				cp.PointCount++
			}
		}
		out = append(out, cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartedAt != out[j].StartedAt {
			return out[i].StartedAt < out[j].StartedAt
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// ListVisits implements store.VisitStore.
func (s *Store) ListVisits(_ context.Context, userID int64, from, to *int64) ([]models.Visit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.visitsWhere(userID, from, to), nil
}

// VisitPointIDs implements store.VisitStore.
func (s *Store) VisitPointIDs(_ context.Context, visitID int64) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []int64
	for id, p := range s.points {
		if p.VisitID != nil && *p.VisitID == visitID {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

// ListGeofences implements store.GeofenceProvider.
func (s *Store) ListGeofences(_ context.Context, userID int64) ([]models.Geofence, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Geofence(nil), s.geofences[userID]...), nil
}

// CreateGeofence implements store.GeofenceStore.
func (s *Store) CreateGeofence(_ context.Context, g *models.Geofence) error {
	if err := s.takeFailure(); err != nil {
		return err
	}
	*g = s.AddGeofence(*g)
	return nil
}

func (s *Store) takeFailure() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failed()
}

// UserSettings implements store.SettingsProvider.
func (s *Store) UserSettings(_ context.Context, userID int64) (models.UserSettings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.settings[userID]; ok {
		return st.WithDefaults(), nil
	}
	return models.DefaultUserSettings(), nil
}

// SaveUserSettings implements store.SettingsStore.
func (s *Store) SaveUserSettings(_ context.Context, userID int64, settings models.UserSettings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failed(); err != nil {
		return err
	}
	s.settings[userID] = settings
	return nil
}
