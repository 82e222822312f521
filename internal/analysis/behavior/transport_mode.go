package behavior

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/jengzang/records-tracks-go/internal/models"
	"github.com/jengzang/records-tracks-go/internal/spatial"
)

// ErrUnorderedPoints is returned when a track's points go back in time.
var ErrUnorderedPoints = errors.New("points are not ordered by timestamp")

// ErrInvalidCoordinates is returned for points with non-finite coordinates.
var ErrInvalidCoordinates = errors.New("point has invalid coordinates")

const (
	// hintConfidence is assigned to intervals classified from an activity hint.
	hintConfidence = 0.95
	// smoothAcceleration (m/s²) separates rail travel from road traffic at equal speed.
	smoothAcceleration = 0.15
	// runningMaxFactor bounds running speed as a multiple of the walking maximum.
	runningMaxFactor = 2.0
)

// activityHints maps import payload activity names to transportation modes.
var activityHints = map[string]string{
	"still":      models.ModeStationary,
	"stationary": models.ModeStationary,
	"on_foot":    models.ModeWalking,
	"walking":    models.ModeWalking,
	"running":    models.ModeRunning,
	"on_bicycle": models.ModeCycling,
	"cycling":    models.ModeCycling,
	"in_vehicle": models.ModeDriving,
	"driving":    models.ModeDriving,
	"automotive": models.ModeDriving,
	"in_bus":     models.ModeBus,
	"bus":        models.ModeBus,
	"in_train":   models.ModeTrain,
	"train":      models.ModeTrain,
	"flying":     models.ModeFlying,
	"plane":      models.ModeFlying,
	"boat":       models.ModeBoat,
	"motorcycle": models.ModeMotorcycle,
}

// HintMode maps an activity hint to a mode. ok is false for empty or unknown hints.
func HintMode(activity string) (mode string, ok bool) {
	mode, ok = activityHints[strings.ToLower(strings.TrimSpace(activity))]
	return mode, ok
}

// Detector classifies a track's inter-point intervals into transportation
// mode segments using one user's threshold tables.
type Detector struct {
	basic  models.TransportationThresholds
	expert models.TransportationExpertThresholds
}

// NewDetector creates a detector for the given settings; unset thresholds use defaults.
func NewDetector(settings models.UserSettings) *Detector {
	s := settings.WithDefaults()
	return &Detector{basic: s.TransportationThresholds, expert: s.TransportationExpertThresholds}
}

// Classification is the outcome of Detect.
type Classification struct {
	DominantMode string
	Segments     []models.TrackSegment
}

// interval is the movement between point i and point i+1.
type interval struct {
	distance   float64 // meters
	duration   int64   // seconds
	speed      float64 // km/h
	accel      float64 // m/s²
	gap        bool    // spans more than the expert time gap threshold
	mode       string
	source     string
	confidence float64
}

// span is a run of consecutive intervals [start, end] sharing one mode.
type span struct {
	start, end int
	mode       string
	source     string
}

// Detect classifies points, which must belong to one track and be ordered by
// timestamp. Fewer than two points yield an unknown mode and no segments.
// The returned segments are contiguous and cover intervals [0, len(points)-2].
func (d *Detector) Detect(points []models.Point) (Classification, error) {
	if len(points) < 2 {
		return Classification{DominantMode: models.ModeUnknown}, nil
	}

	intervals, err := d.measure(points)
	if err != nil {
		return Classification{DominantMode: models.ModeUnknown}, err
	}
	d.classify(points, intervals)

	spans := mergeSpans(intervals)
	spans = d.absorbShort(points, spans)
	spans = d.groundShortFlights(intervals, spans)
	spans = mergeAdjacent(spans)

	segments := make([]models.TrackSegment, len(spans))
	for i, s := range spans {
		segments[i] = buildSegment(intervals, s)
	}
	return Classification{DominantMode: DominantMode(segments), Segments: segments}, nil
}

func (d *Detector) measure(points []models.Point) ([]interval, error) {
	intervals := make([]interval, len(points)-1)
	prevSpeedMS := 0.0
	for i := range intervals {
		a, b := points[i], points[i+1]
		if !finite(a.Latitude, a.Longitude) || !finite(b.Latitude, b.Longitude) {
			return nil, fmt.Errorf("%w: point %d", ErrInvalidCoordinates, b.ID)
		}
		dt := b.Timestamp - a.Timestamp
		if dt < 0 {
			return nil, fmt.Errorf("%w: point %d at %d precedes %d", ErrUnorderedPoints, b.ID, b.Timestamp, a.Timestamp)
		}

		dist := spatial.HaversineDistance(a.Latitude, a.Longitude, b.Latitude, b.Longitude)
		iv := interval{
			distance: dist,
			duration: dt,
			speed:    spatial.SpeedKmh(dist, dt),
			gap:      float64(dt) > d.expert.TimeGapThreshold,
		}

		speedMS := iv.speed / 3.6
		// Acceleration across a recording gap is meaningless.
		if i > 0 && dt > 0 && !iv.gap && !intervals[i-1].gap {
			iv.accel = (speedMS - prevSpeedMS) / float64(dt)
		}
		prevSpeedMS = speedMS
		intervals[i] = iv
	}
	return intervals, nil
}

func finite(vs ...float64) bool {
	for _, v := range vs {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

func (d *Detector) classify(points []models.Point, intervals []interval) {
	prev := models.ModeUnknown
	for i := range intervals {
		iv := &intervals[i]

		hint, ok := HintMode(points[i].Activity)
		if !ok {
			hint, ok = HintMode(points[i+1].Activity)
		}
		if ok {
			iv.mode, iv.source, iv.confidence = hint, models.SourceActivityHint, hintConfidence
		} else {
			iv.mode, iv.confidence = d.classifySpeed(iv.speed, math.Abs(iv.accel), prev)
			iv.source = models.SourceThreshold
			if iv.gap {
				iv.confidence *= 0.5
			}
		}
		prev = iv.mode
	}
}

// classifySpeed matches one interval against the bands. Expert thresholds are
// checked first; the basic bands decide the rest. prev is the mode of the
// preceding interval and keeps a flight going down to the flying minimum.
func (d *Detector) classifySpeed(speed, accel float64, prev string) (string, float64) {
	b, e := d.basic, d.expert

	switch {
	case speed <= e.StationaryMaxSpeed:
		return models.ModeStationary, bandConfidence(speed, 0, e.StationaryMaxSpeed)

	case prev == models.ModeFlying && speed >= b.FlyingMinSpeed:
		return models.ModeFlying, bandConfidence(speed, b.FlyingMinSpeed, math.Inf(1))

	case speed <= b.WalkingMaxSpeed:
		return models.ModeWalking, bandConfidence(speed, e.StationaryMaxSpeed, b.WalkingMaxSpeed)

	case speed <= b.CyclingMaxSpeed:
		conf := bandConfidence(speed, b.WalkingMaxSpeed, b.CyclingMaxSpeed)
		switch {
		case accel > e.CyclingVsDrivingAccel:
			return models.ModeDriving, conf * 0.8
		case accel <= e.RunningVsCyclingAccel && speed <= b.WalkingMaxSpeed*runningMaxFactor:
			return models.ModeRunning, bandConfidence(speed, b.WalkingMaxSpeed, b.WalkingMaxSpeed*runningMaxFactor)
		}
		return models.ModeCycling, conf

	case speed <= b.DrivingMaxSpeed:
		if speed >= e.TrainMinSpeed && accel <= smoothAcceleration {
			return models.ModeTrain, bandConfidence(speed, e.TrainMinSpeed, b.DrivingMaxSpeed) * 0.8
		}
		return models.ModeDriving, bandConfidence(speed, b.CyclingMaxSpeed, b.DrivingMaxSpeed)
	}

	return models.ModeFlying, bandConfidence(speed, b.DrivingMaxSpeed, math.Inf(1))
}

// bandConfidence is 1.0 in the middle of [lo, hi] and falls to 0.5 at the
// edges. Open-ended bands are measured against their closed edge only.
func bandConfidence(speed, lo, hi float64) float64 {
	width := hi - lo
	var margin float64
	switch {
	case math.IsInf(hi, 1):
		width = math.Max(lo, 1)
		margin = speed - lo
	case width <= 0:
		return 0.5
	default:
		margin = math.Min(speed-lo, hi-speed)
		width /= 2
	}
	c := 0.5 + 0.5*margin/width
	return math.Max(0.5, math.Min(1, c))
}

func mergeSpans(intervals []interval) []span {
	var spans []span
	for i, iv := range intervals {
		if n := len(spans); n > 0 && spans[n-1].mode == iv.mode {
			spans[n-1].end = i
			continue
		}
		spans = append(spans, span{start: i, end: i, mode: iv.mode, source: iv.source})
	}
	return spans
}

// mergeAdjacent joins neighbouring spans that ended up with the same mode.
func mergeAdjacent(spans []span) []span {
	out := spans[:0:0]
	for _, s := range spans {
		if n := len(out); n > 0 && out[n-1].mode == s.mode {
			out[n-1].end = s.end
			if s.source == models.SourceActivityHint {
				out[n-1].source = s.source
			}
			continue
		}
		out = append(out, s)
	}
	return out
}

func spanDuration(points []models.Point, s span) int64 {
	return points[s.end+1].Timestamp - points[s.start].Timestamp
}

// absorbShort folds threshold-derived spans shorter than the minimum segment
// duration into the preceding span, or into the following one for the first span.
func (d *Detector) absorbShort(points []models.Point, spans []span) []span {
	minDur := int64(d.expert.MinSegmentDuration)
	for i := 0; len(spans) > 1 && i < len(spans); {
		s := spans[i]
		if s.source == models.SourceActivityHint || spanDuration(points, s) >= minDur {
			i++
			continue
		}
		if i == 0 {
			spans[1].start = s.start
			spans = spans[1:]
		} else {
			spans[i-1].end = s.end
			spans = append(spans[:i], spans[i+1:]...)
		}
		spans = mergeAdjacent(spans)
		i = 0
	}
	return spans
}

// groundShortFlights reclassifies flights shorter than the minimum flight
// distance as train or driving, based on their average speed.
func (d *Detector) groundShortFlights(intervals []interval, spans []span) []span {
	minDist := d.expert.MinFlightDistanceKm * 1000
	for i, s := range spans {
		if s.mode != models.ModeFlying || s.source == models.SourceActivityHint {
			continue
		}
		seg := buildSegment(intervals, s)
		if seg.Distance >= minDist {
			continue
		}
		spans[i].mode = models.ModeDriving
		if seg.AvgSpeed >= d.expert.TrainMinSpeed {
			spans[i].mode = models.ModeTrain
		}
	}
	return spans
}

func buildSegment(intervals []interval, s span) models.TrackSegment {
	seg := models.TrackSegment{
		TransportationMode: s.mode,
		StartIndex:         s.start,
		EndIndex:           s.end,
		Source:             s.source,
	}

	var accelSum, confSum, confWeight float64
	for _, iv := range intervals[s.start : s.end+1] {
		seg.Distance += iv.distance
		seg.Duration += iv.duration
		seg.MaxSpeed = math.Max(seg.MaxSpeed, iv.speed)
		accelSum += math.Abs(iv.accel)

		w := float64(iv.duration)
		if w <= 0 {
			w = 1
		}
		conf := iv.confidence
		if iv.mode != s.mode {
			// Interval was absorbed or regrounded into this span.
			conf *= 0.5
		}
		confSum += conf * w
		confWeight += w
	}

	n := float64(s.end - s.start + 1)
	seg.AvgSpeed = spatial.SpeedKmh(seg.Distance, seg.Duration)
	seg.AvgAcceleration = accelSum / n
	seg.Confidence = math.Round(confSum/confWeight*1000) / 1000
	return seg
}

// DominantMode returns the mode of the longest segment; ties go to the
// lowest start index. No segments means unknown.
func DominantMode(segments []models.TrackSegment) string {
	var best *models.TrackSegment
	for i := range segments {
		s := &segments[i]
		if best == nil || s.Duration > best.Duration ||
			(s.Duration == best.Duration && s.StartIndex < best.StartIndex) {
			best = s
		}
	}
	if best == nil {
		return models.ModeUnknown
	}
	return best.TransportationMode
}
