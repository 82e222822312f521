package api

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "github.com/jengzang/records-tracks-go/internal/analysis/tracks"
	"github.com/jengzang/records-tracks-go/internal/config"
	"github.com/jengzang/records-tracks-go/internal/handler"
	"github.com/jengzang/records-tracks-go/internal/middleware"
	"github.com/jengzang/records-tracks-go/internal/models"
	"github.com/jengzang/records-tracks-go/internal/service"
	"github.com/jengzang/records-tracks-go/internal/store/memstore"
)

type queue struct{ full bool }

func (q *queue) Enqueue(models.Job) error {
	if q.full {
		return service.ErrQueueFull
	}
	return nil
}

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func setup(t *testing.T) (*gin.Engine, *memstore.Store, *queue) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	st := memstore.New()
	q := &queue{}
	cfg := &config.Config{Security: config.SecurityConfig{AuthDisabled: true}}
	r := SetupRouter(cfg, Handlers{
		Jobs:      handler.NewJobHandler(service.NewJobService(st, q)),
		Tracks:    handler.NewTrackHandler(service.NewTrackService(st)),
		Visits:    handler.NewVisitHandler(service.NewVisitService(st)),
		Settings:  handler.NewSettingsHandler(service.NewSettingsService(st)),
		Geofences: handler.NewGeofenceHandler(service.NewGeofenceService(st)),
	})
	return r, st, q
}

func do(t *testing.T, r http.Handler, method, path string, body interface{}, user string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if user != "" {
		req.Header.Set(middleware.UserHeader, user)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var env envelope
	if w.Header().Get("Content-Type") != "" && w.Body.Len() > 0 {
		_ = json.Unmarshal(w.Body.Bytes(), &env)
	}
	return w, env
}

func TestHealthAndMetrics(t *testing.T) {
	r, _, _ := setup(t)
	w, _ := do(t, r, http.MethodGet, "/health", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)

	w, _ = do(t, r, http.MethodGet, "/metrics", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "go_goroutines")

	down := SetupRouter(&config.Config{}, Handlers{Ping: func(context.Context) error { return errors.New("db closed") }})
	w, _ = do(t, down, http.MethodGet, "/health", nil, "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestJobEndpoints(t *testing.T) {
	r, _, q := setup(t)

	w, env := do(t, r, http.MethodPost, "/api/v1/jobs", gin.H{"skill": models.SkillTrackGeneration, "mode": "daily", "day": "2024-03-10"}, "4")
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	var job models.Job
	require.NoError(t, json.Unmarshal(env.Data, &job))
	assert.Equal(t, int64(4), job.UserID)
	assert.Equal(t, models.JobStatusPending, job.Status)

	w, _ = do(t, r, http.MethodGet, "/api/v1/jobs/1", nil, "4")
	assert.Equal(t, http.StatusOK, w.Code)
	w, _ = do(t, r, http.MethodGet, "/api/v1/jobs/1", nil, "5")
	assert.Equal(t, http.StatusNotFound, w.Code)
	w, _ = do(t, r, http.MethodGet, "/api/v1/jobs/abc", nil, "4")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, env = do(t, r, http.MethodGet, "/api/v1/jobs", nil, "4")
	require.Equal(t, http.StatusOK, w.Code)
	var list struct {
		Jobs []models.Job `json:"jobs"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &list))
	assert.Len(t, list.Jobs, 1)

	w, _ = do(t, r, http.MethodPost, "/api/v1/jobs", gin.H{"skill": "nope"}, "4")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w, _ = do(t, r, http.MethodPost, "/api/v1/jobs", gin.H{}, "4")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	q.full = true
	w, _ = do(t, r, http.MethodPost, "/api/v1/jobs", gin.H{"skill": models.SkillTrackGeneration}, "4")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestTrackEndpoints(t *testing.T) {
	r, st, _ := setup(t)
	pts := st.AddPoints(
		models.Point{UserID: 4, Latitude: 1, Longitude: 1, Timestamp: 100},
		models.Point{UserID: 4, Latitude: 1.001, Longitude: 1, Timestamp: 160},
	)
	track := st.AddTrack(models.Track{UserID: 4, StartAt: 100, EndAt: 160, DominantMode: models.ModeWalking}, models.PointIDs(pts))

	w, env := do(t, r, http.MethodGet, "/api/v1/tracks?from=0&to=1000", nil, "4")
	require.Equal(t, http.StatusOK, w.Code)
	var list struct {
		Tracks []models.Track `json:"tracks"`
		Total  int            `json:"total"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &list))
	assert.Equal(t, 1, list.Total)
	assert.Equal(t, 2, list.Tracks[0].PointCount)

	w, _ = do(t, r, http.MethodGet, "/api/v1/tracks/"+strconv.FormatInt(track.ID, 10), nil, "4")
	assert.Equal(t, http.StatusOK, w.Code)
	w, _ = do(t, r, http.MethodGet, "/api/v1/tracks/"+strconv.FormatInt(track.ID, 10), nil, "5")
	assert.Equal(t, http.StatusNotFound, w.Code)
	w, _ = do(t, r, http.MethodGet, "/api/v1/tracks?from=x", nil, "4")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w, _ = do(t, r, http.MethodGet, "/api/v1/tracks?from=10&to=5", nil, "4")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSettingsAndGeofenceEndpoints(t *testing.T) {
	r, _, _ := setup(t)

	w, env := do(t, r, http.MethodGet, "/api/v1/settings", nil, "4")
	require.Equal(t, http.StatusOK, w.Code)
	var s models.UserSettings
	require.NoError(t, json.Unmarshal(env.Data, &s))
	assert.Equal(t, float64(models.DefaultMetersBetweenRoutes), s.MetersBetweenRoutes)

	w, _ = do(t, r, http.MethodPut, "/api/v1/settings", gin.H{"meters_between_routes": 800}, "4")
	require.Equal(t, http.StatusOK, w.Code)
	w, _ = do(t, r, http.MethodPut, "/api/v1/settings", gin.H{"meters_between_routes": -5}, "4")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, env = do(t, r, http.MethodGet, "/api/v1/settings", nil, "4")
	require.NoError(t, json.Unmarshal(env.Data, &s))
	assert.Equal(t, 800.0, s.MetersBetweenRoutes)

	w, _ = do(t, r, http.MethodPost, "/api/v1/geofences", gin.H{"name": "Office", "kind": "place", "latitude": 23.1, "longitude": 113.3, "radius": 60}, "4")
	assert.Equal(t, http.StatusCreated, w.Code)
	w, _ = do(t, r, http.MethodPost, "/api/v1/geofences", gin.H{"name": "Office", "radius": 0}, "4")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = do(t, r, http.MethodGet, "/api/v1/visits", nil, "4")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAuthRequiredWhenEnabled(t *testing.T) {
	gin.SetMode(gin.TestMode)
	st := memstore.New()
	r := SetupRouter(&config.Config{Security: config.SecurityConfig{JWTSecret: "s"}}, Handlers{
		Tracks: handler.NewTrackHandler(service.NewTrackService(st)),
	})
	w, _ := do(t, r, http.MethodGet, "/api/v1/tracks", nil, "4")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
