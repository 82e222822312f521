package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jengzang/records-tracks-go/internal/analysis"
	"github.com/jengzang/records-tracks-go/internal/api"
	"github.com/jengzang/records-tracks-go/internal/buffer"
	"github.com/jengzang/records-tracks-go/internal/config"
	"github.com/jengzang/records-tracks-go/internal/database"
	"github.com/jengzang/records-tracks-go/internal/handler"
	"github.com/jengzang/records-tracks-go/internal/logging"
	"github.com/jengzang/records-tracks-go/internal/repository"
	"github.com/jengzang/records-tracks-go/internal/service"
	"github.com/jengzang/records-tracks-go/internal/supervisor"

	// Import analyzer packages to register them
	_ "github.com/jengzang/records-tracks-go/internal/analysis/behavior"
	_ "github.com/jengzang/records-tracks-go/internal/analysis/tracks"
	_ "github.com/jengzang/records-tracks-go/internal/analysis/visits"
)

func main() {
	// 加载配置
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to load configuration")
	}
	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})
	gin.SetMode(cfg.Server.Mode)

	// 初始化数据库
	if err := database.Init(database.Config{Path: cfg.Database.Path}); err != nil {
		logging.Fatal().Err(err).Msg("failed to initialize database")
	}
	defer database.Close()
	db := database.GetDB()

	// 侧缓冲
	bdb, err := buffer.Open(cfg.Buffer.Path, cfg.Buffer.InMemory)
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to open side buffer")
	}
	defer bdb.Close()
	buf := buffer.NewBadgerBuffer(bdb, cfg.Buffer.TTL)

	points := repository.NewPointRepository(db)
	tracks := repository.NewTrackRepository(db)
	visits := repository.NewVisitRepository(db)
	geofences := repository.NewGeofenceRepository(db)
	settings := repository.NewSettingsRepository(db)
	jobs := repository.NewJobRepository(db)

	deps := analysis.Deps{
		Points:      points,
		Tracks:      tracks,
		Visits:      visits,
		Geofences:   geofences,
		Settings:    settings,
		Buffer:      buf,
		GracePeriod: cfg.Tracks.GracePeriod,
	}
	worker := service.NewWorker(jobs, deps, cfg.Worker)

	router := api.SetupRouter(cfg, api.Handlers{
		Jobs:      handler.NewJobHandler(service.NewJobService(jobs, worker)),
		Tracks:    handler.NewTrackHandler(service.NewTrackService(tracks)),
		Visits:    handler.NewVisitHandler(service.NewVisitService(visits)),
		Settings:  handler.NewSettingsHandler(service.NewSettingsService(settings)),
		Geofences: handler.NewGeofenceHandler(service.NewGeofenceService(geofences)),
		Ping:      db.PingContext,
	})
	server := &http.Server{
		Addr:              cfg.Server.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	tree := supervisor.New(cfg.Server.ShutdownTimeout)
	tree.AddWorker(worker)
	tree.AddWorker(buffer.NewGCService(buf, 0))
	tree.AddAPI(supervisor.NewHTTPService(server, cfg.Server.ShutdownTimeout))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logging.Info().
		Str("port", cfg.Server.Port).
		Strs("skills", analysis.Skills()).
		Msg("server starting")
	if err := tree.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logging.Error().Err(err).Msg("supervisor stopped with error")
	}
	logging.Info().Msg("server stopped")
}
