// Package server builds and runs the application: it wires configuration,
// logging, the job store, the extraction engine and the HTTP surface, and
// owns graceful shutdown.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/mediadl/mediadl/internal/api"
	"github.com/mediadl/mediadl/internal/clock/system"
	"github.com/mediadl/mediadl/internal/config"
	"github.com/mediadl/mediadl/internal/engine/ytdlp"
	imagefetcher "github.com/mediadl/mediadl/internal/fetcher/image"
	"github.com/mediadl/mediadl/internal/history"
	"github.com/mediadl/mediadl/internal/id/uuid"
	"github.com/mediadl/mediadl/internal/job"
	"github.com/mediadl/mediadl/internal/metrics"
	"github.com/mediadl/mediadl/internal/reaper"
	"github.com/mediadl/mediadl/internal/store"
	"github.com/mediadl/mediadl/internal/stream"
)

// App contains the application's long-lived dependencies.
type App struct {
	cfg       config.Config
	logger    *zap.Logger
	apiServer *api.Server
	reaper    *reaper.Reaper
	history   *history.Store
}

// Build creates the application's dependencies.
func Build(cfg config.Config, logger *zap.Logger) (*App, error) {
	metrics.Init()

	if err := os.MkdirAll(cfg.Downloads.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create download dir: %w", err)
	}

	clock := system.New()
	jobStore := store.NewMemoryStore(clock)

	var histStore *history.Store
	if cfg.History.Enabled {
		path := cfg.History.Path
		if path == "" {
			path = filepath.Join(cfg.Downloads.Dir, "history.db")
		}
		var err error
		histStore, err = history.Open(path)
		if err != nil {
			return nil, fmt.Errorf("history init failed: %w", err)
		}
		logger.Info("download history enabled", zap.String("path", path))
	} else {
		logger.Info("download history disabled")
	}

	eng := ytdlp.New(ytdlp.Config{
		DownloadDir:    cfg.Downloads.Dir,
		FFmpegLocation: cfg.FFmpeg.Location,
	}, logger.Named("engine"))

	images := imagefetcher.New(jobStore, cfg.Downloads.Dir, logger.Named("image_fetcher"))

	var historian job.Historian
	if histStore != nil {
		historian = histStore
	}
	controller := job.New(
		jobStore,
		eng,
		images,
		historian,
		uuid.New(),
		clock,
		cfg.Downloads.Dir,
		logger.Named("controller"),
	)

	streamer := stream.New(jobStore, clock, stream.Config{
		PollInterval: cfg.StreamPollInterval(),
		Heartbeat:    cfg.StreamHeartbeat(),
		Timeout:      cfg.StreamTimeout(),
	}, logger.Named("streamer"))

	sweeper := reaper.New(jobStore, clock, reaper.Config{
		Interval:  cfg.ReaperInterval(),
		Retention: cfg.ReaperRetention(),
	}, logger.Named("reaper"))

	var lister api.HistoryLister
	if histStore != nil {
		lister = histStore
	}
	apiServer := api.NewServer(controller, streamer, lister, cfg, logger.Named("api"))

	return &App{
		cfg:       cfg,
		logger:    logger,
		apiServer: apiServer,
		reaper:    sweeper,
		history:   histStore,
	}, nil
}

// Run starts the application and blocks until the context is canceled.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		a.logger.Info("reaper started")
		a.reaper.Run(ctx)
	}()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	a.logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}

	return a.Close()
}

// Close gracefully shuts down the application.
func (a *App) Close() error {
	if a.history != nil {
		if err := a.history.Close(); err != nil {
			a.logger.Warn("history close failed", zap.Error(err))
		}
	}
	a.logger.Info("shutdown complete")
	// Best effort; stderr may already be gone.
	_ = a.logger.Sync()
	return nil
}
