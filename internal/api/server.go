// Package api exposes the HTTP interface for the download service.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/mediadl/mediadl/internal/config"
	"github.com/mediadl/mediadl/internal/engine"
	"github.com/mediadl/mediadl/internal/history"
	"github.com/mediadl/mediadl/internal/job"
	"github.com/mediadl/mediadl/internal/media"
	"github.com/mediadl/mediadl/internal/metrics"
)

// Version reported on the root payload.
const Version = "2.0"

const historyLimit = 100

// Downloader runs one download job synchronously.
type Downloader interface {
	Run(ctx context.Context, url string, platform media.Platform, kind media.Kind) (job.Result, error)
}

// ProgressStreamer drives one SSE session for a job.
type ProgressStreamer interface {
	Stream(w http.ResponseWriter, r *http.Request, jobID string)
}

// HistoryLister reads the download ledger.
type HistoryLister interface {
	Recent(ctx context.Context, limit int) ([]history.Record, error)
}

// Server wires HTTP handlers to the controller, streamer and stores.
type Server struct {
	router     chi.Router
	downloader Downloader
	streamer   ProgressStreamer
	histories  HistoryLister
	cfg        config.Config
	logger     *zap.Logger
}

// NewServer constructs a Server with middleware and routes. histories may be
// nil when the ledger is disabled.
func NewServer(
	downloader Downloader,
	streamer ProgressStreamer,
	histories HistoryLister,
	cfg config.Config,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		downloader: downloader,
		streamer:   streamer,
		histories:  histories,
		cfg:        cfg,
		logger:     logger,
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	r.Use(metricsMiddleware)

	r.Get("/", s.home)
	r.Get("/healthz", s.healthz)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	r.Post("/download", s.download)
	r.Get("/progress/{job_id}", s.progress)
	r.Get("/files/{filename}", s.serveFile)
	r.Get("/debug/ffmpeg", s.debugFFmpeg)
	r.Get("/history", s.listHistory)

	r.NotFound(s.notFound)
	r.MethodNotAllowed(s.methodNotAllowed)

	s.router = r
	return s
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

var endpointIndex = map[string]string{
	"download": "/download [POST]",
	"progress": "/progress/<job_id> [GET]",
	"files":    "/files/<filename> [GET]",
	"history":  "/history [GET]",
	"debug":    "/debug/ffmpeg [GET]",
}

func (s *Server) home(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "OK",
		"message":   "mediadl backend is running",
		"version":   Version,
		"endpoints": endpointIndex,
	})
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type downloadRequest struct {
	URL       string `json:"url"`
	MediaType string `json:"mediaType"`
}

type downloadResponse struct {
	Status      string `json:"status"`
	JobID       string `json:"job_id"`
	Filename    string `json:"filename"`
	DownloadURL string `json:"download_url"`
	Platform    string `json:"platform"`
	MediaType   string `json:"media_type"`
	FileSize    int64  `json:"file_size"`
}

// download validates the request, then runs the whole job synchronously.
// Validation failures reject before any job record exists.
func (s *Server) download(w http.ResponseWriter, r *http.Request) {
	var req downloadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	rawURL := media.SanitizeURL(req.URL)
	if rawURL == "" {
		writeError(w, http.StatusBadRequest, "URL is required")
		return
	}
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		writeError(w, http.StatusBadRequest, "Invalid URL format. URL must start with http:// or https://")
		return
	}
	platform := media.DetectPlatform(rawURL)
	if platform == media.PlatformUnknown {
		writeError(w, http.StatusBadRequest, media.SupportedPlatformsMessage)
		return
	}
	kind := media.ParseKind(req.MediaType)

	result, err := s.downloader.Run(r.Context(), rawURL, platform, kind)
	if err != nil {
		var classified *engine.Error
		if errors.As(err, &classified) {
			writeError(w, http.StatusBadRequest, classified.Message)
			return
		}
		s.logger.Error("download failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Internal server error. Please try again later.")
		return
	}

	writeJSON(w, http.StatusOK, downloadResponse{
		Status:      "success",
		JobID:       result.JobID,
		Filename:    result.Filename,
		DownloadURL: fmt.Sprintf("%s/files/%s", s.cfg.Server.PublicBaseURL, url.PathEscape(result.Filename)),
		Platform:    string(result.Platform),
		MediaType:   string(result.MediaKind),
		FileSize:    result.FileSize,
	})
}

func (s *Server) progress(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job_id")
	metrics.StreamOpened()
	defer metrics.StreamClosed()
	s.streamer.Stream(w, r, jobID)
}

func (s *Server) serveFile(w http.ResponseWriter, r *http.Request) {
	raw := chi.URLParam(r, "filename")
	filename, err := url.PathUnescape(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid filename")
		return
	}
	// Only basenames are served; anything path-like is rejected.
	if filename != filepath.Base(filename) || filename == "." || filename == ".." {
		writeError(w, http.StatusBadRequest, "invalid filename")
		return
	}
	path := filepath.Join(s.cfg.Downloads.Dir, filename)
	if _, err := os.Stat(path); err != nil {
		writeError(w, http.StatusNotFound, "File not found")
		return
	}
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	http.ServeFile(w, r, path)
}

func (s *Server) debugFFmpeg(w http.ResponseWriter, _ *http.Request) {
	ffmpegPath, _ := exec.LookPath("ffmpeg")
	ffprobePath, _ := exec.LookPath("ffprobe")
	_, dirErr := os.Stat(s.cfg.Downloads.Dir)
	writeJSON(w, http.StatusOK, map[string]any{
		"configured_ffmpeg_location": s.cfg.FFmpeg.Location,
		"ffmpeg_found":               ffmpegPath,
		"ffprobe_found":              ffprobePath,
		"download_directory":         s.cfg.Downloads.Dir,
		"download_dir_exists":        dirErr == nil,
	})
}

type historyEntry struct {
	history.Record
	FileSizeHuman string `json:"file_size_human"`
}

func (s *Server) listHistory(w http.ResponseWriter, r *http.Request) {
	if s.histories == nil {
		writeJSON(w, http.StatusOK, map[string]any{"downloads": []historyEntry{}})
		return
	}
	records, err := s.histories.Recent(r.Context(), historyLimit)
	if err != nil {
		s.logger.Error("list history failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list download history")
		return
	}
	entries := make([]historyEntry, 0, len(records))
	for _, rec := range records {
		entries = append(entries, historyEntry{
			Record:        rec,
			FileSizeHuman: humanize.Bytes(uint64(rec.FileSize)),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"downloads": entries})
}

func (s *Server) notFound(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusNotFound, map[string]any{
		"status":              "error",
		"message":             "Endpoint not found. Please check the API documentation.",
		"available_endpoints": endpointIndex,
	})
}

func (s *Server) methodNotAllowed(w http.ResponseWriter, _ *http.Request) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func loggingMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(ww, r)
			logger.Info("request completed",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.status),
				zap.Int64("duration_ms", time.Since(start).Milliseconds()),
			)
		})
	}
}

func recoverMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("panic recovered", zap.Any("error", rec))
					writeError(w, http.StatusInternalServerError, "Internal server error. Please try again later.")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

func metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)
		route := chi.RouteContext(r.Context()).RoutePattern()
		if route == "" {
			route = "unknown"
		}
		metrics.ObserveHTTPRequest(r.Method, route, ww.status, time.Since(start))
	})
}

type requestIDKey struct{}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Error("write JSON failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"status": "error", "message": msg})
}
