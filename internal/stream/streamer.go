// Package stream implements the server-push progress protocol: one SSE
// session per job, driven by polling the job record, with payload
// de-duplication, a heartbeat so quiet phases still show liveness, and an
// absolute session timeout.
package stream

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/mediadl/mediadl/internal/media"
	"github.com/mediadl/mediadl/internal/store"
)

// Config tunes the polling protocol. Zero values fall back to defaults.
type Config struct {
	// PollInterval is how often the job record is re-read.
	PollInterval time.Duration
	// Heartbeat is the longest silence allowed between events.
	Heartbeat time.Duration
	// Timeout ends the session unconditionally; the underlying job keeps
	// running and may still complete after the stream is gone.
	Timeout time.Duration
}

const (
	defaultPollInterval = 300 * time.Millisecond
	defaultHeartbeat    = time.Second
	defaultTimeout      = 10 * time.Minute
)

func (c Config) withDefaults() Config {
	if c.PollInterval <= 0 {
		c.PollInterval = defaultPollInterval
	}
	if c.Heartbeat <= 0 {
		c.Heartbeat = defaultHeartbeat
	}
	if c.Timeout <= 0 {
		c.Timeout = defaultTimeout
	}
	return c
}

// Payload is one progress event as serialized to the client.
type Payload struct {
	Status          string `json:"status"`
	Percent         int    `json:"percent"`
	DownloadedBytes int64  `json:"downloaded_bytes"`
	TotalBytes      int64  `json:"total_bytes"`
	Speed           string `json:"speed"`
	Filename        string `json:"filename"`
	Error           string `json:"error"`
	EstimatedTime   string `json:"estimated_time,omitempty"`
	Message         string `json:"message,omitempty"`
}

// Streamer drives progress sessions against the job store.
type Streamer struct {
	store  store.Store
	clock  media.Clock
	cfg    Config
	logger *zap.Logger
}

// New constructs a Streamer.
func New(st store.Store, clock media.Clock, cfg Config, logger *zap.Logger) *Streamer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Streamer{
		store:  st,
		clock:  clock,
		cfg:    cfg.withDefaults(),
		logger: logger,
	}
}

// Stream runs one session: an immediate snapshot, then change-or-heartbeat
// events until the job is terminal, the session times out, or the client
// goes away. Unknown job IDs get exactly one error event.
func (s *Streamer) Stream(w http.ResponseWriter, r *http.Request, jobID string) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	flusher, _ := w.(http.Flusher)

	job, ok := s.store.Get(jobID)
	if !ok {
		s.emit(w, flusher, Payload{Status: string(store.StatusError), Message: "Job not found"})
		return
	}

	initial := s.payload(job)
	if job.Status == store.StatusStarting {
		initial.Message = "Starting download..."
	}
	lastSent := s.emit(w, flusher, initial)

	sessionStart := s.clock.Now()
	lastEmit := sessionStart
	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
		}

		job, ok = s.store.Get(jobID)
		if !ok {
			// Reaped mid-stream; treat like an unknown job from here on.
			s.emit(w, flusher, Payload{Status: string(store.StatusError), Message: "Job not found"})
			return
		}

		payload := s.payload(job)

		if job.Terminal() {
			if job.Status == store.StatusDone {
				payload.Percent = 100
				payload.Message = "Download complete!"
			}
			s.emit(w, flusher, payload)
			return
		}

		if s.clock.Now().Sub(sessionStart) > s.cfg.Timeout {
			s.emit(w, flusher, Payload{
				Status:  string(store.StatusError),
				Message: "Download timeout - please try again",
			})
			return
		}

		encoded := encode(payload)
		if encoded != lastSent || s.clock.Now().Sub(lastEmit) > s.cfg.Heartbeat {
			s.write(w, flusher, encoded)
			lastSent = encoded
			lastEmit = s.clock.Now()
		}
	}
}

func (s *Streamer) payload(job store.Job) Payload {
	return Payload{
		Status:          string(job.Status),
		Percent:         job.Percent,
		DownloadedBytes: job.DownloadedBytes,
		TotalBytes:      job.TotalBytes,
		Speed:           job.Speed,
		Filename:        job.Filename,
		Error:           job.Error,
		EstimatedTime:   s.estimateRemaining(job),
		Message:         statusMessage(job.Status, job.Percent),
	}
}

// estimateRemaining projects time left from elapsed wall time and percent,
// once at least 5% of progress exists to extrapolate from.
func (s *Streamer) estimateRemaining(job store.Job) string {
	if job.Percent <= 5 || job.Percent >= 100 {
		return ""
	}
	elapsed := s.clock.Now().Sub(job.StartTime)
	if elapsed <= 0 {
		return ""
	}
	total := time.Duration(float64(elapsed) / (float64(job.Percent) / 100))
	remaining := total - elapsed
	if remaining <= 0 {
		return ""
	}
	secs := int(remaining.Seconds())
	if secs > 60 {
		return fmt.Sprintf("%dm %ds", secs/60, secs%60)
	}
	return fmt.Sprintf("%ds", secs)
}

func (s *Streamer) emit(w http.ResponseWriter, flusher http.Flusher, p Payload) string {
	encoded := encode(p)
	s.write(w, flusher, encoded)
	return encoded
}

func (s *Streamer) write(w http.ResponseWriter, flusher http.Flusher, encoded string) {
	if _, err := fmt.Fprintf(w, "data: %s\n\n", encoded); err != nil {
		s.logger.Debug("stream write failed", zap.Error(err))
		return
	}
	if flusher != nil {
		flusher.Flush()
	}
}

func encode(p Payload) string {
	b, err := json.Marshal(p)
	if err != nil {
		// Payload has only scalar fields; this cannot happen.
		return `{"status":"error","message":"encoding failure"}`
	}
	return string(b)
}

// statusMessage maps a lifecycle state to user-friendly text.
func statusMessage(status store.Status, percent int) string {
	switch status {
	case store.StatusQueued:
		return "Waiting to start..."
	case store.StatusStarting:
		return "Starting download..."
	case store.StatusExtractingInfo:
		return "Extracting media information..."
	case store.StatusPreparing:
		return "Preparing download..."
	case store.StatusDownloading:
		return fmt.Sprintf("Downloading... %d%%", percent)
	case store.StatusProcessing:
		return "Processing media file..."
	case store.StatusFindingFile:
		return "Finalizing download..."
	case store.StatusDone:
		return "Download complete!"
	case store.StatusError:
		return "An error occurred"
	default:
		return fmt.Sprintf("Processing... %d%%", percent)
	}
}
