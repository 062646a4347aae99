// Package store tracks per-job download progress. It is the only shared
// mutable state in the service: the lifecycle controller, the engine's
// progress callback, the SSE streamer and the reaper all go through it.
package store

import (
	"fmt"
	"sync"
	"time"

	"github.com/mediadl/mediadl/internal/media"
)

// Status is the authoritative lifecycle state of a job.
type Status string

// Job statuses, in forward order. Done and Error are terminal.
const (
	StatusQueued         Status = "queued"
	StatusStarting       Status = "starting"
	StatusExtractingInfo Status = "extracting_info"
	StatusPreparing      Status = "preparing"
	StatusDownloading    Status = "downloading"
	StatusProcessing     Status = "processing"
	StatusFindingFile    Status = "finding_file"
	StatusDone           Status = "done"
	StatusError          Status = "error"
)

// Terminal reports whether a status admits no further transitions.
func (s Status) Terminal() bool {
	return s == StatusDone || s == StatusError
}

// Job is one tracked download. Filename and Error are mutually exclusive
// once the job is terminal.
type Job struct {
	ID              string
	Status          Status
	Percent         int
	DownloadedBytes int64
	TotalBytes      int64
	Speed           string
	Filename        string
	Error           string
	Platform        media.Platform
	MediaKind       media.Kind
	StartTime       time.Time
	LastUpdate      time.Time
}

// Terminal reports whether the job reached done or error.
func (j Job) Terminal() bool {
	return j.Status.Terminal()
}

// Update carries partial field changes; nil fields are left untouched.
type Update struct {
	Status          *Status
	Percent         *int
	DownloadedBytes *int64
	TotalBytes      *int64
	Speed           *string
	Filename        *string
	Error           *string
}

// Store is the job-record contract. Update on an unknown ID is a silent
// no-op: the record may have been reaped while a callback was in flight.
type Store interface {
	Create(id string, platform media.Platform, kind media.Kind) Job
	Update(id string, u Update)
	Get(id string) (Job, bool)
	Delete(id string)
	List() []Job
}

// MemoryStore is the in-process Store. Every operation holds the mutex for
// its full duration, so readers never observe a half-applied update.
type MemoryStore struct {
	mu    sync.RWMutex
	jobs  map[string]*Job
	clock media.Clock
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore(clock media.Clock) *MemoryStore {
	return &MemoryStore{
		jobs:  make(map[string]*Job),
		clock: clock,
	}
}

// Create registers a new job record in queued state at percent 0.
func (s *MemoryStore) Create(id string, platform media.Platform, kind media.Kind) Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.clock.Now()
	job := &Job{
		ID:         id,
		Status:     StatusQueued,
		Speed:      "0 KB/s",
		Platform:   platform,
		MediaKind:  kind,
		StartTime:  now,
		LastUpdate: now,
	}
	s.jobs[id] = job
	return *job
}

// Update applies the provided fields to a job. Percent never regresses and
// is clamped to [0,100]. Whenever DownloadedBytes changes, the speed string
// is recomputed from bytes over elapsed wall time.
func (s *MemoryStore) Update(id string, u Update) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return
	}
	if u.Status != nil {
		job.Status = *u.Status
	}
	if u.Percent != nil {
		pct := clampPercent(*u.Percent)
		if pct > job.Percent {
			job.Percent = pct
		}
	}
	if u.TotalBytes != nil {
		job.TotalBytes = *u.TotalBytes
	}
	if u.Speed != nil {
		job.Speed = *u.Speed
	}
	if u.Filename != nil {
		job.Filename = *u.Filename
	}
	if u.Error != nil {
		job.Error = *u.Error
	}
	if u.DownloadedBytes != nil {
		job.DownloadedBytes = *u.DownloadedBytes
		if elapsed := s.clock.Now().Sub(job.StartTime); elapsed > 0 {
			job.Speed = formatSpeed(float64(job.DownloadedBytes) / elapsed.Seconds())
		}
	}
	job.LastUpdate = s.clock.Now()
}

// Get returns a copy of the job record.
func (s *MemoryStore) Get(id string) (Job, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[id]
	if !ok {
		return Job{}, false
	}
	return *job, true
}

// Delete removes a job record. Missing IDs are ignored.
func (s *MemoryStore) Delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.jobs, id)
}

// List returns a snapshot of all job records.
func (s *MemoryStore) List() []Job {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		out = append(out, *job)
	}
	return out
}

func clampPercent(p int) int {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}

const mib = 1024 * 1024

func formatSpeed(bytesPerSecond float64) string {
	if bytesPerSecond > mib {
		return fmt.Sprintf("%.1f MB/s", bytesPerSecond/mib)
	}
	return fmt.Sprintf("%.1f KB/s", bytesPerSecond/1024)
}
