// Package engine defines the boundary to the media-extraction collaborator:
// a probe for metadata and a delegated download that reports progress
// through a sink supplied by the caller.
package engine

import (
	"context"

	"github.com/mediadl/mediadl/internal/media"
)

// ProgressPhase is the coarse phase an engine callback reports.
type ProgressPhase string

// Phases the engine reports while working on a job.
const (
	PhaseDownloading    ProgressPhase = "downloading"
	PhaseFinished       ProgressPhase = "finished"
	PhasePostprocessing ProgressPhase = "postprocessing"
	PhaseError          ProgressPhase = "error"
)

// ProgressEvent is one callback payload. Byte counts are zero when the
// engine does not know them.
type ProgressEvent struct {
	Phase           ProgressPhase
	DownloadedBytes int64
	TotalBytes      int64
	Err             string
}

// ProgressFunc receives progress events. It runs on whatever goroutine the
// engine's work runs on and must not block.
type ProgressFunc func(ProgressEvent)

// MediaInfo is the subset of probe/download metadata the service consumes.
// Filename is the engine's predicted output path after a download; it is a
// hint, not a guarantee (post-processing may change the extension).
type MediaInfo struct {
	ID        string
	Title     string
	Ext       string
	VCodec    string
	Thumbnail string
	URL       string
	Filename  string
}

// Options selects the engine's behavior for one job.
type Options struct {
	Platform media.Platform
	Kind     media.Kind
}

// Engine probes and downloads media. Probe is non-destructive; Download
// blocks until the delegated work (fetch plus any transcode) completes.
type Engine interface {
	Probe(ctx context.Context, url string, opts Options) (*MediaInfo, error)
	Download(ctx context.Context, url string, opts Options, onProgress ProgressFunc) (*MediaInfo, error)
}
