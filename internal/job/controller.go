// Package job orchestrates one download end to end: create the record,
// probe the URL, delegate the fetch to the extraction engine (or fetch the
// image directly for photo jobs), resolve the artifact on disk, and write
// exactly one terminal outcome into the record.
package job

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/mediadl/mediadl/internal/engine"
	"github.com/mediadl/mediadl/internal/history"
	"github.com/mediadl/mediadl/internal/media"
	"github.com/mediadl/mediadl/internal/metrics"
	"github.com/mediadl/mediadl/internal/progress"
	"github.com/mediadl/mediadl/internal/resolver"
	"github.com/mediadl/mediadl/internal/store"
)

// ImageFetcher retrieves a single static image for a photo job.
type ImageFetcher interface {
	Fetch(ctx context.Context, jobID string, info *engine.MediaInfo) (string, error)
}

// Historian records completed downloads. A nil Historian disables the ledger.
type Historian interface {
	Add(ctx context.Context, rec history.Record) error
}

// Result is the synchronous outcome of a successful job.
type Result struct {
	JobID     string
	Filename  string
	FileSize  int64
	Platform  media.Platform
	MediaKind media.Kind
}

// Controller runs download jobs. One Run call handles one job from record
// creation to terminal state; concurrent Run calls proceed independently.
type Controller struct {
	store       store.Store
	engine      engine.Engine
	images      ImageFetcher
	historian   Historian
	idGen       media.IDGenerator
	clock       media.Clock
	downloadDir string
	logger      *zap.Logger
}

// New constructs a Controller.
func New(
	st store.Store,
	eng engine.Engine,
	images ImageFetcher,
	historian Historian,
	idGen media.IDGenerator,
	clock media.Clock,
	downloadDir string,
	logger *zap.Logger,
) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Controller{
		store:       st,
		engine:      eng,
		images:      images,
		historian:   historian,
		idGen:       idGen,
		clock:       clock,
		downloadDir: downloadDir,
		logger:      logger,
	}
}

// Run executes one job synchronously. The URL must already be sanitized and
// validated; kind and platform classify the record immutably. Any returned
// error is a classified *engine.Error and has already been written into the
// job record, so open streams observe it.
func (c *Controller) Run(ctx context.Context, url string, platform media.Platform, kind media.Kind) (Result, error) {
	jobID, err := c.idGen.NewID()
	if err != nil {
		return Result{}, engine.NewError(engine.KindDownload, "could not create download job")
	}
	c.store.Create(jobID, platform, kind)
	c.logger.Info("job accepted",
		zap.String("job_id", jobID),
		zap.String("platform", string(platform)),
		zap.String("media_kind", string(kind)),
	)

	result, runErr := c.run(ctx, jobID, url, platform, kind)
	if runErr != nil {
		c.fail(jobID, runErr)
		metrics.DownloadFinished(string(platform), string(kind), "error")
		return Result{}, runErr
	}
	metrics.DownloadFinished(string(platform), string(kind), "done")
	metrics.AddDownloadedBytes(string(platform), result.FileSize)
	return result, nil
}

func (c *Controller) run(ctx context.Context, jobID, url string, platform media.Platform, kind media.Kind) (Result, *engine.Error) {
	c.transition(jobID, store.StatusStarting, 10)

	opts := engine.Options{Platform: platform, Kind: kind}

	c.transition(jobID, store.StatusExtractingInfo, 20)
	info, err := c.engine.Probe(ctx, url, opts)
	if err != nil {
		return Result{}, engine.ClassifyProbe(platform, err)
	}
	if info == nil {
		return Result{}, engine.NewError(engine.KindAccess, "Could not extract media information from URL")
	}
	c.transition(jobID, store.StatusExtractingInfo, 35)

	var finalPath string
	var classified *engine.Error
	if kind == media.KindPhoto {
		finalPath, classified = c.runPhoto(ctx, jobID, url, platform, info)
	} else {
		finalPath, classified = c.runDelegated(ctx, jobID, url, kind, opts)
	}
	if classified != nil {
		return Result{}, classified
	}

	return c.finalize(ctx, jobID, url, finalPath, platform, kind)
}

// runPhoto fetches the image directly. When the fetch fails and the probe's
// signals say the source is really a video, the failure is reported as a
// media-kind mismatch so the client can switch kinds instead of retrying.
func (c *Controller) runPhoto(ctx context.Context, jobID, url string, platform media.Platform, info *engine.MediaInfo) (string, *engine.Error) {
	isImage := looksLikeImage(url, platform, info)
	path, err := c.images.Fetch(ctx, jobID, info)
	if err != nil {
		if !isImage {
			return "", engine.NewError(engine.KindWrongMediaKind,
				"This URL contains a video, not a photo. Please select 'Video' or 'Reel' instead.")
		}
		return "", engine.NewError(engine.KindDownload, fmt.Sprintf("Failed to download photo: %s", err))
	}
	return path, nil
}

func (c *Controller) runDelegated(ctx context.Context, jobID, url string, kind media.Kind, opts engine.Options) (string, *engine.Error) {
	c.transition(jobID, store.StatusPreparing, 45)

	hook := progress.NewHook(jobID, c.store)
	info, err := c.engine.Download(ctx, url, opts, hook)
	if err != nil {
		return "", engine.ClassifyDownload(err)
	}

	c.transition(jobID, store.StatusFindingFile, 90)
	predicted := ""
	if info != nil {
		predicted = info.Filename
	}
	path, err := resolver.Resolve(predicted, kind, c.downloadDir)
	if err != nil {
		return "", engine.NewError(engine.KindFileNotFound,
			fmt.Sprintf("Download completed but %s file not found. Please try again.", kind))
	}
	return path, nil
}

// finalize verifies the artifact, sanitizes its basename (renaming on disk
// when sanitization changes it, with an epoch suffix on collision), and
// marks the record done. This and fail are the only terminal writes.
func (c *Controller) finalize(ctx context.Context, jobID, url, path string, platform media.Platform, kind media.Kind) (Result, *engine.Error) {
	fi, err := os.Stat(path)
	if err != nil {
		return Result{}, engine.NewError(engine.KindFileNotFound, "Download completed but file not found on server")
	}
	if fi.Size() == 0 {
		return Result{}, engine.NewError(engine.KindDownload, "Downloaded file is empty")
	}

	filename := filepath.Base(path)
	if safe := media.SafeFilename(filename); safe != filename {
		newPath := filepath.Join(c.downloadDir, safe)
		if _, statErr := os.Stat(newPath); statErr == nil {
			ext := filepath.Ext(safe)
			name := strings.TrimSuffix(safe, ext)
			safe = fmt.Sprintf("%s_%d%s", name, c.clock.Now().Unix(), ext)
			newPath = filepath.Join(c.downloadDir, safe)
		}
		if renameErr := os.Rename(path, newPath); renameErr != nil {
			// Keep the original name; the file is intact and servable.
			c.logger.Warn("artifact rename failed", zap.String("job_id", jobID), zap.Error(renameErr))
		} else {
			path = newPath
			filename = safe
		}
	}

	done := store.StatusDone
	pct := 100
	c.store.Update(jobID, store.Update{
		Status:   &done,
		Percent:  &pct,
		Filename: &filename,
	})
	c.logger.Info("job completed",
		zap.String("job_id", jobID),
		zap.String("filename", filename),
		zap.Int64("file_size", fi.Size()),
	)

	if c.historian != nil {
		rec := history.Record{
			JobID:     jobID,
			Platform:  string(platform),
			MediaKind: string(kind),
			Filename:  filename,
			FileSize:  fi.Size(),
			SourceURL: url,
			CreatedAt: c.clock.Now(),
		}
		if histErr := c.historian.Add(ctx, rec); histErr != nil {
			c.logger.Warn("history record failed", zap.String("job_id", jobID), zap.Error(histErr))
		}
	}

	return Result{
		JobID:     jobID,
		Filename:  filename,
		FileSize:  fi.Size(),
		Platform:  platform,
		MediaKind: kind,
	}, nil
}

func (c *Controller) fail(jobID string, jobErr *engine.Error) {
	errStatus := store.StatusError
	msg := jobErr.Message
	c.store.Update(jobID, store.Update{
		Status: &errStatus,
		Error:  &msg,
	})
	c.logger.Warn("job failed",
		zap.String("job_id", jobID),
		zap.String("kind", string(jobErr.Kind)),
		zap.String("message", msg),
	)
}

func (c *Controller) transition(jobID string, status store.Status, percent int) {
	c.store.Update(jobID, store.Update{Status: &status, Percent: &percent})
}

// looksLikeImage decides whether the probed source is plausibly a static
// image: a declared image extension, no playable video codec alongside a
// thumbnail, an Instagram post URL, or a thumbnail without any media URL.
func looksLikeImage(url string, platform media.Platform, info *engine.MediaInfo) bool {
	switch strings.ToLower(info.Ext) {
	case "jpg", "jpeg", "png", "webp", "gif":
		return true
	}
	if (info.VCodec == "" || info.VCodec == "none") && info.Thumbnail != "" {
		return true
	}
	if platform == media.PlatformInstagram &&
		(strings.Contains(url, "/p/") || strings.Contains(url, "img")) {
		return true
	}
	if info.Thumbnail != "" && info.URL == "" {
		return true
	}
	return false
}

var _ Historian = (*history.Store)(nil)
