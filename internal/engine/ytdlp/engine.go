// Package ytdlp implements the extraction engine on top of yt-dlp via the
// go-ytdlp bindings.
package ytdlp

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/lrstanley/go-ytdlp"
	"go.uber.org/zap"

	"github.com/mediadl/mediadl/internal/engine"
	"github.com/mediadl/mediadl/internal/media"
)

const (
	// outputTemplate keeps titles short enough that the sanitized basename
	// never needs truncation after the ID suffix is appended.
	outputTemplate = "%(title).150s_%(id)s.%(ext)s"

	browserUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

	progressInterval = 500 * time.Millisecond
)

// Config controls the engine's environment.
type Config struct {
	DownloadDir    string
	FFmpegLocation string
}

// Engine shells out to yt-dlp for probing and downloading.
type Engine struct {
	cfg    Config
	logger *zap.Logger
}

// New constructs an Engine.
func New(cfg Config, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{cfg: cfg, logger: logger}
}

// Probe extracts metadata without downloading.
func (e *Engine) Probe(ctx context.Context, url string, opts engine.Options) (*engine.MediaInfo, error) {
	dl := e.command(opts).SkipDownload()
	result, err := dl.Run(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("probe: %w", err)
	}
	info, err := firstInfo(result)
	if err != nil {
		return nil, err
	}
	return info, nil
}

// Download performs the delegated fetch and assembly, forwarding yt-dlp
// progress updates to the supplied sink.
func (e *Engine) Download(ctx context.Context, url string, opts engine.Options, onProgress engine.ProgressFunc) (*engine.MediaInfo, error) {
	dl := e.command(opts)
	if onProgress != nil {
		dl = dl.ProgressFunc(progressInterval, func(update ytdlp.ProgressUpdate) {
			onProgress(toEvent(update))
		})
	}
	result, err := dl.Run(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("download: %w", err)
	}
	info, err := firstInfo(result)
	if err != nil {
		return nil, err
	}
	e.logger.Debug("engine download finished",
		zap.String("url", url),
		zap.String("predicted", info.Filename),
	)
	return info, nil
}

// command builds the per-job yt-dlp invocation: output template, certificate
// and playlist handling, a browser user agent, and the format policy for the
// platform and media kind.
func (e *Engine) command(opts engine.Options) *ytdlp.Command {
	dl := ytdlp.New().
		NoPlaylist().
		ForceOverwrites().
		NoCheckCertificates().
		UserAgent(browserUserAgent).
		Output(filepath.Join(e.cfg.DownloadDir, outputTemplate))
	if e.cfg.FFmpegLocation != "" {
		dl = dl.FFmpegLocation(e.cfg.FFmpegLocation)
	}

	switch opts.Kind {
	case media.KindAudio:
		dl = dl.Format("bestaudio/best").
			ExtractAudio().
			AudioFormat("mp3").
			AudioQuality("192K")
	case media.KindPhoto:
		// Photos are fetched directly over HTTP; the engine only supplies
		// metadata and the best thumbnail.
		dl = dl.Format("best").WriteThumbnail()
	default:
		dl = e.videoFormat(dl, opts.Platform)
	}
	return dl
}

// videoFormat applies the per-platform format selection policy. YouTube
// merges separate video/audio tracks into mp4; most social platforms only
// publish pre-muxed files, so "best" suffices there.
func (e *Engine) videoFormat(dl *ytdlp.Command, platform media.Platform) *ytdlp.Command {
	switch platform {
	case media.PlatformYouTube:
		return dl.
			Format("bestvideo[ext=mp4]+bestaudio[ext=m4a]/bestvideo+bestaudio/best").
			MergeOutputFormat("mp4")
	case media.PlatformFacebook:
		return dl.Format("best").MergeOutputFormat("mp4")
	case media.PlatformTwitter, media.PlatformInstagram,
		media.PlatformLinkedIn, media.PlatformSnapchat:
		return dl.Format("best")
	default:
		return dl.Format("bestvideo+bestaudio/best").MergeOutputFormat("mp4")
	}
}

func firstInfo(result *ytdlp.Result) (*engine.MediaInfo, error) {
	if result == nil {
		return nil, errors.New("no result from engine")
	}
	extracted, err := result.GetExtractedInfo()
	if err != nil {
		return nil, fmt.Errorf("extracted info: %w", err)
	}
	if len(extracted) == 0 {
		return nil, errors.New("no media information extracted")
	}
	src := extracted[0]
	return &engine.MediaInfo{
		ID:        src.ID,
		Title:     deref(src.Title),
		Ext:       src.Extension,
		VCodec:    deref(src.VCodec),
		Thumbnail: deref(src.Thumbnail),
		URL:       deref(src.URL),
		Filename:  deref(src.Filename),
	}, nil
}

func toEvent(update ytdlp.ProgressUpdate) engine.ProgressEvent {
	ev := engine.ProgressEvent{
		DownloadedBytes: int64(update.DownloadedBytes),
		TotalBytes:      int64(update.TotalBytes),
	}
	switch update.Status {
	case ytdlp.ProgressStatusFinished:
		ev.Phase = engine.PhaseFinished
	case ytdlp.ProgressStatusPostProcessing:
		ev.Phase = engine.PhasePostprocessing
	case ytdlp.ProgressStatusError:
		ev.Phase = engine.PhaseError
		ev.Err = "extraction engine reported an error"
	default:
		ev.Phase = engine.PhaseDownloading
	}
	return ev
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
