package job

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mediadl/mediadl/internal/engine"
	"github.com/mediadl/mediadl/internal/history"
	"github.com/mediadl/mediadl/internal/media"
	"github.com/mediadl/mediadl/internal/store"
)

type fakeClock struct{ now time.Time }

func (c fakeClock) Now() time.Time { return c.now }

type fakeIDGen struct {
	id  string
	err error
}

func (g fakeIDGen) NewID() (string, error) { return g.id, g.err }

type fakeEngine struct {
	probeInfo   *engine.MediaInfo
	probeErr    error
	downloadFn  func(hook engine.ProgressFunc) (*engine.MediaInfo, error)
	downloadErr error
	downloaded  bool
}

func (e *fakeEngine) Probe(_ context.Context, _ string, _ engine.Options) (*engine.MediaInfo, error) {
	return e.probeInfo, e.probeErr
}

func (e *fakeEngine) Download(_ context.Context, _ string, _ engine.Options, hook engine.ProgressFunc) (*engine.MediaInfo, error) {
	e.downloaded = true
	if e.downloadErr != nil {
		return nil, e.downloadErr
	}
	if e.downloadFn != nil {
		return e.downloadFn(hook)
	}
	return nil, nil
}

type fakeImages struct {
	path string
	err  error
}

func (f fakeImages) Fetch(_ context.Context, _ string, _ *engine.MediaInfo) (string, error) {
	return f.path, f.err
}

type fakeHistorian struct {
	mu   sync.Mutex
	recs []history.Record
	err  error
}

func (h *fakeHistorian) Add(_ context.Context, rec history.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.recs = append(h.recs, rec)
	return h.err
}

func writeArtifact(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func newController(t *testing.T, dir string, eng engine.Engine, images ImageFetcher, hist Historian) (*Controller, store.Store) {
	t.Helper()
	st := store.NewMemoryStore(fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)})
	c := New(st, eng, images, hist, fakeIDGen{id: "job-1"}, fakeClock{now: time.Unix(1_750_000_000, 0)}, dir, nil)
	return c, st
}

func TestRun_VideoSuccess(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	eng := &fakeEngine{
		probeInfo: &engine.MediaInfo{ID: "abc", Title: "My Clip", Ext: "mp4", VCodec: "h264"},
		downloadFn: func(hook engine.ProgressFunc) (*engine.MediaInfo, error) {
			hook(engine.ProgressEvent{Phase: engine.PhaseDownloading, DownloadedBytes: 50, TotalBytes: 100})
			hook(engine.ProgressEvent{Phase: engine.PhaseFinished})
			path := writeArtifact(t, dir, "My Clip_abc.mp4", "video-bytes")
			return &engine.MediaInfo{Filename: path}, nil
		},
	}
	hist := &fakeHistorian{}
	c, st := newController(t, dir, eng, fakeImages{}, hist)

	result, err := c.Run(context.Background(), "https://youtu.be/abc", media.PlatformYouTube, media.KindVideo)
	require.NoError(t, err)
	require.Equal(t, "job-1", result.JobID)
	require.Equal(t, "My Clip_abc.mp4", result.Filename)
	require.Equal(t, int64(len("video-bytes")), result.FileSize)
	require.Equal(t, media.PlatformYouTube, result.Platform)
	require.Equal(t, media.KindVideo, result.MediaKind)

	job, ok := st.Get("job-1")
	require.True(t, ok)
	require.Equal(t, store.StatusDone, job.Status)
	require.Equal(t, 100, job.Percent)
	require.Equal(t, "My Clip_abc.mp4", job.Filename)
	require.Empty(t, job.Error)

	require.Len(t, hist.recs, 1)
	require.Equal(t, "job-1", hist.recs[0].JobID)
	require.Equal(t, "My Clip_abc.mp4", hist.recs[0].Filename)
	require.Equal(t, "https://youtu.be/abc", hist.recs[0].SourceURL)
}

func TestRun_SanitizesArtifactName(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	eng := &fakeEngine{
		probeInfo: &engine.MediaInfo{ID: "abc", Ext: "mp4", VCodec: "h264"},
		downloadFn: func(engine.ProgressFunc) (*engine.MediaInfo, error) {
			path := writeArtifact(t, dir, `My "Weird" Clip.mp4`, "data")
			return &engine.MediaInfo{Filename: path}, nil
		},
	}
	c, st := newController(t, dir, eng, fakeImages{}, nil)

	result, err := c.Run(context.Background(), "https://youtu.be/abc", media.PlatformYouTube, media.KindVideo)
	require.NoError(t, err)
	require.Equal(t, `My _Weird_ Clip.mp4`, result.Filename)
	require.FileExists(t, filepath.Join(dir, result.Filename))

	job, _ := st.Get("job-1")
	require.Equal(t, result.Filename, job.Filename)
}

func TestRun_SanitizeCollisionAddsEpochSuffix(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	// The sanitized name is already taken by an earlier download.
	writeArtifact(t, dir, "clip_.mp4", "existing")
	eng := &fakeEngine{
		probeInfo: &engine.MediaInfo{ID: "abc", Ext: "mp4", VCodec: "h264"},
		downloadFn: func(engine.ProgressFunc) (*engine.MediaInfo, error) {
			path := writeArtifact(t, dir, "clip?.mp4", "data")
			return &engine.MediaInfo{Filename: path}, nil
		},
	}
	c, _ := newController(t, dir, eng, fakeImages{}, nil)

	result, err := c.Run(context.Background(), "https://youtu.be/abc", media.PlatformYouTube, media.KindVideo)
	require.NoError(t, err)
	require.Equal(t, "clip__1750000000.mp4", result.Filename)
	require.FileExists(t, filepath.Join(dir, result.Filename))
}

func TestRun_ProbeFailureClassified(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	eng := &fakeEngine{probeErr: errors.New("ERROR: this video is private")}
	c, st := newController(t, dir, eng, fakeImages{}, nil)

	_, err := c.Run(context.Background(), "https://youtu.be/abc", media.PlatformYouTube, media.KindVideo)
	var classified *engine.Error
	require.ErrorAs(t, err, &classified)
	require.Equal(t, engine.KindPrivate, classified.Kind)
	require.False(t, eng.downloaded)

	job, _ := st.Get("job-1")
	require.Equal(t, store.StatusError, job.Status)
	require.Equal(t, "This content is private and cannot be downloaded", job.Error)
}

func TestRun_NilProbeInfo(t *testing.T) {
	t.Parallel()

	c, st := newController(t, t.TempDir(), &fakeEngine{}, fakeImages{}, nil)

	_, err := c.Run(context.Background(), "https://youtu.be/abc", media.PlatformYouTube, media.KindVideo)
	var classified *engine.Error
	require.ErrorAs(t, err, &classified)
	require.Equal(t, engine.KindAccess, classified.Kind)
	require.Equal(t, "Could not extract media information from URL", classified.Message)

	job, _ := st.Get("job-1")
	require.Equal(t, store.StatusError, job.Status)
}

func TestRun_ArtifactMissing(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	eng := &fakeEngine{
		probeInfo: &engine.MediaInfo{ID: "abc", Ext: "mp4", VCodec: "h264"},
		downloadFn: func(engine.ProgressFunc) (*engine.MediaInfo, error) {
			return &engine.MediaInfo{Filename: filepath.Join(dir, "never_written.mp4")}, nil
		},
	}
	c, st := newController(t, dir, eng, fakeImages{}, nil)

	_, err := c.Run(context.Background(), "https://youtu.be/abc", media.PlatformYouTube, media.KindVideo)
	var classified *engine.Error
	require.ErrorAs(t, err, &classified)
	require.Equal(t, engine.KindFileNotFound, classified.Kind)
	require.Equal(t, "Download completed but video file not found. Please try again.", classified.Message)

	job, _ := st.Get("job-1")
	require.Equal(t, store.StatusError, job.Status)
}

func TestRun_EmptyArtifactFails(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	eng := &fakeEngine{
		probeInfo: &engine.MediaInfo{ID: "abc", Ext: "mp4", VCodec: "h264"},
		downloadFn: func(engine.ProgressFunc) (*engine.MediaInfo, error) {
			path := writeArtifact(t, dir, "empty.mp4", "")
			return &engine.MediaInfo{Filename: path}, nil
		},
	}
	c, st := newController(t, dir, eng, fakeImages{}, nil)

	_, err := c.Run(context.Background(), "https://youtu.be/abc", media.PlatformYouTube, media.KindVideo)
	var classified *engine.Error
	require.ErrorAs(t, err, &classified)
	require.Equal(t, engine.KindDownload, classified.Kind)
	require.Equal(t, "Downloaded file is empty", classified.Message)

	job, _ := st.Get("job-1")
	require.Equal(t, store.StatusError, job.Status)
}

func TestRun_DownloadFailureClassified(t *testing.T) {
	t.Parallel()

	eng := &fakeEngine{
		probeInfo:   &engine.MediaInfo{ID: "abc", Ext: "mp4", VCodec: "h264"},
		downloadErr: errors.New("requested format not found"),
	}
	c, st := newController(t, t.TempDir(), eng, fakeImages{}, nil)

	_, err := c.Run(context.Background(), "https://youtu.be/abc", media.PlatformYouTube, media.KindVideo)
	var classified *engine.Error
	require.ErrorAs(t, err, &classified)
	require.Equal(t, engine.KindNoFormat, classified.Kind)

	job, _ := st.Get("job-1")
	require.Equal(t, store.StatusError, job.Status)
	require.Equal(t, "No suitable video/audio format found for this content", job.Error)
}

func TestRun_PhotoSuccess(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := writeArtifact(t, dir, "sunset_abc.jpg", "jpeg-bytes")
	eng := &fakeEngine{
		probeInfo: &engine.MediaInfo{ID: "abc", Ext: "jpg", Thumbnail: "https://cdn/thumb.jpg"},
	}
	c, st := newController(t, dir, eng, fakeImages{path: path}, nil)

	result, err := c.Run(context.Background(), "https://www.instagram.com/p/abc/", media.PlatformInstagram, media.KindPhoto)
	require.NoError(t, err)
	require.Equal(t, "sunset_abc.jpg", result.Filename)
	require.False(t, eng.downloaded, "photo jobs must not delegate to the engine")

	job, _ := st.Get("job-1")
	require.Equal(t, store.StatusDone, job.Status)
	require.Equal(t, 100, job.Percent)
}

func TestRun_PhotoOnVideoURLReportsMismatch(t *testing.T) {
	t.Parallel()

	eng := &fakeEngine{
		probeInfo: &engine.MediaInfo{ID: "abc", Ext: "mp4", VCodec: "h264", URL: "https://cdn/video.mp4"},
	}
	c, st := newController(t, t.TempDir(), eng, fakeImages{err: errors.New("no image url")}, nil)

	_, err := c.Run(context.Background(), "https://youtu.be/abc", media.PlatformYouTube, media.KindPhoto)
	var classified *engine.Error
	require.ErrorAs(t, err, &classified)
	require.Equal(t, engine.KindWrongMediaKind, classified.Kind)
	require.Equal(t, "This URL contains a video, not a photo. Please select 'Video' or 'Reel' instead.", classified.Message)

	job, _ := st.Get("job-1")
	require.Equal(t, store.StatusError, job.Status)
}

func TestRun_PhotoFetchFailureOnRealImage(t *testing.T) {
	t.Parallel()

	eng := &fakeEngine{
		probeInfo: &engine.MediaInfo{ID: "abc", Ext: "jpg", Thumbnail: "https://cdn/thumb.jpg"},
	}
	c, _ := newController(t, t.TempDir(), eng, fakeImages{err: errors.New("http 403")}, nil)

	_, err := c.Run(context.Background(), "https://www.instagram.com/p/abc/", media.PlatformInstagram, media.KindPhoto)
	var classified *engine.Error
	require.ErrorAs(t, err, &classified)
	require.Equal(t, engine.KindDownload, classified.Kind)
	require.Equal(t, "Failed to download photo: http 403", classified.Message)
}

func TestRun_HistorianFailureDoesNotFailJob(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	eng := &fakeEngine{
		probeInfo: &engine.MediaInfo{ID: "abc", Ext: "mp4", VCodec: "h264"},
		downloadFn: func(engine.ProgressFunc) (*engine.MediaInfo, error) {
			path := writeArtifact(t, dir, "clip.mp4", "data")
			return &engine.MediaInfo{Filename: path}, nil
		},
	}
	hist := &fakeHistorian{err: errors.New("disk full")}
	c, st := newController(t, dir, eng, fakeImages{}, hist)

	result, err := c.Run(context.Background(), "https://youtu.be/abc", media.PlatformYouTube, media.KindVideo)
	require.NoError(t, err)
	require.Equal(t, "clip.mp4", result.Filename)

	job, _ := st.Get("job-1")
	require.Equal(t, store.StatusDone, job.Status)
}

func TestLooksLikeImage(t *testing.T) {
	t.Parallel()

	require.True(t, looksLikeImage("u", media.PlatformYouTube, &engine.MediaInfo{Ext: "PNG"}))
	require.True(t, looksLikeImage("u", media.PlatformYouTube, &engine.MediaInfo{VCodec: "none", Thumbnail: "t"}))
	require.True(t, looksLikeImage("https://www.instagram.com/p/abc/", media.PlatformInstagram, &engine.MediaInfo{VCodec: "h264"}))
	require.True(t, looksLikeImage("u", media.PlatformYouTube, &engine.MediaInfo{VCodec: "h264", Thumbnail: "t", URL: ""}))
	require.False(t, looksLikeImage("https://youtu.be/abc", media.PlatformYouTube, &engine.MediaInfo{Ext: "mp4", VCodec: "h264", URL: "https://cdn/v.mp4"}))
}
