// Package image retrieves single static images directly over HTTP. Photo
// jobs skip the full extraction-engine download: the probe already yields
// the image URL, and container/transcode logic buys nothing for one file.
package image

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mediadl/mediadl/internal/engine"
	"github.com/mediadl/mediadl/internal/media"
	"github.com/mediadl/mediadl/internal/store"
)

const (
	browserUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

	fetchTimeout = 30 * time.Second
	chunkSize    = 8 * 1024

	// The write loop reports percent inside the 80-95 band; earlier steps
	// (URL selection, request) claim fixed points below it.
	bandBase  = 80
	bandWidth = 15
)

// Fetcher downloads images into the managed download directory, reporting
// progress into the job record as it streams.
type Fetcher struct {
	client      *http.Client
	store       store.Store
	downloadDir string
	logger      *zap.Logger
}

// New constructs a Fetcher.
func New(st store.Store, downloadDir string, logger *zap.Logger) *Fetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fetcher{
		client:      &http.Client{Timeout: fetchTimeout},
		store:       st,
		downloadDir: downloadDir,
		logger:      logger,
	}
}

// Fetch downloads the best image the probe found and returns the file path.
func (f *Fetcher) Fetch(ctx context.Context, jobID string, info *engine.MediaInfo) (string, error) {
	f.progress(jobID, 50)

	imageURL := pickImageURL(info)
	if imageURL == "" {
		return "", errors.New("no image URL found in media information")
	}
	f.progress(jobID, 60)

	filename := initialFilename(info)
	path := filepath.Join(f.downloadDir, filename)
	f.progress(jobID, 70)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return "", fmt.Errorf("build image request: %w", err)
	}
	req.Header.Set("User-Agent", browserUserAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch image: %w", err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			f.logger.Warn("close image response", zap.Error(closeErr))
		}
	}()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetch image: unexpected status %d", resp.StatusCode)
	}

	// The probe's extension guess may be wrong; the response headers know.
	path = correctExtension(path, resp.Header.Get("Content-Type"))

	if err := f.writeFile(jobID, path, resp.Body, resp.ContentLength); err != nil {
		return "", err
	}
	f.progress(jobID, bandBase+bandWidth)

	fi, err := os.Stat(path)
	if err != nil || fi.Size() == 0 {
		return "", errors.New("image download failed - file is empty")
	}
	return path, nil
}

func (f *Fetcher) writeFile(jobID, path string, body io.Reader, total int64) error {
	out, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create image file: %w", err)
	}
	var downloaded int64
	buf := make([]byte, chunkSize)
	for {
		n, readErr := body.Read(buf)
		if n > 0 {
			if _, writeErr := out.Write(buf[:n]); writeErr != nil {
				_ = out.Close()
				return fmt.Errorf("write image file: %w", writeErr)
			}
			downloaded += int64(n)
			f.reportBytes(jobID, downloaded, total)
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			_ = out.Close()
			return fmt.Errorf("read image body: %w", readErr)
		}
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("close image file: %w", err)
	}
	return nil
}

func (f *Fetcher) reportBytes(jobID string, downloaded, total int64) {
	downloading := store.StatusDownloading
	u := store.Update{
		Status:          &downloading,
		DownloadedBytes: &downloaded,
	}
	if total > 0 {
		pct := bandBase + int(downloaded*100/total)*bandWidth/100
		u.Percent = &pct
		u.TotalBytes = &total
	}
	f.store.Update(jobID, u)
}

func (f *Fetcher) progress(jobID string, pct int) {
	downloading := store.StatusDownloading
	f.store.Update(jobID, store.Update{Status: &downloading, Percent: &pct})
}

// pickImageURL prefers the probe's thumbnail, which for photo posts is the
// full-resolution asset, over the generic media URL.
func pickImageURL(info *engine.MediaInfo) string {
	if info.Thumbnail != "" {
		return info.Thumbnail
	}
	return info.URL
}

func initialFilename(info *engine.MediaInfo) string {
	title := info.Title
	if title == "" {
		title = info.ID
	}
	if title == "" {
		title = "image"
	}
	id := info.ID
	if id == "" {
		id = uuid.NewString()[:8]
	}
	return fmt.Sprintf("%s_%s.jpg", media.SafeFilename(title), id)
}

func correctExtension(path, contentType string) string {
	ct := strings.ToLower(contentType)
	switch {
	case strings.Contains(ct, "png"):
		return strings.TrimSuffix(path, ".jpg") + ".png"
	case strings.Contains(ct, "webp"):
		return strings.TrimSuffix(path, ".jpg") + ".webp"
	case strings.Contains(ct, "gif"):
		return strings.TrimSuffix(path, ".jpg") + ".gif"
	default:
		return path
	}
}
