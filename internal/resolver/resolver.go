// Package resolver locates the artifact a download actually produced. The
// extraction engine predicts an output path before post-processing runs, and
// a remux or transcode can change the final extension without updating that
// prediction, so the predicted path is treated as a hint to be verified.
package resolver

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mediadl/mediadl/internal/media"
)

// ErrNotFound signals that no plausible artifact exists.
var ErrNotFound = errors.New("artifact not found")

// recencyWindow guards the directory-scan fallback against picking up a
// stale file left behind by an unrelated earlier job.
const recencyWindow = 120 * time.Second

// Resolve finds the real output file for a finished download. First match
// wins: the predicted path verbatim, then the predicted base name with each
// kind-specific extension in priority order, then the most recently modified
// file of the right kind created within the recency window.
func Resolve(predicted string, kind media.Kind, searchDir string) (string, error) {
	if predicted != "" {
		if fileExists(predicted) {
			return predicted, nil
		}
		base := strings.TrimSuffix(predicted, filepath.Ext(predicted))
		for _, ext := range media.Extensions(kind) {
			candidate := base + ext
			if fileExists(candidate) {
				return candidate, nil
			}
		}
	}
	return scanRecent(searchDir, kind)
}

func scanRecent(dir string, kind media.Kind) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", ErrNotFound
	}
	allowed := make(map[string]bool, len(media.Extensions(kind)))
	for _, ext := range media.Extensions(kind) {
		allowed[ext] = true
	}

	var (
		newest     string
		newestTime time.Time
	)
	cutoff := time.Now().Add(-recencyWindow)
	for _, entry := range entries {
		if entry.IsDir() || !allowed[strings.ToLower(filepath.Ext(entry.Name()))] {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			continue
		}
		if info.ModTime().After(newestTime) {
			newestTime = info.ModTime()
			newest = filepath.Join(dir, entry.Name())
		}
	}
	if newest == "" {
		return "", ErrNotFound
	}
	return newest, nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
