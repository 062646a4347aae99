// Package progress adapts the extraction engine's bursty, heterogeneous
// callbacks into normalized store updates. Percent values are banded so a
// client sees continuous, monotonically increasing progress across backend
// phases that share no unit of work: downloading owns 20-90 (85 when totals
// are unknown), finished jumps to 92, postprocessing to 95, and finalization
// claims 100.
package progress

import (
	"github.com/mediadl/mediadl/internal/engine"
	"github.com/mediadl/mediadl/internal/store"
)

// Band boundaries for engine-reported phases.
const (
	downloadBandLow    = 20
	downloadBandHigh   = 90
	fallbackCeiling    = 85
	finishedPercent    = 92
	postprocessPercent = 95
)

// NewHook returns a progress sink bound to one job. The sink only writes to
// the store and returns immediately; it never blocks on the HTTP response or
// a streaming session, and it never fails. An engine-reported error is
// recorded for the controller to act on.
func NewHook(jobID string, st store.Store) engine.ProgressFunc {
	return func(ev engine.ProgressEvent) {
		switch ev.Phase {
		case engine.PhaseDownloading:
			handleDownloading(jobID, st, ev)
		case engine.PhaseFinished:
			st.Update(jobID, store.Update{
				Status:  statusPtr(store.StatusProcessing),
				Percent: intPtr(finishedPercent),
			})
		case engine.PhasePostprocessing:
			st.Update(jobID, store.Update{
				Status:  statusPtr(store.StatusProcessing),
				Percent: intPtr(postprocessPercent),
			})
		case engine.PhaseError:
			msg := ev.Err
			if msg == "" {
				msg = "Unknown error"
			}
			st.Update(jobID, store.Update{
				Status: statusPtr(store.StatusError),
				Error:  &msg,
			})
		}
	}
}

func handleDownloading(jobID string, st store.Store, ev engine.ProgressEvent) {
	downloading := store.StatusDownloading
	switch {
	case ev.TotalBytes > 0 && ev.DownloadedBytes > 0:
		pct := int(ev.DownloadedBytes * 100 / ev.TotalBytes)
		pct = clampBand(pct, downloadBandLow, downloadBandHigh)
		st.Update(jobID, store.Update{
			Status:          &downloading,
			Percent:         &pct,
			DownloadedBytes: &ev.DownloadedBytes,
			TotalBytes:      &ev.TotalBytes,
		})
	case ev.DownloadedBytes > 0:
		// Total unknown: advance byte counters without moving percent.
		st.Update(jobID, store.Update{
			Status:          &downloading,
			DownloadedBytes: &ev.DownloadedBytes,
		})
	default:
		// Neither known: creep forward so the stream stays visibly alive,
		// capped well short of anything implying completion.
		current := downloadBandLow
		if job, ok := st.Get(jobID); ok && job.Percent > current {
			current = job.Percent
		}
		next := current + 1
		if next > fallbackCeiling {
			next = fallbackCeiling
		}
		st.Update(jobID, store.Update{
			Status:  &downloading,
			Percent: &next,
		})
	}
}

func clampBand(v, low, high int) int {
	if v < low {
		return low
	}
	if v > high {
		return high
	}
	return v
}

func statusPtr(s store.Status) *store.Status { return &s }

func intPtr(v int) *int { return &v }
