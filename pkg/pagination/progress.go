package pagination

import (
	"github.com/rs/zerolog"
)

// Progress is reported after every fetched page.
type Progress struct {
	// Label names the fetch, usually the job ID.
	Label string

	// Page is the 1-based number of the page just merged.
	Page int

	// Fetched is the number of results received so far.
	Fetched int

	// Total is the number of results the service declared, or -1.
	Total int

	// Failed is the number of identifiers the service reported as failed
	// so far.
	Failed int
}

// Done reports whether all declared results have been received.
func (p Progress) Done() bool {
	return p.Total >= 0 && p.Fetched >= p.Total
}

// ProgressSink receives progress updates. Implementations must be safe for
// concurrent use when shared by parallel chunk pipelines.
type ProgressSink interface {
	Report(p Progress)
}

// ProgressFunc adapts a function to ProgressSink.
type ProgressFunc func(Progress)

// Report implements ProgressSink.
func (f ProgressFunc) Report(p Progress) { f(p) }

// LogProgress returns a sink writing debug-level progress lines.
func LogProgress(logger zerolog.Logger) ProgressSink {
	return ProgressFunc(func(p Progress) {
		ev := logger.Debug().
			Str("label", p.Label).
			Int("page", p.Page).
			Int("fetched", p.Fetched).
			Int("failed", p.Failed)
		if p.Total >= 0 {
			ev = ev.Int("total", p.Total)
			if p.Total > 0 {
				ev = ev.Float64("progress_pct", float64(p.Fetched)/float64(p.Total)*100)
			}
		}
		ev.Msg("Fetch progress")
	})
}
