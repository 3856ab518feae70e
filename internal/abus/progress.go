package abus

import (
	"fmt"
	"time"
)

// progressWindowSize is how far back completions count towards the rate.
const progressWindowSize = 5 * time.Second

type progressSample struct {
	at    time.Time
	files int
}

// progressWindow estimates throughput over the last few seconds of completions.
type progressWindow struct {
	size    time.Duration
	samples []progressSample
}

func newProgressWindow(size time.Duration) *progressWindow {
	return &progressWindow{size: size}
}

// Observe records that files completed at time now and drops samples that
// fell out of the window.
func (w *progressWindow) Observe(now time.Time, files int) {
	w.samples = append(w.samples, progressSample{at: now, files: files})
	cutoff := now.Add(-w.size)
	i := 0
	for i < len(w.samples) && w.samples[i].at.Before(cutoff) {
		i++
	}
	w.samples = w.samples[i:]
}

// Rate returns completed files per second over the window. A window that
// spans less than a second is treated as one second long.
func (w *progressWindow) Rate(now time.Time) float64 {
	if len(w.samples) == 0 {
		return 0
	}
	total := 0
	for _, s := range w.samples {
		total += s.files
	}
	span := now.Sub(w.samples[0].at)
	if span < time.Second {
		span = time.Second
	}
	return float64(total) / span.Seconds()
}

// RestoreProgress is the running state of a restore.
type RestoreProgress struct {
	Total          int
	Completed      int // successes and failures
	Errors         int // failures other than CannotOverwriteError
	NotOverwritten int
	Started        time.Time
}

// Restored returns the number of files written successfully.
func (p RestoreProgress) Restored() int {
	return p.Completed - p.Errors - p.NotOverwritten
}

// statusLine renders "done/total pct% rate/s ETA:Nmin lastpath".
func statusLine(p RestoreProgress, rate float64, last string) string {
	pct := 100
	if p.Total > 0 {
		pct = p.Completed * 100 / p.Total
	}
	eta := "?"
	if rate > 0 {
		remaining := float64(p.Total-p.Completed) / rate
		eta = fmt.Sprintf("%.0f", remaining/60)
	}
	return fmt.Sprintf("%d/%d %d%% %.1f/s ETA:%smin %s", p.Completed, p.Total, pct, rate, eta, last)
}

// summaryLine renders the final restore report.
func summaryLine(p RestoreProgress, elapsed time.Duration) string {
	return fmt.Sprintf("%d files restored in %.1f min, %d errors, %d files not overwritten",
		p.Restored(), elapsed.Minutes(), p.Errors, p.NotOverwritten)
}
