package reporter

import (
	"math"
	"time"
)

// etaAlpha is the smoothing factor for the throughput estimate. Small
// enough to damp ffmpeg's bursty progress, large enough to track preset
// changes between stages.
const etaAlpha = 0.2

// maxETA clamps the estimate; overflow never propagates to the display.
const maxETA = 99 * time.Hour

// EtaTracker derives an ETA from recent throughput using an exponentially
// smoothed rate.
type EtaTracker struct {
	rate     float64 // units of work per second, smoothed
	lastWork float64
	lastTime time.Time
}

// Update feeds the tracker with total work done so far (frames or seconds
// of media) at the given instant, and returns the smoothed ETA toward
// totalWork.
func (t *EtaTracker) Update(workDone, totalWork float64, now time.Time) time.Duration {
	if !t.lastTime.IsZero() {
		dt := now.Sub(t.lastTime).Seconds()
		dw := workDone - t.lastWork
		if dt > 0 && dw >= 0 {
			instant := dw / dt
			if t.rate == 0 {
				t.rate = instant
			} else {
				t.rate = etaAlpha*instant + (1-etaAlpha)*t.rate
			}
		}
	}
	t.lastWork = workDone
	t.lastTime = now

	return t.estimate(workDone, totalWork)
}

func (t *EtaTracker) estimate(workDone, totalWork float64) time.Duration {
	remaining := totalWork - workDone
	if remaining <= 0 {
		return 0
	}
	if t.rate <= 0 {
		return maxETA
	}

	secs := remaining / t.rate
	if math.IsInf(secs, 0) || math.IsNaN(secs) || secs > maxETA.Seconds() {
		return maxETA
	}
	return time.Duration(secs * float64(time.Second))
}
