// Package sample plans and cuts the short lossless clips a CRF probe is
// measured on.
package sample

import (
	"math"

	"github.com/five82/crfscan/internal/ffprobe"
)

// Default planning parameters.
const (
	// DefaultSampleEvery spaces one sample per this many seconds of input.
	DefaultSampleEvery = 12 * 60.0
	// DefaultSampleDuration is the per-sample clip length in seconds.
	DefaultSampleDuration = 20.0
	// DefaultMinSamples is the minimum sample count.
	DefaultMinSamples = 1
	// DefaultMaxSamples bounds the sample count for very long references.
	DefaultMaxSamples = 16

	// fullPassThreshold collapses sampling to a single whole-reference pass
	// when the samples would cover this share of the input anyway.
	fullPassThreshold = 0.85
)

// Options configures the planner. Zero values take the defaults above.
type Options struct {
	SampleEvery    float64
	SampleDuration float64
	MinSamples     int
	MaxSamples     int
	// ExactSamples forces the sample count when positive.
	ExactSamples int
}

// Plan describes where samples are cut from the reference.
type Plan struct {
	// Samples lists the cut windows, ordered by start.
	Samples []Window
	// FullPass marks the degenerate single sample covering the whole
	// reference.
	FullPass bool
	// SampledSeconds is the total planned coverage.
	SampledSeconds float64
}

// Window is one sample's temporal extent within the reference.
type Window struct {
	Index    int
	Start    float64
	Duration float64
}

// NewPlan derives the sample plan for a reference. Still images and
// references mostly covered by their samples collapse to a single full
// pass.
func NewPlan(ref *ffprobe.Reference, opts Options) Plan {
	sampleEvery := opts.SampleEvery
	if sampleEvery <= 0 {
		sampleEvery = DefaultSampleEvery
	}
	d := opts.SampleDuration
	if d <= 0 {
		d = DefaultSampleDuration
	}
	minSamples := opts.MinSamples
	if minSamples < 1 {
		minSamples = DefaultMinSamples
	}
	maxSamples := opts.MaxSamples
	if maxSamples < minSamples {
		maxSamples = DefaultMaxSamples
		if maxSamples < minSamples {
			maxSamples = minSamples
		}
	}

	if ref.IsImage {
		return fullPass(ref.Duration)
	}

	n := int(math.Round(ref.Duration / sampleEvery))
	if opts.ExactSamples > 0 {
		n = opts.ExactSamples
	}
	n = clampInt(n, minSamples, maxSamples)

	if float64(n)*d >= fullPassThreshold*ref.Duration {
		return fullPass(ref.Duration)
	}

	// Centre the samples, avoiding both endpoints.
	plan := Plan{Samples: make([]Window, 0, n)}
	for i := 0; i < n; i++ {
		start := float64(i+1)*ref.Duration/float64(n+1) - d/2
		start = clampFloat(start, 0, ref.Duration-d)
		plan.Samples = append(plan.Samples, Window{Index: i, Start: start, Duration: d})
		plan.SampledSeconds += d
	}
	return plan
}

func fullPass(duration float64) Plan {
	return Plan{
		Samples:        []Window{{Index: 0, Start: 0, Duration: duration}},
		FullPass:       true,
		SampledSeconds: duration,
	}
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampFloat(v, lo, hi float64) float64 {
	if hi < lo {
		hi = lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
