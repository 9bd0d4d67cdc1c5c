// Package quality measures perceptual quality of a distorted clip against
// its reference by driving ffmpeg's libvmaf and xpsnr filters.
package quality

import (
	"fmt"
	"math"
	"strings"
)

// Metric selects the scorer variant.
type Metric int

const (
	// MetricVmaf scores with libvmaf. Scores live in roughly [0, 100].
	MetricVmaf Metric = iota
	// MetricXpsnr scores with the xpsnr filter. Scores are dB and can be
	// infinite for identical frames.
	MetricXpsnr
)

func (m Metric) String() string {
	if m == MetricXpsnr {
		return "XPSNR"
	}
	return "VMAF"
}

// Default analysis frame rates.
const (
	DefaultVmafFps  = 25.0
	DefaultXpsnrFps = 60.0
)

// Spec is the complete set of quality-measurement parameters. Every field
// except Threads participates in the cache key.
type Spec struct {
	Metric Metric
	// VmafArgs are extra raw libvmaf options ("vmaf" CLI option).
	VmafArgs []string
	// Scale is "auto", "none", or an explicit "WxH".
	Scale string
	// Fps is the analysis frame rate; zero takes the metric default.
	Fps float64
	// ReferenceVFilter is applied to the reference leg before comparison.
	ReferenceVFilter string
	// Threads sizes the libvmaf thread pool; zero means logical CPU count.
	Threads int
}

// AnalysisFps resolves the analysis frame rate.
func (s *Spec) AnalysisFps() float64 {
	if s.Fps > 0 {
		return s.Fps
	}
	if s.Metric == MetricXpsnr {
		return DefaultXpsnrFps
	}
	return DefaultVmafFps
}

// Fingerprint renders every score-affecting field for the cache key.
func (s *Spec) Fingerprint() string {
	var b strings.Builder
	fmt.Fprintf(&b, "metric=%s;scale=%s;fps=%g;ref_vfilter=%s;",
		s.Metric, s.Scale, s.AnalysisFps(), s.ReferenceVFilter)
	for _, a := range s.VmafArgs {
		fmt.Fprintf(&b, "vmaf_arg=%s;", a)
	}
	return b.String()
}

// Score is one measured quality value.
type Score float64

// Inf reports whether the score is infinite. XPSNR yields +inf on
// bit-identical frames.
func (s Score) Inf() bool {
	return math.IsInf(float64(s), 1)
}

// Clamped returns a finite value for reporting. Infinite XPSNR clamps to
// the sentinel; VMAF is already bounded.
func (s Score) Clamped() float64 {
	if s.Inf() {
		return InfiniteScoreSentinel
	}
	return float64(s)
}

// Meets reports whether the score satisfies a quality floor. Infinite
// scores always satisfy it.
func (s Score) Meets(target float64) bool {
	return s.Inf() || float64(s) >= target
}

// InfiniteScoreSentinel stands in for +inf scores in reports and cached
// results.
const InfiniteScoreSentinel = 999.0
