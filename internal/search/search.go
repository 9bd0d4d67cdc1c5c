package search

import (
	"context"
	"fmt"
	"math"

	"github.com/five82/crfscan/internal/errors"
	"github.com/five82/crfscan/internal/ffmpeg"
)

// Probe is one evaluated CRF point.
type Probe struct {
	Crf float64
	// Score is the finite mean score; infinite scores clamp and set
	// ScoreInf.
	Score    float64
	ScoreInf bool
	// EncodePercent is the predicted full-encode size as a percentage of
	// the reference's video stream.
	EncodePercent float64
}

// EvalFunc runs one sample encode at a CRF and reports the outcome.
type EvalFunc func(ctx context.Context, crf float64) (Probe, error)

// Options bound and direct the search.
type Options struct {
	MinCrf    float64
	MaxCrf    float64
	Increment float64
	// MinQuality is the score floor the accepted CRF must satisfy.
	MinQuality float64
	// MaxEncodedPercent is the hard size ceiling; zero or below disables it.
	MaxEncodedPercent float64
	// DefaultRangeWidth is the encoder family's default search width; the
	// configured range's width relative to it picks the initial slicing.
	DefaultRangeWidth float64
	// Thorough additionally confirms the rejected neighbour of the
	// accepted CRF.
	Thorough bool
}

// Result is a completed search.
type Result struct {
	// Crf is the accepted value: the largest CRF meeting the quality floor
	// and the size ceiling.
	Crf float64
	// Best is the probe at the accepted CRF.
	Best Probe
	// Probes lists every evaluation taken, in order.
	Probes []Probe
}

// narrowRangeFactor: a configured range under half the family default width
// skips the wide initial probes and starts from the midpoint.
const narrowRangeFactor = 0.5

// Initial slicing of a wide range, fractions of the configured width.
const (
	probeLowFraction  = 0.2
	probeHighFraction = 0.8
)

type searcher struct {
	opts   Options
	axis   Axis
	eval   EvalFunc
	lo, hi int64

	probes    []Probe
	probed    map[int64]Probe
	passBound int64 // largest unit known to satisfy quality; lo-1 when none
	failBound int64 // smallest unit known to miss quality; hi+1 when none
	lastUnit  int64
}

// Run drives the search: slice the range, collapse the bounds around the
// quality boundary by monotone interpolation, then validate the size
// ceiling, walking toward higher CRF when it binds.
func Run(ctx context.Context, opts Options, eval EvalFunc) (*Result, error) {
	if opts.Increment <= 0 {
		opts.Increment = 1
	}
	axis := Axis{Increment: opts.Increment}
	lo := axis.Unit(opts.MinCrf)
	hi := axis.Unit(opts.MaxCrf)
	if hi < lo {
		return nil, errors.NewConfigError(fmt.Sprintf(
			"min crf %s is above max crf %s",
			ffmpeg.FormatCrf(opts.MinCrf, opts.Increment),
			ffmpeg.FormatCrf(opts.MaxCrf, opts.Increment)))
	}

	s := &searcher{
		opts:      opts,
		axis:      axis,
		eval:      eval,
		lo:        lo,
		hi:        hi,
		probed:    make(map[int64]Probe),
		passBound: lo - 1,
		failBound: hi + 1,
	}

	if err := s.initialProbes(ctx); err != nil {
		return nil, err
	}
	if err := s.iterate(ctx); err != nil {
		return nil, err
	}
	return s.accept(ctx)
}

func (s *searcher) passes(p Probe) bool {
	return p.ScoreInf || p.Score >= s.opts.MinQuality
}

func (s *searcher) withinCeiling(p Probe) bool {
	return s.opts.MaxEncodedPercent <= 0 || p.EncodePercent <= s.opts.MaxEncodedPercent
}

func (s *searcher) evalUnit(ctx context.Context, u int64) (Probe, error) {
	if err := ctx.Err(); err != nil {
		return Probe{}, errors.NewCancelledError()
	}

	p, err := s.eval(ctx, s.axis.Crf(u))
	if err != nil {
		return Probe{}, err
	}
	p.Crf = s.axis.Crf(u)

	s.probes = append(s.probes, p)
	s.probed[u] = p
	s.lastUnit = u
	if s.passes(p) {
		if u > s.passBound {
			s.passBound = u
		}
	} else if u < s.failBound {
		s.failBound = u
	}
	return p, nil
}

// initialProbes slices the configured range. Wide ranges take the widened
// 20/80 probes; ranges under half the family default width go straight to
// the midpoint.
func (s *searcher) initialProbes(ctx context.Context) error {
	width := s.hi - s.lo
	if width == 0 {
		_, err := s.evalUnit(ctx, s.lo)
		return err
	}

	narrow := s.opts.DefaultRangeWidth > 0 &&
		s.axis.Crf(width) < narrowRangeFactor*s.opts.DefaultRangeWidth
	if narrow {
		_, err := s.evalUnit(ctx, s.lo+(width+1)/2)
		return err
	}

	q1 := s.lo + int64(math.Round(probeLowFraction*float64(width)))
	q2 := s.lo + int64(math.Round(probeHighFraction*float64(width)))
	q1 = clampUnit(q1, s.lo, s.hi)
	q2 = clampUnit(q2, s.lo, s.hi)
	if q2 == q1 {
		q2 = clampUnit(q1+1, s.lo, s.hi)
	}

	if _, err := s.evalUnit(ctx, q1); err != nil {
		return err
	}
	if q2 != q1 {
		if _, err := s.evalUnit(ctx, q2); err != nil {
			return err
		}
	}
	return nil
}

// iterate collapses the active range around the quality boundary. Each
// round probes a fresh unit strictly inside the bounds, so the range
// shrinks every time; the loop ends when the range empties or the model
// re-proposes an already-probed CRF.
func (s *searcher) iterate(ctx context.Context) error {
	for {
		aLo := s.passBound + 1
		if aLo < s.lo {
			aLo = s.lo
		}
		aHi := s.failBound - 1
		if aHi > s.hi {
			aHi = s.hi
		}
		if aLo > aHi {
			return nil // range collapsed below the increment
		}

		u := s.nextUnit(aLo, aHi)
		if _, seen := s.probed[u]; seen {
			return nil // consecutive probes landed on the same rounded CRF
		}
		if _, err := s.evalUnit(ctx, u); err != nil {
			return err
		}
	}
}

// nextUnit picks the next CRF to probe inside [aLo, aHi].
func (s *searcher) nextUnit(aLo, aHi int64) int64 {
	if len(s.probes) >= 2 {
		if crf := interpolateCrf(s.probes, s.opts.MinQuality); crf != nil {
			return clampUnit(s.axis.Unit(*crf), aLo, aHi)
		}
		// Colinear or degenerate probes: step one increment toward the
		// range centre.
		centre := (aLo + aHi) / 2
		switch {
		case centre > s.lastUnit:
			return clampUnit(s.lastUnit+1, aLo, aHi)
		case centre < s.lastUnit:
			return clampUnit(s.lastUnit-1, aLo, aHi)
		default:
			return centre
		}
	}
	return (aLo + aHi) / 2
}

// accept validates the best passing probe against the size ceiling, walking
// toward higher CRF while quality holds; thorough mode additionally
// confirms the neighbour one increment up would have been rejected.
func (s *searcher) accept(ctx context.Context) (*Result, error) {
	if s.passBound < s.lo {
		return nil, errors.NewNoAcceptableCrfError(
			fmt.Sprintf("quality %s not reached", s.fmtQuality()),
			ffmpeg.FormatCrf(s.axis.Crf(s.lastUnit), s.opts.Increment))
	}
	accepted := s.probed[s.passBound]

	for !s.withinCeiling(accepted) {
		nextU := s.axis.Unit(accepted.Crf) + 1
		if nextU > s.hi {
			return nil, errors.NewNoAcceptableCrfError(
				fmt.Sprintf("predicted size %.1f%% exceeds max %.1f%%",
					accepted.EncodePercent, s.opts.MaxEncodedPercent),
				ffmpeg.FormatCrf(accepted.Crf, s.opts.Increment))
		}
		p, seen := s.probed[nextU]
		if !seen {
			var err error
			if p, err = s.evalUnit(ctx, nextU); err != nil {
				return nil, err
			}
		}
		if !s.passes(p) {
			return nil, errors.NewNoAcceptableCrfError(
				fmt.Sprintf("size ceiling %.1f%% cannot be met while holding quality %s",
					s.opts.MaxEncodedPercent, s.fmtQuality()),
				ffmpeg.FormatCrf(p.Crf, s.opts.Increment))
		}
		accepted = p
	}

	if s.opts.Thorough {
		// The accepted CRF is only returned once its higher neighbour has
		// been evaluated and confirmed rejected.
		for {
			nextU := s.axis.Unit(accepted.Crf) + 1
			if nextU > s.hi {
				break
			}
			p, seen := s.probed[nextU]
			if !seen {
				var err error
				if p, err = s.evalUnit(ctx, nextU); err != nil {
					return nil, err
				}
			}
			if s.passes(p) && s.withinCeiling(p) {
				accepted = p
				continue
			}
			break
		}
	}

	return &Result{
		Crf:    accepted.Crf,
		Best:   accepted,
		Probes: s.probes,
	}, nil
}

func (s *searcher) fmtQuality() string {
	return fmt.Sprintf("%.2f", s.opts.MinQuality)
}
