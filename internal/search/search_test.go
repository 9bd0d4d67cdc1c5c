package search

import (
	"context"
	"math"
	"testing"

	"github.com/five82/crfscan/internal/errors"
)

// monotoneEval builds an evaluator with score = base - slope*crf and a
// fixed predicted encode percent.
func monotoneEval(base, slope, percent float64, count *int) EvalFunc {
	return func(_ context.Context, crf float64) (Probe, error) {
		if count != nil {
			*count++
		}
		return Probe{Score: base - slope*crf, EncodePercent: percent}, nil
	}
}

func svtOptions() Options {
	return Options{
		MinCrf: 10, MaxCrf: 55, Increment: 1,
		MinQuality:        80,
		DefaultRangeWidth: 45,
	}
}

func TestSearchConvergesOnMonotoneScores(t *testing.T) {
	// score = 100 - 0.5*crf, floor 80: the boundary is exactly crf 40.
	var probes int
	opts := svtOptions()
	res, err := Run(context.Background(), opts, monotoneEval(100, 0.5, 5, &probes))
	if err != nil {
		t.Fatal(err)
	}

	if res.Crf != 40 {
		t.Errorf("accepted crf = %v, want 40", res.Crf)
	}
	if res.Best.Score < 80 {
		t.Errorf("accepted score %v violates the floor", res.Best.Score)
	}
	if probes > 6 {
		t.Errorf("took %d probes, want <= 6 on monotone scores", probes)
	}
	if len(res.Probes) != probes {
		t.Errorf("probe log has %d entries, %d evaluations ran", len(res.Probes), probes)
	}
}

func TestSearchPrefersHigherCrfOnEqualScores(t *testing.T) {
	// Flat scorer above the floor everywhere: the whole range passes and
	// the largest crf (smallest file) wins.
	opts := svtOptions()
	res, err := Run(context.Background(), opts, monotoneEval(90, 0, 5, nil))
	if err != nil {
		t.Fatal(err)
	}
	if res.Crf != 55 {
		t.Errorf("accepted crf = %v, want the range max 55", res.Crf)
	}
}

func TestSearchQualityNeverReached(t *testing.T) {
	opts := svtOptions()
	_, err := Run(context.Background(), opts, monotoneEval(50, 0.5, 5, nil))
	if !errors.IsNoAcceptableCrf(err) {
		t.Fatalf("expected NoAcceptableCrf, got %v", err)
	}
}

func TestSearchSinglePointRange(t *testing.T) {
	var probes int
	opts := svtOptions()
	opts.MinCrf, opts.MaxCrf = 30, 30

	res, err := Run(context.Background(), opts, monotoneEval(100, 0.5, 5, &probes))
	if err != nil {
		t.Fatal(err)
	}
	if probes != 1 {
		t.Errorf("min == max should take exactly one probe, took %d", probes)
	}
	if res.Crf != 30 {
		t.Errorf("accepted crf = %v, want 30", res.Crf)
	}

	// And the failing flavour.
	_, err = Run(context.Background(), opts, monotoneEval(50, 0.5, 5, nil))
	if !errors.IsNoAcceptableCrf(err) {
		t.Errorf("expected NoAcceptableCrf, got %v", err)
	}
}

func TestSearchFractionalIncrement(t *testing.T) {
	// libx264-style axis. score = 100 - (crf - 12), floor 75.75: the exact
	// boundary is 36.25, so the largest passing grid point is 36.2.
	opts := Options{
		MinCrf: 12, MaxCrf: 46, Increment: 0.1,
		MinQuality:        75.75,
		DefaultRangeWidth: 34,
	}
	eval := func(_ context.Context, crf float64) (Probe, error) {
		return Probe{Score: 100 - (crf - 12), EncodePercent: 5}, nil
	}

	res, err := Run(context.Background(), opts, eval)
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(res.Crf-36.2) > 1e-9 {
		t.Errorf("accepted crf = %v, want 36.2", res.Crf)
	}
}

func TestSearchInfiniteScoresMoveHigher(t *testing.T) {
	// A scorer pinned at +inf satisfies any floor; the search must walk to
	// the top of the range.
	eval := func(_ context.Context, crf float64) (Probe, error) {
		return Probe{Score: 999, ScoreInf: true, EncodePercent: 100 - crf}, nil
	}
	opts := svtOptions()
	opts.MaxEncodedPercent = 50

	res, err := Run(context.Background(), opts, eval)
	if err != nil {
		t.Fatal(err)
	}
	if res.Crf != 55 {
		t.Errorf("accepted crf = %v, want 55", res.Crf)
	}
	if res.Best.EncodePercent > 50 {
		t.Errorf("accepted percent %v violates the ceiling", res.Best.EncodePercent)
	}
}

func TestSearchSizeCeilingUnreachable(t *testing.T) {
	// Every point predicts 45-90%, ceiling 40%: distinct failure from the
	// quality floor.
	eval := func(_ context.Context, crf float64) (Probe, error) {
		return Probe{Score: 999, ScoreInf: true, EncodePercent: 100 - crf}, nil
	}
	opts := svtOptions()
	opts.MaxEncodedPercent = 40

	_, err := Run(context.Background(), opts, eval)
	if !errors.IsNoAcceptableCrf(err) {
		t.Fatalf("expected NoAcceptableCrf, got %v", err)
	}
	if errors.ExitCode(err) != 2 {
		t.Errorf("exit code = %d, want 2", errors.ExitCode(err))
	}
}

func TestSearchSizeWalkAcrossGap(t *testing.T) {
	// White-box: a converged search can leave unprobed units between the
	// bounds. The size validation walks up through them while quality
	// holds.
	eval := func(_ context.Context, crf float64) (Probe, error) {
		p := Probe{Score: 96, EncodePercent: 9}
		if crf < 23 {
			p.EncodePercent = 15
		}
		if crf > 30 {
			p.Score = 70
		}
		return p, nil
	}

	s := &searcher{
		opts: Options{
			MinCrf: 10, MaxCrf: 55, Increment: 1,
			MinQuality: 95, MaxEncodedPercent: 10,
		},
		axis:      Axis{Increment: 1},
		eval:      eval,
		lo:        10,
		hi:        55,
		probed:    make(map[int64]Probe),
		passBound: 22,
		failBound: 46,
	}
	s.probed[22] = Probe{Crf: 22, Score: 96, EncodePercent: 15}
	s.probed[46] = Probe{Crf: 46, Score: 70, EncodePercent: 8}
	s.probes = []Probe{s.probed[22], s.probed[46]}

	res, err := s.accept(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.Crf != 23 {
		t.Errorf("accepted crf = %v, want 23", res.Crf)
	}
	if res.Best.EncodePercent > 10 {
		t.Errorf("accepted percent %v violates the ceiling", res.Best.EncodePercent)
	}
}

func TestSearchSizeWalkFailsWhenQualityBreaks(t *testing.T) {
	// The size ceiling binds but every higher crf misses the floor.
	eval := func(_ context.Context, crf float64) (Probe, error) {
		return Probe{Score: 100 - 0.5*crf, EncodePercent: 20}, nil
	}
	opts := svtOptions()
	opts.MaxEncodedPercent = 10

	_, err := Run(context.Background(), opts, eval)
	if !errors.IsNoAcceptableCrf(err) {
		t.Fatalf("expected NoAcceptableCrf, got %v", err)
	}
}

func TestSearchThoroughEvaluatesNeighbour(t *testing.T) {
	opts := svtOptions()
	opts.Thorough = true

	res, err := Run(context.Background(), opts, monotoneEval(100, 0.5, 5, nil))
	if err != nil {
		t.Fatal(err)
	}
	if res.Crf != 40 {
		t.Fatalf("accepted crf = %v, want 40", res.Crf)
	}

	var sawNeighbour bool
	for _, p := range res.Probes {
		if p.Crf == 41 {
			sawNeighbour = true
			if p.Score >= opts.MinQuality {
				t.Error("neighbour at 41 should have been rejected")
			}
		}
	}
	if !sawNeighbour {
		t.Error("thorough mode must evaluate the neighbour above the accepted crf")
	}
}

func TestSearchNarrowRangeSkipsWideProbes(t *testing.T) {
	// A user range under half the default width starts from the midpoint.
	var firstCrf float64
	first := true
	eval := func(_ context.Context, crf float64) (Probe, error) {
		if first {
			firstCrf = crf
			first = false
		}
		return Probe{Score: 100 - 0.5*crf, EncodePercent: 5}, nil
	}

	opts := svtOptions()
	opts.MinCrf, opts.MaxCrf = 38, 44
	opts.MinQuality = 79.5 // boundary at crf 41

	res, err := Run(context.Background(), opts, eval)
	if err != nil {
		t.Fatal(err)
	}
	if firstCrf != 41 {
		t.Errorf("first probe = %v, want the midpoint 41", firstCrf)
	}
	if res.Crf != 41 {
		t.Errorf("accepted crf = %v, want 41", res.Crf)
	}
}

func TestSearchCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	eval := func(_ context.Context, crf float64) (Probe, error) {
		cancel() // cancel after the first evaluation returns
		return Probe{Score: 90, EncodePercent: 5}, nil
	}

	_, err := Run(ctx, svtOptions(), eval)
	if !errors.IsCancelled(err) {
		t.Errorf("expected cancellation, got %v", err)
	}
}

func TestSearchInvalidRange(t *testing.T) {
	opts := svtOptions()
	opts.MinCrf, opts.MaxCrf = 50, 20
	_, err := Run(context.Background(), opts, monotoneEval(100, 0.5, 5, nil))
	if !errors.IsKind(err, errors.KindConfig) {
		t.Errorf("expected config error, got %v", err)
	}
}

func TestAxisRounding(t *testing.T) {
	a := Axis{Increment: 0.1}

	tests := []struct {
		crf      float64
		expected float64
	}{
		{22.44, 22.4},
		{22.46, 22.5},
		{22.45, 22.5}, // ties round up, toward the smaller file
		{30, 30},
	}
	for _, tt := range tests {
		if got := a.Round(tt.crf); math.Abs(got-tt.expected) > 1e-9 {
			t.Errorf("Round(%v) = %v, want %v", tt.crf, got, tt.expected)
		}
	}

	whole := Axis{Increment: 1}
	if got := whole.Round(27.5); got != 28 {
		t.Errorf("Round(27.5) = %v, want 28 (ties up)", got)
	}
}
