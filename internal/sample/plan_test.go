package sample

import (
	"math"
	"testing"

	"github.com/five82/crfscan/internal/ffprobe"
)

func ref(duration float64) *ffprobe.Reference {
	return &ffprobe.Reference{Duration: duration, Fps: 24}
}

func TestPlanLongReference(t *testing.T) {
	// 60 minutes at one sample per 12 minutes -> 5 samples of 20s.
	plan := NewPlan(ref(3600), Options{})

	if plan.FullPass {
		t.Fatal("long reference should not collapse to full pass")
	}
	if len(plan.Samples) != 5 {
		t.Fatalf("expected 5 samples, got %d", len(plan.Samples))
	}
	if plan.SampledSeconds != 100 {
		t.Errorf("SampledSeconds = %v, want 100", plan.SampledSeconds)
	}

	// Samples are centred: t_i = (i+1)*duration/(n+1) - d/2.
	for i, s := range plan.Samples {
		want := float64(i+1)*3600/6 - 10
		if math.Abs(s.Start-want) > 1e-9 {
			t.Errorf("sample %d start = %v, want %v", i, s.Start, want)
		}
		if s.Duration != 20 {
			t.Errorf("sample %d duration = %v, want 20", i, s.Duration)
		}
	}

	// Neither endpoint is touched.
	first := plan.Samples[0]
	last := plan.Samples[len(plan.Samples)-1]
	if first.Start <= 0 {
		t.Error("first sample should not start at 0")
	}
	if last.Start+last.Duration >= 3600 {
		t.Error("last sample should end before the reference does")
	}
}

func TestPlanShortReferenceFullPass(t *testing.T) {
	// 22s reference: one 20s sample would cover >= 85% when rounded out.
	plan := NewPlan(ref(22), Options{})
	if !plan.FullPass {
		t.Fatal("expected full pass")
	}
	if len(plan.Samples) != 1 {
		t.Fatalf("expected a single sample, got %d", len(plan.Samples))
	}
	if plan.Samples[0].Start != 0 || plan.Samples[0].Duration != 22 {
		t.Errorf("full pass sample = %+v", plan.Samples[0])
	}
}

func TestPlanDurationUnderSampleDuration(t *testing.T) {
	plan := NewPlan(ref(8), Options{})
	if !plan.FullPass {
		t.Error("reference shorter than the sample duration must be a full pass")
	}
}

func TestPlanCollapseThreshold(t *testing.T) {
	// n*d >= 0.85*duration collapses. 2 samples * 20s = 40 >= 0.85*45.
	plan := NewPlan(ref(45), Options{ExactSamples: 2})
	if !plan.FullPass {
		t.Error("expected collapse to full pass at the coverage threshold")
	}

	// 2*20 = 40 < 0.85*120.
	plan = NewPlan(ref(120), Options{ExactSamples: 2})
	if plan.FullPass {
		t.Error("did not expect collapse")
	}
	if len(plan.Samples) != 2 {
		t.Errorf("expected 2 samples, got %d", len(plan.Samples))
	}
}

func TestPlanImage(t *testing.T) {
	plan := NewPlan(&ffprobe.Reference{Duration: 0.04, Fps: 25, IsImage: true}, Options{})
	if !plan.FullPass {
		t.Error("image input must be a single full-pass sample")
	}
	if len(plan.Samples) != 1 {
		t.Errorf("expected 1 sample, got %d", len(plan.Samples))
	}
}

func TestPlanMinSamples(t *testing.T) {
	// 10 minutes rounds to one sample per 12 min -> 1, min_samples lifts it.
	plan := NewPlan(ref(600), Options{MinSamples: 3})
	if plan.FullPass {
		t.Fatal("unexpected full pass")
	}
	if len(plan.Samples) != 3 {
		t.Errorf("expected 3 samples, got %d", len(plan.Samples))
	}
}

func TestPlanMaxSamples(t *testing.T) {
	// 10 hours would want 50 samples; the implicit bound caps it.
	plan := NewPlan(ref(36000), Options{})
	if len(plan.Samples) != DefaultMaxSamples {
		t.Errorf("expected %d samples, got %d", DefaultMaxSamples, len(plan.Samples))
	}
}

func TestPlanStartsClamped(t *testing.T) {
	plan := NewPlan(ref(130), Options{ExactSamples: 3})
	for _, s := range plan.Samples {
		if s.Start < 0 {
			t.Errorf("sample %d start %v < 0", s.Index, s.Start)
		}
		if s.Start+s.Duration > 130+1e-9 {
			t.Errorf("sample %d overruns the reference", s.Index)
		}
	}
}
