package sampleenc

import (
	"context"
	"fmt"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/five82/crfscan/internal/cache"
	"github.com/five82/crfscan/internal/ffmpeg"
	"github.com/five82/crfscan/internal/ffprobe"
	"github.com/five82/crfscan/internal/logging"
	"github.com/five82/crfscan/internal/quality"
	"github.com/five82/crfscan/internal/reporter"
	"github.com/five82/crfscan/internal/sample"
	"github.com/five82/crfscan/internal/util"
)

// Orchestrator runs sample encodes for one reference. Cut clips live in the
// run temp dir and are reused across CRF probes.
type Orchestrator struct {
	Ref         *ffprobe.Reference
	TempDir     *util.RunTempDir
	Cutter      *sample.Cutter
	Store       *cache.Store
	Rep         reporter.Reporter
	Log         *logging.Logger
	ToolVersion string
}

// New assembles an orchestrator. Store may be nil to disable caching.
func New(ref *ffprobe.Reference, tempDir *util.RunTempDir, store *cache.Store, rep reporter.Reporter, log *logging.Logger, toolVersion string) *Orchestrator {
	if rep == nil {
		rep = reporter.NullReporter{}
	}
	return &Orchestrator{
		Ref:         ref,
		TempDir:     tempDir,
		Cutter:      sample.NewCutter(ref, tempDir),
		Store:       store,
		Rep:         rep,
		Log:         log,
		ToolVersion: toolVersion,
	}
}

// encodedSample pairs a clip with its encode outcome while it waits for
// scoring.
type encodedSample struct {
	clip    *sample.Clip
	outcome *ffmpeg.EncodeOutcome
}

// SampleEncode evaluates one (EncodeSpec, QualitySpec, Plan) point. Cached
// results return without spawning a subprocess. Any sample failure fails
// the whole operation and nothing is cached.
func (o *Orchestrator) SampleEncode(ctx context.Context, spec *ffmpeg.EncodeSpec, qspec *quality.Spec, plan *sample.Plan) (*Result, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}

	key := cache.NewKey(spec, qspec, plan, o.Ref, o.ToolVersion)
	if payload, ok := o.Store.Get(key); ok {
		if res, err := UnmarshalResult(payload); err == nil {
			o.Log.Debug("cache hit for crf %s", o.crfStr(spec))
			return res, nil
		}
	}

	outcomes, err := o.runPipeline(ctx, spec, qspec, plan)
	if err != nil {
		return nil, err
	}

	res := aggregate(outcomes, o.Ref.Duration, o.Ref.VideoStreamBytes())

	if payload, err := res.Marshal(); err == nil {
		if err := o.Store.Put(key, payload); err != nil {
			// A broken cache downgrades to no caching, never a failed run.
			o.Rep.Warning(fmt.Sprintf("result not cached: %v", err))
		}
	}

	return res, nil
}

// runPipeline drives cut -> encode -> score per sample. Within one sample
// the stages strictly happen in order; across samples the single-slot
// pipeline overlaps the next cut with the current encode and the current
// score with the next encode.
func (o *Orchestrator) runPipeline(ctx context.Context, spec *ffmpeg.EncodeSpec, qspec *quality.Spec, plan *sample.Plan) ([]SampleOutcome, error) {
	sampleCount := len(plan.Samples)

	// The encoded samples carry spec.PixFormat when set, the reference's
	// own format otherwise.
	distFmt := spec.PixFormat
	if distFmt == "" {
		distFmt = o.Ref.PixFormat
	}
	pixFmt := quality.ChoosePixelFormat(o.Ref.PixFormat, distFmt)

	g, ctx := errgroup.WithContext(ctx)
	clips := make(chan *sample.Clip, 1)
	encoded := make(chan encodedSample, 1)

	// Cutter.
	g.Go(func() error {
		defer close(clips)
		for _, w := range plan.Samples {
			o.Rep.StageProgress(reporter.StageProgress{
				Stage: reporter.StageCutting, SampleIndex: w.Index, SampleCount: sampleCount,
			})
			clip, err := o.Cutter.Cut(ctx, w, plan.FullPass)
			if err != nil {
				return err
			}
			select {
			case clips <- clip:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		return nil
	})

	// Encoder.
	g.Go(func() error {
		defer close(encoded)
		for clip := range clips {
			outcome, err := o.encodeSample(ctx, spec, clip, sampleCount)
			if err != nil {
				return err
			}
			select {
			case encoded <- encodedSample{clip: clip, outcome: outcome}:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		return nil
	})

	// Scorer.
	var outcomes []SampleOutcome
	g.Go(func() error {
		for e := range encoded {
			outcome, err := o.scoreSample(ctx, qspec, e, pixFmt, sampleCount)
			if err != nil {
				return err
			}
			outcomes = append(outcomes, outcome)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}

	// Reported ordering follows sample index.
	sort.Slice(outcomes, func(i, j int) bool { return outcomes[i].Index < outcomes[j].Index })
	return outcomes, nil
}

func (o *Orchestrator) encodeSample(ctx context.Context, spec *ffmpeg.EncodeSpec, clip *sample.Clip, sampleCount int) (*ffmpeg.EncodeOutcome, error) {
	output := o.TempDir.Join(fmt.Sprintf("sample_%d.crf%s.%s.mkv",
		clip.Index+1, o.crfStr(spec), spec.Encoder))

	totalFrames := uint64(clip.ActualSeconds * o.Ref.Fps)
	outcome, err := ffmpeg.RunEncode(ctx, spec, clip.Path, output, clip.ActualSeconds, o.Ref.Fps, totalFrames,
		func(p ffmpeg.Progress) {
			o.Rep.StageProgress(reporter.StageProgress{
				Stage:       reporter.StageEncoding,
				SampleIndex: clip.Index,
				SampleCount: sampleCount,
				Percent:     p.Percent,
				ETA:         p.ETA,
			})
		})
	if err != nil {
		return nil, fmt.Errorf("encoding sample %d: %w", clip.Index+1, err)
	}

	o.Log.Debug("sample %d encoded: %s in %s",
		clip.Index+1, util.FormatBytes(outcome.EncodedBytes), outcome.WallTime)
	return outcome, nil
}

func (o *Orchestrator) scoreSample(ctx context.Context, qspec *quality.Spec, e encodedSample, pixFmt string, sampleCount int) (SampleOutcome, error) {
	score, err := quality.Measure(ctx, qspec, e.outcome.OutputPath, e.clip.Path,
		o.Ref.Width, o.Ref.Height, pixFmt, e.clip.ActualSeconds,
		func(p ffmpeg.Progress) {
			o.Rep.StageProgress(reporter.StageProgress{
				Stage:       reporter.StageScoring,
				SampleIndex: e.clip.Index,
				SampleCount: sampleCount,
				Percent:     p.Percent,
				ETA:         p.ETA,
			})
		})
	if err != nil {
		return SampleOutcome{}, fmt.Errorf("scoring sample %d: %w", e.clip.Index+1, err)
	}

	clamped, inf := clampScore(score)
	o.Log.Debug("sample %d %s %.2f", e.clip.Index+1, qspec.Metric, clamped)

	return SampleOutcome{
		Index:         e.clip.Index,
		Score:         clamped,
		ScoreInf:      inf,
		EncodedBytes:  e.outcome.EncodedBytes,
		SampleSeconds: e.clip.ActualSeconds,
		EncodeSeconds: e.outcome.WallTime.Seconds(),
	}, nil
}

func (o *Orchestrator) crfStr(spec *ffmpeg.EncodeSpec) string {
	return ffmpeg.FormatCrf(spec.Crf, ffmpeg.Family(spec.Encoder).CrfIncrement)
}
