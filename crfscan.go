// Package crfscan finds the constant-rate-factor setting that produces the
// smallest encode still meeting a perceptual quality floor.
//
// It discovers the CRF by repeatedly encoding short lossless samples cut
// from the reference, measuring VMAF or XPSNR against the originals, and
// interpolating toward the quality boundary. Sample measurements persist in
// an on-disk cache so repeated searches over the same input are cheap.
//
// Basic usage:
//
//	cfg := config.Default()
//	cfg.Input = "movie.mkv"
//	runner, err := crfscan.New(cfg, nil)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer runner.Close()
//
//	result, err := runner.CrfSearch(ctx)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Printf("crf %s\n", result.Crf)
package crfscan

import (
	"context"
	"fmt"

	"github.com/five82/crfscan/internal/cache"
	"github.com/five82/crfscan/internal/config"
	"github.com/five82/crfscan/internal/encode"
	"github.com/five82/crfscan/internal/errors"
	"github.com/five82/crfscan/internal/ffmpeg"
	"github.com/five82/crfscan/internal/ffprobe"
	"github.com/five82/crfscan/internal/logging"
	"github.com/five82/crfscan/internal/quality"
	"github.com/five82/crfscan/internal/reporter"
	"github.com/five82/crfscan/internal/sample"
	"github.com/five82/crfscan/internal/sampleenc"
	"github.com/five82/crfscan/internal/search"
	"github.com/five82/crfscan/internal/util"
)

// minFreeDiskBytes is the free-space floor under the temp dir before the
// run warns; sample clips and encode outputs land there.
const minFreeDiskBytes = 2 * util.GiB

// CrfProbe is one (CRF, result) pair recorded during a search.
type CrfProbe struct {
	Crf    float64
	Result *sampleenc.Result
}

// SearchResult is the accepted outcome of a CRF search.
type SearchResult struct {
	// Crf is the accepted value rendered at the configured increment.
	Crf string
	// CrfValue is the same value numerically.
	CrfValue float64
	// Result is the sample-encode result at the accepted CRF.
	Result *sampleenc.Result
	// Probes lists every evaluation the search took, in order.
	Probes []CrfProbe
}

// Runner owns the per-run state: probe memo, temp dir, cache handle and
// reporting. Close releases everything; the temp dir is removed on every
// exit path unless keep is configured.
type Runner struct {
	cfg    *config.Config
	rep    reporter.Reporter
	log    *logging.Logger
	prober *ffprobe.Prober

	tempDir *util.RunTempDir
	store   *cache.Store
}

// New validates the config and prepares a run. rep may be nil for silent
// operation.
func New(cfg *config.Config, rep reporter.Reporter) (*Runner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if rep == nil {
		rep = reporter.NullReporter{}
	}

	log := logging.Setup(nil, cfg.Verbose)

	tempDir, err := util.NewRunTempDir(cfg.ResolveTempDir(), config.TempDirPrefix)
	if err != nil {
		return nil, errors.NewIOError("create temp dir", err)
	}
	tempDir.SetKeep(cfg.Keep)

	if !util.CheckDiskSpace(tempDir.Path(), minFreeDiskBytes) {
		rep.Warning(fmt.Sprintf("low disk space under %s, sample clips may fail to write", tempDir.Path()))
	}

	var store *cache.Store
	if cache.Enabled(cfg.Cache) {
		path, err := cache.DefaultPath()
		if err == nil {
			store, err = cache.Open(path)
		}
		if err != nil {
			// No cache this run; the work still happens.
			rep.Warning(fmt.Sprintf("cache unavailable: %v", err))
			store = nil
		}
	}

	return &Runner{
		cfg:     cfg,
		rep:     rep,
		log:     log,
		prober:  ffprobe.New(),
		tempDir: tempDir,
		store:   store,
	}, nil
}

// Close releases the run's resources and removes the temp dir unless keep
// was configured. Safe to call more than once.
func (r *Runner) Close() error {
	_ = r.store.Close()
	r.store = nil
	return r.tempDir.Cleanup()
}

// session bundles the per-reference pieces an operation needs.
type session struct {
	ref   *ffprobe.Reference
	plan  sample.Plan
	qspec *quality.Spec
	orch  *sampleenc.Orchestrator
}

func (r *Runner) newSession(ctx context.Context) (*session, error) {
	ref, err := r.prober.Probe(ctx, r.cfg.Input)
	if err != nil {
		return nil, err
	}

	plan := sample.NewPlan(ref, r.cfg.SampleOptions())
	orch := sampleenc.New(ref, r.tempDir, r.store, r.rep, r.log, ffmpeg.Version(ctx))

	return &session{
		ref:   ref,
		plan:  plan,
		qspec: r.cfg.QualitySpec(),
		orch:  orch,
	}, nil
}

func (r *Runner) searchInfo(sess *session) reporter.SearchInfo {
	return reporter.SearchInfo{
		InputFile:  r.cfg.Input,
		Encoder:    r.cfg.Encoder,
		Metric:     sess.qspec.Metric.String(),
		MinQuality: r.cfg.MinQuality(),
		Duration:   util.FormatDuration(sess.ref.Duration),
		Resolution: fmt.Sprintf("%dx%d", sess.ref.Width, sess.ref.Height),
		Samples:    len(sess.plan.Samples),
		FullPass:   sess.plan.FullPass,
	}
}

// CrfSearch locates the optimal CRF for the configured input.
func (r *Runner) CrfSearch(ctx context.Context) (*SearchResult, error) {
	sess, err := r.newSession(ctx)
	if err != nil {
		return nil, err
	}
	r.rep.SearchStarted(r.searchInfo(sess))

	opts := r.cfg.SearchOptions()
	var probes []CrfProbe
	results := make(map[int64]*sampleenc.Result)
	axis := search.Axis{Increment: opts.Increment}

	eval := func(ctx context.Context, crf float64) (search.Probe, error) {
		crfStr := ffmpeg.FormatCrf(crf, opts.Increment)
		r.rep.ProbeStarted(crfStr)

		res, err := sess.orch.SampleEncode(ctx, r.cfg.EncodeSpec(crf), sess.qspec, &sess.plan)
		if err != nil {
			return search.Probe{}, err
		}

		probes = append(probes, CrfProbe{Crf: crf, Result: res})
		results[axis.Unit(crf)] = res
		r.rep.ProbeComplete(reporter.ProbeSummary{
			Crf:           crfStr,
			Metric:        sess.qspec.Metric.String(),
			Score:         res.MeanScore,
			EncodePercent: res.PredictedEncodePercent,
			Cached:        res.FromCache,
		})

		return search.Probe{
			Score:         res.MeanScore,
			ScoreInf:      res.ScoreInf,
			EncodePercent: res.PredictedEncodePercent,
		}, nil
	}

	found, err := search.Run(ctx, opts, eval)
	if err != nil {
		return nil, err
	}

	best := results[axis.Unit(found.Crf)]
	result := &SearchResult{
		Crf:      ffmpeg.FormatCrf(found.Crf, opts.Increment),
		CrfValue: found.Crf,
		Result:   best,
		Probes:   probes,
	}

	r.rep.SearchComplete(reporter.SearchOutcome{
		Crf:     result.Crf,
		Summary: r.encodeSummary(sess, result.Crf, best),
		Probes:  len(probes),
	})
	return result, nil
}

// SampleEncode evaluates the configured fixed CRF and reports the
// prediction.
func (r *Runner) SampleEncode(ctx context.Context) (*sampleenc.Result, error) {
	sess, err := r.newSession(ctx)
	if err != nil {
		return nil, err
	}
	r.rep.SearchStarted(r.searchInfo(sess))

	crfStr := ffmpeg.FormatCrf(r.cfg.Crf, r.cfg.SearchOptions().Increment)
	r.rep.ProbeStarted(crfStr)

	res, err := sess.orch.SampleEncode(ctx, r.cfg.EncodeSpec(r.cfg.Crf), sess.qspec, &sess.plan)
	if err != nil {
		return nil, err
	}

	r.rep.SampleEncodeComplete(r.encodeSummary(sess, crfStr, res))
	return res, nil
}

// Encode runs the full re-encode at the configured fixed CRF.
func (r *Runner) Encode(ctx context.Context, output string) (*encode.Result, error) {
	sess, err := r.newSession(ctx)
	if err != nil {
		return nil, err
	}
	return r.fullEncode(ctx, sess, r.cfg.Crf, output)
}

// AutoEncode searches for the optimal CRF, then drives the full re-encode
// with it.
func (r *Runner) AutoEncode(ctx context.Context, output string) (*encode.Result, error) {
	found, err := r.CrfSearch(ctx)
	if err != nil {
		return nil, err
	}

	sess, err := r.newSession(ctx)
	if err != nil {
		return nil, err
	}
	return r.fullEncode(ctx, sess, found.CrfValue, output)
}

func (r *Runner) fullEncode(ctx context.Context, sess *session, crf float64, output string) (*encode.Result, error) {
	if output == "" {
		output = util.GetFileStem(r.cfg.Input) + ".av1.mkv"
	}

	return encode.Run(ctx, sess.ref, r.cfg.EncodeSpec(crf), output, func(p ffmpeg.Progress) {
		r.rep.StageProgress(reporter.StageProgress{
			Stage:   reporter.StageEncoding,
			Percent: p.Percent,
			ETA:     p.ETA,
		})
	})
}

func (r *Runner) encodeSummary(sess *session, crf string, res *sampleenc.Result) reporter.EncodeSummary {
	return reporter.EncodeSummary{
		Crf:                    crf,
		Metric:                 sess.qspec.Metric.String(),
		Score:                  res.MeanScore,
		PredictedEncodePercent: res.PredictedEncodePercent,
		PredictedEncodeSeconds: res.PredictedEncodeSeconds,
		PredictedEncodeSize:    res.PredictedEncodeSize,
	}
}
