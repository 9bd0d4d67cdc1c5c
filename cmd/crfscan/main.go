// Package main provides the CLI entry point for crfscan.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/five82/crfscan"
	"github.com/five82/crfscan/internal/config"
	"github.com/five82/crfscan/internal/errors"
	"github.com/five82/crfscan/internal/reporter"
)

const appVersion = "0.1.0"

// flagConfig carries flag targets that need presence detection before they
// land in the config.
type flagConfig struct {
	cfg *config.Config

	crf          float64
	minCrf       float64
	maxCrf       float64
	crfIncrement float64
	minVmaf      float64
	minXpsnr     float64
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	root := newRootCmd(ctx)
	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(errors.ExitCode(err))
	}
}

func newRootCmd(ctx context.Context) *cobra.Command {
	root := &cobra.Command{
		Use:           "crfscan",
		Short:         "Find the smallest encode that still meets a quality floor",
		Version:       appVersion,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(
		newCrfSearchCmd(ctx),
		newSampleEncodeCmd(ctx),
		newEncodeCmd(ctx),
		newAutoEncodeCmd(ctx),
	)
	return root
}

// newFlagConfig binds the flags shared by every command. File defaults are
// overlaid later, in resolve.
func newFlagConfig(cmd *cobra.Command) *flagConfig {
	fc := &flagConfig{cfg: config.Default()}
	cfg := fc.cfg

	flags := cmd.Flags()
	flags.StringVarP(&cfg.Input, "input", "i", "", "input media file")
	flags.StringVarP(&cfg.Encoder, "encoder", "e", cfg.Encoder, "encoder to drive")
	flags.StringVar(&cfg.Preset, "preset", cfg.Preset, "encoder preset")
	flags.StringVar(&cfg.PixFormat, "pix-format", "", "encode pixel format")
	flags.StringVar(&cfg.Keyint, "keyint", "", "keyframe interval, frames or duration (e.g. 10s)")
	flags.BoolVar(&cfg.Scd, "scd", false, "scene-change detection keyframe placement")
	flags.StringVar(&cfg.VFilter, "vfilter", "", "input video filter")
	flags.StringArrayVar(&cfg.Svt, "svt", nil, "svt-av1 parameter, key=value")
	flags.StringArrayVar(&cfg.Enc, "enc", nil, "extra encoder flag, key=value")
	flags.StringArrayVar(&cfg.EncInput, "enc-input", nil, "extra input-side flag, key=value")

	flags.StringVar(&cfg.VmafScale, "vmaf-scale", "", "vmaf comparison scale: auto, none or WxH")
	flags.StringArrayVar(&cfg.VmafArgs, "vmaf", nil, "extra libvmaf option, key=value")
	flags.Float64Var(&cfg.VmafFps, "vmaf-fps", 0, "vmaf analysis frame rate")
	flags.Float64Var(&cfg.XpsnrFps, "xpsnr-fps", 0, "xpsnr analysis frame rate")
	flags.StringVar(&cfg.ReferenceVFilter, "reference-vfilter", "", "filter applied to the reference leg before scoring")

	flags.DurationVar(&cfg.SampleEvery, "sample-every", 0, "one sample per this much input (default 12m)")
	flags.DurationVar(&cfg.SampleDuration, "sample-duration", 0, "per-sample clip length (default 20s)")
	flags.IntVar(&cfg.MinSamples, "min-samples", 0, "minimum sample count")
	flags.IntVar(&cfg.Samples, "samples", 0, "exact sample count")

	flags.StringVar(&cfg.TempDir, "temp-dir", "", "temp dir location (default working directory)")
	flags.BoolVar(&cfg.Keep, "keep", false, "keep temp files after the run")
	flags.BoolVar(&cfg.Cache, "cache", cfg.Cache, "use the sample-encode result cache")
	flags.StringVar(&cfg.StdoutFormat, "stdout-format", cfg.StdoutFormat, "stdout format: text or json")
	flags.BoolVarP(&cfg.Verbose, "verbose", "v", false, "verbose output")

	_ = cmd.MarkFlagRequired("input")
	return fc
}

func (fc *flagConfig) addSearchFlags(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.Float64Var(&fc.minVmaf, "min-vmaf", 0, "VMAF quality floor (default 95)")
	flags.Float64Var(&fc.minXpsnr, "min-xpsnr", 0, "XPSNR quality floor, selects the xpsnr scorer")
	flags.Float64Var(&fc.cfg.MaxEncodedPercent, "max-encoded-percent", fc.cfg.MaxEncodedPercent,
		"reject crf values predicted to exceed this percent of the input")
	flags.Float64Var(&fc.minCrf, "min-crf", 0, "search lower bound (default per encoder)")
	flags.Float64Var(&fc.maxCrf, "max-crf", 0, "search upper bound (default per encoder)")
	flags.Float64Var(&fc.crfIncrement, "crf-increment", 0, "search resolution (default per encoder)")
	flags.BoolVar(&fc.cfg.Thorough, "thorough", false, "confirm the rejected neighbour before accepting")
}

func (fc *flagConfig) addCrfFlag(cmd *cobra.Command) {
	cmd.Flags().Float64Var(&fc.crf, "crf", 0, "crf value to evaluate")
	_ = cmd.MarkFlagRequired("crf")
}

// resolve folds flag presence into the config and overlays file defaults.
func (fc *flagConfig) resolve(cmd *cobra.Command) *config.Config {
	cfg := fc.cfg
	flags := cmd.Flags()

	cfg.Crf = fc.crf
	if flags.Changed("min-crf") {
		cfg.MinCrf = &fc.minCrf
	}
	if flags.Changed("max-crf") {
		cfg.MaxCrf = &fc.maxCrf
	}
	if flags.Changed("crf-increment") {
		cfg.CrfIncrement = &fc.crfIncrement
	}
	if flags.Changed("min-vmaf") {
		cfg.MinVmaf = &fc.minVmaf
	}
	if flags.Changed("min-xpsnr") {
		cfg.MinXpsnr = &fc.minXpsnr
	}

	if path, err := config.DefaultFilePath(); err == nil {
		if file, err := config.LoadFile(path); err == nil {
			file.Apply(cfg)
		}
	}
	return cfg
}

func buildReporter(cfg *config.Config) reporter.Reporter {
	if cfg.StdoutFormat == "json" {
		return reporter.NewJSONReporter()
	}
	return reporter.NewTerminalReporter(cfg.Verbose)
}

// run sets up a runner, executes op, and always tears down, so the temp
// dir is removed on every exit path.
func run(ctx context.Context, cfg *config.Config, op func(context.Context, *crfscan.Runner, reporter.Reporter) error) error {
	rep := buildReporter(cfg)
	runner, err := crfscan.New(cfg, rep)
	if err != nil {
		return err
	}
	defer func() { _ = runner.Close() }()

	if err := op(ctx, runner, rep); err != nil {
		if ctx.Err() != nil && !errors.IsCancelled(err) {
			return errors.NewCancelledError()
		}
		return err
	}
	return nil
}

func newCrfSearchCmd(ctx context.Context) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crf-search",
		Short: "Search for the highest crf that still meets the quality floor",
	}
	fc := newFlagConfig(cmd)
	fc.addSearchFlags(cmd)

	cmd.RunE = func(cmd *cobra.Command, _ []string) error {
		cfg := fc.resolve(cmd)
		return run(ctx, cfg, func(ctx context.Context, runner *crfscan.Runner, _ reporter.Reporter) error {
			_, err := runner.CrfSearch(ctx)
			return err
		})
	}
	return cmd
}

func newSampleEncodeCmd(ctx context.Context) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sample-encode",
		Short: "Evaluate one crf on short samples and predict the full encode",
	}
	fc := newFlagConfig(cmd)
	fc.addCrfFlag(cmd)

	cmd.RunE = func(cmd *cobra.Command, _ []string) error {
		cfg := fc.resolve(cmd)
		return run(ctx, cfg, func(ctx context.Context, runner *crfscan.Runner, _ reporter.Reporter) error {
			_, err := runner.SampleEncode(ctx)
			return err
		})
	}
	return cmd
}

func newEncodeCmd(ctx context.Context) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "encode",
		Short: "Re-encode the whole input at a fixed crf",
	}
	fc := newFlagConfig(cmd)
	fc.addCrfFlag(cmd)
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file")

	cmd.RunE = func(cmd *cobra.Command, _ []string) error {
		cfg := fc.resolve(cmd)
		return run(ctx, cfg, func(ctx context.Context, runner *crfscan.Runner, rep reporter.Reporter) error {
			res, err := runner.Encode(ctx, output)
			if err != nil {
				return err
			}
			rep.Verbose(fmt.Sprintf("encoded %s in %s", res.OutputPath, res.WallTime.Round(time.Second)))
			return nil
		})
	}
	return cmd
}

func newAutoEncodeCmd(ctx context.Context) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "auto-encode",
		Short: "Search for the optimal crf, then run the full encode with it",
	}
	fc := newFlagConfig(cmd)
	fc.addSearchFlags(cmd)
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file")

	cmd.RunE = func(cmd *cobra.Command, _ []string) error {
		cfg := fc.resolve(cmd)
		return run(ctx, cfg, func(ctx context.Context, runner *crfscan.Runner, rep reporter.Reporter) error {
			res, err := runner.AutoEncode(ctx, output)
			if err != nil {
				return err
			}
			rep.Verbose(fmt.Sprintf("encoded %s in %s", res.OutputPath, res.WallTime.Round(time.Second)))
			return nil
		})
	}
	return cmd
}
