// Package config provides configuration types and defaults for crfscan.
package config

import (
	"os"
	"time"

	"github.com/five82/crfscan/internal/errors"
	"github.com/five82/crfscan/internal/ffmpeg"
	"github.com/five82/crfscan/internal/quality"
	"github.com/five82/crfscan/internal/sample"
	"github.com/five82/crfscan/internal/search"
)

// Default constants.
const (
	// DefaultEncoder is the encoder used when none is given.
	DefaultEncoder = "libsvtav1"

	// DefaultPreset is the svt-av1 preset balance point.
	DefaultPreset = "8"

	// DefaultMinVmaf is the quality floor when no target is given.
	DefaultMinVmaf = 95.0

	// DefaultMaxEncodedPercent rejects encodes predicted to save too
	// little.
	DefaultMaxEncodedPercent = 80.0

	// TempDirEnvVar overrides the temp dir location.
	TempDirEnvVar = "AB_AV1_TEMP_DIR"

	// TempDirPrefix names the run-scoped temp dir.
	TempDirPrefix = "crfscan"
)

// Config is the typed option set the CLI hands to the core. Zero values
// mean "not set" and resolve to encoder-family or tool defaults.
type Config struct {
	Input string

	// Encode settings.
	Encoder   string
	Preset    string
	PixFormat string
	Keyint    string
	Scd       bool
	VFilter   string
	Svt       []string // svt-av1 parameters, key=value
	Enc       []string // encoder-specific output flags, key=value
	EncInput  []string // input-side flags, key=value

	// Search bounds and resolution. Nil takes the encoder family default.
	Crf          float64
	MinCrf       *float64
	MaxCrf       *float64
	CrfIncrement *float64

	// Quality floor. At most one of these may be set.
	MinVmaf  *float64
	MinXpsnr *float64

	// Size ceiling, percent of the video stream byte budget.
	MaxEncodedPercent float64

	// Quality measurement.
	VmafArgs         []string
	VmafScale        string
	VmafFps          float64
	XpsnrFps         float64
	ReferenceVFilter string

	// Sampling.
	SampleEvery    time.Duration
	SampleDuration time.Duration
	MinSamples     int
	Samples        int

	// Lifecycle and search behaviour.
	TempDir      string
	Keep         bool
	Cache        bool
	Thorough     bool
	StdoutFormat string // "text" or "json"
	Verbose      bool
}

// Default returns a config with tool defaults applied.
func Default() *Config {
	return &Config{
		Encoder:           DefaultEncoder,
		Preset:            DefaultPreset,
		MaxEncodedPercent: DefaultMaxEncodedPercent,
		Cache:             true,
		StdoutFormat:      "text",
	}
}

// Validate rejects contradictory options before anything runs.
func (c *Config) Validate() error {
	if c.Input == "" {
		return errors.NewConfigError("an input file is required")
	}
	if c.MinVmaf != nil && c.MinXpsnr != nil {
		return errors.NewConfigError("--min-vmaf and --min-xpsnr are mutually exclusive")
	}
	if c.MinCrf != nil && c.MaxCrf != nil && *c.MinCrf > *c.MaxCrf {
		return errors.NewConfigError("--min-crf must not exceed --max-crf")
	}
	switch c.StdoutFormat {
	case "", "text", "json":
	default:
		return errors.NewConfigError("--stdout-format must be text or json")
	}
	return nil
}

// Metric resolves the scorer variant from the configured floor.
func (c *Config) Metric() quality.Metric {
	if c.MinXpsnr != nil {
		return quality.MetricXpsnr
	}
	return quality.MetricVmaf
}

// MinQuality resolves the quality floor, defaulting to VMAF 95.
func (c *Config) MinQuality() float64 {
	if c.MinXpsnr != nil {
		return *c.MinXpsnr
	}
	if c.MinVmaf != nil {
		return *c.MinVmaf
	}
	return DefaultMinVmaf
}

// EncodeSpec builds the encode parameter set at the given CRF.
func (c *Config) EncodeSpec(crf float64) *ffmpeg.EncodeSpec {
	return &ffmpeg.EncodeSpec{
		Encoder:    c.Encoder,
		Crf:        crf,
		Preset:     c.Preset,
		PixFormat:  c.PixFormat,
		Keyint:     c.Keyint,
		Scd:        c.Scd,
		VFilter:    c.VFilter,
		SvtFlags:   ffmpeg.ParseFlags(c.Svt),
		EncFlags:   ffmpeg.ParseFlags(c.Enc),
		InputFlags: ffmpeg.ParseFlags(c.EncInput),
	}
}

// QualitySpec builds the quality measurement parameter set.
func (c *Config) QualitySpec() *quality.Spec {
	spec := &quality.Spec{
		Metric:           c.Metric(),
		VmafArgs:         c.VmafArgs,
		Scale:            c.VmafScale,
		ReferenceVFilter: c.ReferenceVFilter,
	}
	if spec.Metric == quality.MetricXpsnr {
		spec.Fps = c.XpsnrFps
	} else {
		spec.Fps = c.VmafFps
	}
	return spec
}

// SampleOptions builds the planner inputs.
func (c *Config) SampleOptions() sample.Options {
	return sample.Options{
		SampleEvery:    c.SampleEvery.Seconds(),
		SampleDuration: c.SampleDuration.Seconds(),
		MinSamples:     c.MinSamples,
		ExactSamples:   c.Samples,
	}
}

// SearchOptions builds the search inputs, resolving unset bounds from the
// encoder family.
func (c *Config) SearchOptions() search.Options {
	fam := ffmpeg.Family(c.Encoder)

	opts := search.Options{
		MinCrf:            fam.DefaultMinCrf,
		MaxCrf:            fam.DefaultMaxCrf,
		Increment:         fam.CrfIncrement,
		MinQuality:        c.MinQuality(),
		MaxEncodedPercent: c.MaxEncodedPercent,
		DefaultRangeWidth: fam.DefaultMaxCrf - fam.DefaultMinCrf,
		Thorough:          c.Thorough,
	}
	if c.MinCrf != nil {
		opts.MinCrf = *c.MinCrf
	}
	if c.MaxCrf != nil {
		opts.MaxCrf = *c.MaxCrf
	}
	if c.CrfIncrement != nil && *c.CrfIncrement > 0 {
		opts.Increment = *c.CrfIncrement
	}
	return opts
}

// ResolveTempDir picks the temp dir base: the flag, then the environment,
// then the working directory.
func (c *Config) ResolveTempDir() string {
	if c.TempDir != "" {
		return c.TempDir
	}
	return os.Getenv(TempDirEnvVar)
}
