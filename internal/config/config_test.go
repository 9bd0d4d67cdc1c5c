package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/five82/crfscan/internal/errors"
	"github.com/five82/crfscan/internal/quality"
)

func f64(v float64) *float64 { return &v }

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults with input", func(c *Config) { c.Input = "in.mkv" }, false},
		{"missing input", func(c *Config) {}, true},
		{"both quality floors", func(c *Config) {
			c.Input = "in.mkv"
			c.MinVmaf = f64(95)
			c.MinXpsnr = f64(40)
		}, true},
		{"inverted crf range", func(c *Config) {
			c.Input = "in.mkv"
			c.MinCrf = f64(40)
			c.MaxCrf = f64(20)
		}, true},
		{"bad stdout format", func(c *Config) {
			c.Input = "in.mkv"
			c.StdoutFormat = "xml"
		}, true},
		{"json stdout format", func(c *Config) {
			c.Input = "in.mkv"
			c.StdoutFormat = "json"
		}, false},
	}

	for _, tt := range tests {
		c := Default()
		tt.mutate(c)
		err := c.Validate()
		if (err != nil) != tt.wantErr {
			t.Errorf("%s: Validate() = %v, wantErr %v", tt.name, err, tt.wantErr)
		}
		if err != nil && !errors.IsKind(err, errors.KindConfig) {
			t.Errorf("%s: expected config error, got %v", tt.name, err)
		}
	}
}

func TestMetricSelection(t *testing.T) {
	c := Default()
	if c.Metric() != quality.MetricVmaf {
		t.Error("default metric should be VMAF")
	}
	if c.MinQuality() != DefaultMinVmaf {
		t.Errorf("default floor = %v, want %v", c.MinQuality(), DefaultMinVmaf)
	}

	c.MinXpsnr = f64(40)
	if c.Metric() != quality.MetricXpsnr {
		t.Error("min-xpsnr should select XPSNR")
	}
	if c.MinQuality() != 40 {
		t.Errorf("floor = %v, want 40", c.MinQuality())
	}
}

func TestSearchOptionsFamilyDefaults(t *testing.T) {
	c := Default()
	opts := c.SearchOptions()

	if opts.MinCrf != 10 || opts.MaxCrf != 55 || opts.Increment != 1 {
		t.Errorf("svt-av1 defaults = %+v", opts)
	}
	if opts.DefaultRangeWidth != 45 {
		t.Errorf("DefaultRangeWidth = %v, want 45", opts.DefaultRangeWidth)
	}

	c.Encoder = "libx265"
	opts = c.SearchOptions()
	if opts.Increment != 0.1 {
		t.Errorf("libx265 increment = %v, want 0.1", opts.Increment)
	}

	c.MinCrf, c.MaxCrf, c.CrfIncrement = f64(20), f64(30), f64(0.5)
	opts = c.SearchOptions()
	if opts.MinCrf != 20 || opts.MaxCrf != 30 || opts.Increment != 0.5 {
		t.Errorf("overrides not honoured: %+v", opts)
	}
}

func TestQualitySpecFps(t *testing.T) {
	c := Default()
	c.VmafFps = 30
	if got := c.QualitySpec().AnalysisFps(); got != 30 {
		t.Errorf("vmaf fps = %v, want 30", got)
	}

	c = Default()
	c.MinXpsnr = f64(40)
	if got := c.QualitySpec().AnalysisFps(); got != quality.DefaultXpsnrFps {
		t.Errorf("xpsnr default fps = %v, want %v", got, quality.DefaultXpsnrFps)
	}
}

func TestResolveTempDir(t *testing.T) {
	c := Default()
	t.Setenv(TempDirEnvVar, "/env/tmp")
	if got := c.ResolveTempDir(); got != "/env/tmp" {
		t.Errorf("ResolveTempDir = %q, want env value", got)
	}

	c.TempDir = "/flag/tmp"
	if got := c.ResolveTempDir(); got != "/flag/tmp" {
		t.Errorf("ResolveTempDir = %q, flag should win", got)
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	// Missing file: empty defaults, no error.
	if _, err := LoadFile(path); err != nil {
		t.Fatal(err)
	}

	raw := "encoder: libx265\npreset: slow\nsample_every: 10m\ncache: false\n"
	if err := os.WriteFile(path, []byte(raw), 0644); err != nil {
		t.Fatal(err)
	}

	fc, err := LoadFile(path)
	if err != nil {
		t.Fatal(err)
	}

	c := Default()
	c.Input = "in.mkv"
	fc.Apply(c)

	if c.Encoder != "libx265" || c.Preset != "slow" {
		t.Errorf("file defaults not applied: %+v", c)
	}
	if c.SampleEvery != 10*time.Minute {
		t.Errorf("SampleEvery = %v, want 10m", c.SampleEvery)
	}
	if c.Cache {
		t.Error("cache: false in the file should disable caching")
	}

	// CLI-set fields win over the file.
	c = Default()
	c.Encoder = "libaom-av1"
	fc.Apply(c)
	if c.Encoder != "libaom-av1" {
		t.Errorf("explicit encoder overridden by file: %q", c.Encoder)
	}
}

func TestLoadFileMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("encoder: [unclosed"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadFile(path); err == nil {
		t.Error("malformed yaml should error")
	}
}
