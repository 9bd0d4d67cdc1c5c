package config

import (
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// FileConfig carries user defaults loaded from the config file. CLI values
// that differ from the tool defaults win over file values.
type FileConfig struct {
	Encoder           string  `yaml:"encoder"`
	Preset            string  `yaml:"preset"`
	PixFormat         string  `yaml:"pix_format"`
	VmafScale         string  `yaml:"vmaf_scale"`
	MaxEncodedPercent float64 `yaml:"max_encoded_percent"`
	SampleEvery       string  `yaml:"sample_every"`
	SampleDuration    string  `yaml:"sample_duration"`
	MinSamples        int     `yaml:"min_samples"`
	Cache             *bool   `yaml:"cache"`
}

// DefaultFilePath returns the config file location under the user config
// dir.
func DefaultFilePath() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, "crfscan", "config.yaml"), nil
}

// LoadFile reads the defaults file at path. A missing file is not an
// error; a malformed one is.
func LoadFile(path string) (*FileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &FileConfig{}, nil
		}
		return nil, err
	}

	var fc FileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, err
	}
	return &fc, nil
}

// Apply overlays file defaults onto a config, touching only fields still at
// their tool defaults.
func (fc *FileConfig) Apply(c *Config) {
	if fc.Encoder != "" && c.Encoder == DefaultEncoder {
		c.Encoder = fc.Encoder
	}
	if fc.Preset != "" && c.Preset == DefaultPreset {
		c.Preset = fc.Preset
	}
	if fc.PixFormat != "" && c.PixFormat == "" {
		c.PixFormat = fc.PixFormat
	}
	if fc.VmafScale != "" && c.VmafScale == "" {
		c.VmafScale = fc.VmafScale
	}
	if fc.MaxEncodedPercent > 0 && c.MaxEncodedPercent == DefaultMaxEncodedPercent {
		c.MaxEncodedPercent = fc.MaxEncodedPercent
	}
	if fc.MinSamples > 0 && c.MinSamples == 0 {
		c.MinSamples = fc.MinSamples
	}
	if fc.Cache != nil && c.Cache {
		c.Cache = *fc.Cache
	}
	if c.SampleEvery == 0 {
		if d, err := time.ParseDuration(fc.SampleEvery); err == nil && d > 0 {
			c.SampleEvery = d
		}
	}
	if c.SampleDuration == 0 {
		if d, err := time.ParseDuration(fc.SampleDuration); err == nil && d > 0 {
			c.SampleDuration = d
		}
	}
}
