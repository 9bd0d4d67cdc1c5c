// Package ffmpeg drives ffmpeg encode subprocesses and parses their
// streaming progress output.
package ffmpeg

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/five82/crfscan/internal/errors"
)

// Flag is an ordered key=value encoder flag.
type Flag struct {
	Key   string
	Value string
}

// EncodeSpec is the complete set of parameters that influence an encode's
// bitstream. Two specs that compare equal produce the same output.
type EncodeSpec struct {
	Encoder    string
	Crf        float64
	Preset     string
	PixFormat  string
	Keyint     string // e.g. "10s" or "300", empty for encoder default
	Scd        bool   // scene-change detection keyframe placement
	VFilter    string // input video filter
	SvtFlags   []Flag // svt-av1 parameters, joined into -svtav1-params
	EncFlags   []Flag // encoder-specific output flags
	InputFlags []Flag // input-side flags
}

// FamilyInfo describes how an encoder family maps the common knobs onto
// its own flags.
type FamilyInfo struct {
	// QualityFlag is the flag carrying the CRF ("-crf" or "-qp").
	QualityFlag string
	// PresetFlag is the flag carrying the preset ("-preset", "-cpu-used",
	// "-speed").
	PresetFlag string
	// CrfMin and CrfMax bound the encoder's accepted CRF values.
	CrfMin, CrfMax float64
	// DefaultMinCrf and DefaultMaxCrf bound the default search range.
	DefaultMinCrf, DefaultMaxCrf float64
	// CrfIncrement is the default search resolution. Encoders with integer
	// CRF use 1.
	CrfIncrement float64
	// IntegerCrf restricts the CRF axis to whole numbers.
	IntegerCrf bool
	// ZeroBitrate adds "-b:v 0" so CRF is honoured in CQ mode.
	ZeroBitrate bool
}

// Family returns the flag mapping for an encoder name.
func Family(encoder string) FamilyInfo {
	switch encoder {
	case "libsvtav1", "svt-av1":
		return FamilyInfo{
			QualityFlag: "-crf", PresetFlag: "-preset",
			CrfMin: 0, CrfMax: 63,
			DefaultMinCrf: 10, DefaultMaxCrf: 55,
			CrfIncrement: 1, IntegerCrf: true,
		}
	case "libx264", "libx265":
		return FamilyInfo{
			QualityFlag: "-crf", PresetFlag: "-preset",
			CrfMin: 0, CrfMax: 51,
			DefaultMinCrf: 12, DefaultMaxCrf: 46,
			CrfIncrement: 0.1,
		}
	case "libvpx-vp9":
		return FamilyInfo{
			QualityFlag: "-crf", PresetFlag: "-cpu-used",
			CrfMin: 0, CrfMax: 63,
			DefaultMinCrf: 15, DefaultMaxCrf: 50,
			CrfIncrement: 0.1, ZeroBitrate: true,
		}
	case "libaom-av1":
		return FamilyInfo{
			QualityFlag: "-crf", PresetFlag: "-cpu-used",
			CrfMin: 0, CrfMax: 63,
			DefaultMinCrf: 15, DefaultMaxCrf: 55,
			CrfIncrement: 1, IntegerCrf: true, ZeroBitrate: true,
		}
	case "librav1e":
		return FamilyInfo{
			QualityFlag: "-qp", PresetFlag: "-speed",
			CrfMin: 0, CrfMax: 255,
			DefaultMinCrf: 50, DefaultMaxCrf: 140,
			CrfIncrement: 1, IntegerCrf: true,
		}
	default:
		// Hardware and exotic encoders take -qp with a generic range.
		return FamilyInfo{
			QualityFlag: "-qp", PresetFlag: "-preset",
			CrfMin: 0, CrfMax: 51,
			DefaultMinCrf: 12, DefaultMaxCrf: 46,
			CrfIncrement: 1, IntegerCrf: true,
		}
	}
}

// FormatCrf canonicalises a CRF value to its string form at the given
// increment. Integer increments render without a fraction.
func FormatCrf(crf, increment float64) string {
	if increment <= 0 {
		increment = 1
	}
	if increment >= 1 && crf == math.Trunc(crf) {
		return strconv.FormatInt(int64(crf), 10)
	}
	// Decimal places follow the increment resolution.
	places := 0
	for inc := increment; inc < 1 && places < 6; inc *= 10 {
		places++
	}
	s := strconv.FormatFloat(crf, 'f', places, 64)
	s = strings.TrimRight(s, "0")
	s = strings.TrimRight(s, ".")
	if s == "" || s == "-" {
		return "0"
	}
	return s
}

// Validate checks the spec against its encoder family: CRF must be in the
// encoder's allowed range, svt-av1 takes integer CRF only, user flags must
// not duplicate driver-supplied flags, and the dedicated knobs win over raw
// parameter bags.
func (s *EncodeSpec) Validate() error {
	fam := Family(s.Encoder)

	if s.Crf < fam.CrfMin || s.Crf > fam.CrfMax {
		return errors.NewConfigError(fmt.Sprintf(
			"crf %s is outside the %s range %g-%g",
			FormatCrf(s.Crf, fam.CrfIncrement), s.Encoder, fam.CrfMin, fam.CrfMax))
	}
	if fam.IntegerCrf && s.Crf != math.Trunc(s.Crf) {
		return errors.NewConfigError(fmt.Sprintf(
			"%s only supports integer crf values, got %v", s.Encoder, s.Crf))
	}

	reserved := map[string]string{
		strings.TrimPrefix(fam.QualityFlag, "-"): "crf",
		strings.TrimPrefix(fam.PresetFlag, "-"):  "preset",
		"pix_fmt":                                "pix-format",
		"g":                                      "keyint",
		"i":                                      "input",
		"y":                                      "",
		"vf":                                     "vfilter",
	}

	for _, f := range s.EncFlags {
		key := strings.TrimPrefix(f.Key, "-")
		if key == "svtav1-params" {
			return errors.NewConfigError(
				"--enc svtav1-params is not supported, use the dedicated svt options")
		}
		if knob, ok := reserved[key]; ok {
			if knob != "" {
				return errors.NewConfigError(fmt.Sprintf(
					"--enc %s conflicts with the dedicated --%s option", f.Key, knob))
			}
			return errors.NewConfigError(fmt.Sprintf(
				"--enc %s duplicates a flag the encoder driver already supplies", f.Key))
		}
	}

	seen := map[string]bool{}
	for _, f := range append(append([]Flag{}, s.EncFlags...), s.InputFlags...) {
		key := strings.TrimPrefix(f.Key, "-")
		if seen[key] {
			return errors.NewConfigError(fmt.Sprintf("flag %s supplied more than once", f.Key))
		}
		seen[key] = true
	}

	svtSeen := map[string]bool{}
	for _, f := range s.SvtFlags {
		if f.Key == "scd" && s.Scd {
			return errors.NewConfigError("--svt scd conflicts with the dedicated --scd option")
		}
		if svtSeen[f.Key] {
			return errors.NewConfigError(fmt.Sprintf("svt parameter %s supplied more than once", f.Key))
		}
		svtSeen[f.Key] = true
	}

	return nil
}

// Equal reports value equality of all fields.
func (s *EncodeSpec) Equal(o *EncodeSpec) bool {
	if s.Encoder != o.Encoder || s.Crf != o.Crf || s.Preset != o.Preset ||
		s.PixFormat != o.PixFormat || s.Keyint != o.Keyint || s.Scd != o.Scd ||
		s.VFilter != o.VFilter {
		return false
	}
	if len(s.SvtFlags) != len(o.SvtFlags) ||
		len(s.EncFlags) != len(o.EncFlags) || len(s.InputFlags) != len(o.InputFlags) {
		return false
	}
	for i := range s.SvtFlags {
		if s.SvtFlags[i] != o.SvtFlags[i] {
			return false
		}
	}
	for i := range s.EncFlags {
		if s.EncFlags[i] != o.EncFlags[i] {
			return false
		}
	}
	for i := range s.InputFlags {
		if s.InputFlags[i] != o.InputFlags[i] {
			return false
		}
	}
	return true
}

// svtParams assembles the svtav1-params value for svt-av1 encodes.
func (s *EncodeSpec) svtParams() string {
	var parts []string
	if s.Scd {
		parts = append(parts, "scd=1")
	}
	for _, f := range s.SvtFlags {
		if f.Value != "" {
			parts = append(parts, f.Key+"="+f.Value)
		} else {
			parts = append(parts, f.Key)
		}
	}
	return strings.Join(parts, ":")
}

// BuildArgs assembles the full ffmpeg argument list for encoding input to
// output at the spec's settings. fps is the reference frame rate, used to
// resolve duration-style keyint values like "10s".
func (s *EncodeSpec) BuildArgs(input, output string, fps float64) []string {
	args := []string{"-y", "-hide_banner"}
	for _, f := range s.InputFlags {
		args = append(args, normalizeFlag(f.Key))
		if f.Value != "" {
			args = append(args, f.Value)
		}
	}
	args = append(args, "-i", input)

	if s.VFilter != "" {
		args = append(args, "-vf", s.VFilter)
	}

	args = append(args, s.VideoArgs(fps)...)

	// Samples carry video only; the final encode maps streams itself.
	args = append(args, "-an", "-sn", "-dn", "-map_metadata", "-1", output)
	return args
}

// VideoArgs assembles the video-codec argument block shared by sample and
// full encodes: codec, quality, preset, pixel format, keyint and the
// encoder flag bags. fps resolves duration-style keyint values.
func (s *EncodeSpec) VideoArgs(fps float64) []string {
	fam := Family(s.Encoder)

	args := []string{"-c:v", s.Encoder}
	args = append(args, fam.QualityFlag, FormatCrf(s.Crf, fam.CrfIncrement))
	if fam.ZeroBitrate {
		args = append(args, "-b:v", "0")
	}
	if s.Preset != "" {
		args = append(args, fam.PresetFlag, s.Preset)
	}
	if s.PixFormat != "" {
		args = append(args, "-pix_fmt", s.PixFormat)
	}
	if g := resolveKeyint(s.Keyint, fps); g != "" {
		args = append(args, "-g", g)
	}
	if s.Encoder == "libsvtav1" || s.Encoder == "svt-av1" {
		if params := s.svtParams(); params != "" {
			args = append(args, "-svtav1-params", params)
		}
	}
	for _, f := range s.EncFlags {
		args = append(args, normalizeFlag(f.Key))
		if f.Value != "" {
			args = append(args, f.Value)
		}
	}
	return args
}

// resolveKeyint converts a keyint policy to a -g value. Duration form
// ("10s") multiplies by the frame rate; plain numbers pass through.
func resolveKeyint(keyint string, fps float64) string {
	if keyint == "" {
		return ""
	}
	if strings.HasSuffix(keyint, "s") {
		secs, err := strconv.ParseFloat(strings.TrimSuffix(keyint, "s"), 64)
		if err != nil || fps <= 0 {
			return ""
		}
		return strconv.FormatInt(int64(math.Round(secs*fps)), 10)
	}
	return keyint
}

func normalizeFlag(key string) string {
	if strings.HasPrefix(key, "-") {
		return key
	}
	return "-" + key
}

// ParseFlags parses an ordered key=value list ("tune=0", "rc-lookahead=40")
// into flags. A bare key becomes a value-less flag.
func ParseFlags(raw []string) []Flag {
	flags := make([]Flag, 0, len(raw))
	for _, r := range raw {
		if key, value, found := strings.Cut(r, "="); found {
			flags = append(flags, Flag{Key: key, Value: value})
		} else {
			flags = append(flags, Flag{Key: r})
		}
	}
	return flags
}
