// Package cache persists sample-encode results across runs, keyed by a
// fingerprint of everything that influences them.
package cache

import (
	"crypto/sha256"
	"fmt"
	"strings"

	"github.com/five82/crfscan/internal/ffmpeg"
	"github.com/five82/crfscan/internal/ffprobe"
	"github.com/five82/crfscan/internal/quality"
	"github.com/five82/crfscan/internal/sample"
)

// Key is a 256-bit fingerprint over every input that can alter a measured
// sample-encode result. Any option that could change the bitstream or the
// score must participate.
type Key [sha256.Size]byte

// Hex renders the key for storage and debug output.
func (k Key) Hex() string {
	return fmt.Sprintf("%x", k[:])
}

// NewKey fingerprints an encode spec, quality spec, sample plan and
// reference identity, plus the tool version the result depends on.
func NewKey(spec *ffmpeg.EncodeSpec, qspec *quality.Spec, plan *sample.Plan, ref *ffprobe.Reference, toolVersion string) Key {
	fam := ffmpeg.Family(spec.Encoder)

	var b strings.Builder
	b.WriteString("v1;")
	fmt.Fprintf(&b, "encoder=%s;", spec.Encoder)
	fmt.Fprintf(&b, "crf=%s;", ffmpeg.FormatCrf(spec.Crf, fam.CrfIncrement))
	fmt.Fprintf(&b, "preset=%s;", spec.Preset)
	fmt.Fprintf(&b, "pix_fmt=%s;", spec.PixFormat)
	fmt.Fprintf(&b, "keyint=%s;", spec.Keyint)
	fmt.Fprintf(&b, "scd=%t;", spec.Scd)
	fmt.Fprintf(&b, "vfilter=%s;", spec.VFilter)
	for _, f := range spec.SvtFlags {
		fmt.Fprintf(&b, "svt=%s=%s;", f.Key, f.Value)
	}
	for _, f := range spec.EncFlags {
		fmt.Fprintf(&b, "enc=%s=%s;", f.Key, f.Value)
	}
	for _, f := range spec.InputFlags {
		fmt.Fprintf(&b, "enc_input=%s=%s;", f.Key, f.Value)
	}

	b.WriteString(qspec.Fingerprint())

	// Sample byte ranges: the reference's file size and duration plus the
	// planned windows. A shifted plan, or a file whose size or duration
	// changed, re-measures. The reference bytes are not hashed, so a file
	// rewritten with the same size and duration reuses earlier entries.
	fmt.Fprintf(&b, "ref_size=%d;ref_duration=%.3f;", ref.FileSize, ref.Duration)
	fmt.Fprintf(&b, "full_pass=%t;", plan.FullPass)
	for _, w := range plan.Samples {
		fmt.Fprintf(&b, "sample=%d:%.3f:%.3f;", w.Index, w.Start, w.Duration)
	}

	fmt.Fprintf(&b, "tool=%s;", toolVersion)

	return sha256.Sum256([]byte(b.String()))
}
