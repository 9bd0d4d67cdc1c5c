// Package encode runs the final full re-encode at the CRF the search
// selected.
package encode

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/five82/crfscan/internal/errors"
	"github.com/five82/crfscan/internal/ffmpeg"
	"github.com/five82/crfscan/internal/ffprobe"
	"github.com/five82/crfscan/internal/util"
)

// Result is a completed full encode.
type Result struct {
	OutputPath   string
	OriginalSize uint64
	EncodedSize  uint64
	WallTime     time.Duration
}

// Run re-encodes the whole reference with the spec's settings, carrying
// audio and subtitle streams over unchanged. Progress streams through the
// callback.
func Run(ctx context.Context, ref *ffprobe.Reference, spec *ffmpeg.EncodeSpec, output string, callback ffmpeg.ProgressCallback) (*Result, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}

	args := buildArgs(ref, spec, output)
	start := time.Now()

	if _, err := ffmpeg.Run(ctx, "ffmpeg", args, ref.Duration, ref.TotalFrames(), callback); err != nil {
		return nil, err
	}

	size, err := util.GetFileSize(output)
	if err != nil {
		return nil, errors.NewIOError("encoded output missing", err)
	}

	if err := verifyDuration(ctx, ref, output); err != nil {
		return nil, err
	}

	return &Result{
		OutputPath:   output,
		OriginalSize: ref.FileSize,
		EncodedSize:  size,
		WallTime:     time.Since(start),
	}, nil
}

// buildArgs assembles the full-encode invocation: the sample encode
// arguments minus the stream stripping, plus stream mapping and copies.
func buildArgs(ref *ffprobe.Reference, spec *ffmpeg.EncodeSpec, output string) []string {
	args := []string{"-y", "-hide_banner"}
	for _, f := range spec.InputFlags {
		args = append(args, flagKey(f.Key))
		if f.Value != "" {
			args = append(args, f.Value)
		}
	}
	args = append(args, "-i", ref.Path)

	if spec.VFilter != "" {
		args = append(args, "-vf", spec.VFilter)
	}

	args = append(args, "-map", "0")
	args = append(args, spec.VideoArgs(ref.Fps)...)
	args = append(args, "-c:a", "copy", "-c:s", "copy")
	args = append(args, output)
	return args
}

func flagKey(key string) string {
	if strings.HasPrefix(key, "-") {
		return key
	}
	return "-" + key
}

// durationTolerance accepts container rounding at the tail of the encode.
const durationTolerance = 1.0

// verifyDuration sanity-checks the output length against the reference.
func verifyDuration(ctx context.Context, ref *ffprobe.Reference, output string) error {
	if ref.IsImage {
		return nil
	}

	out, err := ffprobe.New().Probe(ctx, output)
	if err != nil {
		return err
	}
	if math.Abs(out.Duration-ref.Duration) > durationTolerance {
		return errors.NewIOError(fmt.Sprintf(
			"encoded duration %.2fs deviates from reference %.2fs", out.Duration, ref.Duration), nil)
	}
	return nil
}
