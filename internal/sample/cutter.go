package sample

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/five82/crfscan/internal/errors"
	"github.com/five82/crfscan/internal/ffmpeg"
	"github.com/five82/crfscan/internal/ffprobe"
	"github.com/five82/crfscan/internal/util"
)

// minClipBytes fails the cut fast when the remux produced nothing usable.
const minClipBytes = 1024

// Clip is one cut lossless sample on disk.
type Clip struct {
	Window
	Path string
	// Bytes is the clip's size on disk.
	Bytes uint64
	// ActualSeconds is the clip's real duration; stream-copy cuts near the
	// end of the reference can come up short.
	ActualSeconds float64
}

// Cutter produces lossless clips from the reference into the run temp dir.
// Clips are cached by window for the duration of a search, so repeated CRF
// probes reuse them.
type Cutter struct {
	ref     *ffprobe.Reference
	tempDir *util.RunTempDir
}

// NewCutter creates a cutter for the reference.
func NewCutter(ref *ffprobe.Reference, tempDir *util.RunTempDir) *Cutter {
	return &Cutter{ref: ref, tempDir: tempDir}
}

// containerExt picks the clip container: mp4 references keep mp4, everything
// else remuxes into mkv.
func (c *Cutter) containerExt() string {
	if strings.EqualFold(filepath.Ext(c.ref.Path), ".mp4") {
		return ".mp4"
	}
	return ".mkv"
}

// clipPath names a clip deterministically so a window cuts once per run.
func (c *Cutter) clipPath(w Window) string {
	name := fmt.Sprintf("sample_%d_%.3f_%.3f%s", w.Index+1, w.Start, w.Duration, c.containerExt())
	return c.tempDir.Join(name)
}

// Cut produces the lossless clip for a window. A clip already on disk from
// an earlier probe is reused. Full-pass plans skip the cut entirely and
// reference the input in place.
func (c *Cutter) Cut(ctx context.Context, w Window, fullPass bool) (*Clip, error) {
	if fullPass {
		return &Clip{
			Window:        w,
			Path:          c.ref.Path,
			Bytes:         c.ref.FileSize,
			ActualSeconds: c.ref.Duration,
		}, nil
	}

	path := c.clipPath(w)
	if util.FileExists(path) {
		return c.finishClip(ctx, w, path)
	}

	// Stream-copy remux: -fflags +genpts recovers from missing timestamps,
	// subtitle tracks are excluded.
	args := []string{
		"-y", "-hide_banner",
		"-fflags", "+genpts",
		"-ss", util.FormatTimecode(w.Start),
		"-i", c.ref.Path,
		"-t", fmt.Sprintf("%.3f", w.Duration),
		"-c", "copy",
		"-map", "0:v:0",
		"-an", "-sn", "-dn",
		path,
	}

	if _, err := ffmpeg.Run(ctx, "ffmpeg", args, 0, 0, nil); err != nil {
		return nil, fmt.Errorf("cutting sample %d: %w", w.Index+1, err)
	}

	return c.finishClip(ctx, w, path)
}

// finishClip validates the clip and fills in its measured size and
// duration.
func (c *Cutter) finishClip(ctx context.Context, w Window, path string) (*Clip, error) {
	size, err := util.GetFileSize(path)
	if err != nil {
		return nil, errors.NewIOError("sample clip missing", err)
	}
	if size < minClipBytes {
		return nil, errors.NewEmptySampleError(path, size)
	}

	clip := &Clip{Window: w, Path: path, Bytes: size, ActualSeconds: w.Duration}

	// Clips at the tail of the reference can be shorter than requested;
	// measure so size predictions scale on real coverage.
	if ref, err := ffprobe.New().Probe(ctx, path); err == nil && ref.Duration > 0 {
		if ref.Duration < clip.ActualSeconds {
			clip.ActualSeconds = ref.Duration
		}
	}

	return clip, nil
}
