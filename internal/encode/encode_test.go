package encode

import (
	"strings"
	"testing"

	"github.com/five82/crfscan/internal/ffmpeg"
	"github.com/five82/crfscan/internal/ffprobe"
)

func TestBuildArgsMapsAllStreams(t *testing.T) {
	ref := &ffprobe.Reference{Path: "in.mkv", Duration: 1800, Fps: 24}
	spec := &ffmpeg.EncodeSpec{
		Encoder:   "libsvtav1",
		Crf:       33,
		Preset:    "8",
		PixFormat: "yuv420p10le",
		Keyint:    "10s",
		SvtFlags:  []ffmpeg.Flag{{Key: "film-grain", Value: "8"}},
	}

	args := strings.Join(buildArgs(ref, spec, "out.mkv"), " ")

	for _, want := range []string{
		"-i in.mkv",
		"-map 0",
		"-c:v libsvtav1",
		"-crf 33",
		"-g 240",
		"-svtav1-params film-grain=8",
		"-c:a copy",
		"-c:s copy",
	} {
		if !strings.Contains(args, want) {
			t.Errorf("buildArgs missing %q in %q", want, args)
		}
	}
	if strings.Contains(args, "-an") {
		t.Error("full encode must not strip audio")
	}
}

func TestBuildArgsCarriesUserFlags(t *testing.T) {
	ref := &ffprobe.Reference{Path: "in.mkv"}
	spec := &ffmpeg.EncodeSpec{
		Encoder:  "libx265",
		Crf:      22.5,
		EncFlags: []ffmpeg.Flag{{Key: "tune", Value: "animation"}},
	}

	args := strings.Join(buildArgs(ref, spec, "out.mkv"), " ")
	if !strings.Contains(args, "-tune animation") {
		t.Errorf("user flags missing in %q", args)
	}
	if !strings.Contains(args, "-crf 22.5") {
		t.Errorf("fractional crf missing in %q", args)
	}
}
