package quality

import (
	"fmt"
	"strings"

	"github.com/five82/crfscan/internal/util"
)

// vmaf4kModel is used when the comparison resolution exceeds 1440p.
const vmaf4kModel = "vmaf_4k_v0.6.1"

// Model resolution ceilings for the auto scale rule: inputs within 90% of a
// model's pixel count in each dimension upscale to it.
const (
	scale1080pMaxW = 1728
	scale1080pMaxH = 972
	scale4kMaxW    = 3456
	scale4kMaxH    = 1944
)

// VmafModel picks the model for the comparison resolution: the 4k model
// when width > 2560 or height > 1440, the default 1k model otherwise.
func VmafModel(width, height int) string {
	if width > 2560 || height > 1440 {
		return vmaf4kModel
	}
	return ""
}

// ScaleTarget resolves the scale option against the chosen model.
// "auto" upscales small inputs to the model resolution, aspect preserved;
// "none" disables scaling; "WxH" forces a resolution.
func ScaleTarget(scale string, width, height int) (int, int) {
	switch scale {
	case "", "auto":
		if width <= scale1080pMaxW && height <= scale1080pMaxH {
			return 1920, 1080
		}
		if VmafModel(width, height) == vmaf4kModel && width <= scale4kMaxW && height <= scale4kMaxH {
			return 3840, 2160
		}
		return 0, 0
	case "none":
		return 0, 0
	default:
		var w, h int
		if _, err := fmt.Sscanf(scale, "%dx%d", &w, &h); err == nil && w > 0 && h > 0 {
			return w, h
		}
		return 0, 0
	}
}

// ChoosePixelFormat picks the comparison pixel format. When both streams
// share one it is kept, avoiding a conversion on either leg; otherwise the
// deeper default wins.
func ChoosePixelFormat(refPixFmt, distPixFmt string) string {
	if refPixFmt != "" && refPixFmt == distPixFmt {
		return refPixFmt
	}
	return "yuv420p10le"
}

// BuildVmafArgs assembles the ffmpeg invocation comparing distorted against
// reference. Input 0 is the distorted clip, input 1 the reference.
func BuildVmafArgs(spec *Spec, distorted, reference string, width, height int, pixFmt string) []string {
	threads := spec.Threads
	if threads <= 0 {
		threads = util.LogicalCPUCount()
	}

	opts := []string{
		fmt.Sprintf("n_threads=%d", threads),
		"shortest=1",
		"ts_sync_mode=nearest",
	}
	if model := VmafModel(width, height); model != "" {
		opts = append(opts, fmt.Sprintf("model=version=%s", model))
	}
	opts = append(opts, spec.VmafArgs...)

	filter := fmt.Sprintf("%s;%s;[dist][ref]libvmaf=%s",
		legFilter("0:v", "dist", "", spec, width, height, pixFmt),
		legFilter("1:v", "ref", spec.ReferenceVFilter, spec, width, height, pixFmt),
		strings.Join(opts, ":"))

	return []string{
		"-hide_banner",
		"-nostdin",
		"-i", distorted,
		"-i", reference,
		"-filter_complex", filter,
		"-f", "null", "-",
	}
}

// legFilter builds one comparison leg: optional filter, analysis fps,
// scaling, pixel format, and a shared timebase.
func legFilter(input, label, vfilter string, spec *Spec, width, height int, pixFmt string) string {
	var stages []string
	if vfilter != "" {
		stages = append(stages, vfilter)
	}
	if fps := spec.AnalysisFps(); fps > 0 {
		stages = append(stages, fmt.Sprintf("fps=%g", fps))
	}
	if w, h := ScaleTarget(spec.Scale, width, height); w > 0 {
		stages = append(stages, fmt.Sprintf("scale=%d:%d:force_original_aspect_ratio=decrease:flags=bicubic", w, h))
	}
	stages = append(stages, fmt.Sprintf("format=%s", pixFmt), "settb=AVTB")
	return fmt.Sprintf("[%s]%s[%s]", input, strings.Join(stages, ","), label)
}
