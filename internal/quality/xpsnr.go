package quality

import (
	"fmt"
	"strings"
)

// BuildXpsnrArgs assembles the ffmpeg invocation computing XPSNR of the
// distorted clip against the reference.
func BuildXpsnrArgs(spec *Spec, distorted, reference string, pixFmt string) []string {
	filter := fmt.Sprintf("%s;%s;[dist][ref]xpsnr=stats_file=-",
		xpsnrLeg("0:v", "dist", "", spec, pixFmt),
		xpsnrLeg("1:v", "ref", spec.ReferenceVFilter, spec, pixFmt))

	return []string{
		"-hide_banner",
		"-nostdin",
		"-i", distorted,
		"-i", reference,
		"-filter_complex", filter,
		"-f", "null", "-",
	}
}

func xpsnrLeg(input, label, vfilter string, spec *Spec, pixFmt string) string {
	var stages []string
	if vfilter != "" {
		stages = append(stages, vfilter)
	}
	if fps := spec.AnalysisFps(); fps > 0 {
		stages = append(stages, fmt.Sprintf("fps=%g", fps))
	}
	stages = append(stages, fmt.Sprintf("format=%s", pixFmt), "settb=AVTB")
	return fmt.Sprintf("[%s]%s[%s]", input, strings.Join(stages, ","), label)
}
