package quality

import (
	"context"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/five82/crfscan/internal/errors"
	"github.com/five82/crfscan/internal/ffmpeg"
)

var (
	vmafScoreRegex = regexp.MustCompile(`VMAF score:\s*([0-9.]+|inf)`)
	// XPSNR summary line: "XPSNR  y: 40.4321  u: 43.0001  v: 44.2110".
	xpsnrChannelRegex = regexp.MustCompile(`XPSNR\s+y:\s*([0-9.]+|inf)\s+u:\s*([0-9.]+|inf)\s+v:\s*([0-9.]+|inf)`)
	xpsnrAvgRegex     = regexp.MustCompile(`XPSNR.*[Aa]vg:\s*([0-9.]+|inf)`)
)

// Measure runs the scorer for the spec and returns the score. Progress from
// ffmpeg's stderr feeds the callback. A missing numeric score is a
// ScoreParseError carrying the full stderr, never a default value.
func Measure(ctx context.Context, spec *Spec, distorted, reference string, width, height int, pixFmt string, duration float64, callback ffmpeg.ProgressCallback) (Score, error) {
	var args []string
	if spec.Metric == MetricXpsnr {
		args = BuildXpsnrArgs(spec, distorted, reference, pixFmt)
	} else {
		args = BuildVmafArgs(spec, distorted, reference, width, height, pixFmt)
	}

	tail, err := ffmpeg.Run(ctx, "ffmpeg", args, duration, 0, callback)
	if err != nil {
		return 0, err
	}

	return ParseScore(spec.Metric, tail.String())
}

// ParseScore extracts the final score from scorer output.
func ParseScore(metric Metric, output string) (Score, error) {
	if metric == MetricXpsnr {
		return parseXpsnr(output)
	}
	return parseVmaf(output)
}

func parseVmaf(output string) (Score, error) {
	matches := vmafScoreRegex.FindStringSubmatch(output)
	if len(matches) < 2 {
		return 0, errors.NewScoreParseError("VMAF", lastOutputLines(output, 4))
	}
	v, err := parseScoreValue(matches[1])
	if err != nil {
		return 0, errors.NewScoreParseError("VMAF", lastOutputLines(output, 4))
	}
	return v, nil
}

// parseXpsnr prefers the weighted luma-dominant aggregate (4y+u+v)/6 when
// per-channel values are present, falling back to the reported average.
func parseXpsnr(output string) (Score, error) {
	if m := xpsnrChannelRegex.FindStringSubmatch(output); len(m) == 4 {
		y, errY := parseScoreValue(m[1])
		u, errU := parseScoreValue(m[2])
		v, errV := parseScoreValue(m[3])
		if errY == nil && errU == nil && errV == nil {
			if y.Inf() || u.Inf() || v.Inf() {
				return Score(math.Inf(1)), nil
			}
			return (4*y + u + v) / 6, nil
		}
	}

	if m := xpsnrAvgRegex.FindStringSubmatch(output); len(m) == 2 {
		if v, err := parseScoreValue(m[1]); err == nil {
			return v, nil
		}
	}

	return 0, errors.NewScoreParseError("XPSNR", lastOutputLines(output, 4))
}

func parseScoreValue(raw string) (Score, error) {
	if raw == "inf" {
		return Score(math.Inf(1)), nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || v < 0 {
		return 0, errors.NewScoreParseError("numeric", raw)
	}
	return Score(v), nil
}

func lastOutputLines(output string, n int) string {
	lines := strings.Split(strings.TrimSpace(output), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, " | ")
}
