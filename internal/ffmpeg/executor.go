package ffmpeg

import (
	"bufio"
	"context"
	"io"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/five82/crfscan/internal/errors"
	"github.com/five82/crfscan/internal/util"
)

// Progress represents encoding progress information.
type Progress struct {
	CurrentFrame uint64
	TotalFrames  uint64
	Percent      float32
	Speed        float32
	FPS          float32
	ETA          time.Duration
	ElapsedSecs  float64
}

// ProgressCallback is called with progress updates during an encode or a
// quality measurement.
type ProgressCallback func(Progress)

// EncodeOutcome is the result of one successful sample or full encode.
type EncodeOutcome struct {
	OutputPath   string
	EncodedBytes uint64
	WallTime     time.Duration
}

var timeRegex = regexp.MustCompile(`time=\s*(\d{2}:\d{2}:\d{2}\.?\d*)`)

// RunEncode encodes input to output per spec. It validates the spec, runs
// ffmpeg in its own process group, streams stderr through the progress
// parser, and returns the output size and wall time. On failure the error
// carries the coalesced stderr tail.
func RunEncode(ctx context.Context, spec *EncodeSpec, input, output string, duration, fps float64, totalFrames uint64, callback ProgressCallback) (*EncodeOutcome, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}

	args := spec.BuildArgs(input, output, fps)
	start := time.Now()

	if _, err := Run(ctx, "ffmpeg", args, duration, totalFrames, callback); err != nil {
		return nil, err
	}

	size, err := util.GetFileSize(output)
	if err != nil {
		return nil, errors.NewIOError("encoded output missing", err)
	}

	return &EncodeOutcome{
		OutputPath:   output,
		EncodedBytes: size,
		WallTime:     time.Since(start),
	}, nil
}

// Run executes an external media tool, streaming its stderr through the
// progress parser. It returns the stderr tail for callers that parse scores
// or diagnostics out of it.
func Run(ctx context.Context, name string, args []string, duration float64, totalFrames uint64, callback ProgressCallback) (*StderrTail, error) {
	cmd := Command(ctx, name, args...)
	cmdLine := name + " " + strings.Join(args, " ")

	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, errors.NewCommandStartError(cmdLine, err)
	}

	if err := cmd.Start(); err != nil {
		return nil, errors.NewCommandStartError(cmdLine, err)
	}

	tail := NewStderrTail()
	parseStream(stderr, tail, duration, totalFrames, callback)

	if err := cmd.Wait(); err != nil {
		if ctx.Err() != nil {
			return tail, errors.NewCancelledError()
		}
		exitCode := -1
		if ee, ok := err.(interface{ ExitCode() int }); ok {
			exitCode = ee.ExitCode()
		}
		return tail, errors.NewEncoderError(cmdLine, exitCode, tail.String())
	}

	return tail, nil
}

// parseStream reads stderr byte-wise, splitting on \r and \n. Progress
// lines feed the callback; every chunk lands in the tail.
func parseStream(stderr io.Reader, tail *StderrTail, duration float64, totalFrames uint64, callback ProgressCallback) {
	reader := bufio.NewReader(stderr)
	var lineBuf strings.Builder

	for {
		b, err := reader.ReadByte()
		if err != nil {
			if lineBuf.Len() > 0 {
				tail.AddChunk(lineBuf.String(), '\n')
			}
			break
		}

		if b == '\r' || b == '\n' {
			line := lineBuf.String()
			lineBuf.Reset()
			if line == "" {
				continue
			}
			tail.AddChunk(line, b)

			if callback != nil && strings.Contains(line, "frame=") {
				if progress := parseProgressLine(line, duration, totalFrames); progress != nil {
					callback(*progress)
				}
			}
		} else {
			lineBuf.WriteByte(b)
		}
	}
}

// parseProgressLine extracts progress information from an ffmpeg progress
// line.
func parseProgressLine(line string, duration float64, totalFrames uint64) *Progress {
	var elapsedSecs float64
	if matches := timeRegex.FindStringSubmatch(line); len(matches) >= 2 {
		if secs, ok := util.ParseFFmpegTime(matches[1]); ok {
			elapsedSecs = secs
		}
	}

	frame := parseFieldUint(line, "frame=")
	fps := parseFieldFloat(line, "fps=")
	speed := parseFieldFloat(line, "speed=")

	var percent float32
	if duration > 0 {
		percent = float32((elapsedSecs / duration) * 100)
		if percent > 100 {
			percent = 100
		}
	} else if totalFrames > 0 && frame > 0 {
		percent = float32(frame) / float32(totalFrames) * 100
		if percent > 100 {
			percent = 100
		}
	}

	var eta time.Duration
	if speed > 0 && duration > 0 {
		remaining := duration - elapsedSecs
		if remaining < 0 {
			remaining = 0
		}
		etaSeconds := remaining / float64(speed)
		// Clamp rather than overflow time.Duration on absurd speeds.
		if etaSeconds > float64(time.Duration(1<<62)/time.Second) {
			eta = time.Duration(1 << 62)
		} else {
			eta = time.Duration(etaSeconds * float64(time.Second))
		}
	}

	return &Progress{
		CurrentFrame: frame,
		TotalFrames:  totalFrames,
		Percent:      percent,
		Speed:        speed,
		FPS:          fps,
		ETA:          eta,
		ElapsedSecs:  elapsedSecs,
	}
}

func parseField(line, prefix string) string {
	idx := strings.Index(line, prefix)
	if idx < 0 {
		return ""
	}
	remaining := strings.TrimLeft(line[idx+len(prefix):], " ")
	if end := strings.IndexAny(remaining, " \t"); end > 0 {
		remaining = remaining[:end]
	}
	return strings.TrimSuffix(remaining, "x")
}

func parseFieldUint(line, prefix string) uint64 {
	v, err := strconv.ParseUint(parseField(line, prefix), 10, 64)
	if err != nil {
		return 0
	}
	return v
}

func parseFieldFloat(line, prefix string) float32 {
	v, err := strconv.ParseFloat(parseField(line, prefix), 32)
	if err != nil {
		return 0
	}
	return float32(v)
}
