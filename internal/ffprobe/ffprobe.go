// Package ffprobe extracts reference media information using ffprobe.
package ffprobe

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"sync"

	"github.com/five82/crfscan/internal/errors"
	"github.com/five82/crfscan/internal/util"
)

// Reference describes the source media. Immutable for the run.
type Reference struct {
	Path     string
	Duration float64 // seconds, fractional
	Width    int
	Height   int
	Fps      float64
	// PixFormat is the video stream's pixel format when ffprobe reports it.
	PixFormat string
	IsImage   bool
	FileSize  uint64

	// Stream inventory.
	VideoStreams      int
	AudioStreams      int
	SubtitleStreams   int
	DataStreams       int
	AttachmentStreams int

	// Bits per second of the video stream when the container reports it,
	// otherwise 0.
	VideoBitrate uint64
	// Bits per second of all audio streams combined when reported.
	AudioBitrate uint64
}

// VideoStreamBytes estimates the byte budget of the reference's video
// stream. The video bitrate is used when the container reports it; failing
// that the audio share is subtracted from the file size; failing both the
// whole file stands in.
func (r *Reference) VideoStreamBytes() uint64 {
	if r.VideoBitrate > 0 && r.Duration > 0 {
		return uint64(float64(r.VideoBitrate) / 8 * r.Duration)
	}
	if r.AudioBitrate > 0 && r.Duration > 0 {
		audioBytes := uint64(float64(r.AudioBitrate) / 8 * r.Duration)
		if audioBytes < r.FileSize {
			return r.FileSize - audioBytes
		}
	}
	return r.FileSize
}

// TotalFrames estimates the frame count over the whole duration.
func (r *Reference) TotalFrames() uint64 {
	if r.IsImage {
		return 1
	}
	if r.Fps <= 0 || r.Duration <= 0 {
		return 0
	}
	return uint64(r.Duration * r.Fps)
}

// ffprobeOutput mirrors the JSON output from ffprobe.
type ffprobeOutput struct {
	Format  ffprobeFormat   `json:"format"`
	Streams []ffprobeStream `json:"streams"`
}

type ffprobeFormat struct {
	Duration   string `json:"duration"`
	FormatName string `json:"format_name"`
	BitRate    string `json:"bit_rate"`
	Size       string `json:"size"`
}

type ffprobeStream struct {
	CodecType    string `json:"codec_type"`
	Width        int    `json:"width"`
	Height       int    `json:"height"`
	PixFmt       string `json:"pix_fmt"`
	RFrameRate   string `json:"r_frame_rate"`
	AvgFrameRate string `json:"avg_frame_rate"`
	NbFrames     string `json:"nb_frames"`
	Duration     string `json:"duration"`
	BitRate      string `json:"bit_rate"`
	Disposition  struct {
		AttachedPic int `json:"attached_pic"`
	} `json:"disposition"`
}

// Prober memoises probe results for the run.
type Prober struct {
	mu    sync.Mutex
	cache map[string]*Reference
}

// New creates a run-scoped prober.
func New() *Prober {
	return &Prober{cache: make(map[string]*Reference)}
}

// Probe inspects the reference at path, memoising the result.
func (p *Prober) Probe(ctx context.Context, path string) (*Reference, error) {
	p.mu.Lock()
	if ref, ok := p.cache[path]; ok {
		p.mu.Unlock()
		return ref, nil
	}
	p.mu.Unlock()

	ref, err := probe(ctx, path)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	p.cache[path] = ref
	p.mu.Unlock()
	return ref, nil
}

func probe(ctx context.Context, path string) (*Reference, error) {
	cmd := exec.CommandContext(ctx, "ffprobe",
		"-v", "error",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	)

	var stderr strings.Builder
	cmd.Stderr = &stderr

	output, err := cmd.Output()
	if err != nil {
		return nil, errors.NewProbeError(fmt.Sprintf("ffprobe failed for %s", path), stderr.String())
	}

	var result ffprobeOutput
	if err := json.Unmarshal(output, &result); err != nil {
		return nil, errors.NewProbeError(fmt.Sprintf("unparseable ffprobe output for %s", path), stderr.String())
	}

	return parseReference(path, &result, stderr.String())
}

func parseReference(path string, out *ffprobeOutput, stderr string) (*Reference, error) {
	ref := &Reference{Path: path}

	if size, err := util.GetFileSize(path); err == nil {
		ref.FileSize = size
	} else if s, err := strconv.ParseUint(out.Format.Size, 10, 64); err == nil {
		ref.FileSize = s
	}

	var video *ffprobeStream
	for i := range out.Streams {
		s := &out.Streams[i]
		switch s.CodecType {
		case "video":
			ref.VideoStreams++
			if video == nil && s.Disposition.AttachedPic == 0 {
				video = s
			}
		case "audio":
			ref.AudioStreams++
			if br, err := strconv.ParseUint(s.BitRate, 10, 64); err == nil {
				ref.AudioBitrate += br
			}
		case "subtitle":
			ref.SubtitleStreams++
		case "data":
			ref.DataStreams++
		case "attachment":
			ref.AttachmentStreams++
		}
	}

	if video == nil {
		return nil, errors.NewProbeError(fmt.Sprintf("no video stream found in %s", path), stderr)
	}
	if video.Width <= 0 || video.Height <= 0 {
		return nil, errors.NewProbeError(
			fmt.Sprintf("invalid dimensions in %s: %dx%d", path, video.Width, video.Height), stderr)
	}
	ref.Width = video.Width
	ref.Height = video.Height
	ref.PixFormat = video.PixFmt

	if br, err := strconv.ParseUint(video.BitRate, 10, 64); err == nil {
		ref.VideoBitrate = br
	}

	fps, err := parseRational(video.RFrameRate)
	if err != nil {
		fps, err = parseRational(video.AvgFrameRate)
	}
	if err == nil {
		ref.Fps = fps
	}

	ref.IsImage = util.IsImageFile(path) ||
		strings.Contains(out.Format.FormatName, "image2") ||
		strings.Contains(out.Format.FormatName, "_pipe")

	duration, err := parseDuration(out, video, ref.Fps)
	if err != nil {
		if !ref.IsImage {
			return nil, errors.NewProbeError(fmt.Sprintf("could not read duration of %s", path), stderr)
		}
		duration = 0
	}

	if ref.IsImage {
		// One frame of duration, sampling collapses to a full pass.
		if ref.Fps > 0 {
			ref.Duration = 1 / ref.Fps
		} else {
			ref.Fps = 1
			ref.Duration = 1
		}
		return ref, nil
	}

	if duration <= 0 {
		return nil, errors.NewProbeError(fmt.Sprintf("zero duration reported for %s", path), stderr)
	}
	ref.Duration = duration

	return ref, nil
}

// parseDuration reads the container duration, falling back to the video
// stream's own duration, then to nb_frames over the frame rate.
func parseDuration(out *ffprobeOutput, video *ffprobeStream, fps float64) (float64, error) {
	for _, raw := range []string{out.Format.Duration, video.Duration} {
		if raw == "" || raw == "N/A" {
			continue
		}
		d, err := strconv.ParseFloat(raw, 64)
		if err == nil && d > 0 {
			return d, nil
		}
	}

	if video.NbFrames != "" && fps > 0 {
		frames, err := strconv.ParseUint(video.NbFrames, 10, 64)
		if err == nil && frames > 0 {
			return float64(frames) / fps, nil
		}
	}

	return 0, fmt.Errorf("no usable duration")
}

// parseRational parses a "num/den" rational (or a plain number) into a
// float. Zero denominators and overflow map to errors, never panics.
func parseRational(raw string) (float64, error) {
	if raw == "" {
		return 0, fmt.Errorf("empty rational")
	}

	numStr, denStr, found := strings.Cut(raw, "/")
	if !found {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || v <= 0 {
			return 0, fmt.Errorf("invalid rational %q", raw)
		}
		return v, nil
	}

	num, err := strconv.ParseInt(numStr, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid rational numerator %q", raw)
	}
	den, err := strconv.ParseInt(denStr, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid rational denominator %q", raw)
	}
	if den == 0 {
		return 0, fmt.Errorf("zero denominator in %q", raw)
	}
	if num <= 0 {
		return 0, fmt.Errorf("non-positive rational %q", raw)
	}

	return float64(num) / float64(den), nil
}
