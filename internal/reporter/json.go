package reporter

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
)

// JSONReporter emits one JSON object per final result to stdout, and stays
// silent for everything else. Warnings go to stderr; progress and verbose
// messages are dropped, so the stream remains machine-readable.
type JSONReporter struct {
	mu     sync.Mutex
	writer io.Writer
	errW   io.Writer
}

// NewJSONReporter creates a JSON reporter writing results to stdout.
func NewJSONReporter() *JSONReporter {
	return &JSONReporter{writer: os.Stdout, errW: os.Stderr}
}

// NewJSONReporterWithWriter creates a JSON reporter with custom streams.
func NewJSONReporterWithWriter(w, errW io.Writer) *JSONReporter {
	return &JSONReporter{writer: w, errW: errW}
}

// resultObject is the emitted schema. Exactly one of Vmaf and Xpsnr is
// present, following the configured metric.
type resultObject struct {
	PredictedEncodePercent float64  `json:"predicted_encode_percent"`
	PredictedEncodeSeconds float64  `json:"predicted_encode_seconds"`
	PredictedEncodeSize    uint64   `json:"predicted_encode_size"`
	Vmaf                   *float64 `json:"vmaf,omitempty"`
	Xpsnr                  *float64 `json:"xpsnr,omitempty"`
	Crf                    string   `json:"crf,omitempty"`
}

func (r *JSONReporter) emit(summary EncodeSummary, crf string) {
	obj := resultObject{
		PredictedEncodePercent: summary.PredictedEncodePercent,
		PredictedEncodeSeconds: summary.PredictedEncodeSeconds,
		PredictedEncodeSize:    summary.PredictedEncodeSize,
		Crf:                    crf,
	}
	score := summary.Score
	if summary.Metric == "XPSNR" {
		obj.Xpsnr = &score
	} else {
		obj.Vmaf = &score
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	data, err := json.Marshal(obj)
	if err != nil {
		return
	}
	_, _ = fmt.Fprintln(r.writer, string(data))
}

func (r *JSONReporter) SearchStarted(SearchInfo)    {}
func (r *JSONReporter) ProbeStarted(string)         {}
func (r *JSONReporter) StageProgress(StageProgress) {}
func (r *JSONReporter) ProbeComplete(ProbeSummary)  {}

func (r *JSONReporter) SampleEncodeComplete(summary EncodeSummary) {
	r.emit(summary, "")
}

func (r *JSONReporter) SearchComplete(outcome SearchOutcome) {
	r.emit(outcome.Summary, outcome.Crf)
}

func (r *JSONReporter) Warning(message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, _ = fmt.Fprintf(r.errW, "Warning: %s\n", message)
}

func (r *JSONReporter) Verbose(string) {}
