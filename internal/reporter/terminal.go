package reporter

import (
	"fmt"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"

	"github.com/five82/crfscan/internal/util"
)

// TerminalReporter outputs human-friendly text to the terminal.
type TerminalReporter struct {
	mu        sync.Mutex
	progress  *progressbar.ProgressBar
	lastStage Stage
	stageDesc string
	eta       EtaTracker
	verbose   bool

	cyan   *color.Color
	green  *color.Color
	yellow *color.Color
	bold   *color.Color
	dim    *color.Color
}

// NewTerminalReporter creates a new terminal reporter.
func NewTerminalReporter(verbose bool) *TerminalReporter {
	return &TerminalReporter{
		verbose: verbose,
		cyan:    color.New(color.FgCyan, color.Bold),
		green:   color.New(color.FgGreen),
		yellow:  color.New(color.FgYellow, color.Bold),
		bold:    color.New(color.Bold),
		dim:     color.New(color.Faint),
	}
}

func (r *TerminalReporter) finishProgress() {
	if r.progress != nil {
		_ = r.progress.Finish()
		r.progress = nil
		fmt.Println()
	}
	r.lastStage = ""
}

// printLabel prints a bold label with fixed width padding followed by a
// value.
func (r *TerminalReporter) printLabel(width int, label, value string) {
	paddedLabel := fmt.Sprintf("%-*s", width, label)
	fmt.Printf("  %s %s\n", r.bold.Sprint(paddedLabel), value)
}

func (r *TerminalReporter) SearchStarted(info SearchInfo) {
	r.mu.Lock()
	defer r.mu.Unlock()

	fmt.Println()
	_, _ = r.cyan.Println("CRF SEARCH")
	r.printLabel(12, "File:", info.InputFile)
	r.printLabel(12, "Encoder:", info.Encoder)
	r.printLabel(12, "Target:", fmt.Sprintf("%s >= %.5g", info.Metric, info.MinQuality))
	r.printLabel(12, "Duration:", info.Duration)
	r.printLabel(12, "Resolution:", info.Resolution)
	if info.FullPass {
		r.printLabel(12, "Samples:", "Full pass")
	} else {
		r.printLabel(12, "Samples:", fmt.Sprintf("%d x 20s", info.Samples))
	}
}

func (r *TerminalReporter) ProbeStarted(crf string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.finishProgress()
	fmt.Println()
	_, _ = r.bold.Printf("crf %s\n", crf)
}

func (r *TerminalReporter) StageProgress(update StageProgress) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if update.Stage != r.lastStage {
		r.finishProgress()
		r.lastStage = update.Stage
		r.eta = EtaTracker{}

		desc := string(update.Stage)
		if update.SampleCount > 1 {
			desc = fmt.Sprintf("%s sample %d/%d", desc, update.SampleIndex+1, update.SampleCount)
		}
		r.stageDesc = desc
		r.progress = progressbar.NewOptions(100,
			progressbar.OptionSetDescription(desc),
			progressbar.OptionSetPredictTime(false),
			progressbar.OptionShowCount(),
			progressbar.OptionClearOnFinish(),
		)
	}
	if r.progress != nil {
		_ = r.progress.Set(int(update.Percent))
		if eta := r.eta.Update(float64(update.Percent), 100, time.Now()); eta > 0 && eta < maxETA {
			r.progress.Describe(fmt.Sprintf("%s eta %s", r.stageDesc, eta.Round(time.Second)))
		}
	}
}

func (r *TerminalReporter) ProbeComplete(summary ProbeSummary) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.finishProgress()
	note := ""
	if summary.Cached {
		note = r.dim.Sprint(" (cached)")
	}
	fmt.Printf("  crf %s %s %.2f, predicted size %.2f%%%s\n",
		summary.Crf, summary.Metric, summary.Score, summary.EncodePercent, note)
}

func (r *TerminalReporter) printSummary(summary EncodeSummary) {
	fmt.Println()
	_, _ = r.cyan.Println("PREDICTION")
	r.printLabel(16, "Score:", fmt.Sprintf("%s %.2f", summary.Metric, summary.Score))
	r.printLabel(16, "Encoded size:", fmt.Sprintf("%s (%.2f%%)",
		util.FormatBytes(summary.PredictedEncodeSize), summary.PredictedEncodePercent))
	r.printLabel(16, "Encode time:", util.FormatDuration(summary.PredictedEncodeSeconds))
}

func (r *TerminalReporter) SampleEncodeComplete(summary EncodeSummary) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.finishProgress()
	r.printSummary(summary)
}

func (r *TerminalReporter) SearchComplete(outcome SearchOutcome) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.finishProgress()
	fmt.Println()
	_, _ = r.green.Printf("crf %s selected after %d probes\n", outcome.Crf, outcome.Probes)
	r.printSummary(outcome.Summary)
}

func (r *TerminalReporter) Warning(message string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.finishProgress()
	_, _ = r.yellow.Printf("Warning: %s\n", message)
}

func (r *TerminalReporter) Verbose(message string) {
	if !r.verbose {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	_, _ = r.dim.Println(message)
}
