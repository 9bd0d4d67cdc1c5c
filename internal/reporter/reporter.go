package reporter

// Reporter is the interface progress and results flow through.
type Reporter interface {
	SearchStarted(info SearchInfo)
	ProbeStarted(crf string)
	StageProgress(update StageProgress)
	ProbeComplete(summary ProbeSummary)
	SampleEncodeComplete(summary EncodeSummary)
	SearchComplete(outcome SearchOutcome)
	Warning(message string)
	Verbose(message string)
}

// NullReporter discards all updates.
type NullReporter struct{}

func (NullReporter) SearchStarted(SearchInfo)           {}
func (NullReporter) ProbeStarted(string)                {}
func (NullReporter) StageProgress(StageProgress)        {}
func (NullReporter) ProbeComplete(ProbeSummary)         {}
func (NullReporter) SampleEncodeComplete(EncodeSummary) {}
func (NullReporter) SearchComplete(SearchOutcome)       {}
func (NullReporter) Warning(string)                     {}
func (NullReporter) Verbose(string)                     {}
