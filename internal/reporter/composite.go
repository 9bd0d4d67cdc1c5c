package reporter

// Composite fans every event out to multiple reporters.
type Composite struct {
	reporters []Reporter
}

// NewComposite creates a composite reporter.
func NewComposite(reporters ...Reporter) *Composite {
	return &Composite{reporters: reporters}
}

func (c *Composite) SearchStarted(info SearchInfo) {
	for _, r := range c.reporters {
		r.SearchStarted(info)
	}
}

func (c *Composite) ProbeStarted(crf string) {
	for _, r := range c.reporters {
		r.ProbeStarted(crf)
	}
}

func (c *Composite) StageProgress(update StageProgress) {
	for _, r := range c.reporters {
		r.StageProgress(update)
	}
}

func (c *Composite) ProbeComplete(summary ProbeSummary) {
	for _, r := range c.reporters {
		r.ProbeComplete(summary)
	}
}

func (c *Composite) SampleEncodeComplete(summary EncodeSummary) {
	for _, r := range c.reporters {
		r.SampleEncodeComplete(summary)
	}
}

func (c *Composite) SearchComplete(outcome SearchOutcome) {
	for _, r := range c.reporters {
		r.SearchComplete(outcome)
	}
}

func (c *Composite) Warning(message string) {
	for _, r := range c.reporters {
		r.Warning(message)
	}
}

func (c *Composite) Verbose(message string) {
	for _, r := range c.reporters {
		r.Verbose(message)
	}
}
