package ranking

// Options holds configuration for the ranker.
type Options struct {
	// Template is the raw regex template; DefaultTemplate when empty.
	Template             string
	ResultsPerCollection int
	SentencesPerDocument int
	TitleBonus           int
}

// DefaultOptions returns the default ranking options.
func DefaultOptions() *Options {
	return &Options{
		Template:             DefaultTemplate,
		ResultsPerCollection: 10,
		SentencesPerDocument: 10,
		TitleBonus:           10,
	}
}

// ApplyDefaults fills zero values with defaults.
func (o *Options) ApplyDefaults() {
	def := DefaultOptions()
	if o.Template == "" {
		o.Template = def.Template
	}
	if o.ResultsPerCollection <= 0 {
		o.ResultsPerCollection = def.ResultsPerCollection
	}
	if o.SentencesPerDocument <= 0 {
		o.SentencesPerDocument = def.SentencesPerDocument
	}
	if o.TitleBonus < 0 {
		o.TitleBonus = 0
	}
}
