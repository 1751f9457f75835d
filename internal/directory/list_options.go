package directory

// ListOptions controls how agents are enumerated.
type ListOptions struct {
	Limit      int
	Offset     int
	ActiveOnly bool
}

func (opts *ListOptions) applyDefaults() {
	if opts.Limit < 0 {
		opts.Limit = 0
	}
	if opts.Offset < 0 {
		opts.Offset = 0
	}
}

// ListOption mutates ListOptions.
type ListOption func(*ListOptions)

// WithLimit limits the number of agents returned. Zero returns every match.
func WithLimit(limit int) ListOption {
	return func(opts *ListOptions) {
		opts.Limit = limit
	}
}

// WithOffset skips the first n matching agents.
func WithOffset(offset int) ListOption {
	return func(opts *ListOptions) {
		opts.Offset = offset
	}
}

// WithActiveOnly restricts the listing to active agents.
func WithActiveOnly(active bool) ListOption {
	return func(opts *ListOptions) {
		opts.ActiveOnly = active
	}
}

func buildListOptions(opts []ListOption) ListOptions {
	options := ListOptions{}
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}
	options.applyDefaults()
	return options
}

func (opts ListOptions) query() AgentQuery {
	return AgentQuery{Offset: opts.Offset, Limit: opts.Limit, ActiveOnly: opts.ActiveOnly}
}
