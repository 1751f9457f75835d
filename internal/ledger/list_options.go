package ledger

// SortOrder defines how history entries are ordered.
type SortOrder int

const (
	// SortBySequenceAsc orders records oldest first.
	SortBySequenceAsc SortOrder = iota
	// SortBySequenceDesc orders records newest first.
	SortBySequenceDesc
)

// ListOptions controls which slice of the transaction history is returned.
type ListOptions struct {
	Limit  int
	Offset int
	Order  SortOrder
}

func (opts *ListOptions) applyDefaults() {
	if opts.Limit <= 0 {
		opts.Limit = 50
	}
	if opts.Limit > 500 {
		opts.Limit = 500
	}
	if opts.Offset < 0 {
		opts.Offset = 0
	}
	if opts.Order != SortBySequenceDesc {
		opts.Order = SortBySequenceAsc
	}
}

// ListOption mutates ListOptions.
type ListOption func(*ListOptions)

// WithLimit limits the number of records returned.
func WithLimit(limit int) ListOption {
	return func(opts *ListOptions) {
		opts.Limit = limit
	}
}

// WithOffset skips the first n records.
func WithOffset(offset int) ListOption {
	return func(opts *ListOptions) {
		opts.Offset = offset
	}
}

// WithSortOrder changes the returned order of records.
func WithSortOrder(order SortOrder) ListOption {
	return func(opts *ListOptions) {
		opts.Order = order
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

func (opts ListOptions) query() RecordQuery {
	return RecordQuery{Offset: opts.Offset, Limit: opts.Limit, Descending: opts.Order == SortBySequenceDesc}
}
