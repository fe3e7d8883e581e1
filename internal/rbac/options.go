package rbac

// Option tunes a single resolver, guard or service call.
type Option func(*callOptions)

type callOptions struct {
	repo Repository
	note string
}

// WithRepository makes the call read through repo, typically the
// transaction-scoped repository handed to a WithTx callback, so the check
// observes uncommitted writes of that transaction.
func WithRepository(repo Repository) Option {
	return func(o *callOptions) {
		o.repo = repo
	}
}

// WithNote attaches a free-form note that ends up in audit descriptions.
func WithNote(note string) Option {
	return func(o *callOptions) {
		o.note = note
	}
}

func applyOptions(fallback Repository, opts []Option) callOptions {
	o := callOptions{repo: fallback}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	if o.repo == nil {
		o.repo = fallback
	}
	return o
}
