package httpexec

// Option changes how a query or mutation result is shaped
type Option func(*options)

type options struct {
	flatten     bool
	singleChild bool
}

// WithoutFlatten returns the whole response instead of the flattened data
func WithoutFlatten() Option {
	return func(o *options) {
		o.flatten = false
	}
}

// WithSingleChild collapses single-element lists while flattening
func WithSingleChild() Option {
	return func(o *options) {
		o.singleChild = true
	}
}

func applyOptions(opts []Option) options {
	o := options{flatten: true}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
