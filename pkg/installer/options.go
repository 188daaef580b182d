package installer

// Option adjusts a single Install call.
type Option func(*options)

type options struct {
	keepGoing   bool
	deps        bool
	pre         bool
	indexURLs   []string
	username    string
	password    string
	credentials bool
	verbose     bool
}

// WithKeepGoing collects every resolution failure instead of stopping at the first one.
func WithKeepGoing(keepGoing bool) Option {
	return func(o *options) {
		o.keepGoing = keepGoing
	}
}

// WithDeps toggles dependency resolution.
func WithDeps(deps bool) Option {
	return func(o *options) {
		o.deps = deps
	}
}

// WithPre allows pre-release versions.
func WithPre(pre bool) Option {
	return func(o *options) {
		o.pre = pre
	}
}

// WithIndexURLs replaces the PyPI JSON API URLs used as fallback.
func WithIndexURLs(urls ...string) Option {
	return func(o *options) {
		o.indexURLs = append([]string(nil), urls...)
	}
}

// WithCredentials sends HTTP basic auth on index and artifact requests.
func WithCredentials(username, password string) Option {
	return func(o *options) {
		o.username = username
		o.password = password
		o.credentials = true
	}
}

// WithVerbose logs the resolution at debug level.
func WithVerbose(verbose bool) Option {
	return func(o *options) {
		o.verbose = verbose
	}
}
