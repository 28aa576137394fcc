package framelink

import (
	"time"
)

// Default configuration values.
const (
	// DefaultMaxErrors is the number of consecutive read failures a
	// connection tolerates. The link breaks on the next one.
	DefaultMaxErrors = 10
	// DefaultClientReadTimeout bounds each blocking read of a client.
	DefaultClientReadTimeout = 30 * time.Second
	// DefaultDialTimeout bounds the connection attempt of a client.
	DefaultDialTimeout = 10 * time.Second
)

// options holds the configuration for a connection.
type options struct {
	logger    Logger
	listeners []EventListener

	readTimeout    time.Duration // zero disables read deadlines
	hasReadTimeout bool
	writeTimeout   time.Duration // zero disables write deadlines
	dialTimeout    time.Duration
	maxErrors      int
	maxFrameSize   int // zero means unbounded
}

// Option is a function that configures connection options.
type Option func(*options)

// newOptions applies opt over the defaults. readTimeout is used when no
// ReadTimeoutOption is given.
func newOptions(readTimeout time.Duration, opt ...Option) options {
	var opts options
	for _, o := range opt {
		o(&opts)
	}
	checkOptions(&opts, readTimeout)
	return opts
}

// checkOptions sets default values for unset connection options.
func checkOptions(opts *options, readTimeout time.Duration) {
	if !opts.hasReadTimeout {
		opts.readTimeout = readTimeout
	}

	if opts.readTimeout < 0 {
		opts.readTimeout = 0
	}

	if opts.writeTimeout < 0 {
		opts.writeTimeout = 0
	}

	if opts.dialTimeout <= 0 {
		opts.dialTimeout = DefaultDialTimeout
	}

	if opts.maxErrors <= 0 {
		opts.maxErrors = DefaultMaxErrors
	}

	if opts.maxFrameSize < 0 {
		opts.maxFrameSize = 0
	}

	if opts.logger == nil {
		opts.logger = defaultLogger()
	}
}

// LoggerOption returns an Option that sets the logger.
// If not set, the default slog logger will be used.
func LoggerOption(logger Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// ReadTimeoutOption returns an Option that bounds every blocking read.
// Zero disables the deadline. Clients default to DefaultClientReadTimeout,
// server handlers to no deadline.
func ReadTimeoutOption(timeout time.Duration) Option {
	return func(o *options) {
		o.readTimeout = timeout
		o.hasReadTimeout = true
	}
}

// WriteTimeoutOption returns an Option that bounds every frame write.
func WriteTimeoutOption(timeout time.Duration) Option {
	return func(o *options) {
		o.writeTimeout = timeout
	}
}

// DialTimeoutOption returns an Option that bounds the client's connection
// attempt.
func DialTimeoutOption(timeout time.Duration) Option {
	return func(o *options) {
		o.dialTimeout = timeout
	}
}

// MaxErrorsOption returns an Option that sets how many consecutive read
// failures are tolerated before the link is declared broken.
func MaxErrorsOption(n int) Option {
	return func(o *options) {
		o.maxErrors = n
	}
}

// MaxFrameSizeOption returns an Option that rejects incoming frames larger
// than size bytes. Zero leaves frames unbounded.
func MaxFrameSizeOption(size int) Option {
	return func(o *options) {
		o.maxFrameSize = size
	}
}

// ListenerOption returns an Option that registers l on the connection
// before its read loop starts.
func ListenerOption(l EventListener) Option {
	return func(o *options) {
		o.listeners = append(o.listeners, l)
	}
}
