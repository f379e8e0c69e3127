package runner

import (
	"log/slog"
	"time"
)

// Option defines a functional option for configuring the Runner.
type Option func(*Runner)

// WithLogger configures the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) {
		r.Logger = logger
	}
}

// WithInputHandler configures a custom IOHandler.
func WithInputHandler(handler IOHandler) Option {
	return func(r *Runner) {
		r.Handler = handler
	}
}

// WithSilenceTimeout ends the call with reason "silence" when the caller
// says nothing for d. Zero waits forever.
func WithSilenceTimeout(d time.Duration) Option {
	return func(r *Runner) {
		r.SilenceTimeout = d
	}
}

// WithSkipGreeting leaves the first word to the caller (inbound calls).
func WithSkipGreeting(skip bool) Option {
	return func(r *Runner) {
		r.SkipGreeting = skip
	}
}
