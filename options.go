package testops

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/raphi011/testops/internal/fault"
)

type Option func(r *Reporter)

// WithMetadataProvider sets the provider used to resolve test metadata.
// By default tests have no metadata.
func WithMetadataProvider(p MetadataProvider) Option {
	return func(r *Reporter) {
		r.metadata = p
	}
}

func WithLogger(log *slog.Logger) Option {
	return func(r *Reporter) {
		r.log = log
	}
}

// WithDiagnostics writes diagnostics of contained failures to w instead of stdout.
func WithDiagnostics(w io.Writer) Option {
	return func(r *Reporter) {
		r.barrier = fault.New(w)
	}
}

// WithThreadEnv changes the environment variable the thread tag is read from.
func WithThreadEnv(name string) Option {
	return func(r *Reporter) {
		r.threadEnv = name
	}
}

// WithNamespaceSeparator sets the separator of namespace segments in class
// names, e.g. "/" for go package paths.
func WithNamespaceSeparator(sep string) Option {
	return func(r *Reporter) {
		r.separator = sep
	}
}

func WithClock(now func() time.Time) Option {
	return func(r *Reporter) {
		r.now = now
	}
}

// WithContext sets the context passed to the backend.
func WithContext(ctx context.Context) Option {
	return func(r *Reporter) {
		r.ctx = ctx
	}
}
