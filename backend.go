package testops

import (
	"context"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"github.com/raphi011/testops/internal/model"
)

// backends forwards every call to all of its backends, a failing backend
// does not prevent the others from receiving the call. Results without a
// run id are stamped with the id of the first backend that assigned one,
// so every backend stores the run under the same id.
type backends struct {
	all []Backend
}

// Backends combines multiple backends into one.
func Backends(b ...Backend) Backend {
	return &backends{all: b}
}

func (b *backends) StartRun(ctx context.Context) error {
	return b.notify(func(backend Backend) error {
		return backend.StartRun(ctx)
	})
}

func (b *backends) CompleteRun(ctx context.Context) error {
	return b.notify(func(backend Backend) error {
		return backend.CompleteRun(ctx)
	})
}

func (b *backends) AddResult(ctx context.Context, r model.Result) error {
	if r.RunID == "" {
		r.RunID = b.runID()
	}

	return b.notify(func(backend Backend) error {
		return backend.AddResult(ctx, r)
	})
}

type runIdentifier interface {
	RunID() string
}

func (b *backends) runID() string {
	for _, backend := range b.all {
		if r, ok := backend.(runIdentifier); ok && r.RunID() != "" {
			return r.RunID()
		}
	}

	return ""
}

type named interface {
	Name() string
}

func (b *backends) notify(f func(backend Backend) error) error {
	var result *multierror.Error

	for _, backend := range b.all {
		err := f(backend)
		if err == nil {
			continue
		}

		if n, ok := backend.(named); ok {
			err = errors.Wrapf(err, "backend %s", n.Name())
		}

		result = multierror.Append(result, err)
	}

	return result.ErrorOrNil()
}

// Discard is a backend that drops all results.
type Discard struct{}

func (Discard) StartRun(context.Context) error { return nil }
func (Discard) CompleteRun(context.Context) error { return nil }
func (Discard) AddResult(context.Context, model.Result) error { return nil }
