package testops

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/raphi011/testops/internal/fault"
	"github.com/raphi011/testops/internal/metric"
	"github.com/raphi011/testops/internal/model"
	"github.com/raphi011/testops/internal/naming"
	"github.com/raphi011/testops/internal/storage"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

const (
	// DefaultThreadEnv is the environment variable that identifies the
	// parallel worker a test runs on.
	DefaultThreadEnv = "TEST_TOKEN"
	// DefaultThread is used when DefaultThreadEnv is not set.
	DefaultThread = "default"
)

// Reexport to allow library users to reference these types

type TestMethod = model.TestMethod
type Result = model.Result
type Metadata = model.Metadata
type Status = model.Status

// MetadataProvider resolves the metadata a test is annotated with.
type MetadataProvider interface {
	Resolve(className, methodName string) (model.Metadata, error)
}

// Backend receives the results of a test run.
type Backend interface {
	StartRun(ctx context.Context) error
	CompleteRun(ctx context.Context) error
	AddResult(ctx context.Context, r model.Result) error
}

// Reporter turns the lifecycle events of a test run into one result per test
// and forwards finished results to a backend. All methods must be called from
// the same goroutine. Failures are never returned to the caller but written
// as diagnostics.
type Reporter struct {
	backend  Backend
	metadata MetadataProvider
	results  *storage.ResultStore
	barrier  *fault.Barrier

	threadEnv string
	separator string
	now       func() time.Time
	ctx       context.Context

	log *slog.Logger
}

// New creates a reporter that forwards results to backend.
func New(backend Backend, opts ...Option) *Reporter {
	r := &Reporter{
		backend:   backend,
		metadata:  noMetadata{},
		results:   storage.NewResultStore(),
		barrier:   fault.Default(),
		threadEnv: DefaultThreadEnv,
		separator: naming.DefaultSeparator,
		now:       time.Now,
		ctx:       context.Background(),
		log:       slog.Default(),
	}

	for _, o := range opts {
		o(r)
	}

	return r
}

func (r *Reporter) StartRun() {
	r.barrier.Try("startRun", func() error {
		return errors.WithStack(r.backend.StartRun(r.ctx))
	})
}

func (r *Reporter) CompleteRun() {
	r.barrier.Try("completeRun", func() error {
		if pending := r.results.Len(); pending > 0 {
			r.log.Warn("run completed with unfinished tests", "pending", pending)
		}

		return errors.WithStack(r.backend.CompleteRun(r.ctx))
	})
}

// StartTest creates the result of test. Starting a test that is already
// running replaces its result.
func (r *Reporter) StartTest(test TestMethod) {
	r.barrier.Try("startTest", func() error {
		key := test.Key()

		metadata, err := r.metadata.Resolve(test.ClassName, test.MethodName)
		if err != nil {
			return errors.Wrapf(err, "resolving metadata of %s", key)
		}

		result := &model.Result{
			TestOpsID: metadata.TestOpsID,
			Fields:    maps.Clone(metadata.Fields),
			Params:    maps.Clone(metadata.Params),
			Signature: naming.Signature(r.separator, key),
			Title:     test.MethodName,
			Execution: model.Execution{
				Thread:    r.thread(),
				StartTime: r.now(),
			},
		}

		if len(metadata.Suites) > 0 {
			result.Suites = slices.Clone(metadata.Suites)
		} else {
			result.Suites = naming.Suites(r.separator, test.ClassName)
		}

		if metadata.Title != nil {
			result.Title = *metadata.Title
		}

		if _, running := r.results.Load(key); !running {
			metric.TestsRunning.Inc()
		}

		r.results.Save(key, result)

		return nil
	})
}

// UpdateStatus sets the status of a running test. Messages of consecutive
// updates are accumulated, the stack trace of the last update wins. Updates
// for tests that were not started are ignored.
func (r *Reporter) UpdateStatus(test TestMethod, status Status, message, stackTrace string) {
	r.barrier.Try("updateStatus", func() error {
		result, ok := r.results.Load(test.Key())
		if !ok {
			// test did not run
			return nil
		}

		if !status.Valid() {
			return errors.Errorf("invalid status %q for test %s", status, test.Key())
		}

		result.Execution.Status = status

		if message != "" {
			result.Execution.AppendMessage(message)
		}

		if stackTrace != "" {
			result.Execution.StackTrace = stackTrace
		}

		return nil
	})
}

// CompleteTest finishes the result of test and forwards it to the backend.
// A test that was never started is dropped.
func (r *Reporter) CompleteTest(test TestMethod) {
	r.barrier.Try("completeTest", func() error {
		result, err := r.results.LoadAndDelete(test.Key())
		if err != nil {
			return errors.WithStack(err)
		}

		metric.TestsRunning.Dec()

		result.Execution.Finish(r.now())
		result.Title = naming.BeautifyTitle(result.Title)

		metric.ResultsTotal.WithLabelValues(result.Execution.Thread, string(result.Execution.Status)).Inc()

		if err := r.backend.AddResult(r.ctx, *result); err != nil {
			return errors.Wrapf(err, "adding result %s", result.Signature)
		}

		return nil
	})
}

// thread is read on every call so that workers started with a different
// environment are told apart.
func (r *Reporter) thread() string {
	return ThreadFromEnv(r.threadEnv)
}

// ThreadFromEnv returns the thread tag stored in the environment variable
// env, or DefaultThread if it is not set.
func ThreadFromEnv(env string) string {
	if t, ok := os.LookupEnv(env); ok {
		return t
	}

	return DefaultThread
}

type noMetadata struct{}

func (noMetadata) Resolve(string, string) (model.Metadata, error) {
	return model.Metadata{}, nil
}
