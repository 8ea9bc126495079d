package storage

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/raphi011/testops/internal/model"
)

// Recorder is a reporter backend that persists one run and its results.
type Recorder struct {
	storage *SQLite
	thread  string
	now     func() time.Time

	runID string
}

func NewRecorder(s *SQLite, thread string) *Recorder {
	return &Recorder{
		storage: s,
		thread:  thread,
		now:     time.Now,
	}
}

func (r *Recorder) Name() string {
	return "sqlite"
}

// RunID returns the id of the current run, empty before the run started.
func (r *Recorder) RunID() string {
	return r.runID
}

func (r *Recorder) StartRun(ctx context.Context) error {
	run := model.Run{
		ID:     uuid.NewString(),
		Thread: r.thread,
		Start:  r.now(),
	}

	if err := r.storage.InsertRun(ctx, run); err != nil {
		return errors.WithStack(err)
	}

	r.runID = run.ID

	return nil
}

func (r *Recorder) CompleteRun(ctx context.Context) error {
	if r.runID == "" {
		return errors.New("run was not started")
	}

	return errors.WithStack(r.storage.CompleteRun(ctx, r.runID, r.now()))
}

func (r *Recorder) AddResult(ctx context.Context, res model.Result) error {
	if r.runID == "" {
		return errors.New("run was not started")
	}

	res.RunID = r.runID

	return errors.WithStack(r.storage.InsertResult(ctx, r.runID, res))
}
