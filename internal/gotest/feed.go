// Package gotest turns the output of `go test -json` into test lifecycle
// events.
package gotest

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/raphi011/testops"
	"github.com/raphi011/testops/internal/model"
)

// Separator separates the segments of go package paths.
const Separator = "/"

// TestEvent is a single line written by test2json.
type TestEvent struct {
	Time    time.Time `json:"Time"`
	Action  string    `json:"Action"`
	Package string    `json:"Package"`
	Test    string    `json:"Test"`
	Elapsed float64   `json:"Elapsed"`
	Output  string    `json:"Output"`
}

// Handler receives the lifecycle events, usually a *testops.Reporter.
type Handler interface {
	Handle(e testops.Event)
}

// Summary counts the finished tests of a stream.
type Summary struct {
	Passed  int
	Failed  int
	Skipped int
	// Unfinished counts tests that started but never finished.
	Unfinished int
}

type feeder struct {
	h       Handler
	log     *slog.Logger
	outputs map[model.TestKey]*strings.Builder
	summary Summary
}

// Feed reads test2json events from r until EOF and passes the resulting
// lifecycle events to h.
func Feed(ctx context.Context, r io.Reader, h Handler, log *slog.Logger) (Summary, error) {
	f := &feeder{
		h:       h,
		log:     log,
		outputs: map[model.TestKey]*strings.Builder{},
	}

	h.Handle(testops.TestRunnerStarted{})

	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 64*1024), 4*1024*1024)

	for s.Scan() {
		if err := ctx.Err(); err != nil {
			f.finishRun()
			return f.summary, err
		}

		line := s.Bytes()
		if len(line) == 0 {
			continue
		}

		var e TestEvent
		if err := json.Unmarshal(line, &e); err != nil {
			// build failures and other non-json output are interleaved
			f.log.Debug("skipping non test2json line", "line", string(line))
			continue
		}

		f.apply(e)
	}

	if err := s.Err(); err != nil {
		return f.summary, errors.Wrap(err, "reading test events")
	}

	f.finishRun()

	return f.summary, nil
}

// finishRun completes the run, tests that did not finish yet are not reported.
func (f *feeder) finishRun() {
	f.summary.Unfinished = len(f.outputs)

	f.h.Handle(testops.TestRunnerFinished{})
}

func (f *feeder) apply(e TestEvent) {
	if e.Test == "" {
		return
	}

	test := model.TestMethod{ClassName: e.Package, MethodName: e.Test}
	key := test.Key()

	switch e.Action {
	case "run":
		f.outputs[key] = &strings.Builder{}
		f.h.Handle(testops.TestPrepared{Test: test})
	case "output":
		if b, ok := f.outputs[key]; ok && !isFrameworkOutput(e.Output) {
			b.WriteString(e.Output)
		}
	case "pass":
		f.summary.Passed++
		f.h.Handle(testops.TestPassed(test))
		f.finish(test)
	case "fail":
		f.summary.Failed++
		output := f.output(key)
		f.h.Handle(testops.TestFailed(test, output, output))
		f.finish(test)
	case "skip":
		f.summary.Skipped++
		f.h.Handle(testops.TestSkipped(test, f.output(key)))
		f.finish(test)
	}
}

func (f *feeder) finish(test model.TestMethod) {
	f.h.Handle(testops.TestFinished{Test: test})
	delete(f.outputs, test.Key())
}

func (f *feeder) output(key model.TestKey) string {
	b, ok := f.outputs[key]
	if !ok {
		return ""
	}

	return strings.TrimSpace(b.String())
}

// isFrameworkOutput reports lines written by the test framework itself,
// e.g. "=== RUN   TestFoo" or "--- FAIL: TestFoo (0.00s)".
func isFrameworkOutput(line string) bool {
	trimmed := strings.TrimSpace(line)

	for _, prefix := range []string{"=== RUN", "=== PAUSE", "=== CONT", "=== NAME", "--- PASS", "--- FAIL", "--- SKIP"} {
		if strings.HasPrefix(trimmed, prefix) {
			return true
		}
	}

	return false
}
