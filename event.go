package testops

import (
	"github.com/raphi011/testops/internal/model"
)

// Event is a lifecycle event of the host test framework.
type Event interface {
	Apply(r *Reporter)
}

type TestRunnerStarted struct{}

func (e TestRunnerStarted) Apply(r *Reporter) {
	r.StartRun()
}

type TestRunnerFinished struct{}

func (e TestRunnerFinished) Apply(r *Reporter) {
	r.CompleteRun()
}

// TestPrepared is emitted before a test starts executing.
type TestPrepared struct {
	Test TestMethod
}

func (e TestPrepared) Apply(r *Reporter) {
	r.StartTest(e.Test)
}

// TestFinished is emitted after a test and all its status events.
type TestFinished struct {
	Test TestMethod
}

func (e TestFinished) Apply(r *Reporter) {
	r.CompleteTest(e.Test)
}

// TestStatusChanged reports one of the status event kinds of a test.
type TestStatusChanged struct {
	Test       TestMethod
	Kind       model.EventKind
	Message    string
	StackTrace string
}

func (e TestStatusChanged) Apply(r *Reporter) {
	r.UpdateStatus(e.Test, e.Kind.Status(), e.Message, e.StackTrace)
}

func TestFailed(test TestMethod, message, stackTrace string) TestStatusChanged {
	return TestStatusChanged{Test: test, Kind: model.EventFailed, Message: message, StackTrace: stackTrace}
}

func TestErrored(test TestMethod, message, stackTrace string) TestStatusChanged {
	return TestStatusChanged{Test: test, Kind: model.EventErrored, Message: message, StackTrace: stackTrace}
}

func TestMarkedIncomplete(test TestMethod, message string) TestStatusChanged {
	return TestStatusChanged{Test: test, Kind: model.EventMarkedIncomplete, Message: message}
}

func TestSkipped(test TestMethod, message string) TestStatusChanged {
	return TestStatusChanged{Test: test, Kind: model.EventSkipped, Message: message}
}

func TestWarningTriggered(test TestMethod, message string) TestStatusChanged {
	return TestStatusChanged{Test: test, Kind: model.EventWarningTriggered, Message: message}
}

func TestConsideredRisky(test TestMethod, message string) TestStatusChanged {
	return TestStatusChanged{Test: test, Kind: model.EventConsideredRisky, Message: message}
}

func TestPassed(test TestMethod) TestStatusChanged {
	return TestStatusChanged{Test: test, Kind: model.EventPassed}
}

// Handle applies e to the reporter.
func (r *Reporter) Handle(e Event) {
	r.barrier.Try("handle", func() error {
		e.Apply(r)
		return nil
	})
}
