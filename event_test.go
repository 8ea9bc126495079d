package testops_test

import (
	"testing"

	"github.com/raphi011/testops"
	"github.com/raphi011/testops/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusEventsMapToStatus(t *testing.T) {
	tests := []struct {
		name     string
		event    testops.Event
		expected model.Status
	}{
		{name: "failed", event: testops.TestFailed(testMethod, "failed", "trace"), expected: model.StatusFailed},
		{name: "errored", event: testops.TestErrored(testMethod, "errored", "trace"), expected: model.StatusInvalid},
		{name: "incomplete", event: testops.TestMarkedIncomplete(testMethod, "incomplete"), expected: model.StatusSkipped},
		{name: "skipped", event: testops.TestSkipped(testMethod, "skipped"), expected: model.StatusSkipped},
		{name: "warning", event: testops.TestWarningTriggered(testMethod, "warning"), expected: model.StatusPassed},
		{name: "risky", event: testops.TestConsideredRisky(testMethod, "risky"), expected: model.StatusPassed},
		{name: "passed", event: testops.TestPassed(testMethod), expected: model.StatusPassed},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			e := newEnv(t)

			e.reporter.Handle(testops.TestPrepared{Test: testMethod})
			e.reporter.Handle(tc.event)
			e.reporter.Handle(testops.TestFinished{Test: testMethod})

			require.Len(t, e.backend.results, 1)
			assert.Equal(t, tc.expected, e.backend.results[0].Execution.Status)
		})
	}
}

func TestFullRunLifecycle(t *testing.T) {
	e := newEnv(t)

	other := testops.TestMethod{ClassName: `A\B\Test`, MethodName: "testOther", Line: 30}

	events := []testops.Event{
		testops.TestRunnerStarted{},
		testops.TestPrepared{Test: testMethod},
		testops.TestWarningTriggered(testMethod, "deprecated"),
		testops.TestFailed(testMethod, "assertion failed", "Test.php:12"),
		testops.TestFinished{Test: testMethod},
		testops.TestPrepared{Test: other},
		testops.TestPassed(other),
		testops.TestConsideredRisky(other, "no assertions"),
		testops.TestFinished{Test: other},
		testops.TestRunnerFinished{},
	}

	for _, ev := range events {
		e.reporter.Handle(ev)
	}

	assert.Equal(t, 1, e.backend.started)
	assert.Equal(t, 1, e.backend.completed)
	require.Len(t, e.backend.results, 2)

	failed := e.backend.results[0]
	assert.Equal(t, model.StatusFailed, failed.Execution.Status)
	assert.Equal(t, "\ndeprecated\n\nassertion failed\n", failed.Execution.Message)
	assert.Equal(t, "Test.php:12", failed.Execution.StackTrace)

	risky := e.backend.results[1]
	assert.Equal(t, "test other", risky.Title)
	assert.Equal(t, model.StatusPassed, risky.Execution.Status)
	assert.Equal(t, "\nno assertions\n", risky.Execution.Message)

	assert.Zero(t, e.diagnosticCount(t))
}

func TestUnknownEventKindIsContained(t *testing.T) {
	e := newEnv(t)

	e.reporter.Handle(testops.TestPrepared{Test: testMethod})

	assert.NotPanics(t, func() {
		e.reporter.Handle(testops.TestStatusChanged{Test: testMethod, Kind: model.EventKind(99)})
	})

	e.reporter.Handle(testops.TestFinished{Test: testMethod})

	assert.Len(t, e.backend.results, 1)
	assert.Equal(t, 1, e.diagnosticCount(t))
}
