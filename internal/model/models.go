// The `model`s package holds the types shared between the reporter, its
// backends and the collector. It exists to avoid cyclic dependencies, types
// needed by library users are reexported by the testops package.
package model

import (
	"fmt"
	"time"
)

// TestMethod identifies one test invocation as reported by the host framework.
type TestMethod struct {
	// ClassName is the fully qualified class or package name.
	ClassName string `json:"className"`
	// MethodName is the name of the test function.
	MethodName string `json:"methodName"`
	// Line is the source line the test is declared on. Data-provider style
	// tests share class and method but differ in line.
	Line int `json:"line"`
}

func (t TestMethod) Key() TestKey {
	return TestKey{ClassName: t.ClassName, MethodName: t.MethodName, Line: t.Line}
}

// TestKey correlates all events belonging to the same test invocation
// within one run.
type TestKey struct {
	ClassName  string
	MethodName string
	Line       int
}

func (k TestKey) String() string {
	return fmt.Sprintf("%s::%s:%d", k.ClassName, k.MethodName, k.Line)
}

// Metadata is resolved per test by a metadata provider and only read.
type Metadata struct {
	// TestOpsID links the test to a case in the test management system.
	TestOpsID *int64 `yaml:"id" json:"id,omitempty"`
	// Suites overrides the suite hierarchy derived from the class name.
	Suites []string `yaml:"suites" json:"suites,omitempty"`
	Fields map[string]string `yaml:"fields" json:"fields,omitempty"`
	Params map[string]string `yaml:"params" json:"params,omitempty"`
	// Title overrides the method name as display title.
	Title *string `yaml:"title" json:"title,omitempty"`
}

// Result is the unit that is forwarded to a backend once a test completed.
type Result struct {
	// RunID is set by backends that group results into persisted runs.
	RunID     string            `json:"runId,omitempty"`
	TestOpsID *int64            `json:"testOpsId,omitempty"`
	Title     string            `json:"title"`
	Signature string            `json:"signature"`
	Suites    []string          `json:"suites"`
	Fields    map[string]string `json:"fields"`
	Params    map[string]string `json:"params"`
	Execution Execution         `json:"execution"`
}

type Execution struct {
	Status Status `json:"status"`
	// Thread identifies the parallel worker the test ran on.
	Thread string `json:"thread"`
	// Message accumulates all messages reported for the test.
	Message    string    `json:"message"`
	StackTrace string    `json:"stackTrace"`
	StartTime  time.Time `json:"startTime"`
	EndTime    time.Time `json:"endTime"`
	// DurationInMS is the duration of the test in milliseconds (end-start).
	DurationInMS int64 `json:"durationInMs"`
}

// Finish marks the execution as completed at end.
func (e *Execution) Finish(end time.Time) {
	e.EndTime = end
	e.DurationInMS = end.Sub(e.StartTime).Milliseconds()
}

// AppendMessage adds msg to the accumulated message, framed by newlines.
func (e *Execution) AppendMessage(msg string) {
	e.Message = e.Message + "\n" + msg + "\n"
}

func (e Execution) Finished() bool {
	return !e.EndTime.IsZero()
}

// Run groups the results of one test run as persisted by a backend.
type Run struct {
	ID     string    `json:"id"`
	Thread string    `json:"thread"`
	Start  time.Time `json:"start"`
	End    time.Time `json:"end"`
	// Results of the run, only filled when loading a single run.
	Results []Result `json:"results,omitempty"`
}

// Completed returns true if the backend received the end of the run.
func (r Run) Completed() bool {
	return !r.End.IsZero()
}

// Counts returns the number of results per status.
func (r Run) Counts() map[Status]int {
	counts := map[Status]int{}

	for _, res := range r.Results {
		counts[res.Execution.Status]++
	}

	return counts
}
