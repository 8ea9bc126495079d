// Package fault contains failures raised while handling test events so they
// never affect the outcome of the host test run.
package fault

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime"
	"strings"

	"github.com/pkg/errors"
	"github.com/raphi011/testops/internal/metric"
)

// DefaultCode is reported for failures that do not carry a code.
const DefaultCode = 0

// Barrier executes operations and turns every error or panic into a single
// structured diagnostic line.
type Barrier struct {
	log *slog.Logger
}

// New returns a barrier that writes diagnostics as JSON lines to w.
func New(w io.Writer) *Barrier {
	return &Barrier{
		log: slog.New(slog.NewJSONHandler(w, nil)),
	}
}

// Default returns a barrier writing to stdout.
func Default() *Barrier {
	return New(os.Stdout)
}

// Frame is a single entry of a call stack.
type Frame struct {
	Function string `json:"function"`
	File     string `json:"file"`
	Line     int    `json:"line"`
}

// Diagnostic describes a contained failure.
type Diagnostic struct {
	Operation string
	Message   string
	Code      int
	File      string
	Line      int
	Trace     []Frame
}

type coder interface {
	Code() int
}

type stackTracer interface {
	StackTrace() errors.StackTrace
}

// Guard returns a version of op that never fails and never panics.
func (b *Barrier) Guard(operation string, op func() error) func() {
	return func() {
		b.Try(operation, op)
	}
}

// Try runs op and contains any failure it raises.
func (b *Barrier) Try(operation string, op func() error) {
	defer func() {
		if r := recover(); r != nil {
			b.report(fromPanic(operation, r))
		}
	}()

	if err := op(); err != nil {
		b.report(fromError(operation, err))
	}
}

func (b *Barrier) report(d Diagnostic) {
	metric.FaultsTotal.WithLabelValues(d.Operation).Inc()

	b.log.LogAttrs(context.Background(), slog.LevelError, "exception caught in testops reporter",
		slog.String("operation", d.Operation),
		slog.String("message", d.Message),
		slog.Int("code", d.Code),
		slog.String("file", d.File),
		slog.Int("line", d.Line),
		slog.Any("trace", d.Trace),
	)
}

func fromError(operation string, err error) Diagnostic {
	d := Diagnostic{
		Operation: operation,
		Message:   err.Error(),
		Code:      DefaultCode,
	}

	var c coder
	if errors.As(err, &c) {
		d.Code = c.Code()
	}

	d.Trace = deepestStack(err)
	if len(d.Trace) == 0 {
		// errors without a recorded stack are located where they surfaced
		d.Trace = callerStack()
	}

	if len(d.Trace) > 0 {
		d.File = d.Trace[0].File
		d.Line = d.Trace[0].Line
	}

	return d
}

func fromPanic(operation string, recovered any) Diagnostic {
	d := Diagnostic{
		Operation: operation,
		Code:      DefaultCode,
	}

	if err, ok := recovered.(error); ok {
		d.Message = err.Error()

		var c coder
		if errors.As(err, &c) {
			d.Code = c.Code()
		}
	} else {
		d.Message = fmt.Sprintf("%v", recovered)
	}

	d.Trace = panicStack()
	if len(d.Trace) > 0 {
		d.File = d.Trace[0].File
		d.Line = d.Trace[0].Line
	}

	return d
}

// deepestStack returns the stack recorded closest to the origin of err.
func deepestStack(err error) []Frame {
	var trace errors.StackTrace

	for e := err; e != nil; e = errors.Unwrap(e) {
		if st, ok := e.(stackTracer); ok {
			trace = st.StackTrace()
		}
	}

	if len(trace) == 0 {
		return []Frame{}
	}

	pcs := make([]uintptr, len(trace))
	for i, f := range trace {
		pcs[i] = uintptr(f)
	}

	return framesOf(pcs)
}

// panicStack returns the stack of the panicking goroutine starting at the
// frame that called panic. It must be called from the deferred recover func.
func panicStack() []Frame {
	pcs := make([]uintptr, 64)
	n := runtime.Callers(0, pcs)

	frames := framesOf(pcs[:n])

	for i, f := range frames {
		if f.Function != "runtime.gopanic" {
			continue
		}

		// skip runtime frames of runtime errors, e.g. runtime.sigpanic
		rest := frames[i+1:]
		for len(rest) > 1 && strings.HasPrefix(rest[0].Function, "runtime.") {
			rest = rest[1:]
		}

		return rest
	}

	return frames
}

// faultPackage is the function name prefix of this package, e.g.
// "github.com/raphi011/testops/internal/fault.".
var faultPackage = func() string {
	pc, _, _, _ := runtime.Caller(0)
	name := runtime.FuncForPC(pc).Name()

	slash := strings.LastIndex(name, "/")

	return name[:slash+strings.Index(name[slash:], ".")+1]
}()

// callerStack returns the stack of the goroutine without the frames of the
// runtime and of the barrier itself.
func callerStack() []Frame {
	pcs := make([]uintptr, 64)
	n := runtime.Callers(1, pcs)

	frames := framesOf(pcs[:n])

	for len(frames) > 0 && (strings.HasPrefix(frames[0].Function, faultPackage) || strings.HasPrefix(frames[0].Function, "runtime.")) {
		frames = frames[1:]
	}

	return frames
}

func framesOf(pcs []uintptr) []Frame {
	result := []Frame{}

	frames := runtime.CallersFrames(pcs)
	for {
		f, more := frames.Next()

		if f.Function != "" && !strings.HasPrefix(f.Function, "runtime.goexit") {
			result = append(result, Frame{Function: f.Function, File: f.File, Line: f.Line})
		}

		if !more {
			break
		}
	}

	return result
}
