package model

import "fmt"

// Status is the outcome of a test as understood by the backends.
type Status string

const (
	StatusPassed  Status = "passed"
	StatusFailed  Status = "failed"
	StatusInvalid Status = "invalid"
	StatusSkipped Status = "skipped"
	StatusBlocked Status = "blocked"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPassed, StatusFailed, StatusInvalid, StatusSkipped, StatusBlocked:
		return true
	}

	return false
}

// EventKind enumerates the status events a host framework reports for a test.
type EventKind int

const (
	EventFailed EventKind = iota
	EventErrored
	EventMarkedIncomplete
	EventSkipped
	EventWarningTriggered
	EventConsideredRisky
	EventPassed
)

func (k EventKind) String() string {
	switch k {
	case EventFailed:
		return "failed"
	case EventErrored:
		return "errored"
	case EventMarkedIncomplete:
		return "marked-incomplete"
	case EventSkipped:
		return "skipped"
	case EventWarningTriggered:
		return "warning-triggered"
	case EventConsideredRisky:
		return "considered-risky"
	case EventPassed:
		return "passed"
	default:
		return fmt.Sprintf("unknown(%d)", int(k))
	}
}

// Status returns the fixed status an event kind is recorded as.
func (k EventKind) Status() Status {
	switch k {
	case EventFailed:
		return StatusFailed
	case EventErrored:
		return StatusInvalid
	case EventMarkedIncomplete, EventSkipped:
		return StatusSkipped
	case EventWarningTriggered, EventConsideredRisky, EventPassed:
		return StatusPassed
	default:
		panic(fmt.Sprintf("unknown event kind %d", int(k)))
	}
}
