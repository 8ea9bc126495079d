package model

import "fmt"

type NotFoundError struct{}

func (e NotFoundError) Error() string {
	return "not found"
}

// ResultNotFoundError is returned when a test completes that was never
// started in the current run.
type ResultNotFoundError struct {
	Key TestKey
}

func (e ResultNotFoundError) Error() string {
	return fmt.Sprintf("no result for test %s, test was not started", e.Key)
}

// Code allows diagnostics to classify the error.
func (e ResultNotFoundError) Code() int {
	return 404
}
