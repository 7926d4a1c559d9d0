package mineru

import (
	"fmt"
	"strings"
	"time"
)

// SubmissionError indicates slot allocation or file transfer failed.
// It is fatal for the whole batch; a partially transferred batch is
// never polled.
type SubmissionError struct {
	Err error
}

func (e *SubmissionError) Error() string {
	return fmt.Sprintf("batch submission failed: %v", e.Err)
}

func (e *SubmissionError) Unwrap() error {
	return e.Err
}

// PollTimeoutError indicates not every file in the batch reached a
// terminal state within the polling budget. Pending lists the files
// still without a terminal state.
type PollTimeoutError struct {
	BatchID string
	Waited  time.Duration
	Pending []string
	Err     error
}

func (e *PollTimeoutError) Error() string {
	msg := fmt.Sprintf("batch %s did not reach a terminal state within %s", e.BatchID, e.Waited)
	if len(e.Pending) > 0 {
		msg += " (pending: " + strings.Join(e.Pending, ", ") + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *PollTimeoutError) Unwrap() error {
	return e.Err
}

// FetchError indicates the result archive for a done file could not be
// downloaded. It is local to that file; retrying is the caller's call.
type FetchError struct {
	FileName string
	Err      error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetching result archive for %s: %v", e.FileName, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}
