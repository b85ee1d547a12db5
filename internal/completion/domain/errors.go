package domain

import "errors"

var (
	// ErrInvalidMessage is returned when a queue message is malformed or
	// missing required fields. Never requeued.
	ErrInvalidMessage = errors.New("invalid completion message")

	// ErrTranscriptNotReady means the gateway has not finished the
	// transcription yet; the message goes back on the queue.
	ErrTranscriptNotReady = errors.New("transcript not ready")

	// ErrAttemptsExhausted means a message burned through its delivery
	// budget on retryable failures. Never requeued.
	ErrAttemptsExhausted = errors.New("delivery attempts exhausted")
)

// RetryableError wraps transient errors that should trigger a requeue
type RetryableError struct {
	Err error
}

func (e *RetryableError) Error() string {
	return "retryable error: " + e.Err.Error()
}

func (e *RetryableError) Unwrap() error {
	return e.Err
}

// NewRetryableError creates a new retryable error
func NewRetryableError(err error) error {
	return &RetryableError{Err: err}
}
