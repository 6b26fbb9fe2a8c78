package job

import "time"

// ErrorType classifies a job failure. UIs use Retryable to decide whether
// to offer a retry action; the polling controller stops on non-retryable
// errors.
type ErrorType string

const (
	// ErrTypeValidation means the input was bad. Non-retryable.
	ErrTypeValidation ErrorType = "VALIDATION_ERROR"
	// ErrTypeProcessing means the pipeline failed. Default; non-retryable.
	ErrTypeProcessing ErrorType = "PROCESSING_ERROR"
	// ErrTypeTimeout means a deadline was exceeded.
	ErrTypeTimeout ErrorType = "TIMEOUT_ERROR"
	// ErrTypeResource means a transient resource shortage. Retryable.
	ErrTypeResource ErrorType = "RESOURCE_ERROR"
	// ErrTypeNetwork means a connectivity failure. Retryable.
	ErrTypeNetwork ErrorType = "NETWORK_ERROR"
	// ErrTypeUnknown is the fallback classification. Retryable.
	ErrTypeUnknown ErrorType = "UNKNOWN_ERROR"
)

// Retryable reports whether failures of this type are worth retrying.
func (t ErrorType) Retryable() bool {
	switch t {
	case ErrTypeNetwork, ErrTypeResource, ErrTypeTimeout, ErrTypeUnknown:
		return true
	}
	return false
}

// Error is the structured failure record attached to a failed job.
type Error struct {
	Type      ErrorType `json:"type"`
	Message   string    `json:"message"`
	Details   string    `json:"details,omitempty"`
	Traceback string    `json:"traceback,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Retryable bool      `json:"retryable"`
}

// NewError builds an Error with Retryable derived from the type and the
// timestamp set to now.
func NewError(errType ErrorType, message, details, traceback string) *Error {
	if errType == "" {
		errType = ErrTypeUnknown
	}
	return &Error{
		Type:      errType,
		Message:   message,
		Details:   details,
		Traceback: traceback,
		Timestamp: time.Now().UTC(),
		Retryable: errType.Retryable(),
	}
}

// Error implements the error interface.
func (e *Error) Error() string {
	return string(e.Type) + ": " + e.Message
}
