package pipeline

import "errors"

type ErrorKind string

const (
	KindInvalidRequest       ErrorKind = "InvalidRequest"
	KindTranslationFailure   ErrorKind = "TranslationFailure"
	KindConfirmationMismatch ErrorKind = "ConfirmationMismatch"
	KindSessionBusy          ErrorKind = "SessionBusy"
	KindExecutionFailure     ErrorKind = "ExecutionFailure"
	KindRetryExhausted       ErrorKind = "RetryExhausted"
)

var errSessionBusy = errors.New("session is already executing a confirmation reply")

// Error is a pipeline failure reported to the caller in the response body.
type Error struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
}

func (e *Error) Error() string {
	return string(e.Kind) + ": " + e.Message
}
