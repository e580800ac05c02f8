package jobs

import (
	"errors"
	"fmt"
)

// ErrorKind classifies pipeline failures for callers.
type ErrorKind string

const (
	KindInvalidInput ErrorKind = "invalid_input"
	KindAnalysis     ErrorKind = "analysis"
	KindScrape       ErrorKind = "scrape"
	KindTimeout      ErrorKind = "timeout"
	KindInternal     ErrorKind = "internal"
)

// Error is the typed error carried across component boundaries.
type Error struct {
	Kind    ErrorKind
	Op      string
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError builds an Error of the given kind.
func NewError(kind ErrorKind, op, message string, cause error) *Error {
	return &Error{Kind: kind, Op: op, Message: message, Err: cause}
}

func InvalidInputError(op, message string) *Error {
	return NewError(KindInvalidInput, op, message, nil)
}

func AnalysisError(op, message string, cause error) *Error {
	return NewError(KindAnalysis, op, message, cause)
}

func ScrapeError(op, message string, cause error) *Error {
	return NewError(KindScrape, op, message, cause)
}

func TimeoutError(op string, cause error) *Error {
	return NewError(KindTimeout, op, "request timed out", cause)
}

// KindOf returns the kind of the first *Error in err's chain, or KindInternal.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind ErrorKind) bool {
	return err != nil && KindOf(err) == kind
}

// MessageOf returns the human-readable message of err without the wrapped causes.
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Message != "" {
		return e.Message
	}
	if err == nil {
		return ""
	}
	return "internal error"
}
