package domain

import (
	"errors"
	"fmt"
)

// Kind classifies a failure so callers can decide between recovering and
// aborting without inspecting error strings.
type Kind string

const (
	KindSetup         Kind = "setup_error"
	KindAuthExpired   Kind = "auth_expired"
	KindTransient     Kind = "transient_fetch_error"
	KindConnector     Kind = "connector_failure"
	KindSummarization Kind = "summarization_error"
	KindWrite         Kind = "write_error"
)

var (
	ErrSetupRequired = errors.New("setup required")
	ErrAuthExpired   = errors.New("credential refresh failed")
)

// Error carries a Kind plus the source and operation that produced it.
type Error struct {
	Err    error
	Kind   Kind
	Source string // connector source name, empty for run-level failures
	Op     string
}

func (e *Error) Error() string {
	switch {
	case e.Source != "" && e.Op != "":
		return fmt.Sprintf("%s: %s: %v", e.Source, e.Op, e.Err)
	case e.Source != "":
		return fmt.Sprintf("%s: %v", e.Source, e.Err)
	case e.Op != "":
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	default:
		return e.Err.Error()
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(kind Kind, source, op string, err error) *Error {
	if err == nil {
		err = errors.New(string(kind))
	}
	return &Error{Err: err, Kind: kind, Source: source, Op: op}
}

func NewSetupError(source string, err error) *Error {
	return newError(KindSetup, source, "setup", err)
}

func NewAuthExpiredError(source string, err error) *Error {
	return newError(KindAuthExpired, source, "refresh", err)
}

func NewTransientError(source, op string, err error) *Error {
	return newError(KindTransient, source, op, err)
}

func NewConnectorFailure(source, op string, err error) *Error {
	return newError(KindConnector, source, op, err)
}

func NewSummarizationError(err error) *Error {
	return newError(KindSummarization, "", "summarize", err)
}

func NewWriteError(op string, err error) *Error {
	return newError(KindWrite, "", op, err)
}

// KindOf returns the Kind of the outermost *Error in err's chain, or "" when
// err carries none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsFatal reports whether err must halt a run. Everything upstream of the
// summarizer degrades to partial data instead.
func IsFatal(err error) bool {
	switch KindOf(err) {
	case KindSummarization, KindWrite:
		return true
	default:
		return false
	}
}
