package domain

import (
	"errors"
	"fmt"
)

// ErrorKind is the failure taxonomy shared by both pipelines. The
// orchestrator maps each kind to fall-back, dead-letter, or best-effort
// continue; retries belong to the adapter layer, never the engine.
type ErrorKind int

const (
	// ErrInputInvalid marks a malformed record or missing required field.
	ErrInputInvalid ErrorKind = iota
	// ErrScorerUnavailable marks a failed or timed-out text/image scorer.
	ErrScorerUnavailable
	// ErrStateUnavailable marks a state backend read/write failure.
	ErrStateUnavailable
	// ErrInternal marks an uncaught defect. Always fatal for the record.
	ErrInternal
)

func (k ErrorKind) String() string {
	switch k {
	case ErrInputInvalid:
		return "input_invalid"
	case ErrScorerUnavailable:
		return "scorer_unavailable"
	case ErrStateUnavailable:
		return "state_unavailable"
	default:
		return "internal"
	}
}

// PipelineError carries an ErrorKind alongside the underlying cause.
type PipelineError struct {
	Kind ErrorKind
	Msg  string
	Err  error
}

func (e *PipelineError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *PipelineError) Unwrap() error { return e.Err }

// NewInputInvalid builds an ErrInputInvalid error.
func NewInputInvalid(msg string) error {
	return &PipelineError{Kind: ErrInputInvalid, Msg: msg}
}

// NewScorerUnavailable wraps a scorer failure.
func NewScorerUnavailable(msg string, cause error) error {
	return &PipelineError{Kind: ErrScorerUnavailable, Msg: msg, Err: cause}
}

// NewStateUnavailable wraps a state backend failure.
func NewStateUnavailable(msg string, cause error) error {
	return &PipelineError{Kind: ErrStateUnavailable, Msg: msg, Err: cause}
}

// NewInternal wraps an unexpected defect.
func NewInternal(msg string, cause error) error {
	return &PipelineError{Kind: ErrInternal, Msg: msg, Err: cause}
}

// KindOf extracts the ErrorKind from err, defaulting to ErrInternal for
// errors that did not originate in the engine.
func KindOf(err error) ErrorKind {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return ErrInternal
}
