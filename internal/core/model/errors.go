package model

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// FailureKind tags why a pipeline run failed.
type FailureKind string

const (
	KindNoMessagesFound        FailureKind = "NoMessagesFound"
	KindUnparsablePayload      FailureKind = "UnparsablePayload"
	KindMissingRequiredColumns FailureKind = "MissingRequiredColumns"
	KindTimestampParseError    FailureKind = "TimestampParseError"
	KindInternalFailure        FailureKind = "InternalFailure"
)

// StatusCode maps a failure kind onto an HTTP status.
func (k FailureKind) StatusCode() int {
	switch k {
	case KindNoMessagesFound, KindUnparsablePayload, KindMissingRequiredColumns, KindTimestampParseError:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// PipelineError is the tagged failure every stage returns.
type PipelineError struct {
	Kind    FailureKind
	Message string
	// Fields lists the field names observed in the payload, when relevant.
	Fields []string
	// Trace is only set for InternalFailure.
	Trace string
	Err   error
}

func (e *PipelineError) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if len(e.Fields) > 0 {
		fmt.Fprintf(&b, " (found: %s)", strings.Join(e.Fields, ", "))
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *PipelineError) Unwrap() error {
	return e.Err
}

// NewError builds a PipelineError with a formatted message.
func NewError(kind FailureKind, format string, args ...any) *PipelineError {
	return &PipelineError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// WrapError builds a PipelineError around an underlying cause.
func WrapError(kind FailureKind, err error, message string) *PipelineError {
	return &PipelineError{Kind: kind, Message: message, Err: err}
}

// AsPipelineError extracts a PipelineError from err, wrapping anything else
// as an InternalFailure.
func AsPipelineError(err error) *PipelineError {
	if err == nil {
		return nil
	}
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe
	}
	return WrapError(KindInternalFailure, err, "unexpected error")
}

// IsKind reports whether err is a PipelineError of the given kind.
func IsKind(err error, kind FailureKind) bool {
	var pe *PipelineError
	return errors.As(err, &pe) && pe.Kind == kind
}
