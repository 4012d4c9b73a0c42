package model

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScalarString(t *testing.T) {
	tests := []struct {
		name     string
		input    any
		expected string
	}{
		{name: "nil", input: nil, expected: ""},
		{name: "string", input: "alice", expected: "alice"},
		{name: "integral float", input: float64(42), expected: "42"},
		{name: "fractional float", input: 1.5, expected: "1.5"},
		{name: "large epoch", input: float64(1700000000000), expected: "1700000000000"},
		{name: "int", input: 7, expected: "7"},
		{name: "bool", input: true, expected: "true"},
		{name: "object", input: map[string]any{"a": float64(1)}, expected: `{"a":1}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ScalarString(tt.input))
		})
	}
}

func TestRecordFields(t *testing.T) {
	r := Record{"a": 1, "b": 2}
	assert.ElementsMatch(t, []string{"a", "b"}, r.Fields())
	assert.Empty(t, Record{}.Fields())
}

func TestTimestampedRecordHasContent(t *testing.T) {
	text := "hi"
	assert.True(t, TimestampedRecord{Content: &text}.HasContent())
	assert.False(t, TimestampedRecord{}.HasContent())
}

func TestFailureKindStatusCode(t *testing.T) {
	tests := []struct {
		kind     FailureKind
		expected int
	}{
		{KindNoMessagesFound, http.StatusBadRequest},
		{KindUnparsablePayload, http.StatusBadRequest},
		{KindMissingRequiredColumns, http.StatusBadRequest},
		{KindTimestampParseError, http.StatusBadRequest},
		{KindInternalFailure, http.StatusInternalServerError},
		{FailureKind("Unknown"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.kind.StatusCode())
		})
	}
}

func TestPipelineErrorMessage(t *testing.T) {
	err := &PipelineError{
		Kind:    KindMissingRequiredColumns,
		Message: "missing required columns (timestamp, sender)",
		Fields:  []string{"foo"},
	}
	assert.Equal(t, "MissingRequiredColumns: missing required columns (timestamp, sender) (found: foo)", err.Error())

	cause := errors.New("boom")
	wrapped := WrapError(KindUnparsablePayload, cause, "invalid JSON")
	assert.Equal(t, "UnparsablePayload: invalid JSON: boom", wrapped.Error())
	assert.ErrorIs(t, wrapped, cause)
}

func TestAsPipelineError(t *testing.T) {
	assert.Nil(t, AsPipelineError(nil))

	original := NewError(KindNoMessagesFound, "no messages found")
	wrapped := fmt.Errorf("analyze: %w", original)
	pe := AsPipelineError(wrapped)
	require.NotNil(t, pe)
	assert.Same(t, original, pe)
	assert.True(t, IsKind(wrapped, KindNoMessagesFound))
	assert.False(t, IsKind(wrapped, KindInternalFailure))

	plain := AsPipelineError(errors.New("disk on fire"))
	require.NotNil(t, plain)
	assert.Equal(t, KindInternalFailure, plain.Kind)
}
