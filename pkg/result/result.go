// Package result defines OperationResult, the standardized outcome record for
// any fallible operation, and its JSON contract.
//
// A result is built once by Success or Error and never modified afterwards.
// Which optional fields are present is decided by the success flag: message on
// success, error and error_type on failure. Absent fields serialize as null and
// all six keys are always emitted.
package result

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"
	"time"
)

// OperationResult is the outcome of one invocation of a fallible operation
type OperationResult struct {
	success   bool
	data      any
	message   string
	err       string
	errorType string
	timestamp time.Time
}

// Success builds a successful result. data may be nil.
func Success(data any, message string) *OperationResult {
	return &OperationResult{
		success:   true,
		data:      data,
		message:   message,
		timestamp: now(),
	}
}

// Error builds a failed result carrying a description and a category tag
func Error(description, errorType string) *OperationResult {
	return &OperationResult{
		success:   false,
		err:       description,
		errorType: errorType,
		timestamp: now(),
	}
}

func now() time.Time {
	return time.Now().UTC()
}

// Succeeded reports whether the operation completed without error
func (r *OperationResult) Succeeded() bool {
	return r.success
}

// Data returns the operation output; always nil on failure
func (r *OperationResult) Data() any {
	return r.data
}

// Message returns the success annotation and whether it is present
func (r *OperationResult) Message() (string, bool) {
	return r.message, r.success
}

// ErrorMessage returns the failure description and whether it is present
func (r *OperationResult) ErrorMessage() (string, bool) {
	return r.err, !r.success
}

// ErrorType returns the failure category tag and whether it is present
func (r *OperationResult) ErrorType() (string, bool) {
	return r.errorType, !r.success
}

// Timestamp returns the UTC instant the result was constructed
func (r *OperationResult) Timestamp() time.Time {
	return r.timestamp
}

// Equal reports whether both results carry the same six fields. Data is
// compared by its JSON form, so a result equals its own decoded encoding.
func (r *OperationResult) Equal(other *OperationResult) bool {
	if r == nil || other == nil {
		return r == other
	}
	return r.success == other.success &&
		r.message == other.message &&
		r.err == other.err &&
		r.errorType == other.errorType &&
		r.timestamp.Equal(other.timestamp) &&
		sameData(r.data, other.data)
}

func sameData(a, b any) bool {
	if reflect.DeepEqual(a, b) {
		return true
	}
	na, err := normalize(a)
	if err != nil {
		return false
	}
	nb, err := normalize(b)
	if err != nil {
		return false
	}
	return reflect.DeepEqual(na, nb)
}

// normalize re-decodes v from its JSON encoding with numbers kept as json.Number
func normalize(v any) (any, error) {
	encoded, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	dec := json.NewDecoder(bytes.NewReader(encoded))
	dec.UseNumber()
	var out any
	if err := dec.Decode(&out); err != nil {
		return nil, err
	}
	return out, nil
}

// String renders a one-line summary suitable for logs
func (r *OperationResult) String() string {
	ts := r.timestamp.Format(time.RFC3339Nano)
	if r.success {
		return fmt.Sprintf("success at %s: %s (data=%v)", ts, r.message, r.data)
	}
	return fmt.Sprintf("failure at %s: [%s] %s", ts, r.errorType, r.err)
}
