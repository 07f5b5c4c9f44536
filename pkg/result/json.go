package result

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	sdkerrors "github.com/wehubfusion/outcome/pkg/errors"
)

// record is the wire shape of an OperationResult
type record struct {
	Success   *bool           `json:"success"`
	Data      json.RawMessage `json:"data"`
	Message   *string         `json:"message"`
	Error     *string         `json:"error"`
	ErrorType *string         `json:"error_type"`
	Timestamp *time.Time      `json:"timestamp"`
}

var jsonNull = []byte("null")

// MarshalJSON emits exactly the six envelope keys
func (r OperationResult) MarshalJSON() ([]byte, error) {
	data := jsonNull
	if r.success && r.data != nil {
		encoded, err := json.Marshal(r.data)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal result data: %w", err)
		}
		data = encoded
	}

	success := r.success
	ts := r.timestamp.UTC()
	rec := record{
		Success:   &success,
		Data:      data,
		Timestamp: &ts,
	}
	if r.success {
		rec.Message = &r.message
	} else {
		rec.Error = &r.err
		rec.ErrorType = &r.errorType
	}

	return json.Marshal(rec)
}

// UnmarshalJSON decodes an envelope and rejects records that break its invariants
func (r *OperationResult) UnmarshalJSON(b []byte) error {
	var rec record
	if err := json.Unmarshal(b, &rec); err != nil {
		return sdkerrors.NewValidationError("result record is not valid JSON", "INVALID_JSON", err)
	}

	if err := rec.validate(); err != nil {
		return err
	}

	var data any
	if hasValue(rec.Data) {
		if err := json.Unmarshal(rec.Data, &data); err != nil {
			return sdkerrors.NewValidationError("result data is not valid JSON", "INVALID_DATA", err)
		}
	}

	decoded := OperationResult{
		success:   *rec.Success,
		data:      data,
		timestamp: rec.Timestamp.UTC(),
	}
	if decoded.success {
		decoded.message = *rec.Message
	} else {
		decoded.err = *rec.Error
		decoded.errorType = *rec.ErrorType
	}

	*r = decoded
	return nil
}

func (rec *record) validate() error {
	switch {
	case rec.Success == nil:
		return invalid("MISSING_SUCCESS", "success is required")
	case rec.Timestamp == nil:
		return invalid("MISSING_TIMESTAMP", "timestamp is required")
	}

	if *rec.Success {
		if rec.Message == nil {
			return invalid("MISSING_MESSAGE", "successful result requires message")
		}
		if rec.Error != nil || rec.ErrorType != nil {
			return invalid("UNEXPECTED_ERROR", "successful result cannot carry error or error_type")
		}
		return nil
	}

	if rec.Error == nil || rec.ErrorType == nil {
		return invalid("MISSING_ERROR", "failed result requires error and error_type")
	}
	if rec.Message != nil || hasValue(rec.Data) {
		return invalid("UNEXPECTED_PAYLOAD", "failed result cannot carry data or message")
	}
	return nil
}

// Validate checks the envelope invariants on an already built result
func (r *OperationResult) Validate() error {
	if r == nil {
		return invalid("NIL_RESULT", "result is nil")
	}
	if r.timestamp.IsZero() {
		return invalid("MISSING_TIMESTAMP", "timestamp is required")
	}
	if !r.success && r.data != nil {
		return invalid("UNEXPECTED_PAYLOAD", "failed result cannot carry data")
	}
	return nil
}

func invalid(code, message string) error {
	return sdkerrors.NewValidationError(message, code, sdkerrors.ErrInvalidRecord)
}

func hasValue(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && !bytes.Equal(trimmed, jsonNull)
}
