package errors

import (
	"errors"
	"fmt"
)

var (
	// ErrNilWork indicates that a boundary was asked to execute a nil unit of work
	ErrNilWork = errors.New("work cannot be nil")

	// ErrInvalidRecord indicates that a serialized result record breaks the envelope invariants
	ErrInvalidRecord = errors.New("invalid result record")

	// ErrNotConnected indicates that the client is not connected to NATS
	ErrNotConnected = errors.New("not connected to NATS")

	// ErrInvalidSubject indicates that the provided subject is invalid
	ErrInvalidSubject = errors.New("invalid subject")

	// ErrPublishFailed indicates that a result could not be published
	ErrPublishFailed = errors.New("publish failed")

	// ErrTimeout indicates that an operation timed out
	ErrTimeout = errors.New("operation timed out")
)

// ErrorType is the coarse kind of an AppError
type ErrorType int

const (
	Internal ErrorType = iota
	NotFound
	BadRequest
	Unauthorized
	Conflict
	ValidationFailed
	PermissionDenied
	Timeout
)

var typeTags = map[ErrorType]string{
	Internal:         "InternalError",
	NotFound:         "NotFoundError",
	BadRequest:       "BadRequestError",
	Unauthorized:     "UnauthorizedError",
	Conflict:         "ConflictError",
	ValidationFailed: "ValidationError",
	PermissionDenied: "PermissionError",
	Timeout:          "TimeoutError",
}

// String returns the result tag for the type, e.g. "ValidationError"
func (t ErrorType) String() string {
	if tag, ok := typeTags[t]; ok {
		return tag
	}
	return fmt.Sprintf("ErrorType(%d)", int(t))
}

// Tagged is implemented by errors that carry their own result classification.
// The operation boundary uses the tag as the envelope's error_type.
type Tagged interface {
	error
	ErrorType() string
}

// Tag returns the first non-empty tag found in err's tree, or "" if none.
// The tree is searched in the same depth-first order as errors.As, including
// errors that wrap several causes.
func Tag(err error) string {
	if err == nil {
		return ""
	}
	if t, ok := err.(Tagged); ok {
		if tag := t.ErrorType(); tag != "" {
			return tag
		}
	}

	switch x := err.(type) {
	case interface{ Unwrap() error }:
		return Tag(x.Unwrap())
	case interface{ Unwrap() []error }:
		for _, cause := range x.Unwrap() {
			if tag := Tag(cause); tag != "" {
				return tag
			}
		}
	}
	return ""
}

// AppError represents a structured application error
type AppError struct {
	// Type is the coarse kind of failure
	Type ErrorType

	// Message is a human-readable error message
	Message string

	// Code is a machine-readable error code
	Code string

	// Err is the underlying error, if any
	Err error
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.Err
}

// ErrorType implements Tagged
func (e *AppError) ErrorType() string {
	return e.Type.String()
}

// NewError creates a new AppError of the given type
func NewError(typ ErrorType, message, code string, err error) *AppError {
	return &AppError{
		Type:    typ,
		Message: message,
		Code:    code,
		Err:     err,
	}
}

func NewInternalError(message, code string, err error) *AppError {
	return NewError(Internal, message, code, err)
}

func NewNotFoundError(message, code string, err error) *AppError {
	return NewError(NotFound, message, code, err)
}

func NewBadRequestError(message, code string, err error) *AppError {
	return NewError(BadRequest, message, code, err)
}

func NewUnauthorizedError(message, code string, err error) *AppError {
	return NewError(Unauthorized, message, code, err)
}

func NewConflictError(message, code string, err error) *AppError {
	return NewError(Conflict, message, code, err)
}

func NewValidationError(message, code string, err error) *AppError {
	return NewError(ValidationFailed, message, code, err)
}

func NewTimeoutError(message, code string, err error) *AppError {
	return NewError(Timeout, message, code, err)
}

// IsTimeout checks if an error is a timeout error
func IsTimeout(err error) bool {
	if errors.Is(err, ErrTimeout) {
		return true
	}
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Type == Timeout
}

// IsNotConnected checks if an error is a not connected error
func IsNotConnected(err error) bool {
	return errors.Is(err, ErrNotConnected)
}

// IsValidation checks if an error is a validation AppError
func IsValidation(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Type == ValidationFailed
}
