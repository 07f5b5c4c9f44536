// Package classify maps errors to result error_type tags. It is the richer
// alternative to boundary.ClassifyDefault and is installed with
// boundary.WithClassifier(classify.Tag).
package classify

import (
	"context"
	stdErrors "errors"
	"net"
	"strings"

	sdkerrors "github.com/wehubfusion/outcome/pkg/errors"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Error code constants
const (
	CodeTimeout      = "TIMEOUT_ERROR"
	CodeCanceled     = "CANCELED_ERROR"
	CodeNetwork      = "NETWORK_ERROR"
	CodeValidation   = "VALIDATION_ERROR"
	CodeNotFound     = "NOT_FOUND_ERROR"
	CodeUnauthorized = "UNAUTHORIZED_ERROR"
	CodeForbidden    = "FORBIDDEN_ERROR"
	CodeBadRequest   = "BAD_REQUEST_ERROR"
	CodeConflict     = "CONFLICT_ERROR"
	CodeInternal     = "INTERNAL_ERROR"
	CodeRateLimit    = "RATE_LIMIT_ERROR"
	CodeUnavailable  = "UNAVAILABLE_ERROR"
	CodeExecution    = "EXECUTION_ERROR"
)

var appErrorCodes = map[sdkerrors.ErrorType]string{
	sdkerrors.Internal:         CodeInternal,
	sdkerrors.NotFound:         CodeNotFound,
	sdkerrors.BadRequest:       CodeBadRequest,
	sdkerrors.Unauthorized:     CodeUnauthorized,
	sdkerrors.Conflict:         CodeConflict,
	sdkerrors.ValidationFailed: CodeValidation,
	sdkerrors.PermissionDenied: CodeForbidden,
	sdkerrors.Timeout:          CodeTimeout,
}

var grpcCodes = map[codes.Code]string{
	codes.Canceled:           CodeCanceled,
	codes.InvalidArgument:    CodeValidation,
	codes.DeadlineExceeded:   CodeTimeout,
	codes.NotFound:           CodeNotFound,
	codes.AlreadyExists:      CodeConflict,
	codes.PermissionDenied:   CodeForbidden,
	codes.ResourceExhausted:  CodeRateLimit,
	codes.FailedPrecondition: CodeBadRequest,
	codes.Aborted:            CodeConflict,
	codes.OutOfRange:         CodeValidation,
	codes.Internal:           CodeInternal,
	codes.Unavailable:        CodeUnavailable,
	codes.DataLoss:           CodeInternal,
	codes.Unauthenticated:    CodeUnauthorized,
}

// messagePatterns is checked in order; the first matching pattern wins
var messagePatterns = []struct {
	code     string
	patterns []string
}{
	{CodeTimeout, []string{"timeout", "timed out", "deadline"}},
	{CodeNetwork, []string{"network", "connection"}},
	{CodeValidation, []string{"validation", "invalid"}},
	{CodeNotFound, []string{"not found"}},
	{CodeUnauthorized, []string{"unauthorized", "authentication"}},
	{CodeForbidden, []string{"forbidden", "permission"}},
	{CodeRateLimit, []string{"rate limit", "too many requests"}},
}

// Code maps an error to a standardized UPPER_SNAKE code.
// Explicitly tagged errors are not consulted here; see Tag.
func Code(err error) string {
	if err == nil {
		return ""
	}

	var appErr *sdkerrors.AppError
	if stdErrors.As(err, &appErr) {
		if code, ok := appErrorCodes[appErr.Type]; ok {
			return code
		}
	}

	if stdErrors.Is(err, context.DeadlineExceeded) {
		return CodeTimeout
	}
	if stdErrors.Is(err, context.Canceled) {
		return CodeCanceled
	}

	var netErr net.Error
	if stdErrors.As(err, &netErr) {
		if netErr.Timeout() {
			return CodeTimeout
		}
		return CodeNetwork
	}

	if st, ok := status.FromError(err); ok && st.Code() != codes.OK && st.Code() != codes.Unknown {
		if code, found := grpcCodes[st.Code()]; found {
			return code
		}
	}

	errMsg := strings.ToLower(err.Error())
	for _, p := range messagePatterns {
		for _, pattern := range p.patterns {
			if strings.Contains(errMsg, pattern) {
				return p.code
			}
		}
	}

	return CodeExecution
}

// Tag returns the error_type for err: the tag the error chain carries if any,
// otherwise the CamelCase form of Code, e.g. "TimeoutError".
func Tag(err error) string {
	if err == nil {
		return ""
	}
	if tag := sdkerrors.Tag(err); tag != "" {
		return tag
	}
	return TagFromCode(Code(err))
}

// TagFromCode converts an UPPER_SNAKE code into a CamelCase tag
func TagFromCode(code string) string {
	caser := cases.Title(language.Und)
	var b strings.Builder
	for _, part := range strings.Split(strings.ToLower(code), "_") {
		b.WriteString(caser.String(part))
	}
	return b.String()
}

// IsRetryable determines if an error is transient and should be retried
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	switch Code(err) {
	case CodeTimeout, CodeNetwork, CodeRateLimit, CodeUnavailable:
		return true
	case CodeInternal:
		return true // Internal errors might be transient
	default:
		return false
	}
}
