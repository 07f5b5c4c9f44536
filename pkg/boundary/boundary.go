// Package boundary runs a caller-supplied unit of work behind a boundary that
// never fails: input is normalized, entry and exit are logged, any error or
// panic from the work is converted into a failed result.OperationResult, and
// the finished record is handed to the configured sinks.
package boundary

import (
	"context"
	"time"

	sdkerrors "github.com/wehubfusion/outcome/pkg/errors"
	"github.com/wehubfusion/outcome/pkg/result"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const (
	// ExecutionError is the error_type assigned to failures the work did not classify itself
	ExecutionError = "ExecutionError"

	// SuccessMessage annotates every successful result unless overridden with WithSuccessMessage
	SuccessMessage = "Operação concluída com sucesso"

	// DefaultOperation names a boundary created without a name
	DefaultOperation = "operation"
)

// Params holds the optional named parameters of one invocation
type Params map[string]any

// Work is a fallible unit of work executed inside a boundary
type Work[T any] func(ctx context.Context, params Params) (T, error)

// Classifier maps a failure to the envelope's error_type
type Classifier func(err error) string

// Record is what sinks receive once an invocation has finished
type Record struct {
	Operation    string
	InvocationID string
	Params       Params
	Result       *result.OperationResult
	Duration     time.Duration
}

// Sink receives finished records, e.g. to publish or archive them.
// Sinks must be safe for concurrent use.
type Sink interface {
	Deliver(ctx context.Context, rec Record) error
}

// SinkFunc adapts a function to the Sink interface
type SinkFunc func(ctx context.Context, rec Record) error

// Deliver calls f(ctx, rec)
func (f SinkFunc) Deliver(ctx context.Context, rec Record) error {
	return f(ctx, rec)
}

// Boundary carries the capabilities injected into every invocation.
// It is immutable after New and safe for concurrent use.
type Boundary struct {
	name           string
	logger         *zap.Logger
	tracer         trace.Tracer
	classifier     Classifier
	sinks          []Sink
	successMessage string
}

// Option configures a Boundary
type Option func(*Boundary)

// WithLogger sets the logger used for entry and exit events
func WithLogger(logger *zap.Logger) Option {
	return func(b *Boundary) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// WithTracer sets the tracer used for invocation spans
func WithTracer(tracer trace.Tracer) Option {
	return func(b *Boundary) {
		if tracer != nil {
			b.tracer = tracer
		}
	}
}

// WithClassifier replaces ClassifyDefault
func WithClassifier(classifier Classifier) Option {
	return func(b *Boundary) {
		if classifier != nil {
			b.classifier = classifier
		}
	}
}

// WithSinks appends sinks that receive every finished record
func WithSinks(sinks ...Sink) Option {
	return func(b *Boundary) {
		for _, s := range sinks {
			if s != nil {
				b.sinks = append(b.sinks, s)
			}
		}
	}
}

// WithSuccessMessage overrides SuccessMessage
func WithSuccessMessage(message string) Option {
	return func(b *Boundary) {
		b.successMessage = message
	}
}

// New creates a boundary for the named operation.
// Without options it logs nowhere, uses the global otel tracer provider and
// classifies failures with ClassifyDefault.
func New(name string, opts ...Option) *Boundary {
	if name == "" {
		name = DefaultOperation
	}

	b := &Boundary{
		name:           name,
		logger:         zap.NewNop(),
		tracer:         otel.Tracer("outcome/boundary"),
		classifier:     ClassifyDefault,
		successMessage: SuccessMessage,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Name returns the operation name
func (b *Boundary) Name() string {
	return b.name
}

// Run executes the placeholder unit of work
func (b *Boundary) Run(ctx context.Context, params Params) *result.OperationResult {
	return Execute(ctx, b, params, Placeholder)
}

// ClassifyDefault tags a failure with the tag the error chain carries
// (see errors.Tagged) and falls back to ExecutionError.
func ClassifyDefault(err error) string {
	if tag := sdkerrors.Tag(err); tag != "" {
		return tag
	}
	return ExecutionError
}

// Placeholder is the default unit of work. It reports a fixed status payload.
func Placeholder(_ context.Context, _ Params) (map[string]any, error) {
	return map[string]any{
		"status":    "ok",
		"processed": true,
	}, nil
}
