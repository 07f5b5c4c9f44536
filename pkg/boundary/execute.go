package boundary

import (
	"context"
	"fmt"
	"reflect"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	sdkerrors "github.com/wehubfusion/outcome/pkg/errors"
	"github.com/wehubfusion/outcome/pkg/result"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Execute runs work inside b and returns exactly one result. It never panics
// and never returns nil: failures of the work, including panics, become a
// failed result. A nil boundary behaves like New(DefaultOperation).
func Execute[T any](ctx context.Context, b *Boundary, params Params, work Work[T]) *result.OperationResult {
	if b == nil {
		b = New(DefaultOperation)
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if params == nil {
		params = Params{}
	}

	invocationID := uuid.NewString()
	logger := b.logger.With(
		zap.String("operation", b.name),
		zap.String("invocation_id", invocationID))

	logger.Info("Starting execution", zap.Any("params", params))

	ctx, span := b.tracer.Start(ctx, "boundary.Execute",
		trace.WithAttributes(
			attribute.String("outcome.operation", b.name),
			attribute.String("outcome.invocation_id", invocationID),
			attribute.Int("outcome.param_count", len(params)),
		))
	defer span.End()

	start := time.Now()
	value, stack, err := invoke(ctx, params, work)
	duration := time.Since(start)

	var res *result.OperationResult
	if err != nil {
		errorType := b.classify(err, logger)
		res = result.Error(err.Error(), errorType)

		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		span.SetAttributes(
			attribute.Bool("outcome.success", false),
			attribute.String("outcome.error_type", errorType))

		fields := []zap.Field{
			zap.Bool("success", false),
			zap.String("error_type", errorType),
			zap.Error(err),
			zap.Duration("duration", duration),
			zap.Stringer("result", res),
		}
		if stack != nil {
			fields = append(fields, zap.ByteString("stack", stack))
		}
		logger.Error("Execution finished", fields...)
	} else {
		res = result.Success(dataOf(value), b.successMessage)

		span.SetStatus(codes.Ok, "")
		span.SetAttributes(attribute.Bool("outcome.success", true))

		logger.Info("Execution finished",
			zap.Bool("success", true),
			zap.Duration("duration", duration),
			zap.Stringer("result", res))
	}

	b.deliver(ctx, Record{
		Operation:    b.name,
		InvocationID: invocationID,
		Params:       params,
		Result:       res,
		Duration:     duration,
	}, logger)

	return res
}

// invoke runs work and turns a panic into an error. stack is set only when
// the work panicked.
func invoke[T any](ctx context.Context, params Params, work Work[T]) (value T, stack []byte, err error) {
	if work == nil {
		return value, nil, sdkerrors.ErrNilWork
	}

	defer func() {
		if r := recover(); r != nil {
			var zero T
			value = zero
			stack = debug.Stack()
			if e, ok := r.(error); ok {
				err = fmt.Errorf("panic: %w", e)
			} else {
				err = fmt.Errorf("panic: %v", r)
			}
		}
	}()

	value, err = work(ctx, params)
	return value, nil, err
}

// classify runs the configured classifier; a classifier that panics or
// returns an empty tag yields ExecutionError.
func (b *Boundary) classify(err error, logger *zap.Logger) (tag string) {
	defer func() {
		if r := recover(); r != nil {
			logger.Warn("Classifier panicked, using default error type", zap.Any("panic", r))
			tag = ExecutionError
		}
	}()

	if tag = b.classifier(err); tag == "" {
		tag = ExecutionError
	}
	return tag
}

// deliver hands rec to every sink. Sink failures are logged and never
// change the result.
func (b *Boundary) deliver(ctx context.Context, rec Record, logger *zap.Logger) {
	for i, sink := range b.sinks {
		if err := safeDeliver(ctx, sink, rec); err != nil {
			logger.Warn("Sink delivery failed",
				zap.Int("sink", i),
				zap.String("sink_type", fmt.Sprintf("%T", sink)),
				zap.Error(err))
		}
	}
}

func safeDeliver(ctx context.Context, sink Sink, rec Record) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("sink panicked: %v", r)
		}
	}()
	return sink.Deliver(ctx, rec)
}

// dataOf drops typed nils so a work returning e.g. a nil map yields null data
func dataOf(value any) any {
	if value == nil {
		return nil
	}
	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Interface, reflect.Func, reflect.Chan:
		if rv.IsNil() {
			return nil
		}
	}
	return value
}
