// Package report sends failed operation results to Sentry. Successful results
// are ignored.
package report

import (
	"context"
	"fmt"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/wehubfusion/outcome/pkg/boundary"
	sdkerrors "github.com/wehubfusion/outcome/pkg/errors"
	"go.uber.org/zap"
)

// Tags set on every reported event
const (
	TagOperation    = "operation"
	TagErrorType    = "error_type"
	TagInvocationID = "invocation_id"
)

// Config holds configuration for a Sentry reporter
type Config struct {
	DSN          string        // Sentry DSN; empty sends nothing
	Environment  string        // Environment tag (default: "development")
	Release      string        // Release tag (optional)
	FlushTimeout time.Duration // Maximum wait in Close (default: 2s)
	Logger       *zap.Logger   // Logger instance (optional, no-op if nil)

	// BeforeSend is passed through to the Sentry client
	BeforeSend func(event *sentry.Event, hint *sentry.EventHint) *sentry.Event
}

// Reporter captures one Sentry event per failed result. It implements boundary.Sink.
type Reporter struct {
	hub          *sentry.Hub
	flushTimeout time.Duration
	logger       *zap.Logger
}

// New creates a reporter with its own Sentry client
func New(config Config) (*Reporter, error) {
	if config.Environment == "" {
		config.Environment = "development"
	}
	if config.FlushTimeout <= 0 {
		config.FlushTimeout = 2 * time.Second
	}

	client, err := sentry.NewClient(sentry.ClientOptions{
		Dsn:         config.DSN,
		Environment: config.Environment,
		Release:     config.Release,
		BeforeSend:  config.BeforeSend,
	})
	if err != nil {
		return nil, sdkerrors.NewValidationError("invalid sentry configuration", "SENTRY_CONFIG", err)
	}

	return NewWithHub(sentry.NewHub(client, sentry.NewScope()), config.FlushTimeout, config.Logger), nil
}

// NewWithHub creates a reporter over an existing hub
func NewWithHub(hub *sentry.Hub, flushTimeout time.Duration, logger *zap.Logger) *Reporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reporter{
		hub:          hub,
		flushTimeout: flushTimeout,
		logger:       logger,
	}
}

// Deliver implements boundary.Sink
func (r *Reporter) Deliver(_ context.Context, rec boundary.Record) error {
	if rec.Result == nil {
		return sdkerrors.NewValidationError("record has no result", "INVALID_RECORD", sdkerrors.ErrInvalidRecord)
	}
	if rec.Result.Succeeded() {
		return nil
	}

	description, _ := rec.Result.ErrorMessage()
	errorType, _ := rec.Result.ErrorType()

	event := sentry.NewEvent()
	event.Level = sentry.LevelError
	event.Message = description
	event.Timestamp = rec.Result.Timestamp()
	event.Exception = []sentry.Exception{{Type: errorType, Value: description}}

	hub := r.hub.Clone()
	hub.ConfigureScope(func(scope *sentry.Scope) {
		scope.SetTag(TagOperation, rec.Operation)
		scope.SetTag(TagErrorType, errorType)
		scope.SetTag(TagInvocationID, rec.InvocationID)
		scope.SetContext("invocation", sentry.Context{
			"duration_ms": rec.Duration.Milliseconds(),
			"param_count": len(rec.Params),
		})
	})

	eventID := hub.CaptureEvent(event)
	if eventID == nil {
		r.logger.Debug("Sentry event dropped",
			zap.String("operation", rec.Operation),
			zap.String("invocation_id", rec.InvocationID))
		return nil
	}

	r.logger.Debug("Reported failure to Sentry",
		zap.String("operation", rec.Operation),
		zap.String("invocation_id", rec.InvocationID),
		zap.String("event_id", string(*eventID)))
	return nil
}

// Close flushes buffered events
func (r *Reporter) Close() error {
	if !r.hub.Flush(r.flushTimeout) {
		return fmt.Errorf("%w: sentry flush did not complete within %s", sdkerrors.ErrTimeout, r.flushTimeout)
	}
	return nil
}
