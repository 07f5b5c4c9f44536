// Package publish delivers finished operation results to a NATS subject so
// they can cross a process or network boundary.
package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/wehubfusion/outcome/pkg/boundary"
	sdkerrors "github.com/wehubfusion/outcome/pkg/errors"
	"github.com/wehubfusion/outcome/pkg/result"
	"go.uber.org/zap"
)

// Message headers set on every published result
const (
	HeaderOperation    = "Outcome-Operation"
	HeaderInvocationID = "Outcome-Invocation-Id"
	HeaderSuccess      = "Outcome-Success"
	HeaderErrorType    = "Outcome-Error-Type"
)

// Conn is the part of *nats.Conn the publisher needs
type Conn interface {
	PublishMsg(m *nats.Msg) error
}

// Config holds configuration for the result publisher
type Config struct {
	Subject       string        // Subject to publish results to (default: "result")
	MaxRetries    int           // Maximum number of retry attempts (default: 3)
	RetryDelay    time.Duration // Delay between retries (default: 1s)
	EnableLogging bool          // Enable logging of operations (default: true)
	Logger        *zap.Logger   // Logger instance (optional, no-op if nil)

	// Breaker, when set, fails publishes fast after repeated failures
	Breaker *Breaker
}

// DefaultConfig returns a default configuration
func DefaultConfig() *Config {
	return &Config{
		Subject:       "result",
		MaxRetries:    3,
		RetryDelay:    time.Second,
		EnableLogging: true,
	}
}

// Publisher publishes results to the configured subject. It implements boundary.Sink.
type Publisher struct {
	conn   Conn
	config *Config
	logger *zap.Logger
}

// NewPublisher creates a publisher over an established connection
func NewPublisher(conn Conn, config *Config) (*Publisher, error) {
	if conn == nil {
		return nil, sdkerrors.ErrNotConnected
	}
	if config == nil {
		config = DefaultConfig()
	}
	if config.Subject == "" {
		return nil, sdkerrors.NewValidationError("subject cannot be empty", "INVALID_SUBJECT", sdkerrors.ErrInvalidSubject)
	}
	if config.MaxRetries < 0 {
		return nil, sdkerrors.NewValidationError("max retries cannot be negative", "INVALID_RETRIES", nil)
	}

	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Publisher{
		conn:   conn,
		config: config,
		logger: logger,
	}, nil
}

// Deliver implements boundary.Sink
func (p *Publisher) Deliver(ctx context.Context, rec boundary.Record) error {
	return p.Publish(ctx, rec)
}

// Publish sends rec's result with retries. Returns an error if all attempts fail.
func (p *Publisher) Publish(ctx context.Context, rec boundary.Record) error {
	msg, err := NewMsg(p.config.Subject, rec)
	if err != nil {
		p.logOperation("encode", rec, err)
		return err
	}

	breaker := p.config.Breaker
	if breaker != nil && !breaker.Allow() {
		p.logOperation("publish", rec, ErrCircuitOpen)
		return ErrCircuitOpen
	}

	if err := p.publishWithRetry(ctx, msg); err != nil {
		if breaker != nil {
			breaker.RecordFailure()
		}
		p.logOperation("publish", rec, err)
		return err
	}

	if breaker != nil {
		breaker.RecordSuccess()
	}
	p.logOperation("publish", rec, nil)
	return nil
}

// NewMsg encodes rec as a NATS message on subject
func NewMsg(subject string, rec boundary.Record) (*nats.Msg, error) {
	if rec.Result == nil {
		return nil, sdkerrors.NewValidationError("record has no result", "INVALID_RECORD", sdkerrors.ErrInvalidRecord)
	}

	data, err := json.Marshal(rec.Result)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal result: %w", err)
	}

	msg := nats.NewMsg(subject)
	msg.Data = data
	msg.Header.Set(HeaderOperation, rec.Operation)
	msg.Header.Set(HeaderInvocationID, rec.InvocationID)
	msg.Header.Set(HeaderSuccess, strconv.FormatBool(rec.Result.Succeeded()))
	if errorType, ok := rec.Result.ErrorType(); ok {
		msg.Header.Set(HeaderErrorType, errorType)
	}
	return msg, nil
}

// Envelope is a result received from a subject along with its headers
type Envelope struct {
	Operation    string
	InvocationID string
	Result       *result.OperationResult
}

// DecodeMsg parses a message produced by Publish
func DecodeMsg(msg *nats.Msg) (*Envelope, error) {
	if msg == nil {
		return nil, sdkerrors.NewValidationError("message cannot be nil", "INVALID_MESSAGE", nil)
	}

	var res result.OperationResult
	if err := json.Unmarshal(msg.Data, &res); err != nil {
		return nil, fmt.Errorf("failed to decode result: %w", err)
	}

	env := &Envelope{Result: &res}
	if msg.Header != nil {
		env.Operation = msg.Header.Get(HeaderOperation)
		env.InvocationID = msg.Header.Get(HeaderInvocationID)
	}
	return env, nil
}

// publishWithRetry attempts to publish a message with retry logic
func (p *Publisher) publishWithRetry(ctx context.Context, msg *nats.Msg) error {
	var lastErr error

	for attempt := 0; attempt <= p.config.MaxRetries; attempt++ {
		if attempt > 0 {
			if p.config.EnableLogging {
				p.logger.Info("Retrying publish",
					zap.Int("attempt", attempt),
					zap.Int("max_attempts", p.config.MaxRetries+1),
					zap.String("subject", msg.Subject),
					zap.Duration("retry_delay", p.config.RetryDelay),
				)
			}
			select {
			case <-ctx.Done():
				return fmt.Errorf("publish cancelled during retry: %w", ctx.Err())
			case <-time.After(p.config.RetryDelay):
			}
		}

		err := p.conn.PublishMsg(msg)
		if err == nil {
			return nil
		}

		lastErr = err
		if p.config.EnableLogging {
			p.logger.Warn("Publish attempt failed",
				zap.Int("attempt", attempt+1),
				zap.Int("max_attempts", p.config.MaxRetries+1),
				zap.String("subject", msg.Subject),
				zap.Error(err),
			)
		}
	}

	return fmt.Errorf("%w after %d attempts: %w", sdkerrors.ErrPublishFailed, p.config.MaxRetries+1, lastErr)
}

// logOperation logs the operation if logging is enabled
func (p *Publisher) logOperation(operation string, rec boundary.Record, err error) {
	if !p.config.EnableLogging {
		return
	}

	fields := []zap.Field{
		zap.String("operation", rec.Operation),
		zap.String("invocation_id", rec.InvocationID),
		zap.String("subject", p.config.Subject),
	}

	if err != nil {
		fields = append(fields, zap.Error(err))
		p.logger.Error(fmt.Sprintf("Failed to %s result", operation), fields...)
		return
	}
	p.logger.Debug(fmt.Sprintf("Successfully %sed result", operation), fields...)
}
