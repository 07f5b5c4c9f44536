// Package script provides a unit of work backed by a JavaScript program.
//
// The program sees the invocation parameters as the global `params` and its
// completion value becomes the result data. A thrown exception fails the
// invocation; running past the configured timeout interrupts the VM and fails
// it with a timeout error.
package script

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"

	"github.com/dop251/goja"
	"github.com/wehubfusion/outcome/pkg/boundary"
	sdkerrors "github.com/wehubfusion/outcome/pkg/errors"
	"go.uber.org/zap"
)

// Script is a compiled JavaScript unit of work. It is safe for concurrent use:
// every invocation runs in its own VM.
type Script struct {
	name    string
	program *goja.Program
	config  *Config
	sandbox *Sandbox
	logger  *zap.Logger
}

// Compile parses source once. name appears in stack traces.
func Compile(name, source string, config *Config, logger *zap.Logger) (*Script, error) {
	if config == nil {
		config = DefaultConfig()
	}
	cfg := *config
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, sdkerrors.NewValidationError("invalid script configuration", "SCRIPT_CONFIG", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	program, err := goja.Compile(name, source, true)
	if err != nil {
		return nil, sdkerrors.NewValidationError(fmt.Sprintf("script %s failed to compile", name), "SCRIPT_SYNTAX", err)
	}

	return &Script{
		name:    name,
		program: program,
		config:  &cfg,
		sandbox: NewSandbox(&cfg),
		logger:  logger.With(zap.String("script", name)),
	}, nil
}

// Work returns the script as a boundary unit of work
func (s *Script) Work() boundary.Work[any] {
	return s.Run
}

// Run executes the script once with params bound to the `params` global
func (s *Script) Run(ctx context.Context, params boundary.Params) (any, error) {
	vm := goja.New()
	if s.config.MaxCallStackSize > 0 {
		vm.SetMaxCallStackSize(s.config.MaxCallStackSize)
	}
	if err := s.sandbox.Apply(vm); err != nil {
		return nil, fmt.Errorf("failed to prepare sandbox: %w", err)
	}
	if err := registerConsole(vm, s.logger); err != nil {
		return nil, fmt.Errorf("failed to register console: %w", err)
	}
	if err := vm.Set("params", cloneValue(map[string]any(params))); err != nil {
		return nil, fmt.Errorf("failed to set params: %w", err)
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, s.config.Timeout)
	defer cancel()

	var wg sync.WaitGroup
	done := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		select {
		case <-timeoutCtx.Done():
			vm.Interrupt(timeoutCtx.Err())
		case <-done:
		}
	}()

	value, err := vm.RunProgram(s.program)
	close(done)
	wg.Wait()

	if err != nil {
		return nil, s.wrapError(err)
	}
	return exportValue(value), nil
}

func (s *Script) wrapError(err error) error {
	var interrupted *goja.InterruptedError
	if errors.As(err, &interrupted) {
		if cause, ok := interrupted.Value().(error); ok && errors.Is(cause, context.Canceled) {
			return fmt.Errorf("script %s cancelled: %w", s.name, cause)
		}
		return sdkerrors.NewTimeoutError(
			fmt.Sprintf("script %s exceeded %s", s.name, s.config.Timeout), "SCRIPT_TIMEOUT", sdkerrors.ErrTimeout)
	}

	var exc *goja.Exception
	if errors.As(err, &exc) {
		msg := exc.Error()
		if v := exc.Value(); v != nil {
			msg = v.String()
		}
		return &Error{Script: s.name, Message: msg, Stack: exc.String()}
	}
	return fmt.Errorf("script %s failed: %w", s.name, err)
}

// cloneValue copies nested maps and slices so the VM never holds the
// caller's params; goja binds Go maps and slices live.
func cloneValue(v any) any {
	switch v := v.(type) {
	case boundary.Params:
		return cloneValue(map[string]any(v))
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, item := range v {
			out[k] = cloneValue(item)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = cloneValue(item)
		}
		return out
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Map:
		if rv.IsNil() {
			return v
		}
		out := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			out[fmt.Sprint(iter.Key().Interface())] = cloneValue(iter.Value().Interface())
		}
		return out
	case reflect.Slice:
		if rv.IsNil() || rv.Type().Elem().Kind() == reflect.Uint8 {
			return v
		}
		out := make([]any, rv.Len())
		for i := range out {
			out[i] = cloneValue(rv.Index(i).Interface())
		}
		return out
	}
	return v
}

func exportValue(value goja.Value) any {
	if value == nil || goja.IsUndefined(value) || goja.IsNull(value) {
		return nil
	}
	return value.Export()
}

// Error is an exception thrown by a script
type Error struct {
	Script  string
	Message string
	Stack   string
}

func (e *Error) Error() string {
	return fmt.Sprintf("script %s threw: %s", e.Script, e.Message)
}
