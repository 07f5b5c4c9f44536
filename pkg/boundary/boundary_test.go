package boundary

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	sdkerrors "github.com/wehubfusion/outcome/pkg/errors"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestRunPlaceholder(t *testing.T) {
	b := New("ProcessarDados")
	res := b.Run(context.Background(), nil)

	if !res.Succeeded() {
		t.Fatalf("Expected success, got %s", res)
	}
	if msg, _ := res.Message(); msg != "Operação concluída com sucesso" {
		t.Errorf("Unexpected message %q", msg)
	}
	want := map[string]any{"status": "ok", "processed": true}
	if !reflect.DeepEqual(res.Data(), want) {
		t.Errorf("Expected data %v, got %v", want, res.Data())
	}
}

func TestNilParamsEqualsEmptyParams(t *testing.T) {
	var seen []Params
	var mu sync.Mutex
	work := func(_ context.Context, params Params) (int, error) {
		mu.Lock()
		seen = append(seen, params)
		mu.Unlock()
		return len(params), nil
	}

	b := New("params")
	fromNil := Execute(context.Background(), b, nil, work)
	fromEmpty := Execute(context.Background(), b, Params{}, work)

	if fromNil.Succeeded() != fromEmpty.Succeeded() {
		t.Error("success differs between nil and empty params")
	}
	if !reflect.DeepEqual(fromNil.Data(), fromEmpty.Data()) {
		t.Errorf("data differs: %v vs %v", fromNil.Data(), fromEmpty.Data())
	}
	for i, p := range seen {
		if p == nil {
			t.Errorf("invocation %d received nil params", i)
		}
	}
}

func TestFailureBecomesResult(t *testing.T) {
	work := func(context.Context, Params) (string, error) {
		return "ignored", errors.New("connection refused by upstream")
	}

	res := Execute(context.Background(), New("failing"), nil, work)

	if res.Succeeded() {
		t.Fatal("Expected failure")
	}
	if desc, _ := res.ErrorMessage(); desc != "connection refused by upstream" {
		t.Errorf("Unexpected error %q", desc)
	}
	if typ, _ := res.ErrorType(); typ != ExecutionError {
		t.Errorf("Expected %s, got %s", ExecutionError, typ)
	}
	if res.Data() != nil {
		t.Errorf("data must be absent on failure, got %v", res.Data())
	}
}

func TestPanicBecomesResult(t *testing.T) {
	tests := []struct {
		name  string
		panic any
		want  string
	}{
		{"string", "boom", "panic: boom"},
		{"error", errors.New("bad state"), "panic: bad state"},
		{"runtime", nil, "panic: runtime error: index out of range [3] with length 0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			work := func(context.Context, Params) (any, error) {
				if tt.panic == nil {
					var empty []int
					_ = empty[3]
				}
				panic(tt.panic)
			}

			var res = Execute(context.Background(), New("panics"), Params{"k": 1}, work)
			if res.Succeeded() {
				t.Fatal("Expected failure")
			}
			if desc, _ := res.ErrorMessage(); desc != tt.want {
				t.Errorf("Expected %q, got %q", tt.want, desc)
			}
			if typ, _ := res.ErrorType(); typ != ExecutionError {
				t.Errorf("Expected %s, got %s", ExecutionError, typ)
			}
		})
	}
}

func TestNilWork(t *testing.T) {
	res := Execute[int](context.Background(), New("nil"), nil, nil)
	if res.Succeeded() {
		t.Fatal("Expected failure")
	}
	if desc, _ := res.ErrorMessage(); desc != sdkerrors.ErrNilWork.Error() {
		t.Errorf("Unexpected error %q", desc)
	}
}

func TestNilBoundaryAndContext(t *testing.T) {
	res := Execute(nil, nil, nil, Placeholder)
	if !res.Succeeded() {
		t.Fatalf("Expected success, got %s", res)
	}
}

func TestTaggedErrorKeepsTag(t *testing.T) {
	work := func(context.Context, Params) (any, error) {
		return nil, fmt.Errorf("loading: %w", sdkerrors.NewNotFoundError("order 42 not found", "ORDER_NOT_FOUND", nil))
	}

	res := Execute(context.Background(), New("tagged"), nil, work)
	if typ, _ := res.ErrorType(); typ != "NotFoundError" {
		t.Errorf("Expected NotFoundError, got %s", typ)
	}
}

func TestJoinedErrorKeepsTag(t *testing.T) {
	appErr := sdkerrors.NewValidationError("missing id", "MISSING_ID", nil)
	errs := []error{
		errors.Join(errors.New("first"), appErr),
		fmt.Errorf("%w: %w", context.DeadlineExceeded, appErr),
	}

	for _, e := range errs {
		work := func(context.Context, Params) (any, error) { return nil, e }
		res := Execute(context.Background(), New("joined"), nil, work)
		if typ, _ := res.ErrorType(); typ != "ValidationError" {
			t.Errorf("Expected ValidationError for %q, got %s", e, typ)
		}
	}
}

func TestCustomClassifier(t *testing.T) {
	work := func(context.Context, Params) (any, error) {
		return nil, context.DeadlineExceeded
	}

	tests := []struct {
		name       string
		classifier Classifier
		want       string
	}{
		{"custom", func(error) string { return "TimeoutError" }, "TimeoutError"},
		{"empty falls back", func(error) string { return "" }, ExecutionError},
		{"panicking falls back", func(error) string { panic("nope") }, ExecutionError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Execute(context.Background(), New("classified", WithClassifier(tt.classifier)), nil, work)
			if typ, _ := res.ErrorType(); typ != tt.want {
				t.Errorf("Expected %s, got %s", tt.want, typ)
			}
		})
	}
}

func TestTypedNilDataIsAbsent(t *testing.T) {
	work := func(context.Context, Params) (map[string]any, error) {
		return nil, nil
	}
	res := Execute(context.Background(), New("nil-data"), nil, work)
	if !res.Succeeded() {
		t.Fatal("Expected success")
	}
	if res.Data() != nil {
		t.Errorf("Expected nil data, got %#v", res.Data())
	}
}

func TestSuccessMessageOverride(t *testing.T) {
	res := New("custom", WithSuccessMessage("done")).Run(context.Background(), nil)
	if msg, _ := res.Message(); msg != "done" {
		t.Errorf("Expected 'done', got %q", msg)
	}
}

func TestEntryAndExitLogged(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	b := New("logged", WithLogger(zap.New(core)))

	b.Run(context.Background(), Params{"user": "ana"})

	entries := logs.All()
	if len(entries) != 2 {
		t.Fatalf("Expected 2 log entries, got %d", len(entries))
	}
	if entries[0].Message != "Starting execution" {
		t.Errorf("Unexpected entry message %q", entries[0].Message)
	}
	if entries[1].Message != "Execution finished" {
		t.Errorf("Unexpected exit message %q", entries[1].Message)
	}

	entryFields := entries[0].ContextMap()
	exitFields := entries[1].ContextMap()
	if entryFields["operation"] != "logged" {
		t.Errorf("Expected operation field, got %v", entryFields["operation"])
	}
	if entryFields["invocation_id"] == "" || entryFields["invocation_id"] != exitFields["invocation_id"] {
		t.Errorf("invocation_id should be set and shared: %v / %v", entryFields["invocation_id"], exitFields["invocation_id"])
	}
	if exitFields["success"] != true {
		t.Errorf("Expected success=true on exit, got %v", exitFields["success"])
	}
}

func TestPanicStackLogged(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	work := func(context.Context, Params) (any, error) { panic("boom") }

	res := Execute(context.Background(), New("panics", WithLogger(zap.New(core))), nil, work)
	if desc, _ := res.ErrorMessage(); desc != "panic: boom" {
		t.Errorf("Stack must not reach the envelope, got %q", desc)
	}

	exits := logs.FilterMessage("Execution finished").All()
	if len(exits) != 1 {
		t.Fatalf("Expected 1 exit entry, got %d", len(exits))
	}
	stack, _ := exits[0].ContextMap()["stack"].(string)
	if !strings.Contains(stack, "TestPanicStackLogged") {
		t.Errorf("Expected panic stack in log, got %q", stack)
	}
}

func TestFailureLoggedAtErrorLevel(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	work := func(context.Context, Params) (any, error) { return nil, errors.New("nope") }

	Execute(context.Background(), New("logged", WithLogger(zap.New(core))), nil, work)

	exits := logs.FilterMessage("Execution finished").All()
	if len(exits) != 1 {
		t.Fatalf("Expected 1 exit entry, got %d", len(exits))
	}
	if exits[0].Level != zapcore.ErrorLevel {
		t.Errorf("Expected error level, got %v", exits[0].Level)
	}
	if exits[0].ContextMap()["error_type"] != ExecutionError {
		t.Errorf("Expected error_type field, got %v", exits[0].ContextMap()["error_type"])
	}
}

func TestSpanRecorded(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	defer func() { _ = provider.Shutdown(context.Background()) }()

	b := New("traced", WithTracer(provider.Tracer("test")))
	b.Run(context.Background(), nil)
	Execute(context.Background(), b, nil, func(context.Context, Params) (any, error) {
		return nil, errors.New("broken")
	})

	spans := recorder.Ended()
	if len(spans) != 2 {
		t.Fatalf("Expected 2 spans, got %d", len(spans))
	}
	if spans[0].Name() != "boundary.Execute" {
		t.Errorf("Unexpected span name %s", spans[0].Name())
	}
	if spans[0].Status().Code != codes.Ok {
		t.Errorf("Expected Ok status, got %v", spans[0].Status().Code)
	}
	if spans[1].Status().Code != codes.Error {
		t.Errorf("Expected Error status, got %v", spans[1].Status().Code)
	}

	attrs := map[string]string{}
	for _, kv := range spans[1].Attributes() {
		attrs[string(kv.Key)] = kv.Value.Emit()
	}
	if attrs["outcome.error_type"] != ExecutionError {
		t.Errorf("Expected error_type attribute, got %v", attrs)
	}
	if attrs["outcome.operation"] != "traced" {
		t.Errorf("Expected operation attribute, got %v", attrs)
	}
}

type recordingSink struct {
	mu      sync.Mutex
	records []Record
}

func (s *recordingSink) Deliver(_ context.Context, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, rec)
	return nil
}

func TestSinksReceiveRecord(t *testing.T) {
	sink := &recordingSink{}
	b := New("sinks", WithSinks(sink))

	res := b.Run(context.Background(), Params{"a": 1})

	if len(sink.records) != 1 {
		t.Fatalf("Expected 1 record, got %d", len(sink.records))
	}
	rec := sink.records[0]
	if rec.Result != res {
		t.Error("sink should receive the returned result")
	}
	if rec.Operation != "sinks" || rec.InvocationID == "" {
		t.Errorf("Unexpected record metadata %+v", rec)
	}
	if rec.Params["a"] != 1 {
		t.Errorf("Expected params in record, got %v", rec.Params)
	}
}

func TestFailingSinkDoesNotChangeResult(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	failing := SinkFunc(func(context.Context, Record) error { return errors.New("broker down") })
	panicking := SinkFunc(func(context.Context, Record) error { panic("sink bug") })
	after := &recordingSink{}

	b := New("sinks", WithLogger(zap.New(core)), WithSinks(failing, panicking, nil, after))
	res := b.Run(context.Background(), nil)

	if !res.Succeeded() {
		t.Fatalf("Expected success despite sink failures, got %s", res)
	}
	if len(after.records) != 1 {
		t.Error("later sinks should still be called")
	}
	if n := logs.FilterMessage("Sink delivery failed").Len(); n != 2 {
		t.Errorf("Expected 2 sink warnings, got %d", n)
	}
}

func TestConcurrentExecute(t *testing.T) {
	b := New("concurrent", WithSinks(&recordingSink{}))
	work := func(_ context.Context, p Params) (any, error) {
		if p["i"].(int)%2 == 0 {
			return nil, errors.New("even")
		}
		return p["i"], nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res := Execute(context.Background(), b, Params{"i": i}, work)
			if res.Succeeded() == (i%2 == 0) {
				t.Errorf("invocation %d: unexpected outcome %s", i, res)
			}
		}(i)
	}
	wg.Wait()
}

func TestTimestampIsConstructionTime(t *testing.T) {
	before := time.Now().UTC()
	res := New("ts").Run(context.Background(), nil)
	if res.Timestamp().Before(before) || res.Timestamp().After(time.Now().UTC()) {
		t.Errorf("timestamp %v outside invocation window", res.Timestamp())
	}
}
