// Command outcome invokes the operation boundary once and prints the resulting
// envelope as JSON. Without flags it runs the placeholder unit of work with no
// parameters; -script runs a JavaScript file instead.
//
// Parameters come from -params (a JSON object) refined by repeated
// -param path=value flags. -params-schema rejects parameters that do not match a
// JSON Schema before the work runs. -field prints a single value of the envelope.
//
// Exit status is 0 for a success envelope, 1 for a failure envelope and 2 for
// usage or configuration errors.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
	"github.com/wehubfusion/outcome/internal/config"
	"github.com/wehubfusion/outcome/internal/logging"
	natsconn "github.com/wehubfusion/outcome/internal/nats"
	"github.com/wehubfusion/outcome/internal/tracing"
	"github.com/wehubfusion/outcome/pkg/boundary"
	"github.com/wehubfusion/outcome/pkg/publish"
	"github.com/wehubfusion/outcome/pkg/report"
	"github.com/wehubfusion/outcome/pkg/result"
	"github.com/wehubfusion/outcome/pkg/schema"
	"github.com/wehubfusion/outcome/pkg/script"
	"github.com/wehubfusion/outcome/pkg/storage"
	"go.uber.org/automaxprocs/maxprocs"
	"go.uber.org/zap"
)

const (
	exitSuccess = 0
	exitFailure = 1
	exitUsage   = 2
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr, os.LookupEnv)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer, lookup func(string) (string, bool)) int {
	fs := flag.NewFlagSet("outcome", flag.ContinueOnError)
	fs.SetOutput(stderr)
	paramsJSON := fs.String("params", "", "invocation parameters as a JSON object")
	scriptPath := fs.String("script", "", "path to a JavaScript file to run as the unit of work")
	schemaPath := fs.String("params-schema", "", "path to a JSON Schema the parameters must match")
	field := fs.String("field", "", "print only this path of the envelope (e.g. data.status)")
	pretty := fs.Bool("pretty", false, "indent the printed envelope")
	var paramFlags paramList
	fs.Var(&paramFlags, "param", "set one parameter as path=value; repeatable")

	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	if fs.NArg() > 0 {
		fmt.Fprintf(stderr, "unexpected arguments: %v\n", fs.Args())
		return exitUsage
	}

	cfg, err := config.LoadFrom(lookup)
	if err != nil {
		fmt.Fprintf(stderr, "configuration error: %v\n", err)
		return exitUsage
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		fmt.Fprintf(stderr, "logger error: %v\n", err)
		return exitUsage
	}
	defer func() { _ = logger.Sync() }()

	undoMaxProcs, err := maxprocs.Set(maxprocs.Logger(logger.Sugar().Debugf))
	if err != nil {
		logger.Warn("Failed to set GOMAXPROCS", zap.Error(err))
	}
	defer undoMaxProcs()

	params, err := parseParams(*paramsJSON, paramFlags)
	if err != nil {
		fmt.Fprintf(stderr, "invalid parameters: %v\n", err)
		return exitUsage
	}

	var work boundary.Work[any]
	if *scriptPath != "" {
		s, err := loadScript(*scriptPath, cfg, logger)
		if err != nil {
			fmt.Fprintf(stderr, "invalid -script: %v\n", err)
			return exitUsage
		}
		work = s.Work()
	}
	if *schemaPath != "" {
		paramSchema, err := loadSchema(*schemaPath)
		if err != nil {
			fmt.Fprintf(stderr, "invalid -params-schema: %v\n", err)
			return exitUsage
		}
		if work == nil {
			work = func(ctx context.Context, params boundary.Params) (any, error) {
				return boundary.Placeholder(ctx, params)
			}
		}
		work = schema.Guard(paramSchema, work)
	}

	logger.Info("Starting outcome", cfg.Fields()...)

	tracingConfig := tracing.DefaultConfig("outcome")
	tracingConfig.Environment = cfg.Environment
	tracingConfig.OTLPEndpoint = cfg.OTLPEndpoint
	tracingConfig.SampleRatio = cfg.TraceSampleRatio
	shutdownTracing, err := tracing.Setup(ctx, tracingConfig, logger)
	if err != nil {
		fmt.Fprintf(stderr, "tracing error: %v\n", err)
		return exitUsage
	}
	defer func() { _ = tracing.Shutdown(shutdownTracing, logger) }()

	sinks, closeSinks, err := buildSinks(ctx, cfg, logger)
	if err != nil {
		fmt.Fprintf(stderr, "sink error: %v\n", err)
		return exitUsage
	}
	defer closeSinks()

	b := boundary.New(cfg.Operation,
		boundary.WithLogger(logger),
		boundary.WithSinks(sinks...),
	)

	var res *result.OperationResult
	if work != nil {
		res = boundary.Execute(ctx, b, params, work)
	} else {
		res = b.Run(ctx, params)
	}

	if err := printResult(stdout, res, *field, *pretty); err != nil {
		logger.Error("Failed to print result", zap.Error(err))
		return exitFailure
	}

	if !res.Succeeded() {
		return exitFailure
	}
	return exitSuccess
}

// paramList collects repeated -param flags
type paramList []string

func (p *paramList) String() string {
	return strings.Join(*p, ",")
}

func (p *paramList) Set(value string) error {
	if !strings.Contains(value, "=") {
		return fmt.Errorf("expected path=value, got %q", value)
	}
	*p = append(*p, value)
	return nil
}

// parseParams decodes raw as a JSON object and applies each path=value
// assignment on top. A value that parses as JSON is stored as that JSON,
// anything else as a string. No input at all means no parameters.
func parseParams(raw string, assignments []string) (boundary.Params, error) {
	if raw == "" && len(assignments) == 0 {
		return nil, nil
	}
	if raw == "" {
		raw = "{}"
	}
	if !gjson.Valid(raw) || !gjson.Parse(raw).IsObject() {
		return nil, errors.New("-params must be a JSON object")
	}

	doc := []byte(raw)
	for _, assignment := range assignments {
		path, value, _ := strings.Cut(assignment, "=")
		if path == "" {
			return nil, fmt.Errorf("empty path in %q", assignment)
		}

		var err error
		if gjson.Valid(value) {
			doc, err = sjson.SetRawBytes(doc, path, []byte(value))
		} else {
			doc, err = sjson.SetBytes(doc, path, value)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to set %s: %w", path, err)
		}
	}

	var params boundary.Params
	if err := json.Unmarshal(doc, &params); err != nil {
		return nil, err
	}
	return params, nil
}

func loadSchema(path string) (*schema.Schema, error) {
	document, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return schema.Compile(path, document, "")
}

func loadScript(path string, cfg *config.Config, logger *zap.Logger) (*script.Script, error) {
	source, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	scriptConfig := script.DefaultConfig()
	scriptConfig.Timeout = cfg.ScriptTimeout
	return script.Compile(path, string(source), scriptConfig, logger)
}

// buildSinks connects every configured integration. The returned func releases them.
func buildSinks(ctx context.Context, cfg *config.Config, logger *zap.Logger) ([]boundary.Sink, func(), error) {
	var (
		sinks   []boundary.Sink
		closers []func()
	)
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	if cfg.NATSURL != "" {
		connConfig := natsconn.DefaultConnectionConfig(cfg.NATSURL)
		connConfig.Logger = logger
		conn, err := natsconn.Connect(ctx, connConfig)
		if err != nil {
			closeAll()
			return nil, nil, err
		}
		closers = append(closers, func() {
			if err := natsconn.Close(conn); err != nil {
				logger.Warn("Failed to close NATS connection", zap.Error(err))
			}
		})

		publisher, err := publish.NewPublisher(conn, &publish.Config{
			Subject:       cfg.NATSSubject,
			MaxRetries:    cfg.PublishMaxRetries,
			RetryDelay:    cfg.PublishRetryDelay,
			EnableLogging: true,
			Logger:        logger,
		})
		if err != nil {
			closeAll()
			return nil, nil, err
		}
		sinks = append(sinks, publisher)
	}

	if cfg.BlobConnectionString != "" {
		blobClient, err := storage.NewAzureBlobClient(cfg.BlobConnectionString, cfg.BlobContainer, logger)
		if err != nil {
			closeAll()
			return nil, nil, err
		}
		sinks = append(sinks, storage.NewArchive(blobClient, logger))
	}

	if cfg.SentryDSN != "" {
		reporter, err := report.New(report.Config{
			DSN:         cfg.SentryDSN,
			Environment: cfg.Environment,
			Logger:      logger,
		})
		if err != nil {
			closeAll()
			return nil, nil, err
		}
		closers = append(closers, func() {
			if err := reporter.Close(); err != nil {
				logger.Warn("Failed to flush Sentry events", zap.Error(err))
			}
		})
		sinks = append(sinks, reporter)
	}

	return sinks, closeAll, nil
}

// printResult writes the envelope, or only the value at field when set
func printResult(w io.Writer, res *result.OperationResult, field string, pretty bool) error {
	encoded, err := json.Marshal(res)
	if err != nil {
		return err
	}

	if field != "" {
		value := gjson.GetBytes(encoded, field)
		if !value.Exists() {
			encoded = []byte("null")
		} else {
			encoded = []byte(value.Raw)
		}
	}

	if pretty {
		var indented bytes.Buffer
		if err := json.Indent(&indented, encoded, "", "  "); err != nil {
			return err
		}
		encoded = indented.Bytes()
	}

	_, err = fmt.Fprintf(w, "%s\n", encoded)
	return err
}
