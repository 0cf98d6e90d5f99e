package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel/log/global"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/AntonStoeckl/library-circulation-go/circulation"
	"github.com/AntonStoeckl/library-circulation-go/circulation/observable"
	"github.com/AntonStoeckl/library-circulation-go/circulation/oteladapters"
	"github.com/AntonStoeckl/library-circulation-go/circulation/postgresengine"
	"github.com/AntonStoeckl/library-circulation-go/config"
)

const (
	instrumentationName = "github.com/AntonStoeckl/library-circulation-go/circulationctl"
	logMsgMetricsFailed = "collecting metrics failed"
)

// app holds everything one command invocation needs.
type app struct {
	cfg           config.Config
	store         postgresengine.Store
	workflow      *observable.WorkflowWrapper
	logger        circulation.ContextualLogger
	metricsReader *sdkmetric.ManualReader
	meterProvider *sdkmetric.MeterProvider
	traceProvider *sdktrace.TracerProvider
	closeDB       func()
}

// loadConfig reads the configuration and applies the flag overrides.
func loadConfig(opts *RootOptions) (config.Config, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return config.Config{}, err
	}

	if opts.Adapter != "" {
		cfg.Database.Adapter = opts.Adapter
	}

	if opts.DSN != "" {
		cfg.Database.DSN = opts.DSN
	}

	if err = cfg.Database.Validate(); err != nil {
		return config.Config{}, err
	}

	return cfg, nil
}

// newLogger creates a slog.Logger on stderr, or logs to the global OpenTelemetry LoggerProvider if configured.
func newLogger(cfg config.Log, stderr io.Writer) circulation.ContextualLogger {
	if cfg.OTel {
		if cfg.OTelMode == config.OTelModeAPI {
			return oteladapters.NewOTelLogger(global.GetLoggerProvider().Logger(instrumentationName))
		}

		return oteladapters.NewSlogBridgeLogger(instrumentationName)
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}

	handlerOpts := &slog.HandlerOptions{Level: level}

	if strings.EqualFold(cfg.Format, "text") {
		return slog.New(slog.NewTextHandler(stderr, handlerOpts))
	}

	return slog.New(slog.NewJSONHandler(stderr, handlerOpts))
}

// openApp connects to the database and assembles store, workflow, and observability.
func openApp(ctx context.Context, opts *RootOptions, stderr io.Writer) (*app, error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "loading configuration", err)
	}

	a := &app{cfg: cfg, logger: newLogger(cfg.Log, stderr)}

	var metrics circulation.MetricsCollector
	if opts.Metrics {
		a.metricsReader = sdkmetric.NewManualReader()
		a.meterProvider = sdkmetric.NewMeterProvider(sdkmetric.WithReader(a.metricsReader))
		metrics = oteladapters.NewMetricsCollector(a.meterProvider.Meter(instrumentationName))
	}

	var tracing circulation.TracingCollector
	if opts.Trace {
		a.traceProvider = sdktrace.NewTracerProvider(sdktrace.WithSyncer(oteladapters.NewSpanWriter(stderr)))
		tracing = oteladapters.NewTracingCollector(a.traceProvider.Tracer(instrumentationName))
	}

	storeOptions := []postgresengine.Option{
		postgresengine.WithItemsTableName(cfg.Database.ItemsTable),
		postgresengine.WithBorrowsTableName(cfg.Database.BorrowsTable),
		postgresengine.WithContextualLogger(a.logger),
	}

	if metrics != nil {
		storeOptions = append(storeOptions, postgresengine.WithMetrics(metrics))
	}

	if a.store, a.closeDB, err = openStore(ctx, cfg.Database, storeOptions...); err != nil {
		return nil, WrapExitError(ExitCommandError, "opening the store", err)
	}

	if cfg.Database.MigrateOnStartup {
		if err = a.store.Migrate(ctx); err != nil {
			a.Close(ctx)
			return nil, WrapExitError(ExitCommandError, "migrating the schema", err)
		}
	}

	workflowOptions := []circulation.Option{
		circulation.WithRetryOptions(
			circulation.WithMaxAttempts(cfg.Workflow.RetryMaxAttempts),
			circulation.WithBaseDelay(cfg.Workflow.RetryBaseDelay),
		),
	}

	if cfg.Workflow.DetachedRestock {
		workflowOptions = append(workflowOptions, circulation.WithDetachedRestock())
	}

	core, err := circulation.NewWorkflow(a.store, workflowOptions...)
	if err != nil {
		a.Close(ctx)
		return nil, WrapExitError(ExitCommandError, "configuring the workflow", err)
	}

	wrapperOptions := []observable.Option{observable.WithContextualLogger(a.logger)}
	if metrics != nil {
		wrapperOptions = append(wrapperOptions, observable.WithMetrics(metrics))
	}

	if tracing != nil {
		wrapperOptions = append(wrapperOptions, observable.WithTracing(tracing))
	}

	if a.workflow, err = observable.NewWorkflowWrapper(core, wrapperOptions...); err != nil {
		a.Close(ctx)
		return nil, WrapExitError(ExitCommandError, "configuring the workflow", err)
	}

	return a, nil
}

// openStore opens the connection of the configured adapter and creates the Store on it.
func openStore(
	ctx context.Context,
	dbConfig config.Database,
	options ...postgresengine.Option,
) (postgresengine.Store, func(), error) {

	switch dbConfig.Adapter {
	case config.AdapterPGXPool:
		pool, err := config.OpenPGXPool(ctx, dbConfig)
		if err != nil {
			return postgresengine.Store{}, nil, err
		}

		store, err := postgresengine.NewStoreFromPGXPool(pool, options...)
		if err != nil {
			pool.Close()
			return postgresengine.Store{}, nil, err
		}

		return store, pool.Close, nil

	case config.AdapterSQLDB, config.AdapterSQLite:
		db, err := config.OpenSQLDB(ctx, dbConfig)
		if err != nil {
			return postgresengine.Store{}, nil, err
		}

		if dbConfig.IsSQLite() {
			options = append(options, postgresengine.WithDialect(postgresengine.DialectSQLite))
		}

		store, err := postgresengine.NewStoreFromSQLDB(db, options...)
		if err != nil {
			_ = db.Close()
			return postgresengine.Store{}, nil, err
		}

		return store, func() { _ = db.Close() }, nil

	case config.AdapterSQLX:
		db, err := config.OpenSQLX(ctx, dbConfig)
		if err != nil {
			return postgresengine.Store{}, nil, err
		}

		store, err := postgresengine.NewStoreFromSQLX(db, options...)
		if err != nil {
			_ = db.Close()
			return postgresengine.Store{}, nil, err
		}

		return store, func() { _ = db.Close() }, nil

	default:
		return postgresengine.Store{}, nil, errors.Join(config.ErrUnknownAdapter, fmt.Errorf("adapter: %q", dbConfig.Adapter))
	}
}

// Close releases the database connection and the telemetry providers.
func (a *app) Close(ctx context.Context) {
	if a.closeDB != nil {
		a.closeDB()
	}

	if a.traceProvider != nil {
		_ = a.traceProvider.Shutdown(ctx)
	}

	if a.meterProvider != nil {
		_ = a.meterProvider.Shutdown(ctx)
	}
}

// reportMetrics writes the collected metrics if --metrics was given.
func (a *app) reportMetrics(ctx context.Context, out *formatter) {
	if a.metricsReader == nil {
		return
	}

	points, err := oteladapters.CollectSummary(ctx, a.metricsReader)
	if err != nil {
		a.logger.WarnContext(ctx, logMsgMetricsFailed, "error", err.Error())
		return
	}

	out.metrics(points)
}
