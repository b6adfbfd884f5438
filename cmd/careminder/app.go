package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/phrazzld/careminder/internal/api"
	"github.com/phrazzld/careminder/internal/config"
	"github.com/phrazzld/careminder/internal/dispatch"
	"github.com/phrazzld/careminder/internal/domain/cadence"
	"github.com/phrazzld/careminder/internal/events"
	"github.com/phrazzld/careminder/internal/health"
	"github.com/phrazzld/careminder/internal/notify"
	"github.com/phrazzld/careminder/internal/platform/logger"
	"github.com/phrazzld/careminder/internal/platform/memory"
	"github.com/phrazzld/careminder/internal/platform/sqlstore"
	"github.com/phrazzld/careminder/internal/service"
	"github.com/phrazzld/careminder/internal/service/auth"
	"github.com/phrazzld/careminder/internal/store"
	"github.com/phrazzld/careminder/internal/task"
)

// errNotSQL is returned by commands that need a SQL database.
var errNotSQL = errors.New("command requires database.driver postgres or sqlite")

// application holds all the shared application dependencies to simplify management
// and ensure proper cleanup on shutdown.
type application struct {
	config    *config.Config
	logger    *slog.Logger
	logCloser io.Closer

	backend store.Backend

	jwtService auth.JWTService
	steps      service.StepService
	checkIns   service.CheckInService

	emitter    *events.InMemoryEventEmitter
	queue      *task.TaskQueue
	workers    *task.WorkerPool
	monitor    *health.Monitor
	dispatcher *dispatch.Dispatcher

	router http.Handler
}

// newApplication sets up logging from cfg and builds the application.
func newApplication(ctx context.Context, cfg *config.Config) (*application, error) {
	log, closer, err := logger.Setup(cfg.Server)
	if err != nil {
		return nil, fmt.Errorf("failed to set up logger: %w", err)
	}

	app, err := buildApplication(ctx, cfg, log)
	if err != nil {
		_ = closer.Close()
		return nil, err
	}
	app.logCloser = closer
	return app, nil
}

// buildApplication wires every component on top of an already configured
// logger. Nothing is started until Run.
func buildApplication(ctx context.Context, cfg *config.Config, log *slog.Logger) (*application, error) {
	app := &application{
		config: cfg,
		logger: log,
	}

	var err error
	app.backend, err = openBackend(ctx, cfg.Database, log)
	if err != nil {
		return nil, err
	}

	app.jwtService, err = auth.NewJWTService(cfg.Auth)
	if err != nil {
		app.cleanup()
		return nil, fmt.Errorf("failed to initialize JWT service: %w", err)
	}

	params, err := cadence.NewParams(cadence.ParamsConfig{
		Location: cfg.Schedule.Location,
		DayStart: cfg.Schedule.DayStart,
		DayEnd:   cfg.Schedule.DayEnd,
	})
	if err != nil {
		app.cleanup()
		return nil, fmt.Errorf("invalid schedule configuration: %w", err)
	}
	resched := service.NewRescheduler(cadence.NewClockWithParams(params), log)
	locker := service.NewPatientLocker()
	retry := retryConfig(cfg.Retry)

	// Notifications: dispatched events become tasks on a bounded queue so the
	// dispatcher never waits on a send.
	app.queue = task.NewTaskQueue(cfg.Notify.QueueSize, log)
	app.workers = task.NewWorkerPool(app.queue, task.WorkerPoolConfig{WorkerCount: cfg.Notify.Workers}, log)
	app.emitter = events.NewInMemoryEventEmitter(log)
	app.emitter.RegisterHandler(events.NewAuditLogHandler(log))
	app.emitter.RegisterHandler(task.NewTaskFactoryEventHandler(
		events.TypeOccurrenceDispatched,
		task.NewNotificationTaskFactory(app.backend.Stores().Reminders, newSender(cfg.Notify, log), log),
		app.queue,
		log,
	))

	opts := []service.Option{
		service.WithLogger(log),
		service.WithRetryConfig(retry),
	}
	app.steps, err = service.NewStepService(app.backend, resched, locker, app.emitter, opts...)
	if err != nil {
		app.cleanup()
		return nil, fmt.Errorf("failed to create step service: %w", err)
	}
	app.checkIns, err = service.NewCheckInService(app.backend, resched, locker, opts...)
	if err != nil {
		app.cleanup()
		return nil, fmt.Errorf("failed to create check-in service: %w", err)
	}

	app.monitor = health.NewMonitor(app.backend, health.Config{
		Interval: health.DefaultConfig().Interval,
		Timeout:  health.DefaultConfig().Timeout,
		Retry:    retry,
	}, log)

	app.dispatcher, err = dispatch.New(app.backend, resched, locker, app.emitter, dispatch.Config{
		TickInterval: cfg.Dispatch.TickInterval,
		GraceWindow:  cfg.Dispatch.GraceWindow,
		BatchSize:    cfg.Dispatch.BatchSize,
		Concurrency:  cfg.Dispatch.Concurrency,
	},
		dispatch.WithLogger(log),
		dispatch.WithRetryConfig(retry),
		dispatch.WithHealthReporter(app.monitor.Report),
	)
	if err != nil {
		app.cleanup()
		return nil, fmt.Errorf("failed to create dispatcher: %w", err)
	}

	app.router = api.NewRouter(api.RouterDeps{
		Logger:     log,
		JWTService: app.jwtService,
		Steps:      app.steps,
		CheckIns:   app.checkIns,
		Health:     app.monitor,
	})

	log.Info("application initialized",
		slog.String("database_driver", cfg.Database.Driver),
		slog.String("notify_kind", cfg.Notify.Kind),
		slog.Duration("grace_window", cfg.Dispatch.GraceWindow))
	return app, nil
}

// openBackend connects the configured store backend.
func openBackend(ctx context.Context, cfg config.DatabaseConfig, log *slog.Logger) (store.Backend, error) {
	if cfg.Driver == "memory" {
		log.Warn("using in-memory store; state is lost on exit")
		return memory.New(log), nil
	}
	return openSQL(ctx, cfg, log)
}

func openSQL(ctx context.Context, cfg config.DatabaseConfig, log *slog.Logger) (*sqlstore.Backend, error) {
	dialect, err := sqlstore.DialectFor(cfg.Driver)
	if err != nil {
		return nil, errNotSQL
	}
	backend, err := sqlstore.Open(ctx, dialect, cfg.URL, sqlstore.Options{MaxOpenConns: cfg.MaxOpenConns}, log)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", cfg.Driver, err)
	}
	return backend, nil
}

func newSender(cfg config.NotifyConfig, log *slog.Logger) notify.Sender {
	if cfg.Kind == "webhook" {
		return notify.NewWebhookSender(cfg.WebhookURL, cfg.Timeout, log)
	}
	return notify.NewLogSender(log)
}

func retryConfig(cfg config.RetryConfig) store.RetryConfig {
	return store.RetryConfig{
		MaxRetries: cfg.MaxRetries,
		BaseDelay:  cfg.BaseDelay,
		MaxDelay:   cfg.MaxDelay,
	}
}

// cleanup releases what buildApplication acquired. Safe to call on a
// partially built application.
func (app *application) cleanup() {
	if app.backend != nil {
		if err := app.backend.Close(); err != nil {
			app.logger.Error("error closing store", slog.Any("error", err))
		}
	}
	if app.logCloser != nil {
		_ = app.logCloser.Close()
	}
}
