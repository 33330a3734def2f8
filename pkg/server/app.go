package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	domrepo "SignalDesk/internal/domain/repository"
	"SignalDesk/internal/usecase"
	xhttp "SignalDesk/pkg/http"
	pkgkafka "SignalDesk/pkg/kafka"
	"SignalDesk/pkg/logger"
)

// Worker is a background component with an explicit start and stop, such as
// the job queue.
type Worker interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// App encapsulates the entire application lifecycle.
type App struct {
	log       *logger.Logger
	http      *xhttp.Server
	config    *usecase.ConfigHolder
	scheduler *usecase.Scheduler
	jobs      Worker

	relay    *usecase.PriceRelay
	consumer *pkgkafka.Consumer
	alerts   pkgkafka.MessageHandler
	archive  domrepo.DecisionArchive
	closers  []io.Closer

	shutdownTimeout time.Duration
	cancel          context.CancelFunc
}

type Option func(*App)

func WithPriceRelay(r *usecase.PriceRelay) Option {
	return func(a *App) { a.relay = r }
}

// WithAlertConsumer consumes alerts from Kafka next to the webhook.
func WithAlertConsumer(c *pkgkafka.Consumer, h pkgkafka.MessageHandler) Option {
	return func(a *App) { a.consumer, a.alerts = c, h }
}

func WithArchive(ar domrepo.DecisionArchive) Option {
	return func(a *App) { a.archive = ar }
}

// WithClosers registers resources closed last, in order.
func WithClosers(c ...io.Closer) Option {
	return func(a *App) { a.closers = append(a.closers, c...) }
}

func WithShutdownTimeout(d time.Duration) Option {
	return func(a *App) { a.shutdownTimeout = d }
}

// New creates a new App instance with all dependencies.
func New(
	log *logger.Logger,
	httpServer *xhttp.Server,
	config *usecase.ConfigHolder,
	scheduler *usecase.Scheduler,
	jobs Worker,
	opts ...Option,
) *App {
	if log == nil {
		log = logger.Nop()
	}
	a := &App{
		log:             log.With("app"),
		http:            httpServer,
		config:          config,
		scheduler:       scheduler,
		jobs:            jobs,
		shutdownTimeout: 10 * time.Second,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Run starts the application and blocks until interrupted.
func (a *App) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := a.Start(ctx); err != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
		defer cancel()
		_ = a.Shutdown(shutdownCtx)
		return err
	}

	<-ctx.Done()
	a.log.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
	defer cancel()
	return a.Shutdown(shutdownCtx)
}

// Start loads the persisted runtime config and launches every component.
// Only the HTTP listener and the scheduler are mandatory.
func (a *App) Start(ctx context.Context) error {
	ctx, a.cancel = context.WithCancel(ctx)

	if err := a.config.Load(ctx); err != nil {
		return fmt.Errorf("runtime config: %w", err)
	}
	if a.archive != nil {
		if err := a.archive.Init(ctx); err != nil {
			a.log.Warn("decision archive init failed", logger.Error(err))
		}
	}
	if a.jobs != nil {
		if err := a.jobs.Start(ctx); err != nil {
			return fmt.Errorf("job queue: %w", err)
		}
	}
	if a.consumer != nil && a.alerts != nil {
		a.consumer.RegisterHandler(a.alerts)
		if err := a.consumer.Start(ctx); err != nil {
			return fmt.Errorf("kafka consumer: %w", err)
		}
		a.log.Info("kafka consumer started", logger.String("topic", a.alerts.Topic()))
	}
	if a.relay != nil {
		a.relay.Start(ctx)
	}
	a.scheduler.Start(ctx)

	if err := a.http.Start(); err != nil {
		return fmt.Errorf("http server: %w", err)
	}
	a.log.Info("signaldesk started", logger.Strings("watchlist", a.config.Current().WatchlistSymbols))
	return nil
}

// Shutdown stops intake first, then background work, then closes clients.
func (a *App) Shutdown(ctx context.Context) error {
	a.log.Info("shutting down...")
	var errs []error

	if a.http != nil {
		if err := a.http.Stop(ctx); err != nil {
			a.log.Error("http shutdown error", logger.Error(err))
			errs = append(errs, err)
		}
	}
	if a.consumer != nil {
		if err := a.consumer.Stop(ctx); err != nil {
			a.log.Warn("kafka consumer stop error", logger.Error(err))
			errs = append(errs, err)
		}
	}
	if err := a.scheduler.Stop(ctx); err != nil {
		a.log.Warn("scheduler stop error", logger.Error(err))
		errs = append(errs, err)
	}
	if a.jobs != nil {
		if err := a.jobs.Stop(ctx); err != nil {
			a.log.Warn("job queue stop error", logger.Error(err))
			errs = append(errs, err)
		}
	}
	if a.relay != nil {
		if err := a.relay.Shutdown(ctx); err != nil {
			a.log.Warn("price relay stop error", logger.Error(err))
		}
	}
	if a.cancel != nil {
		a.cancel()
	}
	for _, c := range a.closers {
		if c == nil {
			continue
		}
		if err := c.Close(); err != nil {
			a.log.Warn("close error", logger.Error(err))
		}
	}

	a.log.Info("shutdown complete")
	return errors.Join(errs...)
}
