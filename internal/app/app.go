package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"eventsync/internal/application/deadletter"
	"eventsync/internal/common/configs"
	"eventsync/internal/common/health"
	"eventsync/internal/common/logger"
	"eventsync/internal/common/metrics"
	"eventsync/internal/domain/events"
	"eventsync/internal/domain/topics"
	"eventsync/internal/infrastructure/database"
	"eventsync/internal/infrastructure/dlq"
	"eventsync/internal/infrastructure/eventbus"
	httpapi "eventsync/internal/infrastructure/http"
	"eventsync/internal/infrastructure/outbox"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"
)

const (
	brokerDialTimeout = 5 * time.Second
	shutdownTimeout   = 5 * time.Second
)

// Options names one ERP service process.
type Options struct {
	Name   string
	Group  string
	Port   string
	Topics []topics.Name
}

// Runtime holds the infrastructure shared by every service: config,
// logging, metrics, the Kafka clients and the optional database.
type Runtime struct {
	Name     string
	Config   configs.Config
	Log      logger.Logger
	Registry *topics.Registry
	Codec    *events.Codec
	Metrics  *metrics.Metrics
	Gatherer *prometheus.Registry
	Checker  *health.BrokerChecker

	// DB is nil when the service runs on in-memory stores.
	DB          *sql.DB
	Publisher   *eventbus.Publisher
	DeadLetters *deadletter.Service

	deadLetterLog dlq.Log
	dlqRouter     *dlq.Router
	closers       []func() error
}

// New loads the configuration and builds everything a service needs
// before it can consume. It does not wait for the brokers; Run does.
func New(ctx context.Context, opts Options) (*Runtime, error) {
	cfg, err := configs.Load()
	if err != nil {
		return nil, err
	}
	cfg = cfg.ForService(opts.Group, logicalNames(opts.Topics), opts.Port)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	base, err := logger.New(cfg.Verbose)
	if err != nil {
		return nil, err
	}
	log := logger.Named(base, opts.Name)

	r := &Runtime{
		Name:     opts.Name,
		Config:   cfg,
		Log:      log,
		Registry: topics.Default(cfg.TopicPrefix),
		Gatherer: prometheus.NewRegistry(),
		Checker:  health.NewBrokerChecker(cfg.Brokers, brokerDialTimeout),
	}
	r.closers = append(r.closers, func() error {
		_ = base.Sync()
		return nil
	})
	r.Codec = events.NewCodec(r.Registry)

	r.Gatherer.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	if r.Metrics, err = metrics.New(r.Gatherer); err != nil {
		return nil, err
	}

	if err := r.openStorage(ctx); err != nil {
		r.Close()
		return nil, err
	}

	r.Publisher = eventbus.NewPublisherFromConfig(cfg, r.Registry, log, r.Metrics)
	r.closers = append(r.closers, r.Publisher.Close)

	dlqWriter := eventbus.NewWriter(cfg.Brokers, cfg.PublishTimeout, log)
	r.closers = append(r.closers, dlqWriter.Close)
	r.dlqRouter = dlq.NewRouter(dlqWriter, r.deadLetterLog, log, r.Metrics)

	replayer, err := NewReplayer(cfg, r.Registry, opts.Topics, dlqWriter, log)
	if err != nil {
		r.Close()
		return nil, err
	}
	r.DeadLetters = deadletter.NewService(r.deadLetterLog, replayer, log)

	log.Infow("runtime ready",
		"brokers", cfg.Brokers,
		"group", cfg.GroupID,
		"topics", cfg.Topics,
		"storage", cfg.Storage,
	)
	return r, nil
}

func (r *Runtime) openStorage(ctx context.Context) error {
	if r.Config.Storage == configs.StorageMemory {
		r.Log.Warnw("running on in-memory stores, state is lost on restart")
		r.deadLetterLog = dlq.NewMemoryLog()
		return nil
	}

	db, err := database.Open(ctx, r.Config.DatabaseURL)
	if err != nil {
		return err
	}
	r.DB = db
	r.closers = append(r.closers, db.Close)

	pl := dlq.NewPostgresLog(db)
	if err := pl.EnsureSchema(ctx); err != nil {
		return err
	}
	r.deadLetterLog = pl
	return nil
}

// Run serves the ops router and, once the brokers answer, consumes the
// service topics with handler. It returns when ctx is done or one of them
// fails. Unreachable brokers are retried until shutdown unless
// KAFKA_STARTUP_MAX_WAIT is set. A nil forwarder runs no outbox.
func (r *Runtime) Run(ctx context.Context, handler events.Handler, forwarder *outbox.Forwarder, routes ...httpapi.Routes) error {
	gin.SetMode(gin.ReleaseMode)
	routes = append(routes, httpapi.NewDeadLetterHandler(r.DeadLetters))
	server := &http.Server{
		Addr:    r.Config.HTTPAddr,
		Handler: httpapi.NewRouter(r.Checker, r.Gatherer, routes...),
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := eventbus.WaitForBrokers(gctx, r.Checker, r.Config.StartupMaxWait, r.Log); err != nil {
			if gctx.Err() != nil {
				r.Log.Infow("stopped while waiting for kafka brokers")
				return nil
			}
			return err
		}
		r.Log.Infow("kafka brokers reachable")

		consumer, err := eventbus.NewConsumerFromConfig(r.Config, r.Registry, handler, r.dlqRouter, r.Log, r.Metrics)
		if err != nil {
			return err
		}
		if forwarder != nil {
			g.Go(func() error {
				return forwarder.Run(gctx, r.Config.OutboxPollInterval)
			})
		}
		return consumer.Run(gctx)
	})

	g.Go(func() error {
		r.Log.Infow("starting ops server", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("ops server failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			r.Log.Errorw("server forced to shutdown", "error", err)
		}
		return nil
	})

	err := g.Wait()
	r.Log.Infow("service stopped", "error", err)
	return err
}

// Close releases the clients in reverse order of creation.
func (r *Runtime) Close() {
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i](); err != nil {
			r.Log.Warnw("failed to close resource", "error", err)
		}
	}
	r.closers = nil
}

func logicalNames(names []topics.Name) []string {
	out := make([]string, 0, len(names))
	for _, n := range names {
		out = append(out, string(n))
	}
	return out
}
