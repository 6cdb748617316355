package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/cuongbtq/bulksend/internal/api/handler"
	"github.com/cuongbtq/bulksend/internal/api/router"
	"github.com/cuongbtq/bulksend/internal/config"
	"github.com/cuongbtq/bulksend/internal/dispatch"
	"github.com/cuongbtq/bulksend/internal/metrics"
	"github.com/cuongbtq/bulksend/internal/progress"
	"github.com/cuongbtq/bulksend/internal/recipient"
	"github.com/cuongbtq/bulksend/internal/session"
	"github.com/cuongbtq/bulksend/internal/storage"
	"github.com/cuongbtq/bulksend/shared/postgresql"
	"github.com/cuongbtq/bulksend/shared/rabbitmq"
)

func newServeCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the web UI, API and WhatsApp session",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), *configPath, cmd.Flags().Changed("config"))
		},
	}
}

func runServe(parent context.Context, configPath string, explicit bool) error {
	if parent == nil {
		parent = context.Background()
	}

	cfg, err := loadConfig(configPath, explicit)
	if err != nil {
		return err
	}

	// Initialize logger
	appLogger, err := initLogger(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer appLogger.Close()
	log := appLogger.Logger

	log.Info("Starting bulksend",
		slog.String("app", cfg.App.Name),
		slog.String("version", cfg.App.Version),
		slog.String("environment", cfg.App.Environment),
	)

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sink, reg, metricsHandler := initMetrics(&cfg.Metrics)
	hub := progress.NewHub(cfg.Events.SubscriberBuffer, log.With(slog.String("component", "progress")), sink)
	healthChecks := map[string]handler.HealthCheck{}

	// Job history
	var store storage.Store
	switch cfg.Storage.Driver {
	case "postgres":
		dbClient, err := initPostgreSQL(ctx, &cfg.Database, log)
		if err != nil {
			return fmt.Errorf("failed to initialize database: %w", err)
		}
		defer dbClient.Close()

		if reg != nil {
			if err := dbClient.RegisterMetrics(reg); err != nil {
				return err
			}
		}

		pg := storage.NewPostgres(dbClient)
		if err := pg.EnsureSchema(ctx); err != nil {
			return err
		}
		store = pg
		healthChecks["postgres"] = dbClient.HealthCheck
		log.Info("Job history stored in PostgreSQL")
	default:
		store = storage.NewMemory(0)
	}

	// WhatsApp session
	mgr, err := session.New(ctx, session.Options{
		Store: session.StoreOptions{
			Dialect: cfg.Session.Store.Dialect,
			DSN:     cfg.Session.Store.DSN,
		},
		AutoReconnect:  cfg.Session.AutoReconnect,
		ReconnectDelay: cfg.Session.ReconnectDelay,
		QROnce:         cfg.Session.QROnce,
		PrintQR:        cfg.Session.PrintQR,
		QRSize:         cfg.Session.QRSize,
		Console:        os.Stdout,
	}, hub, sink, log.With(slog.String("component", "session")))
	if err != nil {
		return fmt.Errorf("failed to initialize whatsapp session: %w", err)
	}

	disp := dispatch.New(dispatch.Config{
		Logger:       log.With(slog.String("component", "dispatch")),
		Sender:       mgr,
		Store:        store,
		Publisher:    hub,
		Metrics:      sink,
		DefaultDelay: cfg.Dispatch.DefaultDelay,
		MinDelay:     cfg.Dispatch.MinDelay,
		MaxDelay:     cfg.Dispatch.MaxDelay,
		SendTimeout:  cfg.Dispatch.SendTimeout,
		MaxPerMinute: cfg.Dispatch.MaxPerMinute,
		QueueSize:    cfg.Dispatch.QueueSize,
		Footer:       cfg.Dispatch.MessageFooter,
		RequireReady: cfg.Dispatch.RequireReady,
		StatusMax:    cfg.Dispatch.StatusMax,
		StatusTTL:    cfg.Dispatch.StatusTTL,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return mgr.Run(gctx) })
	g.Go(func() error { return disp.Start(gctx) })

	if cfg.Events.AMQP.Enabled {
		rabbitClient, err := initRabbitMQ(&cfg.RabbitMQ, log)
		if err != nil {
			stop()
			_ = g.Wait()
			return fmt.Errorf("failed to initialize RabbitMQ: %w", err)
		}
		defer rabbitClient.Close()

		amqpSink := progress.NewAMQPSink(hub, rabbitClient, cfg.RabbitMQ.RoutingKey, log.With(slog.String("component", "amqp")))
		g.Go(func() error { return amqpSink.Run(gctx) })
		healthChecks["rabbitmq"] = func(ctx context.Context) error {
			if !rabbitClient.IsConnected() {
				return rabbitmq.ErrNotConnected
			}
			return nil
		}
	}

	ws := progress.NewWebSocketServer(hub, cfg.Events.HeartbeatInterval, log.With(slog.String("component", "websocket"))).
		WithInitial(mgr.InitialEvents)

	r := initRouter(cfg, &handler.Dependencies{
		Logger:         log,
		Dispatcher:     disp,
		Session:        mgr,
		Resolver:       recipient.NewResolver(recipientRules(&cfg.Recipients)),
		Events:         hub,
		WebSocket:      ws,
		Metrics:        metricsHandler,
		MetricsPath:    cfg.Metrics.Path,
		HealthChecks:   healthChecks,
		MaxUploadBytes: cfg.Server.MaxUploadBytes,
		UIDir:          cfg.UI.Dir,
	})

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
		// Streams end with the process context so Shutdown is not held open.
		BaseContext: func(net.Listener) context.Context { return gctx },
	}

	g.Go(func() error {
		log.Info("Starting HTTP server",
			slog.String("address", addr),
			slog.Duration("read_timeout", cfg.Server.ReadTimeout),
			slog.Duration("write_timeout", cfg.Server.WriteTimeout),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("Server forced to shutdown", slog.Any("error", err))
			return err
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Error("bulksend stopped with error", slog.Any("error", err))
		return err
	}

	log.Info("Shutdown complete")
	return nil
}

// initMetrics returns the sink, the registry and the /metrics handler. The
// registry and handler are nil when metrics are disabled.
func initMetrics(cfg *config.MetricsConfig) (metrics.Sink, *prometheus.Registry, http.Handler) {
	if !cfg.Enabled {
		return metrics.NewNoopSink(), nil, nil
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return metrics.NewPrometheusSink(reg), reg, promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}

// initPostgreSQL initializes the PostgreSQL database client
func initPostgreSQL(ctx context.Context, cfg *config.DatabaseConfig, logger *slog.Logger) (*postgresql.Client, error) {
	dbConfig := &postgresql.Config{
		Host:            cfg.Host,
		Port:            cfg.Port,
		User:            cfg.User,
		Password:        cfg.Password,
		Database:        cfg.Database,
		SSLMode:         cfg.SSLMode,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.ConnMaxIdleTime,
	}

	return postgresql.NewClient(ctx, dbConfig, logger)
}

// initRabbitMQ initializes the RabbitMQ client
func initRabbitMQ(cfg *config.RabbitMQConfig, logger *slog.Logger) (*rabbitmq.Client, error) {
	rabbitConfig := &rabbitmq.Config{
		Host:               cfg.Host,
		Port:               cfg.Port,
		User:               cfg.User,
		Password:           cfg.Password,
		VHost:              cfg.VHost,
		ExchangeName:       cfg.Exchange.Name,
		ExchangeType:       cfg.Exchange.Type,
		ExchangeDurable:    cfg.Exchange.Durable,
		ExchangeAutoDelete: cfg.Exchange.AutoDelete,
		RoutingKey:         cfg.RoutingKey,
		RetryAttempts:      cfg.Connection.RetryAttempts,
		RetryInterval:      cfg.Connection.RetryInterval,
		Heartbeat:          cfg.Connection.Heartbeat,
		ConnectionTimeout:  cfg.Connection.ConnectionTimeout,
		PublishRetries:     cfg.Publish.RetryAttempts,
		PublishRetryDelay:  cfg.Publish.RetryInterval,
		PublishBackoffMult: cfg.Publish.BackoffMultiplier,
	}

	return rabbitmq.NewClient(rabbitConfig, logger)
}

// initRouter initializes the Gin router with all routes and middleware
func initRouter(cfg *config.Config, deps *handler.Dependencies) *gin.Engine {
	// Set Gin mode based on environment
	if cfg.App.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	return router.SetupRouter(deps, router.Options{
		ServiceName:  cfg.App.Name,
		SSEHeartbeat: cfg.Events.HeartbeatInterval,
	})
}
