package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"lapor-service/config"
	"lapor-service/internal/auth"
	"lapor-service/internal/handler"
	"lapor-service/internal/logging"
	"lapor-service/internal/messaging"
	"lapor-service/internal/metrics"
	"lapor-service/internal/model"
	"lapor-service/internal/repository"
	"lapor-service/internal/service"

	charmLog "github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

const serviceName = "lapor-service"

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:          "lapor",
		Short:        "Road damage report workflow service",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), configPath)
		},
	}
	root.PersistentFlags().StringVar(&configPath, "config", "config/config.json", "path to the JSON config file")

	root.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Run the HTTP API",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return runServe(cmd.Context(), configPath)
			},
		},
		&cobra.Command{
			Use:   "migrate",
			Short: "Create the report tables or indexes for the configured store",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return runMigrate(cmd.Context(), configPath)
			},
		},
		newTokenCommand(&configPath),
	)
	return root
}

func newTokenCommand(configPath *string) *cobra.Command {
	var userID, role string

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a signed token for local testing",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.LoadConfig(*configPath)
			if err != nil {
				return err
			}

			id := uuid.New()
			if userID != "" {
				if id, err = uuid.Parse(userID); err != nil {
					return fmt.Errorf("--user-id: %w", err)
				}
			}

			tokens := auth.NewTokenService(cfg.Auth.JWTSecret, cfg.Auth.Expiration())
			token, err := tokens.Issue(model.Actor{ID: id, Role: model.Role(role)})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&userID, "user-id", "", "actor id (random when empty)")
	cmd.Flags().StringVar(&role, "role", string(model.RoleUser), "actor role: user or admin")
	return cmd
}

func loadRuntime(configPath string) (*config.Config, *charmLog.Logger, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	logger, err := logging.New(os.Stderr, cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

type migrator interface {
	Migrate(ctx context.Context) error
}

// openStore connects the configured report store and brings its schema up to date.
func openStore(ctx context.Context, cfg config.StoreConfig) (repository.ReportStore, error) {
	var (
		store repository.ReportStore
		err   error
	)
	switch cfg.Driver {
	case "memory":
		return repository.NewMemoryReportRepository(), nil
	case "postgres":
		store, err = repository.OpenPostgres(ctx, cfg.PostgresDSN)
	case "sqlite":
		store, err = repository.OpenSQLite(cfg.SQLitePath)
	case "mongo":
		store, err = repository.OpenMongo(ctx, cfg.MongoURI, cfg.MongoDatabase)
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, err
	}

	if m, ok := store.(migrator); ok {
		if err := m.Migrate(ctx); err != nil {
			store.Close()
			return nil, err
		}
	}
	return store, nil
}

func runMigrate(ctx context.Context, configPath string) error {
	cfg, logger, err := loadRuntime(configPath)
	if err != nil {
		return err
	}
	store, err := openStore(ctx, cfg.Store)
	if err != nil {
		return err
	}
	defer store.Close()

	logger.Info("store migrated", "driver", cfg.Store.Driver)
	return nil
}

func runServe(parent context.Context, configPath string) error {
	cfg, logger, err := loadRuntime(configPath)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := openStore(ctx, cfg.Store)
	if err != nil {
		return fmt.Errorf("open %s store: %w", cfg.Store.Driver, err)
	}
	defer store.Close()
	logger.Info("connected to report store", "driver", cfg.Store.Driver)

	hub := messaging.NewActivityHub(logger.WithPrefix("hub"))
	go hub.Run(ctx)

	publishers := messaging.Fanout{hub}
	if cfg.RabbitMQ.Enabled {
		rmq, err := messaging.NewRabbitMQ(messaging.RabbitMQConfig{
			URL:             cfg.RabbitMQ.URL,
			Exchange:        cfg.RabbitMQ.Exchange,
			PublishAttempts: cfg.RabbitMQ.PublishAttempts,
		}, logger.WithPrefix("rabbitmq"))
		if err != nil {
			return fmt.Errorf("connect rabbitmq: %w", err)
		}
		defer rmq.Close()

		dispatcher := messaging.NewDispatcher(rmq, cfg.RabbitMQ.QueueSize, logger.WithPrefix("dispatcher"))
		dispatcher.Start()
		// stopped before rmq.Close so queued events still go out
		defer dispatcher.Stop()

		publishers = append(publishers, dispatcher)
		logger.Info("connected to rabbitmq", "exchange", cfg.RabbitMQ.Exchange)
	}

	recorder := metrics.NewRecorder()
	reportService := service.NewReportService(store, publishers, recorder, logger)
	queryService := service.NewQueryService(store)
	tokens := auth.NewTokenService(cfg.Auth.JWTSecret, cfg.Auth.Expiration())

	gin.SetMode(gin.ReleaseMode)
	router := handler.NewRouter(handler.RouterConfig{
		Reports:      handler.NewReportHandler(reportService, queryService, hub),
		Health:       handler.NewHealthHandler(store, serviceName),
		Tokens:       tokens,
		TrustGateway: cfg.Auth.TrustGatewayHeaders,
		Metrics:      recorder,
		Logger:       logger,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("report service starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("serve: %w", err)
		}
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	// event streams end once the hub stops with ctx
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("server shutdown", "err", err)
	}
	return nil
}
