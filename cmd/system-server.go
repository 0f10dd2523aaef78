package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/m-mizutani/goerr/v2"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/foreverif/laf/pkg/api"
	"github.com/foreverif/laf/pkg/application"
	"github.com/foreverif/laf/pkg/config"
	"github.com/foreverif/laf/pkg/domain"
	"github.com/foreverif/laf/pkg/logging"
	"github.com/foreverif/laf/pkg/mongodb"
	"github.com/foreverif/laf/pkg/permission"
	"github.com/foreverif/laf/pkg/server"
	"github.com/foreverif/laf/pkg/storage"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var envFile string
	var address string

	cmd := &cobra.Command{
		Use:   "laf-system-server",
		Short: "laf system server",
		Long: `laf-system-server serves the database management API of laf applications.

With REGISTRY_DRIVER=memory applications come from APPS_FILE and their databases are
kept in memory, persisted to DATA_DIR on shutdown. With REGISTRY_DRIVER=mongo both the
application registry and the application databases live in MongoDB.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(envFile)
			if err != nil {
				return err
			}
			if address != "" {
				cfg.Address = address
			}
			return run(cmd.Context(), cfg)
		},
	}

	cmd.Flags().StringVar(&envFile, "env-file", "", "Load environment variables from this file first")
	cmd.Flags().StringVar(&address, "address", "", "Listen address, overrides ADDRESS")

	return cmd
}

// backend is the registry and database provider selected by REGISTRY_DRIVER
type backend struct {
	apps      domain.ApplicationRegistry
	accessors domain.DbAccessorProvider
	close     func(ctx context.Context) error
}

func run(ctx context.Context, cfg *config.Configuration) error {
	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}

	var b *backend
	switch cfg.RegistryDriver {
	case config.DriverMongo:
		b, err = newMongoBackend(ctx, cfg, logger)
	default:
		b, err = newMemoryBackend(ctx, cfg, logger)
	}
	if err != nil {
		logger.WithFields(logging.ErrorFields(err)).WithError(err).Error("failed to start backend")
		return err
	}

	handler := api.NewHandler(b.apps, permission.NewChecker(nil), b.accessors,
		api.WithLogger(logger), api.WithMaxBodyBytes(cfg.MaxBodyBytes))
	srv := server.NewServer(handler, server.WithLogger(logger), server.WithUIDHeader(cfg.UIDHeader))

	httpServer := &http.Server{
		Addr:    cfg.Address,
		Handler: srv.Router(),
	}

	// Start server in a goroutine
	serveErr := make(chan error, 1)
	go func() {
		logger.WithFields(logrus.Fields{"address": cfg.Address, "driver": cfg.RegistryDriver}).Info("starting laf system server")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case sig := <-quit:
		logger.WithField("signal", sig.String()).Info("shutting down server")
	case err := <-serveErr:
		if err != nil {
			logger.WithError(err).Error("server failed")
			_ = b.close(context.Background())
			return goerr.Wrap(err, "server failed", goerr.V("address", cfg.Address))
		}
	}

	// Give outstanding requests a deadline for completion
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("server forced to shutdown")
	}
	if err := b.close(shutdownCtx); err != nil {
		logger.WithFields(logging.ErrorFields(err)).WithError(err).Error("failed to close backend")
		return err
	}

	logger.Info("server exited")
	return nil
}

func newMemoryBackend(ctx context.Context, cfg *config.Configuration, logger logrus.FieldLogger) (*backend, error) {
	registry := application.NewMemoryRegistry()
	if cfg.AppsFile != "" {
		loaded, err := application.LoadFile(cfg.AppsFile)
		if err != nil {
			return nil, err
		}
		registry = loaded
		logger.WithFields(logrus.Fields{"file": cfg.AppsFile, "apps": len(registry.AppIDs())}).Info("loaded applications")
	} else {
		logger.Warn("APPS_FILE not set, no applications registered")
	}

	var poolOptions []storage.PoolOption
	poolOptions = append(poolOptions, storage.WithLogger(logger))
	if cfg.DataDir != "" {
		poolOptions = append(poolOptions, storage.WithDataDir(cfg.DataDir))
		logger.WithField("dir", cfg.DataDir).Info("using data directory")
	}
	if cfg.SaveInterval > 0 {
		poolOptions = append(poolOptions, storage.WithBackgroundSave(cfg.SaveInterval))
		logger.WithField("interval", cfg.SaveInterval.String()).Info("background save enabled")
	} else if cfg.DataDir != "" {
		logger.Warn("background save disabled, data only saved on graceful shutdown")
	}

	pool := storage.NewPool(poolOptions...)
	if err := pool.LoadAll(); err != nil {
		return nil, err
	}

	inserter := func(app *domain.Application) application.DocumentInserter {
		return pool.Engine(app.DatabaseName())
	}
	if err := application.ApplySeeds(ctx, registry, inserter, logger); err != nil {
		return nil, err
	}
	pool.LogInventory()
	pool.StartBackgroundWorkers()

	return &backend{
		apps:      registry,
		accessors: pool,
		close: func(ctx context.Context) error {
			pool.StopBackgroundWorkers()
			if err := pool.SaveAll(); err != nil {
				return err
			}
			if cfg.DataDir != "" {
				logger.WithField("dir", cfg.DataDir).Info("saved databases")
			}
			return nil
		},
	}, nil
}

func newMongoBackend(ctx context.Context, cfg *config.Configuration, logger logrus.FieldLogger) (*backend, error) {
	sysClient, err := mongodb.Connect(ctx, cfg.SysDBURI)
	if err != nil {
		return nil, err
	}
	logger.WithField("db", cfg.SysDBName).Info("connected to system database")

	appClient := sysClient
	if cfg.AppDBURI != cfg.SysDBURI {
		appClient, err = mongodb.Connect(ctx, cfg.AppDBURI)
		if err != nil {
			_ = mongodb.Disconnect(ctx, sysClient)
			return nil, err
		}
	}

	provider, err := mongodb.NewAccessorProvider(appClient, mongodb.CredentialFactory(cfg.AppDBURI), cfg.ClientCacheSize, logger)
	if err != nil {
		_ = disconnectAll(ctx, sysClient, appClient)
		return nil, err
	}

	return &backend{
		apps:      mongodb.NewRegistry(sysClient.Database(cfg.SysDBName)),
		accessors: provider,
		close: func(ctx context.Context) error {
			provider.Close()
			return disconnectAll(ctx, sysClient, appClient)
		},
	}, nil
}

// disconnectAll disconnects the application client, when it is a separate one, and the
// system client. Both are attempted; the first error is returned.
func disconnectAll(ctx context.Context, sysClient, appClient *mongo.Client) error {
	var appErr error
	if appClient != sysClient {
		appErr = mongodb.Disconnect(ctx, appClient)
	}
	if err := mongodb.Disconnect(ctx, sysClient); err != nil && appErr == nil {
		return err
	}
	return appErr
}
