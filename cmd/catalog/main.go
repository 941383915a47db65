// Package main runs the catalog service.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/abgdnv/catalog/internal/app"
	"github.com/abgdnv/catalog/internal/clock"
	"github.com/abgdnv/catalog/internal/config"
	"github.com/abgdnv/catalog/internal/events"
	"github.com/abgdnv/catalog/internal/popularity"
	"github.com/abgdnv/catalog/internal/store"
	grpcImpl "github.com/abgdnv/catalog/internal/transport/grpc"
	"github.com/abgdnv/catalog/pkg/bootstrap"
	"github.com/abgdnv/catalog/pkg/config/configloader"
	"github.com/abgdnv/catalog/pkg/messaging"
	pnats "github.com/abgdnv/catalog/pkg/nats"
	"github.com/abgdnv/catalog/pkg/server"
	"github.com/abgdnv/catalog/pkg/telemetry"
	"github.com/nats-io/nats.go/jetstream"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
)

const serviceName = "catalog"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		log.Printf("application run failed: %v", err)
		os.Exit(1)
	}
	log.Println("application stopped gracefully")
}

// run loads the configuration, connects the backends and serves HTTP, gRPC and pprof until ctx is cancelled.
func run(ctx context.Context) error {
	cfg, cfgErr := configloader.Load[*config.Config](serviceName, config.Defaults())
	if cfgErr != nil {
		return fmt.Errorf("failed to load configuration: %w", cfgErr)
	}
	log.Printf("Configuration loaded: %v", cfg)

	logger := bootstrap.NewLogger(cfg.Log.Level)
	slog.SetDefault(logger)

	tp, err := telemetry.NewTracerProvider(ctx, serviceName, cfg.Telemetry.Traces)
	if err != nil {
		return fmt.Errorf("failed to create tracer provider: %w", err)
	}
	defer shutdownWithTimeout(logger, "tracer provider", cfg.Shutdown.Timeout, tp.Shutdown)

	var metricsHandler http.Handler
	if cfg.Telemetry.Metrics.Enabled {
		mp, handler, err := telemetry.NewMeterProvider(serviceName)
		if err != nil {
			return fmt.Errorf("failed to create meter provider: %w", err)
		}
		defer shutdownWithTimeout(logger, "meter provider", cfg.Shutdown.Timeout, mp.Shutdown)
		metricsHandler = handler
	}

	if cfg.Database.Migrate {
		if err := bootstrap.RunMigrations(store.Migrations, store.MigrationsDir, cfg.Database.URL); err != nil {
			return err
		}
		logger.Info("Database migrations applied")
	}

	dbPool, err := bootstrap.NewDbPool(ctx, cfg.Database.URL, cfg.Database.Timeout)
	if err != nil {
		return fmt.Errorf("failed to create database connection pool: %w", err)
	}
	defer dbPool.Close()
	logger.Info("Successfully connected to the database!")

	blobs, err := app.NewBlobStore(ctx, cfg.Blob)
	if err != nil {
		return fmt.Errorf("failed to create blob store: %w", err)
	}

	var publisher messaging.Publisher = messaging.NoopPublisher{}
	var js jetstream.JetStream
	if cfg.NatsRequired() {
		natsConn, err := pnats.NewClient(cfg.Nats.Url, cfg.Nats.Timeout)
		if err != nil {
			return fmt.Errorf("failed to create NATS connection: %w", err)
		}
		defer func() {
			if err := natsConn.Drain(); err != nil {
				logger.Error("failed to drain NATS connection", "error", err)
			}
		}()
		js, err = pnats.NewJetStreamContext(natsConn)
		if err != nil {
			return fmt.Errorf("failed to get JetStream context: %w", err)
		}
		if err := pnats.EnsureStream(ctx, js, cfg.Nats.Stream, events.StreamSubjects); err != nil {
			return err
		}
		if cfg.Events.Enabled {
			publisher = pnats.NewNatsPublisher(js)
		}
	}

	deps, err := app.SetupDependencies(cfg, app.Backends{
		Products:  store.NewPgStore(dbPool),
		Blobs:     blobs,
		Publisher: publisher,
		Clock:     clock.NewRealClock(),
		Checks: map[string]grpcImpl.Check{
			"database": dbPool.Ping,
			"blob":     app.BlobCheck(blobs, cfg.Blob.Namespace),
		},
	}, logger)
	if err != nil {
		return err
	}
	deps.MetricsHandler = metricsHandler

	httpServer, pprofServer, grpcServer := setupServers(deps, cfg)

	g, gCtx := errgroup.WithContext(ctx)

	// Start the HTTP server
	g.Go(func() error {
		logger.Info("HTTP server listening", slog.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	})
	// gracefully shutdown HTTP server on context cancellation
	g.Go(func() error {
		<-gCtx.Done()
		drain(logger, cfg.Shutdown.DrainDelay)
		logger.Info("Shutting down HTTP server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Shutdown.Timeout)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	// Start the gRPC server
	g.Go(func() error {
		grpcAddr := ":" + cfg.GRPC.Port
		lis, err := net.Listen("tcp", grpcAddr)
		if err != nil {
			return fmt.Errorf("failed to listen on gRPC port: %w", err)
		}
		logger.Info("gRPC server listening", slog.String("addr", grpcAddr))
		return grpcServer.Serve(lis)
	})
	// gracefully shutdown gRPC server on context cancellation
	g.Go(func() error {
		<-gCtx.Done()
		drain(logger, cfg.Shutdown.DrainDelay)
		logger.Info("Shutting down gRPC server...")
		stopped := make(chan struct{})
		go func() {
			grpcServer.GracefulStop()
			close(stopped)
		}()
		select {
		case <-stopped:
			logger.Info("gRPC server stopped gracefully.")
			return nil
		case <-time.After(cfg.Shutdown.Timeout):
			logger.Warn("gRPC server graceful stop timed out. Forcing stop.")
			grpcServer.Stop()
			return fmt.Errorf("grpc server graceful stop timed out")
		}
	})

	// Refresh the gRPC health status
	g.Go(func() error {
		return deps.Health.Run(gCtx)
	})

	if cfg.Popularity.Enabled {
		subscriber := popularity.NewSubscriber(js, cfg.Popularity.Subscriber, store.NewPgPopularityStore(dbPool), logger)
		g.Go(func() error {
			logger.Info("Popularity subscriber started")
			if err := subscriber.Start(gCtx); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("popularity subscriber failed: %w", err)
			}
			logger.Info("Popularity subscriber stopped gracefully.")
			return nil
		})
	}

	// Start the pprof server if enabled
	if cfg.PProf.Enabled {
		g.Go(func() error {
			logger.Info("Pprof server listening", slog.String("addr", pprofServer.Addr))
			if err := pprofServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("pprof server failed: %w", err)
			}
			return nil
		})
		// gracefully shutdown pprof server on context cancellation
		g.Go(func() error {
			<-gCtx.Done()
			logger.Info("Shutting down pprof server...")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Shutdown.Timeout)
			defer cancel()
			return pprofServer.Shutdown(shutdownCtx)
		})
	}
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("errgroup encountered an error: %w", err)
	}
	return nil
}

// setupServers initializes the HTTP, pprof, and gRPC servers.
func setupServers(deps *app.Dependencies, cfg *config.Config) (*http.Server, *http.Server, *grpc.Server) {
	httpServer := app.SetupHttpServer(deps, cfg)
	grpcServer := app.SetupGrpcServer(deps, cfg.GRPC.ReflectionEnabled)
	pprofServer := server.NewPprofServer(cfg.PProf)
	return httpServer, pprofServer, grpcServer
}

// drain keeps the servers up for delay after the health status turned NOT_SERVING,
// so that load balancers stop routing new requests first.
func drain(logger *slog.Logger, delay time.Duration) {
	if delay <= 0 {
		return
	}
	logger.Info("Draining before shutdown", slog.Duration("delay", delay))
	time.Sleep(delay)
}

// shutdownWithTimeout flushes a telemetry provider within timeout.
func shutdownWithTimeout(logger *slog.Logger, name string, timeout time.Duration, shutdown func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := shutdown(ctx); err != nil {
		logger.Error("failed to shut down "+name, "error", err)
	}
}
