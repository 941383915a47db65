// Package app wires the catalog service together.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/abgdnv/catalog/internal/blob"
	"github.com/abgdnv/catalog/internal/clock"
	"github.com/abgdnv/catalog/internal/config"
	"github.com/abgdnv/catalog/internal/service"
	"github.com/abgdnv/catalog/internal/store"
	grpcImpl "github.com/abgdnv/catalog/internal/transport/grpc"
	"github.com/abgdnv/catalog/internal/transport/rest"
	"github.com/abgdnv/catalog/pkg/messaging"
	"github.com/abgdnv/catalog/pkg/server"
	"github.com/go-chi/chi/v5"
	"google.golang.org/grpc"
)

// healthObject is read to probe the blob store; a missing object counts as healthy.
const healthObject = ".health"

type Dependencies struct {
	Catalog service.Catalog
	Logger  *slog.Logger
	// MaxFileSize is the attachment size limit enforced on upload requests.
	MaxFileSize int64
	// MetricsHandler serves MetricsPath when set.
	MetricsHandler http.Handler
	MetricsPath    string
	Health         *grpcImpl.HealthReporter
}

// Backends are the stores and collaborators the catalog runs on.
type Backends struct {
	Products  store.ProductStore
	Blobs     blob.Store
	Publisher messaging.Publisher
	Clock     clock.Clock
	// Checks feed the gRPC health status.
	Checks map[string]grpcImpl.Check
}

// NewBlobStore creates the configured blob store guarded by a circuit breaker and call timeout.
func NewBlobStore(ctx context.Context, cfg config.BlobConfig) (blob.Store, error) {
	var next blob.Store
	switch cfg.Driver {
	case config.BlobDriverS3:
		client, err := blob.NewS3Client(ctx, blob.S3Options{
			Region:       cfg.Region,
			Endpoint:     cfg.Endpoint,
			UsePathStyle: cfg.UsePathStyle,
			AccessKey:    cfg.AccessKey,
			SecretKey:    cfg.SecretKey,
		})
		if err != nil {
			return nil, err
		}
		next = blob.NewS3Store(client)
	case config.BlobDriverMemory:
		next = blob.NewMemoryStore()
	default:
		return nil, fmt.Errorf("unknown blob driver: %q", cfg.Driver)
	}
	return blob.NewResilientStore(next, "blob-"+cfg.Driver, cfg.CircuitBreaker, cfg.Timeout), nil
}

// BlobCheck probes the blob store by reading a well-known object under the namespace.
// A circuit-breaker wrapper is unwrapped so failed probes never trip the breaker guarding attachments.
func BlobCheck(blobs blob.Store, namespace string) grpcImpl.Check {
	if guarded, ok := blobs.(interface{ Unwrap() blob.Store }); ok {
		blobs = guarded.Unwrap()
	}
	return func(ctx context.Context) error {
		_, err := blobs.Get(ctx, namespace, healthObject)
		if err != nil && !errors.Is(err, blob.ErrObjectNotFound) {
			return err
		}
		return nil
	}
}

// SetupDependencies builds the catalog service on the given backends.
func SetupDependencies(cfg *config.Config, backends Backends, logger *slog.Logger) (*Dependencies, error) {
	svc, err := service.NewService(backends.Products, backends.Blobs, backends.Clock, backends.Publisher, logger, service.Config{
		Namespace: cfg.Blob.Namespace,
		Policy: blob.Policy{
			MaxSize:             cfg.Attachment.MaxSize,
			AllowedContentTypes: cfg.Attachment.AllowedTypes,
		},
		CleanupOnDelete: cfg.Attachment.CleanupOnDelete,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create catalog service: %w", err)
	}
	return &Dependencies{
		Catalog:     svc,
		Logger:      logger,
		MaxFileSize: cfg.Attachment.MaxSize,
		MetricsPath: cfg.Telemetry.Metrics.Path,
		Health:      grpcImpl.NewHealthReporter(logger, cfg.GRPC.HealthInterval, backends.Checks),
	}, nil
}

// SetupHttpHandler initializes the routes and middleware of the catalog.
// Used by E2E tests to set up the HTTP server with the necessary routes and middleware.
func SetupHttpHandler(deps *Dependencies) http.Handler {
	mux := server.NewChiRouter(deps.Logger)
	wireRoutes(mux, deps)
	return mux
}

func wireRoutes(mux *chi.Mux, deps *Dependencies) {
	rest.NewHandler(deps.Catalog, deps.Logger, deps.MaxFileSize).RegisterRoutes(mux)
	if deps.MetricsHandler != nil {
		mux.Handle(deps.MetricsPath, deps.MetricsHandler)
	}
}

// SetupHttpServer creates and configures the HTTP server of the catalog.
func SetupHttpServer(deps *Dependencies, cfg *config.Config) *http.Server {
	return server.NewHTTPServer(cfg.HTTPServer, "catalog.http", SetupHttpHandler(deps))
}

// SetupGrpcServer initializes the gRPC server serving the health service.
func SetupGrpcServer(deps *Dependencies, reflectionEnabled bool) *grpc.Server {
	return server.NewGRPCServer(deps.Logger, reflectionEnabled, deps.Health.Register)
}
