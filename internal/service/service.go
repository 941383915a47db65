// Package service implements the product catalog: product records and their image attachments.
//
// Attachments live in a blob store that is not transactional with the product store. Writes go to
// the blob store first and the product record is updated only after the blob is durably stored, so a
// record never points at a blob that was not written. A failure between the two steps leaves an
// orphaned blob, which is acceptable.
//
// Every mutating operation returns the full product listing after the write.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/abgdnv/catalog/internal/blob"
	"github.com/abgdnv/catalog/internal/clock"
	perrors "github.com/abgdnv/catalog/internal/errors"
	"github.com/abgdnv/catalog/internal/events"
	"github.com/abgdnv/catalog/internal/store"
	"github.com/abgdnv/catalog/pkg/messaging"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/abgdnv/catalog/internal/service"

// Catalog defines the catalog operations.
// Operations that locate a product by id return ErrProductNotFound when it does not exist.
type Catalog interface {
	// ListProducts returns every product, oldest first.
	ListProducts(ctx context.Context) ([]ProductDto, error)

	// GetProduct returns a single product.
	GetProduct(ctx context.Context, id uuid.UUID) (*ProductDto, error)

	// AddProduct creates a product without an image and returns the listing.
	AddProduct(ctx context.Context, product ProductCreateDto) ([]ProductDto, error)

	// DeleteProduct removes a product and returns the listing.
	DeleteProduct(ctx context.Context, id uuid.UUID) ([]ProductDto, error)

	// AttachImage stores the file as the product image and returns the listing.
	// Returns ErrInvalidAttachment when the file is rejected and ErrAttachmentFailed when it could not be stored.
	AttachImage(ctx context.Context, id uuid.UUID, file blob.File) ([]ProductDto, error)

	// FetchImage returns the stored image of a product.
	// Returns ErrImageNotFound when the product has no image or the image is missing from the blob store.
	FetchImage(ctx context.Context, id uuid.UUID) ([]byte, error)
}

// Config holds the attachment settings of the service.
type Config struct {
	// Namespace is the blob path prefix under which product attachments are stored.
	Namespace string
	Policy    blob.Policy
	// CleanupOnDelete removes the product image from the blob store when the product is deleted.
	CleanupOnDelete bool
}

// Service implements Catalog.
type Service struct {
	products  store.ProductStore
	blobs     blob.Store
	clock     clock.Clock
	publisher messaging.Publisher
	logger    *slog.Logger
	cfg       Config

	attachments metric.Int64Counter
	mutations   metric.Int64Counter
}

// NewService creates a new Service. Instruments are registered on the global meter provider.
func NewService(products store.ProductStore, blobs blob.Store, clk clock.Clock, publisher messaging.Publisher,
	logger *slog.Logger, cfg Config) (*Service, error) {
	meter := otel.Meter(instrumentationName)
	attachments, err := meter.Int64Counter("catalog.attachments",
		metric.WithDescription("Image attachment attempts by result"))
	if err != nil {
		return nil, fmt.Errorf("failed to create attachments counter: %w", err)
	}
	mutations, err := meter.Int64Counter("catalog.products.mutations",
		metric.WithDescription("Product creations and deletions"))
	if err != nil {
		return nil, fmt.Errorf("failed to create mutations counter: %w", err)
	}
	if publisher == nil {
		publisher = messaging.NoopPublisher{}
	}
	return &Service{
		products:    products,
		blobs:       blobs,
		clock:       clk,
		publisher:   publisher,
		logger:      logger.With("component", "catalog"),
		cfg:         cfg,
		attachments: attachments,
		mutations:   mutations,
	}, nil
}

func (s *Service) ListProducts(ctx context.Context) ([]ProductDto, error) {
	products, err := s.products.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}
	return toDtos(products), nil
}

func (s *Service) GetProduct(ctx context.Context, id uuid.UUID) (*ProductDto, error) {
	product, err := s.products.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch product by ID %s: %w", id, err)
	}
	return toDto(product), nil
}

func (s *Service) AddProduct(ctx context.Context, req ProductCreateDto) ([]ProductDto, error) {
	now := s.clock.Now()
	product := store.Product{
		ProductID:    uuid.New(),
		ProductName:  req.ProductName,
		Price:        req.Price,
		Ratings:      req.Ratings,
		Type:         req.Type,
		Filter:       req.Filter,
		Description:  req.Description,
		CreatedDate:  now,
		ModifiedDate: now,
	}
	if err := s.products.Save(ctx, product); err != nil {
		return nil, fmt.Errorf("failed to create product: %w", err)
	}
	s.mutations.Add(ctx, 1, metric.WithAttributes(attribute.String("operation", "create")))
	s.publish(ctx, events.ProductCreatedEvent{
		ProductID:   product.ProductID,
		ProductName: product.ProductName,
		CreatedAt:   now,
	})
	return s.ListProducts(ctx)
}

// DeleteProduct removes the product record. The attached image is left in the blob store unless
// CleanupOnDelete is set, in which case a failed blob delete is logged and ignored.
// Popularity records referencing the product are not touched here; a ProductDeletedEvent is published instead.
func (s *Service) DeleteProduct(ctx context.Context, id uuid.UUID) ([]ProductDto, error) {
	product, err := s.products.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch product by ID %s: %w", id, err)
	}
	if err := s.products.DeleteByID(ctx, id); err != nil {
		return nil, fmt.Errorf("failed to delete product with ID %s: %w", id, err)
	}
	s.mutations.Add(ctx, 1, metric.WithAttributes(attribute.String("operation", "delete")))

	if s.cfg.CleanupOnDelete && product.ImageLink != "" {
		path := blob.Path(s.cfg.Namespace, id)
		if err := s.blobs.Delete(ctx, path, product.ImageLink); err != nil {
			s.logger.WarnContext(ctx, "failed to delete product image",
				slog.String("product_id", id.String()),
				slog.String("path", path),
				slog.String("name", product.ImageLink),
				slog.Any("error", err))
		}
	}
	s.publish(ctx, events.ProductDeletedEvent{ProductID: id, DeletedAt: s.clock.Now()})
	return s.ListProducts(ctx)
}

func (s *Service) AttachImage(ctx context.Context, id uuid.UUID, file blob.File) ([]ProductDto, error) {
	product, err := s.products.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch product by ID %s: %w", id, err)
	}
	if err := s.cfg.Policy.Validate(file); err != nil {
		s.countAttachment(ctx, "invalid")
		return nil, err
	}

	metadata := blob.ExtractMetadata(file)
	path := blob.Path(s.cfg.Namespace, id)
	name := blob.FileName(file.Name)
	if err := s.blobs.Put(ctx, path, name, metadata, file.Body, file.Size); err != nil {
		s.countAttachment(ctx, "failed")
		return nil, fmt.Errorf("%w: %w", perrors.ErrAttachmentFailed, err)
	}

	product.ImageLink = name
	product.ModifiedDate = s.clock.Now()
	if err := s.products.Save(ctx, *product); err != nil {
		return nil, fmt.Errorf("failed to update image of product with ID %s: %w", id, err)
	}
	s.countAttachment(ctx, "ok")
	s.logger.InfoContext(ctx, "product image attached",
		slog.String("product_id", id.String()),
		slog.String("path", path),
		slog.String("name", name),
		slog.Int64("size", file.Size))
	s.publish(ctx, events.ProductImageAttachedEvent{
		ProductID:  id,
		ImageLink:  name,
		AttachedAt: product.ModifiedDate,
	})
	return s.ListProducts(ctx)
}

func (s *Service) FetchImage(ctx context.Context, id uuid.UUID) ([]byte, error) {
	product, err := s.products.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch product by ID %s: %w", id, err)
	}
	if product.ImageLink == "" {
		return nil, fmt.Errorf("%w: product %s has no image", perrors.ErrImageNotFound, id)
	}
	data, err := s.blobs.Get(ctx, blob.Path(s.cfg.Namespace, id), product.ImageLink)
	if err != nil {
		if errors.Is(err, blob.ErrObjectNotFound) {
			return nil, fmt.Errorf("%w: %w", perrors.ErrImageNotFound, err)
		}
		return nil, fmt.Errorf("failed to fetch image of product with ID %s: %w", id, err)
	}
	return data, nil
}

func (s *Service) countAttachment(ctx context.Context, result string) {
	s.attachments.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}

// publish sends the event. The write it describes is already committed, so failures are only logged.
func (s *Service) publish(ctx context.Context, event messaging.Event) {
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish event",
			slog.String("subject", event.Subject()),
			slog.Any("error", err))
	}
}
