// Package popularity keeps popularity records consistent with the catalog.
// It consumes product deletion events and removes the records that reference the deleted product.
package popularity

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/abgdnv/catalog/internal/events"
	"github.com/abgdnv/catalog/internal/store"
	"github.com/abgdnv/catalog/pkg/config"
	pnats "github.com/abgdnv/catalog/pkg/nats"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

const instrumentationName = "github.com/abgdnv/catalog/internal/popularity"

// ackableMsg is the part of jetstream.Msg the handler needs.
type ackableMsg interface {
	Data() []byte
	Subject() string
	Headers() nats.Header
	Ack() error
	Nak() error
}

// Subscriber removes popularity records of deleted products.
type Subscriber struct {
	js      jetstream.JetStream
	cfg     config.SubscriberConfig
	records store.PopularityStore
	logger  *slog.Logger
}

func NewSubscriber(js jetstream.JetStream, cfg config.SubscriberConfig, records store.PopularityStore, logger *slog.Logger) *Subscriber {
	return &Subscriber{
		js:      js,
		cfg:     cfg,
		records: records,
		logger:  logger.With("component", "popularity_subscriber"),
	}
}

// Start creates the durable consumer and runs the workers until ctx is cancelled.
func (s *Subscriber) Start(ctx context.Context) error {
	consumer, err := s.js.CreateOrUpdateConsumer(ctx, s.cfg.Stream, jetstream.ConsumerConfig{
		FilterSubject: s.cfg.Subject,
		Durable:       s.cfg.Consumer,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       s.cfg.AckWait,
		MaxDeliver:    s.cfg.MaxDeliver,
	})
	if err != nil {
		return err
	}
	g, gCtx := errgroup.WithContext(ctx)
	for range s.cfg.Workers {
		g.Go(func() error {
			return s.runWorker(gCtx, consumer)
		})
	}
	return g.Wait()
}

// runWorker fetches batches from the consumer and handles them one message at a time.
func (s *Subscriber) runWorker(ctx context.Context, consumer jetstream.Consumer) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			batch, err := consumer.Fetch(s.cfg.Batch, jetstream.FetchMaxWait(s.cfg.Timeout))
			if err != nil {
				if errors.Is(err, nats.ErrTimeout) {
					continue
				}
				s.logger.ErrorContext(ctx, "failed to fetch messages", slog.Any("error", err))
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(s.cfg.Interval):
				}
				continue
			}
			for msg := range batch.Messages() {
				s.handleMessage(ctx, msg)
			}
		}
	}
}

// handleMessage deletes the records of the product named in the event, in a span linked to the publisher's trace.
// Malformed payloads are acked and dropped; store failures are nacked for redelivery.
func (s *Subscriber) handleMessage(ctx context.Context, msg ackableMsg) {
	if msg == nil {
		s.logger.ErrorContext(ctx, "received nil message")
		return
	}
	ctx, span := otel.Tracer(instrumentationName).Start(pnats.ExtractContext(ctx, msg.Headers()), "popularity.handle",
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(attribute.String("messaging.destination.name", msg.Subject())))
	defer span.End()

	var event events.ProductDeletedEvent
	if err := json.Unmarshal(msg.Data(), &event); err != nil {
		span.SetStatus(codes.Error, "malformed payload")
		s.logger.ErrorContext(ctx, "failed to unmarshal message", slog.Any("error", err), slog.String("subject", msg.Subject()))
		s.ack(ctx, msg)
		return
	}
	span.SetAttributes(attribute.String("product_id", event.ProductID.String()))

	removed, err := s.records.DeleteByProductID(ctx, event.ProductID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "delete failed")
		s.logger.ErrorContext(ctx, "failed to delete popularity records",
			slog.String("product_id", event.ProductID.String()),
			slog.Any("error", err))
		if err := msg.Nak(); err != nil {
			s.logger.ErrorContext(ctx, "failed to nack message", slog.Any("error", err))
		}
		return
	}

	s.logger.InfoContext(ctx, "popularity records removed",
		slog.String("product_id", event.ProductID.String()),
		slog.Int64("removed", removed),
		slog.String("deleted_at", event.DeletedAt.Format(time.RFC3339)))
	s.ack(ctx, msg)
}

func (s *Subscriber) ack(ctx context.Context, msg ackableMsg) {
	if err := msg.Ack(); err != nil {
		s.logger.ErrorContext(ctx, "failed to ack message", slog.Any("error", err))
	}
}
