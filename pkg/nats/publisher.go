package nats

import (
	"context"
	"fmt"

	"github.com/abgdnv/catalog/pkg/messaging"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

// ContentTypeHeader names the payload encoding of a published event.
const ContentTypeHeader = "Content-Type"

const jsonContentType = "application/json"

// NatsPublisher publishes events to JetStream. The trace context of the caller travels in the message headers.
type NatsPublisher struct {
	js jetstream.JetStream
}

func NewNatsPublisher(js jetstream.JetStream) *NatsPublisher {
	return &NatsPublisher{js: js}
}

// Publish waits for the stream acknowledgement. An event whose subject no stream captures fails.
func (p *NatsPublisher) Publish(ctx context.Context, event messaging.Event) error {
	data, err := event.Payload()
	if err != nil {
		return fmt.Errorf("failed to get event payload: %w", err)
	}
	msg := &nats.Msg{
		Subject: event.Subject(),
		Data:    data,
		Header:  newHeader(ctx),
	}
	if _, err := p.js.PublishMsg(ctx, msg); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", event.Subject(), err)
	}
	return nil
}

func newHeader(ctx context.Context) nats.Header {
	header := nats.Header{}
	header.Set(ContentTypeHeader, jsonContentType)
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(header))
	return header
}

// ExtractContext returns ctx carrying the remote trace context found in header, if any.
func ExtractContext(ctx context.Context, header nats.Header) context.Context {
	return otel.GetTextMapPropagator().Extract(ctx, propagation.HeaderCarrier(header))
}
