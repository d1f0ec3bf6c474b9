package orders

import (
	"context"
	"strconv"
	"time"

	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"

	kafkax "github.com/ariefcatur/marketplace-checkout/internal/kafka"
)

// Producer is the subset of kafka.Producer the publisher needs.
type Producer interface {
	Publish(ctx context.Context, topic string, key, value []byte, headers ...kafkago.Header) error
	PublishSync(ctx context.Context, topic string, key, value []byte, headers ...kafkago.Header) error
}

type Publisher struct {
	Producer Producer
	Service  string
}

// OrderPlaced announces a stored order. It is fire-and-forget: the order is
// already durable when this runs.
func (p *Publisher) OrderPlaced(ctx context.Context, o Order) error {
	ev := p.envelope(EventOrderPlaced, o.ID, traceID(ctx))
	ev.Payload = kafkax.MustMarshal(OrderPlacedPayload{
		OrderID:    o.ID,
		Method:     o.Method,
		Status:     o.Status,
		BuyerID:    o.BuyerID,
		SupplierID: o.SupplierID,
		Amount:     o.Amount,
		Currency:   o.Currency,
	})
	return p.Producer.Publish(ctx, TopicOrderPlaced, PartitionKey(o.ID), kafkax.MustMarshal(ev), headers(EventOrderPlaced)...)
}

// EnqueuePersist hands an order that could not be written to the persister.
// The write is synchronous so the caller knows whether the order is safe.
func (p *Publisher) EnqueuePersist(ctx context.Context, o Order, attempt int, cause error) error {
	ev := p.envelope(EventOrderPersistRetry, o.ID, traceID(ctx))
	payload := PersistRetryPayload{Order: o, Attempt: attempt}
	if cause != nil {
		payload.LastError = cause.Error()
	}
	ev.Payload = kafkax.MustMarshal(payload)
	return p.Producer.PublishSync(ctx, TopicOrderPersistRetry, PartitionKey(o.ID), kafkax.MustMarshal(ev),
		append(headers(EventOrderPersistRetry), kafkago.Header{Key: "x-attempt", Value: []byte(strconv.Itoa(attempt))})...)
}

func (p *Publisher) envelope(eventType, orderID, trace string) Envelope {
	return Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      p.Service,
		TraceID:       trace,
		CorrelationID: orderID,
	}
}

func headers(eventType string) []kafkago.Header {
	return []kafkago.Header{
		{Key: "x-event-type", Value: []byte(eventType)},
		{Key: "x-event-version", Value: []byte("1")},
	}
}

type traceKey struct{}

// WithTraceID attaches the request id that ends up on published envelopes.
func WithTraceID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, traceKey{}, id)
}

func traceID(ctx context.Context) string {
	s, _ := ctx.Value(traceKey{}).(string)
	return s
}
