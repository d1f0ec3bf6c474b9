package payments

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/ariefcatur/marketplace-checkout/internal/apperr"
	kafkax "github.com/ariefcatur/marketplace-checkout/internal/kafka"
	"github.com/ariefcatur/marketplace-checkout/internal/logging"
	"github.com/ariefcatur/marketplace-checkout/internal/orders"
)

// OrderSink writes orders that a gateway has already accepted. A failed write
// is handed to the retry queue; only when that also fails does the caller see
// an error.
type OrderSink struct {
	Orders orders.Store
	Retry  orders.RetryQueue
	Events EventPublisher
	Log    *zap.Logger
}

func (s *OrderSink) Save(ctx context.Context, o orders.Order) (orders.Order, error) {
	log := s.logger()
	saved, err := s.Orders.UpsertOrder(ctx, o)
	if err == nil {
		if s.Events != nil {
			if perr := s.Events.OrderPlaced(ctx, saved); perr != nil {
				log.Warn("order event not published", zap.String("order_id", saved.ID), zap.Error(perr))
			}
		}
		return saved, nil
	}

	log.Error("order write failed after gateway confirmation",
		zap.String("order_id", o.ID), zap.ByteString("order", kafkax.MustMarshal(o)), zap.Error(err))
	if s.Retry == nil {
		return orders.Order{}, apperr.Persistence("Payment confirmed but the order could not be saved", err)
	}
	qerr := s.Retry.EnqueuePersist(ctx, o, 0, err)
	if qerr == nil {
		log.Warn("order queued for persistence retry", zap.String("order_id", o.ID))
		return o, nil
	}
	log.Error("order retry enqueue failed", zap.String("order_id", o.ID), zap.Error(qerr))
	return orders.Order{}, apperr.Persistence("Payment confirmed but the order could not be saved", errors.Join(err, qerr))
}

func (s *OrderSink) logger() *zap.Logger { return logging.OrNop(s.Log) }
