package orders

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	kafkax "github.com/ariefcatur/marketplace-checkout/internal/kafka"
	"github.com/ariefcatur/marketplace-checkout/internal/logging"
	"github.com/ariefcatur/marketplace-checkout/internal/redisx"
)

type Writer interface {
	UpsertOrder(ctx context.Context, o Order) (Order, error)
}

type RetryQueue interface {
	EnqueuePersist(ctx context.Context, o Order, attempt int, cause error) error
}

// Retrier consumes order.persist.retry. Each delivery is one write attempt;
// a failed attempt is re-enqueued with a growing delay until MaxAttempts,
// after which the order is logged in full and dropped.
type Retrier struct {
	Store       Writer
	Queue       RetryQueue
	Redis       redis.Cmdable
	Service     string
	MaxAttempts int
	Backoff     time.Duration
	Log         *zap.Logger
}

func (r *Retrier) Handle(ctx context.Context, m kafkago.Message) error {
	log := logging.OrNop(r.Log)

	var ev Envelope
	if err := json.Unmarshal(m.Value, &ev); err != nil {
		log.Warn("skip undecodable message", zap.Int64("offset", m.Offset), zap.Error(err))
		return nil
	}
	if ev.EventType != EventOrderPersistRetry {
		return nil
	}
	p, err := kafkax.UnwrapPayload[PersistRetryPayload](ev.Payload)
	if err != nil {
		log.Warn("skip bad retry payload", zap.String("event_id", ev.EventID), zap.Error(err))
		return nil
	}
	log = log.With(zap.String("order_id", p.Order.ID), zap.Int("attempt", p.Attempt))

	// dedup: redelivery yang sama tidak boleh bikin rantai retry kedua
	dedupKey := fmt.Sprintf(redisx.KeyDedup, r.Service, ev.EventID)
	if r.Redis != nil {
		fresh, err := r.Redis.SetNX(ctx, dedupKey, 1, redisx.TTLDedup).Result()
		if err == nil && !fresh {
			log.Debug("duplicate retry delivery")
			return nil
		}
	}
	release := func() {
		if r.Redis != nil {
			_ = r.Redis.Del(context.Background(), dedupKey).Err()
		}
	}

	_, err = r.Store.UpsertOrder(ctx, p.Order)
	if err == nil {
		log.Info("order persisted by retry")
		return nil
	}

	next := p.Attempt + 1
	if r.MaxAttempts > 0 && next >= r.MaxAttempts {
		log.Error("order persistence abandoned",
			zap.Error(err), zap.String("last_error", p.LastError), zap.ByteString("order", kafkax.MustMarshal(p.Order)))
		return nil
	}

	if r.Backoff > 0 {
		t := time.NewTimer(r.Backoff * time.Duration(next))
		select {
		case <-ctx.Done():
			t.Stop()
			release()
			return ctx.Err()
		case <-t.C:
		}
	}
	if qerr := r.Queue.EnqueuePersist(ctx, p.Order, next, err); qerr != nil {
		release()
		return fmt.Errorf("re-enqueue order %s: %w", p.Order.ID, qerr)
	}
	log.Warn("order write failed, re-enqueued", zap.Int("next_attempt", next), zap.Error(err))
	return nil
}
