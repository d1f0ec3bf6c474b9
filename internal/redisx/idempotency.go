package redisx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const pendingMarker = "pending"

// ErrInFlight means another request holding the same key has not finished yet.
var ErrInFlight = errors.New("idempotency: request with this key is still in flight")

// StoredResponse is the replayable outcome of a completed request.
type StoredResponse struct {
	Status int             `json:"status"`
	Body   json.RawMessage `json:"body"`
}

// Idempotency reserves caller-supplied keys so a retried request replays the
// first response instead of reaching the gateway twice.
type Idempotency struct {
	RDB redis.Cmdable
}

// Begin reserves scope/key. A nil response with a nil error means the caller
// owns the key and must call Complete or Release.
func (i *Idempotency) Begin(ctx context.Context, scope, key string) (*StoredResponse, error) {
	k := fmt.Sprintf(KeyIdempotency, scope, key)
	ok, err := i.RDB.SetNX(ctx, k, pendingMarker, TTLPending).Result()
	if err != nil {
		return nil, fmt.Errorf("reserve idempotency key: %w", err)
	}
	if ok {
		return nil, nil
	}

	val, err := i.RDB.Get(ctx, k).Result()
	if errors.Is(err, redis.Nil) || val == pendingMarker {
		return nil, ErrInFlight
	}
	if err != nil {
		return nil, fmt.Errorf("read idempotency key: %w", err)
	}
	var sr StoredResponse
	if err := json.Unmarshal([]byte(val), &sr); err != nil {
		return nil, fmt.Errorf("decode stored response: %w", err)
	}
	return &sr, nil
}

func (i *Idempotency) Complete(ctx context.Context, scope, key string, status int, body any) error {
	b, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode response: %w", err)
	}
	v, err := json.Marshal(StoredResponse{Status: status, Body: b})
	if err != nil {
		return fmt.Errorf("encode stored response: %w", err)
	}
	return i.RDB.Set(ctx, fmt.Sprintf(KeyIdempotency, scope, key), v, TTLIdempotency).Err()
}

// Release drops a reservation after a failed attempt so the caller may retry.
func (i *Idempotency) Release(ctx context.Context, scope, key string) error {
	return i.RDB.Del(ctx, fmt.Sprintf(KeyIdempotency, scope, key)).Err()
}
