package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ariefcatur/marketplace-checkout/internal/redisx"
)

// Store persists sessions in Redis with a sliding TTL; an expired or missing
// session loads as a fresh idle one.
type Store struct {
	RDB redis.Cmdable
	Now func() time.Time
}

func NewStore(rdb redis.Cmdable) *Store {
	return &Store{RDB: rdb, Now: time.Now}
}

func (s *Store) Load(ctx context.Context, buyerID, supplierID string) (*Session, error) {
	data, err := s.RDB.Get(ctx, sessionKey(buyerID, supplierID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return NewSession(buyerID, supplierID), nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}
	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("unmarshal session failed: %w", err)
	}
	if sess.Phase == "" {
		sess.Phase = PhaseIdle
	}
	return &sess, nil
}

func (s *Store) Save(ctx context.Context, sess *Session) error {
	sess.UpdatedAt = s.Now().UTC()
	b, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("marshal session failed: %w", err)
	}
	if err := s.RDB.Set(ctx, sessionKey(sess.BuyerID, sess.SupplierID), b, redisx.TTLSession).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

// Delete abandons the session. No durable record is left behind.
func (s *Store) Delete(ctx context.Context, buyerID, supplierID string) error {
	if err := s.RDB.Del(ctx, sessionKey(buyerID, supplierID)).Err(); err != nil {
		return fmt.Errorf("redis delete failed: %w", err)
	}
	return nil
}

func sessionKey(buyerID, supplierID string) string {
	return fmt.Sprintf(redisx.KeyCheckoutSession, buyerID, supplierID)
}
