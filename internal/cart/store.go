package cart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/ariefcatur/marketplace-checkout/internal/redisx"
)

const clearRetries = 5

// Store keeps the latest full cart snapshot per buyer in one Redis value, so
// a snapshot is never observed half-applied.
type Store struct {
	RDB *redis.Client
}

func NewStore(rdb *redis.Client) *Store {
	return &Store{RDB: rdb}
}

// Replace swaps the buyer's snapshot for items.
func (s *Store) Replace(ctx context.Context, buyerID string, items []Item) error {
	if items == nil {
		items = []Item{}
	}
	b, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("marshal cart failed: %w", err)
	}
	if err := s.RDB.Set(ctx, cartKey(buyerID), b, redisx.TTLCart).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

// Items returns the snapshot, empty when the buyer has none.
func (s *Store) Items(ctx context.Context, buyerID string) ([]Item, error) {
	return getItems(ctx, s.RDB, cartKey(buyerID))
}

// ClearSupplier drops one supplier partition and leaves the rest of the cart
// untouched. It retries when a concurrent snapshot lands mid-update.
func (s *Store) ClearSupplier(ctx context.Context, buyerID, supplierID string) error {
	key := cartKey(buyerID)
	if supplierID == "" {
		supplierID = UnknownSupplier
	}
	txf := func(tx *redis.Tx) error {
		items, err := getItems(ctx, tx, key)
		if err != nil {
			return err
		}
		kept := make([]Item, 0, len(items))
		for _, it := range items {
			if it.GroupKey() != supplierID {
				kept = append(kept, it)
			}
		}
		b, err := json.Marshal(kept)
		if err != nil {
			return fmt.Errorf("marshal cart failed: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.Set(ctx, key, b, redisx.TTLCart)
			return nil
		})
		return err
	}

	for i := 0; i < clearRetries; i++ {
		err := s.RDB.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return fmt.Errorf("clear supplier cart: %w", err)
		}
		return nil
	}
	return fmt.Errorf("clear supplier cart: %w", redis.TxFailedErr)
}

func getItems(ctx context.Context, rdb redis.Cmdable, key string) ([]Item, error) {
	data, err := rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return []Item{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}
	var items []Item
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("unmarshal cart failed: %w", err)
	}
	return items, nil
}

func cartKey(buyerID string) string {
	return fmt.Sprintf(redisx.KeyCart, buyerID)
}
