package orders

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/ariefcatur/marketplace-checkout/internal/redisx"
)

type Store interface {
	UpsertOrder(ctx context.Context, o Order) (Order, error)
	GetOrder(ctx context.Context, id string) (Order, error)
}

// Cache keeps a short-lived copy of each order in Redis. Writes go to the
// store first and then drop the cached copy.
type Cache struct {
	Store Store
	RDB   redis.Cmdable
}

func (c *Cache) UpsertOrder(ctx context.Context, o Order) (Order, error) {
	out, err := c.Store.UpsertOrder(ctx, o)
	if err != nil {
		return Order{}, err
	}
	_ = c.RDB.Del(ctx, fmt.Sprintf(redisx.KeyOrder, out.ID)).Err()
	return out, nil
}

func (c *Cache) GetOrder(ctx context.Context, id string) (Order, error) {
	key := fmt.Sprintf(redisx.KeyOrder, id)
	if b, err := c.RDB.Get(ctx, key).Bytes(); err == nil {
		var o Order
		if json.Unmarshal(b, &o) == nil {
			return o, nil
		}
	}

	o, err := c.Store.GetOrder(ctx, id)
	if err != nil {
		return Order{}, err
	}
	if b, err := json.Marshal(o); err == nil {
		_ = c.RDB.Set(ctx, key, b, redisx.TTLOrderCache).Err()
	}
	return o, nil
}
