package orders

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/ariefcatur/marketplace-checkout/internal/cart"
	"github.com/ariefcatur/marketplace-checkout/internal/money"
)

var (
	ErrNotFound    = errors.New("order not found")
	ErrMissingID   = errors.New("order id is required")
	ErrMissingCard = errors.New("registration id is required")
)

type Repo struct{ DB *pgxpool.Pool }

// UpsertOrder writes o by id. Existing rows are merged: blank incoming fields
// keep the stored value, customer objects are merged key by key, created_at
// is kept and a completed order never returns to pending.
func (r *Repo) UpsertOrder(ctx context.Context, o Order) (Order, error) {
	if o.ID == "" {
		return Order{}, ErrMissingID
	}
	if o.Status == "" {
		o.Status = StatusPending
	}
	if o.Items == nil {
		o.Items = []cart.Item{}
	}
	customer, err := json.Marshal(o.Customer)
	if err != nil {
		return Order{}, fmt.Errorf("encode customer: %w", err)
	}
	items, err := json.Marshal(o.Items)
	if err != nil {
		return Order{}, fmt.Errorf("encode items: %w", err)
	}
	var billing []byte
	if len(o.Billing) > 0 {
		billing = o.Billing
	}

	var status string
	err = r.DB.QueryRow(ctx, `
		INSERT INTO orders(id, method, buyer_id, supplier_id, customer, items, amount, currency,
		                   status, gateway_reference, payment_type, card_brand, billing)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
		ON CONFLICT (id) DO UPDATE SET
			method            = EXCLUDED.method,
			buyer_id          = COALESCE(NULLIF(EXCLUDED.buyer_id, ''), orders.buyer_id),
			supplier_id       = COALESCE(NULLIF(EXCLUDED.supplier_id, ''), orders.supplier_id),
			customer          = orders.customer || EXCLUDED.customer,
			items             = CASE WHEN jsonb_array_length(EXCLUDED.items) > 0 THEN EXCLUDED.items ELSE orders.items END,
			amount            = EXCLUDED.amount,
			currency          = COALESCE(NULLIF(EXCLUDED.currency, ''), orders.currency),
			status            = CASE WHEN orders.status = 'completed' THEN orders.status ELSE EXCLUDED.status END,
			gateway_reference = COALESCE(NULLIF(EXCLUDED.gateway_reference, ''), orders.gateway_reference),
			payment_type      = COALESCE(NULLIF(EXCLUDED.payment_type, ''), orders.payment_type),
			card_brand        = COALESCE(NULLIF(EXCLUDED.card_brand, ''), orders.card_brand),
			billing           = COALESCE(EXCLUDED.billing, orders.billing),
			updated_at        = now()
		RETURNING status, created_at, updated_at`,
		o.ID, string(o.Method), o.BuyerID, o.SupplierID, customer, items, money.Fixed2(o.Amount), o.Currency,
		string(o.Status), o.GatewayReference, o.PaymentType, o.CardBrand, billing,
	).Scan(&status, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return Order{}, fmt.Errorf("upsert order %s: %w", o.ID, err)
	}
	o.Status = Status(status)
	return o, nil
}

func (r *Repo) GetOrder(ctx context.Context, id string) (Order, error) {
	var (
		o                        Order
		method, status, amount   string
		customer, items, billing []byte
	)
	err := r.DB.QueryRow(ctx, `
		SELECT id, method, buyer_id, supplier_id, customer, items, amount::text, currency,
		       status, gateway_reference, payment_type, card_brand, billing, created_at, updated_at
		FROM orders WHERE id=$1`, id,
	).Scan(&o.ID, &method, &o.BuyerID, &o.SupplierID, &customer, &items, &amount, &o.Currency,
		&status, &o.GatewayReference, &o.PaymentType, &o.CardBrand, &billing, &o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Order{}, ErrNotFound
	}
	if err != nil {
		return Order{}, err
	}
	o.Method = Method(method)
	o.Status = Status(status)
	if o.Amount, err = decimal.NewFromString(amount); err != nil {
		return Order{}, fmt.Errorf("order %s amount: %w", id, err)
	}
	if err := json.Unmarshal(customer, &o.Customer); err != nil {
		return Order{}, fmt.Errorf("order %s customer: %w", id, err)
	}
	if err := json.Unmarshal(items, &o.Items); err != nil {
		return Order{}, fmt.Errorf("order %s items: %w", id, err)
	}
	if len(billing) > 0 {
		o.Billing = json.RawMessage(billing)
	}
	return o, nil
}

// UpsertCard stores a vaulted token once per (buyer, registration id).
// Saving the same token again only fills in brand or last4 if they were
// missing before.
func (r *Repo) UpsertCard(ctx context.Context, c Card) (Card, error) {
	if c.RegistrationID == "" {
		return Card{}, ErrMissingCard
	}
	err := r.DB.QueryRow(ctx, `
		INSERT INTO cards(buyer_id, registration_id, supplier_id, brand, last4)
		VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (buyer_id, registration_id) DO UPDATE SET
			supplier_id = COALESCE(NULLIF(EXCLUDED.supplier_id, ''), cards.supplier_id),
			brand       = COALESCE(NULLIF(EXCLUDED.brand, ''), cards.brand),
			last4       = COALESCE(NULLIF(EXCLUDED.last4, ''), cards.last4),
			updated_at  = now()
		RETURNING supplier_id, brand, last4, created_at`,
		c.BuyerID, c.RegistrationID, c.SupplierID, c.Brand, c.Last4,
	).Scan(&c.SupplierID, &c.Brand, &c.Last4, &c.CreatedAt)
	if err != nil {
		return Card{}, fmt.Errorf("upsert card: %w", err)
	}
	c.ID = c.RegistrationID
	return c, nil
}

// ListCards returns the buyer's cards for one supplier, newest first. An
// empty supplierID lists every card of the buyer.
func (r *Repo) ListCards(ctx context.Context, buyerID, supplierID string) ([]Card, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT buyer_id, registration_id, supplier_id, brand, last4, created_at
		FROM cards
		WHERE buyer_id=$1 AND ($2 = '' OR supplier_id=$2)
		ORDER BY created_at DESC, registration_id`, buyerID, supplierID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Card{}
	for rows.Next() {
		var c Card
		if err := rows.Scan(&c.BuyerID, &c.RegistrationID, &c.SupplierID, &c.Brand, &c.Last4, &c.CreatedAt); err != nil {
			return nil, err
		}
		c.ID = c.RegistrationID
		out = append(out, c)
	}
	return out, rows.Err()
}

// Ping is used by the health check.
func (r *Repo) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return r.DB.Ping(ctx)
}
