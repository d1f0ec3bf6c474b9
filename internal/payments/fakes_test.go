package payments

import (
	"context"
	"errors"
	"sync"

	"github.com/ariefcatur/marketplace-checkout/internal/cart"
	"github.com/ariefcatur/marketplace-checkout/internal/gopay"
	"github.com/ariefcatur/marketplace-checkout/internal/hyperpay"
	"github.com/ariefcatur/marketplace-checkout/internal/orders"
)

type fakeCardGateway struct {
	checkout    hyperpay.Checkout
	checkoutErr error
	status      hyperpay.PaymentStatus
	lookupErr   error

	requests []hyperpay.CheckoutRequest
	lookups  []string
}

func (f *fakeCardGateway) CreateCheckout(_ context.Context, req hyperpay.CheckoutRequest) (hyperpay.Checkout, error) {
	f.requests = append(f.requests, req)
	return f.checkout, f.checkoutErr
}

func (f *fakeCardGateway) Lookup(_ context.Context, resourcePath string) (hyperpay.PaymentStatus, error) {
	f.lookups = append(f.lookups, resourcePath)
	return f.status, f.lookupErr
}

type fakeInvoiceGateway struct {
	result gopay.UploadResult
	err    error
	bills  []gopay.Bill
}

func (f *fakeInvoiceGateway) Upload(_ context.Context, bill gopay.Bill) (gopay.UploadResult, error) {
	f.bills = append(f.bills, bill)
	if f.err != nil {
		return gopay.UploadResult{}, f.err
	}
	res := f.result
	if res.BillNumber == "" && res.SadadNumber != "" {
		res.BillNumber = bill.BillNumber
	}
	return res, nil
}

func (f *fakeInvoiceGateway) RedirectURL(sadad string) string {
	return "https://pay.example/sadad?sadadNumber=" + sadad
}

// fakeOrders merges like the Postgres store: completed never goes back.
type fakeOrders struct {
	mu     sync.Mutex
	byID   map[string]orders.Order
	failN  int
	writes int
}

func newFakeOrders() *fakeOrders { return &fakeOrders{byID: map[string]orders.Order{}} }

func (f *fakeOrders) UpsertOrder(_ context.Context, o orders.Order) (orders.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes++
	if f.failN > 0 {
		f.failN--
		return orders.Order{}, errors.New("connection refused")
	}
	if cur, ok := f.byID[o.ID]; ok {
		o.Status = orders.Merge(cur.Status, o.Status)
		o.CreatedAt = cur.CreatedAt
	}
	f.byID[o.ID] = o
	return o, nil
}

func (f *fakeOrders) GetOrder(_ context.Context, id string) (orders.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.byID[id]
	if !ok {
		return orders.Order{}, orders.ErrNotFound
	}
	return o, nil
}

type cardKey struct{ buyer, registration string }

type fakeCards struct {
	byKey map[cardKey]orders.Card
	err   error
}

func newFakeCards() *fakeCards { return &fakeCards{byKey: map[cardKey]orders.Card{}} }

func (f *fakeCards) UpsertCard(_ context.Context, c orders.Card) (orders.Card, error) {
	if f.err != nil {
		return orders.Card{}, f.err
	}
	k := cardKey{c.BuyerID, c.RegistrationID}
	if cur, ok := f.byKey[k]; ok {
		if c.Brand == "" {
			c.Brand = cur.Brand
		}
		if c.Last4 == "" {
			c.Last4 = cur.Last4
		}
	}
	c.ID = c.RegistrationID
	f.byKey[k] = c
	return c, nil
}

func (f *fakeCards) ListCards(_ context.Context, buyerID, supplierID string) ([]orders.Card, error) {
	out := []orders.Card{}
	for k, c := range f.byKey {
		if k.buyer == buyerID && (supplierID == "" || c.SupplierID == supplierID) {
			out = append(out, c)
		}
	}
	return out, nil
}

type fakeCarts struct {
	items   map[string][]cart.Item
	cleared []string
}

func (f *fakeCarts) Items(_ context.Context, buyerID string) ([]cart.Item, error) {
	return f.items[buyerID], nil
}

func (f *fakeCarts) ClearSupplier(_ context.Context, buyerID, supplierID string) error {
	f.cleared = append(f.cleared, buyerID+"/"+supplierID)
	var keep []cart.Item
	for _, it := range f.items[buyerID] {
		if it.GroupKey() != supplierID {
			keep = append(keep, it)
		}
	}
	f.items[buyerID] = keep
	return nil
}

type fakeQueue struct {
	err    error
	queued []orders.Order
}

func (f *fakeQueue) EnqueuePersist(_ context.Context, o orders.Order, _ int, _ error) error {
	if f.err != nil {
		return f.err
	}
	f.queued = append(f.queued, o)
	return nil
}

type fakeEvents struct{ placed []string }

func (f *fakeEvents) OrderPlaced(_ context.Context, o orders.Order) error {
	f.placed = append(f.placed, o.ID)
	return nil
}
