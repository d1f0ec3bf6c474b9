// Package payments runs the buyer-facing payment flows: card vaulting, card
// checkout and verification against HyperPay, and SADAD invoices through
// GoPay. Gateways and stores are injected so every flow can run against fakes.
package payments

import (
	"context"

	"github.com/ariefcatur/marketplace-checkout/internal/cart"
	"github.com/ariefcatur/marketplace-checkout/internal/gopay"
	"github.com/ariefcatur/marketplace-checkout/internal/hyperpay"
	"github.com/ariefcatur/marketplace-checkout/internal/orders"
)

type CardGateway interface {
	CreateCheckout(ctx context.Context, req hyperpay.CheckoutRequest) (hyperpay.Checkout, error)
	Lookup(ctx context.Context, resourcePath string) (hyperpay.PaymentStatus, error)
}

type InvoiceGateway interface {
	Upload(ctx context.Context, bill gopay.Bill) (gopay.UploadResult, error)
	RedirectURL(sadadNumber string) string
}

type CardStore interface {
	UpsertCard(ctx context.Context, c orders.Card) (orders.Card, error)
	ListCards(ctx context.Context, buyerID, supplierID string) ([]orders.Card, error)
}

type CartStore interface {
	Items(ctx context.Context, buyerID string) ([]cart.Item, error)
	ClearSupplier(ctx context.Context, buyerID, supplierID string) error
}

type EventPublisher interface {
	OrderPlaced(ctx context.Context, o orders.Order) error
}
