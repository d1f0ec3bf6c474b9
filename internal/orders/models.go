package orders

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ariefcatur/marketplace-checkout/internal/cart"
	"github.com/ariefcatur/marketplace-checkout/internal/checkout"
)

type Method string

const (
	MethodCardGateway    Method = "card-gateway"
	MethodInvoiceGateway Method = "invoice-gateway"
)

type Customer struct {
	Name      string             `json:"name,omitempty"`
	Email     string             `json:"email,omitempty"`
	Phone     string             `json:"phone,omitempty"`
	Addresses []checkout.Address `json:"addresses,omitempty"`
}

// Order is keyed by its business id: the gateway transaction id for card
// payments, the bill number for invoices.
type Order struct {
	ID               string          `json:"orderId"`
	Method           Method          `json:"method"`
	BuyerID          string          `json:"buyerId,omitempty"`
	SupplierID       string          `json:"supplierId,omitempty"`
	Customer         Customer        `json:"customer"`
	Items            []cart.Item     `json:"items"`
	Amount           decimal.Decimal `json:"amount"`
	Currency         string          `json:"currency"`
	Status           Status          `json:"status"`
	GatewayReference string          `json:"gatewayReference,omitempty"`
	PaymentType      string          `json:"paymentType,omitempty"`
	CardBrand        string          `json:"cardBrand,omitempty"`
	Billing          json.RawMessage `json:"billing,omitempty"`
	CreatedAt        time.Time       `json:"createdAt"`
	UpdatedAt        time.Time       `json:"updatedAt"`
}

// Card is a vaulted card token; ID is the registration id.
type Card struct {
	ID             string    `json:"id"`
	BuyerID        string    `json:"buyerId"`
	SupplierID     string    `json:"supplierId"`
	RegistrationID string    `json:"registrationId"`
	Brand          string    `json:"brand,omitempty"`
	Last4          string    `json:"last4,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
}
