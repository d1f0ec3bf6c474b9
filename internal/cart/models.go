package cart

import (
	"time"

	"github.com/shopspring/decimal"
)

// UnknownSupplier is the group key for items without a supplier id.
const UnknownSupplier = "unknown"

type Item struct {
	ID               string          `json:"id"`
	SupplierID       string          `json:"supplierId"`
	SupplierName     string          `json:"supplierName"`
	ProductName      string          `json:"productName"`
	Price            decimal.Decimal `json:"price"`
	Quantity         int             `json:"quantity"`
	Subtotal         decimal.Decimal `json:"subtotal"`
	ShippingCost     decimal.Decimal `json:"shippingCost"`
	Size             string          `json:"size,omitempty"`
	Color            string          `json:"color,omitempty"`
	DeliveryLocation string          `json:"deliveryLocation,omitempty"`
	ProductImage     string          `json:"productImage,omitempty"`
	CreatedAt        time.Time       `json:"createdAt"`
}

// GroupKey is the supplier partition the item belongs to.
func (i Item) GroupKey() string {
	if i.SupplierID == "" {
		return UnknownSupplier
	}
	return i.SupplierID
}

// WithQuantity returns a copy with the quantity changed and subtotal recomputed.
func (i Item) WithQuantity(q int) Item {
	i.Quantity = q
	i.Subtotal = i.Price.Mul(decimal.NewFromInt(int64(q)))
	return i
}

type Group struct {
	SupplierID   string          `json:"supplierId"`
	SupplierName string          `json:"supplierName"`
	Items        []Item          `json:"items"`
	Subtotal     decimal.Decimal `json:"subtotal"`
	Shipping     decimal.Decimal `json:"shipping"`
	VAT          decimal.Decimal `json:"vat"`
	Total        decimal.Decimal `json:"total"`
}

type Summary struct {
	Groups   []Group         `json:"groups"`
	Subtotal decimal.Decimal `json:"subtotal"`
	Shipping decimal.Decimal `json:"shipping"`
	VAT      decimal.Decimal `json:"vat"`
	Total    decimal.Decimal `json:"total"`
}

// Group returns the partition for supplierID, if present.
func (s Summary) Group(supplierID string) (Group, bool) {
	if supplierID == "" {
		supplierID = UnknownSupplier
	}
	for _, g := range s.Groups {
		if g.SupplierID == supplierID {
			return g, true
		}
	}
	return Group{}, false
}
