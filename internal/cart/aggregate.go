package cart

import (
	"github.com/shopspring/decimal"

	"github.com/ariefcatur/marketplace-checkout/internal/money"
)

// Aggregate partitions a full cart snapshot by supplier. Groups appear in the
// order their first item appears; items keep their snapshot order. VAT is taken
// on each group's subtotal+shipping, never per item.
func Aggregate(items []Item) Summary {
	index := map[string]int{}
	var groups []Group
	for _, it := range items {
		key := it.GroupKey()
		i, ok := index[key]
		if !ok {
			i = len(groups)
			index[key] = i
			groups = append(groups, Group{SupplierID: key, SupplierName: it.SupplierName})
		}
		g := &groups[i]
		if g.SupplierName == "" {
			g.SupplierName = it.SupplierName
		}
		g.Items = append(g.Items, it)
		g.Subtotal = g.Subtotal.Add(it.Subtotal)
		g.Shipping = g.Shipping.Add(it.ShippingCost)
	}

	sum := Summary{Groups: groups}
	for i := range sum.Groups {
		g := &sum.Groups[i]
		g.VAT, g.Total = Totals(g.Subtotal, g.Shipping)
		sum.Subtotal = sum.Subtotal.Add(g.Subtotal)
		sum.Shipping = sum.Shipping.Add(g.Shipping)
		sum.VAT = sum.VAT.Add(g.VAT)
		sum.Total = sum.Total.Add(g.Total)
	}
	if sum.Groups == nil {
		sum.Groups = []Group{}
	}
	return sum
}

// Totals returns vat = round2((subtotal+shipping)*0.15) and
// total = round2(subtotal+shipping+vat).
func Totals(subtotal, shipping decimal.Decimal) (vat, total decimal.Decimal) {
	base := subtotal.Add(shipping)
	vat = money.VAT(base)
	total = money.Round2(base.Add(vat))
	return vat, total
}

// ForSupplier returns the items of one supplier partition, in snapshot order.
func ForSupplier(items []Item, supplierID string) []Item {
	if supplierID == "" {
		supplierID = UnknownSupplier
	}
	var out []Item
	for _, it := range items {
		if it.GroupKey() == supplierID {
			out = append(out, it)
		}
	}
	return out
}
