package cart

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func item(id, supplier string, subtotal, shipping string) Item {
	return Item{
		ID:           id,
		SupplierID:   supplier,
		SupplierName: "Supplier " + supplier,
		ProductName:  "product " + id,
		Price:        dec(subtotal),
		Quantity:     1,
		Subtotal:     dec(subtotal),
		ShippingCost: dec(shipping),
	}
}

func TestTotals(t *testing.T) {
	vat, total := Totals(dec("1000.00"), dec("50.00"))
	assert.Equal(t, "157.50", vat.StringFixed(2))
	assert.Equal(t, "1207.50", total.StringFixed(2))
}

func TestAggregateTwoSuppliers(t *testing.T) {
	items := []Item{
		item("a1", "A", "200", "20"),
		item("b1", "B", "300", "0"),
		item("a2", "A", "300", "0"),
	}

	sum := Aggregate(items)

	require.Len(t, sum.Groups, 2)
	a, b := sum.Groups[0], sum.Groups[1]

	assert.Equal(t, "A", a.SupplierID)
	assert.Equal(t, []string{"a1", "a2"}, []string{a.Items[0].ID, a.Items[1].ID})
	assert.True(t, dec("500").Equal(a.Subtotal))
	assert.True(t, dec("20").Equal(a.Shipping))
	assert.True(t, dec("78").Equal(a.VAT))
	assert.True(t, dec("598").Equal(a.Total))

	assert.Equal(t, "B", b.SupplierID)
	assert.True(t, dec("300").Equal(b.Subtotal))
	assert.True(t, dec("45").Equal(b.VAT))
	assert.True(t, dec("345").Equal(b.Total))

	assert.True(t, dec("943").Equal(sum.Total))
	assert.True(t, dec("123").Equal(sum.VAT))
}

func TestAggregateUnknownSupplier(t *testing.T) {
	sum := Aggregate([]Item{item("x", "", "10", "0"), item("y", "S1", "5", "0")})

	g, ok := sum.Group("")
	require.True(t, ok)
	assert.Equal(t, UnknownSupplier, g.SupplierID)
	assert.Len(t, g.Items, 1)

	_, ok = sum.Group("missing")
	assert.False(t, ok)
}

func TestAggregateVATOnCombinedBase(t *testing.T) {
	// Per-item VAT would round 0.15*0.03 twice; the group rounds once.
	sum := Aggregate([]Item{item("1", "A", "0.03", "0"), item("2", "A", "0.03", "0")})
	assert.Equal(t, "0.01", sum.Groups[0].VAT.StringFixed(2))
}

func TestAggregateEmpty(t *testing.T) {
	sum := Aggregate(nil)
	assert.NotNil(t, sum.Groups)
	assert.Empty(t, sum.Groups)
	assert.True(t, sum.Total.IsZero())
}

func TestWithQuantityRecomputesSubtotal(t *testing.T) {
	it := Item{Price: dec("12.50"), Quantity: 1, Subtotal: dec("12.50")}
	got := it.WithQuantity(4)
	assert.Equal(t, 4, got.Quantity)
	assert.True(t, dec("50").Equal(got.Subtotal))
	assert.Equal(t, 1, it.Quantity)
}

func TestForSupplier(t *testing.T) {
	items := []Item{item("a1", "A", "1", "0"), item("b1", "B", "1", "0"), item("a2", "A", "1", "0")}
	got := ForSupplier(items, "A")
	require.Len(t, got, 2)
	assert.Equal(t, "a2", got[1].ID)
	assert.Empty(t, ForSupplier(items, "C"))
}
