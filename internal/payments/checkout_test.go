package payments

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ariefcatur/marketplace-checkout/internal/apperr"
	"github.com/ariefcatur/marketplace-checkout/internal/cart"
	"github.com/ariefcatur/marketplace-checkout/internal/checkout"
	"github.com/ariefcatur/marketplace-checkout/internal/hyperpay"
	"github.com/ariefcatur/marketplace-checkout/internal/orders"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func twoSupplierCart() []cart.Item {
	return []cart.Item{
		{ID: "a1", SupplierID: "A", ProductName: "Bolts", Price: d("100"), Quantity: 2, Subtotal: d("200"), ShippingCost: d("20")},
		{ID: "b1", SupplierID: "B", ProductName: "Gloves", Price: d("300"), Quantity: 1, Subtotal: d("300"), ShippingCost: d("0")},
		{ID: "a2", SupplierID: "A", ProductName: "Nuts", Price: d("50"), Quantity: 1, Subtotal: d("50"), ShippingCost: d("0")},
	}
}

type checkoutFixture struct {
	svc    *CheckoutService
	gw     *fakeCardGateway
	carts  *fakeCarts
	orders *fakeOrders
	queue  *fakeQueue
	events *fakeEvents
}

func newCheckoutFixture() *checkoutFixture {
	f := &checkoutFixture{
		gw:     &fakeCardGateway{checkout: hyperpay.Checkout{ID: "chk_1"}},
		carts:  &fakeCarts{items: map[string][]cart.Item{"buyer-1": twoSupplierCart()}},
		orders: newFakeOrders(),
		queue:  &fakeQueue{},
		events: &fakeEvents{},
	}
	f.svc = &CheckoutService{
		Gateway:  f.gw,
		Carts:    f.carts,
		Sink:     &OrderSink{Orders: f.orders, Retry: f.queue, Events: f.events},
		Currency: "SAR",
		Now:      func() time.Time { return time.UnixMilli(1700000000000) },
	}
	return f
}

func succeeded() hyperpay.PaymentStatus {
	return hyperpay.PaymentStatus{
		ID:           "8ac7a4a1",
		Amount:       ptr("310.50"),
		PaymentType:  ptr("DB"),
		PaymentBrand: ptr("VISA"),
		Result:       hyperpay.Result{Code: "000.100.110", Description: "Request successfully processed"},
	}
}

func TestCreateSessionUsesSupplierTotalAndKey(t *testing.T) {
	f := newCheckoutFixture()
	sess := checkout.NewSession("buyer-1", "A")

	res, err := f.svc.CreateSession(context.Background(), sess, SessionRequest{
		BuyerID: "buyer-1", SupplierID: "A", Email: "b@example.com", IdempotencyKey: "k-1",
	})

	require.NoError(t, err)
	assert.Equal(t, "chk_1", res.CheckoutID)
	assert.Equal(t, "A_k-1", res.MerchantTransactionID)
	// (250 + 20) * 1.15
	assert.Equal(t, "310.5", f.gw.requests[0].Amount.String())
	assert.Equal(t, checkout.PhaseSessionCreated, sess.Phase)
	require.NotNil(t, sess.Payment)
	assert.Equal(t, "chk_1", sess.Payment.CheckoutID)
}

func TestCreateSessionWithoutKeyUsesUnixMillis(t *testing.T) {
	f := newCheckoutFixture()
	res, err := f.svc.CreateSession(context.Background(), nil, SessionRequest{SupplierID: "A", Amount: d("10")})
	require.NoError(t, err)
	assert.Equal(t, "A_1700000000000", res.MerchantTransactionID)
}

func TestCreateSessionEmptyPartitionIsRejected(t *testing.T) {
	f := newCheckoutFixture()
	sess := checkout.NewSession("buyer-1", "C")

	_, err := f.svc.CreateSession(context.Background(), sess, SessionRequest{BuyerID: "buyer-1", SupplierID: "C"})

	var e *apperr.Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, apperr.KindValidation, e.Kind)
	assert.Equal(t, "cart_empty", e.Code)
	assert.Empty(t, f.gw.requests)
	assert.Equal(t, checkout.PhaseIdle, sess.Phase)
	assert.Nil(t, sess.Payment)
}

func TestCreateSessionNeedsPositiveAmount(t *testing.T) {
	f := newCheckoutFixture()

	_, err := f.svc.CreateSession(context.Background(), nil, SessionRequest{SupplierID: "A"})
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	_, err = f.svc.CreateSession(context.Background(), nil, SessionRequest{SupplierID: "A", Amount: d("-5")})
	var e *apperr.Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, "amount_required", e.Code)
	assert.Empty(t, f.gw.requests)
}

func TestCreateSessionGatewayFailureKeepsPhase(t *testing.T) {
	f := newCheckoutFixture()
	f.gw.checkoutErr = apperr.Gateway(http.StatusBadGateway, "HyperPay rejected the checkout", nil, nil)
	sess := checkout.NewSession("buyer-1", "A")

	_, err := f.svc.CreateSession(context.Background(), sess, SessionRequest{SupplierID: "A", Amount: d("10")})

	assert.Equal(t, http.StatusBadGateway, apperr.HTTPStatus(err))
	assert.Equal(t, checkout.PhaseIdle, sess.Phase)
	assert.NotEmpty(t, sess.LastError)
}

func TestCreateSessionRejectedWhileVerifying(t *testing.T) {
	f := newCheckoutFixture()
	sess := checkout.NewSession("buyer-1", "A")
	sess.Phase = checkout.PhaseVerifying

	_, err := f.svc.CreateSession(context.Background(), sess, SessionRequest{SupplierID: "A", Amount: d("10")})

	assert.True(t, apperr.Is(err, apperr.KindConflict))
	assert.Empty(t, f.gw.requests)
}

func TestVerifySuccessWritesOrderAndClearsOnlySupplier(t *testing.T) {
	f := newCheckoutFixture()
	f.gw.status = succeeded()
	sess := checkout.NewSession("buyer-1", "A")
	sess.Phase = checkout.PhaseSessionCreated
	sess.Selector.Method = checkout.MethodCard

	o, err := f.svc.VerifyPayment(context.Background(), sess, VerifyRequest{
		ResourcePath: "/v1/checkouts/chk_1/payment",
		Customer:     orders.Customer{Name: "Sara", Email: "sara@example.com"},
	})

	require.NoError(t, err)
	assert.Equal(t, "8ac7a4a1", o.ID)
	assert.Equal(t, orders.StatusCompleted, o.Status)
	assert.Equal(t, orders.MethodCardGateway, o.Method)
	assert.Equal(t, "VISA", o.CardBrand)
	assert.Len(t, o.Items, 2)
	assert.True(t, d("310.50").Equal(o.Amount))

	assert.Equal(t, []string{"buyer-1/A"}, f.carts.cleared)
	require.Len(t, f.carts.items["buyer-1"], 1)
	assert.Equal(t, "B", f.carts.items["buyer-1"][0].SupplierID)

	assert.Equal(t, checkout.PhaseIdle, sess.Phase)
	assert.Equal(t, checkout.MethodUnset, sess.Selector.Method)
	assert.Equal(t, []string{"8ac7a4a1"}, f.events.placed)
}

func TestVerifyDeclinedWritesNothing(t *testing.T) {
	f := newCheckoutFixture()
	f.gw.status = hyperpay.PaymentStatus{ID: "tx", Result: hyperpay.Result{Code: "800.100.151", Description: "transaction declined (invalid card)"}}
	sess := checkout.NewSession("buyer-1", "A")
	sess.Phase = checkout.PhaseSessionCreated

	_, err := f.svc.VerifyPayment(context.Background(), sess, VerifyRequest{ResourcePath: "/v1/checkouts/chk_1/payment"})

	var e *apperr.Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, "transaction declined (invalid card)", e.Message)
	assert.Equal(t, CodePaymentDeclined, e.Code)
	assert.Zero(t, f.orders.writes)
	assert.Empty(t, f.carts.cleared)
	assert.Equal(t, checkout.PhaseFailed, sess.Phase)

	// a failed attempt may open a new session
	_, err = f.svc.CreateSession(context.Background(), sess, SessionRequest{SupplierID: "A", Amount: d("10")})
	require.NoError(t, err)
	assert.Equal(t, checkout.PhaseSessionCreated, sess.Phase)
}

func TestVerifyUnreachableGatewayKeepsSessionOpen(t *testing.T) {
	for name, lookupErr := range map[string]error{
		"transport":    apperr.Gateway(0, "hyperpay request failed", nil, errors.New("dial tcp: timeout")),
		"circuit_open": apperr.Gateway(http.StatusServiceUnavailable, "hyperpay temporarily unavailable", nil, nil),
	} {
		t.Run(name, func(t *testing.T) {
			f := newCheckoutFixture()
			f.gw.lookupErr = lookupErr
			sess := checkout.NewSession("buyer-1", "A")
			sess.Phase = checkout.PhaseSessionCreated

			_, err := f.svc.VerifyPayment(context.Background(), sess, VerifyRequest{ResourcePath: "/v1/checkouts/chk_1/payment"})
			require.Error(t, err)
			assert.Equal(t, checkout.PhaseSessionCreated, sess.Phase)
			assert.NotEmpty(t, sess.LastError)

			// the retry goes through once the gateway answers
			f.gw.lookupErr = nil
			f.gw.status = succeeded()
			_, err = f.svc.VerifyPayment(context.Background(), sess, VerifyRequest{ResourcePath: "/v1/checkouts/chk_1/payment"})
			require.NoError(t, err)
			assert.Equal(t, checkout.PhaseCompleted, sess.Phase)
		})
	}
}

func TestVerifyGatewayRejectionFailsSession(t *testing.T) {
	f := newCheckoutFixture()
	f.gw.lookupErr = apperr.Gateway(http.StatusBadGateway, "HyperPay status lookup failed", nil, nil)
	sess := checkout.NewSession("buyer-1", "A")
	sess.Phase = checkout.PhaseSessionCreated

	_, err := f.svc.VerifyPayment(context.Background(), sess, VerifyRequest{ResourcePath: "/v1/checkouts/chk_1/payment"})
	require.Error(t, err)
	assert.Equal(t, checkout.PhaseFailed, sess.Phase)
}

func TestVerifyPersistenceFailureIsQueued(t *testing.T) {
	f := newCheckoutFixture()
	f.gw.status = succeeded()
	f.orders.failN = 1

	o, err := f.svc.VerifyPayment(context.Background(), nil, VerifyRequest{
		ResourcePath: "/v1/checkouts/chk_1/payment", BuyerID: "buyer-1", SupplierID: "A",
	})

	require.NoError(t, err)
	assert.Equal(t, "8ac7a4a1", o.ID)
	require.Len(t, f.queue.queued, 1)
	assert.Equal(t, "8ac7a4a1", f.queue.queued[0].ID)
	assert.Equal(t, []string{"buyer-1/A"}, f.carts.cleared)
}

func TestVerifyPersistenceAndQueueFailure(t *testing.T) {
	f := newCheckoutFixture()
	f.gw.status = succeeded()
	f.orders.failN = 1
	f.queue.err = errors.New("kafka down")
	sess := checkout.NewSession("buyer-1", "A")
	sess.Phase = checkout.PhaseSessionCreated

	_, err := f.svc.VerifyPayment(context.Background(), sess, VerifyRequest{ResourcePath: "/v1/checkouts/chk_1/payment"})

	assert.True(t, apperr.Is(err, apperr.KindPersistence))
	assert.Empty(t, f.carts.cleared)
	assert.Equal(t, checkout.PhaseFailed, sess.Phase)
}

func TestVerifyRequiresResourcePath(t *testing.T) {
	f := newCheckoutFixture()
	_, err := f.svc.VerifyPayment(context.Background(), nil, VerifyRequest{})
	assert.True(t, apperr.Is(err, apperr.KindValidation))
	assert.Empty(t, f.gw.lookups)
}
