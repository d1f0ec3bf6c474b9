package httpx

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ariefcatur/marketplace-checkout/internal/cart"
	"github.com/ariefcatur/marketplace-checkout/internal/checkout"
	"github.com/ariefcatur/marketplace-checkout/internal/gopay"
	"github.com/ariefcatur/marketplace-checkout/internal/hyperpay"
	"github.com/ariefcatur/marketplace-checkout/internal/orders"
	"github.com/ariefcatur/marketplace-checkout/internal/payments"
	"github.com/ariefcatur/marketplace-checkout/internal/redisx"
	"github.com/ariefcatur/marketplace-checkout/internal/rfq"
)

type stubCardGateway struct {
	mu        sync.Mutex
	status    hyperpay.PaymentStatus
	checkouts int
}

func (g *stubCardGateway) CreateCheckout(_ context.Context, _ hyperpay.CheckoutRequest) (hyperpay.Checkout, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.checkouts++
	return hyperpay.Checkout{ID: "chk-1", Code: "000.200.100"}, nil
}

func (g *stubCardGateway) Lookup(_ context.Context, _ string) (hyperpay.PaymentStatus, error) {
	return g.status, nil
}

type stubInvoiceGateway struct {
	mu      sync.Mutex
	uploads int
}

func (g *stubInvoiceGateway) Upload(_ context.Context, bill gopay.Bill) (gopay.UploadResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.uploads++
	return gopay.UploadResult{BillNumber: bill.BillNumber, SadadNumber: "SADAD-" + bill.BillNumber}, nil
}

func (g *stubInvoiceGateway) RedirectURL(sadad string) string {
	return "https://pay.example/sadad?sadadNumber=" + sadad
}

type memOrders struct {
	mu   sync.Mutex
	byID map[string]orders.Order
}

func (m *memOrders) UpsertOrder(_ context.Context, o orders.Order) (orders.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cur, ok := m.byID[o.ID]; ok {
		o.Status = orders.Merge(cur.Status, o.Status)
	}
	m.byID[o.ID] = o
	return o, nil
}

func (m *memOrders) GetOrder(_ context.Context, id string) (orders.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.byID[id]
	if !ok {
		return orders.Order{}, orders.ErrNotFound
	}
	return o, nil
}

type rfqWriter struct {
	fail map[string]bool
}

func (w rfqWriter) Create(_ context.Context, r rfq.RFQ) (rfq.Created, error) {
	if w.fail[r.Supplier.ID] {
		return rfq.Created{}, errors.New("insert rfq: connection reset")
	}
	return rfq.Created{RFQID: r.ID, ChatCreated: true}, nil
}

type testEnv struct {
	srv     *httptest.Server
	mr      *miniredis.Miniredis
	card    *stubCardGateway
	invoice *stubInvoiceGateway
	orders  *memOrders
}

func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	env := &testEnv{
		mr: mr,
		card: &stubCardGateway{status: hyperpay.PaymentStatus{
			ID:     "pay-1",
			Result: hyperpay.Result{Code: "000.000.000", Description: "Transaction succeeded"},
		}},
		invoice: &stubInvoiceGateway{},
		orders:  &memOrders{byID: map[string]orders.Order{}},
	}

	carts := cart.NewStore(rdb)
	sessions := checkout.NewStore(rdb)
	idem := &redisx.Idempotency{RDB: rdb}
	sink := &payments.OrderSink{Orders: env.orders}
	checkoutSvc := &payments.CheckoutService{Gateway: env.card, Carts: carts, Sink: sink, Currency: "SAR"}
	invoiceSvc := &payments.InvoiceService{Gateway: env.invoice, Sink: sink, Currency: "SAR"}

	r := NewRouter(RouterOptions{Health: map[string]Pinger{
		"redis": func(ctx context.Context) error { return redisx.Ping(ctx, rdb) },
	}})
	(&CheckoutHandler{Carts: carts, Sessions: sessions, Checkout: checkoutSvc, Invoice: invoiceSvc, Idem: idem}).Register(r)
	(&PaymentsHandler{Checkout: checkoutSvc, Invoice: invoiceSvc, Sessions: sessions, Idem: idem}).Register(r)
	(&OrdersHandler{Orders: env.orders}).Register(r)
	(&RFQHandler{RFQ: &rfq.Service{Store: rfqWriter{fail: map[string]bool{"sup-bad": true}}, Limit: 2}}).Register(r)

	env.srv = httptest.NewServer(r)
	t.Cleanup(env.srv.Close)
	return env
}

func (e *testEnv) do(t *testing.T, method, path string, body any, headers ...string) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, e.srv.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func testCart() []cart.Item {
	d := decimal.RequireFromString
	return []cart.Item{
		{ID: "a1", SupplierID: "sup-A", SupplierName: "Alpha", Price: d("100"), Quantity: 2, ShippingCost: d("20")},
		{ID: "b1", SupplierID: "sup-B", SupplierName: "Beta", Price: d("50"), Quantity: 1, Subtotal: d("50")},
	}
}

var testAddress = checkout.Address{ID: "addr-1", Alias: "Warehouse", AuthPersonMobile: "0598765432", IsDefault: true}

func (e *testEnv) prepareCheckout(t *testing.T, method checkout.Method) {
	t.Helper()
	require.Equal(t, http.StatusOK, e.do(t, http.MethodPut, "/api/carts/buyer-1", testCart()).StatusCode)
	require.Equal(t, http.StatusOK, e.do(t, http.MethodPut, "/api/checkout/buyer-1/sup-A/addresses", []checkout.Address{testAddress}).StatusCode)
	require.Equal(t, http.StatusOK, e.do(t, http.MethodPut, "/api/checkout/buyer-1/sup-A/payment-method", map[string]any{"method": method}).StatusCode)
}

type errResp struct {
	Error any    `json:"error"`
	Code  string `json:"code"`
}

func TestReplaceCartRecomputesSubtotals(t *testing.T) {
	env := setupTestEnv(t)

	resp := env.do(t, http.MethodPut, "/api/carts/buyer-1", testCart())
	require.Equal(t, http.StatusOK, resp.StatusCode)
	sum := decodeBody[cart.Summary](t, resp)

	require.Len(t, sum.Groups, 2)
	assert.Equal(t, "sup-A", sum.Groups[0].SupplierID)
	assert.True(t, decimal.RequireFromString("200").Equal(sum.Groups[0].Subtotal))
	assert.True(t, decimal.RequireFromString("253").Equal(sum.Groups[0].Total), sum.Groups[0].Total.String())

	resp = env.do(t, http.MethodGet, "/api/carts/buyer-1/summary", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	again := decodeBody[cart.Summary](t, resp)
	assert.True(t, sum.Total.Equal(again.Total))
}

func TestReplaceCartRejectsNegativeQuantity(t *testing.T) {
	env := setupTestEnv(t)

	resp := env.do(t, http.MethodPut, "/api/carts/buyer-1", []cart.Item{{ID: "x", Quantity: -1}})

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "invalid_cart_item", decodeBody[errResp](t, resp).Code)
}

func TestPlaceOrderNeedsAddress(t *testing.T) {
	env := setupTestEnv(t)
	require.Equal(t, http.StatusOK, env.do(t, http.MethodPut, "/api/checkout/buyer-1/sup-A/payment-method", map[string]any{"method": "card"}).StatusCode)

	resp := env.do(t, http.MethodPost, "/api/checkout/buyer-1/sup-A/place-order", map[string]any{})

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "address_missing", decodeBody[errResp](t, resp).Code)
	assert.Zero(t, env.card.checkouts)
}

func TestSelectCardNeedsCardMethod(t *testing.T) {
	env := setupTestEnv(t)
	require.Equal(t, http.StatusOK, env.do(t, http.MethodPut, "/api/checkout/buyer-1/sup-A/payment-method", map[string]any{"method": "invoice"}).StatusCode)

	resp := env.do(t, http.MethodPut, "/api/checkout/buyer-1/sup-A/card", map[string]any{"cardId": "reg-1"})

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "card_not_applicable", decodeBody[errResp](t, resp).Code)
}

func TestCardCheckoutThenVerify(t *testing.T) {
	env := setupTestEnv(t)
	env.prepareCheckout(t, checkout.MethodCard)

	resp := env.do(t, http.MethodPost, "/api/checkout/buyer-1/sup-A/place-order", map[string]any{
		"customer": map[string]any{"email": "buyer@example.com"},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	placed := decodeBody[placeOrderResp](t, resp)
	assert.Equal(t, checkout.MethodCard, placed.Method)
	assert.Equal(t, "chk-1", placed.CheckoutID)

	resp = env.do(t, http.MethodGet, "/api/checkout/buyer-1/sup-A", nil)
	sess := decodeBody[checkout.Session](t, resp)
	assert.Equal(t, checkout.PhaseSessionCreated, sess.Phase)
	require.NotNil(t, sess.Payment)

	resp = env.do(t, http.MethodPost, "/api/verify-payment", map[string]any{
		"resourcePath": "/v1/checkouts/chk-1/payment",
		"buyerId":      "buyer-1",
		"supplierId":   "sup-A",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	verified := decodeBody[verifyPaymentResp](t, resp)
	assert.True(t, verified.Success)
	assert.Equal(t, "pay-1", verified.OrderID)

	o, err := env.orders.GetOrder(context.Background(), "pay-1")
	require.NoError(t, err)
	assert.Equal(t, orders.StatusCompleted, o.Status)
	assert.True(t, decimal.RequireFromString("253").Equal(o.Amount), o.Amount.String())
	require.Len(t, o.Items, 1)
	assert.Equal(t, "a1", o.Items[0].ID)

	// only the paid supplier leaves the cart
	resp = env.do(t, http.MethodGet, "/api/carts/buyer-1/summary", nil)
	sum := decodeBody[cart.Summary](t, resp)
	require.Len(t, sum.Groups, 1)
	assert.Equal(t, "sup-B", sum.Groups[0].SupplierID)

	resp = env.do(t, http.MethodGet, "/api/checkout/buyer-1/sup-A", nil)
	sess = decodeBody[checkout.Session](t, resp)
	assert.Equal(t, checkout.PhaseIdle, sess.Phase)
	assert.Nil(t, sess.Payment)
}

func TestVerifyPaymentDeclined(t *testing.T) {
	env := setupTestEnv(t)
	env.card.status = hyperpay.PaymentStatus{Result: hyperpay.Result{Code: "800.100.151", Description: "invalid card"}}

	resp := env.do(t, http.MethodPost, "/api/verify-payment", map[string]any{"resourcePath": "/v1/checkouts/x/payment"})

	assert.Equal(t, http.StatusPaymentRequired, resp.StatusCode)
	body := decodeBody[errResp](t, resp)
	assert.Equal(t, "payment_declined", body.Code)
	assert.Equal(t, "invalid card", body.Error)
	assert.Empty(t, env.orders.byID)
}

func TestInvoicePlaceOrderReplaysWithSameKey(t *testing.T) {
	env := setupTestEnv(t)
	env.prepareCheckout(t, checkout.MethodInvoice)

	body := map[string]any{"customer": map[string]any{"firstName": "Sara", "lastName": "Ali"}}
	first := env.do(t, http.MethodPost, "/api/checkout/buyer-1/sup-A/place-order", body, HeaderIdempotencyKey, "bill-42")
	require.Equal(t, http.StatusOK, first.StatusCode)
	inv := decodeBody[placeOrderResp](t, first)
	assert.Equal(t, "bill-42", inv.BillNumber)
	assert.Equal(t, "https://pay.example/sadad?sadadNumber=SADAD-bill-42", inv.RedirectURL)

	second := env.do(t, http.MethodPost, "/api/checkout/buyer-1/sup-A/place-order", body, HeaderIdempotencyKey, "bill-42")
	require.Equal(t, http.StatusOK, second.StatusCode)
	assert.Equal(t, "true", second.Header.Get("Idempotent-Replayed"))
	assert.Equal(t, inv, decodeBody[placeOrderResp](t, second))
	assert.Equal(t, 1, env.invoice.uploads)

	o, err := env.orders.GetOrder(context.Background(), "bill-42")
	require.NoError(t, err)
	assert.Equal(t, orders.StatusPending, o.Status)
	assert.Equal(t, "SADAD-bill-42", o.GatewayReference)
	assert.Equal(t, "966598765432", o.Customer.Phone)

	// pembayaran SADAD masuk lewat notifikasi
	resp := env.do(t, http.MethodPost, "/api/payment-notification", map[string]any{
		"billNumber": "bill-42", "paymentStatus": "PAID", "paymentAmount": "253.00", "paymentDate": "2026-04-01",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	o, _ = env.orders.GetOrder(context.Background(), "bill-42")
	assert.Equal(t, orders.StatusCompleted, o.Status)
}

func TestCreateInvoiceKeyIsScopedPerBuyer(t *testing.T) {
	env := setupTestEnv(t)
	invoiceFor := func(buyer, bill string) map[string]any {
		return map[string]any{
			"buyerId": buyer, "supplierId": "sup-A", "billNumber": bill,
			"firstName": "Sara", "phone": "0598765432", "amount": "100",
			"items": []cart.Item{{ID: "a1", SupplierID: "sup-A", ProductName: "Bolts", Price: decimal.NewFromInt(100), Quantity: 1}},
		}
	}

	first := env.do(t, http.MethodPost, "/api/create-invoice", invoiceFor("buyer-1", "bill-1"), HeaderIdempotencyKey, "same-key")
	require.Equal(t, http.StatusOK, first.StatusCode)
	second := env.do(t, http.MethodPost, "/api/create-invoice", invoiceFor("buyer-2", "bill-2"), HeaderIdempotencyKey, "same-key")
	require.Equal(t, http.StatusOK, second.StatusCode)

	assert.Empty(t, second.Header.Get("Idempotent-Replayed"))
	assert.Equal(t, "bill-1", decodeBody[payments.Invoice](t, first).BillNumber)
	assert.Equal(t, "bill-2", decodeBody[payments.Invoice](t, second).BillNumber)
	assert.Equal(t, 2, env.invoice.uploads)

	replay := env.do(t, http.MethodPost, "/api/create-invoice", invoiceFor("buyer-1", "bill-1"), HeaderIdempotencyKey, "same-key")
	require.Equal(t, http.StatusOK, replay.StatusCode)
	assert.Equal(t, "true", replay.Header.Get("Idempotent-Replayed"))
	assert.Equal(t, 2, env.invoice.uploads)
}

func TestPlaceOrderBNPLUnavailable(t *testing.T) {
	env := setupTestEnv(t)
	env.prepareCheckout(t, checkout.MethodBNPL)

	resp := env.do(t, http.MethodPost, "/api/checkout/buyer-1/sup-A/place-order", map[string]any{})

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "method_unavailable", decodeBody[errResp](t, resp).Code)
}

func TestAbandonCheckout(t *testing.T) {
	env := setupTestEnv(t)
	env.prepareCheckout(t, checkout.MethodCard)

	resp := env.do(t, http.MethodDelete, "/api/checkout/buyer-1/sup-A", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	sess := decodeBody[checkout.Session](t, env.do(t, http.MethodGet, "/api/checkout/buyer-1/sup-A", nil))
	assert.Equal(t, checkout.MethodUnset, sess.Selector.Method)
	assert.Nil(t, sess.Address)
}

func TestGetOrder(t *testing.T) {
	env := setupTestEnv(t)
	env.orders.byID["ord-1"] = orders.Order{ID: "ord-1", Status: orders.StatusPending, Currency: "SAR"}

	resp := env.do(t, http.MethodGet, "/api/orders/ord-1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ord-1", decodeBody[orders.Order](t, resp).ID)

	resp = env.do(t, http.MethodGet, "/api/orders/missing", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestBroadcastRFQPartialFailure(t *testing.T) {
	env := setupTestEnv(t)

	resp := env.do(t, http.MethodPost, "/api/rfqs", map[string]any{
		"buyerId":  "buyer-1",
		"category": "packaging",
		"suppliers": []map[string]string{
			{"supplierId": "sup-A"}, {"supplierId": "sup-bad"}, {"supplierId": "sup-A"},
		},
	})

	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	out := decodeBody[rfq.Outcome](t, resp)
	assert.True(t, out.Failed)
	require.Len(t, out.Results, 2)
	assert.NotEmpty(t, out.Results[0].RFQID)
	assert.Equal(t, "chat_buyer-1_sup-A", out.Results[0].ChatID)
	assert.NotEmpty(t, out.Results[1].Error)
}

func TestHealthzReportsFailedDependency(t *testing.T) {
	env := setupTestEnv(t)

	assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/healthz", nil).StatusCode)

	env.mr.Close()
	resp := env.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}
