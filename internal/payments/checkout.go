package payments

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/ariefcatur/marketplace-checkout/internal/apperr"
	"github.com/ariefcatur/marketplace-checkout/internal/cart"
	"github.com/ariefcatur/marketplace-checkout/internal/checkout"
	"github.com/ariefcatur/marketplace-checkout/internal/hyperpay"
	"github.com/ariefcatur/marketplace-checkout/internal/logging"
	"github.com/ariefcatur/marketplace-checkout/internal/orders"
)

const CodePaymentDeclined = "payment_declined"

// CheckoutService runs a card payment: open a hosted checkout, then verify it
// once the buyer returns from the widget.
type CheckoutService struct {
	Gateway  CardGateway
	Carts    CartStore
	Sink     *OrderSink
	Currency string
	Log      *zap.Logger
	Now      func() time.Time
}

type SessionRequest struct {
	BuyerID        string
	SupplierID     string
	Email          string
	Amount         decimal.Decimal
	IdempotencyKey string
}

type SessionResult struct {
	CheckoutID            string          `json:"checkoutId"`
	MerchantTransactionID string          `json:"merchantTransactionId"`
	Amount                decimal.Decimal `json:"amount"`
}

// CreateSession opens a hosted checkout. When sess is set it must be able to
// move to session-created; it then carries the new payment session. A zero
// amount is taken from the supplier's cart partition; nothing to charge is a
// validation error and never reaches the gateway.
func (s *CheckoutService) CreateSession(ctx context.Context, sess *checkout.Session, req SessionRequest) (SessionResult, error) {
	if strings.TrimSpace(req.SupplierID) == "" {
		return SessionResult{}, apperr.Validation("supplier_required", "supplierId is required")
	}
	if sess != nil && !checkout.CanTransition(phaseOf(sess), checkout.PhaseSessionCreated) {
		return SessionResult{}, sess.Transition(checkout.PhaseSessionCreated)
	}

	amount := req.Amount
	if amount.IsZero() && req.BuyerID != "" {
		items, err := s.Carts.Items(ctx, req.BuyerID)
		if err != nil {
			return SessionResult{}, fmt.Errorf("load cart: %w", err)
		}
		if g, ok := cart.Aggregate(items).Group(req.SupplierID); ok {
			amount = g.Total
		}
	}
	if !amount.GreaterThan(decimal.Zero) {
		if req.Amount.IsZero() {
			return SessionResult{}, apperr.Validation("cart_empty", "No items for this supplier in the cart")
		}
		return SessionResult{}, apperr.Validation("amount_required", "amount must be greater than zero")
	}

	mtx := MerchantTransactionID(req.SupplierID, req.IdempotencyKey, s.now())
	chk, err := s.Gateway.CreateCheckout(ctx, hyperpay.CheckoutRequest{
		Amount:                amount,
		MerchantTransactionID: mtx,
		CustomerEmail:         req.Email,
		CreateRegistration:    true,
	})
	if err != nil {
		if sess != nil {
			sess.LastError = err.Error()
		}
		return SessionResult{}, err
	}

	if sess != nil {
		if err := sess.Transition(checkout.PhaseSessionCreated); err != nil {
			return SessionResult{}, err
		}
		sess.Payment = &checkout.PaymentSession{
			CheckoutID:            chk.ID,
			MerchantTransactionID: mtx,
			Amount:                amount,
			CreatedAt:             s.now().UTC(),
		}
		sess.LastError = ""
	}
	return SessionResult{CheckoutID: chk.ID, MerchantTransactionID: mtx, Amount: amount}, nil
}

type VerifyRequest struct {
	ResourcePath string
	BuyerID      string
	SupplierID   string
	Customer     orders.Customer
}

// VerifyPayment asks the gateway for the outcome of resourcePath. A success
// writes a completed order, clears the supplier's cart partition and resets
// the session; anything else leaves no order and marks the session failed.
func (s *CheckoutService) VerifyPayment(ctx context.Context, sess *checkout.Session, req VerifyRequest) (orders.Order, error) {
	if strings.TrimSpace(req.ResourcePath) == "" {
		return orders.Order{}, apperr.Validation("resource_path_required", "resourcePath is required")
	}
	buyerID, supplierID := req.BuyerID, req.SupplierID
	if sess != nil {
		buyerID, supplierID = sess.BuyerID, sess.SupplierID
	}

	// an expired session loads as idle; the gateway stays the source of truth
	tracked := sess != nil && phaseOf(sess) != checkout.PhaseIdle
	if tracked {
		if err := sess.Transition(checkout.PhaseVerifying); err != nil {
			return orders.Order{}, err
		}
	}
	fail := func(err error) (orders.Order, error) {
		if tracked {
			_ = sess.Transition(checkout.PhaseFailed)
			sess.LastError = err.Error()
		}
		return orders.Order{}, err
	}

	ps, err := s.Gateway.Lookup(ctx, req.ResourcePath)
	if err != nil {
		if tracked && gatewayUnreachable(err) {
			// the payment may still complete, keep the session verifiable
			_ = sess.Transition(checkout.PhaseSessionCreated)
			sess.LastError = err.Error()
			return orders.Order{}, err
		}
		return fail(err)
	}
	if !ps.Succeeded() {
		msg := ps.Result.Description
		if msg == "" {
			msg = "Payment was not successful"
		}
		e := apperr.Gateway(http.StatusPaymentRequired, msg, nil, nil)
		e.Code = CodePaymentDeclined
		return fail(e)
	}

	var items []cart.Item
	if buyerID != "" {
		all, err := s.Carts.Items(ctx, buyerID)
		if err != nil {
			s.logger().Warn("cart unavailable for order snapshot", zap.String("buyer_id", buyerID), zap.Error(err))
		}
		items = cart.ForSupplier(all, supplierID)
	}

	saved, err := s.Sink.Save(ctx, s.orderFrom(ps, sess, req, buyerID, supplierID, items))
	if err != nil {
		return fail(err)
	}

	if buyerID != "" {
		if err := s.Carts.ClearSupplier(ctx, buyerID, supplierID); err != nil {
			s.logger().Warn("supplier cart not cleared", zap.String("buyer_id", buyerID),
				zap.String("supplier_id", supplierID), zap.Error(err))
		}
	}
	if tracked {
		_ = sess.Transition(checkout.PhaseCompleted)
	}
	if sess != nil {
		sess.Reset()
	}
	return saved, nil
}

func (s *CheckoutService) orderFrom(ps hyperpay.PaymentStatus, sess *checkout.Session, req VerifyRequest, buyerID, supplierID string, items []cart.Item) orders.Order {
	id := ps.ID
	if ps.MerchantTransactionID != nil && id == "" {
		id = *ps.MerchantTransactionID
	}
	if id == "" && sess != nil && sess.Payment != nil {
		id = sess.Payment.MerchantTransactionID
	}

	amount, ok := ps.AmountValue()
	if !ok && sess != nil && sess.Payment != nil {
		amount = sess.Payment.Amount
	}
	currency := s.Currency
	if ps.Currency != nil && *ps.Currency != "" {
		currency = *ps.Currency
	}

	customer := req.Customer
	if customer.Name == "" {
		customer.Name = ps.CustomerName()
	}
	if customer.Email == "" {
		customer.Email = ps.CustomerEmail()
	}
	if len(customer.Addresses) == 0 && sess != nil && sess.Address != nil {
		customer.Addresses = []checkout.Address{*sess.Address}
	}
	brand, _ := ps.Brand()

	return orders.Order{
		ID:               id,
		Method:           orders.MethodCardGateway,
		BuyerID:          buyerID,
		SupplierID:       supplierID,
		Customer:         customer,
		Items:            items,
		Amount:           amount,
		Currency:         currency,
		Status:           orders.StatusCompleted,
		GatewayReference: ps.ID,
		PaymentType:      ps.PaymentTypeValue(),
		CardBrand:        brand,
		Billing:          ps.Billing,
	}
}

func (s *CheckoutService) now() time.Time {
	if s.Now == nil {
		return time.Now()
	}
	return s.Now()
}

func (s *CheckoutService) logger() *zap.Logger { return logging.OrNop(s.Log) }

// MerchantTransactionID is <supplierId>_<key>, with the current unix
// milliseconds standing in when no idempotency key was sent.
func MerchantTransactionID(supplierID, idempotencyKey string, now time.Time) string {
	suffix := strings.TrimSpace(idempotencyKey)
	if suffix == "" {
		suffix = fmt.Sprintf("%d", now.UnixMilli())
	}
	return supplierID + "_" + suffix
}

func phaseOf(sess *checkout.Session) checkout.Phase {
	if sess.Phase == "" {
		return checkout.PhaseIdle
	}
	return sess.Phase
}

// gatewayUnreachable reports a lookup that never got an answer: a transport
// failure (status 0) or an open circuit (503).
func gatewayUnreachable(err error) bool {
	var e *apperr.Error
	if !errors.As(err, &e) || e.Kind != apperr.KindGateway {
		return false
	}
	return e.Status == 0 || e.Status == http.StatusServiceUnavailable
}
