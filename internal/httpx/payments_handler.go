package httpx

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/ariefcatur/marketplace-checkout/internal/apperr"
	"github.com/ariefcatur/marketplace-checkout/internal/cart"
	"github.com/ariefcatur/marketplace-checkout/internal/checkout"
	"github.com/ariefcatur/marketplace-checkout/internal/logging"
	"github.com/ariefcatur/marketplace-checkout/internal/orders"
	"github.com/ariefcatur/marketplace-checkout/internal/payments"
)

const gatewayRequestTimeout = 30 * time.Second

// PaymentsHandler serves the gateway-facing endpoints the checkout widget
// and the invoice page call directly.
type PaymentsHandler struct {
	Vault    *payments.VaultService
	Checkout *payments.CheckoutService
	Invoice  *payments.InvoiceService
	Sessions *checkout.Store
	Idem     Idempotency
	Log      *zap.Logger
}

func (h *PaymentsHandler) Register(r chi.Router) {
	r.Post("/api/create-checkout", h.createCheckout)
	r.Post("/api/create-registration", h.createRegistration)
	r.Get("/api/payment-status", h.paymentStatus)
	r.Post("/api/verify-payment", h.verifyPayment)
	r.Post("/api/cards", h.saveCard)
	r.Get("/api/cards", h.listCards)
	r.Post("/api/create-invoice", h.createInvoice)
	r.Post("/api/payment-notification", h.paymentNotification)
}

type createCheckoutReq struct {
	SupplierID string          `json:"supplierId"`
	UserEmail  string          `json:"userEmail"`
	Amount     decimal.Decimal `json:"amount"`
	BuyerID    string          `json:"buyerId"`
}

func (h *PaymentsHandler) createCheckout(w http.ResponseWriter, r *http.Request) {
	log := logging.OrNop(h.Log)
	var req createCheckoutReq
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, log, err)
		return
	}
	if strings.TrimSpace(req.SupplierID) == "" {
		writeError(w, log, apperr.Validation("supplier_required", "supplierId is required"))
		return
	}

	scope := "create-checkout:" + req.SupplierID
	serveIdempotent(w, r, h.Idem, log, scope, func(ctx context.Context, key string) (int, any, error) {
		ctx, cancel := context.WithTimeout(ctx, gatewayRequestTimeout)
		defer cancel()

		sess, err := h.loadSession(ctx, req.BuyerID, req.SupplierID)
		if err != nil {
			return 0, nil, err
		}
		res, err := h.Checkout.CreateSession(ctx, sess, payments.SessionRequest{
			BuyerID:        req.BuyerID,
			SupplierID:     req.SupplierID,
			Email:          req.UserEmail,
			Amount:         req.Amount,
			IdempotencyKey: key,
		})
		if serr := h.saveSession(ctx, sess); serr != nil && err == nil {
			err = serr
		}
		if err != nil {
			return 0, nil, err
		}
		return http.StatusOK, map[string]string{"checkoutId": res.CheckoutID}, nil
	})
}

type createRegistrationReq struct {
	Amount     decimal.Decimal `json:"amount"`
	SupplierID string          `json:"supplierId"`
}

func (h *PaymentsHandler) createRegistration(w http.ResponseWriter, r *http.Request) {
	log := logging.OrNop(h.Log)
	var req createRegistrationReq
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, log, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), gatewayRequestTimeout)
	defer cancel()

	reg, err := h.Vault.Initiate(ctx, req.Amount, req.SupplierID)
	if err != nil {
		writeError(w, log, err)
		return
	}
	writeJSON(w, http.StatusOK, reg)
}

func (h *PaymentsHandler) paymentStatus(w http.ResponseWriter, r *http.Request) {
	log := logging.OrNop(h.Log)
	ctx, cancel := context.WithTimeout(r.Context(), gatewayRequestTimeout)
	defer cancel()

	rc, err := h.Vault.Status(ctx, r.URL.Query().Get("resourcePath"))
	if err != nil {
		writeError(w, log, err)
		return
	}
	writeJSON(w, http.StatusOK, rc)
}

type verifyPaymentReq struct {
	ResourcePath string          `json:"resourcePath"`
	BuyerID      string          `json:"buyerId"`
	SupplierID   string          `json:"supplierId"`
	Customer     orders.Customer `json:"customer"`
}

type verifyPaymentResp struct {
	Success     bool            `json:"success"`
	OrderID     string          `json:"orderId"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency"`
	PaymentType string          `json:"paymentType,omitempty"`
	CardBrand   string          `json:"cardBrand,omitempty"`
}

func (h *PaymentsHandler) verifyPayment(w http.ResponseWriter, r *http.Request) {
	log := logging.OrNop(h.Log)
	var req verifyPaymentReq
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, log, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), gatewayRequestTimeout)
	defer cancel()

	sess, err := h.loadSession(ctx, req.BuyerID, req.SupplierID)
	if err != nil {
		writeError(w, log, err)
		return
	}
	o, err := h.Checkout.VerifyPayment(ctx, sess, payments.VerifyRequest{
		ResourcePath: req.ResourcePath,
		BuyerID:      req.BuyerID,
		SupplierID:   req.SupplierID,
		Customer:     req.Customer,
	})
	if serr := h.saveSession(ctx, sess); serr != nil {
		log.Warn("checkout session not saved after verification", zap.Error(serr))
	}
	if err != nil {
		writeError(w, log, err)
		return
	}
	writeJSON(w, http.StatusOK, verifyPaymentResp{
		Success:     true,
		OrderID:     o.ID,
		Amount:      o.Amount,
		Currency:    o.Currency,
		PaymentType: o.PaymentType,
		CardBrand:   o.CardBrand,
	})
}

type saveCardReq struct {
	BuyerID    string `json:"buyerId"`
	SupplierID string `json:"supplierId"`
	Token      string `json:"token"`
}

func (h *PaymentsHandler) saveCard(w http.ResponseWriter, r *http.Request) {
	log := logging.OrNop(h.Log)
	var req saveCardReq
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, log, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), gatewayRequestTimeout)
	defer cancel()

	card, err := h.Vault.Save(ctx, req.BuyerID, req.SupplierID, req.Token)
	if err != nil {
		writeError(w, log, err)
		return
	}
	writeJSON(w, http.StatusOK, payments.ResolvedCard{RegistrationID: card.RegistrationID, Brand: card.Brand, Last4: card.Last4})
}

func (h *PaymentsHandler) listCards(w http.ResponseWriter, r *http.Request) {
	log := logging.OrNop(h.Log)
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	q := r.URL.Query()
	cards, err := h.Vault.ListCards(ctx, q.Get("buyerId"), q.Get("supplierId"))
	if err != nil {
		writeError(w, log, err)
		return
	}
	writeJSON(w, http.StatusOK, cards)
}

type createInvoiceReq struct {
	BuyerID      string             `json:"buyerId"`
	SupplierID   string             `json:"supplierId"`
	FirstName    string             `json:"firstName"`
	LastName     string             `json:"lastName"`
	Phone        string             `json:"phone"`
	Email        string             `json:"email"`
	BillNumber   string             `json:"billNumber"`
	IssueDate    string             `json:"issueDate"`
	ExpireDate   string             `json:"expireDate"`
	ServiceName  string             `json:"serviceName"`
	Items        []cart.Item        `json:"items"`
	Amount       decimal.Decimal    `json:"amount"`
	ShippingCost decimal.Decimal    `json:"shippingCost"`
	Addresses    []checkout.Address `json:"addresses"`
}

func (h *PaymentsHandler) createInvoice(w http.ResponseWriter, r *http.Request) {
	log := logging.OrNop(h.Log)
	var req createInvoiceReq
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, log, err)
		return
	}

	serveIdempotent(w, r, h.Idem, log, "create-invoice:"+req.BuyerID+":"+req.SupplierID, func(ctx context.Context, key string) (int, any, error) {
		ctx, cancel := context.WithTimeout(ctx, gatewayRequestTimeout)
		defer cancel()

		inv, err := h.Invoice.CreateInvoice(ctx, payments.InvoiceRequest{
			BuyerID:        req.BuyerID,
			SupplierID:     req.SupplierID,
			FirstName:      req.FirstName,
			LastName:       req.LastName,
			Phone:          req.Phone,
			Email:          req.Email,
			BillNumber:     req.BillNumber,
			IssueDate:      req.IssueDate,
			ExpireDate:     req.ExpireDate,
			ServiceName:    req.ServiceName,
			Items:          req.Items,
			Amount:         req.Amount,
			ShippingCost:   req.ShippingCost,
			Addresses:      req.Addresses,
			IdempotencyKey: key,
		})
		if err != nil {
			return 0, nil, err
		}
		return http.StatusOK, inv, nil
	})
}

func (h *PaymentsHandler) paymentNotification(w http.ResponseWriter, r *http.Request) {
	log := logging.OrNop(h.Log)
	var n payments.PaymentNotification
	if err := decodeJSON(r, &n); err != nil {
		writeError(w, log, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	o, err := h.Invoice.Settle(ctx, n)
	if err != nil {
		writeError(w, log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"orderId": o.ID, "status": string(o.Status)})
}

// loadSession returns nil unless both owner ids are known; the flow then runs
// without phase tracking.
func (h *PaymentsHandler) loadSession(ctx context.Context, buyerID, supplierID string) (*checkout.Session, error) {
	if buyerID == "" || supplierID == "" || h.Sessions == nil {
		return nil, nil
	}
	return h.Sessions.Load(ctx, buyerID, supplierID)
}

func (h *PaymentsHandler) saveSession(ctx context.Context, sess *checkout.Session) error {
	if sess == nil || h.Sessions == nil {
		return nil
	}
	return h.Sessions.Save(context.WithoutCancel(ctx), sess)
}
