package httpx

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/ariefcatur/marketplace-checkout/internal/apperr"
	"github.com/ariefcatur/marketplace-checkout/internal/cart"
	"github.com/ariefcatur/marketplace-checkout/internal/checkout"
	"github.com/ariefcatur/marketplace-checkout/internal/logging"
	"github.com/ariefcatur/marketplace-checkout/internal/orders"
	"github.com/ariefcatur/marketplace-checkout/internal/payments"
)

var (
	errBNPLUnavailable = apperr.Validation("method_unavailable", "Buy now, pay later is not available yet")
	errCartItem        = apperr.Validation("invalid_cart_item", "Cart items need an id and a non-negative quantity")
	errCardUnknown     = apperr.Validation("card_unknown", "Card is not saved for this buyer")
)

// CheckoutHandler serves cart snapshots and the per-supplier checkout page:
// method and address selection, then placing the order.
type CheckoutHandler struct {
	Carts    *cart.Store
	Sessions *checkout.Store
	Vault    *payments.VaultService
	Checkout *payments.CheckoutService
	Invoice  *payments.InvoiceService
	Idem     Idempotency
	Log      *zap.Logger
}

func (h *CheckoutHandler) Register(r chi.Router) {
	r.Put("/api/carts/{buyerId}", h.replaceCart)
	r.Get("/api/carts/{buyerId}/summary", h.cartSummary)

	r.Route("/api/checkout/{buyerId}/{supplierId}", func(r chi.Router) {
		r.Get("/", h.getSession)
		r.Delete("/", h.abandon)
		r.Put("/payment-method", h.update(h.selectMethod))
		r.Put("/card", h.update(h.selectCard))
		r.Delete("/card/{cardId}", h.update(h.removeCard))
		r.Put("/wallet", h.update(h.selectWallet))
		r.Put("/address", h.update(h.selectAddress))
		r.Put("/addresses", h.update(h.replaceAddresses))
		r.Post("/place-order", h.placeOrder)
	})
}

func (h *CheckoutHandler) replaceCart(w http.ResponseWriter, r *http.Request) {
	log := logging.OrNop(h.Log)
	var items []cart.Item
	if err := decodeJSON(r, &items); err != nil {
		writeError(w, log, err)
		return
	}
	for i, it := range items {
		if strings.TrimSpace(it.ID) == "" || it.Quantity < 0 {
			writeError(w, log, errCartItem)
			return
		}
		if it.Subtotal.IsZero() && !it.Price.IsZero() {
			items[i] = it.WithQuantity(it.Quantity)
		}
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	if err := h.Carts.Replace(ctx, chi.URLParam(r, "buyerId"), items); err != nil {
		writeError(w, log, err)
		return
	}
	writeJSON(w, http.StatusOK, cart.Aggregate(items))
}

func (h *CheckoutHandler) cartSummary(w http.ResponseWriter, r *http.Request) {
	log := logging.OrNop(h.Log)
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	items, err := h.Carts.Items(ctx, chi.URLParam(r, "buyerId"))
	if err != nil {
		writeError(w, log, err)
		return
	}
	writeJSON(w, http.StatusOK, cart.Aggregate(items))
}

type sessionView struct {
	*checkout.Session
	Group *cart.Group `json:"group,omitempty"`
}

func (h *CheckoutHandler) view(ctx context.Context, sess *checkout.Session) sessionView {
	v := sessionView{Session: sess}
	items, err := h.Carts.Items(ctx, sess.BuyerID)
	if err != nil {
		logging.OrNop(h.Log).Warn("cart unavailable for checkout view", zap.Error(err))
		return v
	}
	if g, ok := cart.Aggregate(items).Group(sess.SupplierID); ok {
		v.Group = &g
	}
	return v
}

func (h *CheckoutHandler) getSession(w http.ResponseWriter, r *http.Request) {
	log := logging.OrNop(h.Log)
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	sess, err := h.Sessions.Load(ctx, chi.URLParam(r, "buyerId"), chi.URLParam(r, "supplierId"))
	if err != nil {
		writeError(w, log, err)
		return
	}
	writeJSON(w, http.StatusOK, h.view(ctx, sess))
}

func (h *CheckoutHandler) abandon(w http.ResponseWriter, r *http.Request) {
	log := logging.OrNop(h.Log)
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	if err := h.Sessions.Delete(ctx, chi.URLParam(r, "buyerId"), chi.URLParam(r, "supplierId")); err != nil {
		writeError(w, log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type mutation func(r *http.Request, sess *checkout.Session) error

// update loads the session, applies m and saves the result.
func (h *CheckoutHandler) update(m mutation) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log := logging.OrNop(h.Log)
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		r = r.WithContext(ctx)

		sess, err := h.Sessions.Load(ctx, chi.URLParam(r, "buyerId"), chi.URLParam(r, "supplierId"))
		if err != nil {
			writeError(w, log, err)
			return
		}
		if err := m(r, sess); err != nil {
			writeError(w, log, err)
			return
		}
		if err := h.Sessions.Save(ctx, sess); err != nil {
			writeError(w, log, err)
			return
		}
		writeJSON(w, http.StatusOK, h.view(ctx, sess))
	}
}

func (h *CheckoutHandler) selectMethod(r *http.Request, sess *checkout.Session) error {
	var req struct {
		Method checkout.Method `json:"method"`
	}
	if err := decodeJSON(r, &req); err != nil {
		return err
	}
	return sess.Selector.SelectMethod(req.Method)
}

func (h *CheckoutHandler) selectCard(r *http.Request, sess *checkout.Session) error {
	var req struct {
		CardID string `json:"cardId"`
	}
	if err := decodeJSON(r, &req); err != nil {
		return err
	}
	if sess.Selector.Method != checkout.MethodCard {
		return checkout.ErrCardNotApplicable
	}
	if h.Vault != nil && req.CardID != "" {
		cards, err := h.Vault.ListCards(r.Context(), sess.BuyerID, "")
		if err != nil {
			return err
		}
		if !hasCard(cards, req.CardID) {
			return errCardUnknown
		}
	}
	return sess.Selector.SelectCard(req.CardID)
}

func (h *CheckoutHandler) removeCard(r *http.Request, sess *checkout.Session) error {
	sess.Selector.RemoveSavedCard(chi.URLParam(r, "cardId"))
	return nil
}

func (h *CheckoutHandler) selectWallet(r *http.Request, sess *checkout.Session) error {
	var req struct {
		Option string `json:"option"`
	}
	if err := decodeJSON(r, &req); err != nil {
		return err
	}
	return sess.Selector.SelectWallet(req.Option)
}

func (h *CheckoutHandler) selectAddress(r *http.Request, sess *checkout.Session) error {
	var a checkout.Address
	if err := decodeJSON(r, &a); err != nil {
		return err
	}
	sess.SelectAddress(a)
	return nil
}

func (h *CheckoutHandler) replaceAddresses(r *http.Request, sess *checkout.Session) error {
	var addrs []checkout.Address
	if err := decodeJSON(r, &addrs); err != nil {
		return err
	}
	sess.UseDefaultAddress(addrs)
	return nil
}

type placeOrderReq struct {
	Customer struct {
		FirstName string `json:"firstName"`
		LastName  string `json:"lastName"`
		Email     string `json:"email"`
		Phone     string `json:"phone"`
	} `json:"customer"`
}

type placeOrderResp struct {
	Method      checkout.Method `json:"method"`
	CheckoutID  string          `json:"checkoutId,omitempty"`
	BillNumber  string          `json:"billNumber,omitempty"`
	RedirectURL string          `json:"redirectUrl,omitempty"`
}

func (h *CheckoutHandler) placeOrder(w http.ResponseWriter, r *http.Request) {
	log := logging.OrNop(h.Log)
	var req placeOrderReq
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, log, err)
		return
	}
	buyerID, supplierID := chi.URLParam(r, "buyerId"), chi.URLParam(r, "supplierId")

	scope := "place-order:" + buyerID + ":" + supplierID
	serveIdempotent(w, r, h.Idem, log, scope, func(ctx context.Context, key string) (int, any, error) {
		ctx, cancel := context.WithTimeout(ctx, gatewayRequestTimeout)
		defer cancel()

		sess, err := h.Sessions.Load(ctx, buyerID, supplierID)
		if err != nil {
			return 0, nil, err
		}
		if err := sess.CanPlaceOrder(); err != nil {
			return 0, nil, err
		}

		var resp placeOrderResp
		switch sess.Selector.Method {
		case checkout.MethodCard, checkout.MethodWallet:
			res, err := h.Checkout.CreateSession(ctx, sess, payments.SessionRequest{
				BuyerID:        buyerID,
				SupplierID:     supplierID,
				Email:          req.Customer.Email,
				IdempotencyKey: key,
			})
			if serr := h.Sessions.Save(context.WithoutCancel(ctx), sess); serr != nil && err == nil {
				err = serr
			}
			if err != nil {
				return 0, nil, err
			}
			resp = placeOrderResp{Method: sess.Selector.Method, CheckoutID: res.CheckoutID}

		case checkout.MethodInvoice:
			items, err := h.Carts.Items(ctx, buyerID)
			if err != nil {
				return 0, nil, err
			}
			group, _ := cart.Aggregate(items).Group(supplierID)
			phone := req.Customer.Phone
			if strings.TrimSpace(phone) == "" {
				phone = sess.Address.AuthPersonMobile
			}
			inv, err := h.Invoice.CreateInvoice(ctx, payments.InvoiceRequest{
				BuyerID:        buyerID,
				SupplierID:     supplierID,
				FirstName:      req.Customer.FirstName,
				LastName:       req.Customer.LastName,
				Phone:          phone,
				Email:          req.Customer.Email,
				Items:          group.Items,
				Amount:         group.Total,
				ShippingCost:   group.Shipping,
				Addresses:      []checkout.Address{*sess.Address},
				IdempotencyKey: key,
			})
			if err != nil {
				return 0, nil, err
			}
			resp = placeOrderResp{Method: checkout.MethodInvoice, BillNumber: inv.BillNumber, RedirectURL: inv.RedirectURL}

		case checkout.MethodBNPL:
			return 0, nil, errBNPLUnavailable
		default:
			return 0, nil, checkout.ErrUnknownMethod
		}
		return http.StatusOK, resp, nil
	})
}

func hasCard(cards []orders.Card, id string) bool {
	for _, c := range cards {
		if c.ID == id {
			return true
		}
	}
	return false
}
