package payments

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/ariefcatur/marketplace-checkout/internal/apperr"
	"github.com/ariefcatur/marketplace-checkout/internal/hyperpay"
	"github.com/ariefcatur/marketplace-checkout/internal/orders"
)

const CodeRegistrationMissing = "registration_missing"

// VaultService turns a card entered in the hosted widget into a stored token.
type VaultService struct {
	Gateway   CardGateway
	Cards     CardStore
	ReturnURL string
	Log       *zap.Logger
}

type Registration struct {
	CheckoutID string `json:"checkoutId"`
	ReturnURL  string `json:"returnUrl"`
}

type ResolvedCard struct {
	RegistrationID string `json:"registrationId"`
	Brand          string `json:"brand,omitempty"`
	Last4          string `json:"last4,omitempty"`
}

// Initiate opens a registration-mode checkout for a nominal amount.
func (s *VaultService) Initiate(ctx context.Context, amount decimal.Decimal, supplierID string) (Registration, error) {
	if !amount.GreaterThan(decimal.Zero) {
		return Registration{}, apperr.Validation("amount_required", "amount is required")
	}
	chk, err := s.Gateway.CreateCheckout(ctx, hyperpay.CheckoutRequest{Amount: amount, CreateRegistration: true, RegistrationOnly: true})
	if err != nil {
		// a rejected registration is reported as an internal failure, not the gateway's status
		var e *apperr.Error
		if errors.As(err, &e) && e.Code == hyperpay.CodeRejected {
			cp := *e
			cp.Status = 0
			return Registration{}, &cp
		}
		return Registration{}, err
	}
	return Registration{CheckoutID: chk.ID, ReturnURL: withQuery(s.ReturnURL, "supplierId", supplierID)}, nil
}

// Resolve maps the artifact the widget hands back to a registration id. A
// bare id is returned as is; a resource path is looked up at the gateway and
// the token read from registration.id, else the top-level id.
func (s *VaultService) Resolve(ctx context.Context, artifact string) (ResolvedCard, error) {
	artifact = strings.TrimSpace(artifact)
	if artifact == "" {
		return ResolvedCard{}, apperr.Validation("token_required", "token is required")
	}
	if !strings.Contains(artifact, "/") {
		return ResolvedCard{RegistrationID: artifact}, nil
	}
	return s.lookup(ctx, artifact, hyperpay.PaymentStatus.CardToken)
}

// Status reads the registration behind resourcePath. Only registration.id
// counts as a token here.
func (s *VaultService) Status(ctx context.Context, resourcePath string) (ResolvedCard, error) {
	if strings.TrimSpace(resourcePath) == "" {
		return ResolvedCard{}, apperr.Validation("resource_path_required", "resourcePath is required")
	}
	return s.lookup(ctx, resourcePath, hyperpay.PaymentStatus.RegistrationToken)
}

func (s *VaultService) lookup(ctx context.Context, resourcePath string, tokenOf func(hyperpay.PaymentStatus) (string, bool)) (ResolvedCard, error) {
	ps, err := s.Gateway.Lookup(ctx, resourcePath)
	if err != nil {
		return ResolvedCard{}, err
	}
	token, ok := tokenOf(ps)
	if !ok {
		e := apperr.Gateway(http.StatusBadGateway, "No registration id returned by HyperPay", ps.Result, nil)
		e.Code = CodeRegistrationMissing
		return ResolvedCard{}, e
	}
	out := ResolvedCard{RegistrationID: token}
	out.Brand, _ = ps.Brand()
	out.Last4, _ = ps.Last4()
	return out, nil
}

// Save resolves artifact and stores the card for buyerID. Saving the same
// token twice leaves exactly one card.
func (s *VaultService) Save(ctx context.Context, buyerID, supplierID, artifact string) (orders.Card, error) {
	if strings.TrimSpace(buyerID) == "" {
		return orders.Card{}, apperr.Validation("buyer_required", "buyerId is required")
	}
	rc, err := s.Resolve(ctx, artifact)
	if err != nil {
		return orders.Card{}, err
	}
	card, err := s.Cards.UpsertCard(ctx, orders.Card{
		BuyerID:        buyerID,
		SupplierID:     supplierID,
		RegistrationID: rc.RegistrationID,
		Brand:          rc.Brand,
		Last4:          rc.Last4,
	})
	if err != nil {
		return orders.Card{}, apperr.Persistence("Could not save card", err)
	}
	if s.Log != nil {
		s.Log.Info("card saved", zap.String("buyer_id", buyerID), zap.String("supplier_id", supplierID))
	}
	return card, nil
}

func (s *VaultService) ListCards(ctx context.Context, buyerID, supplierID string) ([]orders.Card, error) {
	if strings.TrimSpace(buyerID) == "" {
		return nil, apperr.Validation("buyer_required", "buyerId is required")
	}
	cards, err := s.Cards.ListCards(ctx, buyerID, supplierID)
	if err != nil {
		return nil, apperr.Persistence("Could not load cards", err)
	}
	return cards, nil
}

func withQuery(raw, key, value string) string {
	if value == "" {
		return raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	q := u.Query()
	q.Set(key, value)
	u.RawQuery = q.Encode()
	return u.String()
}
