package checkout

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ariefcatur/marketplace-checkout/internal/apperr"
)

type Phase string

const (
	PhaseIdle           Phase = "idle"
	PhaseSessionCreated Phase = "session-created"
	PhaseVerifying      Phase = "verifying"
	PhaseCompleted      Phase = "completed"
	PhaseFailed         Phase = "failed"
)

var validNext = map[Phase]map[Phase]bool{
	PhaseIdle:           {PhaseSessionCreated: true},
	PhaseSessionCreated: {PhaseSessionCreated: true, PhaseVerifying: true},
	// back to session-created when the gateway never answered the lookup
	PhaseVerifying:      {PhaseCompleted: true, PhaseFailed: true, PhaseSessionCreated: true},
	PhaseCompleted:      {},
	PhaseFailed:         {PhaseSessionCreated: true},
}

func CanTransition(from, to Phase) bool {
	return validNext[from][to]
}

var (
	ErrAddressMissing       = apperr.Validation("address_missing", "Please select a shipping address")
	ErrAddressPhoneMissing  = apperr.Validation("address_phone_missing", "Shipping address must include a phone number")
	ErrPaymentMethodMissing = apperr.Validation("payment_method_missing", "Please select a payment method")
)

// PaymentSession is the gateway checkout currently in flight. It never
// outlives the attempt it belongs to.
type PaymentSession struct {
	CheckoutID            string          `json:"checkoutId"`
	MerchantTransactionID string          `json:"merchantTransactionId"`
	Amount                decimal.Decimal `json:"amount"`
	CreatedAt             time.Time       `json:"createdAt"`
}

// Session is the checkout state of one buyer for one supplier partition. It is
// passed explicitly to every orchestrator call; nothing about it is global.
type Session struct {
	BuyerID    string          `json:"buyerId"`
	SupplierID string          `json:"supplierId"`
	Selector   Selector        `json:"selector"`
	Address    *Address        `json:"address,omitempty"`
	Phase      Phase           `json:"phase"`
	Payment    *PaymentSession `json:"payment,omitempty"`
	LastError  string          `json:"lastError,omitempty"`
	UpdatedAt  time.Time       `json:"updatedAt"`
}

func NewSession(buyerID, supplierID string) *Session {
	return &Session{BuyerID: buyerID, SupplierID: supplierID, Phase: PhaseIdle}
}

// Transition moves the session to phase to, rejecting moves the phase table forbids.
func (s *Session) Transition(to Phase) error {
	from := s.Phase
	if from == "" {
		from = PhaseIdle
	}
	if !CanTransition(from, to) {
		e := apperr.Conflict(fmt.Sprintf("checkout cannot move from %s to %s", from, to))
		e.Code = "invalid_checkout_phase"
		return e
	}
	s.Phase = to
	return nil
}

func (s *Session) SelectAddress(a Address) {
	s.Address = &a
}

// UseDefaultAddress selects the default of addrs, or clears the selection
// when the buyer has no address left.
func (s *Session) UseDefaultAddress(addrs []Address) {
	a, ok := DefaultAddress(addrs)
	if !ok {
		s.Address = nil
		return
	}
	s.Address = &a
}

// CanPlaceOrder reports the first unmet precondition for placing an order.
func (s *Session) CanPlaceOrder() error {
	switch {
	case s.Address == nil:
		return ErrAddressMissing
	case !s.Address.HasPhone():
		return ErrAddressPhoneMissing
	case s.Selector.Method == MethodUnset:
		return ErrPaymentMethodMissing
	}
	return nil
}

// Reset discards the payment attempt and all selections, keeping the owner ids.
func (s *Session) Reset() {
	*s = Session{BuyerID: s.BuyerID, SupplierID: s.SupplierID, Phase: PhaseIdle, UpdatedAt: s.UpdatedAt}
}
