package checkout

import (
	"github.com/ariefcatur/marketplace-checkout/internal/apperr"
)

type Method string

const (
	MethodUnset   Method = ""
	MethodCard    Method = "card"
	MethodInvoice Method = "invoice"
	MethodWallet  Method = "wallet"
	MethodBNPL    Method = "bnpl"
)

func (m Method) Valid() bool {
	switch m {
	case MethodCard, MethodInvoice, MethodWallet, MethodBNPL:
		return true
	}
	return false
}

var (
	ErrUnknownMethod       = apperr.Validation("unknown_payment_method", "Unknown payment method")
	ErrCardNotApplicable   = apperr.Validation("card_not_applicable", "A saved card can only be chosen with card payment")
	ErrWalletNotApplicable = apperr.Validation("wallet_not_applicable", "A wallet option can only be chosen with wallet payment")
)

// Selector holds the chosen payment method and the sub-choice that belongs to
// it. At most one of SelectedCardID and SelectedWalletOption is ever set.
type Selector struct {
	Method               Method `json:"method"`
	SelectedCardID       string `json:"selectedCardId,omitempty"`
	SelectedWalletOption string `json:"selectedWalletOption,omitempty"`
}

// SelectMethod switches method and drops any sub-choice of the previous one.
func (s *Selector) SelectMethod(m Method) error {
	if m != MethodUnset && !m.Valid() {
		return ErrUnknownMethod
	}
	s.Method = m
	s.SelectedCardID = ""
	s.SelectedWalletOption = ""
	return nil
}

func (s *Selector) SelectCard(cardID string) error {
	if s.Method != MethodCard {
		return ErrCardNotApplicable
	}
	s.SelectedCardID = cardID
	return nil
}

func (s *Selector) SelectWallet(option string) error {
	if s.Method != MethodWallet {
		return ErrWalletNotApplicable
	}
	s.SelectedWalletOption = option
	return nil
}

// RemoveSavedCard clears the selection when it points at the removed card.
func (s *Selector) RemoveSavedCard(cardID string) {
	if s.SelectedCardID == cardID {
		s.SelectedCardID = ""
	}
}
