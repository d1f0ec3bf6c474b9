package hyperpay

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	successCode = regexp.MustCompile(`^(000\.000\.|000\.100\.1|000\.[36])`)
	pendingCode = regexp.MustCompile(`^(000\.200)`)
)

// CheckoutRequest prepares a hosted payment form. RegistrationOnly vaults the
// card without a payment type, so the amount is never debited.
type CheckoutRequest struct {
	Amount                decimal.Decimal
	MerchantTransactionID string
	CustomerEmail         string
	CreateRegistration    bool
	RegistrationOnly      bool
	PaymentType           string
}

type Checkout struct {
	ID          string
	Code        string
	Description string
}

type Result struct {
	Code        string `json:"code"`
	Description string `json:"description"`
}

type Issuer struct {
	Bank *string `json:"bank"`
}

type Card struct {
	Bin         *string `json:"bin"`
	Last4Digits *string `json:"last4Digits"`
	Holder      *string `json:"holder"`
	ExpiryMonth *string `json:"expiryMonth"`
	ExpiryYear  *string `json:"expiryYear"`
	Issuer      *Issuer `json:"issuer"`
}

type Customer struct {
	GivenName *string `json:"givenName"`
	Surname   *string `json:"surname"`
	Email     *string `json:"email"`
}

type RegistrationRef struct {
	ID *string `json:"id"`
}

// PaymentStatus is the resource behind a resourcePath. Everything but the
// result is optional and present only for some payment and registration types.
type PaymentStatus struct {
	HTTPStatus            int              `json:"-"`
	ID                    string           `json:"id"`
	Registration          *RegistrationRef `json:"registration"`
	PaymentType           *string          `json:"paymentType"`
	PaymentBrand          *string          `json:"paymentBrand"`
	Amount                *string          `json:"amount"`
	Currency              *string          `json:"currency"`
	MerchantTransactionID *string          `json:"merchantTransactionId"`
	Result                Result           `json:"result"`
	Card                  *Card            `json:"card"`
	Customer              *Customer        `json:"customer"`
	Billing               json.RawMessage  `json:"billing"`
}

func (p PaymentStatus) Succeeded() bool { return successCode.MatchString(p.Result.Code) }

func (p PaymentStatus) Pending() bool { return pendingCode.MatchString(p.Result.Code) }

// RegistrationToken is the vaulted token under registration.id.
func (p PaymentStatus) RegistrationToken() (string, bool) {
	if p.Registration != nil && nonEmpty(p.Registration.ID) {
		return *p.Registration.ID, true
	}
	return "", false
}

// CardToken is RegistrationToken, or the top-level id that a
// /v1/checkouts/{id}/registration lookup returns the token under.
func (p PaymentStatus) CardToken() (string, bool) {
	if token, ok := p.RegistrationToken(); ok {
		return token, true
	}
	if strings.TrimSpace(p.ID) != "" {
		return p.ID, true
	}
	return "", false
}

func (p PaymentStatus) Brand() (string, bool) {
	if nonEmpty(p.PaymentBrand) {
		return *p.PaymentBrand, true
	}
	if p.Card != nil && p.Card.Issuer != nil && nonEmpty(p.Card.Issuer.Bank) {
		return *p.Card.Issuer.Bank, true
	}
	return "", false
}

func (p PaymentStatus) Last4() (string, bool) {
	if p.Card != nil && nonEmpty(p.Card.Last4Digits) {
		return *p.Card.Last4Digits, true
	}
	return "", false
}

func (p PaymentStatus) AmountValue() (decimal.Decimal, bool) {
	if !nonEmpty(p.Amount) {
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(*p.Amount)
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}

func (p PaymentStatus) PaymentTypeValue() string { return str(p.PaymentType) }

func (p PaymentStatus) CustomerName() string {
	if p.Customer == nil {
		return ""
	}
	var parts []string
	if nonEmpty(p.Customer.GivenName) {
		parts = append(parts, *p.Customer.GivenName)
	}
	if nonEmpty(p.Customer.Surname) {
		parts = append(parts, *p.Customer.Surname)
	}
	return strings.Join(parts, " ")
}

func (p PaymentStatus) CustomerEmail() string {
	if p.Customer != nil && nonEmpty(p.Customer.Email) {
		return *p.Customer.Email
	}
	return ""
}

func str(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

func nonEmpty(p *string) bool {
	return p != nil && strings.TrimSpace(*p) != ""
}
