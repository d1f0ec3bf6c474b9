// Package hyperpay talks to the card-tokenizing gateway: hosted checkout
// sessions, registration (vaulting) and payment status lookups.
package hyperpay

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/ariefcatur/marketplace-checkout/internal/apperr"
	"github.com/ariefcatur/marketplace-checkout/internal/config"
	"github.com/ariefcatur/marketplace-checkout/internal/gatewayhttp"
	"github.com/ariefcatur/marketplace-checkout/internal/money"
)

const (
	CodeRejected   = "gateway_rejected"
	CodeIncomplete = "gateway_incomplete"
)

type Client struct {
	cfg  config.HyperPay
	http *gatewayhttp.Client
}

func NewClient(cfg config.HyperPay, hc *gatewayhttp.Client) *Client {
	if cfg.Currency == "" {
		cfg.Currency = "SAR"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Client{cfg: cfg, http: hc}
}

// CreateCheckout returns a checkout id the browser widget is opened with.
func (c *Client) CreateCheckout(ctx context.Context, req CheckoutRequest) (Checkout, error) {
	if err := c.cfg.Validate(); err != nil {
		return Checkout{}, err
	}

	form := url.Values{}
	form.Set("entityId", c.cfg.EntityID)
	if req.Amount.GreaterThan(decimal.Zero) {
		form.Set("amount", money.Fixed2(req.Amount))
		form.Set("currency", c.cfg.Currency)
		if !req.RegistrationOnly {
			paymentType := req.PaymentType
			if paymentType == "" {
				paymentType = "DB"
			}
			form.Set("paymentType", paymentType)
		}
	}
	if req.CreateRegistration {
		form.Set("createRegistration", "true")
	}
	if req.MerchantTransactionID != "" {
		form.Set("merchantTransactionId", req.MerchantTransactionID)
	}
	if req.CustomerEmail != "" {
		form.Set("customer.email", req.CustomerEmail)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/v1/checkouts", strings.NewReader(form.Encode()))
	if err != nil {
		return Checkout{}, fmt.Errorf("build checkout request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	httpReq.Header.Set("Authorization", "Bearer "+c.cfg.AccessToken)

	resp, err := c.http.Do("create_checkout", httpReq)
	if err != nil {
		return Checkout{}, err
	}

	var body struct {
		ID     string `json:"id"`
		Result Result `json:"result"`
	}
	decodeErr := json.Unmarshal(resp.Body, &body)
	if resp.Status != http.StatusOK {
		e := apperr.Gateway(http.StatusBadGateway, "HyperPay rejected the checkout request", rawDetail(resp.Body), nil)
		e.Code = CodeRejected
		return Checkout{}, e
	}
	if decodeErr != nil || body.ID == "" {
		e := apperr.Gateway(http.StatusBadGateway, "No checkoutId returned from HyperPay", rawDetail(resp.Body), decodeErr)
		e.Code = CodeIncomplete
		return Checkout{}, e
	}
	return Checkout{ID: body.ID, Code: body.Result.Code, Description: body.Result.Description}, nil
}

// Lookup fetches the resource behind resourcePath. Declined payments come
// back as a PaymentStatus with a non-success result, not as an error.
func (c *Client) Lookup(ctx context.Context, resourcePath string) (PaymentStatus, error) {
	if err := c.cfg.Validate(); err != nil {
		return PaymentStatus{}, err
	}
	if err := validResourcePath(resourcePath); err != nil {
		return PaymentStatus{}, err
	}

	u := c.cfg.BaseURL + resourcePath
	sep := "?"
	if strings.Contains(u, "?") {
		sep = "&"
	}
	u += sep + url.Values{"entityId": {c.cfg.EntityID}}.Encode()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return PaymentStatus{}, fmt.Errorf("build lookup request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.cfg.AccessToken)

	resp, err := c.http.Do("lookup", httpReq)
	if err != nil {
		return PaymentStatus{}, err
	}
	if resp.Status >= 500 {
		e := apperr.Gateway(http.StatusBadGateway, "HyperPay status lookup failed", rawDetail(resp.Body), nil)
		e.Code = CodeRejected
		return PaymentStatus{}, e
	}

	var ps PaymentStatus
	if err := json.Unmarshal(resp.Body, &ps); err != nil {
		e := apperr.Gateway(http.StatusBadGateway, "Invalid HyperPay response", rawDetail(resp.Body), err)
		e.Code = CodeIncomplete
		return PaymentStatus{}, e
	}
	ps.HTTPStatus = resp.Status
	return ps, nil
}

// validResourcePath keeps lookups on the configured gateway host.
func validResourcePath(p string) error {
	if !strings.HasPrefix(p, "/") || strings.HasPrefix(p, "//") || strings.Contains(p, "://") {
		return apperr.Validation("invalid_resource_path", "resourcePath must be a path on the payment gateway")
	}
	return nil
}

// rawDetail passes a JSON gateway body through verbatim, or as text otherwise.
func rawDetail(b []byte) any {
	if json.Valid(b) {
		return json.RawMessage(b)
	}
	if len(b) == 0 {
		return nil
	}
	return string(b)
}
