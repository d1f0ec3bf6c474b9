// Package gopay uploads SADAD bills to the invoice gateway and builds the
// hosted payment page URL for the returned reference.
package gopay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/ariefcatur/marketplace-checkout/internal/apperr"
	"github.com/ariefcatur/marketplace-checkout/internal/config"
	"github.com/ariefcatur/marketplace-checkout/internal/gatewayhttp"
)

type BillItem struct {
	Reference string `json:"reference"`
	Name      string `json:"name"`
	Quantity  int    `json:"quantity"`
	UnitPrice string `json:"unitPrice"`
	Discount  int    `json:"discount"`
	VAT       string `json:"vat"`
}

// Bill is the /simple/upload payload. EntityActivityID, CustomerIDType and
// CustomerIDNumber are filled from configuration when left empty.
type Bill struct {
	BillNumber             string     `json:"billNumber"`
	EntityActivityID       int        `json:"entityActivityId"`
	CustomerIDType         string     `json:"customerIdType"`
	CustomerIDNumber       string     `json:"customerIdNumber"`
	CustomerFullName       string     `json:"customerFullName"`
	CustomerEmailAddress   string     `json:"customerEmailAddress"`
	CustomerMobileNumber   string     `json:"customerMobileNumber"`
	IssueDate              string     `json:"issueDate"`
	ExpireDate             string     `json:"expireDate"`
	ServiceName            string     `json:"serviceName"`
	BillItemList           []BillItem `json:"billItemList"`
	TotalAmount            string     `json:"totalAmount"`
	ShouldCreateEInvoice   bool       `json:"shouldCreateEInvoice"`
	IsPublicView           bool       `json:"isPublicView"`
	ShowOnlinePayNowButton bool       `json:"showOnlinePayNowButton"`
}

type UploadResult struct {
	BillNumber  string
	SadadNumber string
}

type Client struct {
	cfg  config.GoPay
	http *gatewayhttp.Client
}

func NewClient(cfg config.GoPay, hc *gatewayhttp.Client) *Client {
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Client{cfg: cfg, http: hc}
}

// Upload posts the bill. A bill is only accepted when the gateway hands back
// both the bill number and the SADAD number.
func (c *Client) Upload(ctx context.Context, bill Bill) (UploadResult, error) {
	if err := c.cfg.Validate(); err != nil {
		return UploadResult{}, err
	}
	if bill.EntityActivityID == 0 {
		bill.EntityActivityID = c.cfg.ActivityID()
	}
	if bill.CustomerIDType == "" {
		bill.CustomerIDType = "OTH"
	}
	if bill.CustomerIDNumber == "" {
		bill.CustomerIDNumber = c.cfg.TestIDNumber
	}

	payload, err := json.Marshal(bill)
	if err != nil {
		return UploadResult{}, fmt.Errorf("encode bill: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/simple/upload", bytes.NewReader(payload))
	if err != nil {
		return UploadResult{}, fmt.Errorf("build upload request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(c.cfg.Username, c.cfg.Password)

	resp, err := c.http.Do("upload_bill", req)
	if err != nil {
		return UploadResult{}, err
	}
	if resp.Status < 200 || resp.Status > 299 {
		return UploadResult{}, apperr.Gateway(resp.Status, "GoPay rejected the bill", rawDetail(resp.Body), nil)
	}

	var body struct {
		Data *struct {
			BillNumber  string `json:"billNumber"`
			SadadNumber string `json:"sadadNumber"`
		} `json:"data"`
	}
	if err := json.Unmarshal(resp.Body, &body); err != nil {
		return UploadResult{}, apperr.Gateway(http.StatusBadGateway, "Malformed GoPay response", rawDetail(resp.Body), err)
	}
	if body.Data == nil || body.Data.BillNumber == "" || body.Data.SadadNumber == "" {
		return UploadResult{}, apperr.Gateway(http.StatusBadGateway, "Missing billNumber or sadadNumber from GoPay", nil, nil)
	}
	return UploadResult{BillNumber: body.Data.BillNumber, SadadNumber: body.Data.SadadNumber}, nil
}

// RedirectURL points the buyer at the hosted SADAD payment page.
func (c *Client) RedirectURL(sadadNumber string) string {
	return c.cfg.PayURL + "?" + url.Values{"sadadNumber": {sadadNumber}}.Encode()
}

func rawDetail(b []byte) any {
	if json.Valid(b) {
		return json.RawMessage(b)
	}
	if len(b) == 0 {
		return nil
	}
	return string(b)
}
