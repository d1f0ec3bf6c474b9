package payments

import (
	"context"
	"errors"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/ariefcatur/marketplace-checkout/internal/apperr"
	"github.com/ariefcatur/marketplace-checkout/internal/cart"
	"github.com/ariefcatur/marketplace-checkout/internal/checkout"
	"github.com/ariefcatur/marketplace-checkout/internal/gopay"
	"github.com/ariefcatur/marketplace-checkout/internal/logging"
	"github.com/ariefcatur/marketplace-checkout/internal/money"
	"github.com/ariefcatur/marketplace-checkout/internal/orders"
)

const (
	FallbackPhone        = "966512345678"
	DefaultCustomerName  = "Valued Customer"
	DefaultCustomerEmail = "no-reply@domain.com"
	DefaultServiceName   = "Order Payment"
	BillItemVAT          = "0.15"

	maxNameLength = 255
	dateLayout    = "2006-01-02"
	billValidity  = 7 * 24 * time.Hour
)

var (
	nonDigits   = regexp.MustCompile(`\D`)
	saudiMobile = regexp.MustCompile(`^9665\d{8}$`)
)

// InvoiceService issues SADAD bills for a supplier's cart partition and
// records them as pending orders until the payment notification arrives.
type InvoiceService struct {
	Gateway  InvoiceGateway
	Sink     *OrderSink
	Currency string
	Log      *zap.Logger
	Now      func() time.Time
}

type InvoiceRequest struct {
	BuyerID        string
	SupplierID     string
	FirstName      string
	LastName       string
	Phone          string
	Email          string
	BillNumber     string
	IssueDate      string
	ExpireDate     string
	ServiceName    string
	Items          []cart.Item
	Amount         decimal.Decimal
	ShippingCost   decimal.Decimal
	Addresses      []checkout.Address
	IdempotencyKey string
}

type Invoice struct {
	BillNumber  string `json:"billNumber"`
	SadadNumber string `json:"sadadNumber"`
	RedirectURL string `json:"redirectUrl"`
}

func (s *InvoiceService) CreateInvoice(ctx context.Context, req InvoiceRequest) (Invoice, error) {
	if len(req.Items) == 0 {
		return Invoice{}, apperr.Validation("cart_empty", "Cart is empty")
	}
	log := s.logger()

	phone, fellBack := NormalizePhone(req.Phone)
	if fellBack {
		log.Warn("customer mobile number unusable, using fallback", zap.String("raw", req.Phone), zap.String("phone", phone))
	}
	name := CustomerName(req.FirstName, req.LastName)
	email := strings.TrimSpace(req.Email)
	if email == "" {
		email = DefaultCustomerEmail
	}

	now := s.now().UTC()
	billNumber := strings.TrimSpace(req.BillNumber)
	if billNumber == "" {
		billNumber = strings.TrimSpace(req.IdempotencyKey)
	}
	if billNumber == "" {
		billNumber = strconv.FormatInt(now.UnixMilli(), 10)
	}
	issue := orDefault(req.IssueDate, now.Format(dateLayout))
	expire := orDefault(req.ExpireDate, now.Add(billValidity).Format(dateLayout))
	service := orDefault(req.ServiceName, DefaultServiceName)

	amount := req.Amount
	if amount.IsZero() {
		amount = InvoiceTotal(req.Items, req.ShippingCost)
	}

	res, err := s.Gateway.Upload(ctx, gopay.Bill{
		BillNumber:             billNumber,
		CustomerFullName:       name,
		CustomerEmailAddress:   email,
		CustomerMobileNumber:   phone,
		IssueDate:              issue,
		ExpireDate:             expire,
		ServiceName:            service,
		BillItemList:           BuildBillItems(req.Items, req.ShippingCost),
		TotalAmount:            money.Fixed2(amount),
		ShouldCreateEInvoice:   false,
		IsPublicView:           true,
		ShowOnlinePayNowButton: true,
	})
	if err != nil {
		return Invoice{}, err
	}

	_, err = s.Sink.Save(ctx, orders.Order{
		ID:         res.BillNumber,
		Method:     orders.MethodInvoiceGateway,
		BuyerID:    req.BuyerID,
		SupplierID: req.SupplierID,
		Customer: orders.Customer{
			Name:      name,
			Email:     email,
			Phone:     phone,
			Addresses: req.Addresses,
		},
		Items:            req.Items,
		Amount:           money.Round2(amount),
		Currency:         s.Currency,
		Status:           orders.StatusPending,
		GatewayReference: res.SadadNumber,
	})
	if err != nil {
		return Invoice{}, err
	}
	log.Info("invoice issued", zap.String("bill_number", res.BillNumber), zap.String("supplier_id", req.SupplierID))
	return Invoice{
		BillNumber:  res.BillNumber,
		SadadNumber: res.SadadNumber,
		RedirectURL: s.Gateway.RedirectURL(res.SadadNumber),
	}, nil
}

type PaymentNotification struct {
	BillNumber    string          `json:"billNumber"`
	PaymentStatus string          `json:"paymentStatus"`
	PaymentAmount decimal.Decimal `json:"paymentAmount"`
	PaymentDate   string          `json:"paymentDate"`
}

// Settle applies a GoPay payment notification to the pending order of the
// bill. Only a paid status completes it; other statuses leave it as is.
func (s *InvoiceService) Settle(ctx context.Context, n PaymentNotification) (orders.Order, error) {
	if strings.TrimSpace(n.BillNumber) == "" || strings.TrimSpace(n.PaymentStatus) == "" {
		return orders.Order{}, apperr.Validation("notification_incomplete", "billNumber and paymentStatus are required")
	}
	o, err := s.Sink.Orders.GetOrder(ctx, n.BillNumber)
	if errors.Is(err, orders.ErrNotFound) {
		return orders.Order{}, apperr.NotFound("Unknown bill number")
	}
	if err != nil {
		return orders.Order{}, apperr.Persistence("Could not load order", err)
	}
	if o.Method != orders.MethodInvoiceGateway {
		return orders.Order{}, apperr.Conflict("Order was not paid by invoice")
	}
	if !isPaid(n.PaymentStatus) {
		s.logger().Info("invoice notification without payment", zap.String("bill_number", n.BillNumber),
			zap.String("payment_status", n.PaymentStatus))
		return o, nil
	}

	o.Status = orders.StatusCompleted
	saved, err := s.Sink.Orders.UpsertOrder(ctx, o)
	if err != nil {
		return orders.Order{}, apperr.Persistence("Could not settle order", err)
	}
	return saved, nil
}

// NormalizePhone reduces raw to a Saudi mobile number in 9665XXXXXXXX form.
// Anything that does not normalize is replaced by FallbackPhone, reported by
// the second return value.
func NormalizePhone(raw string) (string, bool) {
	digits := nonDigits.ReplaceAllString(raw, "")
	if strings.HasPrefix(digits, "0") {
		digits = "966" + digits[1:]
	}
	if saudiMobile.MatchString(digits) {
		return digits, false
	}
	return FallbackPhone, true
}

// BuildBillItems converts cart lines to bill lines. A unit price is the line
// subtotal over its quantity, rounded to 2 dp.
func BuildBillItems(items []cart.Item, shipping decimal.Decimal) []gopay.BillItem {
	out := make([]gopay.BillItem, 0, len(items)+1)
	for _, it := range items {
		q := it.Quantity
		if q <= 0 {
			q = 1
		}
		out = append(out, gopay.BillItem{
			Reference: it.ID,
			Name:      it.ProductName,
			Quantity:  q,
			UnitPrice: money.Fixed2(it.Subtotal.Div(decimal.NewFromInt(int64(q)))),
			Discount:  0,
			VAT:       BillItemVAT,
		})
	}
	if shipping.GreaterThan(decimal.Zero) {
		out = append(out, gopay.BillItem{
			Reference: "shipping",
			Name:      "Shipping",
			Quantity:  1,
			UnitPrice: money.Fixed2(shipping),
			Discount:  0,
			VAT:       BillItemVAT,
		})
	}
	return out
}

// InvoiceTotal is the bill total when the caller sent none: item subtotals
// plus shipping plus VAT. Shipping defaults to the items' own shipping cost.
func InvoiceTotal(items []cart.Item, shipping decimal.Decimal) decimal.Decimal {
	sum := cart.Aggregate(items)
	if !shipping.GreaterThan(decimal.Zero) {
		shipping = sum.Shipping
	}
	_, total := cart.Totals(sum.Subtotal, shipping)
	return total
}

func CustomerName(first, last string) string {
	name := strings.TrimSpace(strings.TrimSpace(first) + " " + strings.TrimSpace(last))
	if name == "" {
		return DefaultCustomerName
	}
	if r := []rune(name); len(r) > maxNameLength {
		name = string(r[:maxNameLength])
	}
	return name
}

func isPaid(status string) bool {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "paid", "success", "successful", "completed", "settled":
		return true
	}
	return false
}

func orDefault(v, def string) string {
	if v = strings.TrimSpace(v); v == "" {
		return def
	}
	return v
}

func (s *InvoiceService) now() time.Time {
	if s.Now == nil {
		return time.Now()
	}
	return s.Now()
}

func (s *InvoiceService) logger() *zap.Logger { return logging.OrNop(s.Log) }
