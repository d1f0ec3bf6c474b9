package orders

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

const (
	EventOrderPlaced       = "OrderPlaced"
	EventOrderPersistRetry = "OrderPersistRetry"
)

type Envelope struct {
	EventID       string          `json:"event_id"`      // uuid
	EventType     string          `json:"event_type"`    // one of the consts above
	EventVersion  int             `json:"event_version"` // 1
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"` // e.g. "checkout-api"
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"` // order id
	Payload       json.RawMessage `json:"payload"`
}

type OrderPlacedPayload struct {
	OrderID    string          `json:"order_id"`
	Method     Method          `json:"method"`
	Status     Status          `json:"status"`
	BuyerID    string          `json:"buyer_id,omitempty"`
	SupplierID string          `json:"supplier_id,omitempty"`
	Amount     decimal.Decimal `json:"amount"`
	Currency   string          `json:"currency"`
}

// PersistRetryPayload carries a full order whose write failed after the
// gateway had already accepted the payment.
type PersistRetryPayload struct {
	Order     Order  `json:"order"`
	Attempt   int    `json:"attempt"`
	LastError string `json:"last_error,omitempty"`
}
