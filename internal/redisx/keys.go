package redisx

import "time"

const (
	// Cart snapshot: cart:{buyer_id} -> JSON array of cart items
	KeyCart = "cart:%s"

	// Checkout session per buyer and supplier: checkout:{buyer_id}:{supplier_id} -> JSON session
	KeyCheckoutSession = "checkout:%s:%s"

	// Idempotency per operation: idem:{scope}:{key} -> pending marker or stored response
	KeyIdempotency = "idem:%s:%s"

	// Cached order read model: order:{order_id} -> JSON order
	KeyOrder = "order:%s"

	// Dedup of consumed events: dedup:{service}:{event_id}
	KeyDedup = "dedup:%s:%s"
)

var (
	TTLCart        = 7 * 24 * time.Hour
	TTLSession     = 48 * time.Hour
	TTLIdempotency = 24 * time.Hour
	TTLPending     = 2 * time.Minute
	TTLOrderCache  = 5 * time.Minute
	TTLDedup       = 48 * time.Hour
)
