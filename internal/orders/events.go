package orders

import (
	"encoding/json"
	"time"
)

const (
	EventOrderPlaced   = "OrderPlaced"
	EventOrderVerified = "OrderVerified"
	EventOrderRejected = "OrderRejected"
)

// Rejection reasons carried by OrderRejected.
const (
	RejectReasonAdmin   = "ADMIN_REJECTED"
	RejectReasonExpired = "RESERVATION_EXPIRED"
)

type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"` // order id
	Payload       json.RawMessage `json:"payload"`
}

type OrderPlacedPayload struct {
	OrderID     string `json:"order_id"`
	Email       string `json:"email"`
	Quantity    int    `json:"quantity"`
	TotalAmount int64  `json:"total_amount"`
}

type OrderVerifiedPayload struct {
	OrderID     string   `json:"order_id"`
	CouponCodes []string `json:"coupon_codes"`
}

type OrderRejectedPayload struct {
	OrderID string `json:"order_id"`
	Reason  string `json:"reason"`
}
