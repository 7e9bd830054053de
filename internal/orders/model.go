package orders

import (
	"errors"
	"time"
)

var ErrNotFound = errors.New("order not found")

// Order is a manual-payment purchase: the customer claims a bank transfer via
// a free-text UTR reference and an admin later verifies or rejects it. Only
// status, paymentVerified and couponCodes ever change after creation.
type Order struct {
	ID              string    `json:"id"`
	FullName        string    `json:"fullName"`
	Email           string    `json:"email"`
	UTRNumber       string    `json:"utrNumber"`
	Quantity        int       `json:"quantity"`
	TotalAmount     int64     `json:"totalAmount"`
	CouponCodes     []string  `json:"couponCodes"`
	PaymentProof    *string   `json:"paymentProof,omitempty"`
	Timestamp       time.Time `json:"timestamp"`
	PaymentVerified bool      `json:"paymentVerified"`
	Status          Status    `json:"status"`
}

type AggregateStats struct {
	Total        int   `json:"total"`
	Pending      int   `json:"pending"`
	Verified     int   `json:"verified"`
	Rejected     int   `json:"rejected"`
	TotalRevenue int64 `json:"totalRevenue"`
	TotalCoupons int64 `json:"totalCoupons"`
}
