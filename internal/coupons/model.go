package coupons

import (
	"encoding/json"
	"errors"
	"strings"
	"time"
)

var (
	ErrNoCodes        = errors.New("codes required")
	ErrNotFoundOrUsed = errors.New("coupon not found or already used")
)

type Status string

const (
	StatusAvailable Status = "available"
	StatusReserved  Status = "reserved"
	StatusUsed      Status = "used"
)

// Coupon is a single-use discount code. It moves available -> reserved -> used;
// reserved falls back to available on rejection or reservation expiry, used is final.
type Coupon struct {
	ID         string
	Code       string
	Status     Status
	AddedAt    time.Time
	ReservedAt *time.Time
	UsedAt     *time.Time
	OrderID    *string
}

func (c Coupon) IsUsed() bool { return c.Status == StatusUsed }

// MarshalJSON keeps the legacy wire shape: isUsed is derived from status.
func (c Coupon) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		ID      string     `json:"id"`
		Code    string     `json:"code"`
		Status  Status     `json:"status"`
		IsUsed  bool       `json:"isUsed"`
		AddedAt time.Time  `json:"addedAt"`
		UsedAt  *time.Time `json:"usedAt,omitempty"`
		OrderID *string    `json:"orderId,omitempty"`
	}{
		ID:      c.ID,
		Code:    c.Code,
		Status:  c.Status,
		IsUsed:  c.IsUsed(),
		AddedAt: c.AddedAt,
		UsedAt:  c.UsedAt,
		OrderID: c.OrderID,
	})
}

type Stats struct {
	Total     int `json:"total"`
	Available int `json:"available"`
	Reserved  int `json:"reserved"`
	Used      int `json:"used"`
}

type MarkUsedResult struct {
	Matched int64 `json:"matched"`
	Updated int64 `json:"updated"`
}

type BatchResult struct {
	Inserted   []Coupon `json:"inserted"`
	Duplicates []string `json:"duplicates,omitempty"`
}

// NormalizeCodes trims surrounding whitespace, drops empties, and dedupes
// while keeping first-seen order.
func NormalizeCodes(codes []string) []string {
	seen := make(map[string]bool, len(codes))
	out := make([]string, 0, len(codes))
	for _, c := range codes {
		t := strings.TrimSpace(c)
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}
