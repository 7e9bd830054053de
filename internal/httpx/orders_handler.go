package httpx

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"

	"github.com/ariefcatur/go-coupon-shop.git/internal/checkout"
	kafkax "github.com/ariefcatur/go-coupon-shop.git/internal/kafka"
	"github.com/ariefcatur/go-coupon-shop.git/internal/orders"
	"github.com/ariefcatur/go-coupon-shop.git/internal/redisx"
)

// Checkout is the slice of the allocation protocol the HTTP layer drives.
type Checkout interface {
	PlaceOrder(ctx context.Context, in checkout.PlaceOrderInput) (orders.Order, error)
	Verify(ctx context.Context, orderID string) (orders.Order, error)
	Reject(ctx context.Context, orderID string) (orders.Order, error)
}

// OrderLedger is the read/reporting side used by the order endpoints.
type OrderLedger interface {
	ListAll(ctx context.Context) ([]orders.Order, error)
	GetByID(ctx context.Context, id string) (orders.Order, error)
	UpdateCouponCodes(ctx context.Context, id string, codes []string) (orders.Order, error)
	AggregateStats(ctx context.Context) (orders.AggregateStats, error)
}

// Publisher is satisfied by the kafka producer.
type Publisher interface {
	Publish(key, value []byte, headers ...kafkago.Header)
}

type OrdersHandler struct {
	Checkout Checkout
	Ledger   OrderLedger
	// One producer per lifecycle topic, matching the event fan-out.
	PlacedProducer   Publisher
	VerifiedProducer Publisher
	RejectedProducer Publisher
	Redis            *redis.Client
	Service          string
}

func (h *OrdersHandler) Register(r chi.Router, adminOnly func(http.Handler) http.Handler) {
	r.Post("/orders", h.create)
	r.Get("/orders/{id}", h.get)

	r.Group(func(r chi.Router) {
		r.Use(adminOnly)
		r.Get("/orders", h.list)
		r.Get("/orders/stats", h.stats)
		r.Patch("/orders/{id}", h.patch)
	})
}

type createOrderReq struct {
	FullName     string  `json:"fullName"`
	Email        string  `json:"email"`
	UTRNumber    string  `json:"utrNumber"`
	Quantity     int     `json:"quantity"`
	PaymentProof *string `json:"paymentProof"`
}

func (h *OrdersHandler) create(w http.ResponseWriter, r *http.Request) {
	var req createOrderReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	// Codes are allocated server-side inside the placement transaction; any
	// client-supplied couponCodes or totalAmount are ignored.
	o, err := h.Checkout.PlaceOrder(ctx, checkout.PlaceOrderInput{
		FullName:     req.FullName,
		Email:        req.Email,
		UTRNumber:    req.UTRNumber,
		Quantity:     req.Quantity,
		PaymentProof: req.PaymentProof,
	})
	if err != nil {
		mapError(w, err)
		return
	}

	h.cacheOrder(ctx, o)
	h.publish(orders.EventOrderPlaced, o.ID, r.Header.Get("X-Request-Id"),
		orders.OrderPlacedPayload{
			OrderID:     o.ID,
			Email:       o.Email,
			Quantity:    o.Quantity,
			TotalAmount: o.TotalAmount,
		})

	writeJSON(w, http.StatusCreated, o)
}

func (h *OrdersHandler) get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	if h.Redis != nil {
		key := fmt.Sprintf(redisx.KeyOrderStatus, id)
		if s, err := h.Redis.Get(ctx, key).Result(); err == nil && s != "" {
			writeJSON(w, http.StatusOK, json.RawMessage(s))
			return
		}
	}

	o, err := h.Ledger.GetByID(ctx, id)
	if err != nil {
		mapError(w, err)
		return
	}
	h.cacheOrder(ctx, o)
	writeJSON(w, http.StatusOK, o)
}

func (h *OrdersHandler) list(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	items, err := h.Ledger.ListAll(ctx)
	if err != nil {
		mapError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *OrdersHandler) stats(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	st, err := h.Ledger.AggregateStats(ctx)
	if err != nil {
		mapError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

type patchOrderReq struct {
	Status          *string  `json:"status"`
	PaymentVerified *bool    `json:"paymentVerified"`
	CouponCodes     []string `json:"couponCodes"`
}

// patch accepts only {status, paymentVerified, couponCodes}. Status changes
// run through the allocation protocol so coupons are consumed or released in
// the same transaction; every other order field is immutable.
func (h *OrdersHandler) patch(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req patchOrderReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	var (
		o   orders.Order
		err error
	)
	if req.CouponCodes != nil {
		if o, err = h.Ledger.UpdateCouponCodes(ctx, id, req.CouponCodes); err != nil {
			mapError(w, err)
			return
		}
	}

	switch {
	case req.Status == nil:
		if req.CouponCodes == nil {
			// paymentVerified alone is derived from the decision, nothing to do.
			if o, err = h.Ledger.GetByID(ctx, id); err != nil {
				mapError(w, err)
				return
			}
		}
	case *req.Status == string(orders.StatusVerified):
		if o, err = h.Checkout.Verify(ctx, id); err != nil {
			mapError(w, err)
			return
		}
		h.publish(orders.EventOrderVerified, o.ID, r.Header.Get("X-Request-Id"),
			orders.OrderVerifiedPayload{OrderID: o.ID, CouponCodes: o.CouponCodes})
	case *req.Status == string(orders.StatusRejected):
		if o, err = h.Checkout.Reject(ctx, id); err != nil {
			mapError(w, err)
			return
		}
		h.publish(orders.EventOrderRejected, o.ID, r.Header.Get("X-Request-Id"),
			orders.OrderRejectedPayload{OrderID: o.ID, Reason: orders.RejectReasonAdmin})
	default:
		writeError(w, http.StatusBadRequest, "status must be verified or rejected")
		return
	}

	h.cacheOrder(ctx, o)
	writeJSON(w, http.StatusOK, o)
}

func (h *OrdersHandler) cacheOrder(ctx context.Context, o orders.Order) {
	if h.Redis == nil {
		return
	}
	b, err := json.Marshal(o)
	if err != nil {
		return
	}
	key := fmt.Sprintf(redisx.KeyOrderStatus, o.ID)
	_ = h.Redis.Set(ctx, key, b, redisx.TTLStatusCache).Err()
}

func (h *OrdersHandler) publish(eventType, orderID, traceID string, payload any) {
	var p Publisher
	switch eventType {
	case orders.EventOrderPlaced:
		p = h.PlacedProducer
	case orders.EventOrderVerified:
		p = h.VerifiedProducer
	case orders.EventOrderRejected:
		p = h.RejectedProducer
	}
	if p == nil {
		return
	}
	ev := orders.Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      h.Service,
		TraceID:       traceID,
		CorrelationID: orderID,
		Payload:       kafkax.MustMarshal(payload),
	}
	p.Publish(orders.PartitionKey(orderID), kafkax.MustMarshal(ev),
		kafkago.Header{Key: "x-event-type", Value: []byte(eventType)},
		kafkago.Header{Key: "x-event-version", Value: []byte("1")},
	)
}
