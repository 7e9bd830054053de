package httpx

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"

	"github.com/ariefcatur/go-coupon-shop.git/internal/coupons"
	"github.com/ariefcatur/go-coupon-shop.git/internal/redisx"
)

// Clamp for the advisory available-codes listing.
const maxAvailableCount = 200

// CouponInventory is what the coupon endpoints need from the store.
type CouponInventory interface {
	AddBatch(ctx context.Context, codes []string) (coupons.BatchResult, error)
	ListAll(ctx context.Context) ([]coupons.Coupon, error)
	CountByStatus(ctx context.Context) (coupons.Stats, error)
	AvailableCodes(ctx context.Context, n int) ([]string, error)
	CodesByOrder(ctx context.Context, orderID string) ([]string, error)
	MarkUsed(ctx context.Context, codes []string, orderID string) (coupons.MarkUsedResult, error)
	DeleteIfUnused(ctx context.Context, id string) error
}

type CouponsHandler struct {
	Store CouponInventory
	Redis *redis.Client
}

// Register mounts the coupon routes; mutating/inventory routes go behind the
// admin session middleware, the storefront reads stay public.
func (h *CouponsHandler) Register(r chi.Router, adminOnly func(http.Handler) http.Handler) {
	r.Get("/coupons/stats", h.stats)
	r.Get("/coupons/available", h.available)
	r.Get("/coupons/by-order/{orderID}", h.byOrder)

	r.Group(func(r chi.Router) {
		r.Use(adminOnly)
		r.Get("/coupons", h.list)
		r.Post("/coupons", h.add)
		r.Delete("/coupons/{id}", h.delete)
		r.Post("/coupons/mark-used", h.markUsed)
	})
}

type addCouponsReq struct {
	Codes []string `json:"codes"`
}

func (h *CouponsHandler) add(w http.ResponseWriter, r *http.Request) {
	var req addCouponsReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if len(req.Codes) == 0 {
		writeError(w, http.StatusBadRequest, "codes[] required")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	res, err := h.Store.AddBatch(ctx, req.Codes)
	if err != nil {
		mapError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (h *CouponsHandler) list(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	items, err := h.Store.ListAll(ctx)
	if err != nil {
		mapError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *CouponsHandler) stats(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	// Serve the polled stock display from cache when possible.
	if h.Redis != nil {
		if s, err := h.Redis.Get(ctx, redisx.KeyStockStats).Result(); err == nil && s != "" {
			writeJSON(w, http.StatusOK, json.RawMessage(s))
			return
		}
	}

	st, err := h.Store.CountByStatus(ctx)
	if err != nil {
		mapError(w, err)
		return
	}
	if h.Redis != nil {
		b, _ := json.Marshal(st)
		_ = h.Redis.Set(ctx, redisx.KeyStockStats, b, redisx.TTLStockCache).Err()
	}
	writeJSON(w, http.StatusOK, st)
}

func (h *CouponsHandler) available(w http.ResponseWriter, r *http.Request) {
	n, _ := strconv.Atoi(r.URL.Query().Get("count"))
	if n < 0 {
		n = 0
	}
	if n > maxAvailableCount {
		n = maxAvailableCount
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	codes, err := h.Store.AvailableCodes(ctx, n)
	if err != nil {
		mapError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{"codes": codes})
}

func (h *CouponsHandler) byOrder(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderID")

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	codes, err := h.Store.CodesByOrder(ctx, orderID)
	if err != nil {
		mapError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{"codes": codes})
}

type markUsedReq struct {
	Codes   []string `json:"codes"`
	OrderID string   `json:"orderId"`
}

func (h *CouponsHandler) markUsed(w http.ResponseWriter, r *http.Request) {
	var req markUsedReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if len(req.Codes) == 0 {
		writeError(w, http.StatusBadRequest, "codes[] required")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	res, err := h.Store.MarkUsed(ctx, req.Codes, req.OrderID)
	if err != nil {
		mapError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *CouponsHandler) delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := h.Store.DeleteIfUnused(ctx, id); err != nil {
		mapError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}
