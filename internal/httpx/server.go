package httpx

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/ariefcatur/go-coupon-shop.git/internal/checkout"
	"github.com/ariefcatur/go-coupon-shop.git/internal/coupons"
	"github.com/ariefcatur/go-coupon-shop.git/internal/orders"
)

func NewRouter() *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Logger)
	r.Use(middleware.Timeout(15 * time.Second))
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return r
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

// mapError turns domain failures into the HTTP taxonomy: 400 validation,
// 404 not found, 409 conflict, 500 everything else.
func mapError(w http.ResponseWriter, err error) {
	var stock *checkout.InsufficientStockError
	switch {
	case errors.As(err, &stock):
		writeJSON(w, http.StatusConflict, map[string]any{
			"error":     stock.Error(),
			"available": stock.Available,
		})
	case errors.Is(err, orders.ErrNotFound):
		writeError(w, http.StatusNotFound, "order not found")
	case errors.Is(err, coupons.ErrNotFoundOrUsed):
		writeError(w, http.StatusNotFound, "not found or already used")
	case errors.Is(err, checkout.ErrOrderDecided):
		writeError(w, http.StatusConflict, "order already decided")
	case errors.Is(err, checkout.ErrMissingFields),
		errors.Is(err, checkout.ErrUTRTooShort),
		errors.Is(err, checkout.ErrInvalidQuantity),
		errors.Is(err, coupons.ErrNoCodes):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}
