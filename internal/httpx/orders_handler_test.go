package httpx

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"

	"github.com/ariefcatur/go-coupon-shop.git/internal/checkout"
	"github.com/ariefcatur/go-coupon-shop.git/internal/orders"
)

func noAuth(next http.Handler) http.Handler { return next }

func newOrdersServer(t *testing.T) (*httptest.Server, *fakeCheckout, *fakeLedger, *fakePublisher) {
	t.Helper()
	co := &fakeCheckout{orders: map[string]orders.Order{}}
	ledger := &fakeLedger{checkout: co}
	pub := &fakePublisher{}
	r := chi.NewRouter()
	(&OrdersHandler{
		Checkout:         co,
		Ledger:           ledger,
		PlacedProducer:   pub,
		VerifiedProducer: pub,
		RejectedProducer: pub,
		Service:          "test-api",
	}).Register(r, noAuth)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, co, ledger, pub
}

func TestCreateOrder(t *testing.T) {
	t.Parallel()

	t.Run("places a pending order and publishes OrderPlaced", func(t *testing.T) {
		srv, co, _, pub := newOrdersServer(t)
		co.available = 15

		resp := postJSON(t, srv.URL+"/orders", `{
			"fullName":"Asha Rao","email":"asha@example.com",
			"utrNumber":"UTR123456789012","quantity":10,
			"couponCodes":["CLIENT-SUPPLIED"],"totalAmount":99999
		}`)
		require.Equal(t, http.StatusCreated, resp.StatusCode)

		var o orders.Order
		decodeBody(t, resp, &o)
		require.Equal(t, orders.StatusPending, o.Status)
		require.Len(t, o.CouponCodes, 10)
		require.NotContains(t, o.CouponCodes, "CLIENT-SUPPLIED")
		require.EqualValues(t, 240, o.TotalAmount)

		require.Len(t, pub.events, 1)
		require.Equal(t, orders.EventOrderPlaced, pub.events[0].EventType)
		require.Equal(t, o.ID, pub.events[0].CorrelationID)
	})

	t.Run("insufficient stock maps to 409 with available count", func(t *testing.T) {
		srv, co, _, _ := newOrdersServer(t)
		co.available = 4

		resp := postJSON(t, srv.URL+"/orders", `{
			"fullName":"Asha Rao","email":"asha@example.com",
			"utrNumber":"UTR123456789012","quantity":10
		}`)
		require.Equal(t, http.StatusConflict, resp.StatusCode)

		var body map[string]any
		decodeBody(t, resp, &body)
		require.EqualValues(t, 4, body["available"])
	})

	t.Run("validation maps to 400", func(t *testing.T) {
		srv, co, _, _ := newOrdersServer(t)
		co.available = 15

		resp := postJSON(t, srv.URL+"/orders", `{"fullName":"Asha Rao","quantity":10}`)
		require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestGetOrder(t *testing.T) {
	t.Parallel()

	srv, co, _, _ := newOrdersServer(t)
	co.available = 15
	placed := mustPlace(t, co)

	resp, err := http.Get(srv.URL + "/orders/" + placed.ID)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var o orders.Order
	decodeBody(t, resp, &o)
	require.Equal(t, placed.ID, o.ID)

	resp, err = http.Get(srv.URL + "/orders/nope")
	require.NoError(t, err)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestPatchOrder(t *testing.T) {
	t.Parallel()

	t.Run("verify routes through the protocol and publishes", func(t *testing.T) {
		srv, co, _, pub := newOrdersServer(t)
		co.available = 15
		placed := mustPlace(t, co)

		resp := patchJSON(t, srv.URL+"/orders/"+placed.ID, `{"status":"verified","paymentVerified":true}`)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var o orders.Order
		decodeBody(t, resp, &o)
		require.Equal(t, orders.StatusVerified, o.Status)
		require.True(t, o.PaymentVerified)
		require.Equal(t, orders.EventOrderVerified, pub.events[len(pub.events)-1].EventType)
	})

	t.Run("reject", func(t *testing.T) {
		srv, co, _, pub := newOrdersServer(t)
		co.available = 15
		placed := mustPlace(t, co)

		resp := patchJSON(t, srv.URL+"/orders/"+placed.ID, `{"status":"rejected"}`)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var o orders.Order
		decodeBody(t, resp, &o)
		require.Equal(t, orders.StatusRejected, o.Status)
		require.False(t, o.PaymentVerified)
		last := pub.events[len(pub.events)-1]
		require.Equal(t, orders.EventOrderRejected, last.EventType)
	})

	t.Run("second decision conflicts", func(t *testing.T) {
		srv, co, _, _ := newOrdersServer(t)
		co.available = 15
		placed := mustPlace(t, co)

		resp := patchJSON(t, srv.URL+"/orders/"+placed.ID, `{"status":"verified"}`)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		resp = patchJSON(t, srv.URL+"/orders/"+placed.ID, `{"status":"rejected"}`)
		require.Equal(t, http.StatusConflict, resp.StatusCode)
	})

	t.Run("immutable fields are ignored", func(t *testing.T) {
		srv, co, _, _ := newOrdersServer(t)
		co.available = 15
		placed := mustPlace(t, co)

		resp := patchJSON(t, srv.URL+"/orders/"+placed.ID,
			`{"fullName":"Mallory","email":"m@evil.example","quantity":999,"couponCodes":["X1","X2"]}`)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var o orders.Order
		decodeBody(t, resp, &o)
		require.Equal(t, placed.FullName, o.FullName)
		require.Equal(t, placed.Email, o.Email)
		require.Equal(t, placed.Quantity, o.Quantity)
		require.Equal(t, []string{"X1", "X2"}, o.CouponCodes)
	})

	t.Run("unknown status is rejected", func(t *testing.T) {
		srv, co, _, _ := newOrdersServer(t)
		co.available = 15
		placed := mustPlace(t, co)

		resp := patchJSON(t, srv.URL+"/orders/"+placed.ID, `{"status":"shipped"}`)
		require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestOrderStats(t *testing.T) {
	t.Parallel()

	srv, co, _, _ := newOrdersServer(t)
	co.available = 100
	o1 := mustPlace(t, co)
	mustPlace(t, co)
	_, err := co.Verify(context.Background(), o1.ID)
	require.NoError(t, err)

	resp, err := http.Get(srv.URL + "/orders/stats")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var st orders.AggregateStats
	decodeBody(t, resp, &st)
	require.Equal(t, 2, st.Total)
	require.Equal(t, 1, st.Pending)
	require.Equal(t, 1, st.Verified)
	require.Equal(t, st.Total, st.Pending+st.Verified+st.Rejected)
	require.EqualValues(t, o1.TotalAmount, st.TotalRevenue)
	require.EqualValues(t, 20, st.TotalCoupons)
}

// --- fakes ---

// fakeCheckout mimics the allocation protocol against a counter of available
// codes; fakeLedger reads the same backing map.
type fakeCheckout struct {
	available int
	orders    map[string]orders.Order
	seq       int
}

func (f *fakeCheckout) PlaceOrder(_ context.Context, in checkout.PlaceOrderInput) (orders.Order, error) {
	if in.FullName == "" || in.Email == "" || in.UTRNumber == "" {
		return orders.Order{}, checkout.ErrMissingFields
	}
	if len(in.UTRNumber) < 12 {
		return orders.Order{}, checkout.ErrUTRTooShort
	}
	if in.Quantity <= 0 {
		return orders.Order{}, checkout.ErrInvalidQuantity
	}
	if in.Quantity > f.available {
		return orders.Order{}, &checkout.InsufficientStockError{Requested: in.Quantity, Available: f.available}
	}
	f.available -= in.Quantity
	f.seq++
	codes := make([]string, in.Quantity)
	for i := range codes {
		codes[i] = "CODE-" + strings.Repeat("X", f.seq) + "-" + string(rune('a'+i))
	}
	o := orders.Order{
		ID:          "order-" + strings.Repeat("1", f.seq),
		FullName:    in.FullName,
		Email:       in.Email,
		UTRNumber:   in.UTRNumber,
		Quantity:    in.Quantity,
		TotalAmount: int64(in.Quantity) * 24,
		CouponCodes: codes,
		Timestamp:   time.Now().UTC(),
		Status:      orders.StatusPending,
	}
	f.orders[o.ID] = o
	return o, nil
}

func (f *fakeCheckout) Verify(_ context.Context, id string) (orders.Order, error) {
	o, ok := f.orders[id]
	if !ok {
		return orders.Order{}, orders.ErrNotFound
	}
	if !orders.CanTransition(o.Status, orders.StatusVerified) {
		return orders.Order{}, checkout.ErrOrderDecided
	}
	o.Status = orders.StatusVerified
	o.PaymentVerified = true
	f.orders[id] = o
	return o, nil
}

func (f *fakeCheckout) Reject(_ context.Context, id string) (orders.Order, error) {
	o, ok := f.orders[id]
	if !ok {
		return orders.Order{}, orders.ErrNotFound
	}
	if !orders.CanTransition(o.Status, orders.StatusRejected) {
		return orders.Order{}, checkout.ErrOrderDecided
	}
	o.Status = orders.StatusRejected
	o.PaymentVerified = false
	f.available += o.Quantity
	f.orders[id] = o
	return o, nil
}

type fakeLedger struct {
	checkout *fakeCheckout
}

func (f *fakeLedger) ListAll(context.Context) ([]orders.Order, error) {
	out := make([]orders.Order, 0, len(f.checkout.orders))
	for _, o := range f.checkout.orders {
		out = append(out, o)
	}
	return out, nil
}

func (f *fakeLedger) GetByID(_ context.Context, id string) (orders.Order, error) {
	o, ok := f.checkout.orders[id]
	if !ok {
		return orders.Order{}, orders.ErrNotFound
	}
	return o, nil
}

func (f *fakeLedger) UpdateCouponCodes(_ context.Context, id string, codes []string) (orders.Order, error) {
	o, ok := f.checkout.orders[id]
	if !ok {
		return orders.Order{}, orders.ErrNotFound
	}
	o.CouponCodes = codes
	f.checkout.orders[id] = o
	return o, nil
}

func (f *fakeLedger) AggregateStats(context.Context) (orders.AggregateStats, error) {
	var st orders.AggregateStats
	for _, o := range f.checkout.orders {
		st.Total++
		switch o.Status {
		case orders.StatusPending:
			st.Pending++
		case orders.StatusVerified:
			st.Verified++
		case orders.StatusRejected:
			st.Rejected++
		}
		if o.PaymentVerified {
			st.TotalRevenue += o.TotalAmount
		}
		st.TotalCoupons += int64(o.Quantity)
	}
	return st, nil
}

type fakePublisher struct {
	events []orders.Envelope
}

func (f *fakePublisher) Publish(_, value []byte, _ ...kafkago.Header) {
	var env orders.Envelope
	if err := json.Unmarshal(value, &env); err == nil {
		f.events = append(f.events, env)
	}
}

// --- helpers ---

func mustPlace(t *testing.T, co *fakeCheckout) orders.Order {
	t.Helper()
	o, err := co.PlaceOrder(context.Background(), checkout.PlaceOrderInput{
		FullName:  "Asha Rao",
		Email:     "asha@example.com",
		UTRNumber: "UTR123456789012",
		Quantity:  10,
	})
	require.NoError(t, err)
	return o
}

func postJSON(t *testing.T, url, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	return resp
}

func patchJSON(t *testing.T, url, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodPatch, url, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}
