package httpx

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/ariefcatur/go-coupon-shop.git/internal/coupons"
)

type fakeInventory struct {
	stats        coupons.Stats
	availableArg int
	byOrder      map[string][]string
	deleted      []string
	deleteErr    error
	addResult    coupons.BatchResult
	markResult   coupons.MarkUsedResult
}

func (f *fakeInventory) AddBatch(_ context.Context, codes []string) (coupons.BatchResult, error) {
	return f.addResult, nil
}

func (f *fakeInventory) ListAll(context.Context) ([]coupons.Coupon, error) {
	return nil, nil
}

func (f *fakeInventory) CountByStatus(context.Context) (coupons.Stats, error) {
	return f.stats, nil
}

func (f *fakeInventory) AvailableCodes(_ context.Context, n int) ([]string, error) {
	f.availableArg = n
	codes := make([]string, n)
	for i := range codes {
		codes[i] = "C"
	}
	return codes, nil
}

func (f *fakeInventory) CodesByOrder(_ context.Context, orderID string) ([]string, error) {
	return f.byOrder[orderID], nil
}

func (f *fakeInventory) MarkUsed(_ context.Context, codes []string, orderID string) (coupons.MarkUsedResult, error) {
	return f.markResult, nil
}

func (f *fakeInventory) DeleteIfUnused(_ context.Context, id string) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.deleted = append(f.deleted, id)
	return nil
}

func newCouponsServer(t *testing.T) (*httptest.Server, *fakeInventory) {
	t.Helper()
	inv := &fakeInventory{byOrder: map[string][]string{}}
	r := chi.NewRouter()
	(&CouponsHandler{Store: inv}).Register(r, noAuth)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, inv
}

func TestAvailableCountClamp(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name  string
		query string
		want  int
	}{
		{"missing defaults to zero", "", 0},
		{"negative clamps to zero", "?count=-3", 0},
		{"garbage treated as zero", "?count=ten", 0},
		{"in range passes through", "?count=25", 25},
		{"over the cap clamps", "?count=5000", 200},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv, inv := newCouponsServer(t)
			resp, err := http.Get(srv.URL + "/coupons/available" + tc.query)
			require.NoError(t, err)
			require.Equal(t, http.StatusOK, resp.StatusCode)
			require.Equal(t, tc.want, inv.availableArg)

			var body map[string][]string
			decodeBody(t, resp, &body)
			require.Len(t, body["codes"], tc.want)
		})
	}
}

func TestCouponStats(t *testing.T) {
	t.Parallel()

	srv, inv := newCouponsServer(t)
	inv.stats = coupons.Stats{Total: 20, Available: 12, Reserved: 5, Used: 3}

	resp, err := http.Get(srv.URL + "/coupons/stats")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var st coupons.Stats
	decodeBody(t, resp, &st)
	require.Equal(t, inv.stats, st)
}

func TestAddCoupons(t *testing.T) {
	t.Parallel()

	srv, inv := newCouponsServer(t)
	inv.addResult = coupons.BatchResult{
		Inserted:   []coupons.Coupon{{ID: "c1", Code: "A", Status: coupons.StatusAvailable}},
		Duplicates: []string{"B"},
	}

	resp := postJSON(t, srv.URL+"/coupons", `{"codes":["A","B"]}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var res struct {
		Inserted   []map[string]any `json:"inserted"`
		Duplicates []string         `json:"duplicates"`
	}
	decodeBody(t, resp, &res)
	require.Len(t, res.Inserted, 1)
	require.Equal(t, "A", res.Inserted[0]["code"])
	require.Equal(t, []string{"B"}, res.Duplicates)

	resp = postJSON(t, srv.URL+"/coupons", `{"codes":[]}`)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = postJSON(t, srv.URL+"/coupons", `not json`)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestMarkUsed(t *testing.T) {
	t.Parallel()

	srv, inv := newCouponsServer(t)
	inv.markResult = coupons.MarkUsedResult{Matched: 2, Updated: 2}

	resp := postJSON(t, srv.URL+"/coupons/mark-used", `{"codes":["A","B"],"orderId":"o1"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var res coupons.MarkUsedResult
	decodeBody(t, resp, &res)
	require.Equal(t, inv.markResult, res)

	resp = postJSON(t, srv.URL+"/coupons/mark-used", `{"orderId":"o1"}`)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestDeleteCoupon(t *testing.T) {
	t.Parallel()

	srv, inv := newCouponsServer(t)

	req, err := http.NewRequest(http.MethodDelete, srv.URL+"/coupons/abc", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, []string{"abc"}, inv.deleted)

	inv.deleteErr = coupons.ErrNotFoundOrUsed
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCodesByOrder(t *testing.T) {
	t.Parallel()

	srv, inv := newCouponsServer(t)
	inv.byOrder["o1"] = []string{"A", "B"}

	resp, err := http.Get(srv.URL + "/coupons/by-order/o1")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var body map[string][]string
	decodeBody(t, resp, &body)
	require.Equal(t, []string{"A", "B"}, body["codes"])
}
