package orders

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Ledger is the read/reporting side of the orders table. Status transitions go
// through the checkout transaction, never through here.
type Ledger struct {
	DB *pgxpool.Pool
}

const orderColumns = `id, full_name, email, utr_number, quantity, total_amount,
	coupon_codes, payment_proof, payment_verified, status, created_at`

func ScanOrder(row pgx.Row) (Order, error) {
	var o Order
	err := row.Scan(&o.ID, &o.FullName, &o.Email, &o.UTRNumber, &o.Quantity,
		&o.TotalAmount, &o.CouponCodes, &o.PaymentProof, &o.PaymentVerified,
		&o.Status, &o.Timestamp)
	return o, err
}

func (l *Ledger) ListAll(ctx context.Context) ([]Order, error) {
	rows, err := l.DB.Query(ctx, `
		SELECT `+orderColumns+` FROM orders ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	out := make([]Order, 0)
	for rows.Next() {
		o, err := ScanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func (l *Ledger) GetByID(ctx context.Context, id string) (Order, error) {
	o, err := ScanOrder(l.DB.QueryRow(ctx, `
		SELECT `+orderColumns+` FROM orders WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) || isInvalidUUID(err) {
			return Order{}, ErrNotFound
		}
		return Order{}, fmt.Errorf("get order %s: %w", id, err)
	}
	return o, nil
}

// UpdateCouponCodes replaces the allocated code list. It exists for the admin
// PATCH surface; quantity and the identity fields stay immutable.
func (l *Ledger) UpdateCouponCodes(ctx context.Context, id string, codes []string) (Order, error) {
	o, err := ScanOrder(l.DB.QueryRow(ctx, `
		UPDATE orders SET coupon_codes = $2 WHERE id = $1
		RETURNING `+orderColumns, id, codes))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) || isInvalidUUID(err) {
			return Order{}, ErrNotFound
		}
		return Order{}, fmt.Errorf("update order codes %s: %w", id, err)
	}
	return o, nil
}

func (l *Ledger) AggregateStats(ctx context.Context) (AggregateStats, error) {
	var st AggregateStats
	err := l.DB.QueryRow(ctx, `
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE status = 'pending'),
		       COUNT(*) FILTER (WHERE status = 'verified'),
		       COUNT(*) FILTER (WHERE status = 'rejected'),
		       COALESCE(SUM(total_amount) FILTER (WHERE payment_verified), 0),
		       COALESCE(SUM(quantity), 0)
		FROM orders`).Scan(&st.Total, &st.Pending, &st.Verified, &st.Rejected,
		&st.TotalRevenue, &st.TotalCoupons)
	if err != nil {
		return AggregateStats{}, fmt.Errorf("aggregate orders: %w", err)
	}
	return st, nil
}

func isInvalidUUID(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "22P02"
}
