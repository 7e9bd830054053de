package checkout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ariefcatur/go-coupon-shop.git/internal/orders"
)

// Repo implements Repository against Postgres. The WithTx transaction rides
// in the context so every primitive picks it up transparently.
type Repo struct{ DB *pgxpool.Pool }

type txKey struct{}

func (r *Repo) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if txFromContext(ctx) != nil {
		return fn(ctx)
	}
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}

func txFromContext(ctx context.Context) pgx.Tx {
	tx, _ := ctx.Value(txKey{}).(pgx.Tx)
	return tx
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func (r *Repo) q(ctx context.Context) querier {
	if tx := txFromContext(ctx); tx != nil {
		return tx
	}
	return r.DB
}

// LockAvailableCodes picks up to limit available codes newest-first and row
// locks them. SKIP LOCKED keeps concurrent placements from queueing on each
// other's picks, so the same code can never be handed to two orders.
func (r *Repo) LockAvailableCodes(ctx context.Context, limit int) ([]string, error) {
	rows, err := r.q(ctx).Query(ctx, `
		SELECT code FROM coupons
		WHERE status = 'available'
		ORDER BY added_at DESC, code
		LIMIT $1
		FOR UPDATE SKIP LOCKED`, limit)
	if err != nil {
		return nil, fmt.Errorf("lock available codes: %w", err)
	}
	defer rows.Close()

	codes := make([]string, 0, limit)
	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			return nil, fmt.Errorf("scan code: %w", err)
		}
		codes = append(codes, code)
	}
	return codes, rows.Err()
}

func (r *Repo) CountAvailable(ctx context.Context) (int, error) {
	var n int
	err := r.q(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM coupons WHERE status = 'available'`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count available: %w", err)
	}
	return n, nil
}

func (r *Repo) ReserveCodes(ctx context.Context, codes []string, orderID string, now time.Time) error {
	ct, err := r.q(ctx).Exec(ctx, `
		UPDATE coupons
		SET status = 'reserved', reserved_at = $2, order_id = $3
		WHERE code = ANY($1) AND status = 'available'`,
		codes, now, orderID)
	if err != nil {
		return fmt.Errorf("reserve codes: %w", err)
	}
	if int(ct.RowsAffected()) != len(codes) {
		return fmt.Errorf("reserve codes: reserved %d of %d", ct.RowsAffected(), len(codes))
	}
	return nil
}

func (r *Repo) InsertOrder(ctx context.Context, o orders.Order) error {
	_, err := r.q(ctx).Exec(ctx, `
		INSERT INTO orders (id, full_name, email, utr_number, quantity, total_amount,
			coupon_codes, payment_proof, payment_verified, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		o.ID, o.FullName, o.Email, o.UTRNumber, o.Quantity, o.TotalAmount,
		o.CouponCodes, o.PaymentProof, o.PaymentVerified, o.Status, o.Timestamp)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}
	return nil
}

func (r *Repo) GetOrderForUpdate(ctx context.Context, id string) (orders.Order, error) {
	o, err := orders.ScanOrder(r.q(ctx).QueryRow(ctx, `
		SELECT id, full_name, email, utr_number, quantity, total_amount,
			coupon_codes, payment_proof, payment_verified, status, created_at
		FROM orders WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) || isInvalidUUID(err) {
			return orders.Order{}, orders.ErrNotFound
		}
		return orders.Order{}, fmt.Errorf("lock order %s: %w", id, err)
	}
	return o, nil
}

func (r *Repo) MarkReservedUsed(ctx context.Context, orderID string, now time.Time) (int64, error) {
	ct, err := r.q(ctx).Exec(ctx, `
		UPDATE coupons
		SET status = 'used', used_at = $2, reserved_at = NULL
		WHERE order_id = $1 AND status = 'reserved'`,
		orderID, now)
	if err != nil {
		return 0, fmt.Errorf("mark reserved used: %w", err)
	}
	return ct.RowsAffected(), nil
}

func (r *Repo) ReleaseReserved(ctx context.Context, orderID string) (int64, error) {
	ct, err := r.q(ctx).Exec(ctx, `
		UPDATE coupons
		SET status = 'available', reserved_at = NULL, order_id = NULL
		WHERE order_id = $1 AND status = 'reserved'`,
		orderID)
	if err != nil {
		return 0, fmt.Errorf("release reserved: %w", err)
	}
	return ct.RowsAffected(), nil
}

func (r *Repo) SetOrderStatus(ctx context.Context, id string, st orders.Status, paymentVerified bool) error {
	ct, err := r.q(ctx).Exec(ctx, `
		UPDATE orders SET status = $2, payment_verified = $3 WHERE id = $1`,
		id, st, paymentVerified)
	if err != nil {
		return fmt.Errorf("set order status: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return orders.ErrNotFound
	}
	return nil
}

func (r *Repo) ExpiredReservationOrders(ctx context.Context, cutoff time.Time) ([]string, error) {
	rows, err := r.q(ctx).Query(ctx, `
		SELECT DISTINCT o.id
		FROM orders o
		JOIN coupons c ON c.order_id = o.id
		WHERE o.status = 'pending' AND c.status = 'reserved' AND c.reserved_at < $1`,
		cutoff)
	if err != nil {
		return nil, fmt.Errorf("expired reservation orders: %w", err)
	}
	defer rows.Close()

	ids := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan order id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func isInvalidUUID(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "22P02"
}
