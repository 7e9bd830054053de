package coupons

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ariefcatur/go-coupon-shop.git/internal/clock"
)

// Store owns the coupons table. Every mutation is a single conditional
// statement so concurrent callers can never lose an update.
type Store struct {
	DB    *pgxpool.Pool
	Clock clock.Clock
}

const couponColumns = `id, code, status, added_at, reserved_at, used_at, order_id`

func scanCoupon(row pgx.Row) (Coupon, error) {
	var c Coupon
	err := row.Scan(&c.ID, &c.Code, &c.Status, &c.AddedAt, &c.ReservedAt, &c.UsedAt, &c.OrderID)
	return c, err
}

// AddBatch inserts the given codes, skipping ones that already exist. The
// batch is partial-tolerant: a duplicate never rolls back its siblings.
func (s *Store) AddBatch(ctx context.Context, codes []string) (BatchResult, error) {
	codes = NormalizeCodes(codes)
	if len(codes) == 0 {
		return BatchResult{}, ErrNoCodes
	}

	now := s.Clock.Now()
	res := BatchResult{Inserted: make([]Coupon, 0, len(codes))}
	for _, code := range codes {
		row := s.DB.QueryRow(ctx, `
			INSERT INTO coupons (id, code, status, added_at)
			VALUES ($1, $2, 'available', $3)
			ON CONFLICT (code) DO NOTHING
			RETURNING `+couponColumns,
			uuid.NewString(), code, now,
		)
		c, err := scanCoupon(row)
		if err != nil {
			if err == pgx.ErrNoRows {
				res.Duplicates = append(res.Duplicates, code)
				continue
			}
			return res, fmt.Errorf("insert coupon %q: %w", code, err)
		}
		res.Inserted = append(res.Inserted, c)
	}
	return res, nil
}

func (s *Store) ListAll(ctx context.Context) ([]Coupon, error) {
	rows, err := s.DB.Query(ctx, `
		SELECT `+couponColumns+` FROM coupons ORDER BY added_at DESC, code`)
	if err != nil {
		return nil, fmt.Errorf("list coupons: %w", err)
	}
	defer rows.Close()

	out := make([]Coupon, 0)
	for rows.Next() {
		c, err := scanCoupon(rows)
		if err != nil {
			return nil, fmt.Errorf("scan coupon: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Store) CountByStatus(ctx context.Context) (Stats, error) {
	var st Stats
	err := s.DB.QueryRow(ctx, `
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE status = 'available'),
		       COUNT(*) FILTER (WHERE status = 'reserved'),
		       COUNT(*) FILTER (WHERE status = 'used')
		FROM coupons`).Scan(&st.Total, &st.Available, &st.Reserved, &st.Used)
	if err != nil {
		return Stats{}, fmt.Errorf("count coupons: %w", err)
	}
	return st, nil
}

// AvailableCodes is a read-only, advisory selection: it does not reserve
// anything. Actual allocation happens inside the checkout transaction.
func (s *Store) AvailableCodes(ctx context.Context, n int) ([]string, error) {
	if n <= 0 {
		return []string{}, nil
	}
	rows, err := s.DB.Query(ctx, `
		SELECT code FROM coupons
		WHERE status = 'available'
		ORDER BY added_at DESC, code
		LIMIT $1`, n)
	if err != nil {
		return nil, fmt.Errorf("select available codes: %w", err)
	}
	defer rows.Close()
	return collectCodes(rows)
}

func (s *Store) CodesByOrder(ctx context.Context, orderID string) ([]string, error) {
	if _, err := uuid.Parse(orderID); err != nil {
		return []string{}, nil
	}
	rows, err := s.DB.Query(ctx, `
		SELECT code FROM coupons WHERE order_id = $1 ORDER BY added_at DESC, code`, orderID)
	if err != nil {
		return nil, fmt.Errorf("select codes by order: %w", err)
	}
	defer rows.Close()
	return collectCodes(rows)
}

// MarkUsed flips every not-yet-used coupon in codes to used. Already-used
// codes are skipped, so calling it twice is safe.
func (s *Store) MarkUsed(ctx context.Context, codes []string, orderID string) (MarkUsedResult, error) {
	codes = NormalizeCodes(codes)
	if len(codes) == 0 {
		return MarkUsedResult{}, ErrNoCodes
	}
	// order_id is a UUID column; an absent or malformed id stays NULL.
	var oid any
	if _, err := uuid.Parse(orderID); err == nil {
		oid = orderID
	}
	ct, err := s.DB.Exec(ctx, `
		UPDATE coupons
		SET status = 'used', used_at = $1, order_id = $2, reserved_at = NULL
		WHERE code = ANY($3) AND status <> 'used'`,
		s.Clock.Now(), oid, codes,
	)
	if err != nil {
		return MarkUsedResult{}, fmt.Errorf("mark coupons used: %w", err)
	}
	n := ct.RowsAffected()
	return MarkUsedResult{Matched: n, Updated: n}, nil
}

// DeleteIfUnused removes a coupon only while it is available. Reserved codes
// belong to a pending order (deleting one would strand the order's code list)
// and used codes stay forever as the audit trail of what went out.
func (s *Store) DeleteIfUnused(ctx context.Context, id string) error {
	ct, err := s.DB.Exec(ctx, `
		DELETE FROM coupons WHERE id = $1 AND status = 'available'`, id)
	if err != nil {
		if isInvalidUUID(err) {
			return ErrNotFoundOrUsed
		}
		return fmt.Errorf("delete coupon %s: %w", id, err)
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFoundOrUsed
	}
	return nil
}

func isInvalidUUID(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "22P02"
}

func collectCodes(rows pgx.Rows) ([]string, error) {
	codes := make([]string, 0)
	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			return nil, fmt.Errorf("scan code: %w", err)
		}
		codes = append(codes, code)
	}
	return codes, rows.Err()
}
