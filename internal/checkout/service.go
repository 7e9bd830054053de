package checkout

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/ariefcatur/go-coupon-shop.git/internal/clock"
	"github.com/ariefcatur/go-coupon-shop.git/internal/orders"
)

var (
	ErrMissingFields   = errors.New("fullName, email and utrNumber are required")
	ErrUTRTooShort     = errors.New("utrNumber must be at least 12 characters")
	ErrInvalidQuantity = errors.New("invalid quantity")
	ErrOrderDecided    = errors.New("order already decided")
)

const utrMinLen = 12

// InsufficientStockError carries the live available count so the storefront
// can tell the customer how many codes are actually left.
type InsufficientStockError struct {
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock: requested %d, available %d", e.Requested, e.Available)
}

// Repository is the transactional surface the protocol composes. Calls made
// inside the WithTx callback share one transaction; the pgx implementation
// carries it through the context.
type Repository interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	LockAvailableCodes(ctx context.Context, limit int) ([]string, error)
	CountAvailable(ctx context.Context) (int, error)
	ReserveCodes(ctx context.Context, codes []string, orderID string, now time.Time) error
	InsertOrder(ctx context.Context, o orders.Order) error
	GetOrderForUpdate(ctx context.Context, id string) (orders.Order, error)
	MarkReservedUsed(ctx context.Context, orderID string, now time.Time) (int64, error)
	ReleaseReserved(ctx context.Context, orderID string) (int64, error)
	SetOrderStatus(ctx context.Context, id string, st orders.Status, paymentVerified bool) error
	ExpiredReservationOrders(ctx context.Context, cutoff time.Time) ([]string, error)
}

// Service is the order/coupon allocation protocol. Codes are reserved at
// placement inside the same transaction that creates the pending order, so
// two concurrent orders can never be sold the same code; verification turns
// the reservation into consumption and rejection (admin or expiry) returns
// the codes to the pool.
type Service struct {
	Repo           Repository
	Clock          clock.Clock
	UnitPrice      int
	MinQty         int
	ReservationTTL time.Duration
}

type PlaceOrderInput struct {
	FullName     string
	Email        string
	UTRNumber    string
	Quantity     int
	PaymentProof *string
}

func (s *Service) PlaceOrder(ctx context.Context, in PlaceOrderInput) (orders.Order, error) {
	if in.FullName == "" || in.Email == "" || in.UTRNumber == "" {
		return orders.Order{}, ErrMissingFields
	}
	if len(in.UTRNumber) < utrMinLen {
		return orders.Order{}, ErrUTRTooShort
	}
	if in.Quantity <= 0 || in.Quantity < s.MinQty {
		return orders.Order{}, ErrInvalidQuantity
	}

	now := s.Clock.Now()
	order := orders.Order{
		ID:           uuid.NewString(),
		FullName:     in.FullName,
		Email:        in.Email,
		UTRNumber:    in.UTRNumber,
		Quantity:     in.Quantity,
		TotalAmount:  int64(in.Quantity) * int64(s.UnitPrice),
		PaymentProof: in.PaymentProof,
		Timestamp:    now,
		Status:       orders.StatusPending,
	}

	err := s.Repo.WithTx(ctx, func(txCtx context.Context) error {
		codes, err := s.Repo.LockAvailableCodes(txCtx, in.Quantity)
		if err != nil {
			return err
		}
		if len(codes) < in.Quantity {
			available, err := s.Repo.CountAvailable(txCtx)
			if err != nil {
				return err
			}
			return &InsufficientStockError{Requested: in.Quantity, Available: available}
		}
		if err := s.Repo.ReserveCodes(txCtx, codes, order.ID, now); err != nil {
			return err
		}
		order.CouponCodes = codes
		return s.Repo.InsertOrder(txCtx, order)
	})
	if err != nil {
		return orders.Order{}, err
	}
	return order, nil
}

// Verify is the admin decision confirming payment: reserved codes become used
// and the order turns verified, atomically.
func (s *Service) Verify(ctx context.Context, orderID string) (orders.Order, error) {
	now := s.Clock.Now()
	var result orders.Order
	err := s.Repo.WithTx(ctx, func(txCtx context.Context) error {
		o, err := s.Repo.GetOrderForUpdate(txCtx, orderID)
		if err != nil {
			return err
		}
		if !orders.CanTransition(o.Status, orders.StatusVerified) {
			return ErrOrderDecided
		}
		used, err := s.Repo.MarkReservedUsed(txCtx, orderID, now)
		if err != nil {
			return err
		}
		if used != int64(o.Quantity) {
			// Reservation drifted from the order (e.g. codes edited by an
			// admin). Surface it for manual reconciliation, don't hide it.
			log.Printf("checkout: order %s verified with %d/%d reserved codes consumed", orderID, used, o.Quantity)
		}
		if err := s.Repo.SetOrderStatus(txCtx, orderID, orders.StatusVerified, true); err != nil {
			return err
		}
		o.Status = orders.StatusVerified
		o.PaymentVerified = true
		result = o
		return nil
	})
	if err != nil {
		return orders.Order{}, err
	}
	return result, nil
}

// Reject releases the order's reserved codes back to the pool and closes the
// order. Rejection must never strand inventory.
func (s *Service) Reject(ctx context.Context, orderID string) (orders.Order, error) {
	var result orders.Order
	err := s.Repo.WithTx(ctx, func(txCtx context.Context) error {
		o, err := s.Repo.GetOrderForUpdate(txCtx, orderID)
		if err != nil {
			return err
		}
		if !orders.CanTransition(o.Status, orders.StatusRejected) {
			return ErrOrderDecided
		}
		if _, err := s.Repo.ReleaseReserved(txCtx, orderID); err != nil {
			return err
		}
		if err := s.Repo.SetOrderStatus(txCtx, orderID, orders.StatusRejected, false); err != nil {
			return err
		}
		o.Status = orders.StatusRejected
		o.PaymentVerified = false
		result = o
		return nil
	})
	if err != nil {
		return orders.Order{}, err
	}
	return result, nil
}

// ReleaseExpired closes pending orders whose reservation is older than the
// TTL and returns their ids. Customers who abandon the flow never get to
// hold stock forever.
func (s *Service) ReleaseExpired(ctx context.Context, now time.Time) ([]string, error) {
	cutoff := now.Add(-s.ReservationTTL)
	ids, err := s.Repo.ExpiredReservationOrders(ctx, cutoff)
	if err != nil {
		return nil, err
	}

	expired := make([]string, 0, len(ids))
	for _, id := range ids {
		err := s.Repo.WithTx(ctx, func(txCtx context.Context) error {
			o, err := s.Repo.GetOrderForUpdate(txCtx, id)
			if err != nil {
				return err
			}
			// Racing admin decision wins; skip quietly.
			if !orders.CanTransition(o.Status, orders.StatusRejected) {
				return nil
			}
			if _, err := s.Repo.ReleaseReserved(txCtx, id); err != nil {
				return err
			}
			if err := s.Repo.SetOrderStatus(txCtx, id, orders.StatusRejected, false); err != nil {
				return err
			}
			expired = append(expired, id)
			return nil
		})
		if err != nil {
			return expired, err
		}
	}
	return expired, nil
}
