package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/ariefcatur/go-coupon-shop.git/internal/coupons"
	"github.com/ariefcatur/go-coupon-shop.git/internal/orders"
	"github.com/ariefcatur/go-coupon-shop.git/internal/redisx"
)

// OrderSource is the order read the refresher re-fetches on each event.
type OrderSource interface {
	GetByID(ctx context.Context, id string) (orders.Order, error)
}

// StockSource supplies the coupon counters for the stock display cache.
type StockSource interface {
	CountByStatus(ctx context.Context) (coupons.Stats, error)
}

// Cache is the write side of the status cache; redisx.Cache implements it.
type Cache interface {
	Seen(ctx context.Context, key string) (bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// Service turns order lifecycle events into cache refreshes so customer
// status polls are served from redis instead of hammering Postgres.
type Service struct {
	Ledger      OrderSource
	Coupons     StockSource
	Cache       Cache
	ServiceName string
}

func (s *Service) HandleOrderEvent(ctx context.Context, m kafkago.Message) error {
	var env orders.Envelope
	if err := json.Unmarshal(m.Value, &env); err != nil {
		return err
	}
	switch env.EventType {
	case orders.EventOrderPlaced, orders.EventOrderVerified, orders.EventOrderRejected:
	default:
		return nil
	}
	if env.CorrelationID == "" {
		return nil
	}

	// Redeliveries are expected with manual commits. The marker is written
	// only after a successful refresh; a transient fetch failure leaves the
	// event undeduped so the retry actually does the work.
	dkey := fmt.Sprintf(redisx.KeyDedup, "notify", env.EventID)
	if seen, _ := s.Cache.Seen(ctx, dkey); seen {
		return nil
	}
	if err := s.refreshOrder(ctx, env.CorrelationID); err != nil {
		return err
	}
	s.refreshStock(ctx)
	return s.Cache.Set(ctx, dkey, []byte("1"), redisx.TTLDedup)
}

func (s *Service) refreshOrder(ctx context.Context, orderID string) error {
	o, err := s.Ledger.GetByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, orders.ErrNotFound) {
			log.Printf("notify: order %s gone, skipping cache refresh", orderID)
			return nil
		}
		return err
	}
	b, err := json.Marshal(o)
	if err != nil {
		return err
	}
	key := fmt.Sprintf(redisx.KeyOrderStatus, orderID)
	return s.Cache.Set(ctx, key, b, redisx.TTLStatusCache)
}

func (s *Service) refreshStock(ctx context.Context) {
	st, err := s.Coupons.CountByStatus(ctx)
	if err != nil {
		log.Printf("notify: refresh stock: %v", err)
		return
	}
	b, _ := json.Marshal(st)
	_ = s.Cache.Set(ctx, redisx.KeyStockStats, b, redisx.TTLStockCache)
}
