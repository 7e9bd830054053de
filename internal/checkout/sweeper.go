package checkout

import (
	"context"
	"log"
	"math/rand"
	"time"

	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"

	"github.com/ariefcatur/go-coupon-shop.git/internal/clock"
	kafkax "github.com/ariefcatur/go-coupon-shop.git/internal/kafka"
	"github.com/ariefcatur/go-coupon-shop.git/internal/orders"
)

// Publisher is satisfied by the kafka producer; tests plug in a fake.
type Publisher interface {
	Publish(key, value []byte, headers ...kafkago.Header)
}

// Sweeper periodically releases reservations whose pending order went stale.
// The interval is jittered so multiple instances don't hit the store in step.
type Sweeper struct {
	Service     *Service
	Producer    Publisher
	Clock       clock.Clock
	Interval    time.Duration
	ServiceName string
}

func (s *Sweeper) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(s.jittered()):
		}

		ids, err := s.Service.ReleaseExpired(ctx, s.Clock.Now())
		if err != nil {
			log.Printf("sweeper: release expired: %v", err)
			continue
		}
		for _, id := range ids {
			log.Printf("sweeper: reservation expired, order %s rejected", id)
			s.publishExpired(id)
		}
	}
}

func (s *Sweeper) jittered() time.Duration {
	return s.Interval + time.Duration(rand.Int63n(int64(s.Interval)/5+1))
}

func (s *Sweeper) publishExpired(orderID string) {
	if s.Producer == nil {
		return
	}
	ev := orders.Envelope{
		EventID:       uuid.NewString(),
		EventType:     orders.EventOrderRejected,
		EventVersion:  1,
		OccurredAt:    s.Clock.Now(),
		Producer:      s.ServiceName,
		CorrelationID: orderID,
		Payload: kafkax.MustMarshal(orders.OrderRejectedPayload{
			OrderID: orderID,
			Reason:  orders.RejectReasonExpired,
		}),
	}
	s.Producer.Publish(orders.PartitionKey(orderID), kafkax.MustMarshal(ev),
		kafkago.Header{Key: "x-event-type", Value: []byte(orders.EventOrderRejected)},
		kafkago.Header{Key: "x-event-version", Value: []byte("1")},
	)
}
