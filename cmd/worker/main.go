package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/ariefcatur/go-coupon-shop.git/internal/checkout"
	"github.com/ariefcatur/go-coupon-shop.git/internal/clock"
	"github.com/ariefcatur/go-coupon-shop.git/internal/config"
	"github.com/ariefcatur/go-coupon-shop.git/internal/coupons"
	kafkax "github.com/ariefcatur/go-coupon-shop.git/internal/kafka"
	"github.com/ariefcatur/go-coupon-shop.git/internal/notify"
	"github.com/ariefcatur/go-coupon-shop.git/internal/orders"
	"github.com/ariefcatur/go-coupon-shop.git/internal/postgres"
	"github.com/ariefcatur/go-coupon-shop.git/internal/redisx"
	"github.com/ariefcatur/go-coupon-shop.git/migrations"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// DB
	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer db.Close()
	if err := migrations.Apply(ctx, db); err != nil {
		log.Fatalf("migrations: %v", err)
	}

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	clk := clock.NewSystem()
	svc := &checkout.Service{
		Repo:           &checkout.Repo{DB: db},
		Clock:          clk,
		UnitPrice:      cfg.CouponUnitPrice,
		MinQty:         cfg.MinOrderQty,
		ReservationTTL: cfg.ReservationTTL,
	}

	// Expiry rejections are announced on the same topic admin rejections use.
	pRejected := kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicOrderRejected, 1024)
	pRejected.Start(ctx)

	sweeper := &checkout.Sweeper{
		Service:     svc,
		Producer:    pRejected,
		Clock:       clk,
		Interval:    cfg.SweepInterval,
		ServiceName: cfg.ServiceName + "-sweeper",
	}
	sweepDone := make(chan struct{})
	go func() {
		sweeper.Run(ctx)
		close(sweepDone)
	}()

	// Cache refresher: one consumer per order lifecycle topic.
	cacheSvc := &notify.Service{
		Ledger:      &orders.Ledger{DB: db},
		Coupons:     &coupons.Store{DB: db, Clock: clk},
		Cache:       redisx.Cache{Client: rdb},
		ServiceName: cfg.ServiceName + "-notify",
	}

	group := getenv("NOTIFY_GROUP", "coupon-notify")
	workers := mustAtoi(os.Getenv("NOTIFY_WORKERS"), "4")
	for _, topic := range []string{orders.TopicOrderPlaced, orders.TopicOrderVerified, orders.TopicOrderRejected} {
		cons := kafkax.NewConsumer(cfg.KafkaBrokers, group, topic, workers)
		go func(topic string) {
			log.Printf("notify consumer started: group=%s topic=%s workers=%d", group, topic, workers)
			if err := cons.Start(ctx, cacheSvc.HandleOrderEvent); err != nil {
				log.Printf("consumer exit (%s): %v", topic, err)
				cancel()
			}
		}(topic)
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Println("shutting down worker...")
	cancel()
	// The sweeper publishes expiry rejections; it must be fully stopped
	// before the producer inbox closes.
	<-sweepDone
	pRejected.Close()
	pRejected.WaitClosed()
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func mustAtoi(s, def string) int {
	if s == "" {
		s = def
	}
	i, err := strconv.Atoi(s)
	if err != nil {
		return 1
	}
	return i
}
