package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/ariefcatur/go-coupon-shop.git/internal/auth"
	"github.com/ariefcatur/go-coupon-shop.git/internal/checkout"
	"github.com/ariefcatur/go-coupon-shop.git/internal/clock"
	"github.com/ariefcatur/go-coupon-shop.git/internal/config"
	"github.com/ariefcatur/go-coupon-shop.git/internal/coupons"
	"github.com/ariefcatur/go-coupon-shop.git/internal/httpx"
	kafkax "github.com/ariefcatur/go-coupon-shop.git/internal/kafka"
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
		log.Fatalf("db connect: %v", err)
	}
	defer db.Close()
	if err := migrations.Apply(ctx, db); err != nil {
		log.Fatalf("migrations: %v", err)
	}

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	// Kafka producers, one per topic
	pPlaced := kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicOrderPlaced, 1024)
	pPlaced.Start(ctx)
	pVerified := kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicOrderVerified, 1024)
	pVerified.Start(ctx)
	pRejected := kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicOrderRejected, 1024)
	pRejected.Start(ctx)

	clk := clock.NewSystem()
	store := &coupons.Store{DB: db, Clock: clk}
	ledger := &orders.Ledger{DB: db}
	svc := &checkout.Service{
		Repo:           &checkout.Repo{DB: db},
		Clock:          clk,
		UnitPrice:      cfg.CouponUnitPrice,
		MinQty:         cfg.MinOrderQty,
		ReservationTTL: cfg.ReservationTTL,
	}

	admin := &auth.Admin{
		Username:     cfg.AdminUsername,
		PasswordHash: cfg.AdminPasswordHash,
		Sessions:     &auth.RedisSessions{Client: rdb},
		SessionTTL:   cfg.AdminSessionTTL,
	}

	router := httpx.NewRouter()
	(&httpx.AuthHandler{Admin: admin, SessionTTL: cfg.AdminSessionTTL}).Register(router)
	(&httpx.CouponsHandler{Store: store, Redis: rdb}).Register(router, admin.Middleware)
	(&httpx.OrdersHandler{
		Checkout:         svc,
		Ledger:           ledger,
		PlacedProducer:   pPlaced,
		VerifiedProducer: pVerified,
		RejectedProducer: pRejected,
		Redis:            rdb,
		Service:          cfg.ServiceName,
	}).Register(router, admin.Middleware)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router}

	go func() {
		log.Printf("HTTP listening at %s", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Println("shutting down...")

	ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	_ = srv.Shutdown(ctx2)
	pPlaced.Close()
	pVerified.Close()
	pRejected.Close()
	cancel()
	pPlaced.WaitClosed()
	pVerified.WaitClosed()
	pRejected.WaitClosed()
}
