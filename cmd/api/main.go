package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/campuscoop/store-reserve/internal/config"
	"github.com/campuscoop/store-reserve/internal/httpx"
	kafkax "github.com/campuscoop/store-reserve/internal/kafka"
	"github.com/campuscoop/store-reserve/internal/metrics"
	"github.com/campuscoop/store-reserve/internal/redisx"
	"github.com/campuscoop/store-reserve/internal/reserve"
	"github.com/campuscoop/store-reserve/internal/store"
	"github.com/campuscoop/store-reserve/internal/store/postgres"
	"github.com/campuscoop/store-reserve/internal/store/redisstore"
	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Redis: cache + catalog read model, and the store itself when selected.
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	var st store.Store
	switch cfg.StoreDriver {
	case "redis":
		st = redisstore.New(rdb)
	default:
		pg, err := postgres.Connect(ctx, cfg.PostgresDSN)
		if err != nil {
			log.Fatalf("db connect: %v", err)
		}
		defer pg.Close()
		st = pg
	}

	// Kafka producers, one per topic.
	pOrders := kafkax.NewProducer(cfg.KafkaBrokers, reserve.TopicOrderReserved, 1024)
	pOrders.Start(ctx)
	pStock := kafkax.NewProducer(cfg.KafkaBrokers, reserve.TopicStockChanged, 1024)
	pStock.Start(ctx)
	pSettle := kafkax.NewProducer(cfg.KafkaBrokers, reserve.TopicOrderVerified, 1024)
	pSettle.Start(ctx)

	eng := reserve.New(st)
	eng.HoldWindow = cfg.HoldWindow
	eng.MaxRetries = cfg.CheckoutRetries
	eng.Metrics = metrics.NewEngine("api")

	router := httpx.NewRouter()
	router.Handle("/metrics", metrics.Handler())
	h := &httpx.Handler{
		Engine:  eng,
		Redis:   rdb,
		Orders:  pOrders,
		Stock:   pStock,
		Settle:  pSettle,
		Service: cfg.ServiceName,
	}
	h.Register(router)

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

	// Handlers are stopped; flush the producers.
	pOrders.Close()
	pStock.Close()
	pSettle.Close()
	cancel()
	pOrders.WaitClosed()
	pStock.WaitClosed()
	pSettle.WaitClosed()
}
