package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/campuscoop/store-reserve/internal/catalog"
	"github.com/campuscoop/store-reserve/internal/config"
	"github.com/campuscoop/store-reserve/internal/httpx"
	kafkax "github.com/campuscoop/store-reserve/internal/kafka"
	"github.com/campuscoop/store-reserve/internal/metrics"
	"github.com/campuscoop/store-reserve/internal/redisx"
	"github.com/campuscoop/store-reserve/internal/reserve"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"
)

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

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	svc := &catalog.Service{
		Redis:       rdb,
		ServiceName: cfg.ServiceName + "-catalog",
	}

	group := getenv("CATALOG_GROUP", "catalog-svc")
	workers := mustAtoi(os.Getenv("CATALOG_WORKERS"), "4")
	cons := kafkax.NewConsumer(cfg.KafkaBrokers, group, reserve.TopicStockChanged, workers)

	router := httpx.NewRouter()
	router.Handle("/metrics", metrics.Handler())
	router.Get("/catalog", func(w http.ResponseWriter, r *http.Request) {
		ps, err := svc.List(r.Context())
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(ps)
	})
	srv := &http.Server{Addr: getenv("CATALOG_HTTP_ADDR", ":8082"), Handler: router}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Printf("catalog consumer started: group=%s topic=%s workers=%d", group, reserve.TopicStockChanged, workers)
		return cons.Start(gctx, svc.HandleStockChanged)
	})
	g.Go(func() error {
		log.Printf("catalog HTTP listening at %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		return srv.Shutdown(ctx2)
	})

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sig
		log.Println("shutting down catalog...")
		cancel()
	}()

	if err := g.Wait(); err != nil {
		log.Printf("catalog exit: %v", err)
	}
}
