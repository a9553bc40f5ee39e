// The sweeper owns the reclaim cadence: the engine exposes SweepExpired but
// no timer of its own, so tests can drive it with an explicit clock and
// deployments can tune or multiply the schedulers safely (the per-order
// status guard makes concurrent sweeps a no-op against each other).
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/campuscoop/store-reserve/internal/config"
	kafkax "github.com/campuscoop/store-reserve/internal/kafka"
	"github.com/campuscoop/store-reserve/internal/metrics"
	"github.com/campuscoop/store-reserve/internal/redisx"
	"github.com/campuscoop/store-reserve/internal/reserve"
	"github.com/campuscoop/store-reserve/internal/store"
	"github.com/campuscoop/store-reserve/internal/store/postgres"
	"github.com/campuscoop/store-reserve/internal/store/redisstore"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	kafkago "github.com/segmentio/kafka-go"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

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

	pExpired := kafkax.NewProducer(cfg.KafkaBrokers, reserve.TopicOrderExpired, 256)
	pExpired.Start(ctx)
	pStock := kafkax.NewProducer(cfg.KafkaBrokers, reserve.TopicStockChanged, 256)
	pStock.Start(ctx)

	eng := reserve.New(st)
	eng.Metrics = metrics.NewEngine("sweeper")

	service := cfg.ServiceName + "-sweeper"
	sweep := func() {
		reclaimed, err := eng.SweepExpired(ctx, time.Now().UTC())
		if err != nil {
			log.Printf("sweep: %v", err)
			return
		}
		if len(reclaimed) > 0 {
			log.Printf("sweep: reclaimed %d expired reservation(s)", len(reclaimed))
		}
		for _, o := range reclaimed {
			publishExpired(pExpired, service, o)
			for _, it := range o.Items {
				publishStock(ctx, pStock, eng, service, it.ProductID)
			}
		}
	}

	log.Printf("sweeper started: interval=%s", cfg.SweepInterval)
	sweep()
	t := time.NewTicker(cfg.SweepInterval)
	defer t.Stop()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	for {
		select {
		case <-t.C:
			sweep()
		case <-sig:
			log.Println("shutting down sweeper...")
			pExpired.Close()
			pStock.Close()
			cancel()
			pExpired.WaitClosed()
			pStock.WaitClosed()
			return
		}
	}
}

func publishExpired(p *kafkax.Producer, service string, o reserve.Order) {
	ev := reserve.Envelope{
		EventID:       uuid.NewString(),
		EventType:     reserve.EventOrderExpired,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      service,
		CorrelationID: o.ID,
	}
	ev.Payload = kafkax.MustMarshal(reserve.OrderExpiredPayload{
		OrderID: o.ID,
		UserID:  o.UserID,
		Items:   o.Items,
	})
	p.Publish(reserve.PartitionKey(o.ID), kafkax.MustMarshal(ev),
		kafkago.Header{Key: "x-event-type", Value: []byte(reserve.EventOrderExpired)},
		kafkago.Header{Key: "x-event-version", Value: []byte("1")},
	)
}

func publishStock(ctx context.Context, p *kafkax.Producer, eng *reserve.Engine, service, productID string) {
	prod, err := eng.GetProduct(ctx, productID)
	if err != nil {
		return
	}
	ev := reserve.Envelope{
		EventID:       uuid.NewString(),
		EventType:     reserve.EventStockChanged,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      service,
		CorrelationID: productID,
	}
	ev.Payload = kafkax.MustMarshal(reserve.StockChangedPayload{
		ProductID: prod.ID,
		Name:      prod.Name,
		Stock:     prod.Stock,
		Reserved:  prod.Reserved,
		Available: prod.Available(),
	})
	p.Publish(reserve.PartitionKey(productID), kafkax.MustMarshal(ev),
		kafkago.Header{Key: "x-event-type", Value: []byte(reserve.EventStockChanged)},
		kafkago.Header{Key: "x-event-version", Value: []byte("1")},
	)
}
