// Package catalog maintains the Redis read model the shop UI lists products
// from, fed by stock.changed events. Snapshots overwrite, so replays and
// out-of-order retries are harmless after dedup.
package catalog

import (
	"context"
	"encoding/json"
	"fmt"

	kafkax "github.com/campuscoop/store-reserve/internal/kafka"
	"github.com/campuscoop/store-reserve/internal/redisx"
	"github.com/campuscoop/store-reserve/internal/reserve"
	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"
)

type Service struct {
	Redis       *redis.Client
	ServiceName string
}

// HandleStockChanged is wired as the consumer handler.
func (s *Service) HandleStockChanged(ctx context.Context, m kafkago.Message) error {
	var env reserve.Envelope
	if err := json.Unmarshal(m.Value, &env); err != nil {
		return err
	}
	if env.EventType != reserve.EventStockChanged {
		return nil // ignore
	}

	// Dedup by event_id so a redelivered message is a no-op.
	dkey := fmt.Sprintf(redisx.KeyDedup, "catalog", env.EventID)
	exists, _ := redisx.Exists(ctx, s.Redis, dkey)
	if exists {
		return nil
	}
	_ = s.Redis.Set(ctx, dkey, "1", redisx.TTLDedup).Err()

	p, err := kafkax.UnwrapPayload[reserve.StockChangedPayload](env.Payload)
	if err != nil {
		return err
	}

	key := fmt.Sprintf(redisx.KeyCatalogProduct, p.ProductID)
	return s.Redis.Set(ctx, key, kafkax.MustMarshal(p), redisx.TTLCatalog).Err()
}

// List reads the current read model. Used by the catalog service's own
// debug endpoint; the UI normally reads it through its own backend.
func (s *Service) List(ctx context.Context) ([]reserve.StockChangedPayload, error) {
	iter := s.Redis.Scan(ctx, 0, fmt.Sprintf(redisx.KeyCatalogProduct, "*"), 0).Iterator()
	var out []reserve.StockChangedPayload
	for iter.Next(ctx) {
		raw, err := s.Redis.Get(ctx, iter.Val()).Bytes()
		if err != nil {
			continue
		}
		var p reserve.StockChangedPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			continue
		}
		out = append(out, p)
	}
	return out, iter.Err()
}
