package reserve

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/campuscoop/store-reserve/internal/store"
)

// SweepExpired reclaims every reserved order whose hold window has passed:
// stock goes back to the products (checkout already consumed the soft hold,
// so this restores Stock, not Reserved) and the order flips to expired. One
// transaction per order, guarded by the status compare-and-set, so a sweep
// racing a redemption or another sweep reclaims each order at most once.
// A failure on one order is logged and does not stop the rest. Returns the
// orders this call actually reclaimed.
func (e *Engine) SweepExpired(ctx context.Context, now time.Time) ([]Order, error) {
	var candidates []string
	err := e.Store.Scan(ctx, KeyPrefixOrder, func(key string, raw []byte) error {
		var o Order
		if err := json.Unmarshal(raw, &o); err != nil {
			return fmt.Errorf("decode %s: %w", key, err)
		}
		if o.Status == StatusReserved && !o.ExpiresAt.After(now) {
			candidates = append(candidates, o.ID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	var reclaimed []Order
	for _, orderID := range candidates {
		o, err := e.reclaim(ctx, orderID, now)
		if err != nil {
			log.Printf("sweep: order %s: %v", orderID, err)
			continue
		}
		if o != nil {
			reclaimed = append(reclaimed, *o)
		}
	}
	e.Metrics.AddReclaimed(len(reclaimed))
	return reclaimed, nil
}

// reclaim expires a single order. Returns (nil, nil) when the guard finds
// the order already left reserved, which makes the sweep idempotent.
func (e *Engine) reclaim(ctx context.Context, orderID string, now time.Time) (*Order, error) {
	var reclaimed *Order
	err := e.transact(ctx, func(tx store.Tx) error {
		reclaimed = nil

		var o Order
		if err := tx.Get(ctx, OrderKey(orderID), &o); err != nil {
			return err
		}
		// Re-check under the transaction: a concurrent redemption or sweep
		// may have won since the scan.
		if o.Status != StatusReserved || o.ExpiresAt.After(now) {
			return nil
		}

		for _, it := range o.Items {
			var p Product
			if err := tx.Get(ctx, ProductKey(it.ProductID), &p); err != nil {
				if errors.Is(err, store.ErrNotFound) {
					continue // product removed since checkout, nothing to restore
				}
				return err
			}
			p.Stock += it.Qty
			p.UpdatedAt = now
			tx.Set(ProductKey(it.ProductID), p)
		}

		o.Status = StatusExpired
		tx.Set(OrderKey(orderID), o)
		tx.Delete(CodeKey(o.PickupCode))

		reclaimed = &o
		return nil
	})
	if err != nil {
		return nil, err
	}
	return reclaimed, nil
}
