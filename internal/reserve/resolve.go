package reserve

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/campuscoop/store-reserve/internal/store"
)

// ResolveByCode looks up the active order behind a pickup code for the
// redemption terminal. Only committed state is visible, and a code maps to
// at most one reserved order at any instant (the CodeLock create guarantees
// it). Locks whose order already left reserved are treated as stale.
func (e *Engine) ResolveByCode(ctx context.Context, code string) (Order, error) {
	var lock CodeLock
	if err := e.Store.Get(ctx, CodeKey(code), &lock); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return Order{}, fmt.Errorf("%w: code %s", ErrNotFound, code)
		}
		return Order{}, err
	}

	var o Order
	if err := e.Store.Get(ctx, OrderKey(lock.OrderID), &o); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return Order{}, fmt.Errorf("%w: order %s", ErrNotFound, lock.OrderID)
		}
		return Order{}, err
	}
	if o.Status != StatusReserved {
		// Terminal transitions delete the lock, but a stale one must still
		// never resolve.
		return Order{}, fmt.Errorf("%w: code %s", ErrNotFound, code)
	}
	return o, nil
}

// Verify settles a pickup: compare-and-set reserved -> verified, stamping
// VerifiedAt and dropping the code lock. The settlement workflow around it
// belongs to the redemption terminal; this is only the guarded transition.
func (e *Engine) Verify(ctx context.Context, code string) (Order, error) {
	var verified Order
	err := e.transact(ctx, func(tx store.Tx) error {
		var lock CodeLock
		if err := tx.Get(ctx, CodeKey(code), &lock); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return fmt.Errorf("%w: code %s", ErrNotFound, code)
			}
			return err
		}
		var o Order
		if err := tx.Get(ctx, OrderKey(lock.OrderID), &o); err != nil {
			return err
		}
		if !CanTransition(o.Status, StatusVerified) {
			return fmt.Errorf("%w: code %s", ErrNotFound, code)
		}

		now := e.now()
		o.Status = StatusVerified
		o.VerifiedAt = &now
		tx.Set(OrderKey(o.ID), o)
		tx.Delete(CodeKey(code))

		verified = o
		return nil
	})
	if err != nil {
		return Order{}, err
	}
	return verified, nil
}

const (
	defaultOrderPage = 50
	maxOrderPage     = 200
)

// ListOrdersByUser returns a user's orders newest first, optionally narrowed
// to one status (empty matches all). Backs the shopper's reservation and
// pickup-history pages, so the page size is capped rather than paginated.
func (e *Engine) ListOrdersByUser(ctx context.Context, userID string, status Status, limit int) ([]Order, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: missing user id", ErrValidation)
	}
	if limit <= 0 {
		limit = defaultOrderPage
	}
	if limit > maxOrderPage {
		limit = maxOrderPage
	}

	var out []Order
	err := e.Store.Scan(ctx, KeyPrefixOrder, func(key string, raw []byte) error {
		var o Order
		if err := json.Unmarshal(raw, &o); err != nil {
			return fmt.Errorf("decode %s: %w", key, err)
		}
		if o.UserID != userID {
			return nil
		}
		if status != "" && o.Status != status {
			return nil
		}
		out = append(out, o)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// GetOrder is the plain read used by the order-status endpoint.
func (e *Engine) GetOrder(ctx context.Context, orderID string) (Order, error) {
	var o Order
	if err := e.Store.Get(ctx, OrderKey(orderID), &o); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return Order{}, fmt.Errorf("%w: order %s", ErrNotFound, orderID)
		}
		return Order{}, err
	}
	return o, nil
}
