package reserve

import (
	"context"
	"errors"
	"fmt"

	"github.com/campuscoop/store-reserve/internal/store"
)

// Hold adds qty to the product's soft-hold counter so listed availability
// reflects open carts before anyone checks out. Single-product atomic; a
// multi-line cart recovers line by line on failure.
func (e *Engine) Hold(ctx context.Context, productID string, qty int) error {
	if qty <= 0 {
		return fmt.Errorf("%w: qty must be positive", ErrValidation)
	}
	return e.transact(ctx, func(tx store.Tx) error {
		var p Product
		if err := tx.Get(ctx, ProductKey(productID), &p); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return fmt.Errorf("%w: product %s", ErrNotFound, productID)
			}
			return err
		}
		if p.Available() < qty {
			return &OutOfStockError{ProductID: p.ID, Name: p.Name, Requested: qty, Available: p.Available()}
		}
		p.Reserved += qty
		p.UpdatedAt = e.now()
		tx.Set(ProductKey(productID), p)
		return nil
	})
}

// Release subtracts qty from the soft-hold counter, floored at zero so a
// double release cannot drive it negative. Releasing an unknown product is
// a no-op: the hold it would undo cannot exist.
func (e *Engine) Release(ctx context.Context, productID string, qty int) error {
	if qty <= 0 {
		return fmt.Errorf("%w: qty must be positive", ErrValidation)
	}
	return e.transact(ctx, func(tx store.Tx) error {
		var p Product
		if err := tx.Get(ctx, ProductKey(productID), &p); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return nil
			}
			return err
		}
		p.Reserved -= qty
		if p.Reserved < 0 {
			p.Reserved = 0
		}
		p.UpdatedAt = e.now()
		tx.Set(ProductKey(productID), p)
		return nil
	})
}
