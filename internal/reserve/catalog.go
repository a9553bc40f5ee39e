package reserve

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/campuscoop/store-reserve/internal/store"
)

// ListProducts returns the catalog sorted by name, the way the shop page
// displays it. Trivial read path; contention-sensitive logic lives in the
// transactional operations.
func (e *Engine) ListProducts(ctx context.Context) ([]Product, error) {
	var out []Product
	err := e.Store.Scan(ctx, KeyPrefixProduct, func(key string, raw []byte) error {
		var p Product
		if err := json.Unmarshal(raw, &p); err != nil {
			return fmt.Errorf("decode %s: %w", key, err)
		}
		out = append(out, p)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// GetProduct reads one catalog record.
func (e *Engine) GetProduct(ctx context.Context, id string) (Product, error) {
	var p Product
	if err := e.Store.Get(ctx, ProductKey(id), &p); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return Product{}, fmt.Errorf("%w: product %s", ErrNotFound, id)
		}
		return Product{}, err
	}
	return p, nil
}

// PutProduct upserts a catalog record. Admin path; stock counters on an
// existing record are preserved unless the caller sets them explicitly.
func (e *Engine) PutProduct(ctx context.Context, p Product) error {
	if p.ID == "" || p.Name == "" || p.PriceCents < 0 || p.Stock < 0 {
		return fmt.Errorf("%w: bad product record", ErrValidation)
	}
	if p.Reserved < 0 || p.Reserved > p.Stock {
		return fmt.Errorf("%w: reserved %d outside [0,%d]", ErrValidation, p.Reserved, p.Stock)
	}
	p.UpdatedAt = e.now()
	return e.Store.Set(ctx, ProductKey(p.ID), p)
}

// PutAccount upserts a student account. Admin/top-up path; checkout is the
// only debitor.
func (e *Engine) PutAccount(ctx context.Context, a Account) error {
	if a.ID == "" || a.BalanceCents < 0 {
		return fmt.Errorf("%w: bad account record", ErrValidation)
	}
	a.UpdatedAt = e.now()
	return e.Store.Set(ctx, AccountKey(a.ID), a)
}
