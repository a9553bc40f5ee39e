// Package reserve is the reservation and inventory consistency engine:
// cart holds, the checkout transaction, pickup-code allocation, expiry
// reclaim, and code resolution for the redemption terminal.
//
// Every mutation runs inside a single store transaction and is retried a
// bounded number of times on optimistic-concurrency conflict. The engine
// owns no timers; the sweeper binary drives SweepExpired with an explicit
// clock.
package reserve

import (
	"context"
	"errors"
	"time"

	"github.com/campuscoop/store-reserve/internal/metrics"
	"github.com/campuscoop/store-reserve/internal/store"
)

const (
	DefaultHoldWindow  = time.Hour
	DefaultMaxRetries  = 5
	DefaultCodeRetries = 5
)

type Engine struct {
	Store store.Store
	Codes *CodeAllocator

	HoldWindow  time.Duration // how long a reservation holds stock and funds
	MaxRetries  int           // transaction attempts before ErrContention
	CodeRetries int           // code candidates before ErrCodeExhausted

	Now     func() time.Time // injectable clock, defaults to time.Now
	Metrics *metrics.Engine  // optional
}

func New(st store.Store) *Engine {
	return &Engine{
		Store:       st,
		Codes:       DefaultCodeAllocator(),
		HoldWindow:  DefaultHoldWindow,
		MaxRetries:  DefaultMaxRetries,
		CodeRetries: DefaultCodeRetries,
	}
}

func (e *Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now().UTC()
}

func (e *Engine) maxRetries() int {
	if e.MaxRetries > 0 {
		return e.MaxRetries
	}
	return DefaultMaxRetries
}

func (e *Engine) codeRetries() int {
	if e.CodeRetries > 0 {
		return e.CodeRetries
	}
	return DefaultCodeRetries
}

func (e *Engine) holdWindow() time.Duration {
	if e.HoldWindow > 0 {
		return e.HoldWindow
	}
	return DefaultHoldWindow
}

// transact runs fn with fresh reads per attempt, retrying on store conflict
// up to the bound. Exceeding the bound surfaces ErrContention; the caller
// sees no partial writes either way.
func (e *Engine) transact(ctx context.Context, fn func(tx store.Tx) error) error {
	for attempt := 0; attempt < e.maxRetries(); attempt++ {
		err := e.Store.Transaction(ctx, fn)
		if err == nil {
			return nil
		}
		if errors.Is(err, store.ErrConflict) {
			e.Metrics.IncConflict()
			continue
		}
		return err
	}
	return ErrContention
}
