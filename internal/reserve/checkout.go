package reserve

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/campuscoop/store-reserve/internal/store"
	"github.com/google/uuid"
)

type CheckoutResult struct {
	OrderID    string      `json:"order_id"`
	PickupCode string      `json:"pickup_code"`
	TotalCents int         `json:"total_cents"`
	Items      []OrderItem `json:"items"`
	ExpiresAt  time.Time   `json:"expires_at"`
}

// Checkout converts a cart snapshot into a reserved order in one atomic
// step: total from authoritative prices (client prices are never trusted),
// funds check, stock check, stock+hold decrement, balance debit, pickup-code
// lock and order creation. On store conflict the whole thing reruns with
// fresh reads up to the retry bound.
func (e *Engine) Checkout(ctx context.Context, userID string, items []ItemInput) (CheckoutResult, error) {
	res, err := e.checkout(ctx, userID, items)
	e.Metrics.IncCheckout(checkoutResultLabel(err))
	return res, err
}

func (e *Engine) checkout(ctx context.Context, userID string, items []ItemInput) (CheckoutResult, error) {
	if userID == "" {
		return CheckoutResult{}, fmt.Errorf("%w: missing user id", ErrValidation)
	}
	if len(items) == 0 {
		return CheckoutResult{}, fmt.Errorf("%w: cart is empty", ErrValidation)
	}
	for _, it := range items {
		if it.ProductID == "" || it.Qty <= 0 {
			return CheckoutResult{}, fmt.Errorf("%w: bad line item %q qty=%d", ErrValidation, it.ProductID, it.Qty)
		}
	}

	var res CheckoutResult
	err := e.transact(ctx, func(tx store.Tx) error {
		now := e.now()

		var acct Account
		if err := tx.Get(ctx, AccountKey(userID), &acct); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return fmt.Errorf("%w: account %s", ErrNotFound, userID)
			}
			return err
		}

		// Authoritative prices, read in cart order.
		total := 0
		for _, it := range items {
			var p Product
			if err := tx.Get(ctx, ProductKey(it.ProductID), &p); err != nil {
				if errors.Is(err, store.ErrNotFound) {
					return fmt.Errorf("%w: product %s", ErrNotFound, it.ProductID)
				}
				return err
			}
			total += p.PriceCents * it.Qty
		}
		if acct.BalanceCents < total {
			return fmt.Errorf("%w: balance %d, total %d", ErrInsufficientFunds, acct.BalanceCents, total)
		}

		// Consume the cart holds into owned stock, line by line. Reads go
		// through the transaction, so repeated lines for one product see the
		// earlier decrements and cannot oversell; any failure aborts with no
		// writes applied.
		orderItems := make([]OrderItem, len(items))
		for i, it := range items {
			var p Product
			if err := tx.Get(ctx, ProductKey(it.ProductID), &p); err != nil {
				return err
			}
			if p.Stock < it.Qty {
				return &OutOfStockError{
					ProductID: p.ID,
					Name:      p.Name,
					Requested: it.Qty,
					Available: p.Stock,
				}
			}
			p.Stock -= it.Qty
			p.Reserved -= it.Qty
			if p.Reserved < 0 {
				p.Reserved = 0
			}
			p.UpdatedAt = now
			tx.Set(ProductKey(p.ID), p)

			orderItems[i] = OrderItem{
				ProductID:      p.ID,
				Name:           p.Name,
				UnitPriceCents: p.PriceCents,
				Qty:            it.Qty,
				LineTotalCents: p.PriceCents * it.Qty,
			}
		}

		acct.BalanceCents -= total
		acct.UpdatedAt = now
		tx.Set(AccountKey(userID), acct)

		orderID := uuid.NewString()
		expiresAt := now.Add(e.holdWindow())
		code, err := e.allocateCode(ctx, tx, orderID, now, expiresAt)
		if err != nil {
			return err
		}

		order := Order{
			ID:         orderID,
			UserID:     userID,
			Items:      orderItems,
			TotalCents: total,
			Status:     StatusReserved,
			PickupCode: code,
			CreatedAt:  now,
			ExpiresAt:  expiresAt,
		}
		tx.Create(OrderKey(orderID), order)

		res = CheckoutResult{OrderID: orderID, PickupCode: code, TotalCents: total, Items: orderItems, ExpiresAt: expiresAt}
		return nil
	})
	if err != nil {
		return CheckoutResult{}, err
	}
	return res, nil
}

// allocateCode picks a candidate, checks it is unclaimed inside the current
// transaction and buffers the lock create. The create is conflict-checked at
// commit, so two checkouts racing on the same candidate cannot both win.
func (e *Engine) allocateCode(ctx context.Context, tx store.Tx, orderID string, now, expiresAt time.Time) (string, error) {
	for attempt := 0; attempt < e.codeRetries(); attempt++ {
		code := e.Codes.Generate()
		var existing CodeLock
		err := tx.Get(ctx, CodeKey(code), &existing)
		if err == nil {
			continue // collision, regenerate
		}
		if !errors.Is(err, store.ErrNotFound) {
			return "", err
		}
		tx.Create(CodeKey(code), CodeLock{
			Code:      code,
			OrderID:   orderID,
			CreatedAt: now,
			ExpiresAt: expiresAt,
		})
		return code, nil
	}
	return "", ErrCodeExhausted
}

func checkoutResultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrInsufficientFunds):
		return "insufficient_funds"
	case errors.Is(err, ErrOutOfStock):
		return "out_of_stock"
	case errors.Is(err, ErrContention):
		return "contention"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrCodeExhausted):
		return "code_exhausted"
	default:
		return "error"
	}
}
