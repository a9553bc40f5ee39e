package reserve

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/campuscoop/store-reserve/internal/store"
)

func TestCheckoutValidation(t *testing.T) {
	eng, _, _ := testEngine(t)
	tests := []struct {
		name   string
		userID string
		items  []ItemInput
	}{
		{"empty cart", "u1", nil},
		{"missing user", "", []ItemInput{{ProductID: "p1", Qty: 1}}},
		{"zero qty line", "u1", []ItemInput{{ProductID: "p1", Qty: 0}}},
		{"missing product id", "u1", []ItemInput{{Qty: 1}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := eng.Checkout(context.Background(), tt.userID, tt.items)
			if !errors.Is(err, ErrValidation) {
				t.Fatalf("Checkout = %v, want ErrValidation", err)
			}
		})
	}
}

func TestCheckoutInsufficientFunds(t *testing.T) {
	eng, st, _ := testEngine(t)
	seedAccount(t, st, Account{ID: "u1", BalanceCents: 100})
	seedProduct(t, st, Product{ID: "p1", Name: "bento", PriceCents: 60, Stock: 10, Reserved: 2})

	_, err := eng.Checkout(context.Background(), "u1", []ItemInput{{ProductID: "p1", Qty: 2}})
	if !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("Checkout = %v, want ErrInsufficientFunds", err)
	}

	// All-or-nothing: no partial writes after the failure.
	if a := getAccount(t, st, "u1"); a.BalanceCents != 100 {
		t.Fatalf("balance = %d, want 100", a.BalanceCents)
	}
	if p := getProduct(t, st, "p1"); p.Stock != 10 || p.Reserved != 2 {
		t.Fatalf("product mutated: stock=%d reserved=%d", p.Stock, p.Reserved)
	}
}

func TestCheckoutSuccess(t *testing.T) {
	eng, st, clk := testEngine(t)
	seedAccount(t, st, Account{ID: "u1", BalanceCents: 150})
	seedProduct(t, st, Product{ID: "p1", Name: "bento", PriceCents: 30, Stock: 10, Reserved: 2})

	res, err := eng.Checkout(context.Background(), "u1", []ItemInput{{ProductID: "p1", Qty: 2}})
	if err != nil {
		t.Fatal(err)
	}
	if res.TotalCents != 60 {
		t.Fatalf("total = %d, want 60", res.TotalCents)
	}
	if len(res.PickupCode) != CodeLength {
		t.Fatalf("code %q, want %d chars", res.PickupCode, CodeLength)
	}
	for _, c := range res.PickupCode {
		if !strings.ContainsRune(CodeAlphabet, c) {
			t.Fatalf("code %q contains %q outside alphabet", res.PickupCode, c)
		}
	}
	if want := clk.now.Add(DefaultHoldWindow); !res.ExpiresAt.Equal(want) {
		t.Fatalf("expiresAt = %v, want %v", res.ExpiresAt, want)
	}

	// The result mirrors the order lines, so event publishers and clients
	// never see an order with a total but no items.
	if len(res.Items) != 1 || res.Items[0].ProductID != "p1" || res.Items[0].Qty != 2 {
		t.Fatalf("result items = %+v", res.Items)
	}

	if a := getAccount(t, st, "u1"); a.BalanceCents != 90 {
		t.Fatalf("balance = %d, want 90", a.BalanceCents)
	}
	p := getProduct(t, st, "p1")
	if p.Stock != 8 || p.Reserved != 0 {
		t.Fatalf("stock=%d reserved=%d, want 8/0", p.Stock, p.Reserved)
	}
	checkStockInvariant(t, p)

	o := getOrder(t, st, res.OrderID)
	if o.Status != StatusReserved {
		t.Fatalf("status = %s, want reserved", o.Status)
	}
	if o.TotalCents != 60 || len(o.Items) != 1 {
		t.Fatalf("order = %+v", o)
	}
	it := o.Items[0]
	if it.UnitPriceCents != 30 || it.Qty != 2 || it.LineTotalCents != 60 {
		t.Fatalf("line = %+v", it)
	}
	if o.TotalCents != it.LineTotalCents {
		t.Fatalf("total %d != sum of lines %d", o.TotalCents, it.LineTotalCents)
	}

	var lock CodeLock
	if err := st.Get(context.Background(), CodeKey(res.PickupCode), &lock); err != nil {
		t.Fatalf("code lock missing: %v", err)
	}
	if lock.OrderID != res.OrderID || !lock.ExpiresAt.Equal(res.ExpiresAt) {
		t.Fatalf("lock = %+v", lock)
	}
}

func TestCheckoutUnknownProduct(t *testing.T) {
	eng, st, _ := testEngine(t)
	seedAccount(t, st, Account{ID: "u1", BalanceCents: 100})

	_, err := eng.Checkout(context.Background(), "u1", []ItemInput{{ProductID: "ghost", Qty: 1}})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("Checkout = %v, want ErrNotFound", err)
	}
}

func TestCheckoutNamesFirstInsufficientItem(t *testing.T) {
	eng, st, _ := testEngine(t)
	seedAccount(t, st, Account{ID: "u1", BalanceCents: 1000})
	seedProduct(t, st, Product{ID: "p1", Name: "bento", PriceCents: 30, Stock: 10})
	seedProduct(t, st, Product{ID: "p2", Name: "milk", PriceCents: 20, Stock: 1})
	seedProduct(t, st, Product{ID: "p3", Name: "bread", PriceCents: 25, Stock: 0})

	_, err := eng.Checkout(context.Background(), "u1", []ItemInput{
		{ProductID: "p1", Qty: 1},
		{ProductID: "p2", Qty: 3},
		{ProductID: "p3", Qty: 1},
	})
	var oos *OutOfStockError
	if !errors.As(err, &oos) {
		t.Fatalf("Checkout = %v, want *OutOfStockError", err)
	}
	if oos.ProductID != "p2" || oos.Requested != 3 || oos.Available != 1 {
		t.Fatalf("named item = %+v, want p2", oos)
	}

	// Nothing committed.
	if p := getProduct(t, st, "p1"); p.Stock != 10 {
		t.Fatalf("p1 stock = %d, want 10", p.Stock)
	}
	if a := getAccount(t, st, "u1"); a.BalanceCents != 1000 {
		t.Fatalf("balance = %d, want 1000", a.BalanceCents)
	}
}

func TestCheckoutRepeatedLineItems(t *testing.T) {
	eng, st, _ := testEngine(t)
	seedAccount(t, st, Account{ID: "u1", BalanceCents: 1000})
	seedProduct(t, st, Product{ID: "p1", Name: "bento", PriceCents: 30, Stock: 3})

	// Two lines for the same product must not oversell via stale reads.
	_, err := eng.Checkout(context.Background(), "u1", []ItemInput{
		{ProductID: "p1", Qty: 2},
		{ProductID: "p1", Qty: 2},
	})
	if !errors.Is(err, ErrOutOfStock) {
		t.Fatalf("Checkout = %v, want ErrOutOfStock", err)
	}

	res, err := eng.Checkout(context.Background(), "u1", []ItemInput{
		{ProductID: "p1", Qty: 2},
		{ProductID: "p1", Qty: 1},
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.TotalCents != 90 {
		t.Fatalf("total = %d, want 90", res.TotalCents)
	}
	if p := getProduct(t, st, "p1"); p.Stock != 0 {
		t.Fatalf("stock = %d, want 0", p.Stock)
	}
}

func TestConcurrentCheckoutLastUnit(t *testing.T) {
	eng, st, _ := testEngine(t)
	seedProduct(t, st, Product{ID: "p1", Name: "bento", PriceCents: 30, Stock: 1})
	seedAccount(t, st, Account{ID: "u1", BalanceCents: 100})
	seedAccount(t, st, Account{ID: "u2", BalanceCents: 100})

	errs := make([]error, 2)
	var wg sync.WaitGroup
	for i, uid := range []string{"u1", "u2"} {
		wg.Add(1)
		go func(i int, uid string) {
			defer wg.Done()
			_, errs[i] = eng.Checkout(context.Background(), uid, []ItemInput{{ProductID: "p1", Qty: 1}})
		}(i, uid)
	}
	wg.Wait()

	var ok, oos int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, ErrOutOfStock):
			oos++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if ok != 1 || oos != 1 {
		t.Fatalf("got %d successes and %d out-of-stock, want 1/1", ok, oos)
	}
	p := getProduct(t, st, "p1")
	if p.Stock != 0 {
		t.Fatalf("stock = %d, want 0", p.Stock)
	}
	checkStockInvariant(t, p)
}

// conflictStore always reports a write conflict, exhausting the retry bound.
type conflictStore struct {
	store.Store
}

func (c conflictStore) Transaction(ctx context.Context, fn func(tx store.Tx) error) error {
	return store.ErrConflict
}

func TestCheckoutContentionExhaustsRetries(t *testing.T) {
	eng, st, _ := testEngine(t)
	seedAccount(t, st, Account{ID: "u1", BalanceCents: 100})
	seedProduct(t, st, Product{ID: "p1", Name: "bento", PriceCents: 30, Stock: 5})
	eng.Store = conflictStore{Store: eng.Store}

	_, err := eng.Checkout(context.Background(), "u1", []ItemInput{{ProductID: "p1", Qty: 1}})
	if !errors.Is(err, ErrContention) {
		t.Fatalf("Checkout = %v, want ErrContention", err)
	}
	if !Retryable(err) {
		t.Fatal("contention must be classified retryable")
	}
	if Retryable(ErrInsufficientFunds) || Retryable(ErrOutOfStock) {
		t.Fatal("terminal failures must not be classified retryable")
	}
}
