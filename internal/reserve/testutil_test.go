package reserve

import (
	"context"
	"testing"
	"time"

	"github.com/campuscoop/store-reserve/internal/store/memory"
)

type testClock struct {
	now time.Time
}

func (c *testClock) Now() time.Time          { return c.now }
func (c *testClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func testEngine(t *testing.T) (*Engine, *memory.Store, *testClock) {
	t.Helper()
	st := memory.New()
	clk := &testClock{now: time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)}
	eng := New(st)
	eng.Codes = NewCodeAllocator(1)
	eng.Now = clk.Now
	return eng, st, clk
}

func seedProduct(t *testing.T, st *memory.Store, p Product) {
	t.Helper()
	if err := st.Set(context.Background(), ProductKey(p.ID), p); err != nil {
		t.Fatal(err)
	}
}

func seedAccount(t *testing.T, st *memory.Store, a Account) {
	t.Helper()
	if err := st.Set(context.Background(), AccountKey(a.ID), a); err != nil {
		t.Fatal(err)
	}
}

func getProduct(t *testing.T, st *memory.Store, id string) Product {
	t.Helper()
	var p Product
	if err := st.Get(context.Background(), ProductKey(id), &p); err != nil {
		t.Fatalf("get product %s: %v", id, err)
	}
	return p
}

func getAccount(t *testing.T, st *memory.Store, id string) Account {
	t.Helper()
	var a Account
	if err := st.Get(context.Background(), AccountKey(id), &a); err != nil {
		t.Fatalf("get account %s: %v", id, err)
	}
	return a
}

func getOrder(t *testing.T, st *memory.Store, id string) Order {
	t.Helper()
	var o Order
	if err := st.Get(context.Background(), OrderKey(id), &o); err != nil {
		t.Fatalf("get order %s: %v", id, err)
	}
	return o
}

// checkStockInvariant asserts 0 <= reserved <= stock for a product.
func checkStockInvariant(t *testing.T, p Product) {
	t.Helper()
	if p.Reserved < 0 || p.Reserved > p.Stock {
		t.Fatalf("invariant violated for %s: stock=%d reserved=%d", p.ID, p.Stock, p.Reserved)
	}
}
