package reserve

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestGenerateShape(t *testing.T) {
	a := DefaultCodeAllocator()
	seen := map[string]bool{}
	for i := 0; i < 1000; i++ {
		code := a.Generate()
		if len(code) != CodeLength {
			t.Fatalf("code %q, want %d chars", code, CodeLength)
		}
		for _, c := range code {
			if !strings.ContainsRune(CodeAlphabet, c) {
				t.Fatalf("code %q contains %q outside alphabet", code, c)
			}
		}
		seen[code] = true
	}
	// Not a uniqueness guarantee, just a sanity check on the value space.
	if len(seen) < 990 {
		t.Fatalf("only %d distinct codes out of 1000", len(seen))
	}
}

func TestAlphabetExcludesConfusableGlyphs(t *testing.T) {
	for _, c := range "01ILO" {
		if strings.ContainsRune(CodeAlphabet, c) {
			t.Fatalf("alphabet contains confusable %q", c)
		}
	}
}

func TestAllocatorRetriesOnCollision(t *testing.T) {
	eng, st, _ := testEngine(t)
	seedAccount(t, st, Account{ID: "u1", BalanceCents: 100})
	seedProduct(t, st, Product{ID: "p1", Name: "bento", PriceCents: 30, Stock: 5})

	// Pin the allocator and lock its first candidate ahead of time.
	const seed = 42
	eng.Codes = NewCodeAllocator(seed)
	taken := NewCodeAllocator(seed).Generate()
	if err := st.Set(context.Background(), CodeKey(taken), CodeLock{Code: taken, OrderID: "other"}); err != nil {
		t.Fatal(err)
	}

	res, err := eng.Checkout(context.Background(), "u1", []ItemInput{{ProductID: "p1", Qty: 1}})
	if err != nil {
		t.Fatal(err)
	}
	if res.PickupCode == taken {
		t.Fatalf("allocator reused locked code %q", taken)
	}
}

func TestAllocatorExhaustsRetryBound(t *testing.T) {
	eng, st, _ := testEngine(t)
	seedAccount(t, st, Account{ID: "u1", BalanceCents: 100})
	seedProduct(t, st, Product{ID: "p1", Name: "bento", PriceCents: 30, Stock: 5})

	const seed = 7
	eng.Codes = NewCodeAllocator(seed)
	eng.CodeRetries = 1
	taken := NewCodeAllocator(seed).Generate()
	if err := st.Set(context.Background(), CodeKey(taken), CodeLock{Code: taken, OrderID: "other"}); err != nil {
		t.Fatal(err)
	}

	_, err := eng.Checkout(context.Background(), "u1", []ItemInput{{ProductID: "p1", Qty: 1}})
	if !errors.Is(err, ErrCodeExhausted) {
		t.Fatalf("Checkout = %v, want ErrCodeExhausted", err)
	}
	// Terminal failure, not a retry hint.
	if Retryable(err) {
		t.Fatal("code exhaustion must not be classified retryable")
	}
	// And all-or-nothing still holds.
	if a := getAccount(t, st, "u1"); a.BalanceCents != 100 {
		t.Fatalf("balance = %d after failed checkout, want 100", a.BalanceCents)
	}
}

func TestActiveOrdersNeverShareACode(t *testing.T) {
	eng, st, _ := testEngine(t)
	seedAccount(t, st, Account{ID: "u1", BalanceCents: 1000})
	seedProduct(t, st, Product{ID: "p1", Name: "bento", PriceCents: 10, Stock: 50})

	codes := map[string]bool{}
	for i := 0; i < 20; i++ {
		res, err := eng.Checkout(context.Background(), "u1", []ItemInput{{ProductID: "p1", Qty: 1}})
		if err != nil {
			t.Fatal(err)
		}
		if codes[res.PickupCode] {
			t.Fatalf("code %q issued twice while both orders active", res.PickupCode)
		}
		codes[res.PickupCode] = true
	}
}
