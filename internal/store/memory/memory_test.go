package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/campuscoop/store-reserve/internal/store"
)

type doc struct {
	N int `json:"n"`
}

func TestGetSetDelete(t *testing.T) {
	ctx := context.Background()
	s := New()

	var out doc
	if err := s.Get(ctx, "k", &out); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("Get missing = %v, want ErrNotFound", err)
	}
	if err := s.Set(ctx, "k", doc{N: 1}); err != nil {
		t.Fatal(err)
	}
	if err := s.Get(ctx, "k", &out); err != nil || out.N != 1 {
		t.Fatalf("Get = %v %+v", err, out)
	}
	if err := s.Delete(ctx, "k"); err != nil {
		t.Fatal(err)
	}
	if err := s.Get(ctx, "k", &out); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("Get after delete = %v, want ErrNotFound", err)
	}
}

func TestCreateIfAbsent(t *testing.T) {
	ctx := context.Background()
	s := New()

	created, err := s.CreateIfAbsent(ctx, "k", doc{N: 1})
	if err != nil || !created {
		t.Fatalf("first create = %v %v", created, err)
	}
	created, err = s.CreateIfAbsent(ctx, "k", doc{N: 2})
	if err != nil || created {
		t.Fatalf("second create = %v %v, want false nil", created, err)
	}
	var out doc
	if err := s.Get(ctx, "k", &out); err != nil || out.N != 1 {
		t.Fatalf("winner overwritten: %+v", out)
	}
}

func TestTransactionConflictOnConcurrentWrite(t *testing.T) {
	ctx := context.Background()
	s := New()
	if err := s.Set(ctx, "k", doc{N: 1}); err != nil {
		t.Fatal(err)
	}

	err := s.Transaction(ctx, func(tx store.Tx) error {
		var d doc
		if err := tx.Get(ctx, "k", &d); err != nil {
			return err
		}
		// Another writer commits between our read and our commit.
		if err := s.Set(ctx, "k", doc{N: 99}); err != nil {
			return err
		}
		tx.Set("k", doc{N: d.N + 1})
		return nil
	})
	if !errors.Is(err, store.ErrConflict) {
		t.Fatalf("Transaction = %v, want ErrConflict", err)
	}

	var out doc
	if err := s.Get(ctx, "k", &out); err != nil || out.N != 99 {
		t.Fatalf("conflicting tx left writes: %+v", out)
	}
}

func TestTransactionConflictOnRacingCreate(t *testing.T) {
	ctx := context.Background()
	s := New()

	err := s.Transaction(ctx, func(tx store.Tx) error {
		var d doc
		if err := tx.Get(ctx, "k", &d); !errors.Is(err, store.ErrNotFound) {
			return err
		}
		if _, err := s.CreateIfAbsent(ctx, "k", doc{N: 7}); err != nil {
			return err
		}
		tx.Create("k", doc{N: 1})
		return nil
	})
	if !errors.Is(err, store.ErrConflict) {
		t.Fatalf("Transaction = %v, want ErrConflict", err)
	}
}

func TestTransactionReadYourWrites(t *testing.T) {
	ctx := context.Background()
	s := New()
	if err := s.Set(ctx, "k", doc{N: 1}); err != nil {
		t.Fatal(err)
	}

	err := s.Transaction(ctx, func(tx store.Tx) error {
		var d doc
		if err := tx.Get(ctx, "k", &d); err != nil {
			return err
		}
		tx.Set("k", doc{N: d.N + 1})
		if err := tx.Get(ctx, "k", &d); err != nil {
			return err
		}
		if d.N != 2 {
			t.Fatalf("buffered write not visible, got %d", d.N)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestTransactionReadAfterDelete(t *testing.T) {
	ctx := context.Background()
	s := New()
	if err := s.Set(ctx, "k", doc{N: 1}); err != nil {
		t.Fatal(err)
	}

	err := s.Transaction(ctx, func(tx store.Tx) error {
		tx.Delete("k")
		var d doc
		if err := tx.Get(ctx, "k", &d); !errors.Is(err, store.ErrNotFound) {
			t.Fatalf("Get after buffered delete = %v, want ErrNotFound", err)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	var out doc
	if err := s.Get(ctx, "k", &out); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("delete not applied: %v", err)
	}
}

func TestTransactionAbortAppliesNothing(t *testing.T) {
	ctx := context.Background()
	s := New()
	boom := errors.New("boom")

	err := s.Transaction(ctx, func(tx store.Tx) error {
		tx.Set("k", doc{N: 1})
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("Transaction = %v", err)
	}
	var out doc
	if err := s.Get(ctx, "k", &out); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("aborted tx wrote: %v", err)
	}
}

func TestScanPrefix(t *testing.T) {
	ctx := context.Background()
	s := New()
	for _, k := range []string{"order:1", "order:2", "product:1"} {
		if err := s.Set(ctx, k, doc{N: 1}); err != nil {
			t.Fatal(err)
		}
	}

	seen := map[string]bool{}
	err := s.Scan(ctx, "order:", func(key string, raw []byte) error {
		seen[key] = true
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(seen) != 2 || !seen["order:1"] || !seen["order:2"] {
		t.Fatalf("scan saw %v", seen)
	}
}
