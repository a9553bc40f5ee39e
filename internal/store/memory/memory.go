// Package memory is an in-process Store used by tests. It mirrors the
// optimistic-concurrency behavior of the real adapters: every key carries a
// version, and a transaction commits only if nothing it read or created
// changed in the meantime.
package memory

import (
	"context"
	"encoding/json"
	"strings"
	"sync"

	"github.com/campuscoop/store-reserve/internal/store"
)

type entry struct {
	data []byte
	ver  uint64
}

type Store struct {
	mu sync.Mutex
	m  map[string]entry
}

func New() *Store {
	return &Store{m: make(map[string]entry)}
}

func (s *Store) Get(ctx context.Context, key string, out any) error {
	s.mu.Lock()
	e, ok := s.m[key]
	s.mu.Unlock()
	if !ok {
		return store.ErrNotFound
	}
	return json.Unmarshal(e.data, out)
}

func (s *Store) Set(ctx context.Context, key string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[key] = entry{data: b, ver: s.m[key].ver + 1}
	return nil
}

func (s *Store) CreateIfAbsent(ctx context.Context, key string, v any) (bool, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.m[key]; ok {
		return false, nil
	}
	s.m[key] = entry{data: b, ver: 1}
	return true, nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.m, key)
	return nil
}

func (s *Store) Scan(ctx context.Context, prefix string, fn func(key string, raw []byte) error) error {
	s.mu.Lock()
	snapshot := make(map[string][]byte, len(s.m))
	for k, e := range s.m {
		if strings.HasPrefix(k, prefix) {
			snapshot[k] = e.data
		}
	}
	s.mu.Unlock()

	for k, raw := range snapshot {
		if err := fn(k, raw); err != nil {
			return err
		}
	}
	return nil
}

type write struct {
	data   []byte
	create bool
	del    bool
}

type tx struct {
	s      *Store
	reads  map[string]uint64 // version observed, 0 = absent
	writes map[string]write
}

func (s *Store) Transaction(ctx context.Context, fn func(tx store.Tx) error) error {
	t := &tx{s: s, reads: make(map[string]uint64), writes: make(map[string]write)}
	if err := fn(t); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for k, ver := range t.reads {
		if s.m[k].ver != ver {
			return store.ErrConflict
		}
	}
	for k, w := range t.writes {
		if w.create {
			if _, ok := s.m[k]; ok {
				return store.ErrConflict
			}
		}
	}
	for k, w := range t.writes {
		if w.del {
			delete(s.m, k)
			continue
		}
		s.m[k] = entry{data: w.data, ver: s.m[k].ver + 1}
	}
	return nil
}

func (t *tx) Get(ctx context.Context, key string, out any) error {
	// Uncommitted writes from this tx are visible to later reads, and a
	// buffered delete hides the committed value.
	if w, ok := t.writes[key]; ok {
		if w.del {
			return store.ErrNotFound
		}
		return json.Unmarshal(w.data, out)
	}
	t.s.mu.Lock()
	e, ok := t.s.m[key]
	t.s.mu.Unlock()
	if _, seen := t.reads[key]; !seen {
		if ok {
			t.reads[key] = e.ver
		} else {
			t.reads[key] = 0
		}
	}
	if !ok {
		return store.ErrNotFound
	}
	return json.Unmarshal(e.data, out)
}

func (t *tx) Set(key string, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err) // domain types marshal cleanly; a failure here is a bug
	}
	t.writes[key] = write{data: b}
}

func (t *tx) Create(key string, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	t.writes[key] = write{data: b, create: true}
}

func (t *tx) Delete(key string) {
	t.writes[key] = write{del: true}
}
