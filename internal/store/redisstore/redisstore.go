// Package redisstore backs the document store with Redis. Transactions use
// WATCH/MULTI/EXEC: every key read inside the transaction is watched, so a
// concurrent write aborts the EXEC and surfaces as store.ErrConflict.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/campuscoop/store-reserve/internal/store"
	"github.com/redis/go-redis/v9"
)

type Store struct {
	RDB *redis.Client
}

func New(rdb *redis.Client) *Store {
	return &Store{RDB: rdb}
}

func (s *Store) Get(ctx context.Context, key string, out any) error {
	raw, err := s.RDB.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return store.ErrNotFound
	}
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}

func (s *Store) Set(ctx context.Context, key string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.RDB.Set(ctx, key, b, 0).Err()
}

func (s *Store) CreateIfAbsent(ctx context.Context, key string, v any) (bool, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return false, err
	}
	return s.RDB.SetNX(ctx, key, b, 0).Result()
}

func (s *Store) Delete(ctx context.Context, key string) error {
	return s.RDB.Del(ctx, key).Err()
}

func (s *Store) Scan(ctx context.Context, prefix string, fn func(key string, raw []byte) error) error {
	iter := s.RDB.Scan(ctx, 0, prefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		raw, err := s.RDB.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			continue // deleted between SCAN and GET
		}
		if err != nil {
			return err
		}
		if err := fn(key, raw); err != nil {
			return err
		}
	}
	return iter.Err()
}

type write struct {
	data   []byte
	create bool
	del    bool
}

type tx struct {
	rtx    *redis.Tx
	writes map[string]write
}

func (s *Store) Transaction(ctx context.Context, fn func(tx store.Tx) error) error {
	err := s.RDB.Watch(ctx, func(rtx *redis.Tx) error {
		t := &tx{rtx: rtx, writes: make(map[string]write)}
		if err := fn(t); err != nil {
			return err
		}
		// Creates re-check absence under WATCH right before EXEC; a racing
		// create flips the watched key and fails the EXEC.
		for key, w := range t.writes {
			if !w.create {
				continue
			}
			if err := rtx.Watch(ctx, key).Err(); err != nil {
				return err
			}
			if err := rtx.Get(ctx, key).Err(); err == nil {
				return store.ErrConflict
			} else if !errors.Is(err, redis.Nil) {
				return err
			}
		}
		_, err := rtx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			for key, w := range t.writes {
				if w.del {
					pipe.Del(ctx, key)
					continue
				}
				pipe.Set(ctx, key, w.data, 0)
			}
			return nil
		})
		return err
	})
	if errors.Is(err, redis.TxFailedErr) {
		return store.ErrConflict
	}
	return err
}

func (t *tx) Get(ctx context.Context, key string, out any) error {
	if w, ok := t.writes[key]; ok {
		if w.del {
			return store.ErrNotFound
		}
		return json.Unmarshal(w.data, out)
	}
	if err := t.rtx.Watch(ctx, key).Err(); err != nil {
		return err
	}
	raw, err := t.rtx.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return store.ErrNotFound
	}
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}

func (t *tx) Set(key string, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
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
