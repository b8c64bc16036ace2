package transfer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store is the transfer registry. Update is the exclusive mutation scope
// for one transfer.
type Store interface {
	Create(ctx context.Context, t *Transfer) error
	Get(ctx context.Context, id string) (*Transfer, error)
	// Update applies fn and persists the result. Nothing is written when fn
	// returns an error.
	Update(ctx context.Context, id string, fn func(t *Transfer) error) (*Transfer, error)
	Delete(ctx context.Context, id string) error
	// List returns every transfer, newest first.
	List(ctx context.Context) ([]*Transfer, error)
}

func sortNewestFirst(ts []*Transfer) {
	sort.Slice(ts, func(i, j int) bool {
		if ts[i].CreatedAt.Equal(ts[j].CreatedAt) {
			return ts[i].ID > ts[j].ID
		}
		return ts[i].CreatedAt.After(ts[j].CreatedAt)
	})
}

// =============================================================================
// Memory
// =============================================================================

type entry struct {
	mu       sync.Mutex
	transfer *Transfer
	deleted  bool
}

// MemoryStore keeps transfers in process memory with one lock per transfer.
type MemoryStore struct {
	mu        sync.RWMutex
	transfers map[string]*entry
}

// NewMemoryStore creates an empty in-memory registry.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{transfers: make(map[string]*entry)}
}

func (s *MemoryStore) lookup(id string) (*entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.transfers[id]
	return e, ok
}

func (s *MemoryStore) Create(_ context.Context, t *Transfer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.transfers[t.ID]; ok {
		return ErrTransferExists
	}
	s.transfers[t.ID] = &entry{transfer: t.Clone()}
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*Transfer, error) {
	e, ok := s.lookup(id)
	if !ok {
		return nil, ErrTransferNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.deleted {
		return nil, ErrTransferNotFound
	}
	return e.transfer.Clone(), nil
}

func (s *MemoryStore) Update(_ context.Context, id string, fn func(t *Transfer) error) (*Transfer, error) {
	e, ok := s.lookup(id)
	if !ok {
		return nil, ErrTransferNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.deleted {
		return nil, ErrTransferNotFound
	}
	working := e.transfer.Clone()
	if err := fn(working); err != nil {
		return nil, err
	}
	e.transfer = working
	return working.Clone(), nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.transfers[id]
	if !ok {
		return ErrTransferNotFound
	}
	e.mu.Lock()
	e.deleted = true
	e.mu.Unlock()
	delete(s.transfers, id)
	return nil
}

func (s *MemoryStore) List(_ context.Context) ([]*Transfer, error) {
	s.mu.RLock()
	entries := make([]*entry, 0, len(s.transfers))
	for _, e := range s.transfers {
		entries = append(entries, e)
	}
	s.mu.RUnlock()

	out := make([]*Transfer, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		if !e.deleted {
			out = append(out, e.transfer.Clone())
		}
		e.mu.Unlock()
	}
	sortNewestFirst(out)
	return out, nil
}

// =============================================================================
// Redis
// =============================================================================

const maxUpdateRetries = 16

// RedisStore keeps each transfer as a JSON value and indexes ids in a
// sorted set scored by creation time. Update uses WATCH/MULTI.
type RedisStore struct {
	client    redis.UniversalClient
	keyPrefix string
	ttl       time.Duration
}

// NewRedisStore creates a Redis-backed registry. Terminal transfers expire
// after ttl when it is positive.
func NewRedisStore(client redis.UniversalClient, keyPrefix string, ttl time.Duration) *RedisStore {
	if keyPrefix == "" {
		keyPrefix = "warmtransfer:"
	}
	return &RedisStore{client: client, keyPrefix: keyPrefix + "transfer:", ttl: ttl}
}

func (s *RedisStore) dataKey(id string) string { return s.keyPrefix + "data:" + id }

func (s *RedisStore) indexKey() string { return s.keyPrefix + "all" }

func (s *RedisStore) expiry(t *Transfer) time.Duration {
	if s.ttl > 0 && t.Status.Terminal() {
		return s.ttl
	}
	return 0
}

func (s *RedisStore) Create(ctx context.Context, t *Transfer) error {
	data, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("failed to marshal transfer: %w", err)
	}
	ok, err := s.client.SetNX(ctx, s.dataKey(t.ID), data, s.expiry(t)).Result()
	if err != nil {
		return fmt.Errorf("create transfer: %w", err)
	}
	if !ok {
		return ErrTransferExists
	}
	score := float64(t.CreatedAt.UnixNano())
	if err := s.client.ZAdd(ctx, s.indexKey(), redis.Z{Score: score, Member: t.ID}).Err(); err != nil {
		return fmt.Errorf("index transfer: %w", err)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, id string) (*Transfer, error) {
	data, err := s.client.Get(ctx, s.dataKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrTransferNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get transfer: %w", err)
	}
	var t Transfer
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("decode transfer: %w", err)
	}
	return &t, nil
}

func (s *RedisStore) Update(ctx context.Context, id string, fn func(t *Transfer) error) (*Transfer, error) {
	key := s.dataKey(id)
	var result *Transfer

	txf := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return ErrTransferNotFound
		}
		if err != nil {
			return err
		}
		var t Transfer
		if err := json.Unmarshal(data, &t); err != nil {
			return fmt.Errorf("decode transfer: %w", err)
		}
		if err := fn(&t); err != nil {
			return err
		}
		out, err := json.Marshal(&t)
		if err != nil {
			return fmt.Errorf("failed to marshal transfer: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, out, s.expiry(&t))
			return nil
		})
		if err == nil {
			result = &t
		}
		return err
	}

	for i := 0; i < maxUpdateRetries; i++ {
		err := s.client.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return result, nil
	}
	return nil, fmt.Errorf("update transfer %s: too much contention", id)
}

func (s *RedisStore) Delete(ctx context.Context, id string) error {
	pipe := s.client.TxPipeline()
	del := pipe.Del(ctx, s.dataKey(id))
	pipe.ZRem(ctx, s.indexKey(), id)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("delete transfer: %w", err)
	}
	if del.Val() == 0 {
		return ErrTransferNotFound
	}
	return nil
}

func (s *RedisStore) List(ctx context.Context) ([]*Transfer, error) {
	ids, err := s.client.ZRevRange(ctx, s.indexKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list transfers: %w", err)
	}
	out := make([]*Transfer, 0, len(ids))
	var stale []any
	for _, id := range ids {
		t, err := s.Get(ctx, id)
		if errors.Is(err, ErrTransferNotFound) {
			stale = append(stale, id)
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	if len(stale) > 0 {
		// expired values leave their index entries behind
		_ = s.client.ZRem(ctx, s.indexKey(), stale...).Err()
	}
	sortNewestFirst(out)
	return out, nil
}
