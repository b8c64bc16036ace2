package summary

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// MemoryTranscripts keeps transcripts in process memory.
type MemoryTranscripts struct {
	mu      sync.RWMutex
	entries map[string][]TranscriptEntry
}

// NewMemoryTranscripts creates an empty in-memory transcript source.
func NewMemoryTranscripts() *MemoryTranscripts {
	return &MemoryTranscripts{entries: make(map[string][]TranscriptEntry)}
}

func (m *MemoryTranscripts) Append(_ context.Context, roomID string, entry TranscriptEntry) error {
	m.mu.Lock()
	m.entries[roomID] = append(m.entries[roomID], entry)
	m.mu.Unlock()
	return nil
}

func (m *MemoryTranscripts) Transcript(_ context.Context, roomID string) ([]TranscriptEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	src := m.entries[roomID]
	out := make([]TranscriptEntry, len(src))
	copy(out, src)
	return out, nil
}

// Cleanup drops transcripts whose last entry predates cutoff.
func (m *MemoryTranscripts) Cleanup(_ context.Context, cutoff time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for id, entries := range m.entries {
		if len(entries) == 0 || entries[len(entries)-1].Timestamp.Before(cutoff) {
			delete(m.entries, id)
			n++
		}
	}
	return n
}

// RedisTranscripts stores each room's transcript as a Redis list of JSON
// entries. Every append refreshes the key TTL.
type RedisTranscripts struct {
	client    redis.UniversalClient
	keyPrefix string
	ttl       time.Duration
}

// NewRedisTranscripts creates a Redis-backed transcript source. A zero ttl
// keeps transcripts forever.
func NewRedisTranscripts(client redis.UniversalClient, keyPrefix string, ttl time.Duration) *RedisTranscripts {
	if keyPrefix == "" {
		keyPrefix = "warmtransfer:"
	}
	return &RedisTranscripts{
		client:    client,
		keyPrefix: keyPrefix + "transcript:",
		ttl:       ttl,
	}
}

func (r *RedisTranscripts) key(roomID string) string {
	return r.keyPrefix + roomID
}

func (r *RedisTranscripts) Append(ctx context.Context, roomID string, entry TranscriptEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal transcript entry: %w", err)
	}
	pipe := r.client.TxPipeline()
	pipe.RPush(ctx, r.key(roomID), data)
	if r.ttl > 0 {
		pipe.Expire(ctx, r.key(roomID), r.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("append transcript: %w", err)
	}
	return nil
}

func (r *RedisTranscripts) Transcript(ctx context.Context, roomID string) ([]TranscriptEntry, error) {
	raw, err := r.client.LRange(ctx, r.key(roomID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("load transcript: %w", err)
	}
	out := make([]TranscriptEntry, 0, len(raw))
	for _, item := range raw {
		var e TranscriptEntry
		if err := json.Unmarshal([]byte(item), &e); err != nil {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}
