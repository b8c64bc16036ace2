package room

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRoom(id string, created time.Time) *Room {
	return &Room{
		ID:           id,
		Type:         TypeCall,
		CreatedAt:    created,
		LastActivity: created,
		Active:       true,
		Metadata:     map[string]any{},
		Participants: map[string]*ParticipantInfo{},
	}
}

func TestMemoryStore_CreateGetIsolation(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	r := newTestRoom("call_1", time.Now())
	require.NoError(t, s.Create(ctx, r))
	assert.ErrorIs(t, s.Create(ctx, r), ErrRoomExists)

	got, err := s.Get(ctx, "call_1")
	require.NoError(t, err)
	got.Participants["x"] = &ParticipantInfo{Identity: "x"}
	got.Metadata["k"] = "v"

	again, err := s.Get(ctx, "call_1")
	require.NoError(t, err)
	assert.Empty(t, again.Participants, "snapshots must not alias stored state")
	assert.NotContains(t, again.Metadata, "k")

	_, err = s.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrRoomNotFound)
}

func TestMemoryStore_UpdateAbortsOnError(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.Create(ctx, newTestRoom("call_1", time.Now())))

	boom := errors.New("boom")
	_, err := s.Update(ctx, "call_1", func(r *Room) error {
		r.Name = "changed"
		return boom
	})
	assert.ErrorIs(t, err, boom)

	got, err := s.Get(ctx, "call_1")
	require.NoError(t, err)
	assert.Empty(t, got.Name)

	_, err = s.Update(ctx, "missing", func(r *Room) error { return nil })
	assert.ErrorIs(t, err, ErrRoomNotFound)
}

func TestMemoryStore_ConcurrentUpdates(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.Create(ctx, newTestRoom("call_1", time.Now())))

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("p%d", i)
			_, err := s.Update(ctx, "call_1", func(r *Room) error {
				r.Participants[id] = &ParticipantInfo{Identity: id}
				return nil
			})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	got, err := s.Get(ctx, "call_1")
	require.NoError(t, err)
	assert.Len(t, got.Participants, 50)
}

func TestMemoryStore_ConditionalDelete(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.Create(ctx, newTestRoom("call_1", time.Now())))

	deleted, err := s.Delete(ctx, "call_1", func(r *Room) bool { return false })
	require.NoError(t, err)
	assert.False(t, deleted)

	deleted, err = s.Delete(ctx, "call_1", nil)
	require.NoError(t, err)
	assert.True(t, deleted)

	deleted, err = s.Delete(ctx, "call_1", nil)
	require.NoError(t, err)
	assert.False(t, deleted)
}

func TestMemoryStore_ListOrdered(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	base := time.Now()
	require.NoError(t, s.Create(ctx, newTestRoom("c", base.Add(2*time.Second))))
	require.NoError(t, s.Create(ctx, newTestRoom("a", base)))
	require.NoError(t, s.Create(ctx, newTestRoom("b", base.Add(time.Second))))

	rooms, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, rooms, 3)
	assert.Equal(t, []string{"a", "b", "c"}, []string{rooms[0].ID, rooms[1].ID, rooms[2].ID})
}
