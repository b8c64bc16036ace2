package room

import (
	"context"
	"sort"
	"sync"
)

// Store persists rooms. Implementations must apply Update and Delete
// atomically with respect to other operations on the same room id.
type Store interface {
	// Get returns a snapshot of the room or ErrRoomNotFound.
	Get(ctx context.Context, id string) (*Room, error)
	// Create inserts the room if no room with the same id exists, else ErrRoomExists.
	Create(ctx context.Context, r *Room) error
	// Update applies fn to the stored room and returns the resulting snapshot.
	// When fn returns an error nothing is written.
	Update(ctx context.Context, id string, fn func(r *Room) error) (*Room, error)
	// Delete removes the room when cond is nil or cond returns true.
	Delete(ctx context.Context, id string, cond func(r *Room) bool) (bool, error)
	// List returns snapshots of every stored room.
	List(ctx context.Context) ([]*Room, error)
}

type roomEntry struct {
	mu      sync.Mutex
	room    *Room
	deleted bool
}

// MemoryStore is an in-memory Store with one lock per room.
type MemoryStore struct {
	mu    sync.RWMutex
	rooms map[string]*roomEntry
}

// NewMemoryStore creates an empty in-memory room store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rooms: make(map[string]*roomEntry)}
}

func (s *MemoryStore) entry(id string) (*roomEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.rooms[id]
	return e, ok
}

// Get returns a snapshot of the room.
func (s *MemoryStore) Get(_ context.Context, id string) (*Room, error) {
	e, ok := s.entry(id)
	if !ok {
		return nil, ErrRoomNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.deleted {
		return nil, ErrRoomNotFound
	}
	return e.room.Clone(), nil
}

// Create inserts r unless the id is taken.
func (s *MemoryStore) Create(_ context.Context, r *Room) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.rooms[r.ID]; exists {
		return ErrRoomExists
	}
	s.rooms[r.ID] = &roomEntry{room: r.Clone()}
	return nil
}

// Update mutates the room under its own lock.
func (s *MemoryStore) Update(_ context.Context, id string, fn func(r *Room) error) (*Room, error) {
	e, ok := s.entry(id)
	if !ok {
		return nil, ErrRoomNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.deleted {
		return nil, ErrRoomNotFound
	}

	working := e.room.Clone()
	if err := fn(working); err != nil {
		return nil, err
	}
	e.room = working
	return working.Clone(), nil
}

// Delete removes the room when cond allows it.
func (s *MemoryStore) Delete(_ context.Context, id string, cond func(r *Room) bool) (bool, error) {
	s.mu.Lock()
	e, ok := s.rooms[id]
	if !ok {
		s.mu.Unlock()
		return false, nil
	}
	e.mu.Lock()
	if cond != nil && !cond(e.room) {
		e.mu.Unlock()
		s.mu.Unlock()
		return false, nil
	}
	e.deleted = true
	e.mu.Unlock()
	delete(s.rooms, id)
	s.mu.Unlock()
	return true, nil
}

// List returns every room ordered by creation time.
func (s *MemoryStore) List(_ context.Context) ([]*Room, error) {
	s.mu.RLock()
	entries := make([]*roomEntry, 0, len(s.rooms))
	for _, e := range s.rooms {
		entries = append(entries, e)
	}
	s.mu.RUnlock()

	rooms := make([]*Room, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		if !e.deleted {
			rooms = append(rooms, e.room.Clone())
		}
		e.mu.Unlock()
	}
	sort.Slice(rooms, func(i, j int) bool {
		if rooms[i].CreatedAt.Equal(rooms[j].CreatedAt) {
			return rooms[i].ID < rooms[j].ID
		}
		return rooms[i].CreatedAt.Before(rooms[j].CreatedAt)
	})
	return rooms, nil
}
