package room

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/warmtransfer/types"
)

// mockTransport implements Transport with function callbacks.
type mockTransport struct {
	mu                sync.Mutex
	deleted           []string
	removed           []string
	listRoomsFn       func(names []string) ([]RemoteRoom, error)
	deleteRoomFn      func(room string) error
	removeFn          func(room, identity string) error
	listParticipantFn func(room string) ([]RemoteParticipant, error)
}

func (m *mockTransport) ListRooms(_ context.Context, names []string) ([]RemoteRoom, error) {
	if m.listRoomsFn != nil {
		return m.listRoomsFn(names)
	}
	return nil, nil
}

func (m *mockTransport) DeleteRoom(_ context.Context, room string) error {
	m.mu.Lock()
	m.deleted = append(m.deleted, room)
	m.mu.Unlock()
	if m.deleteRoomFn != nil {
		return m.deleteRoomFn(room)
	}
	return nil
}

func (m *mockTransport) RemoveParticipant(_ context.Context, room, identity string) error {
	m.mu.Lock()
	m.removed = append(m.removed, room+"/"+identity)
	m.mu.Unlock()
	if m.removeFn != nil {
		return m.removeFn(room, identity)
	}
	return nil
}

func (m *mockTransport) ListParticipants(_ context.Context, room string) ([]RemoteParticipant, error) {
	if m.listParticipantFn != nil {
		return m.listParticipantFn(room)
	}
	return nil, ErrTransportNotFound
}

func (m *mockTransport) SendData(context.Context, string, string, []byte) error { return nil }

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestManager(t *testing.T, transport Transport) (*Manager, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)}
	signer := NewTokenSigner("devkey", "devsecret", time.Hour)
	m := NewManager(NewMemoryStore(), transport, signer, zap.NewNop(), WithClock(clock.Now))
	return m, clock
}

func TestManager_CreateRoom(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager(t, nil)

	id, err := m.CreateRoom(ctx, "Support", TypeConsultation, 3, WithRoomMetadata(map[string]any{"transfer_id": "t1"}))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(id, "consultation_"))
	assert.Len(t, strings.TrimPrefix(id, "consultation_"), 32)

	r, ok := m.GetRoomInfo(ctx, id)
	require.True(t, ok)
	assert.Equal(t, "Support", r.Name)
	assert.Equal(t, 3, r.MaxParticipants)
	assert.True(t, r.Active)
	assert.False(t, r.Materialized)
	assert.Empty(t, r.Participants)
	assert.Equal(t, "t1", r.Metadata["transfer_id"])
	assert.Equal(t, "Support", r.Metadata["name"])

	other, err := m.CreateRoom(ctx, "Support", TypeConsultation, 3)
	require.NoError(t, err)
	assert.NotEqual(t, id, other)
}

func TestManager_CreateRoom_DefaultsAndValidation(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager(t, nil)

	id, err := m.CreateRoom(ctx, "c", TypeCall, 0)
	require.NoError(t, err)
	r, ok := m.GetRoomInfo(ctx, id)
	require.True(t, ok)
	assert.Equal(t, 10, r.MaxParticipants)

	_, err = m.CreateRoom(ctx, "c", Type("lobby"), 3)
	assert.Equal(t, types.ErrInvalidRequest, types.GetErrorCode(err))
}

func TestManager_GenerateJoinToken_RegistersParticipant(t *testing.T) {
	ctx := context.Background()
	m, clock := newTestManager(t, nil)

	id, err := m.CreateRoom(ctx, "call", TypeCall, 10)
	require.NoError(t, err)
	clock.Advance(time.Minute)

	token, err := m.GenerateJoinToken(ctx, TokenRequest{
		RoomID:   id,
		Identity: "a1",
		Name:     "Alice",
		Role:     RoleAgentA,
		Metadata: map[string]any{"role": "caller", "desk": "7"},
	})
	require.NoError(t, err)
	require.NotEmpty(t, token)

	r, ok := m.GetRoomInfo(ctx, id)
	require.True(t, ok)
	p := r.Participants["a1"]
	require.NotNil(t, p)
	assert.Equal(t, RoleAgentA, p.Role)
	assert.Equal(t, "Alice", p.Name)
	assert.False(t, p.Connected)
	assert.Equal(t, clock.Now(), r.LastActivity)
	// role and joined_at always win over caller metadata
	assert.Equal(t, "agent_a", p.Metadata["role"])
	assert.Equal(t, "7", p.Metadata["desk"])
	assert.NotEmpty(t, p.Metadata["joined_at"])

	claims, err := m.signer.Verify(token)
	require.NoError(t, err)
	meta, err := claims.DecodeMetadata()
	require.NoError(t, err)
	assert.Equal(t, "agent_a", meta["role"])
}

func TestManager_GenerateJoinToken_AutoCreatesUnknownRoom(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager(t, nil)

	_, err := m.GenerateJoinToken(ctx, TokenRequest{RoomID: "room_1", Identity: "c1"})
	require.NoError(t, err)

	r, ok := m.GetRoomInfo(ctx, "room_1")
	require.True(t, ok)
	assert.True(t, r.Materialized)
	assert.Equal(t, TypeCall, r.Type)
	assert.Equal(t, true, r.Metadata["auto_created"])
	assert.Equal(t, RoleCaller, r.Participants["c1"].Role)
}

func TestManager_GenerateJoinToken_ResolvesFromTransport(t *testing.T) {
	ctx := context.Background()
	transport := &mockTransport{
		listRoomsFn: func(names []string) ([]RemoteRoom, error) {
			return []RemoteRoom{{Name: "remote_room", NumParticipants: 1, Metadata: `{"name":"Remote"}`}}, nil
		},
		listParticipantFn: func(room string) ([]RemoteParticipant, error) {
			return []RemoteParticipant{{Identity: "c1", Active: true}}, nil
		},
	}
	m, _ := newTestManager(t, transport)

	_, err := m.GenerateJoinToken(ctx, TokenRequest{RoomID: "remote_room", Identity: "a1", Role: RoleAgentA})
	require.NoError(t, err)

	r, ok := m.GetRoomInfo(ctx, "remote_room")
	require.True(t, ok)
	assert.Equal(t, "Remote", r.Metadata["name"])
	assert.NotContains(t, r.Metadata, "auto_created")
	require.Contains(t, r.Participants, "c1")
	assert.Equal(t, RoleCaller, r.Participants["c1"].Role)
	assert.True(t, r.Participants["c1"].Connected)
	assert.Equal(t, RoleAgentA, r.Participants["a1"].Role)
}

func TestManager_GenerateJoinToken_Errors(t *testing.T) {
	ctx := context.Background()

	m := NewManager(NewMemoryStore(), nil, NewTokenSigner("", "", 0), zap.NewNop())
	_, err := m.GenerateJoinToken(ctx, TokenRequest{RoomID: "r", Identity: "c1"})
	assert.Equal(t, types.ErrConfiguration, types.GetErrorCode(err))
	_, ok := m.GetRoomInfo(ctx, "r")
	assert.False(t, ok, "a failed token request must not create the room")

	m, _ = newTestManager(t, nil)
	_, err = m.GenerateJoinToken(ctx, TokenRequest{RoomID: "r"})
	assert.Equal(t, types.ErrInvalidRequest, types.GetErrorCode(err))
	_, err = m.GenerateJoinToken(ctx, TokenRequest{RoomID: "r", Identity: "x", Role: Role("boss")})
	assert.Equal(t, types.ErrInvalidRequest, types.GetErrorCode(err))
}

func TestManager_RemoveParticipant(t *testing.T) {
	ctx := context.Background()
	transport := &mockTransport{}
	m, _ := newTestManager(t, transport)

	_, err := m.GenerateJoinToken(ctx, TokenRequest{RoomID: "room_1", Identity: "a1", Role: RoleAgentA})
	require.NoError(t, err)

	ok, err := m.RemoveParticipant(ctx, "room_1", "a1")
	require.NoError(t, err)
	assert.True(t, ok)

	r, _ := m.GetRoomInfo(ctx, "room_1")
	assert.NotContains(t, r.Participants, "a1")
	assert.Equal(t, []string{"room_1/a1"}, transport.removed)
}

func TestManager_RemoveParticipant_TransportErrors(t *testing.T) {
	ctx := context.Background()
	transport := &mockTransport{removeFn: func(room, identity string) error { return ErrTransportNotFound }}
	m, _ := newTestManager(t, transport)

	ok, err := m.RemoveParticipant(ctx, "room_x", "ghost")
	require.NoError(t, err, "not found on the media server is success")
	assert.True(t, ok)

	transport.removeFn = func(room, identity string) error { return errors.New("connection refused") }
	_, err = m.GenerateJoinToken(ctx, TokenRequest{RoomID: "room_1", Identity: "a1"})
	require.NoError(t, err)

	_, err = m.RemoveParticipant(ctx, "room_1", "a1")
	require.Error(t, err)
	assert.Equal(t, types.ErrUpstreamUnavailable, types.GetErrorCode(err))
	r, _ := m.GetRoomInfo(ctx, "room_1")
	assert.NotContains(t, r.Participants, "a1", "local state is updated before the transport call")
}

func TestManager_DeleteRoom_Idempotent(t *testing.T) {
	ctx := context.Background()
	transport := &mockTransport{deleteRoomFn: func(room string) error { return ErrTransportNotFound }}
	m, _ := newTestManager(t, transport)

	id, err := m.CreateRoom(ctx, "c", TypeConsultation, 3)
	require.NoError(t, err)

	ok, err := m.DeleteRoom(ctx, id)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = m.DeleteRoom(ctx, id)
	require.NoError(t, err)
	assert.True(t, ok)

	_, found := m.GetRoomInfo(ctx, id)
	assert.False(t, found)
	assert.Empty(t, m.ListRooms(ctx))
}

func TestManager_DeleteRoom_TransportFailureStillRemovesLocal(t *testing.T) {
	ctx := context.Background()
	transport := &mockTransport{deleteRoomFn: func(room string) error { return errors.New("503") }}
	m, _ := newTestManager(t, transport)

	id, err := m.CreateRoom(ctx, "c", TypeCall, 3)
	require.NoError(t, err)

	_, err = m.DeleteRoom(ctx, id)
	assert.Equal(t, types.ErrUpstreamUnavailable, types.GetErrorCode(err))
	_, found := m.GetRoomInfo(ctx, id)
	assert.False(t, found)
}

func TestManager_GetRoomInfo_Unknown(t *testing.T) {
	ctx := context.Background()
	transport := &mockTransport{listRoomsFn: func([]string) ([]RemoteRoom, error) { return nil, errors.New("down") }}
	m, _ := newTestManager(t, transport)

	r, ok := m.GetRoomInfo(ctx, "nope")
	assert.False(t, ok)
	assert.Nil(t, r)
}

func TestManager_ListRooms_OrderedActive(t *testing.T) {
	ctx := context.Background()
	m, clock := newTestManager(t, nil)

	first, _ := m.CreateRoom(ctx, "one", TypeCall, 2)
	clock.Advance(time.Second)
	second, _ := m.CreateRoom(ctx, "two", TypeCall, 2)

	rooms := m.ListRooms(ctx)
	require.Len(t, rooms, 2)
	assert.Equal(t, first, rooms[0].ID)
	assert.Equal(t, second, rooms[1].ID)
}

func TestManager_CleanupInactiveRooms(t *testing.T) {
	ctx := context.Background()
	m, clock := newTestManager(t, &mockTransport{})

	idle, _ := m.CreateRoom(ctx, "idle", TypeCall, 2)
	occupied, _ := m.CreateRoom(ctx, "occupied", TypeCall, 2)
	_, err := m.GenerateJoinToken(ctx, TokenRequest{RoomID: occupied, Identity: "c1"})
	require.NoError(t, err)

	clock.Advance(2 * time.Hour)
	fresh, _ := m.CreateRoom(ctx, "fresh", TypeCall, 2)

	cleaned := m.CleanupInactiveRooms(ctx, time.Hour)
	assert.Equal(t, 1, cleaned)

	_, ok := m.GetRoomInfo(ctx, idle)
	assert.False(t, ok)
	_, ok = m.GetRoomInfo(ctx, occupied)
	assert.True(t, ok)
	_, ok = m.GetRoomInfo(ctx, fresh)
	assert.True(t, ok)
}

func TestManager_CleanupContinuesAfterTransportError(t *testing.T) {
	ctx := context.Background()
	transport := &mockTransport{deleteRoomFn: func(string) error { return errors.New("boom") }}
	m, clock := newTestManager(t, transport)

	_, _ = m.CreateRoom(ctx, "a", TypeCall, 2)
	_, _ = m.CreateRoom(ctx, "b", TypeCall, 2)
	clock.Advance(2 * time.Hour)

	assert.Equal(t, 2, m.CleanupInactiveRooms(ctx, time.Hour))
	assert.Len(t, transport.deleted, 2)
}

func TestManager_ParticipantStateAndWatch(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager(t, nil)

	_, err := m.GenerateJoinToken(ctx, TokenRequest{RoomID: "room_1", Identity: "c1"})
	require.NoError(t, err)

	watch := m.Watch("room_1")
	require.NoError(t, m.SetParticipantConnected(ctx, "room_1", "c1", true))

	select {
	case <-watch:
	case <-time.After(time.Second):
		t.Fatal("watch channel was not closed on state change")
	}

	require.NoError(t, m.SetParticipantHold(ctx, "room_1", "c1", true))
	r, _ := m.GetRoomInfo(ctx, "room_1")
	assert.True(t, r.Participants["c1"].Connected)
	assert.True(t, r.Participants["c1"].OnHold)
	assert.False(t, r.Participants["c1"].AudioEnabled)
	assert.True(t, r.HasConnected(RoleCaller, true))

	err = m.SetParticipantConnected(ctx, "room_1", "ghost", true)
	assert.Equal(t, types.ErrNotFound, types.GetErrorCode(err))
	err = m.SetParticipantHold(ctx, "missing", "c1", true)
	assert.Equal(t, types.ErrNotFound, types.GetErrorCode(err))
}

func TestManager_MoveParticipant(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager(t, &mockTransport{})

	_, err := m.GenerateJoinToken(ctx, TokenRequest{RoomID: "room_1", Identity: "c1"})
	require.NoError(t, err)
	target, _ := m.CreateRoom(ctx, "t", TypeTransfer, 3)

	token, err := m.MoveParticipant(ctx, "room_1", target, "c1", "Carol", RoleCaller)
	require.NoError(t, err)
	assert.NotEmpty(t, token)

	src, _ := m.GetRoomInfo(ctx, "room_1")
	dst, _ := m.GetRoomInfo(ctx, target)
	assert.NotContains(t, src.Participants, "c1")
	assert.Contains(t, dst.Participants, "c1")
}

func TestManager_SyncParticipants(t *testing.T) {
	ctx := context.Background()
	active := map[string]bool{}
	var mu sync.Mutex
	transport := &mockTransport{
		listParticipantFn: func(room string) ([]RemoteParticipant, error) {
			mu.Lock()
			defer mu.Unlock()
			var out []RemoteParticipant
			for id, on := range active {
				out = append(out, RemoteParticipant{Identity: id, Active: on, Metadata: `{"role":"agent_b"}`})
			}
			return out, nil
		},
	}
	m, _ := newTestManager(t, transport)

	_, err := m.GenerateJoinToken(ctx, TokenRequest{RoomID: "room_1", Identity: "a1", Role: RoleAgentA})
	require.NoError(t, err)

	mu.Lock()
	active["a1"] = true
	active["b1"] = true
	mu.Unlock()
	require.NoError(t, m.SyncParticipants(ctx, "room_1"))

	r, _ := m.GetRoomInfo(ctx, "room_1")
	assert.True(t, r.HasConnected(RoleAgentA, true))
	assert.True(t, r.HasConnected(RoleAgentB, true))

	mu.Lock()
	delete(active, "a1")
	mu.Unlock()
	require.NoError(t, m.SyncParticipants(ctx, "room_1"))
	r, _ = m.GetRoomInfo(ctx, "room_1")
	assert.False(t, r.Participants["a1"].Connected)
}

func TestManager_SyncParticipants_NopTransport(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager(t, nil)

	_, err := m.GenerateJoinToken(ctx, TokenRequest{RoomID: "room_1", Identity: "a1", Role: RoleAgentA})
	require.NoError(t, err)
	require.NoError(t, m.SetParticipantConnected(ctx, "room_1", "a1", true))

	require.NoError(t, m.SyncParticipants(ctx, "room_1"))
	r, _ := m.GetRoomInfo(ctx, "room_1")
	assert.True(t, r.Participants["a1"].Connected, "a disabled transport leaves local state alone")
}
