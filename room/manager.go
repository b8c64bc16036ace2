package room

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/BaSui01/warmtransfer/types"
)

const maxIDAttempts = 5

// TokenRequest describes a join token to issue.
type TokenRequest struct {
	RoomID   string
	Identity string
	Name     string
	Role     Role
	Metadata map[string]any
}

// CreateOption customises CreateRoom.
type CreateOption func(r *Room)

// WithRoomMetadata merges extra metadata into a new room.
func WithRoomMetadata(meta map[string]any) CreateOption {
	return func(r *Room) {
		for k, v := range meta {
			r.Metadata[k] = v
		}
	}
}

// Option configures a Manager.
type Option func(m *Manager)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithDefaultMaxParticipants sets the capacity used when CreateRoom gets none.
func WithDefaultMaxParticipants(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.defaultMaxParticipants = n
		}
	}
}

// Manager owns every Room record. Lifecycle changes go through it and
// are mirrored to the media server through the Transport.
type Manager struct {
	store     Store
	transport Transport
	signer    *TokenSigner
	logger    *zap.Logger
	now       func() time.Time

	defaultMaxParticipants int

	watchMu  sync.Mutex
	watchers map[string]chan struct{}
}

// NewManager creates a lifecycle manager. A nil transport means no media
// server is configured.
func NewManager(store Store, transport Transport, signer *TokenSigner, logger *zap.Logger, opts ...Option) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	if transport == nil {
		transport = NopTransport{}
	}
	if store == nil {
		store = NewMemoryStore()
	}
	m := &Manager{
		store:                  store,
		transport:              transport,
		signer:                 signer,
		logger:                 logger.With(zap.String("component", "room_manager")),
		now:                    time.Now,
		defaultMaxParticipants: 10,
		watchers:               make(map[string]chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Transport exposes the underlying media-server client.
func (m *Manager) Transport() Transport {
	return m.transport
}

// =============================================================================
// Creation and tokens
// =============================================================================

// CreateRoom registers a room locally. The media server creates it lazily
// when the first participant connects.
func (m *Manager) CreateRoom(ctx context.Context, name string, roomType Type, maxParticipants int, opts ...CreateOption) (string, error) {
	if !roomType.Valid() {
		return "", types.NewInvalidRequestError(fmt.Sprintf("unknown room type %q", roomType))
	}
	if maxParticipants <= 0 {
		maxParticipants = m.defaultMaxParticipants
	}

	for attempt := 0; attempt < maxIDAttempts; attempt++ {
		now := m.now()
		r := &Room{
			ID:              newRoomID(roomType),
			Name:            name,
			Type:            roomType,
			MaxParticipants: maxParticipants,
			CreatedAt:       now,
			LastActivity:    now,
			Active:          true,
			Metadata: map[string]any{
				"name":             name,
				"max_participants": maxParticipants,
			},
			Participants: make(map[string]*ParticipantInfo),
		}
		for _, opt := range opts {
			opt(r)
		}

		err := m.store.Create(ctx, r)
		if errors.Is(err, ErrRoomExists) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("create room: %w", err)
		}
		m.logger.Info("room created",
			zap.String("room_id", r.ID),
			zap.String("room_type", string(roomType)),
		)
		return r.ID, nil
	}
	return "", types.NewError(types.ErrInternalError, "could not allocate a unique room id")
}

func newRoomID(t Type) string {
	return string(t) + "_" + strings.ReplaceAll(uuid.NewString(), "-", "")
}

// GenerateJoinToken issues a join token and registers the participant.
// Unknown rooms are resolved from the media server, or created on demand.
func (m *Manager) GenerateJoinToken(ctx context.Context, req TokenRequest) (string, error) {
	if !m.signer.Configured() {
		return "", errMissingCredentials()
	}
	if req.Identity == "" {
		return "", types.NewInvalidRequestError("identity is required")
	}
	if req.RoomID == "" {
		return "", types.NewInvalidRequestError("room id is required")
	}
	if req.Role == "" {
		req.Role = RoleCaller
	}
	if !req.Role.Valid() {
		return "", types.NewInvalidRequestError(fmt.Sprintf("unknown role %q", req.Role))
	}

	if err := m.ensureRoom(ctx, req.RoomID); err != nil {
		return "", err
	}

	now := m.now()
	meta := make(map[string]any, len(req.Metadata)+2)
	for k, v := range req.Metadata {
		meta[k] = v
	}
	meta["role"] = string(req.Role)
	meta["joined_at"] = now.UTC().Format(time.RFC3339)

	token, err := m.signer.JoinToken(req.Identity, req.Name, req.RoomID, meta)
	if err != nil {
		return "", err
	}

	_, err = m.store.Update(ctx, req.RoomID, func(r *Room) error {
		info := &ParticipantInfo{
			Identity:     req.Identity,
			Name:         req.Name,
			Role:         req.Role,
			JoinedAt:     now,
			AudioEnabled: true,
			Metadata:     meta,
		}
		if prev, ok := r.Participants[req.Identity]; ok {
			info.Connected = prev.Connected
		}
		r.Participants[req.Identity] = info
		r.LastActivity = now
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("register participant: %w", err)
	}
	m.notify(req.RoomID)

	m.logger.Debug("join token issued",
		zap.String("room_id", req.RoomID),
		zap.String("identity", req.Identity),
		zap.String("role", string(req.Role)),
	)
	return token, nil
}

// ensureRoom makes sure a local record exists for roomID.
func (m *Manager) ensureRoom(ctx context.Context, roomID string) error {
	_, err := m.store.Get(ctx, roomID)
	if err == nil {
		return nil
	}
	if !errors.Is(err, ErrRoomNotFound) {
		return fmt.Errorf("load room: %w", err)
	}

	if _, ok := m.materialize(ctx, roomID); ok {
		return nil
	}

	now := m.now()
	r := &Room{
		ID:              roomID,
		Name:            roomID,
		Type:            TypeCall,
		MaxParticipants: m.defaultMaxParticipants,
		CreatedAt:       now,
		LastActivity:    now,
		Active:          true,
		Materialized:    true,
		Metadata:        map[string]any{"auto_created": true},
		Participants:    make(map[string]*ParticipantInfo),
	}
	if err := m.store.Create(ctx, r); err != nil && !errors.Is(err, ErrRoomExists) {
		return fmt.Errorf("auto-create room: %w", err)
	}
	m.logger.Warn("room auto-created for token request", zap.String("room_id", roomID))
	return nil
}

// materialize builds a local record from the media server's view of roomID.
func (m *Manager) materialize(ctx context.Context, roomID string) (*Room, bool) {
	remote, err := m.transport.ListRooms(ctx, []string{roomID})
	if err != nil {
		if !errors.Is(err, ErrTransportDisabled) {
			m.logger.Warn("transport room lookup failed", zap.String("room_id", roomID), zap.Error(err))
		}
		return nil, false
	}
	var found *RemoteRoom
	for i := range remote {
		if remote[i].Name == roomID {
			found = &remote[i]
			break
		}
	}
	if found == nil {
		return nil, false
	}

	now := m.now()
	created := found.CreatedAt
	if created.IsZero() {
		created = now
	}
	r := &Room{
		ID:              roomID,
		Name:            roomID,
		Type:            TypeCall,
		MaxParticipants: found.MaxParticipants,
		CreatedAt:       created,
		LastActivity:    now,
		Active:          true,
		Materialized:    true,
		Metadata:        decodeMetadata(found.Metadata),
		Participants:    make(map[string]*ParticipantInfo),
	}
	if r.MaxParticipants <= 0 {
		r.MaxParticipants = m.defaultMaxParticipants
	}

	if participants, err := m.transport.ListParticipants(ctx, roomID); err == nil {
		for _, rp := range participants {
			r.Participants[rp.Identity] = remoteToInfo(rp, now)
		}
	}

	if err := m.store.Create(ctx, r); err != nil && !errors.Is(err, ErrRoomExists) {
		m.logger.Warn("store materialized room failed", zap.String("room_id", roomID), zap.Error(err))
		return nil, false
	}
	m.logger.Info("room materialized from transport",
		zap.String("room_id", roomID),
		zap.Int("participants", len(r.Participants)),
	)
	snapshot, err := m.store.Get(ctx, roomID)
	if err != nil {
		return nil, false
	}
	return snapshot, true
}

func remoteToInfo(rp RemoteParticipant, now time.Time) *ParticipantInfo {
	meta := decodeMetadata(rp.Metadata)
	role := RoleCaller
	if s, ok := meta["role"].(string); ok && Role(s).Valid() {
		role = Role(s)
	}
	joined := rp.JoinedAt
	if joined.IsZero() {
		joined = now
	}
	return &ParticipantInfo{
		Identity:     rp.Identity,
		Name:         rp.Name,
		Role:         role,
		Connected:    rp.Active,
		JoinedAt:     joined,
		AudioEnabled: true,
		Metadata:     meta,
	}
}

func decodeMetadata(raw string) map[string]any {
	out := make(map[string]any)
	if raw == "" {
		return out
	}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return map[string]any{"raw": raw}
	}
	return out
}

// =============================================================================
// Removal
// =============================================================================

// RemoveParticipant drops identity from the room locally and on the media
// server. A media-server "not found" counts as success.
func (m *Manager) RemoveParticipant(ctx context.Context, roomID, identity string) (bool, error) {
	removed := false
	_, err := m.store.Update(ctx, roomID, func(r *Room) error {
		if _, ok := r.Participants[identity]; ok {
			delete(r.Participants, identity)
			removed = true
		}
		r.LastActivity = m.now()
		return nil
	})
	if err != nil && !errors.Is(err, ErrRoomNotFound) {
		return false, fmt.Errorf("remove participant: %w", err)
	}
	if removed {
		m.notify(roomID)
	}

	if err := m.transport.RemoveParticipant(ctx, roomID, identity); err != nil {
		if errors.Is(err, ErrTransportNotFound) {
			return true, nil
		}
		m.logger.Warn("transport remove participant failed",
			zap.String("room_id", roomID),
			zap.String("identity", identity),
			zap.Error(err),
		)
		return removed, types.NewUpstreamError("media server", err)
	}

	m.logger.Info("participant removed",
		zap.String("room_id", roomID),
		zap.String("identity", identity),
	)
	return true, nil
}

// DeleteRoom removes the room locally and on the media server. It is
// idempotent and a media-server "not found" is ignored.
func (m *Manager) DeleteRoom(ctx context.Context, roomID string) (bool, error) {
	return m.deleteRoom(ctx, roomID, nil)
}

func (m *Manager) deleteRoom(ctx context.Context, roomID string, cond func(r *Room) bool) (bool, error) {
	deleted, err := m.store.Delete(ctx, roomID, cond)
	if err != nil {
		return false, fmt.Errorf("delete room: %w", err)
	}
	if cond != nil && !deleted {
		return false, nil
	}
	m.notify(roomID)

	if err := m.transport.DeleteRoom(ctx, roomID); err != nil && !errors.Is(err, ErrTransportNotFound) {
		m.logger.Warn("transport delete room failed", zap.String("room_id", roomID), zap.Error(err))
		return true, types.NewUpstreamError("media server", err)
	}

	m.logger.Info("room deleted", zap.String("room_id", roomID), zap.Bool("was_local", deleted))
	return true, nil
}

// =============================================================================
// Queries
// =============================================================================

// GetRoomInfo returns the local snapshot of a room, falling back to the
// media server. It never fails; an unknown room reports false.
func (m *Manager) GetRoomInfo(ctx context.Context, roomID string) (*Room, bool) {
	r, err := m.store.Get(ctx, roomID)
	if err == nil {
		return r, true
	}
	if !errors.Is(err, ErrRoomNotFound) {
		m.logger.Warn("load room failed", zap.String("room_id", roomID), zap.Error(err))
		return nil, false
	}
	return m.materialize(ctx, roomID)
}

// ListRooms returns active rooms ordered by creation time.
func (m *Manager) ListRooms(ctx context.Context) []*Room {
	rooms, err := m.store.List(ctx)
	if err != nil {
		m.logger.Warn("list rooms failed", zap.Error(err))
		return nil
	}
	active := rooms[:0]
	for _, r := range rooms {
		if r.Active {
			active = append(active, r)
		}
	}
	return active
}

// CleanupInactiveRooms deletes empty rooms whose last activity predates
// now-maxAge. A room that gains a participant during the sweep is kept.
func (m *Manager) CleanupInactiveRooms(ctx context.Context, maxAge time.Duration) int {
	rooms, err := m.store.List(ctx)
	if err != nil {
		m.logger.Warn("cleanup list failed", zap.Error(err))
		return 0
	}

	cutoff := m.now().Add(-maxAge)
	stale := func(r *Room) bool {
		return len(r.Participants) == 0 && r.LastActivity.Before(cutoff)
	}

	cleaned := 0
	for _, r := range rooms {
		if ctx.Err() != nil {
			break
		}
		if !stale(r) {
			continue
		}
		deleted, err := m.deleteRoom(ctx, r.ID, stale)
		if err != nil {
			m.logger.Warn("cleanup delete failed", zap.String("room_id", r.ID), zap.Error(err))
		}
		if deleted {
			cleaned++
		}
	}

	if cleaned > 0 {
		m.logger.Info("inactive rooms cleaned", zap.Int("count", cleaned), zap.Duration("max_age", maxAge))
	}
	return cleaned
}

// =============================================================================
// Participant state
// =============================================================================

func (m *Manager) updateParticipant(ctx context.Context, roomID, identity string, fn func(p *ParticipantInfo)) error {
	_, err := m.store.Update(ctx, roomID, func(r *Room) error {
		p, ok := r.Participants[identity]
		if !ok {
			return ErrParticipantNotFound
		}
		fn(p)
		r.LastActivity = m.now()
		return nil
	})
	switch {
	case errors.Is(err, ErrRoomNotFound):
		return types.NewNotFoundError("room", roomID).WithCause(err)
	case errors.Is(err, ErrParticipantNotFound):
		return types.NewNotFoundError("participant", identity).WithCause(err)
	case err != nil:
		return fmt.Errorf("update participant: %w", err)
	}
	m.notify(roomID)
	return nil
}

// SetParticipantConnected records a media-server admission or departure.
func (m *Manager) SetParticipantConnected(ctx context.Context, roomID, identity string, connected bool) error {
	return m.updateParticipant(ctx, roomID, identity, func(p *ParticipantInfo) {
		p.Connected = connected
	})
}

// SetParticipantHold flags a participant as held or resumed.
func (m *Manager) SetParticipantHold(ctx context.Context, roomID, identity string, onHold bool) error {
	return m.updateParticipant(ctx, roomID, identity, func(p *ParticipantInfo) {
		p.OnHold = onHold
		p.AudioEnabled = !onHold
	})
}

// MoveParticipant removes identity from one room and issues a token for another.
func (m *Manager) MoveParticipant(ctx context.Context, fromRoom, toRoom, identity, name string, role Role) (string, error) {
	if _, err := m.RemoveParticipant(ctx, fromRoom, identity); err != nil {
		m.logger.Warn("move: remove from source room failed",
			zap.String("room_id", fromRoom),
			zap.String("identity", identity),
			zap.Error(err),
		)
	}
	return m.GenerateJoinToken(ctx, TokenRequest{
		RoomID:   toRoom,
		Identity: identity,
		Name:     name,
		Role:     role,
	})
}

// SyncParticipants pulls connection state for roomID from the media server.
// Rooms the media server has not created yet are left untouched.
func (m *Manager) SyncParticipants(ctx context.Context, roomID string) error {
	remote, err := m.transport.ListParticipants(ctx, roomID)
	if errors.Is(err, ErrTransportDisabled) || errors.Is(err, ErrTransportNotFound) {
		return nil
	}
	if err != nil {
		return types.NewUpstreamError("media server", err)
	}

	byIdentity := make(map[string]RemoteParticipant, len(remote))
	for _, rp := range remote {
		byIdentity[rp.Identity] = rp
	}

	changed := false
	_, err = m.store.Update(ctx, roomID, func(r *Room) error {
		now := m.now()
		for id, p := range r.Participants {
			rp, ok := byIdentity[id]
			connected := ok && rp.Active
			if p.Connected != connected {
				p.Connected = connected
				changed = true
			}
		}
		for id, rp := range byIdentity {
			if _, ok := r.Participants[id]; !ok {
				r.Participants[id] = remoteToInfo(rp, now)
				changed = true
			}
		}
		if changed {
			r.LastActivity = now
		}
		return nil
	})
	if errors.Is(err, ErrRoomNotFound) {
		return types.NewNotFoundError("room", roomID).WithCause(err)
	}
	if err != nil {
		return fmt.Errorf("sync participants: %w", err)
	}
	if changed {
		m.notify(roomID)
	}
	return nil
}

// =============================================================================
// Change notification
// =============================================================================

// Watch returns a channel that is closed on the next membership or
// participant-state change of roomID.
func (m *Manager) Watch(roomID string) <-chan struct{} {
	m.watchMu.Lock()
	defer m.watchMu.Unlock()
	ch, ok := m.watchers[roomID]
	if !ok {
		ch = make(chan struct{})
		m.watchers[roomID] = ch
	}
	return ch
}

func (m *Manager) notify(roomID string) {
	m.watchMu.Lock()
	ch, ok := m.watchers[roomID]
	if ok {
		delete(m.watchers, roomID)
	}
	m.watchMu.Unlock()
	if ok {
		close(ch)
	}
}
