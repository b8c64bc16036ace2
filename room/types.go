package room

import (
	"errors"
	"time"
)

// Common errors
var (
	ErrRoomNotFound        = errors.New("room not found")
	ErrRoomExists          = errors.New("room already exists")
	ErrParticipantNotFound = errors.New("participant not found")
)

// Type classifies a room.
type Type string

const (
	TypeCall         Type = "call"
	TypeConsultation Type = "consultation"
	TypeTransfer     Type = "transfer"
)

// Valid reports whether t is a known room type.
func (t Type) Valid() bool {
	switch t {
	case TypeCall, TypeConsultation, TypeTransfer:
		return true
	}
	return false
}

// Role is the part a participant plays in a call.
type Role string

const (
	RoleCaller  Role = "caller"
	RoleAgentA  Role = "agent_a"
	RoleAgentB  Role = "agent_b"
	RoleAIAgent Role = "ai_agent"
)

// Valid reports whether r is a known participant role.
func (r Role) Valid() bool {
	switch r {
	case RoleCaller, RoleAgentA, RoleAgentB, RoleAIAgent:
		return true
	}
	return false
}

// ParticipantInfo describes one identity inside one room.
type ParticipantInfo struct {
	Identity     string         `json:"identity"`
	Name         string         `json:"name"`
	Role         Role           `json:"role"`
	Connected    bool           `json:"connected"`
	JoinedAt     time.Time      `json:"joined_at"`
	AudioEnabled bool           `json:"audio_enabled"`
	VideoEnabled bool           `json:"video_enabled"`
	Speaking     bool           `json:"speaking"`
	OnHold       bool           `json:"on_hold"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

// Clone returns a deep copy of p.
func (p *ParticipantInfo) Clone() *ParticipantInfo {
	if p == nil {
		return nil
	}
	c := *p
	c.Metadata = cloneMap(p.Metadata)
	return &c
}

// Room is the local view of a media room.
type Room struct {
	ID              string                      `json:"room_id"`
	Name            string                      `json:"name"`
	Type            Type                        `json:"room_type"`
	MaxParticipants int                         `json:"max_participants"`
	CreatedAt       time.Time                   `json:"created_at"`
	LastActivity    time.Time                   `json:"last_activity"`
	Active          bool                        `json:"is_active"`
	Materialized    bool                        `json:"materialized"`
	Metadata        map[string]any              `json:"metadata,omitempty"`
	Participants    map[string]*ParticipantInfo `json:"participants"`
}

// Clone returns a deep copy of r.
func (r *Room) Clone() *Room {
	if r == nil {
		return nil
	}
	c := *r
	c.Metadata = cloneMap(r.Metadata)
	c.Participants = make(map[string]*ParticipantInfo, len(r.Participants))
	for id, p := range r.Participants {
		c.Participants[id] = p.Clone()
	}
	return &c
}

// ParticipantCount returns the number of registered participants.
func (r *Room) ParticipantCount() int {
	return len(r.Participants)
}

// HasConnected reports whether a participant holding role is present,
// and connected when requireConnected is set.
func (r *Room) HasConnected(role Role, requireConnected bool) bool {
	for _, p := range r.Participants {
		if p.Role != role {
			continue
		}
		if !requireConnected || p.Connected {
			return true
		}
	}
	return false
}

// FindByRole returns the first participant holding role.
func (r *Room) FindByRole(role Role) (*ParticipantInfo, bool) {
	var found *ParticipantInfo
	for _, p := range r.Participants {
		if p.Role != role {
			continue
		}
		if found == nil || p.JoinedAt.Before(found.JoinedAt) {
			found = p
		}
	}
	return found, found != nil
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	c := make(map[string]any, len(m))
	for k, v := range m {
		c[k] = v
	}
	return c
}
