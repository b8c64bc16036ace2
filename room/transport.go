package room

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrTransportNotFound is returned by a Transport when the room or
	// participant does not exist on the media server.
	ErrTransportNotFound = errors.New("transport: not found")
	// ErrTransportDisabled is returned by NopTransport for read calls.
	ErrTransportDisabled = errors.New("transport: disabled")
)

// RemoteRoom is a room as reported by the media server.
type RemoteRoom struct {
	Name            string
	NumParticipants int
	MaxParticipants int
	CreatedAt       time.Time
	Metadata        string
}

// RemoteParticipant is a participant as reported by the media server.
type RemoteParticipant struct {
	Identity string
	Name     string
	Metadata string
	JoinedAt time.Time
	Active   bool
}

// Transport is the administrative surface of the media server.
type Transport interface {
	ListRooms(ctx context.Context, names []string) ([]RemoteRoom, error)
	DeleteRoom(ctx context.Context, room string) error
	RemoveParticipant(ctx context.Context, room, identity string) error
	ListParticipants(ctx context.Context, room string) ([]RemoteParticipant, error)
	SendData(ctx context.Context, room string, topic string, data []byte) error
}

// NopTransport is used when no media server is configured. Mutations
// succeed and reads report ErrTransportDisabled.
type NopTransport struct{}

func (NopTransport) ListRooms(context.Context, []string) ([]RemoteRoom, error) {
	return nil, ErrTransportDisabled
}

func (NopTransport) DeleteRoom(context.Context, string) error { return nil }

func (NopTransport) RemoveParticipant(context.Context, string, string) error { return nil }

func (NopTransport) ListParticipants(context.Context, string) ([]RemoteParticipant, error) {
	return nil, ErrTransportDisabled
}

func (NopTransport) SendData(context.Context, string, string, []byte) error { return nil }
