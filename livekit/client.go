package livekit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/livekit/protocol/livekit"
	lksdk "github.com/livekit/server-sdk-go/v2"
	"github.com/twitchtv/twirp"
	"go.uber.org/zap"

	"github.com/BaSui01/warmtransfer/room"
	"github.com/BaSui01/warmtransfer/types"
)

// Config configures the RoomService client.
type Config struct {
	URL       string
	APIKey    string
	APISecret string
	Timeout   time.Duration
}

// Client implements room.Transport on the LiveKit server SDK.
type Client struct {
	rooms      *lksdk.RoomServiceClient
	configured bool
	timeout    time.Duration
	logger     *zap.Logger
}

var _ room.Transport = (*Client)(nil)

// NewClient creates a RoomService client. ws:// and wss:// URLs are
// accepted; the SDK rewrites them to HTTP.
func NewClient(cfg Config, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		rooms:      lksdk.NewRoomServiceClient(cfg.URL, cfg.APIKey, cfg.APISecret),
		configured: cfg.APIKey != "" && cfg.APISecret != "",
		timeout:    timeout,
		logger:     logger.With(zap.String("component", "livekit")),
	}
}

// call bounds fn by the client timeout and maps Twirp not_found to
// room.ErrTransportNotFound.
func (c *Client) call(ctx context.Context, method string, fn func(ctx context.Context) error) error {
	if !c.configured {
		return types.NewError(types.ErrConfiguration, "media server api key and secret are required")
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	err := fn(ctx)
	if err == nil {
		return nil
	}
	var te twirp.Error
	if errors.As(err, &te) && te.Code() == twirp.NotFound {
		return fmt.Errorf("%w: livekit %s: %s", room.ErrTransportNotFound, method, te.Msg())
	}
	return fmt.Errorf("livekit %s: %w", method, err)
}

func unixTime(sec int64) time.Time {
	if sec <= 0 {
		return time.Time{}
	}
	return time.Unix(sec, 0).UTC()
}

// ListRooms lists rooms on the media server, optionally filtered by name.
func (c *Client) ListRooms(ctx context.Context, names []string) ([]room.RemoteRoom, error) {
	var resp *livekit.ListRoomsResponse
	err := c.call(ctx, "ListRooms", func(ctx context.Context) error {
		var err error
		resp, err = c.rooms.ListRooms(ctx, &livekit.ListRoomsRequest{Names: names})
		return err
	})
	if err != nil {
		return nil, err
	}
	rooms := make([]room.RemoteRoom, 0, len(resp.GetRooms()))
	for _, r := range resp.GetRooms() {
		rooms = append(rooms, room.RemoteRoom{
			Name:            r.GetName(),
			NumParticipants: int(r.GetNumParticipants()),
			MaxParticipants: int(r.GetMaxParticipants()),
			CreatedAt:       unixTime(r.GetCreationTime()),
			Metadata:        r.GetMetadata(),
		})
	}
	return rooms, nil
}

// DeleteRoom deletes a room and disconnects everyone in it.
func (c *Client) DeleteRoom(ctx context.Context, name string) error {
	err := c.call(ctx, "DeleteRoom", func(ctx context.Context) error {
		_, err := c.rooms.DeleteRoom(ctx, &livekit.DeleteRoomRequest{Room: name})
		return err
	})
	if err != nil {
		return err
	}
	c.logger.Debug("room deleted on media server", zap.String("room_id", name))
	return nil
}

// RemoveParticipant disconnects identity from a room.
func (c *Client) RemoveParticipant(ctx context.Context, name, identity string) error {
	return c.call(ctx, "RemoveParticipant", func(ctx context.Context) error {
		_, err := c.rooms.RemoveParticipant(ctx, &livekit.RoomParticipantIdentity{Room: name, Identity: identity})
		return err
	})
}

// ListParticipants lists the participants of a room.
func (c *Client) ListParticipants(ctx context.Context, name string) ([]room.RemoteParticipant, error) {
	var resp *livekit.ListParticipantsResponse
	err := c.call(ctx, "ListParticipants", func(ctx context.Context) error {
		var err error
		resp, err = c.rooms.ListParticipants(ctx, &livekit.ListParticipantsRequest{Room: name})
		return err
	})
	if err != nil {
		return nil, err
	}
	participants := make([]room.RemoteParticipant, 0, len(resp.GetParticipants()))
	for _, p := range resp.GetParticipants() {
		state := p.GetState()
		participants = append(participants, room.RemoteParticipant{
			Identity: p.GetIdentity(),
			Name:     p.GetName(),
			Metadata: p.GetMetadata(),
			JoinedAt: unixTime(p.GetJoinedAt()),
			Active:   state == livekit.ParticipantInfo_JOINED || state == livekit.ParticipantInfo_ACTIVE,
		})
	}
	return participants, nil
}

// SendData delivers a reliable data packet to every participant in a room.
func (c *Client) SendData(ctx context.Context, name, topic string, data []byte) error {
	req := &livekit.SendDataRequest{
		Room: name,
		Data: data,
		Kind: livekit.DataPacket_RELIABLE,
	}
	if topic != "" {
		req.Topic = &topic
	}
	return c.call(ctx, "SendData", func(ctx context.Context) error {
		_, err := c.rooms.SendData(ctx, req)
		return err
	})
}
