package main

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/warmtransfer/room"
	"github.com/BaSui01/warmtransfer/transfer"
	"github.com/BaSui01/warmtransfer/types"
)

type unreachableTransport struct{ room.NopTransport }

func (unreachableTransport) ListRooms(context.Context, []string) ([]room.RemoteRoom, error) {
	return nil, errors.New("dial tcp: connection refused")
}

func TestCredentialsCheck(t *testing.T) {
	ctx := context.Background()
	assert.NoError(t, credentialsCheck(room.NewTokenSigner("devkey", "devsecret", time.Hour)).Check(ctx))

	check := credentialsCheck(room.NewTokenSigner("devkey", "", time.Hour))
	assert.Equal(t, "livekit_credentials", check.Name())
	assert.Error(t, check.Check(ctx))
}

func TestMediaServerCheck(t *testing.T) {
	ctx := context.Background()
	assert.NoError(t, mediaServerCheck(room.NopTransport{}).Check(ctx), "no media server configured")

	check := mediaServerCheck(unreachableTransport{})
	assert.Equal(t, "media_server", check.Name())
	assert.ErrorContains(t, check.Check(ctx), "connection refused")
}

func TestEngineCheck(t *testing.T) {
	rooms := room.NewManager(room.NewMemoryStore(), nil, room.NewTokenSigner("devkey", "devsecret", time.Hour), zap.NewNop())
	engine := transfer.NewEngine(transfer.DefaultConfig(), rooms, zap.NewNop())
	check := engineCheck(engine)
	require.NoError(t, check.Check(context.Background()))

	require.NoError(t, engine.Shutdown(context.Background()))
	err := check.Check(context.Background())
	assert.Equal(t, types.ErrInvalidState, types.GetErrorCode(err))
}
