package room

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/warmtransfer/types"
)

func TestTokenSigner_JoinTokenClaims(t *testing.T) {
	signer := NewTokenSigner("devkey", "devsecret", 0)
	before := time.Now().Add(-time.Second)

	token, err := signer.JoinToken("agent-a", "Agent A", "room_1", map[string]any{"role": "agent_a"})
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(token, "."))

	claims, err := signer.Verify(token)
	require.NoError(t, err)

	assert.Equal(t, "devkey", claims.Issuer)
	assert.Equal(t, "agent-a", claims.Subject)
	assert.Equal(t, "Agent A", claims.Name)
	require.NotNil(t, claims.NotBefore)
	require.NotNil(t, claims.ExpiresAt)
	assert.False(t, claims.NotBefore.Before(before))
	assert.Equal(t, 24*time.Hour, claims.ExpiresAt.Sub(claims.NotBefore.Time))

	require.NotNil(t, claims.Video)
	assert.True(t, claims.Video.RoomJoin)
	assert.Equal(t, "room_1", claims.Video.Room)
	assert.True(t, claims.Video.GetCanPublish())
	assert.True(t, claims.Video.GetCanSubscribe())
	assert.True(t, claims.Video.GetCanPublishData())
	assert.False(t, claims.Video.RoomAdmin)

	meta, err := claims.DecodeMetadata()
	require.NoError(t, err)
	assert.Equal(t, "agent_a", meta["role"])
}

func TestTokenSigner_MissingCredentials(t *testing.T) {
	for _, s := range []*TokenSigner{
		nil,
		NewTokenSigner("", "secret", time.Hour),
		NewTokenSigner("key", "", time.Hour),
	} {
		_, err := s.JoinToken("c1", "", "room_1", nil)
		require.Error(t, err)
		assert.Equal(t, types.ErrConfiguration, types.GetErrorCode(err))
	}
}

func TestTokenSigner_VerifyRejectsForeignSecret(t *testing.T) {
	issuer := NewTokenSigner("devkey", "one-secret", time.Hour)
	verifier := NewTokenSigner("devkey", "other-secret", time.Hour)

	token, err := issuer.JoinToken("c1", "", "room_1", nil)
	require.NoError(t, err)

	_, err = verifier.Verify(token)
	require.Error(t, err)
	assert.Equal(t, types.ErrUnauthorized, types.GetErrorCode(err))
}

func TestTokenSigner_VerifyRejectsExpired(t *testing.T) {
	signer := NewTokenSigner("devkey", "devsecret", time.Minute)
	token, err := signer.JoinToken("c1", "", "room_1", nil)
	require.NoError(t, err)

	signer.now = func() time.Time { return time.Now().Add(time.Hour) }
	_, err = signer.Verify(token)
	require.Error(t, err)
	assert.ErrorIs(t, err, jwt.ErrTokenExpired)
}
