package room

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/livekit/protocol/auth"

	"github.com/BaSui01/warmtransfer/types"
)

// AccessClaims is the claim set of a LiveKit access token.
type AccessClaims struct {
	jwt.RegisteredClaims
	Name     string           `json:"name,omitempty"`
	Video    *auth.VideoGrant `json:"video,omitempty"`
	Metadata string           `json:"metadata,omitempty"`
}

// TokenSigner issues LiveKit access tokens and verifies them.
type TokenSigner struct {
	apiKey    string
	apiSecret string
	ttl       time.Duration
	now       func() time.Time
}

// NewTokenSigner creates a signer. A zero ttl falls back to 24h.
func NewTokenSigner(apiKey, apiSecret string, ttl time.Duration) *TokenSigner {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &TokenSigner{
		apiKey:    apiKey,
		apiSecret: apiSecret,
		ttl:       ttl,
		now:       time.Now,
	}
}

// Configured reports whether both credentials are present.
func (s *TokenSigner) Configured() bool {
	return s != nil && s.apiKey != "" && s.apiSecret != ""
}

// TTL returns the lifetime of join tokens.
func (s *TokenSigner) TTL() time.Duration {
	return s.ttl
}

func errMissingCredentials() *types.Error {
	return types.NewError(types.ErrConfiguration, "media server api key and secret are required")
}

// JoinToken signs a token allowing identity to join room with publish,
// subscribe and data permissions.
func (s *TokenSigner) JoinToken(identity, name, room string, metadata map[string]any) (string, error) {
	if !s.Configured() {
		return "", errMissingCredentials()
	}
	var meta string
	if len(metadata) > 0 {
		raw, err := json.Marshal(metadata)
		if err != nil {
			return "", fmt.Errorf("marshal token metadata: %w", err)
		}
		meta = string(raw)
	}
	grant := &auth.VideoGrant{RoomJoin: true, Room: room}
	grant.SetCanPublish(true)
	grant.SetCanSubscribe(true)
	grant.SetCanPublishData(true)

	at := auth.NewAccessToken(s.apiKey, s.apiSecret).
		SetVideoGrant(grant).
		SetIdentity(identity).
		SetName(name).
		SetMetadata(meta).
		SetValidFor(s.ttl)
	token, err := at.ToJWT()
	if err != nil {
		return "", fmt.Errorf("sign access token: %w", err)
	}
	return token, nil
}

// Verify parses and validates a token issued by this signer.
func (s *TokenSigner) Verify(tokenStr string) (*AccessClaims, error) {
	if !s.Configured() {
		return nil, errMissingCredentials()
	}
	claims := &AccessClaims{}
	_, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (any, error) {
		return []byte(s.apiSecret), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.apiKey),
		jwt.WithLeeway(10*time.Second),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return nil, types.NewError(types.ErrUnauthorized, "invalid access token").WithCause(err)
	}
	return claims, nil
}

// DecodeMetadata unmarshals the metadata claim.
func (c *AccessClaims) DecodeMetadata() (map[string]any, error) {
	if c.Metadata == "" {
		return map[string]any{}, nil
	}
	out := make(map[string]any)
	if err := json.Unmarshal([]byte(c.Metadata), &out); err != nil {
		return nil, fmt.Errorf("decode token metadata: %w", err)
	}
	return out, nil
}
