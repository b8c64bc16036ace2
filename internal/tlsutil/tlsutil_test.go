package tlsutil

import (
	"crypto/tls"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultTLSConfig(t *testing.T) {
	cfg := DefaultTLSConfig()
	assert.Equal(t, uint16(tls.VersionTLS12), cfg.MinVersion)
	require.NotEmpty(t, cfg.CipherSuites)

	aead := map[uint16]bool{
		tls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384:  true,
		tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384:    true,
		tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256:  true,
		tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256:    true,
		tls.TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305:   true,
		tls.TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305:     true,
	}
	for _, cs := range cfg.CipherSuites {
		assert.True(t, aead[cs], "non-AEAD cipher suite %s", tls.CipherSuiteName(cs))
	}
}

func TestRedisTLSConfig(t *testing.T) {
	assert.Nil(t, RedisTLSConfig(false, "cache.internal"))

	cfg := RedisTLSConfig(true, "cache.internal")
	require.NotNil(t, cfg)
	assert.Equal(t, "cache.internal", cfg.ServerName)
	assert.Equal(t, uint16(tls.VersionTLS12), cfg.MinVersion)
}

func TestSecureHTTPClient(t *testing.T) {
	client := SecureHTTPClient(7 * time.Second)
	assert.Equal(t, 7*time.Second, client.Timeout)

	transport, ok := client.Transport.(*http.Transport)
	require.True(t, ok)
	require.NotNil(t, transport.TLSClientConfig)
	assert.Equal(t, uint16(tls.VersionTLS12), transport.TLSClientConfig.MinVersion)
	assert.True(t, transport.ForceAttemptHTTP2)
}
