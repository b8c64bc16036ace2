package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/warmtransfer/internal/tlsutil"
	"github.com/BaSui01/warmtransfer/types"
)

// Synthesizer converts text to audio bytes.
type Synthesizer interface {
	Name() string
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

// NopSynthesizer returns no audio.
type NopSynthesizer struct{}

func (NopSynthesizer) Name() string { return "nop" }

func (NopSynthesizer) Synthesize(context.Context, string) ([]byte, error) { return []byte{}, nil }

// ElevenLabsConfig configures the ElevenLabs text-to-speech client.
type ElevenLabsConfig struct {
	APIKey       string
	BaseURL      string
	VoiceID      string
	Model        string
	OutputFormat string
	Timeout      time.Duration
}

// ElevenLabsSynthesizer calls the ElevenLabs text-to-speech API.
type ElevenLabsSynthesizer struct {
	cfg    ElevenLabsConfig
	client *http.Client
	logger *zap.Logger
}

// New returns an ElevenLabs synthesizer, or NopSynthesizer when no API key
// is configured.
func New(cfg ElevenLabsConfig, logger *zap.Logger) Synthesizer {
	if cfg.APIKey == "" {
		return NopSynthesizer{}
	}
	return NewElevenLabsSynthesizer(cfg, logger)
}

// NewElevenLabsSynthesizer creates an ElevenLabs synthesizer.
func NewElevenLabsSynthesizer(cfg ElevenLabsConfig, logger *zap.Logger) *ElevenLabsSynthesizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.elevenlabs.io"
	}
	if cfg.Model == "" {
		cfg.Model = "eleven_monolingual_v1"
	}
	if cfg.VoiceID == "" {
		cfg.VoiceID = "21m00Tcm4TlvDq8ikWAM" // Rachel
	}
	if cfg.OutputFormat == "" {
		cfg.OutputFormat = "mp3_44100_128"
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &ElevenLabsSynthesizer{
		cfg:    cfg,
		client: tlsutil.SecureHTTPClient(timeout),
		logger: logger.With(zap.String("component", "tts")),
	}
}

func (s *ElevenLabsSynthesizer) Name() string { return "elevenlabs" }

type voiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
}

type ttsRequest struct {
	Text          string        `json:"text"`
	ModelID       string        `json:"model_id"`
	VoiceSettings voiceSettings `json:"voice_settings"`
}

// Synthesize converts text to speech.
func (s *ElevenLabsSynthesizer) Synthesize(ctx context.Context, text string) ([]byte, error) {
	if strings.TrimSpace(text) == "" {
		return []byte{}, nil
	}
	payload, err := json.Marshal(ttsRequest{
		Text:          text,
		ModelID:       s.cfg.Model,
		VoiceSettings: voiceSettings{Stability: 0.5, SimilarityBoost: 0.5},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/v1/text-to-speech/%s?output_format=%s",
		strings.TrimRight(s.cfg.BaseURL, "/"), s.cfg.VoiceID, s.cfg.OutputFormat)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("xi-api-key", s.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "audio/mpeg")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, types.NewUpstreamError(s.Name(), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return nil, types.NewUpstreamError(s.Name(),
			fmt.Errorf("elevenlabs error: status=%d body=%s", resp.StatusCode, string(errBody)))
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read audio: %w", err)
	}
	s.logger.Debug("speech synthesized", zap.Int("chars", len(text)), zap.Int("bytes", len(audio)))
	return audio, nil
}
