package summary

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"go.uber.org/zap"

	"github.com/BaSui01/warmtransfer/internal/tlsutil"
	"github.com/BaSui01/warmtransfer/types"
)

const (
	summarySystemPrompt = "You are an AI assistant specialized in creating concise, professional call summaries " +
		"for customer service transfers. Focus on key issues, customer needs, and important context for the next agent. " +
		"Always respond with valid JSON."
	briefSystemPrompt = "You are an AI assistant helping with call transfers. Create brief, clear summaries for agents."
)

// LLMConfig configures an OpenAI-compatible chat completions provider.
type LLMConfig struct {
	APIKey              string
	BaseURL             string
	Model               string
	Temperature         float64
	MaxTokens           int64
	MaxTranscriptTokens int
	Timeout             time.Duration
	MaxRetries          int
}

// LLMProvider summarizes transcripts through a chat completions endpoint.
type LLMProvider struct {
	cfg     LLMConfig
	client  openai.Client
	counter TokenCounter
	basic   *BasicProvider
	logger  *zap.Logger
	now     func() time.Time
}

// NewLLMProvider creates an LLMProvider. It fails with CONFIGURATION_ERROR
// when no API key is set.
func NewLLMProvider(cfg LLMConfig, logger *zap.Logger) (*LLMProvider, error) {
	if cfg.APIKey == "" {
		return nil, types.NewError(types.ErrConfiguration, "summary llm api key is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Model == "" {
		cfg.Model = "llama-3.1-8b-instant"
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 500
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithRequestTimeout(cfg.Timeout),
		option.WithMaxRetries(cfg.MaxRetries),
		option.WithHTTPClient(tlsutil.SecureHTTPClient(0)),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &LLMProvider{
		cfg:     cfg,
		client:  openai.NewClient(opts...),
		counter: NewTokenCounter(""),
		basic:   NewBasicProvider(),
		logger:  logger.With(zap.String("component", "summary_llm")),
		now:     time.Now,
	}, nil
}

func (p *LLMProvider) Name() string { return "llm" }

func (p *LLMProvider) complete(ctx context.Context, system, user string, temperature float64, maxTokens int64) (string, error) {
	resp, err := p.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(system),
			openai.UserMessage(user),
		},
		Model:               p.cfg.Model,
		Temperature:         openai.Float(temperature),
		MaxCompletionTokens: openai.Int(maxTokens),
	})
	if err != nil {
		return "", types.NewUpstreamError("summary llm", err)
	}
	if len(resp.Choices) == 0 {
		return "", types.NewUpstreamError("summary llm", fmt.Errorf("no choices returned"))
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// Summarize implements Provider. An empty transcript is summarized by the
// basic provider without calling the model.
func (p *LLMProvider) Summarize(ctx context.Context, req Request) (*CallSummary, error) {
	if len(req.Entries) == 0 {
		return p.basic.Summarize(ctx, req)
	}

	entries := TrimToBudget(req.Entries, p.counter, p.cfg.MaxTranscriptTokens)
	if len(entries) < len(req.Entries) {
		p.logger.Debug("transcript trimmed to token budget",
			zap.String("room_id", req.RoomID),
			zap.Int("kept", len(entries)),
			zap.Int("total", len(req.Entries)),
		)
	}

	content, err := p.complete(ctx, summarySystemPrompt, summaryPrompt(FormatTranscript(entries), req.Context), p.cfg.Temperature, p.cfg.MaxTokens)
	if err != nil {
		return nil, err
	}
	text, points := parseSummaryContent(content)

	return &CallSummary{
		ID:                 newSummaryID(),
		RoomID:             req.RoomID,
		Content:            text,
		KeyPoints:          points,
		DurationSeconds:    Duration(req.Entries),
		ParticipantCount:   Speakers(req.Entries),
		GeneratedAt:        p.now(),
		TranscriptIncluded: true,
	}, nil
}

// Brief implements Provider.
func (p *LLMProvider) Brief(ctx context.Context, req BriefRequest) (string, error) {
	return p.complete(ctx, briefSystemPrompt, briefPrompt(req), 0.2, 200)
}

func summaryPrompt(transcript, extra string) string {
	var b strings.Builder
	b.WriteString("Please analyze the following call transcript and provide:\n")
	b.WriteString("1. A concise summary (2-3 sentences) of the main conversation\n")
	b.WriteString("2. Key points or topics discussed (3-5 bullet points)\n\n")
	b.WriteString("Transcript:\n")
	b.WriteString(transcript)
	b.WriteString("\n\n")
	if extra != "" {
		b.WriteString("Additional Context: ")
		b.WriteString(extra)
		b.WriteString("\n\n")
	}
	b.WriteString("Format your response as JSON with 'summary' and 'key_points' fields.")
	return b.String()
}

func briefPrompt(req BriefRequest) string {
	agent := req.AgentName
	if agent == "" {
		agent = "the receiving agent"
	}
	caller := req.CallerName
	if caller == "" {
		caller = "Customer"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "You are briefing %s about an incoming call transfer.\n\n", agent)
	fmt.Fprintf(&b, "Call Summary:\n%s\n\n", req.Summary)
	if req.Extra != "" {
		fmt.Fprintf(&b, "Additional Context: %s\n\n", req.Extra)
	}
	fmt.Fprintf(&b, "Create a concise, professional briefing (2-3 sentences) that %s can quickly understand "+
		"before taking over the call with %s. Focus on the main issue or request, what has been discussed so far, "+
		"and what the customer needs next.", agent, caller)
	return b.String()
}

// parseSummaryContent reads a {summary, key_points} JSON reply. Replies that
// are not JSON are used verbatim.
func parseSummaryContent(content string) (string, []string) {
	raw := strings.TrimSpace(content)
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")

	var parsed struct {
		Summary   string          `json:"summary"`
		KeyPoints json.RawMessage `json:"key_points"`
	}
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &parsed); err != nil || parsed.Summary == "" {
		return content, []string{content}
	}

	var points []string
	if err := json.Unmarshal(parsed.KeyPoints, &points); err != nil {
		var single string
		if json.Unmarshal(parsed.KeyPoints, &single) == nil && single != "" {
			points = []string{single}
		}
	}
	if len(points) > maxKeyPoints {
		points = points[:maxKeyPoints]
	}
	return parsed.Summary, points
}
