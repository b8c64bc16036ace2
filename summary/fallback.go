package summary

import (
	"context"

	"go.uber.org/zap"
)

// FallbackProvider uses Secondary whenever Primary fails.
type FallbackProvider struct {
	primary   Provider
	secondary Provider
	logger    *zap.Logger
}

// NewFallbackProvider wraps primary with a secondary provider.
func NewFallbackProvider(primary, secondary Provider, logger *zap.Logger) *FallbackProvider {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FallbackProvider{
		primary:   primary,
		secondary: secondary,
		logger:    logger.With(zap.String("component", "summary_fallback")),
	}
}

func (p *FallbackProvider) Name() string { return p.primary.Name() + "+" + p.secondary.Name() }

func (p *FallbackProvider) Summarize(ctx context.Context, req Request) (*CallSummary, error) {
	s, err := p.primary.Summarize(ctx, req)
	if err == nil {
		return s, nil
	}
	if ctx.Err() != nil {
		return nil, err
	}
	p.logger.Warn("primary summary provider failed, falling back",
		zap.String("room_id", req.RoomID),
		zap.String("provider", p.primary.Name()),
		zap.Error(err),
	)
	return p.secondary.Summarize(ctx, req)
}

func (p *FallbackProvider) Brief(ctx context.Context, req BriefRequest) (string, error) {
	brief, err := p.primary.Brief(ctx, req)
	if err == nil {
		return brief, nil
	}
	if ctx.Err() != nil {
		return "", err
	}
	p.logger.Warn("primary briefing failed, falling back",
		zap.String("provider", p.primary.Name()),
		zap.Error(err),
	)
	return p.secondary.Brief(ctx, req)
}
