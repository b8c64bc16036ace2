package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/BaSui01/warmtransfer/api/handlers"
	"github.com/BaSui01/warmtransfer/config"
	"github.com/BaSui01/warmtransfer/internal/events"
	"github.com/BaSui01/warmtransfer/internal/metrics"
	"github.com/BaSui01/warmtransfer/internal/redisconn"
	"github.com/BaSui01/warmtransfer/internal/server"
	"github.com/BaSui01/warmtransfer/internal/telemetry"
	"github.com/BaSui01/warmtransfer/livekit"
	"github.com/BaSui01/warmtransfer/room"
	"github.com/BaSui01/warmtransfer/speech"
	"github.com/BaSui01/warmtransfer/summary"
	"github.com/BaSui01/warmtransfer/transfer"
)

const redisHealthInterval = 30 * time.Second

// =============================================================================
// 🖥️ Server 结构
// =============================================================================

// Server 是 warmtransfer 的主服务器
type Server struct {
	cfg    *config.Config
	logger *zap.Logger

	otel      *telemetry.Providers
	redis     *redisconn.Manager
	collector *metrics.Collector

	signer    *room.TokenSigner
	rooms     *room.Manager
	summaries *summary.Service
	hub       *events.Hub
	engine    *transfer.Engine

	httpManager    *server.Manager
	metricsManager *server.Manager
}

// NewServer 按依赖顺序组装所有组件
func NewServer(ctx context.Context, cfg *config.Config, logger *zap.Logger, otelProviders *telemetry.Providers) (*Server, error) {
	s := &Server{cfg: cfg, logger: logger, otel: otelProviders}

	// 1. 指标收集器
	s.collector = metrics.NewCollector("warmtransfer", logger)

	// 2. 存储
	if cfg.Store.Driver == "redis" {
		conn, err := redisconn.NewManager(ctx, cfg.Redis, logger)
		if err != nil {
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		s.redis = conn
	}

	// 3. 房间生命周期
	signer := room.NewTokenSigner(cfg.LiveKit.APIKey, cfg.LiveKit.APISecret, cfg.LiveKit.TokenTTL)
	s.signer = signer
	if !signer.Configured() {
		logger.Warn("media server credentials not configured, join tokens disabled")
	}
	var transport room.Transport
	if cfg.LiveKit.URL != "" {
		transport = livekit.NewClient(livekit.Config{
			URL:       cfg.LiveKit.URL,
			APIKey:    cfg.LiveKit.APIKey,
			APISecret: cfg.LiveKit.APISecret,
			Timeout:   cfg.LiveKit.Timeout,
		}, logger)
	} else {
		logger.Info("livekit url not configured, media server calls disabled")
	}
	s.rooms = room.NewManager(room.NewMemoryStore(), transport, signer, logger,
		room.WithDefaultMaxParticipants(cfg.Rooms.DefaultMaxParticipants))

	// 4. 摘要与语音
	provider, err := s.summaryProvider()
	if err != nil {
		return nil, err
	}
	s.summaries = summary.NewService(s.transcripts(), instrumentedProvider{Provider: provider, collector: s.collector}, logger)

	tts := speech.New(speech.ElevenLabsConfig{
		APIKey:  cfg.TTS.APIKey,
		BaseURL: cfg.TTS.BaseURL,
		VoiceID: cfg.TTS.VoiceID,
		Model:   cfg.TTS.Model,
		Timeout: cfg.TTS.Timeout,
	}, logger)

	// 5. 事件推送
	s.hub = events.NewHub(logger,
		events.WithOriginPatterns(cfg.Server.CORSAllowedOrigins...),
		events.WithGauge(s.collector),
	)

	// 6. 转接引擎
	s.engine = transfer.NewEngine(transfer.Config{
		PollInterval:      cfg.Transfer.PollInterval,
		AgentJoinTimeout:  cfg.Transfer.AgentJoinTimeout,
		ConsultationDwell: cfg.Transfer.ConsultationDwell,
		HandoffDelay:      cfg.Transfer.HandoffDelay,
		RequireConnected:  cfg.Transfer.RequireConnected,
	}, s.rooms, logger,
		transfer.WithStore(s.transferStore()),
		transfer.WithSummaryProvider(s.summaries.Provider()),
		transfer.WithTranscripts(s.summaries.Source()),
		transfer.WithSynthesizer(instrumentedSynthesizer{Synthesizer: tts, collector: s.collector}),
		transfer.WithDataSender(fanOutSender{s.rooms.Transport(), s.hub}),
		transfer.WithObserver(s.hub),
		transfer.WithRecorder(s.collector),
		transfer.WithTracer(otelProviders.Tracer("warmtransfer/transfer")),
	)

	// 7. HTTP
	s.httpManager = server.NewManager("api", s.routes(ctx, signer.TTL()), server.FromServerConfig(cfg.Server, cfg.Server.HTTPPort), logger)
	if cfg.Server.MetricsPort > 0 {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		s.metricsManager = server.NewManager("metrics", mux, server.FromServerConfig(cfg.Server, cfg.Server.MetricsPort), logger)
	}

	logger.Info("server assembled",
		zap.String("store", cfg.Store.Driver),
		zap.String("summary_provider", provider.Name()),
		zap.String("tts", tts.Name()),
		zap.Bool("livekit", transport != nil),
	)
	return s, nil
}

func (s *Server) summaryProvider() (summary.Provider, error) {
	basic := summary.NewBasicProvider()
	if s.cfg.Summary.Provider != "llm" {
		return basic, nil
	}
	llm, err := summary.NewLLMProvider(summary.LLMConfig{
		APIKey:              s.cfg.Summary.APIKey,
		BaseURL:             s.cfg.Summary.BaseURL,
		Model:               s.cfg.Summary.Model,
		Temperature:         s.cfg.Summary.Temperature,
		MaxTokens:           int64(s.cfg.Summary.MaxTokens),
		MaxTranscriptTokens: s.cfg.Summary.MaxTranscriptTokens,
		Timeout:             s.cfg.Summary.Timeout,
	}, s.logger)
	if err != nil {
		if s.cfg.Summary.FallbackOnError {
			s.logger.Warn("llm summary provider unavailable, using basic", zap.Error(err))
			return basic, nil
		}
		return nil, err
	}
	if s.cfg.Summary.FallbackOnError {
		return summary.NewFallbackProvider(llm, basic, s.logger), nil
	}
	return llm, nil
}

func (s *Server) transcripts() summary.TranscriptSource {
	if s.redis != nil {
		return summary.NewRedisTranscripts(s.redis.Client(), s.cfg.Store.KeyPrefix, s.cfg.Store.TranscriptTTL)
	}
	return summary.NewMemoryTranscripts()
}

func (s *Server) transferStore() transfer.Store {
	if s.redis != nil {
		return transfer.NewRedisStore(s.redis.Client(), s.cfg.Store.KeyPrefix, s.cfg.Transfer.Retention)
	}
	return transfer.NewMemoryStore()
}

// =============================================================================
// 🏥 就绪检查
// =============================================================================

// credentialsCheck 没有 API key/secret 就签不出加入令牌
func credentialsCheck(signer *room.TokenSigner) handlers.HealthCheck {
	return handlers.NewCheckFunc("livekit_credentials", func(context.Context) error {
		if !signer.Configured() {
			return errors.New("livekit api key and secret are not configured")
		}
		return nil
	})
}

func engineCheck(engine *transfer.Engine) handlers.HealthCheck {
	return handlers.NewCheckFunc("transfer_engine", func(context.Context) error {
		return engine.Ready()
	})
}

// mediaServerCheck 未配置媒体服务器时视为通过
func mediaServerCheck(transport room.Transport) handlers.HealthCheck {
	return handlers.NewCheckFunc("media_server", func(ctx context.Context) error {
		_, err := transport.ListRooms(ctx, nil)
		if errors.Is(err, room.ErrTransportDisabled) {
			return nil
		}
		return err
	})
}

func (s *Server) activity(ctx context.Context) map[string]int {
	return map[string]int{
		"running_transfers": s.engine.Running(),
		"rooms":             len(s.rooms.ListRooms(ctx)),
	}
}

// routes 注册所有 API 路由并套上中间件链
func (s *Server) routes(ctx context.Context, tokenTTL time.Duration) http.Handler {
	mux := http.NewServeMux()

	health := handlers.NewHealthHandler(s.logger, Version, handlers.WithActivity(s.activity))
	health.RegisterCheck(credentialsCheck(s.signer))
	health.RegisterCheck(engineCheck(s.engine))
	health.RegisterAdvisoryCheck(mediaServerCheck(s.rooms.Transport()))
	if s.redis != nil {
		health.RegisterCheck(s.redis)
	}
	health.Register(mux, BuildTime, GitCommit)

	url := s.cfg.LiveKit.URL
	handlers.NewRoomHandler(s.rooms, s.hub, url, s.logger).Register(mux)
	handlers.NewParticipantHandler(s.rooms, tokenTTL, url, s.logger).Register(mux)
	handlers.NewCallHandler(s.rooms, s.summaries, s.logger).Register(mux)
	handlers.NewTransferHandler(s.engine, s.rooms, url, s.logger).Register(mux)

	skipAuthPaths := []string{"/health", "/healthz", "/ready", "/readyz", "/version", "/metrics"}
	return Chain(mux,
		Recovery(s.logger),
		RequestID(),
		SecurityHeaders(),
		MetricsMiddleware(s.collector),
		OTelTracing(),
		RequestLogger(s.logger),
		CORS(s.cfg.Server.CORSAllowedOrigins),
		RateLimiter(ctx, float64(s.cfg.Server.RateLimitRPS), s.cfg.Server.RateLimitBurst, s.logger),
		APIKeyAuth(s.cfg.Server.APIKeys, skipAuthPaths, s.cfg.Server.AllowQueryAPIKey, s.logger),
	)
}

// =============================================================================
// 🚀 运行与关闭
// =============================================================================

// Run 启动 HTTP、Metrics 与后台任务，ctx 结束后优雅关闭
func (s *Server) Run(ctx context.Context) error {
	if err := s.httpManager.Listen(); err != nil {
		return err
	}
	if s.metricsManager != nil {
		if err := s.metricsManager.Listen(); err != nil {
			return err
		}
	}
	s.logger.Info("all servers started",
		zap.String("http_addr", s.httpManager.Addr()),
		zap.Int("metrics_port", s.cfg.Server.MetricsPort),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.httpManager.Run(gctx) })
	if s.metricsManager != nil {
		g.Go(func() error { return s.metricsManager.Run(gctx) })
	}
	g.Go(func() error { return s.runJanitor(gctx) })
	if s.redis != nil {
		g.Go(func() error { return s.redis.Run(gctx, redisHealthInterval) })
	}

	err := g.Wait()
	s.shutdown()
	return err
}

// runJanitor 周期性清理空闲房间、过期转接与旧摘要
func (s *Server) runJanitor(ctx context.Context) error {
	interval := s.cfg.Rooms.CleanupInterval
	if interval <= 0 {
		s.logger.Info("background cleanup disabled")
		return nil
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Server) sweep(ctx context.Context) {
	cleaned := s.rooms.CleanupInactiveRooms(ctx, s.cfg.Rooms.MaxIdleAge)
	s.collector.RecordRoomsCleaned(cleaned)
	s.collector.SetActiveRooms(len(s.rooms.ListRooms(ctx)))

	purged := s.engine.PurgeFinished(ctx, s.cfg.Transfer.Retention)
	summaries := s.summaries.Cleanup(ctx, s.cfg.Transfer.Retention)

	s.logger.Debug("cleanup sweep finished",
		zap.Int("rooms", cleaned),
		zap.Int("transfers", purged),
		zap.Int("summaries", summaries),
	)
}

// shutdown 依次关闭引擎、事件推送、Redis 与遥测
func (s *Server) shutdown() {
	s.logger.Info("starting graceful shutdown")
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := s.engine.Shutdown(ctx); err != nil {
		s.logger.Error("transfer engine shutdown error", zap.Error(err))
	}
	s.hub.Close()
	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			s.logger.Error("redis close error", zap.Error(err))
		}
	}
	if err := s.otel.Shutdown(ctx); err != nil {
		s.logger.Error("telemetry shutdown error", zap.Error(err))
	}
	s.logger.Info("graceful shutdown completed")
}
