// =============================================================================
// 📦 warmtransfer 默认配置
// =============================================================================
// 提供所有配置项的合理默认值
// =============================================================================
package config

import "time"

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Server:    DefaultServerConfig(),
		LiveKit:   DefaultLiveKitConfig(),
		Transfer:  DefaultTransferConfig(),
		Rooms:     DefaultRoomsConfig(),
		Store:     DefaultStoreConfig(),
		Redis:     DefaultRedisConfig(),
		Summary:   DefaultSummaryConfig(),
		TTS:       DefaultTTSConfig(),
		Log:       DefaultLogConfig(),
		Telemetry: DefaultTelemetryConfig(),
	}
}

// DefaultServerConfig 返回默认服务器配置
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		HTTPPort:        8000,
		MetricsPort:     9091,
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    30 * time.Second,
		ShutdownTimeout: 15 * time.Second,
		RateLimitRPS:    50,
		RateLimitBurst:  100,
	}
}

// DefaultLiveKitConfig 返回默认媒体传输配置
func DefaultLiveKitConfig() LiveKitConfig {
	return LiveKitConfig{
		URL:      "",
		TokenTTL: 24 * time.Hour,
		Timeout:  10 * time.Second,
	}
}

// DefaultTransferConfig 返回默认转接配置
func DefaultTransferConfig() TransferConfig {
	return TransferConfig{
		PollInterval:      2 * time.Second,
		AgentJoinTimeout:  60 * time.Second,
		ConsultationDwell: 10 * time.Second,
		HandoffDelay:      2 * time.Second,
		RequireConnected:  true,
		Retention:         24 * time.Hour,
	}
}

// DefaultRoomsConfig 返回默认房间生命周期配置
func DefaultRoomsConfig() RoomsConfig {
	return RoomsConfig{
		CleanupInterval:        5 * time.Minute,
		MaxIdleAge:             60 * time.Minute,
		DefaultMaxParticipants: 10,
	}
}

// DefaultStoreConfig 返回默认存储配置
func DefaultStoreConfig() StoreConfig {
	return StoreConfig{
		Driver:        "memory",
		KeyPrefix:     "warmtransfer:",
		TranscriptTTL: 24 * time.Hour,
	}
}

// DefaultRedisConfig 返回默认 Redis 配置
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:         "localhost:6379",
		Password:     "",
		DB:           0,
		PoolSize:     10,
		MinIdleConns: 2,
	}
}

// DefaultSummaryConfig 返回默认摘要配置
func DefaultSummaryConfig() SummaryConfig {
	return SummaryConfig{
		Provider:            "basic",
		BaseURL:             "https://api.groq.com/openai/v1",
		Model:               "llama-3.1-8b-instant",
		Temperature:         0.3,
		MaxTokens:           500,
		MaxTranscriptTokens: 6000,
		FallbackOnError:     true,
		Timeout:             30 * time.Second,
	}
}

// DefaultTTSConfig 返回默认语音合成配置
func DefaultTTSConfig() TTSConfig {
	return TTSConfig{
		BaseURL: "https://api.elevenlabs.io",
		VoiceID: "21m00Tcm4TlvDq8ikWAM",
		Model:   "eleven_monolingual_v1",
		Timeout: 30 * time.Second,
	}
}

// DefaultLogConfig 返回默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:            "info",
		Format:           "json",
		OutputPaths:      []string{"stdout"},
		EnableCaller:     true,
		EnableStacktrace: false,
	}
}

// DefaultTelemetryConfig 返回默认遥测配置
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:      false,
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "warmtransfer",
		SampleRate:   0.1,
	}
}
