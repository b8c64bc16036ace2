// =============================================================================
// 📦 warmtransfer 配置加载器
// =============================================================================
// 统一配置加载，支持 YAML 文件 + 环境变量覆盖
//
// 使用方法:
//
//	cfg, err := config.NewLoader().
//	    WithConfigPath("config.yaml").
//	    WithEnvPrefix("WARMTRANSFER").
//	    Load()
//
// 配置优先级: 默认值 → YAML 文件 → 环境变量
// =============================================================================
package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// =============================================================================
// 🎯 核心配置结构
// =============================================================================

// Config 是 warmtransfer 的完整配置结构
type Config struct {
	// Server 服务器配置
	Server ServerConfig `yaml:"server" env:"SERVER"`

	// LiveKit 媒体传输配置
	LiveKit LiveKitConfig `yaml:"livekit" env:"LIVEKIT"`

	// Transfer 转接流程配置
	Transfer TransferConfig `yaml:"transfer" env:"TRANSFER"`

	// Rooms 房间生命周期配置
	Rooms RoomsConfig `yaml:"rooms" env:"ROOMS"`

	// Store 存储后端配置
	Store StoreConfig `yaml:"store" env:"STORE"`

	// Redis 配置
	Redis RedisConfig `yaml:"redis" env:"REDIS"`

	// Summary 通话摘要配置
	Summary SummaryConfig `yaml:"summary" env:"SUMMARY"`

	// TTS 语音合成配置
	TTS TTSConfig `yaml:"tts" env:"TTS"`

	// Log 日志配置
	Log LogConfig `yaml:"log" env:"LOG"`

	// Telemetry 遥测配置
	Telemetry TelemetryConfig `yaml:"telemetry" env:"TELEMETRY"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	// HTTP 端口
	HTTPPort int `yaml:"http_port" env:"HTTP_PORT"`
	// Metrics 端口
	MetricsPort int `yaml:"metrics_port" env:"METRICS_PORT"`
	// 读取超时
	ReadTimeout time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT"`
	// 写入超时
	WriteTimeout time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
	// 优雅关闭超时
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
	// 允许的跨域来源
	CORSAllowedOrigins []string `yaml:"cors_allowed_origins" env:"CORS_ALLOWED_ORIGINS"`
	// API Key 列表（为空时不启用认证）
	APIKeys []string `yaml:"api_keys" env:"API_KEYS"`
	// 是否允许通过 query 参数传递 API Key
	AllowQueryAPIKey bool `yaml:"allow_query_api_key" env:"ALLOW_QUERY_API_KEY"`
	// 每个 IP 每秒请求数
	RateLimitRPS int `yaml:"rate_limit_rps" env:"RATE_LIMIT_RPS"`
	// 突发请求数
	RateLimitBurst int `yaml:"rate_limit_burst" env:"RATE_LIMIT_BURST"`
}

// LiveKitConfig 媒体传输服务配置
type LiveKitConfig struct {
	// 服务地址，为空时使用本地 noop 传输
	URL string `yaml:"url" env:"URL"`
	// API Key
	APIKey string `yaml:"api_key" env:"API_KEY"`
	// API Secret
	APISecret string `yaml:"api_secret" env:"API_SECRET"`
	// 加入令牌有效期
	TokenTTL time.Duration `yaml:"token_ttl" env:"TOKEN_TTL"`
	// 请求超时
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
}

// TransferConfig 转接流程配置
type TransferConfig struct {
	// 坐席到场轮询间隔
	PollInterval time.Duration `yaml:"poll_interval" env:"POLL_INTERVAL"`
	// 等待坐席加入超时
	AgentJoinTimeout time.Duration `yaml:"agent_join_timeout" env:"AGENT_JOIN_TIMEOUT"`
	// 咨询停留时长，0 表示只等待显式完成信号
	ConsultationDwell time.Duration `yaml:"consultation_dwell" env:"CONSULTATION_DWELL"`
	// 移出 Agent A 之前的交接等待
	HandoffDelay time.Duration `yaml:"handoff_delay" env:"HANDOFF_DELAY"`
	// 是否要求坐席处于已连接状态
	RequireConnected bool `yaml:"require_connected" env:"REQUIRE_CONNECTED"`
	// 终态转接保留时长
	Retention time.Duration `yaml:"retention" env:"RETENTION"`
}

// RoomsConfig 房间生命周期配置
type RoomsConfig struct {
	// 清理周期，0 表示关闭后台清理
	CleanupInterval time.Duration `yaml:"cleanup_interval" env:"CLEANUP_INTERVAL"`
	// 空闲房间最大存活时长
	MaxIdleAge time.Duration `yaml:"max_idle_age" env:"MAX_IDLE_AGE"`
	// 通话房间默认人数上限
	DefaultMaxParticipants int `yaml:"default_max_participants" env:"DEFAULT_MAX_PARTICIPANTS"`
}

// StoreConfig 存储后端配置
type StoreConfig struct {
	// 驱动类型: memory, redis
	Driver string `yaml:"driver" env:"DRIVER"`
	// Redis key 前缀
	KeyPrefix string `yaml:"key_prefix" env:"KEY_PREFIX"`
	// 转录数据保留时长
	TranscriptTTL time.Duration `yaml:"transcript_ttl" env:"TRANSCRIPT_TTL"`
}

// RedisConfig Redis 配置
type RedisConfig struct {
	// 地址
	Addr string `yaml:"addr" env:"ADDR"`
	// 密码
	Password string `yaml:"password" env:"PASSWORD"`
	// 数据库编号
	DB int `yaml:"db" env:"DB"`
	// 连接池大小
	PoolSize int `yaml:"pool_size" env:"POOL_SIZE"`
	// 最小空闲连接
	MinIdleConns int `yaml:"min_idle_conns" env:"MIN_IDLE_CONNS"`
	// 是否启用 TLS
	TLS bool `yaml:"tls" env:"TLS"`
}

// SummaryConfig 通话摘要配置
type SummaryConfig struct {
	// Provider 类型: basic, llm
	Provider string `yaml:"provider" env:"PROVIDER"`
	// API Key
	APIKey string `yaml:"api_key" env:"API_KEY"`
	// OpenAI 兼容接口地址
	BaseURL string `yaml:"base_url" env:"BASE_URL"`
	// 模型名称
	Model string `yaml:"model" env:"MODEL"`
	// 温度参数
	Temperature float64 `yaml:"temperature" env:"TEMPERATURE"`
	// 单次补全最大 Token 数
	MaxTokens int `yaml:"max_tokens" env:"MAX_TOKENS"`
	// 转录文本 Token 上限
	MaxTranscriptTokens int `yaml:"max_transcript_tokens" env:"MAX_TRANSCRIPT_TOKENS"`
	// LLM 失败时是否回退到基础摘要
	FallbackOnError bool `yaml:"fallback_on_error" env:"FALLBACK_ON_ERROR"`
	// 请求超时
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
}

// TTSConfig 语音合成配置
type TTSConfig struct {
	// ElevenLabs API Key，为空时禁用
	APIKey string `yaml:"api_key" env:"API_KEY"`
	// 接口地址
	BaseURL string `yaml:"base_url" env:"BASE_URL"`
	// 声音 ID
	VoiceID string `yaml:"voice_id" env:"VOICE_ID"`
	// 模型
	Model string `yaml:"model" env:"MODEL"`
	// 请求超时
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
}

// LogConfig 日志配置
type LogConfig struct {
	// 日志级别: debug, info, warn, error
	Level string `yaml:"level" env:"LEVEL"`
	// 输出格式: json, console
	Format string `yaml:"format" env:"FORMAT"`
	// 输出路径
	OutputPaths []string `yaml:"output_paths" env:"OUTPUT_PATHS"`
	// 是否启用调用者信息
	EnableCaller bool `yaml:"enable_caller" env:"ENABLE_CALLER"`
	// 是否启用堆栈跟踪
	EnableStacktrace bool `yaml:"enable_stacktrace" env:"ENABLE_STACKTRACE"`
}

// TelemetryConfig 遥测配置
type TelemetryConfig struct {
	// 是否启用
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// OTLP 端点
	OTLPEndpoint string `yaml:"otlp_endpoint" env:"OTLP_ENDPOINT"`
	// 服务名称
	ServiceName string `yaml:"service_name" env:"SERVICE_NAME"`
	// 采样率
	SampleRate float64 `yaml:"sample_rate" env:"SAMPLE_RATE"`
}

// =============================================================================
// 🔧 配置加载器
// =============================================================================

// Loader 配置加载器（Builder 模式）
type Loader struct {
	configPath string
	envPrefix  string
	validators []func(*Config) error
}

// NewLoader 创建新的配置加载器
func NewLoader() *Loader {
	return &Loader{
		envPrefix:  "WARMTRANSFER",
		validators: make([]func(*Config) error, 0),
	}
}

// WithConfigPath 设置配置文件路径
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithEnvPrefix 设置环境变量前缀
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// WithValidator 添加配置验证器
func (l *Loader) WithValidator(v func(*Config) error) *Loader {
	l.validators = append(l.validators, v)
	return l
}

// Load 加载配置
// 优先级: 默认值 → YAML 文件 → 环境变量
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()

	if l.configPath != "" {
		if err := l.loadFromFile(cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	if err := l.loadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	for _, v := range l.validators {
		if err := v(cfg); err != nil {
			return nil, fmt.Errorf("config validation failed: %w", err)
		}
	}

	return cfg, nil
}

// loadFromFile 从 YAML 文件加载配置
func (l *Loader) loadFromFile(cfg *Config) error {
	data, err := os.ReadFile(l.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			// 文件不存在，使用默认值
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// loadFromEnv 从环境变量加载配置
func (l *Loader) loadFromEnv(cfg *Config) error {
	return l.setFieldsFromEnv(reflect.ValueOf(cfg).Elem(), l.envPrefix)
}

// setFieldsFromEnv 递归设置结构体字段
func (l *Loader) setFieldsFromEnv(v reflect.Value, prefix string) error {
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		envTag := fieldType.Tag.Get("env")
		if envTag == "" || envTag == "-" {
			continue
		}

		envKey := prefix + "_" + envTag

		if field.Kind() == reflect.Struct {
			if err := l.setFieldsFromEnv(field, envKey); err != nil {
				return err
			}
			continue
		}

		envValue := os.Getenv(envKey)
		if envValue == "" {
			continue
		}

		if err := setFieldValue(field, envValue); err != nil {
			return fmt.Errorf("failed to set %s: %w", envKey, err)
		}
	}

	return nil
}

// setFieldValue 设置字段值
func setFieldValue(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		// time.Duration 按 Go 时长语法解析
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			field.SetInt(int64(d))
		} else {
			i, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return err
			}
			field.SetInt(i)
		}

	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(f)

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(b)

	case reflect.Slice:
		// 逗号分隔的字符串切片
		if field.Type().Elem().Kind() == reflect.String {
			parts := strings.Split(value, ",")
			for i := range parts {
				parts[i] = strings.TrimSpace(parts[i])
			}
			field.Set(reflect.ValueOf(parts))
		}
	}

	return nil
}

// =============================================================================
// 🔍 辅助函数
// =============================================================================

// MustLoad 加载配置，失败时 panic
func MustLoad(path string) *Config {
	cfg, err := NewLoader().WithConfigPath(path).Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	return cfg
}

// LoadFromEnv 仅从环境变量加载配置
func LoadFromEnv() (*Config, error) {
	return NewLoader().Load()
}

// Validate 验证配置
func (c *Config) Validate() error {
	var errs []string

	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		errs = append(errs, "invalid HTTP port")
	}
	if c.Server.MetricsPort < 0 || c.Server.MetricsPort > 65535 {
		errs = append(errs, "invalid metrics port")
	}

	if c.Transfer.PollInterval <= 0 {
		errs = append(errs, "transfer.poll_interval must be positive")
	}
	if c.Transfer.AgentJoinTimeout <= 0 {
		errs = append(errs, "transfer.agent_join_timeout must be positive")
	}
	if c.Transfer.ConsultationDwell < 0 {
		errs = append(errs, "transfer.consultation_dwell must not be negative")
	}
	if c.Transfer.HandoffDelay < 0 {
		errs = append(errs, "transfer.handoff_delay must not be negative")
	}
	if c.LiveKit.TokenTTL <= 0 {
		errs = append(errs, "livekit.token_ttl must be positive")
	}

	switch c.Store.Driver {
	case "memory", "redis":
	default:
		errs = append(errs, fmt.Sprintf("unsupported store driver %q", c.Store.Driver))
	}

	switch c.Summary.Provider {
	case "basic", "llm":
	default:
		errs = append(errs, fmt.Sprintf("unsupported summary provider %q", c.Summary.Provider))
	}
	if c.Summary.Temperature < 0 || c.Summary.Temperature > 2 {
		errs = append(errs, "summary.temperature must be between 0 and 2")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors: %s", strings.Join(errs, "; "))
	}

	return nil
}
