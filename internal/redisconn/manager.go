// Package redisconn owns the shared Redis connection used by the transfer,
// transcript and health-check layers.
// This package is internal and should not be imported by external projects.
package redisconn

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/BaSui01/warmtransfer/config"
	"github.com/BaSui01/warmtransfer/internal/tlsutil"
)

// ErrClosed is returned after Close.
var ErrClosed = errors.New("redis connection is closed")

// =============================================================================
// 💾 Redis 连接管理器
// =============================================================================

// Manager 持有共享的 Redis 客户端并负责健康检查
type Manager struct {
	client redis.UniversalClient
	addr   string
	logger *zap.Logger
	mu     sync.RWMutex
	closed bool
}

// NewManager 按配置建立连接并 Ping 一次
func NewManager(ctx context.Context, cfg config.RedisConfig, logger *zap.Logger) (*Manager, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		TLSConfig:    tlsutil.RedisTLSConfig(cfg.TLS, redisHost(cfg.Addr)),
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	logger.Info("redis connected",
		zap.String("addr", cfg.Addr),
		zap.Int("db", cfg.DB),
		zap.Int("pool_size", cfg.PoolSize),
		zap.Bool("tls", cfg.TLS),
	)
	return Wrap(client, cfg.Addr, logger), nil
}

func redisHost(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}

// Wrap adopts an existing client.
func Wrap(client redis.UniversalClient, addr string, logger *zap.Logger) *Manager {
	return &Manager{
		client: client,
		addr:   addr,
		logger: logger.With(zap.String("component", "redis")),
	}
}

// Client 返回底层客户端
func (m *Manager) Client() redis.UniversalClient { return m.client }

// Name implements the health check name.
func (m *Manager) Name() string { return "redis" }

// Ping 检查 Redis 连接
func (m *Manager) Ping(ctx context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return ErrClosed
	}
	return m.client.Ping(ctx).Err()
}

// Check implements the health check.
func (m *Manager) Check(ctx context.Context) error { return m.Ping(ctx) }

// Run pings every interval until ctx is done.
func (m *Manager) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return nil
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := m.Ping(pingCtx)
		cancel()
		switch {
		case errors.Is(err, ErrClosed):
			return nil
		case err != nil:
			m.logger.Error("redis health check failed", zap.Error(err))
		default:
			m.logger.Debug("redis health check passed")
		}
	}
}

// =============================================================================
// 📊 统计信息
// =============================================================================

// Stats 连接池统计
type Stats struct {
	Addr       string `json:"addr"`
	Hits       uint32 `json:"hits"`
	Misses     uint32 `json:"misses"`
	Timeouts   uint32 `json:"timeouts"`
	TotalConns uint32 `json:"total_conns"`
	IdleConns  uint32 `json:"idle_conns"`
}

// Stats 返回连接池统计
func (m *Manager) Stats() Stats {
	s := Stats{Addr: m.addr}
	if ps := m.client.PoolStats(); ps != nil {
		s.Hits = ps.Hits
		s.Misses = ps.Misses
		s.Timeouts = ps.Timeouts
		s.TotalConns = ps.TotalConns
		s.IdleConns = ps.IdleConns
	}
	return s
}

// Close 关闭连接
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	m.logger.Info("closing redis connection")
	return m.client.Close()
}
