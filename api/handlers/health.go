package handlers

import (
	"context"
	"net/http"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// =============================================================================
// 🏥 健康检查 Handler
// =============================================================================

const (
	statusHealthy   = "healthy"
	statusDegraded  = "degraded"
	statusUnhealthy = "unhealthy"

	defaultCheckTimeout = 3 * time.Second
)

// HealthCheck 依赖探测接口
type HealthCheck interface {
	Name() string
	Check(ctx context.Context) error
}

// HealthStatus 健康状态响应
type HealthStatus struct {
	Status    string                 `json:"status"` // healthy, degraded, unhealthy
	Timestamp time.Time              `json:"timestamp"`
	Version   string                 `json:"version,omitempty"`
	Activity  map[string]int         `json:"activity,omitempty"`
	Checks    map[string]CheckResult `json:"checks,omitempty"`
}

// CheckResult 单个检查结果
type CheckResult struct {
	Status   string `json:"status"` // pass, fail
	Critical bool   `json:"critical"`
	Message  string `json:"message,omitempty"`
	Latency  string `json:"latency,omitempty"`
}

type registeredCheck struct {
	check    HealthCheck
	critical bool
}

// HealthHandler 存活、就绪与版本端点。
// 关键检查失败时就绪返回 503；仅辅助检查失败时返回 degraded。
type HealthHandler struct {
	logger   *zap.Logger
	version  string
	timeout  time.Duration
	activity func(ctx context.Context) map[string]int

	mu     sync.RWMutex
	checks []registeredCheck
}

// HealthOption 配置 HealthHandler
type HealthOption func(h *HealthHandler)

// WithCheckTimeout 设置单个检查的超时
func WithCheckTimeout(d time.Duration) HealthOption {
	return func(h *HealthHandler) {
		if d > 0 {
			h.timeout = d
		}
	}
}

// WithActivity 在 /health 中附带运行计数（进行中的转接、房间数等）
func WithActivity(fn func(ctx context.Context) map[string]int) HealthOption {
	return func(h *HealthHandler) { h.activity = fn }
}

// NewHealthHandler 创建健康检查处理器
func NewHealthHandler(logger *zap.Logger, version string, opts ...HealthOption) *HealthHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &HealthHandler{
		logger:  logger.With(zap.String("handler", "health")),
		version: version,
		timeout: defaultCheckTimeout,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// RegisterCheck 注册关键检查，失败即不可接流量
func (h *HealthHandler) RegisterCheck(check HealthCheck) {
	h.register(check, true)
}

// RegisterAdvisoryCheck 注册辅助检查，失败只降级
func (h *HealthHandler) RegisterAdvisoryCheck(check HealthCheck) {
	h.register(check, false)
}

func (h *HealthHandler) register(check HealthCheck, critical bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks = append(h.checks, registeredCheck{check: check, critical: critical})
}

// Register 注册路由
func (h *HealthHandler) Register(mux *http.ServeMux, buildTime, gitCommit string) {
	mux.HandleFunc("GET /health", h.HandleHealth)
	mux.HandleFunc("GET /healthz", h.HandleHealthz)
	mux.HandleFunc("GET /ready", h.HandleReady)
	mux.HandleFunc("GET /readyz", h.HandleReady)
	mux.HandleFunc("GET /version", h.HandleVersion(h.version, buildTime, gitCommit))
}

// =============================================================================
// 🎯 HTTP 处理程序
// =============================================================================

// HandleHealth 存活检查，附带版本与运行计数
// @Summary 健康检查
// @Tags 健康
// @Produce json
// @Success 200 {object} HealthStatus "服务正常"
// @Router /health [get]
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	status := HealthStatus{
		Status:    statusHealthy,
		Timestamp: time.Now(),
		Version:   h.version,
	}
	if h.activity != nil {
		status.Activity = h.activity(r.Context())
	}
	WriteJSON(w, http.StatusOK, status)
}

// HandleHealthz Kubernetes 存活探测，不触达任何依赖
// @Summary Kubernetes 存活检查
// @Tags 健康
// @Produce json
// @Success 200 {object} HealthStatus "服务处于活动状态"
// @Router /healthz [get]
func (h *HealthHandler) HandleHealthz(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, HealthStatus{Status: statusHealthy, Timestamp: time.Now()})
}

// HandleReady 并发运行所有检查
// @Summary 就绪检查
// @Description 媒体服务器不可达时为 degraded；凭据缺失、引擎关闭或存储不可用时为 503
// @Tags 健康
// @Produce json
// @Success 200 {object} HealthStatus "已就绪或降级"
// @Failure 503 {object} HealthStatus "未就绪"
// @Router /ready [get]
func (h *HealthHandler) HandleReady(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	checks := make([]registeredCheck, len(h.checks))
	copy(checks, h.checks)
	h.mu.RUnlock()

	results := make([]CheckResult, len(checks))
	var g errgroup.Group
	for i, rc := range checks {
		g.Go(func() error {
			results[i] = h.run(r.Context(), rc)
			return nil
		})
	}
	_ = g.Wait()

	status := HealthStatus{
		Status:    statusHealthy,
		Timestamp: time.Now(),
		Version:   h.version,
		Checks:    make(map[string]CheckResult, len(checks)),
	}
	for i, rc := range checks {
		res := results[i]
		status.Checks[rc.check.Name()] = res
		if res.Status == "pass" {
			continue
		}
		if rc.critical {
			status.Status = statusUnhealthy
		} else if status.Status == statusHealthy {
			status.Status = statusDegraded
		}
	}

	if status.Status == statusUnhealthy {
		h.logger.Warn("not ready", zap.Strings("failing", failing(status.Checks)))
		WriteJSON(w, http.StatusServiceUnavailable, status)
		return
	}
	WriteJSON(w, http.StatusOK, status)
}

func (h *HealthHandler) run(ctx context.Context, rc registeredCheck) CheckResult {
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	start := time.Now()
	err := rc.check.Check(ctx)
	latency := time.Since(start)

	res := CheckResult{Status: "pass", Critical: rc.critical, Latency: latency.String()}
	if err != nil {
		res.Status = "fail"
		res.Message = err.Error()
		h.logger.Debug("health check failed",
			zap.String("check", rc.check.Name()),
			zap.Bool("critical", rc.critical),
			zap.Duration("latency", latency),
			zap.Error(err),
		)
	}
	return res
}

func failing(checks map[string]CheckResult) []string {
	var out []string
	for name, res := range checks {
		if res.Status != "pass" {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// HandleVersion 返回版本信息
// @Summary 版本信息
// @Tags 健康
// @Produce json
// @Success 200 {object} map[string]string "版本信息"
// @Router /version [get]
func (h *HealthHandler) HandleVersion(version, buildTime, gitCommit string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		WriteSuccess(w, r, map[string]string{
			"version":    version,
			"build_time": buildTime,
			"git_commit": gitCommit,
		})
	}
}

// CheckFunc 以函数形式实现 HealthCheck
type CheckFunc struct {
	name  string
	check func(ctx context.Context) error
}

// NewCheckFunc 创建函数式健康检查
func NewCheckFunc(name string, check func(ctx context.Context) error) *CheckFunc {
	return &CheckFunc{name: name, check: check}
}

func (c *CheckFunc) Name() string { return c.name }

func (c *CheckFunc) Check(ctx context.Context) error { return c.check(ctx) }
