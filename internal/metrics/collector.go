// Package metrics provides internal metrics collection.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/BaSui01/warmtransfer/transfer"
)

// =============================================================================
// 📊 指标收集器
// =============================================================================

// Collector 指标收集器
type Collector struct {
	// HTTP 指标
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	httpRequestSize     *prometheus.HistogramVec
	httpResponseSize    *prometheus.HistogramVec

	// 转接指标
	transfersInitiated prometheus.Counter
	transfersActive    prometheus.Gauge
	transfersFinished  *prometheus.CounterVec
	transferDuration   *prometheus.HistogramVec
	transferSteps      *prometheus.CounterVec

	// 房间指标
	roomsActive  prometheus.Gauge
	roomsCleaned prometheus.Counter

	// 上游服务指标（摘要 LLM、TTS、媒体服务器）
	upstreamRequestsTotal   *prometheus.CounterVec
	upstreamRequestDuration *prometheus.HistogramVec

	// 事件推送
	eventSubscribers prometheus.Gauge

	logger *zap.Logger
}

// NewCollector 创建指标收集器
func NewCollector(namespace string, logger *zap.Logger) *Collector {
	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	// HTTP 指标
	c.httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	c.httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	c.httpRequestSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_size_bytes",
			Help:      "HTTP request size in bytes",
			Buckets:   prometheus.ExponentialBuckets(100, 10, 8),
		},
		[]string{"method", "path"},
	)

	c.httpResponseSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_response_size_bytes",
			Help:      "HTTP response size in bytes",
			Buckets:   prometheus.ExponentialBuckets(100, 10, 8),
		},
		[]string{"method", "path"},
	)

	// 转接指标
	c.transfersInitiated = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transfers_initiated_total",
			Help:      "Total number of warm transfers initiated",
		},
	)

	c.transfersActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "transfers_active",
			Help:      "Number of transfers that have not reached a terminal status",
		},
	)

	c.transfersFinished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transfers_finished_total",
			Help:      "Total number of transfers by terminal status",
		},
		[]string{"status"},
	)

	c.transferDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "transfer_duration_seconds",
			Help:      "Time from initiation to terminal status",
			Buckets:   []float64{1, 5, 10, 20, 30, 60, 120, 300, 600},
		},
		[]string{"status"},
	)

	c.transferSteps = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transfer_steps_total",
			Help:      "Total number of recorded workflow steps",
		},
		[]string{"step"},
	)

	// 房间指标
	c.roomsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "rooms_active",
			Help:      "Number of rooms known to the room manager",
		},
	)

	c.roomsCleaned = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rooms_cleaned_total",
			Help:      "Total number of inactive rooms removed by cleanup",
		},
	)

	// 上游服务指标
	c.upstreamRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_requests_total",
			Help:      "Total number of upstream service calls",
		},
		[]string{"service", "provider", "status"},
	)

	c.upstreamRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "upstream_request_duration_seconds",
			Help:      "Upstream service call duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"service", "provider"},
	)

	c.eventSubscribers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "event_subscribers",
			Help:      "Number of connected room event subscribers",
		},
	)

	logger.Info("metrics collector initialized", zap.String("namespace", namespace))

	return c
}

// =============================================================================
// 🎯 HTTP 指标记录
// =============================================================================

// RecordHTTPRequest 记录 HTTP 请求
func (c *Collector) RecordHTTPRequest(method, path string, status int, duration time.Duration, requestSize, responseSize int64) {
	c.httpRequestsTotal.WithLabelValues(method, path, statusCode(status)).Inc()
	c.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	c.httpRequestSize.WithLabelValues(method, path).Observe(float64(requestSize))
	c.httpResponseSize.WithLabelValues(method, path).Observe(float64(responseSize))
}

// =============================================================================
// 🔀 转接指标记录（实现 transfer.Recorder）
// =============================================================================

var _ transfer.Recorder = (*Collector)(nil)

// TransferInitiated 记录新建转接
func (c *Collector) TransferInitiated() {
	c.transfersInitiated.Inc()
	c.transfersActive.Inc()
}

// StepRecorded 记录工作流步骤
func (c *Collector) StepRecorded(step transfer.StepName) {
	c.transferSteps.WithLabelValues(string(step)).Inc()
}

// TransferFinished 记录转接进入终态
func (c *Collector) TransferFinished(status transfer.Status, duration time.Duration) {
	c.transfersActive.Dec()
	c.transfersFinished.WithLabelValues(string(status)).Inc()
	c.transferDuration.WithLabelValues(string(status)).Observe(duration.Seconds())
}

// =============================================================================
// 🏠 房间指标记录
// =============================================================================

// SetActiveRooms 设置当前房间数
func (c *Collector) SetActiveRooms(n int) {
	c.roomsActive.Set(float64(n))
}

// RecordRoomsCleaned 记录清理的房间数
func (c *Collector) RecordRoomsCleaned(n int) {
	c.roomsCleaned.Add(float64(n))
}

// =============================================================================
// 🌐 上游服务指标记录
// =============================================================================

// RecordUpstream 记录一次上游调用，err 为 nil 时记为 success
func (c *Collector) RecordUpstream(service, provider string, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	c.upstreamRequestsTotal.WithLabelValues(service, provider, status).Inc()
	c.upstreamRequestDuration.WithLabelValues(service, provider).Observe(duration.Seconds())
}

// SubscriberConnected 记录事件订阅者连接
func (c *Collector) SubscriberConnected() { c.eventSubscribers.Inc() }

// SubscriberDisconnected 记录事件订阅者断开
func (c *Collector) SubscriberDisconnected() { c.eventSubscribers.Dec() }

// =============================================================================
// 🔧 辅助函数
// =============================================================================

// statusCode 将 HTTP 状态码转换为字符串
func statusCode(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500:
		return "5xx"
	default:
		return "unknown"
	}
}
