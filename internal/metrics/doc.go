// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 metrics 提供基于 Prometheus 的服务指标采集能力，覆盖
HTTP、转接工作流、房间、上游服务与事件推送五个维度。

# 概述

本包通过 Collector 统一注册和记录 Prometheus 指标，使用 promauto
自动注册机制。所有指标按 namespace 隔离。Collector 实现
transfer.Recorder，可直接作为转接引擎的指标记录器。

# 主要能力

  - HTTP 指标：请求总数、请求耗时、请求/响应体大小，
    状态码归类为 2xx/3xx/4xx/5xx。
  - 转接指标：发起总数、活跃数、按终态计数与耗时、按步骤计数。
  - 房间指标：当前房间数 Gauge 与清理计数。
  - 上游指标：摘要 LLM、TTS 等调用的次数与耗时，按 service/provider 分组。
  - 事件推送：当前 WebSocket 订阅者数量。
*/
package metrics
