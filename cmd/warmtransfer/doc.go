// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package main 提供 warmtransfer 服务端程序入口。

# 概述

cmd/warmtransfer 是温转接服务的可执行入口，提供 HTTP API 服务、
健康检查和版本查询等子命令。程序支持 YAML 配置文件加载、
结构化日志（zap）、Prometheus 指标采集以及 OpenTelemetry 追踪。

# 核心类型

  - Server: 组装房间、摘要、转接引擎与事件推送，管理 API 与 Metrics 双端口
  - Middleware: HTTP 中间件函数签名 func(http.Handler) http.Handler
  - fanOutSender: 同时向媒体服务器与 WebSocket 订阅者投递数据消息

# 主要能力

  - 子命令：serve（启动服务）、version、health
  - 中间件链：Recovery、RequestID、SecurityHeaders、Metrics、OTelTracing、
    RequestLogger、CORS、RateLimiter（基于 IP）、APIKeyAuth（X-API-Key / query 参数）
  - 后台清理：按 rooms.cleanup_interval 清理空闲房间、过期转接与旧摘要
  - 优雅关闭：SIGINT/SIGTERM 取消上下文，停止 HTTP 后关闭引擎、Redis 与遥测
  - 构建注入：Version、BuildTime、GitCommit 通过 ldflags 设置
*/
package main
