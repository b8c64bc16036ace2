// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package handlers 提供温转接 HTTP API 的请求处理器实现。

# 概述

handlers 包实现房间、参与者、通话转录/摘要、温转接以及健康检查端点，
并提供统一的响应/错误处理。所有 Handler 通过 Register 挂到
Go 1.22 的 http.ServeMux 方法路由上。

# 核心类型

  - RoomHandler: 房间创建、查询、删除、清理与 WebSocket 事件流
  - ParticipantHandler: 加入令牌、连接状态回报、保持/恢复、跨房间移动
  - CallHandler: 转录追加/查询、摘要生成、坐席交接简报
  - TransferHandler: 发起温转接、查询状态与步骤、完成咨询、取消、agent_b 接管令牌
  - HealthHandler: 服务健康检查（/health, /healthz, /ready, /version）
  - Response: 统一 JSON 响应结构（success + data + error + timestamp）
  - ResponseWriter: 包装 http.ResponseWriter 以捕获状态码与写出字节数

# 主要能力

  - 统一响应格式：WriteSuccess / WriteError / WriteJSON 辅助函数
  - 请求验证：DecodeJSONBody（1 MB 限制 + 严格模式）
  - ErrorCode → HTTP 状态码映射，5xx 响应不暴露内部错误原因
  - 发起转接时按角色与加入顺序推断主叫与 Agent A
  - 分级就绪检查：RegisterCheck 注册关键检查（失败 503），RegisterAdvisoryCheck 注册辅助检查（失败降级）
*/
package handlers
