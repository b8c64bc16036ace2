// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package transfer 实现热转接（warm transfer）工作流引擎。

# 概述

Engine 为每个转接启动一个工作流 goroutine：保持来电方、等待两位坐席进入
协商房间、生成并播报通话摘要、等待 agent_a 结束协商，最后把 agent_b 交接到
原始房间并移除 agent_a。所有状态变更都经由 Store.Update 完成，终态不会被
覆盖。

# 核心类型

  - Engine: Initiate、SignalConsultationComplete、Cancel、GetStatus、List
  - Transfer: 转接状态与有序步骤日志
  - Store: MemoryStore 与基于 go-redis 的 RedisStore
  - Rooms: 引擎依赖的房间生命周期接口，由 room.Manager 实现
  - Observer / Recorder: 状态变更通知与指标上报

# 工作流阶段

	initiated → consult_room_created → caller_on_hold → agents_connected
	→ summary_generated → summary_played → consultation_complete
	→ transfer_complete

任一阶段出错时转接进入 failed 并删除协商房间；Cancel 记录 transfer_cancelled。
每个阶段都包裹在 OpenTelemetry span 中。
*/
package transfer
