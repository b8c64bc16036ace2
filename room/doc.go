// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package room 管理通话房间与参与者的生命周期，并签发媒体服务器访问令牌。

# 概述

Manager 是房间状态的唯一所有者。所有变更都通过 Store.Update 在单个房间的
锁内完成，读取返回快照副本。与媒体服务器的交互经由 Transport 接口完成，
未配置媒体服务器时使用 NopTransport。

# 核心类型

  - Manager: 房间创建、令牌签发、参与者状态、清理与变更通知
  - Room / ParticipantInfo: 房间与参与者的本地视图
  - Store / MemoryStore: 按房间加锁的房间存储
  - Transport: 媒体服务器管理接口（ListRooms、DeleteRoom、SendData 等）
  - TokenSigner: 用 livekit/protocol/auth 签发加入令牌，用 golang-jwt 校验

# 行为约定

  - 未知房间在签发令牌时先尝试从媒体服务器物化，否则自动创建
  - 媒体服务器返回“不存在”视为删除或移除成功
  - CleanupInactiveRooms 使用条件删除，清理期间有人加入的房间会被保留
  - Watch 返回的通道在房间下一次成员或状态变化时关闭
*/
package room
