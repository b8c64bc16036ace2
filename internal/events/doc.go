// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package events 通过 WebSocket 向坐席控制台推送房间事件。

Hub 按房间维护订阅者，每个订阅者由独立的写 goroutine 发送消息，缓冲区满时
断开该订阅者。Hub 同时实现 transfer.DataSender（推送通话摘要等数据包）与
transfer.Observer（推送转接状态快照，不包含 agent_b 的加入令牌）。
*/
package events
