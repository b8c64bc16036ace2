// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 redisconn 管理 warmtransfer 共享的 Redis 连接。

# 概述

Manager 建立并持有 go-redis 客户端，供 transfer.RedisStore 与
summary.RedisTranscripts 共用。提供 Ping/Check 健康检查、Run 周期性
健康检查循环以及连接池统计。
*/
package redisconn
