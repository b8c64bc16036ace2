// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package summary 提供通话转录存储与通话摘要生成能力。

# 概述

Provider 负责把转录生成为 CallSummary，并为接手坐席生成简短的交接说明
（Brief）。TranscriptSource 负责按房间追加与读取转录条目。

# 核心类型

  - BasicProvider: 基于统计的确定性摘要，不访问网络
  - LLMProvider: 通过 openai-go 调用 OpenAI 兼容接口（默认 Groq）
  - FallbackProvider: 主 Provider 失败时切换到备用 Provider
  - MemoryTranscripts / RedisTranscripts: 转录存储（Redis 使用 RPUSH/LRANGE）
  - Service: 组合转录源与 Provider，并缓存生成的摘要

# Token 预算

LLMProvider 在发送前使用 tiktoken-go 计算 token，并从最早的条目开始裁剪转录；
编码加载失败时使用按字节估算的计数。
*/
package summary
