// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package types 提供 warmtransfer 服务的全局共享类型定义。

# 概述

types 是最底层的公共包，不依赖任何内部包，为 room、transfer、summary、
api 等上层模块提供统一的错误契约与上下文传播工具，以避免循环依赖。

# 核心类型

  - Error / ErrorCode: 结构化错误体系，含 HTTP 状态码、Retryable、Provider 标记
  - contextKey: context.Context 键类型

# 主要能力

  - 错误工具链：AsError / GetErrorCode / IsCode / IsRetryable
  - 常用错误构造：NewNotFoundError / NewInvalidStateError / NewUpstreamError
  - 状态码映射：HTTPStatusFor 将 ErrorCode 映射为 HTTP 状态码
  - Context 传播：WithRequestID / WithTraceID / WithTransferID
*/
package types
