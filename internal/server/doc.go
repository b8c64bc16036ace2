// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 server 提供 HTTP 服务器生命周期管理。

# 概述

Manager 封装 net/http.Server，Run(ctx) 在上下文取消前提供服务，
随后在 ShutdownTimeout 内优雅关闭，适合与 errgroup 组合同时运行
API 端口与 metrics 端口。Listen 可提前绑定端口，以便在启动前发现
端口冲突或在测试中使用随机端口。
*/
package server
