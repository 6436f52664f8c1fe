// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package main 提供 AgentGate 服务端程序入口。

# 概述

cmd/agentgate 是对话编排网关的可执行入口，提供 HTTP 服务、数据库迁移、
健康检查和版本查询等子命令。启动时由 internal/container 按依赖顺序构建
全部组件，再把路由、中间件与 Metrics 端口挂到 internal/server.Manager 上。

# 核心类型

  - Server         : 主服务器，管理 HTTP、Metrics 双端口及优雅关闭
  - Middleware     : HTTP 中间件函数签名 func(http.Handler) http.Handler
  - statusRecorder : 捕获状态码，透传 Flush 与 Hijack

# 路由

  - POST /bitmind/service/api/v2/chat、POST /api/v1/chat/stream  SSE 对话
  - GET  /api/v1/chat/ws                                        WebSocket 对话
  - GET  /api/v1/conversations/{id}/messages                    历史消息
  - POST /api/v1/task/execute、/api/v1/task/control              定时任务（API Key）
  - /health、/healthz、/ready、/version；Metrics 端口 /metrics

# 中间件链

Recovery、RequestID、SecurityHeaders、RequestLogger、Metrics、OTelTracing、
CORS、Identity（token cookie 或 Bearer JWT）、RateLimiter（按用户，匿名按 IP）。

# 关闭顺序

信号 → HTTP → Metrics → 组件容器（逆序）→ 遥测。
Version、BuildTime、GitCommit 通过 ldflags 注入。
*/
package main
