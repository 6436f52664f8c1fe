// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package handlers 提供 agentgate HTTP API 的请求处理器实现。

# 概述

handlers 包实现对话流、任务调度、会话历史与健康检查端点，
以及统一的响应/错误处理。所有 Handler 均遵循标准 net/http 接口，
通过 Swagger 注解生成 API 文档。

# 核心类型

  - ChatHandler     : 对话处理器，SSE 与 WebSocket 两种下发方式
  - TaskHandler     : 定时任务立即执行与 start/stop/pause/resume/status 控制
  - HistoryHandler  : 会话历史读取
  - HealthHandler   : 服务健康检查（/health, /healthz, /ready）
  - Response        : 统一 JSON 响应结构（success + data + error + timestamp）
  - ResponseWriter  : 包装 http.ResponseWriter 以捕获状态码
  - HealthCheck     : 可插拔健康检查接口，区分关键与非关键依赖

# 主要能力

  - 统一响应格式：WriteSuccess / WriteError / WriteErr / WriteJSON
  - 请求验证：DecodeJSONBody（1 MB 限制 + 严格模式）、DecodeJSONBodyLenient
  - ErrorCode → HTTP 状态码自动映射（4xx/5xx）
  - 事件流：按事件的 Delay 停顿后写出，客户端断开时取消上游并排空
  - 健康聚合：非关键依赖失败为 degraded，关键依赖失败为 unhealthy
*/
package handlers
