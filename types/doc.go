// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package types 提供 agentgate 网关的全局共享类型定义。

# 概述

types 是最底层的公共包，不依赖任何内部包，为 router、stream、session、
api 等上层模块提供统一的类型契约。

# 核心类型

  - ChatRequest / ChatContext / Scene: 对话请求与场景路由信息
  - Identity                        : 当前用户身份（userId / account / realname）
  - Error / ErrorCode               : 结构化错误体系，含 HTTP 状态码、Retryable、Provider 标记

# 主要能力

  - Context 传播：WithTraceID / WithIdentity / WithToken
  - 错误工具链：AsError / IsErrorCode / IsRetryable
  - 常用错误构造：NewRoutingError / NewInvalidRequestError / NewPersistenceError
*/
package types
