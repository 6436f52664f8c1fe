// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 upstream 提供三个上游对话引擎的 HTTP 适配器。

# 核心类型

  - UyunClient：多智能体引擎，仅流式，`data:` 行内携带 `|` 分隔的加载标记。
  - DifyClient：Dify chat-messages，支持 streaming 与 blocking 两种模式。
  - AgentFlowClient：agentflow 平台，`event:`/`data:` 成对的 SSE，另有阻塞 invoke。
  - Stream：流式响应体，Release 幂等并记录释放次数。

# 错误

非 2xx 返回 *HTTPError（含状态码与响应体），网络失败返回 *TransportError。
两者都可通过 errors.As 解包为 *types.Error，错误码分别为
UPSTREAM_HTTP 与 UPSTREAM_TRANSPORT/UPSTREAM_TIMEOUT。
*/
package upstream
