// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 llm 提供网关内部使用的 OpenAI 兼容补全客户端，主要服务于会话标题摘要。

# 核心类型

  - [Client]：非流式 /chat/completions 客户端，按 [retry.Policy] 重试可重试错误
  - [KeyProvider]：每次请求取当前 API Key；credential.Service 实现动态 Key，
    [StaticKey] 为固定 Key
  - [Recorder]：调用耗时与 token 用量指标
  - [CleanResponse]：去掉 <think>/<thinking> 推理块

# 错误语义

HTTP 401/403/429 分别映射为 UNAUTHORIZED、FORBIDDEN、RATE_LIMITED，
429 与 5xx 标记为可重试；传输失败为 UPSTREAM_TRANSPORT，响应无法解析为 PARSE_ERROR。

# 相关子包

  - llm/retry：指数退避与绝对抖动
  - llm/tokenizer：tiktoken 与估算分词器
*/
package llm
