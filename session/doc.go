// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 session 管理对话会话的生命周期副作用。

Manager 负责解析或生成 conversation_id，并把会话记录、对话轮次、
标题摘要与场景访问计数交给后台执行器异步完成。任何持久化失败只记录日志，
不会影响正在进行的流式响应。

Summarizer 使用 LLM 客户端从首个问题生成会话标题，输出经过
llm.CleanResponse 清洗。
*/
package session
