// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 router 根据请求的 scene.source 选择上游引擎。

Resolve 把请求映射为 Route：OpsMind/BitMind 走 uyun，dify 走 Dify，
agentflow 走 agentflow 平台，缺少 scene 时走默认引擎，其余来源返回
ROUTING_ERROR。新会话在解析时调度会话记录与标题生成。

Dispatch 按 EngineKind 组装适配器与翻译器，返回事件通道；
Chat.Finish 在通道关闭后把问答交给 session.Manager 持久化。
*/
package router
