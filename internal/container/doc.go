// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 container 在启动时按依赖顺序构建 agentgate 的全部组件，并在退出时逆序关闭。

# 初始化顺序

数据库 → Redis → Mongo 归档 → 凭证服务与 LLM → 历史管理 → 后台执行器 →
会话管理 → 上游客户端与路由 → 定时任务。

关系库、Redis 与 Mongo 均为可选依赖：连接失败时记录日志、
注册一个始终失败的健康探针并继续启动，对应功能降级。

# 健康探针

Probes 返回各依赖的探针，llm_credential 为关键探针，其余为非关键探针。
*/
package container
