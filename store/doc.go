// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 store 提供基于 GORM 的关系型仓储。

表结构由 internal/migration 维护：conversations、
agentflow_shared_conversation_history、scene_routes、scene_visits、job_runs。
所有写入错误包装为 PERSISTENCE_ERROR，记录不存在时返回 NOT_FOUND。
*/
package store
