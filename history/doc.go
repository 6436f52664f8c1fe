// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 history 管理会话历史。

Manager 以 Redis 列表 chat_history:{thread} 保存消息、以 chat_state:{thread}
保存状态，默认 7 天过期。Redis 未命中时从关系库恢复并回写；Redis 故障时
退化为进程内存储。MongoArchive 可选，按会话保存完整消息文档。
*/
package history
