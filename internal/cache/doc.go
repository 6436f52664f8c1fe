// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 cache 提供基于 Redis 的缓存管理能力，支撑对话历史列表、会话状态与
场景访问计数。

# 核心类型

  - Manager：缓存管理器，持有 Redis 客户端与连接池配置，
    提供 Get/Set/Delete 等基础操作、GetJSON/SetJSON 序列化方法，
    以及 AppendJSON/Range/Len 列表操作。
  - Config：缓存配置，包含地址、密码、连接池大小、默认 TTL 与健康检查间隔。
  - HitRecorder：命中/未命中统计回调，由 metrics.Collector 实现。

# 主要能力

  - 列表追加：AppendJSON 在同一事务管道中 RPUSH 并刷新 TTL。
  - 健康检查：后台定时 Ping，Close 时退出。
  - 错误语义：ErrCacheMiss / ErrClosed 哨兵错误。
*/
package cache
