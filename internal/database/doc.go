// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 database 提供基于 GORM 的数据库连接与连接池管理。

# 核心类型

  - PoolManager：连接池管理器，持有 GORM DB 实例与底层 sql.DB，
    提供 DB()、Ping()、Stats()、Close() 等生命周期方法。
  - PoolConfig：连接池配置，可由 config.DatabaseConfig 生成。
  - GormLogger：GORM 日志到 zap 的适配器，记录慢查询与失败 SQL。

# 主要能力

  - 方言选择：Dialector/Open 支持 mysql、postgres、sqlite（纯 Go）。
  - 健康检查：后台定时探活，并通过 StatsRecorder 上报连接数。
  - 事务管理：WithTransactionRetry 对死锁、锁等待超时等错误指数退避重试。
*/
package database
