// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 scheduler 提供定时任务及其控制接口。

每个任务以独立的 ticker 循环运行，可通过 Control 执行 start、stop、
pause、resume、status 操作；Execute 立即同步执行一次。内置任务：

  - summary_backfill：为缺少标题的会话补生成摘要
  - history_sync：把近期活跃会话的历史从关系库预热到 Redis
  - archive_cleanup：删除过期的归档文档与任务记录

每次执行写入 job_runs 表并上报指标。
*/
package scheduler
