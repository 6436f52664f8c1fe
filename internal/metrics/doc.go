// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 metrics 提供基于 Prometheus 的网关指标采集能力，覆盖 HTTP、
上游引擎、流式转换、摘要 LLM、后台任务、缓存与数据库等维度。

# 概述

本包通过 Collector 统一注册和记录 Prometheus 指标，使用 promauto
自动注册机制，避免手动管理 Registry。所有指标按 namespace 隔离。

# 主要能力

  - HTTP 指标：请求总数、耗时、请求/响应体大小，状态码归类为 2xx/3xx/4xx/5xx。
  - 上游指标：按 engine/mode 统计调用次数与首包耗时，传输失败单独归类。
  - 流指标：活跃流数量、事件计数、终止结果（done/error/canceled）与时长。
  - LLM 指标：摘要请求次数、耗时与 Token 用量。
  - 后台指标：ObserveBackgroundTask 满足 background.Observer；
    定时任务运行与凭证刷新结果计数。
  - 缓存与数据库指标：命中/未命中、连接数 Gauge、查询耗时。
*/
package metrics
