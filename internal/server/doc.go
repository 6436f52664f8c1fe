// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 server 提供 HTTP 服务器生命周期管理，支持非阻塞启动、
连接数限制、优雅关闭与系统信号监听。

# 核心类型

  - Manager：持有 http.Server、net.Listener 与异步错误通道，
    提供 Start/Shutdown/WaitForSignal 等生命周期方法。
  - Config：监听地址、读写与空闲超时、最大请求头、最大连接数、
    关闭超时与可选 TLS 证书。

# 主要能力

  - 非阻塞启动：Start 在后台 goroutine 中运行服务；配置证书时走 TLS。
  - 连接限流：MaxConnections > 0 时用 netutil.LimitListener 包装监听器。
  - 优雅关闭：Shutdown 在配置的超时内排空请求，重复调用为空操作。
  - 信号监听：WaitForSignal 在 SIGINT/SIGTERM、服务异常或 ctx 结束时返回，
    由调用方按依赖逆序关闭各组件。
*/
package server
