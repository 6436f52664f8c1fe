// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 credential 从远程凭据服务动态获取 LLM API Key。

Service 缓存最近一次获取的 Key，在过期前 RefreshBefore 触发刷新；
并发刷新通过 singleflight 合并。远程调用按指数退避加 ±0.5s 抖动重试，
全部失败时回落到旧 Key，再回落到配置中的固定 Key。
*/
package credential
