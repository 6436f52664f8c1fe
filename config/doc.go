// Package config 提供 agentgate 的配置管理功能。
//
// 配置按 默认值 → YAML 文件 → 环境变量（AGENTGATE_ 前缀）的顺序合并，
// 覆盖服务器、身份、Redis、关系库、MongoDB、LLM、动态 Key、上游引擎、
// 对话历史、后台执行器、定时任务、日志与遥测。
package config
