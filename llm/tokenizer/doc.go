// Package tokenizer 提供统一的 token 编解码接口，
// 支持 tiktoken 精确编码与按字符的估算器，用于摘要提示词截断与流式逐 token 揭示。
package tokenizer
