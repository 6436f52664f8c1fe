package llm

import (
	"regexp"
	"strings"
)

var (
	thinkBlock    = regexp.MustCompile(`(?s)<think>.*?</think>`)
	thinkingBlock = regexp.MustCompile(`(?s)<thinking>.*?</thinking>`)
)

// CleanResponse 去掉 <think>/<thinking> 推理块及首尾空白
func CleanResponse(content string) string {
	cleaned := thinkBlock.ReplaceAllString(content, "")
	cleaned = thinkingBlock.ReplaceAllString(cleaned, "")
	return strings.TrimSpace(cleaned)
}
