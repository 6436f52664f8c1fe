package stream

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/BaSui01/agentgate/types"
)

// Sentinel 上游内容中的控制标记
type Sentinel int

const (
	SentinelNone Sentinel = iota
	SentinelLoading
	SentinelThought
	SentinelFlag
)

const (
	markLoading = "loading..."
	markThought = "thought"
	markFlag    = "flag"
)

func (s Sentinel) String() string {
	switch s {
	case SentinelLoading:
		return "loading"
	case SentinelThought:
		return "thought"
	case SentinelFlag:
		return "flag"
	default:
		return "none"
	}
}

// Classify 识别 content 携带的标记；同时命中多个标记时返回 AMBIGUOUS_SENTINEL 错误
func Classify(content string) (Sentinel, error) {
	found := SentinelNone
	hits := 0
	for _, m := range []struct {
		mark string
		kind Sentinel
	}{
		{markLoading, SentinelLoading},
		{markThought, SentinelThought},
		{markFlag, SentinelFlag},
	} {
		if strings.Contains(content, m.mark) {
			found = m.kind
			hits++
		}
	}
	if hits > 1 {
		return SentinelNone, types.NewError(types.ErrAmbiguousSentinel,
			fmt.Sprintf("content matches %d sentinels", hits)).WithHTTPStatus(http.StatusBadGateway)
	}
	return found, nil
}

// loadingSegments 拆分 "loading...|label|text"，缺失的段为空串
func loadingSegments(content string) (label, text string) {
	parts := strings.Split(content, "|")
	if len(parts) > 1 {
		label = parts[1]
	}
	if len(parts) > 2 {
		text = parts[2]
	}
	return label, text
}
