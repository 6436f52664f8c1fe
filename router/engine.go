package router

import (
	"fmt"

	"github.com/BaSui01/agentgate/upstream"
)

// EngineKind 上游引擎种类
type EngineKind int

const (
	EngineUnknown EngineKind = iota
	EngineUyun
	EngineDify
	EngineAgentFlow
)

func (k EngineKind) String() string {
	switch k {
	case EngineUyun:
		return upstream.EngineUyun
	case EngineDify:
		return upstream.EngineDify
	case EngineAgentFlow:
		return upstream.EngineAgentFlow
	default:
		return "unknown"
	}
}

// ParseEngineKind 解析配置中的引擎名
func ParseEngineKind(s string) (EngineKind, error) {
	switch s {
	case upstream.EngineUyun:
		return EngineUyun, nil
	case upstream.EngineDify:
		return EngineDify, nil
	case upstream.EngineAgentFlow:
		return EngineAgentFlow, nil
	default:
		return EngineUnknown, fmt.Errorf("unknown engine %q", s)
	}
}

// 请求 scene.source 的取值
const (
	SourceOpsMind   = "OpsMind"
	SourceBitMind   = "BitMind"
	SourceDify      = "dify"
	SourceAgentFlow = "agentflow"
)

// engineForSource 来源到引擎的映射，未知来源返回 EngineUnknown
func engineForSource(source string) EngineKind {
	switch source {
	case SourceOpsMind, SourceBitMind:
		return EngineUyun
	case SourceDify:
		return EngineDify
	case SourceAgentFlow:
		return EngineAgentFlow
	default:
		return EngineUnknown
	}
}
