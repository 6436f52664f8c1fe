package stream

import (
	"fmt"
	"unicode/utf8"

	"github.com/BaSui01/agentgate/llm/tokenizer"
)

// Unit 逐步揭示的粒度
type Unit string

const (
	RevealChar  Unit = "char"
	RevealToken Unit = "token"
)

// ParseUnit 解析配置值，空串视为 char
func ParseUnit(s string) (Unit, error) {
	switch Unit(s) {
	case "", RevealChar:
		return RevealChar, nil
	case RevealToken:
		return RevealToken, nil
	default:
		return "", fmt.Errorf("unknown reveal unit %q", s)
	}
}

// Revealer 按粒度切分文本，与时间无关
type Revealer struct {
	Unit      Unit
	Tokenizer tokenizer.Tokenizer
}

// Reveal 返回 text 的逐步前缀，最后一项等于 text；空串返回 nil
func (r Revealer) Reveal(text string) []string {
	if text == "" {
		return nil
	}
	if r.Unit == RevealToken && r.Tokenizer != nil {
		if prefixes, ok := r.tokenPrefixes(text); ok {
			return prefixes
		}
	}
	prefixes := make([]string, 0, utf8.RuneCountInString(text))
	for i := range text {
		if i > 0 {
			prefixes = append(prefixes, text[:i])
		}
	}
	return append(prefixes, text)
}

// Pieces 返回相邻前缀之间的增量，拼接后等于 text
func (r Revealer) Pieces(text string) []string {
	prefixes := r.Reveal(text)
	pieces := make([]string, len(prefixes))
	prev := 0
	for i, p := range prefixes {
		pieces[i] = p[prev:]
		prev = len(p)
	}
	return pieces
}

// tokenPrefixes 逐 token 解码前缀，跳过落在多字节字符中间的前缀
func (r Revealer) tokenPrefixes(text string) ([]string, bool) {
	tokens, err := r.Tokenizer.Encode(text)
	if err != nil || len(tokens) == 0 {
		return nil, false
	}
	prefixes := make([]string, 0, len(tokens))
	last := ""
	for i := range tokens {
		p, err := r.Tokenizer.Decode(tokens[:i+1])
		if err != nil {
			return nil, false
		}
		if p == last || !utf8.ValidString(p) || len(p) < len(last) || p[:len(last)] != last {
			continue
		}
		prefixes = append(prefixes, p)
		last = p
	}
	if last != text {
		return nil, false
	}
	return prefixes, true
}
