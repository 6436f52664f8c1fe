package tokenizer

import "fmt"

// Tokenizer 是统一的 token 编解码接口.
type Tokenizer interface {
	// CountTokens 返回给定文本的 token 数.
	CountTokens(text string) (int, error)

	// Encode 将文本转换为 token ID 列表.
	Encode(text string) ([]int, error)

	// Decode 将 token ID 转换回文本.
	Decode(tokens []int) (string, error)

	// Name 返回分词器的名称.
	Name() string
}

// ForModel 返回模型对应的 tiktoken 分词器；编码数据不可用时退回估算器。
// 编码数据在首次使用时加载，因此这里只做映射，不触发下载。
func ForModel(model string) Tokenizer {
	t, err := NewTiktokenTokenizer(model)
	if err != nil {
		return NewEstimatorTokenizer()
	}
	return &fallback{primary: t, secondary: NewEstimatorTokenizer()}
}

// fallback 首选 tiktoken，初始化失败时改用估算器
type fallback struct {
	primary   *TiktokenTokenizer
	secondary *EstimatorTokenizer
}

func (f *fallback) pick() Tokenizer {
	if f.primary.init() != nil {
		return f.secondary
	}
	return f.primary
}

func (f *fallback) CountTokens(text string) (int, error) { return f.pick().CountTokens(text) }
func (f *fallback) Encode(text string) ([]int, error)     { return f.pick().Encode(text) }
func (f *fallback) Decode(tokens []int) (string, error)   { return f.pick().Decode(tokens) }
func (f *fallback) Name() string                          { return f.pick().Name() }

// Truncate 将文本截断到至多 maxTokens 个 token
func Truncate(t Tokenizer, text string, maxTokens int) (string, error) {
	if maxTokens <= 0 {
		return "", fmt.Errorf("maxTokens must be positive, got %d", maxTokens)
	}
	tokens, err := t.Encode(text)
	if err != nil {
		return "", err
	}
	if len(tokens) <= maxTokens {
		return text, nil
	}
	return t.Decode(tokens[:maxTokens])
}
