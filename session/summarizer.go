package session

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/BaSui01/agentgate/llm"
	"github.com/BaSui01/agentgate/llm/tokenizer"
)

const (
	summaryPrompt = "你是会话标题生成助手。请根据用户的问题生成一个简洁的会话标题，" +
		"不超过20个字，只输出标题本身，不要解释，不要加引号。"
	defaultSummaryInputTokens = 512
	maxTitleRunes             = 64
)

// ChatCompleter LLM 补全
type ChatCompleter interface {
	Chat(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error)
}

// Summarizer 基于 LLM 生成会话标题
type Summarizer struct {
	client    ChatCompleter
	tokenizer tokenizer.Tokenizer
	maxInput  int
	logger    *zap.Logger
}

// NewSummarizer 创建摘要生成器；maxInput<=0 时使用 512
func NewSummarizer(client ChatCompleter, tok tokenizer.Tokenizer, maxInput int, logger *zap.Logger) *Summarizer {
	if tok == nil {
		tok = tokenizer.NewEstimatorTokenizer()
	}
	if maxInput <= 0 {
		maxInput = defaultSummaryInputTokens
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Summarizer{
		client:    client,
		tokenizer: tok,
		maxInput:  maxInput,
		logger:    logger.With(zap.String("component", "summarizer")),
	}
}

// Summarize 返回清洗后的标题
func (s *Summarizer) Summarize(ctx context.Context, question string) (string, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return "", errors.New("empty question")
	}
	input, err := tokenizer.Truncate(s.tokenizer, question, s.maxInput)
	if err != nil {
		s.logger.Debug("truncate question failed, using raw text", zap.Error(err))
		input = question
	}

	resp, err := s.client.Chat(ctx, llm.ChatRequest{
		Messages: []llm.Message{
			{Role: "system", Content: summaryPrompt},
			{Role: "user", Content: input},
		},
	})
	if err != nil {
		return "", err
	}
	return normalizeTitle(llm.CleanResponse(resp.Content)), nil
}

// normalizeTitle 取首行、去掉引号并限制长度
func normalizeTitle(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	s = strings.Trim(strings.TrimSpace(s), "\"'“”‘’「」《》")
	s = strings.TrimPrefix(s, "标题：")
	s = strings.TrimSpace(s)
	if utf8.RuneCountInString(s) > maxTitleRunes {
		s = string([]rune(s)[:maxTitleRunes])
	}
	return s
}
