package handlers

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/BaSui01/agentgate/history"
	"github.com/BaSui01/agentgate/types"
)

// =============================================================================
// 📜 会话历史 Handler
// =============================================================================

// HistoryReader 会话历史读取
type HistoryReader interface {
	Messages(ctx context.Context, thread string, limit int) ([]history.Message, error)
}

// HistoryHandler 会话历史处理器
type HistoryHandler struct {
	history HistoryReader
	logger  *zap.Logger
}

// ConversationMessages 会话历史响应
type ConversationMessages struct {
	ConversationID string            `json:"conversation_id"`
	Messages       []history.Message `json:"messages"`
	Count          int               `json:"count"`
}

// NewHistoryHandler 创建会话历史处理器
func NewHistoryHandler(h HistoryReader, logger *zap.Logger) *HistoryHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HistoryHandler{history: h, logger: logger.With(zap.String("handler", "history"))}
}

// HandleMessages 返回会话消息，Redis 未命中时从数据库恢复
// @Summary 会话历史
// @Tags 会话
// @Produce json
// @Param id path string true "会话 ID"
// @Param limit query int false "最多返回条数"
// @Success 200 {object} Response "会话消息"
// @Failure 400 {object} Response "无效请求"
// @Router /api/v1/conversations/{id}/messages [get]
func (h *HistoryHandler) HandleMessages(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.PathValue("id"))
	if id == "" {
		WriteError(w, types.NewInvalidRequestError("conversation id is required"), h.logger)
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			WriteError(w, types.NewInvalidRequestError("limit must be a non-negative integer"), h.logger)
			return
		}
		limit = n
	}

	msgs, err := h.history.Messages(r.Context(), id, limit)
	if err != nil {
		WriteErr(w, err, h.logger)
		return
	}
	if msgs == nil {
		msgs = []history.Message{}
	}
	WriteSuccess(w, ConversationMessages{ConversationID: id, Messages: msgs, Count: len(msgs)})
}
