package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"go.uber.org/zap"

	"github.com/BaSui01/agentgate/router"
	"github.com/BaSui01/agentgate/stream"
	"github.com/BaSui01/agentgate/types"
)

// =============================================================================
// 💬 聊天接口 Handler
// =============================================================================

// ChatOpener 打开一次对话流
type ChatOpener interface {
	Open(ctx context.Context, req *types.ChatRequest) (*router.Chat, error)
}

// ChatHandler 聊天接口处理器
type ChatHandler struct {
	router         ChatOpener
	logger         *zap.Logger
	originPatterns []string
}

// ChatOption 聊天处理器选项
type ChatOption func(*ChatHandler)

// WithOriginPatterns 设置 WebSocket 允许的跨域来源
func WithOriginPatterns(patterns ...string) ChatOption {
	return func(h *ChatHandler) { h.originPatterns = patterns }
}

// NewChatHandler 创建聊天处理器
func NewChatHandler(r ChatOpener, logger *zap.Logger, opts ...ChatOption) *ChatHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &ChatHandler{router: r, logger: logger.With(zap.String("handler", "chat"))}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// HandleStream 处理流式对话请求
// @Summary 流式对话
// @Description 按 context.scene.source 路由到对应引擎，以 SSE 返回事件流
// @Tags 聊天
// @Accept json
// @Produce text/event-stream
// @Param request body types.ChatRequest true "对话请求"
// @Success 200 {string} string "SSE 事件流"
// @Failure 400 {object} Response "无效请求"
// @Failure 500 {object} Response "无法识别的平台来源"
// @Router /bitmind/service/api/v2/chat [post]
func (h *ChatHandler) HandleStream(w http.ResponseWriter, r *http.Request) {
	var req types.ChatRequest
	if err := DecodeJSONBodyLenient(w, r, &req, h.logger); err != nil {
		return
	}
	if apiErr := validateChatRequest(&req); apiErr != nil {
		WriteError(w, apiErr, h.logger)
		return
	}
	attachToken(r.Context(), &req)

	flusher, ok := w.(http.Flusher)
	if !ok {
		WriteErrorMessage(w, http.StatusInternalServerError, types.ErrInternalError, "streaming not supported", h.logger)
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	chat, err := h.router.Open(ctx, &req)
	if err != nil {
		WriteErr(w, err, h.logger)
		return
	}

	// 设置 SSE 头
	w.Header().Set("Content-Type", "text/event-stream; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.Header().Set("Content-Encoding", "identity")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	h.pump(ctx, cancel, chat, func(ev stream.Event) error {
		if err := writeSSE(w, ev); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	})
	chat.Finish(ctx)
}

// HandleWebSocket 处理 WebSocket 对话
// 首帧为 JSON 请求，之后每个事件一帧，终止事件后正常关闭连接
// @Summary WebSocket 对话
// @Tags 聊天
// @Router /api/v1/chat/ws [get]
func (h *ChatHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: h.originPatterns})
	if err != nil {
		h.logger.Warn("websocket accept failed", zap.Error(err))
		return
	}
	defer conn.CloseNow()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	var req types.ChatRequest
	if err := wsjson.Read(ctx, conn, &req); err != nil {
		conn.Close(websocket.StatusUnsupportedData, "invalid request")
		return
	}
	if apiErr := validateChatRequest(&req); apiErr != nil {
		h.closeWithError(ctx, conn, apiErr.Message)
		return
	}
	attachToken(ctx, &req)

	chat, err := h.router.Open(ctx, &req)
	if err != nil {
		msg := "internal error"
		if apiErr, ok := types.AsError(err); ok {
			msg = apiErr.Message
		}
		h.closeWithError(ctx, conn, msg)
		return
	}

	h.pump(ctx, cancel, chat, func(ev stream.Event) error {
		return wsjson.Write(ctx, conn, ev)
	})
	chat.Finish(ctx)
	conn.Close(websocket.StatusNormalClosure, "")
}

// pump 按序写出事件并遵守事件的停顿；写失败后取消上游并排空剩余事件
func (h *ChatHandler) pump(ctx context.Context, cancel context.CancelFunc, chat *router.Chat, write func(stream.Event) error) {
	broken := false
	for ev := range chat.Events {
		if broken {
			continue
		}
		if ev.Delay > 0 && !sleepCtx(ctx, ev.Delay) {
			broken = true
			cancel()
			continue
		}
		if err := write(ev); err != nil {
			h.logger.Debug("client write failed",
				zap.String("conversation_id", chat.Route.ConversationID),
				zap.Error(err))
			broken = true
			cancel()
		}
	}
}

func (h *ChatHandler) closeWithError(ctx context.Context, conn *websocket.Conn, msg string) {
	_ = wsjson.Write(ctx, conn, stream.Event{Type: stream.EventError, Error: msg, Finished: true})
	conn.Close(websocket.StatusPolicyViolation, "request rejected")
}

// =============================================================================
// 🔧 辅助函数
// =============================================================================

func validateChatRequest(req *types.ChatRequest) *types.Error {
	if strings.TrimSpace(req.Question) == "" {
		return types.NewInvalidRequestError("question is required")
	}
	return nil
}

// attachToken 把会话 token 放进请求 context，随 inputs 透传给上游
func attachToken(ctx context.Context, req *types.ChatRequest) {
	tok, ok := types.Token(ctx)
	if !ok {
		return
	}
	if req.Context.Extra == nil {
		req.Context.Extra = make(map[string]any)
	}
	req.Context.Extra["token"] = tok
}

func writeSSE(w http.ResponseWriter, ev stream.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	if _, err := w.Write([]byte("data: ")); err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		return err
	}
	_, err = w.Write([]byte("\n\n"))
	return err
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
