package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/BaSui01/agentgate/scheduler"
	"github.com/BaSui01/agentgate/types"
)

// =============================================================================
// ⏱️ 定时任务 Handler
// =============================================================================

// JobController 任务调度器
type JobController interface {
	Execute(ctx context.Context, jobType string) (string, error)
	Control(action, jobType string) (scheduler.Result, error)
}

// TaskHandler 任务接口处理器
type TaskHandler struct {
	jobs   JobController
	logger *zap.Logger
}

// ExecuteRequest 立即执行请求
type ExecuteRequest struct {
	JobType string `json:"job_type"`
}

// ControlRequest 控制请求
type ControlRequest struct {
	Action  string `json:"action"`
	JobType string `json:"job_type"`
}

// TaskResponse 任务接口响应
type TaskResponse struct {
	StatusCode int    `json:"status_code"`
	Message    string `json:"message"`
	Status     string `json:"status,omitempty"`
}

// NewTaskHandler 创建任务处理器
func NewTaskHandler(jobs JobController, logger *zap.Logger) *TaskHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TaskHandler{jobs: jobs, logger: logger.With(zap.String("handler", "task"))}
}

// HandleExecute 立即执行一次任务
// @Summary 执行任务
// @Tags 任务
// @Accept json
// @Produce json
// @Param request body ExecuteRequest true "任务类型"
// @Success 200 {object} TaskResponse "执行结果"
// @Failure 404 {object} TaskResponse "未知任务"
// @Router /api/v1/task/execute [post]
func (h *TaskHandler) HandleExecute(w http.ResponseWriter, r *http.Request) {
	var req ExecuteRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}
	if strings.TrimSpace(req.JobType) == "" {
		writeTask(w, http.StatusBadRequest, "job_type is required", "")
		return
	}

	msg, err := h.jobs.Execute(r.Context(), req.JobType)
	if err != nil {
		h.writeTaskError(w, err)
		return
	}
	writeTask(w, http.StatusOK, msg, "")
}

// HandleControl 控制任务调度
// @Summary 控制任务
// @Description action 取值 start、stop、pause、resume、status
// @Tags 任务
// @Accept json
// @Produce json
// @Param request body ControlRequest true "控制请求"
// @Success 200 {object} TaskResponse "当前状态"
// @Failure 400 {object} TaskResponse "invalid operation type"
// @Router /api/v1/task/control [post]
func (h *TaskHandler) HandleControl(w http.ResponseWriter, r *http.Request) {
	var req ControlRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}

	res, err := h.jobs.Control(req.Action, req.JobType)
	if err != nil {
		h.writeTaskError(w, err)
		return
	}
	writeTask(w, http.StatusOK, res.Message, string(res.Status))
}

func (h *TaskHandler) writeTaskError(w http.ResponseWriter, err error) {
	if errors.Is(err, scheduler.ErrJobBusy) {
		writeTask(w, http.StatusConflict, err.Error(), "")
		return
	}
	if apiErr, ok := types.AsError(err); ok {
		status := apiErr.HTTPStatus
		if status == 0 {
			status = mapErrorCodeToHTTPStatus(apiErr.Code)
		}
		writeTask(w, status, apiErr.Message, "")
		return
	}
	h.logger.Warn("job execution failed", zap.Error(err))
	writeTask(w, http.StatusInternalServerError, err.Error(), "")
}

func writeTask(w http.ResponseWriter, status int, msg, jobStatus string) {
	WriteJSON(w, status, TaskResponse{StatusCode: status, Message: msg, Status: jobStatus})
}
