package handler

import (
	"net/http"
	"time"

	"github.com/fyerfyer/news-classifier/api/middleware"
	"github.com/fyerfyer/news-classifier/api/model"
	"github.com/fyerfyer/news-classifier/internal/services"
	"github.com/fyerfyer/news-classifier/pkg/taskqueue"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// 长轮询的最长等待时间
const maxTaskWait = 30 * time.Second

// TaskHandler 处理异步任务相关的API请求
type TaskHandler struct {
	service *services.ClassifierService // 分类服务，持有任务队列
	logger  *logrus.Logger              // 日志记录器
}

// NewTaskHandler 创建新的任务处理器
func NewTaskHandler(service *services.ClassifierService) *TaskHandler {
	return &TaskHandler{
		service: service,
		logger:  middleware.GetLogger(),
	}
}

// GetTaskStatus 获取任务状态
// GET /api/tasks/:id
func (h *TaskHandler) GetTaskStatus(c *gin.Context) {
	var req model.TaskStatusRequest
	if err := c.ShouldBindUri(&req); err != nil {
		middleware.HandleError(c, middleware.FromBindingError(err))
		return
	}

	if err := c.ShouldBindQuery(&req); err != nil {
		middleware.HandleError(c, middleware.FromBindingError(err))
		return
	}
	if req.Wait < 0 {
		middleware.HandleError(c, middleware.NewValidationError("wait must not be negative"))
		return
	}

	var (
		info *taskqueue.TaskInfo
		err  error
	)
	if req.Wait > 0 {
		if req.Wait > maxTaskWait {
			req.Wait = maxTaskWait
		}
		info, err = h.service.WaitTask(c.Request.Context(), req.ID, req.Wait)
	} else {
		info, err = h.service.GetTask(c.Request.Context(), req.ID)
	}
	if err != nil {
		h.logger.WithError(err).WithField("task_id", req.ID).Debug("Failed to get task")
		middleware.HandleError(c, err)
		return
	}

	c.JSON(http.StatusOK, model.NewSuccessResponse(info))
}

// ListTasks 按数据来源列出异步任务
// GET /api/tasks?source=batch.csv
func (h *TaskHandler) ListTasks(c *gin.Context) {
	var req model.TaskListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		middleware.HandleError(c, middleware.FromBindingError(err))
		return
	}

	tasks, err := h.service.ListTasks(c.Request.Context(), req.Source)
	if err != nil {
		h.logger.WithError(err).WithField("source", req.Source).Error("Failed to list tasks")
		middleware.HandleError(c, err)
		return
	}

	c.JSON(http.StatusOK, model.NewSuccessResponse(model.TaskListResponse{
		Source: req.Source,
		Total:  len(tasks),
		Tasks:  tasks,
	}))
}
