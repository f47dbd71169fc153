package taskqueue

import (
	"context"
	"fmt"

	"github.com/fyerfyer/news-classifier/internal/models"
	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"
)

type taskIDKey struct{}

// ContextWithTaskID 在上下文中记录当前任务ID
func ContextWithTaskID(ctx context.Context, taskID string) context.Context {
	return context.WithValue(ctx, taskIDKey{}, taskID)
}

// TaskIDFromContext 读取当前任务ID，不在任务中执行时返回空字符串
func TaskIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(taskIDKey{}).(string); ok {
		return id
	}
	if id, ok := asynq.GetTaskID(ctx); ok {
		return id
	}
	return ""
}

// Retrainer 执行再训练的服务
// 由分类服务实现，任务处理器不关心模型细节
type Retrainer interface {
	RetrainBatch(ctx context.Context, docs []models.Document, source string) (*RetrainResult, error)
}

// RetrainHandler 再训练任务处理器
type RetrainHandler struct {
	retrainer Retrainer
	logger    *logrus.Logger
}

// NewRetrainHandler 创建再训练任务处理器
func NewRetrainHandler(retrainer Retrainer, logger *logrus.Logger) *RetrainHandler {
	if logger == nil {
		logger = logrus.New()
	}
	return &RetrainHandler{
		retrainer: retrainer,
		logger:    logger,
	}
}

// GetTaskTypes 返回支持的任务类型
func (h *RetrainHandler) GetTaskTypes() []TaskType {
	return []TaskType{TaskRetrain}
}

// ProcessTask 解析任务载荷并执行再训练
func (h *RetrainHandler) ProcessTask(ctx context.Context, task *Task) (interface{}, error) {
	if task.Type != TaskRetrain {
		return nil, fmt.Errorf("%w: unsupported task type %s", ErrInvalidPayload, task.Type)
	}

	var payload RetrainPayload
	if err := UnmarshalPayload(task.Payload, &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	log := h.logger.WithFields(logrus.Fields{
		"task_id":   task.ID,
		"source":    task.Source,
		"documents": len(payload.Documents),
		"attempt":   task.Attempts,
	})
	log.Info("Processing retrain task")

	ctx = ContextWithTaskID(ctx, task.ID)
	result, err := h.retrainer.RetrainBatch(ctx, payload.Documents, task.Source)
	if err != nil {
		log.WithError(err).Error("Retrain task failed")
		return nil, err
	}

	log.WithFields(logrus.Fields{
		"version":  result.Version,
		"accuracy": result.Accuracy,
		"f1":       result.F1,
	}).Info("Retrain task completed")

	return result, nil
}
