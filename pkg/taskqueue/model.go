package taskqueue

import (
	"encoding/json"
	"time"

	"github.com/fyerfyer/news-classifier/internal/models"
)

// TaskType 任务类型
type TaskType string

const (
	// TaskRetrain 增量再训练任务
	TaskRetrain TaskType = "model_retrain"
)

// TaskStatus 任务状态
type TaskStatus string

const (
	// StatusPending 等待处理
	StatusPending TaskStatus = "pending"
	// StatusProcessing 处理中
	StatusProcessing TaskStatus = "processing"
	// StatusCompleted 已完成
	StatusCompleted TaskStatus = "completed"
	// StatusFailed 处理失败
	StatusFailed TaskStatus = "failed"
)

// Terminal 是否为终止状态
func (s TaskStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Task 任务基础结构
type Task struct {
	ID          string          `json:"id"`           // 任务唯一标识符
	Type        TaskType        `json:"type"`         // 任务类型
	Source      string          `json:"source"`       // 训练数据来源（上传文件名、api等）
	Status      TaskStatus      `json:"status"`       // 任务状态
	Payload     json.RawMessage `json:"payload"`      // 任务载荷数据
	Result      json.RawMessage `json:"result"`       // 任务结果数据
	Error       string          `json:"error"`        // 错误信息（如果处理失败）
	CreatedAt   time.Time       `json:"created_at"`   // 创建时间
	UpdatedAt   time.Time       `json:"updated_at"`   // 更新时间
	StartedAt   *time.Time      `json:"started_at"`   // 开始处理时间
	CompletedAt *time.Time      `json:"completed_at"` // 完成时间
	Attempts    int             `json:"attempts"`     // 尝试次数
	MaxRetries  int             `json:"max_retries"`  // 最大重试次数
}

// RetrainPayload 再训练任务载荷
type RetrainPayload struct {
	Documents []models.Document `json:"documents"` // 带标签的训练批次
}

// RetrainResult 再训练任务结果
type RetrainResult struct {
	Version  int             `json:"version"`           // 新模型版本
	Samples  int             `json:"samples"`           // 本批次样本数
	Accuracy float64         `json:"accuracy"`          // 批次自检准确率
	F1       float64         `json:"f1"`                // 批次自检宏平均F1
	Metrics  json.RawMessage `json:"metrics,omitempty"` // 完整指标
}
