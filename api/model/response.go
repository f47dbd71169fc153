package model

import (
	"encoding/json"
	"time"

	"github.com/fyerfyer/news-classifier/internal/dataset"
	"github.com/fyerfyer/news-classifier/internal/models"
	"github.com/fyerfyer/news-classifier/internal/pipeline"
	"github.com/fyerfyer/news-classifier/pkg/taskqueue"
)

// Response 通用响应结构
type Response struct {
	Code    int         `json:"code"`               // 响应状态码，0表示成功
	Message string      `json:"message"`            // 响应消息
	Error   string      `json:"error,omitempty"`    // 错误类型，如 VALIDATION_ERROR
	Data    interface{} `json:"data,omitempty"`     // 响应数据，可能为空
	TraceID string      `json:"trace_id,omitempty"` // 调用链追踪ID
}

// NewSuccessResponse 创建成功响应
func NewSuccessResponse(data interface{}) *Response {
	return &Response{
		Code:    0,
		Message: "success",
		Data:    data,
	}
}

// NewErrorResponse 创建错误响应
func NewErrorResponse(code int, message string) *Response {
	return &Response{
		Code:    code,
		Message: message,
	}
}

// PredictionItem 单条预测结果
type PredictionItem struct {
	Index        int                `json:"index"`        // 在请求条目或CSV数据行中的下标
	Label        string             `json:"label"`        // 预测类别
	Probability  float64            `json:"probability"`  // 预测类别的概率
	Distribution map[string]float64 `json:"distribution"` // 各类别概率
}

// PredictResponse 预测响应
type PredictResponse struct {
	ModelVersion int              `json:"model_version"` // 模型版本
	Predictions  []PredictionItem `json:"predictions"`   // 预测结果，与请求一一对应
}

// NewPredictResponse 由预测结果构造响应
func NewPredictResponse(preds []models.Prediction) *PredictResponse {
	resp := &PredictResponse{Predictions: make([]PredictionItem, len(preds))}
	for i, p := range preds {
		resp.Predictions[i] = PredictionItem{
			Index:        i,
			Label:        p.Label,
			Probability:  p.Probability,
			Distribution: p.Distribution,
		}
		if p.ModelVersion > resp.ModelVersion {
			resp.ModelVersion = p.ModelVersion
		}
	}
	return resp
}

// ProfileInfo CSV数据清理统计
type ProfileInfo = dataset.ProfileReport

// RetrainResponse 同步再训练响应
type RetrainResponse struct {
	Version    int              `json:"version"`           // 新模型版本
	Metrics    pipeline.Metrics `json:"metrics"`           // 批次自检指标
	DurationMs int64            `json:"duration_ms"`       // 耗时
	Profile    *ProfileInfo     `json:"profile,omitempty"` // CSV上传时的清理统计
}

// AsyncRetrainResponse 异步再训练响应
type AsyncRetrainResponse struct {
	TaskID  string       `json:"task_id"`           // 任务ID
	Status  string       `json:"status"`            // 任务状态
	Samples int          `json:"samples"`           // 样本数量
	Profile *ProfileInfo `json:"profile,omitempty"` // CSV上传时的清理统计
}

// RunInfo 训练记录
type RunInfo struct {
	ID                string         `json:"id"`
	Kind              string         `json:"kind"`
	Source            string         `json:"source,omitempty"`
	Status            string         `json:"status"`
	Version           int            `json:"version"`
	Samples           int            `json:"samples"`
	Precision         float64        `json:"precision"`
	Recall            float64        `json:"recall"`
	F1                float64        `json:"f1"`
	ClassDistribution map[string]int `json:"class_distribution,omitempty"`
	TaskID            string         `json:"task_id,omitempty"`
	Error             string         `json:"error,omitempty"`
	DurationMs        int64          `json:"duration_ms"`
	CreatedAt         time.Time      `json:"created_at"`
}

// ConvertToRunInfo 将训练记录转换为响应结构
func ConvertToRunInfo(runs []*models.TrainingRun) []RunInfo {
	if len(runs) == 0 {
		return []RunInfo{}
	}

	out := make([]RunInfo, len(runs))
	for i, r := range runs {
		info := RunInfo{
			ID:         r.ID,
			Kind:       string(r.Kind),
			Source:     r.Source,
			Status:     string(r.Status),
			Version:    r.Version,
			Samples:    r.Samples,
			Precision:  r.Precision,
			Recall:     r.Recall,
			F1:         r.F1,
			TaskID:     r.TaskID,
			Error:      r.Error,
			DurationMs: r.DurationMs,
			CreatedAt:  r.CreatedAt,
		}
		// 解析失败时省略类别分布
		var dist map[string]int
		if len(r.ClassDistribution) > 0 && json.Unmarshal(r.ClassDistribution, &dist) == nil {
			info.ClassDistribution = dist
		}
		out[i] = info
	}
	return out
}

// HistoryResponse 训练记录列表响应
type HistoryResponse struct {
	Total    int64     `json:"total"`     // 总数量
	Page     int       `json:"page"`      // 当前页码
	PageSize int       `json:"page_size"` // 每页大小
	Runs     []RunInfo `json:"runs"`      // 训练记录
}

// HealthResponse 健康检查响应
type HealthResponse struct {
	Status       string `json:"status"`        // ok 或 degraded
	ModelReady   bool   `json:"model_ready"`   // 模型是否可用
	ModelVersion int    `json:"model_version"` // 当前模型版本
}

// TaskListResponse 任务列表响应
type TaskListResponse struct {
	Source string                `json:"source"` // 数据来源
	Total  int                   `json:"total"`  // 任务数量
	Tasks  []*taskqueue.TaskInfo `json:"tasks"`  // 任务信息，最新的在前
}
