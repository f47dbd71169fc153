package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"strconv"
	"time"

	"github.com/fyerfyer/news-classifier/internal/models"
)

// 分页请求参数
type PaginationRequest struct {
	Page     int `form:"page" json:"page" binding:"omitempty,min=1"`           // 当前页码，从1开始
	PageSize int `form:"page_size" json:"page_size" binding:"omitempty,min=1"` // 每页记录数
}

// GetPage 获取页码，默认为1
func (p *PaginationRequest) GetPage() int {
	if p.Page <= 0 {
		return 1
	}
	return p.Page
}

// GetPageSize 获取每页记录数，默认为10，最大为100
func (p *PaginationRequest) GetPageSize() int {
	if p.PageSize <= 0 {
		return 10
	}
	if p.PageSize > 100 {
		return 100
	}
	return p.PageSize
}

// Label 类别标签
// 兼容JSON数字与字符串两种写法：0、1、"0"、"1"
type Label string

// UnmarshalJSON 实现json.Unmarshaler
func (l *Label) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*l = ""
		return nil
	}

	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*l = Label(s)
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("label must be a string or a number: %w", err)
	}
	if i, err := n.Int64(); err == nil {
		*l = Label(strconv.FormatInt(i, 10))
		return nil
	}
	f, err := n.Float64()
	if err != nil {
		return fmt.Errorf("label must be a string or a number: %w", err)
	}
	// 1.0 与 1 视为同一标签
	if f == float64(int64(f)) {
		*l = Label(strconv.FormatInt(int64(f), 10))
		return nil
	}
	*l = Label(n.String())
	return nil
}

// NewsItem 待分类的新闻
type NewsItem struct {
	Title string `json:"title"` // 新闻标题
	Body  string `json:"body"`  // 新闻正文
}

// LabeledNewsItem 带标签的新闻
type LabeledNewsItem struct {
	Title string `json:"title"`                    // 新闻标题
	Body  string `json:"body"`                     // 新闻正文
	Label Label  `json:"label" binding:"required"` // 类别标签
}

// PredictRequest 预测请求
type PredictRequest struct {
	Items []NewsItem `json:"items" binding:"required,min=1,max=1000,dive"` // 待分类新闻列表
}

// Documents 转换为领域模型
func (r *PredictRequest) Documents() []models.Document {
	docs := make([]models.Document, len(r.Items))
	for i, item := range r.Items {
		docs[i] = models.Document{Title: item.Title, Body: item.Body}
	}
	return docs
}

// RetrainRequest 再训练请求
type RetrainRequest struct {
	Items  []LabeledNewsItem `json:"items" binding:"required,min=1,dive"` // 带标签的训练批次
	Source string            `json:"source" binding:"omitempty,max=200"`  // 数据来源，用于追踪异步任务
}

// Documents 转换为领域模型
func (r *RetrainRequest) Documents() []models.Document {
	docs := make([]models.Document, len(r.Items))
	for i, item := range r.Items {
		docs[i] = models.Document{Title: item.Title, Body: item.Body, Label: string(item.Label)}
	}
	return docs
}

// CSVUploadRequest CSV语料上传请求
type CSVUploadRequest struct {
	File      *multipart.FileHeader `form:"file" binding:"required"`       // CSV文件
	Separator string                `form:"sep" binding:"omitempty,len=1"` // 分隔符，默认为分号
	Async     bool                  `form:"async" binding:"omitempty"`     // 是否异步再训练
}

// SeparatorRune 返回分隔符字符
func (r *CSVUploadRequest) SeparatorRune(def rune) rune {
	if r.Separator == "" {
		return def
	}
	return rune(r.Separator[0])
}

// TaskStatusRequest 任务状态查询请求
// Wait 大于0时等待任务结束后再返回（长轮询），例如 wait=10s
type TaskStatusRequest struct {
	ID   string        `uri:"id" binding:"required"` // 任务ID
	Wait time.Duration `form:"wait"`                 // 最长等待时间
}

// TaskListRequest 按来源查询任务
type TaskListRequest struct {
	Source string `form:"source" binding:"required,max=200"` // 数据来源
}

// HistoryRequest 训练记录查询请求
type HistoryRequest struct {
	PaginationRequest
	Kind   string `form:"kind" binding:"omitempty,oneof=bootstrap retrain"`            // 训练类型过滤
	Status string `form:"status" binding:"omitempty,oneof=succeeded rejected failed"` // 状态过滤
	Source string `form:"source" binding:"omitempty,max=200"`                         // 来源过滤
}

// Filters 转换为仓储过滤条件
func (r *HistoryRequest) Filters() map[string]interface{} {
	filters := make(map[string]interface{})
	if r.Kind != "" {
		filters["kind"] = r.Kind
	}
	if r.Status != "" {
		filters["status"] = r.Status
	}
	if r.Source != "" {
		filters["source"] = r.Source
	}
	return filters
}
