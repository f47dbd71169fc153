package models

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// RunKind 训练类型
type RunKind string

const (
	// RunBootstrap 首次引导训练
	RunBootstrap RunKind = "bootstrap"
	// RunRetrain 增量重训练
	RunRetrain RunKind = "retrain"
)

// RunStatus 训练结果状态
type RunStatus string

const (
	// RunSucceeded 训练完成且制品已持久化
	RunSucceeded RunStatus = "succeeded"
	// RunRejected 输入校验失败，模型未被修改
	RunRejected RunStatus = "rejected"
	// RunFailed 训练或持久化失败，已回滚
	RunFailed RunStatus = "failed"
)

// TrainingRun 训练记录模型
// 每次引导训练或重训练（无论成功与否）写入一行
type TrainingRun struct {
	ID                string         `gorm:"primaryKey"`         // 记录ID
	Kind              RunKind        `gorm:"size:20;not null"`   // 训练类型
	Source            string         `gorm:"size:200;index"`     // 数据来源（上传的文件名、调用方标识）
	Status            RunStatus      `gorm:"size:20;not null"`   // 结果状态
	Version           int            `gorm:"not null;index"`     // 训练后的模型版本（失败时为原版本）
	Samples           int            `gorm:"not null;default:0"` // 样本数量
	Precision         float64        `gorm:"not null;default:0"` // 宏平均精确率（批次自检）
	Recall            float64        `gorm:"not null;default:0"` // 宏平均召回率（批次自检）
	F1                float64        `gorm:"not null;default:0"` // 宏平均F1（批次自检）
	ClassDistribution datatypes.JSON `gorm:"type:json"`          // 本批次各类别样本数
	TaskID            string         `gorm:"size:50;index"`      // 异步任务ID（如果有）
	Error             string         `gorm:"type:text"`          // 错误信息
	DurationMs        int64          `gorm:"not null;default:0"` // 耗时（毫秒）
	CreatedAt         time.Time      `gorm:"not null;index"`     // 创建时间
}

// BeforeCreate GORM的钩子函数，创建记录前自动设置时间
func (r *TrainingRun) BeforeCreate(tx *gorm.DB) (err error) {
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	return nil
}

// TableName 明确指定表名
func (TrainingRun) TableName() string {
	return "training_runs"
}
