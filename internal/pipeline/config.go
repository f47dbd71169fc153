package pipeline

import (
	"github.com/fyerfyer/news-classifier/internal/classifier"
	"github.com/fyerfyer/news-classifier/internal/features"
	"github.com/fyerfyer/news-classifier/internal/models"
)

// Config 流水线各阶段的配置，随模型制品一起持久化
type Config struct {
	Language  string  `json:"language"`   // 规范化语言
	NFeatures int     `json:"n_features"` // 特征哈希维度
	Alpha     float64 `json:"alpha"`      // 朴素贝叶斯平滑系数
	BatchSize int     `json:"batch_size"` // 词元化批大小
	Workers   int     `json:"workers"`    // 词元化并行数
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		Language:  "es",
		NFeatures: features.DefaultFeatures,
		Alpha:     classifier.DefaultAlpha,
		BatchSize: 500,
		Workers:   4,
	}
}

// Validate 校验配置
func (c Config) Validate() error {
	if c.Language == "" {
		return models.NewValidationError("language is required")
	}
	if c.NFeatures <= 0 {
		return models.NewValidationError("n_features must be positive, got %d", c.NFeatures)
	}
	if c.Alpha <= 0 {
		return models.NewValidationError("alpha must be positive, got %v", c.Alpha)
	}
	if c.BatchSize <= 0 || c.Workers <= 0 {
		return models.NewValidationError("batch_size and workers must be positive")
	}
	return nil
}
