package repository

import "github.com/fyerfyer/news-classifier/internal/models"

// TrainingRunRepository 训练记录仓储接口
// 负责引导训练与重训练历史的存储和检索
type TrainingRunRepository interface {
	// Create 创建训练记录
	Create(run *models.TrainingRun) error

	// GetByID 根据ID获取训练记录
	GetByID(id string) (*models.TrainingRun, error)

	// List 按创建时间倒序列出训练记录，支持分页和筛选
	List(offset, limit int, filters map[string]interface{}) ([]*models.TrainingRun, int64, error)

	// Latest 获取最近一次成功的训练记录
	Latest() (*models.TrainingRun, error)
}
