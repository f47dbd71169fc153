package repository

import (
	"errors"
	"fmt"

	"github.com/fyerfyer/news-classifier/internal/database"
	"github.com/fyerfyer/news-classifier/internal/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ErrRunNotFound 训练记录不存在
var ErrRunNotFound = errors.New("training run not found")

// runRepository 训练记录仓储实现
type runRepository struct {
	db *gorm.DB // 数据库连接
}

// NewTrainingRunRepository 使用全局数据库连接创建训练记录仓储
func NewTrainingRunRepository() TrainingRunRepository {
	return &runRepository{db: database.MustDB()}
}

// NewTrainingRunRepositoryWithDB 使用指定的数据库连接创建训练记录仓储
func NewTrainingRunRepositoryWithDB(db *gorm.DB) TrainingRunRepository {
	if db == nil {
		db = database.MustDB()
	}
	return &runRepository{db: db}
}

// Create 创建训练记录，ID为空时自动生成
func (r *runRepository) Create(run *models.TrainingRun) error {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	return r.db.Create(run).Error
}

// GetByID 根据ID获取训练记录
func (r *runRepository) GetByID(id string) (*models.TrainingRun, error) {
	var run models.TrainingRun
	err := r.db.Where("id = ?", id).First(&run).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
		}
		return nil, err
	}
	return &run, nil
}

// List 列出训练记录
func (r *runRepository) List(offset, limit int, filters map[string]interface{}) ([]*models.TrainingRun, int64, error) {
	var runs []*models.TrainingRun
	var total int64

	query := r.db.Model(&models.TrainingRun{})

	if filters != nil {
		// 类型过滤
		if kind, ok := filters["kind"]; ok {
			if s := fmt.Sprintf("%v", kind); s != "" {
				query = query.Where("kind = ?", s)
			}
		}

		// 状态过滤
		if status, ok := filters["status"]; ok {
			if s := fmt.Sprintf("%v", status); s != "" {
				query = query.Where("status = ?", s)
			}
		}

		// 来源过滤
		if source, ok := filters["source"]; ok {
			if s := fmt.Sprintf("%v", source); s != "" {
				query = query.Where("source = ?", s)
			}
		}
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := query.Order("created_at DESC").
		Offset(offset).
		Limit(limit).
		Find(&runs).Error
	if err != nil {
		return nil, 0, err
	}

	return runs, total, nil
}

// Latest 获取最近一次成功的训练记录
func (r *runRepository) Latest() (*models.TrainingRun, error) {
	var run models.TrainingRun
	err := r.db.Where("status = ?", models.RunSucceeded).
		Order("version DESC").
		First(&run).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRunNotFound
		}
		return nil, err
	}
	return &run, nil
}
