package models

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation 输入校验错误：字段缺失、标签不在类别集合中、特征维度不匹配
	ErrValidation = errors.New("validation error")

	// ErrUninitialized 模型尚未初始化（未完成引导训练或加载失败）
	ErrUninitialized = errors.New("model not initialized")

	// ErrPersistence 模型制品读写失败
	ErrPersistence = errors.New("persistence error")
)

// StageError 流水线阶段错误
// 记录出错的阶段名称、字段以及文档下标，便于定位问题
type StageError struct {
	Stage string // 阶段名称，如 normalize、lemmatize、vectorize
	Field string // 出错字段，如 title、body
	Index int    // 文档在批次中的下标，-1表示整个批次
	Err   error  // 原始错误
}

// Error 实现error接口
func (e *StageError) Error() string {
	if e.Index >= 0 {
		return fmt.Sprintf("stage %s failed on %s of document %d: %v", e.Stage, e.Field, e.Index, e.Err)
	}
	return fmt.Sprintf("stage %s failed on %s: %v", e.Stage, e.Field, e.Err)
}

// Unwrap 支持errors.Is/errors.As
func (e *StageError) Unwrap() error {
	return e.Err
}

// NewValidationError 创建带上下文的校验错误
func NewValidationError(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
