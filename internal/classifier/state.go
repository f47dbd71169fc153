package classifier

import (
	"fmt"

	"github.com/fyerfyer/news-classifier/internal/models"
)

// State 分类器的可序列化状态
type State struct {
	Classes      []string
	NFeatures    int
	Alpha        float64
	ClassCount   []float64
	FeatureCount [][]float64
}

// State 导出分类器状态（深拷贝）
func (m *MultinomialNB) State() State {
	c := m.Clone()
	return State{
		Classes:      c.classes,
		NFeatures:    c.nFeatures,
		Alpha:        c.alpha,
		ClassCount:   c.classCount,
		FeatureCount: c.featureCount,
	}
}

// FromState 从持久化状态恢复分类器
func FromState(s State) (*MultinomialNB, error) {
	m, err := New(s.NFeatures, WithAlpha(s.Alpha))
	if err != nil {
		return nil, err
	}
	if len(s.Classes) == 0 {
		return m, nil
	}

	if len(s.ClassCount) != len(s.Classes) || len(s.FeatureCount) != len(s.Classes) {
		return nil, models.NewValidationError("state has %d classes but %d class counts and %d feature rows",
			len(s.Classes), len(s.ClassCount), len(s.FeatureCount))
	}
	for i, row := range s.FeatureCount {
		if len(row) != s.NFeatures {
			return nil, models.NewValidationError("feature row %d has dimension %d, want %d", i, len(row), s.NFeatures)
		}
	}

	if err := m.Initialize(s.Classes); err != nil {
		return nil, err
	}
	if !equalStrings(m.classes, s.Classes) {
		return nil, fmt.Errorf("%w: state classes %v are not sorted and unique", models.ErrValidation, s.Classes)
	}

	copy(m.classCount, s.ClassCount)
	for i, row := range s.FeatureCount {
		copy(m.featureCount[i], row)
	}
	return m, nil
}
