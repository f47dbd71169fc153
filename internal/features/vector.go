package features

import (
	"fmt"
	"math"
)

// Vector 稀疏特征向量
// Indices 严格递增，Values 与 Indices 一一对应且非负
type Vector struct {
	Dim     int       // 向量维度
	Indices []int     // 非零分量下标
	Values  []float64 // 非零分量取值
}

// Len 非零分量数量
func (v Vector) Len() int {
	return len(v.Indices)
}

// Dense 转为稠密表示
func (v Vector) Dense() []float64 {
	out := make([]float64, v.Dim)
	for i, idx := range v.Indices {
		out[idx] = v.Values[i]
	}
	return out
}

// Norm 计算L2范数
func (v Vector) Norm() float64 {
	var sum float64
	for _, val := range v.Values {
		sum += val * val
	}
	return math.Sqrt(sum)
}

// Validate 校验向量结构与维度
func (v Vector) Validate(dim int) error {
	if v.Dim != dim {
		return fmt.Errorf("dimension mismatch: got %d, want %d", v.Dim, dim)
	}
	if len(v.Indices) != len(v.Values) {
		return fmt.Errorf("indices and values length mismatch: %d != %d", len(v.Indices), len(v.Values))
	}
	prev := -1
	for i, idx := range v.Indices {
		if idx <= prev || idx >= dim {
			return fmt.Errorf("invalid feature index %d", idx)
		}
		if v.Values[i] < 0 || math.IsNaN(v.Values[i]) || math.IsInf(v.Values[i], 0) {
			return fmt.Errorf("invalid value %v at feature %d", v.Values[i], idx)
		}
		prev = idx
	}
	return nil
}
