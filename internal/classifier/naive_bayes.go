package classifier

import (
	"fmt"
	"math"
	"sort"

	"github.com/fyerfyer/news-classifier/internal/features"
	"github.com/fyerfyer/news-classifier/internal/models"
)

// DefaultAlpha 默认平滑系数（拉普拉斯平滑）
const DefaultAlpha = 1.0

// ErrNotInitialized 在声明类别集合之前调用训练或预测
var ErrNotInitialized = fmt.Errorf("%w: classifier has no class set", models.ErrUninitialized)

// MultinomialNB 支持增量训练的多项式朴素贝叶斯分类器
//
// 状态机：未初始化 → Initialize → 已初始化(无样本) → Update → 已训练
// 类别集合在 Initialize 时固定，之后的 Update 不能引入新类别
type MultinomialNB struct {
	alpha        float64
	nFeatures    int
	classes      []string
	classIndex   map[string]int
	classCount   []float64   // 每个类别的样本数
	featureCount [][]float64 // 每个类别下每个特征的累计取值
}

// Option 分类器配置选项
type Option func(*MultinomialNB)

// WithAlpha 设置平滑系数
func WithAlpha(alpha float64) Option {
	return func(m *MultinomialNB) {
		m.alpha = alpha
	}
}

// New 创建指定特征维度的分类器
func New(nFeatures int, opts ...Option) (*MultinomialNB, error) {
	m := &MultinomialNB{
		alpha:     DefaultAlpha,
		nFeatures: nFeatures,
	}
	for _, opt := range opts {
		opt(m)
	}

	if nFeatures <= 0 {
		return nil, models.NewValidationError("n_features must be positive, got %d", nFeatures)
	}
	if m.alpha <= 0 || math.IsNaN(m.alpha) || math.IsInf(m.alpha, 0) {
		return nil, models.NewValidationError("alpha must be a positive number, got %v", m.alpha)
	}
	return m, nil
}

// Initialize 声明完整的类别集合
// 标签去重后排序；对已初始化的分类器重复声明相同集合是无操作，声明不同集合返回错误
func (m *MultinomialNB) Initialize(labels []string) error {
	classes := uniqueSorted(labels)
	if len(classes) == 0 {
		return models.NewValidationError("class set must not be empty")
	}
	for _, c := range classes {
		if c == "" {
			return models.NewValidationError("class label must not be empty")
		}
	}

	if m.Initialized() {
		if !equalStrings(m.classes, classes) {
			return models.NewValidationError("class set is fixed to %v, cannot redeclare as %v", m.classes, classes)
		}
		return nil
	}

	m.classes = classes
	m.classIndex = make(map[string]int, len(classes))
	for i, c := range classes {
		m.classIndex[c] = i
	}
	m.classCount = make([]float64, len(classes))
	m.featureCount = make([][]float64, len(classes))
	for i := range m.featureCount {
		m.featureCount[i] = make([]float64, m.nFeatures)
	}
	return nil
}

// Initialized 是否已声明类别集合
func (m *MultinomialNB) Initialized() bool {
	return len(m.classes) > 0
}

// Classes 返回类别集合（已排序）
func (m *MultinomialNB) Classes() []string {
	out := make([]string, len(m.classes))
	copy(out, m.classes)
	return out
}

// NFeatures 特征维度
func (m *MultinomialNB) NFeatures() int {
	return m.nFeatures
}

// Alpha 平滑系数
func (m *MultinomialNB) Alpha() float64 {
	return m.alpha
}

// Samples 已学习的样本总数
func (m *MultinomialNB) Samples() int {
	var total float64
	for _, c := range m.classCount {
		total += c
	}
	return int(total)
}

// ClassDistribution 每个类别已学习的样本数
func (m *MultinomialNB) ClassDistribution() map[string]int {
	out := make(map[string]int, len(m.classes))
	for i, c := range m.classes {
		out[c] = int(m.classCount[i])
	}
	return out
}

// Update 使用一个小批量样本进行一次增量训练
// 所有标签、维度和取值先全部校验，任何一项不合法都不会修改状态
func (m *MultinomialNB) Update(vectors []features.Vector, labels []string) error {
	if !m.Initialized() {
		return ErrNotInitialized
	}
	if len(vectors) != len(labels) {
		return models.NewValidationError("got %d vectors but %d labels", len(vectors), len(labels))
	}

	rows := make([]int, len(labels))
	for i, label := range labels {
		idx, ok := m.classIndex[label]
		if !ok {
			return models.NewValidationError("label %q of sample %d is not in class set %v", label, i, m.classes)
		}
		rows[i] = idx
	}
	for i, vec := range vectors {
		if err := vec.Validate(m.nFeatures); err != nil {
			return models.NewValidationError("sample %d: %v", i, err)
		}
	}

	for i, vec := range vectors {
		row := rows[i]
		m.classCount[row]++
		for j, idx := range vec.Indices {
			m.featureCount[row][idx] += vec.Values[j]
		}
	}
	return nil
}

// Predict 预测每个向量的类别
func (m *MultinomialNB) Predict(vectors []features.Vector) ([]string, error) {
	scores, err := m.jointLogLikelihood(vectors)
	if err != nil {
		return nil, err
	}

	labels := make([]string, len(scores))
	for i, row := range scores {
		labels[i] = m.classes[argmax(row)]
	}
	return labels, nil
}

// PredictProba 预测每个向量在各类别上的概率分布
// 每行与 Classes() 的顺序一致，且和为1
func (m *MultinomialNB) PredictProba(vectors []features.Vector) ([][]float64, error) {
	scores, err := m.jointLogLikelihood(vectors)
	if err != nil {
		return nil, err
	}

	probs := make([][]float64, len(scores))
	for i, row := range scores {
		lse := logSumExp(row)
		p := make([]float64, len(row))
		for j, s := range row {
			p[j] = math.Exp(s - lse)
		}
		probs[i] = p
	}
	return probs, nil
}

// jointLogLikelihood 计算 log P(c) + Σ x_f · log P(f|c)
func (m *MultinomialNB) jointLogLikelihood(vectors []features.Vector) ([][]float64, error) {
	if !m.Initialized() {
		return nil, ErrNotInitialized
	}
	for i, vec := range vectors {
		if err := vec.Validate(m.nFeatures); err != nil {
			return nil, models.NewValidationError("sample %d: %v", i, err)
		}
	}

	priors := m.logPriors()
	denoms := make([]float64, len(m.classes))
	for c := range m.classes {
		var total float64
		for _, v := range m.featureCount[c] {
			total += v
		}
		denoms[c] = math.Log(total + m.alpha*float64(m.nFeatures))
	}

	out := make([][]float64, len(vectors))
	for i, vec := range vectors {
		row := make([]float64, len(m.classes))
		for c := range m.classes {
			score := priors[c]
			for j, idx := range vec.Indices {
				score += vec.Values[j] * (math.Log(m.featureCount[c][idx]+m.alpha) - denoms[c])
			}
			row[c] = score
		}
		out[i] = row
	}
	return out, nil
}

// logPriors 类别先验的对数
// 没有样本或存在零样本类别时使用均匀先验
func (m *MultinomialNB) logPriors() []float64 {
	priors := make([]float64, len(m.classes))

	var total float64
	uniform := false
	for _, c := range m.classCount {
		total += c
		if c == 0 {
			uniform = true
		}
	}

	for i := range priors {
		if uniform || total == 0 {
			priors[i] = -math.Log(float64(len(m.classes)))
		} else {
			priors[i] = math.Log(m.classCount[i]) - math.Log(total)
		}
	}
	return priors
}

// Clone 深拷贝分类器，用于写时复制
func (m *MultinomialNB) Clone() *MultinomialNB {
	out := &MultinomialNB{
		alpha:     m.alpha,
		nFeatures: m.nFeatures,
	}
	if !m.Initialized() {
		return out
	}

	out.classes = m.Classes()
	out.classIndex = make(map[string]int, len(m.classIndex))
	for k, v := range m.classIndex {
		out.classIndex[k] = v
	}
	out.classCount = append([]float64(nil), m.classCount...)
	out.featureCount = make([][]float64, len(m.featureCount))
	for i, row := range m.featureCount {
		out.featureCount[i] = append([]float64(nil), row...)
	}
	return out
}

func argmax(row []float64) int {
	best := 0
	for i := 1; i < len(row); i++ {
		if row[i] > row[best] {
			best = i
		}
	}
	return best
}

func logSumExp(row []float64) float64 {
	maxVal := math.Inf(-1)
	for _, v := range row {
		if v > maxVal {
			maxVal = v
		}
	}
	if math.IsInf(maxVal, -1) {
		return maxVal
	}
	var sum float64
	for _, v := range row {
		sum += math.Exp(v - maxVal)
	}
	return maxVal + math.Log(sum)
}

func uniqueSorted(labels []string) []string {
	seen := make(map[string]struct{}, len(labels))
	out := make([]string, 0, len(labels))
	for _, l := range labels {
		if _, ok := seen[l]; ok {
			continue
		}
		seen[l] = struct{}{}
		out = append(out, l)
	}
	sort.Strings(out)
	return out
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
