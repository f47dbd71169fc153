package features

import (
	"math"
	"sort"
	"unicode"
	"unicode/utf8"

	"github.com/fyerfyer/news-classifier/internal/models"
	"github.com/spaolacci/murmur3"
)

// DefaultFeatures 默认特征维度
const DefaultFeatures = 5000

// minTokenLen 参与哈希的最短词长（字符数）
const minTokenLen = 2

// Hasher 特征哈希阶段
// 不学习词表，相同文本与相同维度总是得到相同向量
type Hasher struct {
	nFeatures int
}

// NewHasher 创建特征哈希器
func NewHasher(nFeatures int) (*Hasher, error) {
	if nFeatures <= 0 || nFeatures > math.MaxInt32 {
		return nil, models.NewValidationError("n_features must be in (0, %d], got %d", math.MaxInt32, nFeatures)
	}
	return &Hasher{nFeatures: nFeatures}, nil
}

// Name 阶段名称
func (h *Hasher) Name() string {
	return "hash"
}

// Dim 特征维度
func (h *Hasher) Dim() int {
	return h.nFeatures
}

// Transform 将文档批量转换为特征向量
// 标题与正文以空格拼接后提取词元
func (h *Hasher) Transform(docs []models.Document) ([]Vector, error) {
	vectors := make([]Vector, len(docs))
	for i, doc := range docs {
		if !utf8.ValidString(doc.Title) || !utf8.ValidString(doc.Body) {
			return nil, &models.StageError{
				Stage: h.Name(),
				Field: "text",
				Index: i,
				Err:   models.NewValidationError("text is not valid UTF-8"),
			}
		}
		vectors[i] = h.Vectorize(doc.Title + " " + doc.Body)
	}
	return vectors, nil
}

// Vectorize 将单条文本转换为L2归一化的特征向量
// 没有有效词元时返回全零向量
func (h *Hasher) Vectorize(text string) Vector {
	counts := make(map[int]float64)
	for _, tok := range Tokens(text) {
		counts[h.Bucket(tok)]++
	}

	vec := Vector{
		Dim:     h.nFeatures,
		Indices: make([]int, 0, len(counts)),
		Values:  make([]float64, 0, len(counts)),
	}
	for idx := range counts {
		vec.Indices = append(vec.Indices, idx)
	}
	sort.Ints(vec.Indices)

	var sum float64
	for _, idx := range vec.Indices {
		sum += counts[idx] * counts[idx]
	}
	norm := math.Sqrt(sum)
	for _, idx := range vec.Indices {
		vec.Values = append(vec.Values, counts[idx]/norm)
	}

	return vec
}

// Bucket 计算词元所属的特征桶
// MurmurHash3 (x86, 32位, 种子0) 按有符号整数取绝对值后对维度取模
func (h *Hasher) Bucket(token string) int {
	sum := int32(murmur3.Sum32([]byte(token)))

	var idx int64
	if sum == math.MinInt32 {
		idx = math.MaxInt32 - int64(h.nFeatures-1)
	} else {
		idx = int64(sum)
		if idx < 0 {
			idx = -idx
		}
	}
	return int(idx % int64(h.nFeatures))
}

// Tokens 提取参与哈希的词元
// 词元必须是一个完整的词（字母、数字、组合符号、下划线的最长连续串），
// 且全部由允许的字母组成，长度至少为2
func Tokens(text string) []string {
	var tokens []string
	runes := []rune(text)

	for i := 0; i < len(runes); {
		if !isWordRune(runes[i]) {
			i++
			continue
		}

		start := i
		valid := true
		for i < len(runes) && isWordRune(runes[i]) {
			if !isTokenLetter(runes[i]) {
				valid = false
			}
			i++
		}

		if valid && i-start >= minTokenLen {
			tokens = append(tokens, string(runes[start:i]))
		}
	}

	return tokens
}

// isWordRune 判断是否为词字符
func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsMark(r) || r == '_'
}

// isTokenLetter 判断是否为允许出现在词元中的字母
func isTokenLetter(r rune) bool {
	if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') {
		return true
	}
	switch r {
	case 'á', 'é', 'í', 'ó', 'ú', 'ü', 'ñ', 'Á', 'É', 'Í', 'Ó', 'Ú', 'Ü', 'Ñ':
		return true
	}
	return false
}
