package dataset

import (
	"math"
	"math/rand"

	"github.com/fyerfyer/news-classifier/internal/models"
)

// TrainTestSplit 打乱后按比例切分训练集与测试集
// 相同的种子得到相同的切分；测试集大小向上取整
func TrainTestSplit(docs []models.Document, testSize float64, seed int64) (train, test []models.Document, err error) {
	if testSize < 0 || testSize >= 1 || math.IsNaN(testSize) {
		return nil, nil, models.NewValidationError("test size must be in [0, 1), got %v", testSize)
	}

	shuffled := make([]models.Document, len(docs))
	copy(shuffled, docs)
	rng := rand.New(rand.NewSource(seed))
	rng.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})

	nTest := int(math.Ceil(testSize * float64(len(shuffled))))
	if nTest >= len(shuffled) && len(shuffled) > 0 {
		nTest = len(shuffled) - 1
	}
	return shuffled[nTest:], shuffled[:nTest], nil
}

// Labels 提取文档标签
func Labels(docs []models.Document) []string {
	out := make([]string, len(docs))
	for i, d := range docs {
		out[i] = d.Label
	}
	return out
}
