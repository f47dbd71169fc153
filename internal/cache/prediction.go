package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/fyerfyer/news-classifier/internal/models"
)

// PredictionCache 预测结果缓存
// 键中包含模型版本，重训练后旧版本的结果自然失效
type PredictionCache struct {
	cache Cache
	ttl   time.Duration
}

// NewPredictionCache 创建预测结果缓存
func NewPredictionCache(c Cache, ttl time.Duration) *PredictionCache {
	return &PredictionCache{cache: c, ttl: ttl}
}

// PredictionKey 生成预测缓存键：predict:v<版本>:<标题与正文的sha256>
func PredictionKey(version int, doc models.Document) string {
	h := sha256.New()
	h.Write([]byte(doc.Title))
	h.Write([]byte{0})
	h.Write([]byte(doc.Body))
	return GenerateCacheKey("predict", fmt.Sprintf("v%d", version), hex.EncodeToString(h.Sum(nil)))
}

// Get 读取缓存的预测结果
func (p *PredictionCache) Get(ctx context.Context, version int, doc models.Document) (models.Prediction, bool, error) {
	data, found, err := p.cache.Get(ctx, PredictionKey(version, doc))
	if err != nil || !found {
		return models.Prediction{}, false, err
	}

	var pred models.Prediction
	if err := json.Unmarshal(data, &pred); err != nil {
		// 无法解析的缓存项视为未命中
		return models.Prediction{}, false, nil
	}
	return pred, true, nil
}

// Set 写入预测结果
func (p *PredictionCache) Set(ctx context.Context, version int, doc models.Document, pred models.Prediction) error {
	data, err := json.Marshal(pred)
	if err != nil {
		return err
	}
	return p.cache.Set(ctx, PredictionKey(version, doc), data, p.ttl)
}

// Clear 清空所有预测结果
func (p *PredictionCache) Clear(ctx context.Context) error {
	return p.cache.Clear(ctx)
}
