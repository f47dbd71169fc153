package pipeline

import (
	"errors"
	"fmt"

	"github.com/fyerfyer/news-classifier/internal/classifier"
	"github.com/fyerfyer/news-classifier/internal/features"
	"github.com/fyerfyer/news-classifier/internal/models"
	"github.com/fyerfyer/news-classifier/internal/textproc"
)

// TextStage 文本到文本的处理阶段（规范化、词元化）
type TextStage interface {
	Name() string
	Transform(texts []string) ([]string, error)
}

// Vectorizer 文档到特征向量的阶段
type Vectorizer interface {
	Name() string
	Dim() int
	Transform(docs []models.Document) ([]features.Vector, error)
}

// Pipeline 固定顺序的处理链：规范化 → 词元化 → 特征哈希 → 分类器
//
// Pipeline 一经创建即不可变，Fit 与 Retrain 返回新的实例，
// 因此同一实例可以被任意多个goroutine并发用于预测
type Pipeline struct {
	config     Config
	lexicon    textproc.Lexicon
	normalizer TextStage
	lemmatizer TextStage
	hasher     Vectorizer
	clf        *classifier.MultinomialNB
}

// Option 流水线构建选项
type Option func(*Pipeline)

// WithLexicon 设置自定义词元词典
func WithLexicon(lex textproc.Lexicon) Option {
	return func(p *Pipeline) {
		p.lexicon = lex
	}
}

// New 创建未训练的流水线
func New(cfg Config, opts ...Option) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	p := &Pipeline{
		config:  cfg,
		lexicon: textproc.Lexicon{},
	}
	for _, opt := range opts {
		opt(p)
	}

	normalizer, err := textproc.NewNormalizer(cfg.Language)
	if err != nil {
		return nil, models.NewValidationError("%v", err)
	}
	hasher, err := features.NewHasher(cfg.NFeatures)
	if err != nil {
		return nil, err
	}
	clf, err := classifier.New(cfg.NFeatures, classifier.WithAlpha(cfg.Alpha))
	if err != nil {
		return nil, err
	}

	p.normalizer = normalizer
	p.lemmatizer = textproc.NewLemmatizer(
		textproc.WithLexicon(p.lexicon),
		textproc.WithBatchSize(cfg.BatchSize),
		textproc.WithWorkers(cfg.Workers),
	)
	p.hasher = hasher
	p.clf = clf
	return p, nil
}

// Restore 由持久化的配置、词典与分类器状态重建流水线
// 特征维度不一致属于致命的配置错误
func Restore(cfg Config, lex textproc.Lexicon, state classifier.State) (*Pipeline, error) {
	if state.NFeatures != cfg.NFeatures {
		return nil, models.NewValidationError("classifier dimension %d does not match hasher dimension %d", state.NFeatures, cfg.NFeatures)
	}

	p, err := New(cfg, WithLexicon(lex))
	if err != nil {
		return nil, err
	}
	clf, err := classifier.FromState(state)
	if err != nil {
		return nil, err
	}
	p.clf = clf
	return p, nil
}

// Config 返回流水线配置
func (p *Pipeline) Config() Config {
	return p.config
}

// Lexicon 返回自定义词元词典
func (p *Pipeline) Lexicon() textproc.Lexicon {
	return p.lexicon
}

// State 导出分类器状态
func (p *Pipeline) State() classifier.State {
	return p.clf.State()
}

// Classes 返回固定的类别集合
func (p *Pipeline) Classes() []string {
	return p.clf.Classes()
}

// Initialized 分类器是否已声明类别集合
func (p *Pipeline) Initialized() bool {
	return p.clf.Initialized()
}

// Samples 已学习的样本总数
func (p *Pipeline) Samples() int {
	return p.clf.Samples()
}

// ClassDistribution 每个类别已学习的样本数
func (p *Pipeline) ClassDistribution() map[string]int {
	return p.clf.ClassDistribution()
}

// Preprocess 执行除分类器外的全部阶段
// 训练、预测与重训练共用这一条路径
func (p *Pipeline) Preprocess(docs []models.Document) ([]features.Vector, error) {
	titles := make([]string, len(docs))
	bodies := make([]string, len(docs))
	for i, d := range docs {
		titles[i] = d.Title
		bodies[i] = d.Body
	}

	titles, err := p.processText(titles, "title")
	if err != nil {
		return nil, err
	}
	bodies, err = p.processText(bodies, "body")
	if err != nil {
		return nil, err
	}

	processed := make([]models.Document, len(docs))
	for i := range docs {
		processed[i] = models.Document{Title: titles[i], Body: bodies[i]}
	}

	vectors, err := p.hasher.Transform(processed)
	if err != nil {
		return nil, err
	}
	return vectors, nil
}

// processText 依次执行规范化与词元化
func (p *Pipeline) processText(texts []string, field string) ([]string, error) {
	for _, stage := range []TextStage{p.normalizer, p.lemmatizer} {
		out, err := stage.Transform(texts)
		if err != nil {
			var stageErr *models.StageError
			if errors.As(err, &stageErr) {
				stageErr.Field = field
				return nil, stageErr
			}
			return nil, &models.StageError{Stage: stage.Name(), Field: field, Index: -1, Err: err}
		}
		texts = out
	}
	return texts, nil
}

// Predict 预测文档类别，结果与输入按下标一一对应
func (p *Pipeline) Predict(docs []models.Document) ([]models.Prediction, error) {
	if !p.clf.Initialized() {
		return nil, classifier.ErrNotInitialized
	}

	vectors, err := p.Preprocess(docs)
	if err != nil {
		return nil, err
	}
	probs, err := p.clf.PredictProba(vectors)
	if err != nil {
		return nil, err
	}

	classes := p.clf.Classes()
	out := make([]models.Prediction, len(docs))
	for i, row := range probs {
		best := 0
		dist := make(map[string]float64, len(classes))
		for j, prob := range row {
			dist[classes[j]] = prob
			if prob > row[best] {
				best = j
			}
		}
		out[i] = models.Prediction{
			Label:        classes[best],
			Probability:  row[best],
			Distribution: dist,
		}
	}
	return out, nil
}

// Fit 首次训练：以语料中出现的全部标签声明类别集合，再执行一次增量更新
// 返回新的流水线，接收者不变
func (p *Pipeline) Fit(docs []models.Document) (*Pipeline, Metrics, error) {
	if p.clf.Initialized() {
		return nil, Metrics{}, models.NewValidationError("pipeline is already fitted with classes %v", p.clf.Classes())
	}
	labels, err := requireLabels(docs)
	if err != nil {
		return nil, Metrics{}, err
	}

	next := p.withClassifier(p.clf.Clone())
	if err := next.clf.Initialize(labels); err != nil {
		return nil, Metrics{}, err
	}
	metrics, err := next.update(docs, labels)
	if err != nil {
		return nil, Metrics{}, err
	}
	return next, metrics, nil
}

// Retrain 使用新标注的批次做增量更新，并在同一批次上自检
// 返回新的流水线，接收者不变
func (p *Pipeline) Retrain(docs []models.Document) (*Pipeline, Metrics, error) {
	if !p.clf.Initialized() {
		return nil, Metrics{}, classifier.ErrNotInitialized
	}
	labels, err := requireLabels(docs)
	if err != nil {
		return nil, Metrics{}, err
	}

	next := p.withClassifier(p.clf.Clone())
	metrics, err := next.update(docs, labels)
	if err != nil {
		return nil, Metrics{}, err
	}
	return next, metrics, nil
}

// Evaluate 在带标签的数据上评估当前模型
func (p *Pipeline) Evaluate(docs []models.Document, kind string) (Metrics, error) {
	labels, err := requireLabels(docs)
	if err != nil {
		return Metrics{}, err
	}
	preds, err := p.Predict(docs)
	if err != nil {
		return Metrics{}, err
	}

	predicted := make([]string, len(preds))
	for i, pr := range preds {
		predicted[i] = pr.Label
	}
	return ComputeMetrics(kind, p.clf.Classes(), labels, predicted), nil
}

// update 在新实例上执行预处理、增量更新与批次自检
func (p *Pipeline) update(docs []models.Document, labels []string) (Metrics, error) {
	vectors, err := p.Preprocess(docs)
	if err != nil {
		return Metrics{}, err
	}
	if err := p.clf.Update(vectors, labels); err != nil {
		return Metrics{}, err
	}

	predicted, err := p.clf.Predict(vectors)
	if err != nil {
		return Metrics{}, err
	}
	return ComputeMetrics(KindBatchSelfCheck, p.clf.Classes(), labels, predicted), nil
}

// withClassifier 复制流水线并替换分类器，各文本阶段无状态可共享
func (p *Pipeline) withClassifier(clf *classifier.MultinomialNB) *Pipeline {
	next := *p
	next.clf = clf
	return &next
}

// requireLabels 校验批次非空且每个文档都带有标签
func requireLabels(docs []models.Document) ([]string, error) {
	if len(docs) == 0 {
		return nil, models.NewValidationError("batch must contain at least one document")
	}
	labels := make([]string, len(docs))
	for i, d := range docs {
		if !d.HasLabel() {
			return nil, &models.StageError{
				Stage: "validate",
				Field: "label",
				Index: i,
				Err:   fmt.Errorf("%w: label is required", models.ErrValidation),
			}
		}
		labels[i] = d.Label
	}
	return labels, nil
}
