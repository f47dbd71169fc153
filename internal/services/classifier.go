package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fyerfyer/news-classifier/internal/artifact"
	"github.com/fyerfyer/news-classifier/internal/cache"
	"github.com/fyerfyer/news-classifier/internal/models"
	"github.com/fyerfyer/news-classifier/internal/pipeline"
	"github.com/fyerfyer/news-classifier/internal/repository"
	"github.com/fyerfyer/news-classifier/pkg/taskqueue"
	"github.com/sirupsen/logrus"
)

// ErrQueueDisabled 未配置任务队列时提交异步再训练
var ErrQueueDisabled = errors.New("async retrain queue is not enabled")

// SourceAPI 未指定来源的再训练批次
const SourceAPI = "api"

// snapshot 某一时刻的只读模型
type snapshot struct {
	pipeline *pipeline.Pipeline
	version  int
	loadedAt time.Time
}

// ClassifierService 分类服务
// 持有共享的流水线快照：预测无锁读取当前快照，再训练互斥执行，
// 新版本持久化成功后才替换快照，失败时旧快照与旧制品保持不变
type ClassifierService struct {
	current atomic.Pointer[snapshot] // 当前快照，nil表示未初始化
	mu      sync.Mutex               // 串行化引导训练与再训练

	store  *artifact.Store                  // 模型制品存储
	cache  *cache.PredictionCache           // 预测结果缓存（可选）
	runs   repository.TrainingRunRepository // 训练记录（可选）
	queue  taskqueue.Queue                  // 异步再训练队列（可选）
	logger *logrus.Logger                   // 日志记录器
}

// ClassifierOption 分类服务配置选项
type ClassifierOption func(*ClassifierService)

// WithPredictionCache 设置预测结果缓存
func WithPredictionCache(c *cache.PredictionCache) ClassifierOption {
	return func(s *ClassifierService) {
		s.cache = c
	}
}

// WithRunRepository 设置训练记录仓储
func WithRunRepository(repo repository.TrainingRunRepository) ClassifierOption {
	return func(s *ClassifierService) {
		s.runs = repo
	}
}

// WithRetrainQueue 设置异步再训练队列
func WithRetrainQueue(queue taskqueue.Queue) ClassifierOption {
	return func(s *ClassifierService) {
		s.queue = queue
	}
}

// WithLogger 设置日志记录器
func WithLogger(logger *logrus.Logger) ClassifierOption {
	return func(s *ClassifierService) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewClassifierService 创建分类服务，创建后处于未初始化状态
func NewClassifierService(store *artifact.Store, opts ...ClassifierOption) *ClassifierService {
	s := &ClassifierService{
		store:  store,
		logger: logrus.New(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ModelInfo 当前模型概况
type ModelInfo struct {
	Initialized       bool           `json:"initialized"`
	Version           int            `json:"version"`
	Classes           []string       `json:"classes"`
	Language          string         `json:"language"`
	NFeatures         int            `json:"n_features"`
	Alpha             float64        `json:"alpha"`
	Samples           int            `json:"samples"`
	ClassDistribution map[string]int `json:"class_distribution"`
	LoadedAt          time.Time      `json:"loaded_at"`
	StoredVersions    []int          `json:"stored_versions,omitempty"`
}

// RetrainOutcome 再训练结果
type RetrainOutcome struct {
	Version  int              `json:"version"`
	Metrics  pipeline.Metrics `json:"metrics"`
	Duration time.Duration    `json:"duration"`
}

// BootstrapOutcome 引导训练结果
type BootstrapOutcome struct {
	Version  int               `json:"version"`
	Training pipeline.Metrics  `json:"training"`
	Holdout  *pipeline.Metrics `json:"holdout,omitempty"`
	Duration time.Duration     `json:"duration"`
}

// Load 从制品存储加载最新模型
func (s *ClassifierService) Load(ctx context.Context) error {
	p, version, err := s.store.Load(ctx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.install(p, version)
	s.mu.Unlock()

	s.logger.WithFields(logrus.Fields{
		"version":  version,
		"classes":  p.Classes(),
		"features": p.Config().NFeatures,
		"samples":  p.Samples(),
	}).Info("Model loaded")
	return nil
}

// Ready 模型是否可用
func (s *ClassifierService) Ready() bool {
	return s.current.Load() != nil
}

// Version 当前模型版本，未初始化时为0
func (s *ClassifierService) Version() int {
	if snap := s.current.Load(); snap != nil {
		return snap.version
	}
	return 0
}

// Info 返回当前模型概况
func (s *ClassifierService) Info(ctx context.Context) ModelInfo {
	snap := s.current.Load()
	if snap == nil {
		return ModelInfo{}
	}

	cfg := snap.pipeline.Config()
	info := ModelInfo{
		Initialized:       true,
		Version:           snap.version,
		Classes:           snap.pipeline.Classes(),
		Language:          cfg.Language,
		NFeatures:         cfg.NFeatures,
		Alpha:             cfg.Alpha,
		Samples:           snap.pipeline.Samples(),
		ClassDistribution: snap.pipeline.ClassDistribution(),
		LoadedAt:          snap.loadedAt,
	}

	versions, err := s.store.Versions(ctx)
	if err != nil {
		s.logger.WithError(err).Warn("Failed to list stored model versions")
	} else {
		info.StoredVersions = versions
	}
	return info
}

// Predict 预测一批文档
// 全部命中缓存时不做任何计算，未命中的文档合并为一个批次预测
func (s *ClassifierService) Predict(ctx context.Context, docs []models.Document) ([]models.Prediction, error) {
	snap := s.current.Load()
	if snap == nil {
		return nil, fmt.Errorf("%w: no model has been bootstrapped or loaded", models.ErrUninitialized)
	}

	out := make([]models.Prediction, len(docs))
	missIdx := make([]int, 0, len(docs))
	for i, doc := range docs {
		if s.cache != nil {
			pred, found, err := s.cache.Get(ctx, snap.version, doc)
			if err != nil {
				s.logger.WithError(err).Warn("Prediction cache lookup failed")
			}
			if found {
				out[i] = pred
				continue
			}
		}
		missIdx = append(missIdx, i)
	}

	if len(missIdx) > 0 {
		batch := make([]models.Document, len(missIdx))
		for j, i := range missIdx {
			batch[j] = docs[i]
		}

		preds, err := snap.pipeline.Predict(batch)
		if err != nil {
			return nil, remapIndex(err, missIdx)
		}

		for j, i := range missIdx {
			preds[j].ModelVersion = snap.version
			out[i] = preds[j]
			if s.cache != nil {
				if err := s.cache.Set(ctx, snap.version, docs[i], preds[j]); err != nil {
					s.logger.WithError(err).Warn("Failed to cache prediction")
				}
			}
		}
	}

	s.logger.WithFields(logrus.Fields{
		"documents": len(docs),
		"computed":  len(missIdx),
		"version":   snap.version,
	}).Debug("Prediction completed")

	return out, nil
}

// Retrain 用新标注批次增量更新模型并保存为新版本，来源记为 SourceAPI
func (s *ClassifierService) Retrain(ctx context.Context, docs []models.Document) (RetrainOutcome, error) {
	return s.RetrainFrom(ctx, docs, SourceAPI)
}

// RetrainFrom 用新标注批次增量更新模型并保存为新版本
// source 记录在训练记录上（上传的文件名、调用方标识等）；
// 任一步失败时内存中的模型与已保存的制品都保持原样
func (s *ClassifierService) RetrainFrom(ctx context.Context, docs []models.Document, source string) (RetrainOutcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()
	run := &models.TrainingRun{
		Kind:    models.RunRetrain,
		Source:  source,
		Samples: len(docs),
		TaskID:  taskqueue.TaskIDFromContext(ctx),
	}
	run.ClassDistribution = batchDistribution(docs)

	snap := s.current.Load()
	if snap == nil {
		err := fmt.Errorf("%w: no model has been bootstrapped or loaded", models.ErrUninitialized)
		s.recordRun(run, start, err)
		return RetrainOutcome{}, err
	}
	run.Version = snap.version

	next, metrics, err := snap.pipeline.Retrain(docs)
	if err != nil {
		s.recordRun(run, start, err)
		return RetrainOutcome{}, err
	}

	version := snap.version + 1
	if err := s.store.Save(ctx, next, version); err != nil {
		s.logger.WithError(err).WithField("version", version).Error("Failed to persist retrained model, keeping previous version")
		s.recordRun(run, start, err)
		return RetrainOutcome{}, err
	}

	s.install(next, version)
	s.evictPredictions(ctx, version)

	run.Version = version
	run.Precision, run.Recall, run.F1 = metrics.Precision, metrics.Recall, metrics.F1
	s.recordRun(run, start, nil)

	outcome := RetrainOutcome{Version: version, Metrics: metrics, Duration: time.Since(start)}
	s.logger.WithFields(logrus.Fields{
		"version":   version,
		"source":    source,
		"samples":   len(docs),
		"accuracy":  metrics.Accuracy,
		"precision": metrics.Precision,
		"recall":    metrics.Recall,
		"f1":        metrics.F1,
		"duration":  outcome.Duration.String(),
	}).Info("Model retrained")

	return outcome, nil
}

// RetrainBatch 供异步任务调用的再训练入口
func (s *ClassifierService) RetrainBatch(ctx context.Context, docs []models.Document, source string) (*taskqueue.RetrainResult, error) {
	outcome, err := s.RetrainFrom(ctx, docs, source)
	if err != nil {
		return nil, err
	}

	metrics, err := json.Marshal(outcome.Metrics)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal metrics: %w", err)
	}
	return &taskqueue.RetrainResult{
		Version:  outcome.Version,
		Samples:  outcome.Metrics.Samples,
		Accuracy: outcome.Metrics.Accuracy,
		F1:       outcome.Metrics.F1,
		Metrics:  metrics,
	}, nil
}

// EnqueueRetrain 提交异步再训练任务
// 入队前先校验标签，明显无效的批次直接拒绝
func (s *ClassifierService) EnqueueRetrain(ctx context.Context, docs []models.Document, source string) (string, error) {
	if s.queue == nil {
		return "", ErrQueueDisabled
	}
	snap := s.current.Load()
	if snap == nil {
		return "", fmt.Errorf("%w: no model has been bootstrapped or loaded", models.ErrUninitialized)
	}
	if err := checkLabels(docs, snap.pipeline.Classes()); err != nil {
		return "", err
	}

	taskID, err := s.queue.Enqueue(ctx, taskqueue.TaskRetrain, source, &taskqueue.RetrainPayload{Documents: docs})
	if err != nil {
		return "", fmt.Errorf("failed to enqueue retrain task: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"task_id":   taskID,
		"source":    source,
		"documents": len(docs),
	}).Info("Retrain task enqueued")
	return taskID, nil
}

// GetTask 查询异步任务状态
func (s *ClassifierService) GetTask(ctx context.Context, taskID string) (*taskqueue.TaskInfo, error) {
	if s.queue == nil {
		return nil, ErrQueueDisabled
	}
	task, err := s.queue.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	return taskqueue.NewTaskInfo(task), nil
}

// WaitTask 等待异步任务结束，最多等待timeout
// 超时不是错误，返回任务当前的状态
func (s *ClassifierService) WaitTask(ctx context.Context, taskID string, timeout time.Duration) (*taskqueue.TaskInfo, error) {
	if s.queue == nil {
		return nil, ErrQueueDisabled
	}
	task, err := s.queue.WaitForTask(ctx, taskID, timeout)
	if errors.Is(err, taskqueue.ErrTaskTimeout) {
		return s.GetTask(ctx, taskID)
	}
	if err != nil {
		return nil, err
	}
	return taskqueue.NewTaskInfo(task), nil
}

// ListTasks 列出同一数据来源的异步任务，最新的在前
func (s *ClassifierService) ListTasks(ctx context.Context, source string) ([]*taskqueue.TaskInfo, error) {
	if s.queue == nil {
		return nil, ErrQueueDisabled
	}
	tasks, err := s.queue.GetTasksBySource(ctx, source)
	if err != nil {
		return nil, err
	}

	sort.Slice(tasks, func(i, j int) bool {
		return tasks[i].CreatedAt.After(tasks[j].CreatedAt)
	})
	infos := make([]*taskqueue.TaskInfo, len(tasks))
	for i, task := range tasks {
		infos[i] = taskqueue.NewTaskInfo(task)
	}
	return infos, nil
}

// Bootstrap 在完整语料上首次训练并保存制品
// 存储中已有制品时需要force；强制引导的版本号接在已有版本之后，保证版本单调递增
func (s *ClassifierService) Bootstrap(ctx context.Context, p *pipeline.Pipeline, train, test []models.Document, force bool) (BootstrapOutcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()
	run := &models.TrainingRun{
		Kind:              models.RunBootstrap,
		Samples:           len(train),
		ClassDistribution: batchDistribution(train),
	}

	version, err := s.nextBootstrapVersion(ctx, force)
	if err != nil {
		s.recordRun(run, start, err)
		return BootstrapOutcome{}, err
	}

	fitted, metrics, err := p.Fit(train)
	if err != nil {
		s.recordRun(run, start, err)
		return BootstrapOutcome{}, err
	}

	outcome := BootstrapOutcome{Version: version, Training: metrics}
	if len(test) > 0 {
		holdout, err := fitted.Evaluate(test, pipeline.KindHoldout)
		if err != nil {
			s.recordRun(run, start, err)
			return BootstrapOutcome{}, err
		}
		outcome.Holdout = &holdout
	}

	if err := s.store.Save(ctx, fitted, version); err != nil {
		s.recordRun(run, start, err)
		return BootstrapOutcome{}, err
	}
	s.install(fitted, version)
	s.evictPredictions(ctx, version)

	reported := metrics
	if outcome.Holdout != nil {
		reported = *outcome.Holdout
	}
	run.Version = version
	run.Precision, run.Recall, run.F1 = reported.Precision, reported.Recall, reported.F1
	s.recordRun(run, start, nil)

	outcome.Duration = time.Since(start)
	s.logger.WithFields(logrus.Fields{
		"version":  version,
		"train":    len(train),
		"test":     len(test),
		"classes":  fitted.Classes(),
		"accuracy": reported.Accuracy,
		"f1":       reported.F1,
	}).Info("Model bootstrapped")

	return outcome, nil
}

// History 分页查询训练记录
func (s *ClassifierService) History(offset, limit int, filters map[string]interface{}) ([]*models.TrainingRun, int64, error) {
	if s.runs == nil {
		return []*models.TrainingRun{}, 0, nil
	}
	return s.runs.List(offset, limit, filters)
}

// nextBootstrapVersion 计算引导训练使用的版本号
func (s *ClassifierService) nextBootstrapVersion(ctx context.Context, force bool) (int, error) {
	exists, err := s.store.Exists(ctx)
	if err != nil {
		return 0, err
	}
	if exists && !force {
		return 0, models.NewValidationError("a model artifact already exists, bootstrap requires force")
	}

	versions, err := s.store.Versions(ctx)
	if err != nil {
		return 0, err
	}
	if len(versions) == 0 {
		return 1, nil
	}
	return versions[len(versions)-1] + 1, nil
}

// install 替换当前快照，调用方必须持有mu
func (s *ClassifierService) install(p *pipeline.Pipeline, version int) {
	s.current.Store(&snapshot{
		pipeline: p,
		version:  version,
		loadedAt: time.Now(),
	})
}

// evictPredictions 新版本生效后清空旧版本的预测缓存，失败只记录日志
func (s *ClassifierService) evictPredictions(ctx context.Context, version int) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Clear(ctx); err != nil {
		s.logger.WithError(err).WithField("version", version).Warn("Failed to clear prediction cache")
	}
}

// recordRun 写入训练记录，失败只记录日志
func (s *ClassifierService) recordRun(run *models.TrainingRun, start time.Time, err error) {
	run.DurationMs = time.Since(start).Milliseconds()
	switch {
	case err == nil:
		run.Status = models.RunSucceeded
	case errors.Is(err, models.ErrValidation) || errors.Is(err, models.ErrUninitialized):
		run.Status = models.RunRejected
		run.Error = err.Error()
	default:
		run.Status = models.RunFailed
		run.Error = err.Error()
	}

	if err != nil {
		s.logger.WithFields(logrus.Fields{
			"kind":    run.Kind,
			"source":  run.Source,
			"status":  run.Status,
			"version": run.Version,
			"samples": run.Samples,
		}).WithError(err).Warn("Training run did not complete")
	}

	if s.runs == nil {
		return
	}
	if createErr := s.runs.Create(run); createErr != nil {
		s.logger.WithError(createErr).Warn("Failed to record training run")
	}
}

// checkLabels 校验批次中的标签都属于类别集合
func checkLabels(docs []models.Document, classes []string) error {
	if len(docs) == 0 {
		return models.NewValidationError("batch must contain at least one document")
	}
	known := make(map[string]bool, len(classes))
	for _, c := range classes {
		known[c] = true
	}
	for i, d := range docs {
		if !d.HasLabel() {
			return &models.StageError{Stage: "validate", Field: "label", Index: i,
				Err: fmt.Errorf("%w: label is required", models.ErrValidation)}
		}
		if !known[d.Label] {
			return &models.StageError{Stage: "validate", Field: "label", Index: i,
				Err: models.NewValidationError("label %q is not one of %v", d.Label, classes)}
		}
	}
	return nil
}

// batchDistribution 统计批次中各标签的样本数
func batchDistribution(docs []models.Document) []byte {
	counts := make(map[string]int)
	for _, d := range docs {
		if d.HasLabel() {
			counts[d.Label]++
		}
	}
	data, _ := json.Marshal(counts)
	return data
}

// remapIndex 将子批次中的文档下标映射回原始请求中的下标
func remapIndex(err error, idx []int) error {
	var stageErr *models.StageError
	if errors.As(err, &stageErr) && stageErr.Index >= 0 && stageErr.Index < len(idx) {
		remapped := *stageErr
		remapped.Index = idx[stageErr.Index]
		return &remapped
	}
	return err
}
