package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/fyerfyer/news-classifier/internal/artifact"
	"github.com/fyerfyer/news-classifier/internal/cache"
	"github.com/fyerfyer/news-classifier/internal/models"
	"github.com/fyerfyer/news-classifier/internal/pipeline"
	"github.com/fyerfyer/news-classifier/internal/repository"
	"github.com/fyerfyer/news-classifier/pkg/storage"
	"github.com/fyerfyer/news-classifier/pkg/taskqueue"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func trainingDocs() []models.Document {
	return []models.Document{
		{Title: "Gobierno aprueba presupuesto", Body: "El congreso aprobó el presupuesto anual de salud", Label: "0"},
		{Title: "Ministerio publica informe económico", Body: "El informe oficial muestra crecimiento económico", Label: "0"},
		{Title: "Banco central mantiene tasas", Body: "La entidad mantiene las tasas de interés estables", Label: "0"},
		{Title: "Limón cura el cáncer", Body: "Un remedio casero con limón cura todas las enfermedades", Label: "1"},
		{Title: "Extraterrestres controlan políticos", Body: "Los extraterrestres controlan secretamente a los políticos", Label: "1"},
	}
}

// failingStorage 可在运行时切换为写入失败的存储
type failingStorage struct {
	storage.Storage
	mu      sync.Mutex
	failPut bool
}

func (f *failingStorage) setFailPut(fail bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failPut = fail
}

func (f *failingStorage) Put(ctx context.Context, key string, r io.Reader, size int64) (storage.ObjectInfo, error) {
	f.mu.Lock()
	fail := f.failPut
	f.mu.Unlock()
	if fail {
		return storage.ObjectInfo{}, errors.New("bucket unavailable")
	}
	return f.Storage.Put(ctx, key, r, size)
}

type testEnv struct {
	svc     *ClassifierService
	store   *artifact.Store
	storage *failingStorage
	runs    repository.TrainingRunRepository
	cache   cache.Cache
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func newTestEnv(t *testing.T, opts ...ClassifierOption) *testEnv {
	t.Helper()

	local, err := storage.NewLocalStorage(storage.LocalConfig{Path: t.TempDir()})
	require.NoError(t, err)
	st := &failingStorage{Storage: local}
	store := artifact.NewStore(st, artifact.WithLogger(quietLogger()), artifact.WithKeep(3))

	dsn := fmt.Sprintf("file:svc_%d?mode=memory", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.TrainingRun{}))
	runs := repository.NewTrainingRunRepositoryWithDB(db)

	c, err := cache.NewMemoryCache(cache.DefaultConfig())
	require.NoError(t, err)

	opts = append([]ClassifierOption{
		WithLogger(quietLogger()),
		WithRunRepository(runs),
		WithPredictionCache(cache.NewPredictionCache(c, time.Minute)),
	}, opts...)

	return &testEnv{
		svc:     NewClassifierService(store, opts...),
		store:   store,
		storage: st,
		runs:    runs,
		cache:   c,
	}
}

func (e *testEnv) bootstrap(t *testing.T) {
	t.Helper()
	p, err := pipeline.New(pipeline.DefaultConfig())
	require.NoError(t, err)
	_, err = e.svc.Bootstrap(context.Background(), p, trainingDocs(), nil, false)
	require.NoError(t, err)
}

func TestClassifierService_Uninitialized(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	assert.False(t, env.svc.Ready())
	assert.Equal(t, 0, env.svc.Version())
	assert.False(t, env.svc.Info(ctx).Initialized)

	_, err := env.svc.Predict(ctx, trainingDocs())
	assert.ErrorIs(t, err, models.ErrUninitialized)

	_, err = env.svc.Retrain(ctx, trainingDocs())
	assert.ErrorIs(t, err, models.ErrUninitialized)

	err = env.svc.Load(ctx)
	assert.ErrorIs(t, err, artifact.ErrNoArtifact)

	runs, total, err := env.svc.History(0, 10, nil)
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	assert.Equal(t, models.RunRejected, runs[0].Status)
}

func TestClassifierService_BootstrapAndPredict(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	p, err := pipeline.New(pipeline.DefaultConfig())
	require.NoError(t, err)
	docs := trainingDocs()
	outcome, err := env.svc.Bootstrap(ctx, p, docs[:4], docs[4:], false)
	require.NoError(t, err)
	assert.Equal(t, 1, outcome.Version)
	assert.Equal(t, pipeline.KindBatchSelfCheck, outcome.Training.Kind)
	require.NotNil(t, outcome.Holdout)
	assert.Equal(t, pipeline.KindHoldout, outcome.Holdout.Kind)
	assert.Equal(t, 1, outcome.Holdout.Samples)

	assert.True(t, env.svc.Ready())
	info := env.svc.Info(ctx)
	assert.Equal(t, 1, info.Version)
	assert.Equal(t, []string{"0", "1"}, info.Classes)
	assert.Equal(t, 5000, info.NFeatures)
	assert.Equal(t, []int{1}, info.StoredVersions)

	preds, err := env.svc.Predict(ctx, []models.Document{docs[0], {}})
	require.NoError(t, err)
	require.Len(t, preds, 2)
	assert.Equal(t, "0", preds[0].Label)
	assert.GreaterOrEqual(t, preds[0].Probability, 0.5)
	assert.Equal(t, 1, preds[0].ModelVersion)
	assert.InDelta(t, 1.0, preds[1].Distribution["0"]+preds[1].Distribution["1"], 1e-9)

	latest, err := env.runs.Latest()
	require.NoError(t, err)
	assert.Equal(t, models.RunBootstrap, latest.Kind)
	assert.Equal(t, 1, latest.Version)
	assert.Equal(t, 4, latest.Samples)
	assert.JSONEq(t, `{"0":3,"1":1}`, string(latest.ClassDistribution))
}

func TestClassifierService_BootstrapRequiresForce(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.bootstrap(t)

	p, err := pipeline.New(pipeline.DefaultConfig())
	require.NoError(t, err)
	_, err = env.svc.Bootstrap(ctx, p, trainingDocs(), nil, false)
	assert.ErrorIs(t, err, models.ErrValidation)
	assert.Equal(t, 1, env.svc.Version())

	outcome, err := env.svc.Bootstrap(ctx, p, trainingDocs(), nil, true)
	require.NoError(t, err)
	assert.Equal(t, 2, outcome.Version)
}

func TestClassifierService_LoadRestoresLatest(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.bootstrap(t)

	_, err := env.svc.Retrain(ctx, trainingDocs()[:2])
	require.NoError(t, err)

	restarted := NewClassifierService(env.store, WithLogger(quietLogger()))
	require.NoError(t, restarted.Load(ctx))
	assert.Equal(t, 2, restarted.Version())

	want, err := env.svc.Predict(ctx, trainingDocs())
	require.NoError(t, err)
	got, err := restarted.Predict(ctx, trainingDocs())
	require.NoError(t, err)
	for i := range want {
		assert.Equal(t, want[i].Label, got[i].Label)
		assert.InDelta(t, want[i].Probability, got[i].Probability, 1e-12)
	}
}

func TestClassifierService_Retrain(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.bootstrap(t)

	before, err := env.svc.Predict(ctx, trainingDocs()[:1])
	require.NoError(t, err)

	outcome, err := env.svc.Retrain(ctx, []models.Document{
		{Title: "Vacuna con microchip", Body: "La vacuna incluye un microchip para espiar", Label: "1"},
		{Title: "Congreso debate reforma", Body: "Los diputados debaten la reforma fiscal", Label: "0"},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, outcome.Version)
	assert.Equal(t, pipeline.KindBatchSelfCheck, outcome.Metrics.Kind)
	assert.Equal(t, 2, outcome.Metrics.Samples)
	assert.Equal(t, 2, env.svc.Version())
	assert.Equal(t, 7, env.svc.Info(ctx).Samples)

	// 版本号变化后缓存的旧结果不再使用
	after, err := env.svc.Predict(ctx, trainingDocs()[:1])
	require.NoError(t, err)
	assert.Equal(t, 1, before[0].ModelVersion)
	assert.Equal(t, 2, after[0].ModelVersion)

	versions, err := env.store.Versions(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, versions)

	runs, total, err := env.svc.History(0, 10, map[string]interface{}{"kind": models.RunRetrain})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	assert.Equal(t, models.RunSucceeded, runs[0].Status)
	assert.Equal(t, 2, runs[0].Version)
}

func TestClassifierService_RetrainUnknownLabel(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.bootstrap(t)
	before := env.svc.Info(ctx)

	_, err := env.svc.Retrain(ctx, []models.Document{
		{Title: "Noticia", Body: "Texto", Label: "0"},
		{Title: "Otra noticia", Body: "Más texto", Label: "2"},
	})
	assert.ErrorIs(t, err, models.ErrValidation)

	after := env.svc.Info(ctx)
	assert.Equal(t, before.Version, after.Version)
	assert.Equal(t, before.Samples, after.Samples)
	assert.Equal(t, before.ClassDistribution, after.ClassDistribution)

	versions, err := env.store.Versions(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int{1}, versions)

	runs, _, err := env.svc.History(0, 10, map[string]interface{}{"status": models.RunRejected})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, 1, runs[0].Version)
	assert.Contains(t, runs[0].Error, "2")
}

func TestClassifierService_RetrainRollbackOnSaveFailure(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.bootstrap(t)
	before := env.svc.Info(ctx)

	env.storage.setFailPut(true)
	_, err := env.svc.Retrain(ctx, trainingDocs())
	assert.ErrorIs(t, err, models.ErrPersistence)

	after := env.svc.Info(ctx)
	assert.Equal(t, 1, after.Version)
	assert.Equal(t, before.Samples, after.Samples)

	env.storage.setFailPut(false)
	restarted := NewClassifierService(env.store, WithLogger(quietLogger()))
	require.NoError(t, restarted.Load(ctx))
	assert.Equal(t, 1, restarted.Version())

	// 恢复后下一次再训练得到版本2
	outcome, err := env.svc.Retrain(ctx, trainingDocs())
	require.NoError(t, err)
	assert.Equal(t, 2, outcome.Version)

	runs, _, err := env.svc.History(0, 10, map[string]interface{}{"status": models.RunFailed})
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}

func TestClassifierService_ConcurrentPredictAndRetrain(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.bootstrap(t)

	var wg sync.WaitGroup
	errs := make(chan error, 64)

	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 3; j++ {
				if _, err := env.svc.Retrain(ctx, trainingDocs()); err != nil {
					errs <- err
				}
			}
		}()
	}
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				preds, err := env.svc.Predict(ctx, trainingDocs())
				if err != nil {
					errs <- err
					continue
				}
				// 同一批次的预测来自同一个快照
				for _, p := range preds[1:] {
					if p.ModelVersion != preds[0].ModelVersion {
						errs <- fmt.Errorf("mixed versions %d and %d", p.ModelVersion, preds[0].ModelVersion)
					}
				}
			}
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Error(err)
	}
	assert.Equal(t, 13, env.svc.Version())
	assert.Equal(t, 5*13, env.svc.Info(ctx).Samples)
}

func TestClassifierService_PredictRemapsStageErrorIndex(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.bootstrap(t)

	docs := trainingDocs()
	_, err := env.svc.Predict(ctx, docs[:1])
	require.NoError(t, err)

	// 第0条命中缓存，出错的文档在子批次中下标为0，原请求中下标为1
	_, err = env.svc.Predict(ctx, []models.Document{docs[0], {Title: "ok", Body: "bad \xff"}})
	var stageErr *models.StageError
	require.True(t, errors.As(err, &stageErr))
	assert.Equal(t, 1, stageErr.Index)
	assert.Equal(t, "body", stageErr.Field)
}

func TestClassifierService_RetrainBatch(t *testing.T) {
	env := newTestEnv(t)
	env.bootstrap(t)

	ctx := taskqueue.ContextWithTaskID(context.Background(), "task-42")
	result, err := env.svc.RetrainBatch(ctx, trainingDocs(), "weekly.csv")
	require.NoError(t, err)
	assert.Equal(t, 2, result.Version)
	assert.Equal(t, 5, result.Samples)
	assert.Contains(t, string(result.Metrics), `"kind":"batch_self_check"`)

	latest, err := env.runs.Latest()
	require.NoError(t, err)
	assert.Equal(t, "task-42", latest.TaskID)
	assert.Equal(t, "weekly.csv", latest.Source)

	// 同步再训练记录默认来源
	_, err = env.svc.Retrain(context.Background(), trainingDocs())
	require.NoError(t, err)
	latest, err = env.runs.Latest()
	require.NoError(t, err)
	assert.Equal(t, SourceAPI, latest.Source)
}

func TestClassifierService_RetrainEvictsPredictions(t *testing.T) {
	env := newTestEnv(t)
	env.bootstrap(t)
	ctx := context.Background()
	mem := env.cache.(*cache.MemoryCache)

	_, err := env.svc.Predict(ctx, trainingDocs())
	require.NoError(t, err)
	assert.Greater(t, mem.ItemCount(), 0)

	_, err = env.svc.Retrain(ctx, trainingDocs())
	require.NoError(t, err)
	assert.Equal(t, 0, mem.ItemCount())

	// 新版本的结果重新写入缓存
	_, err = env.svc.Predict(ctx, trainingDocs()[:1])
	require.NoError(t, err)
	assert.Equal(t, 1, mem.ItemCount())
}

func TestClassifierService_EnqueueRetrain(t *testing.T) {
	ctx := context.Background()

	t.Run("QueueDisabled", func(t *testing.T) {
		env := newTestEnv(t)
		env.bootstrap(t)
		_, err := env.svc.EnqueueRetrain(ctx, trainingDocs(), "api")
		assert.ErrorIs(t, err, ErrQueueDisabled)
		_, err = env.svc.GetTask(ctx, "x")
		assert.ErrorIs(t, err, ErrQueueDisabled)
		_, err = env.svc.WaitTask(ctx, "x", time.Second)
		assert.ErrorIs(t, err, ErrQueueDisabled)
		_, err = env.svc.ListTasks(ctx, "api")
		assert.ErrorIs(t, err, ErrQueueDisabled)
	})

	mr := miniredis.RunT(t)
	queue, err := taskqueue.NewRedisQueue(&taskqueue.Config{RedisAddr: mr.Addr(), RetryLimit: 1})
	require.NoError(t, err)
	defer queue.Close()

	env := newTestEnv(t, WithRetrainQueue(queue))
	env.bootstrap(t)

	t.Run("RejectsUnknownLabel", func(t *testing.T) {
		_, err := env.svc.EnqueueRetrain(ctx, []models.Document{{Title: "a", Body: "b", Label: "7"}}, "api")
		assert.ErrorIs(t, err, models.ErrValidation)
	})

	t.Run("Enqueued", func(t *testing.T) {
		taskID, err := env.svc.EnqueueRetrain(ctx, trainingDocs(), "weekly.csv")
		require.NoError(t, err)

		info, err := env.svc.GetTask(ctx, taskID)
		require.NoError(t, err)
		assert.Equal(t, taskqueue.StatusPending, info.Status)
		assert.Equal(t, "weekly.csv", info.Source)

		// 模拟工作者执行任务
		handler := taskqueue.NewRetrainHandler(env.svc, quietLogger())
		task, err := queue.GetTask(ctx, taskID)
		require.NoError(t, err)
		result, err := handler.ProcessTask(ctx, task)
		require.NoError(t, err)
		assert.Equal(t, 2, result.(*taskqueue.RetrainResult).Version)
		assert.Equal(t, 2, env.svc.Version())
	})

	t.Run("ListBySource", func(t *testing.T) {
		first, err := env.svc.EnqueueRetrain(ctx, trainingDocs(), "monthly.csv")
		require.NoError(t, err)
		time.Sleep(5 * time.Millisecond)
		second, err := env.svc.EnqueueRetrain(ctx, trainingDocs(), "monthly.csv")
		require.NoError(t, err)

		tasks, err := env.svc.ListTasks(ctx, "monthly.csv")
		require.NoError(t, err)
		require.Len(t, tasks, 2)
		assert.Equal(t, second, tasks[0].ID)
		assert.Equal(t, first, tasks[1].ID)

		tasks, err = env.svc.ListTasks(ctx, "unknown.csv")
		require.NoError(t, err)
		assert.Empty(t, tasks)
	})

	t.Run("Wait", func(t *testing.T) {
		taskID, err := env.svc.EnqueueRetrain(ctx, trainingDocs(), "wait.csv")
		require.NoError(t, err)

		// 超时返回当前状态而不是错误
		info, err := env.svc.WaitTask(ctx, taskID, 50*time.Millisecond)
		require.NoError(t, err)
		assert.Equal(t, taskqueue.StatusPending, info.Status)

		go func() {
			time.Sleep(100 * time.Millisecond)
			_ = queue.UpdateTaskStatus(ctx, taskID, taskqueue.StatusCompleted, nil, "")
			_ = queue.NotifyTaskUpdate(ctx, taskID)
		}()
		info, err = env.svc.WaitTask(ctx, taskID, 5*time.Second)
		require.NoError(t, err)
		assert.Equal(t, taskqueue.StatusCompleted, info.Status)

		_, err = env.svc.WaitTask(ctx, "missing", time.Second)
		assert.ErrorIs(t, err, taskqueue.ErrTaskNotFound)
	})
}

func TestCheckLabels(t *testing.T) {
	classes := []string{"0", "1"}
	assert.NoError(t, checkLabels(trainingDocs(), classes))
	assert.ErrorIs(t, checkLabels(nil, classes), models.ErrValidation)

	err := checkLabels([]models.Document{{Title: "a", Label: "1"}, {Title: "b"}}, classes)
	var stageErr *models.StageError
	require.True(t, errors.As(err, &stageErr))
	assert.Equal(t, 1, stageErr.Index)
	assert.True(t, strings.Contains(err.Error(), "label is required"))
}
