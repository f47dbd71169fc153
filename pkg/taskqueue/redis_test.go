package taskqueue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/fyerfyer/news-classifier/internal/models"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupRedisTest 设置一个miniredis实例用于测试
// 返回Redis地址和一个清理函数
func setupRedisTest(t *testing.T) (string, func()) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to create miniredis: %v", err)
	}

	return mr.Addr(), func() {
		mr.Close()
	}
}

// newTestQueue 创建连接到miniredis的队列
func newTestQueue(t *testing.T) (*RedisQueue, func()) {
	redisAddr, cleanup := setupRedisTest(t)

	cfg := &Config{
		RedisAddr:   redisAddr,
		Concurrency: 1,
		RetryLimit:  2,
		RetryDelay:  time.Second,
	}

	queue, err := NewRedisQueue(cfg)
	require.NoError(t, err)

	return queue.(*RedisQueue), func() {
		queue.Close()
		cleanup()
	}
}

func retrainPayload() *RetrainPayload {
	return &RetrainPayload{
		Documents: []models.Document{
			{Title: "Gobierno anuncia medidas", Body: "El gobierno anunció nuevas medidas", Label: "0"},
			{Title: "Extraterrestres en el congreso", Body: "Un ovni aterrizó en la cámara", Label: "1"},
		},
	}
}

// TestNewRedisQueue 测试创建Redis队列实例
func TestNewRedisQueue(t *testing.T) {
	redisAddr, cleanup := setupRedisTest(t)
	defer cleanup()

	queue, err := NewRedisQueue(&Config{RedisAddr: redisAddr, Concurrency: 1})
	assert.NoError(t, err)
	assert.NotNil(t, queue)

	rq := queue.(*RedisQueue)
	assert.Equal(t, defaultTaskExpiry, rq.cfg.TaskExpiry)

	err = queue.Close()
	assert.NoError(t, err)
}

// TestNewRedisQueue_Unavailable 测试Redis不可用时创建失败
func TestNewRedisQueue_Unavailable(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	addr := mr.Addr()
	mr.Close()

	_, err = NewRedisQueue(&Config{RedisAddr: addr})
	assert.Error(t, err)
}

// TestRedisQueue_Enqueue 测试队列入队功能
func TestRedisQueue_Enqueue(t *testing.T) {
	queue, cleanup := newTestQueue(t)
	defer cleanup()

	ctx := context.Background()
	taskID, err := queue.Enqueue(ctx, TaskRetrain, "upload.csv", retrainPayload())
	assert.NoError(t, err)
	assert.NotEmpty(t, taskID)

	task, err := queue.GetTask(ctx, taskID)
	require.NoError(t, err)
	assert.Equal(t, taskID, task.ID)
	assert.Equal(t, TaskRetrain, task.Type)
	assert.Equal(t, "upload.csv", task.Source)
	assert.Equal(t, StatusPending, task.Status)
	assert.Equal(t, 2, task.MaxRetries)

	var payload RetrainPayload
	require.NoError(t, UnmarshalPayload(task.Payload, &payload))
	assert.Len(t, payload.Documents, 2)
	assert.Equal(t, "1", payload.Documents[1].Label)
}

// TestRedisQueue_GetTask_NotFound 测试获取不存在的任务
func TestRedisQueue_GetTask_NotFound(t *testing.T) {
	queue, cleanup := newTestQueue(t)
	defer cleanup()

	_, err := queue.GetTask(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrTaskNotFound)
}

// TestRedisQueue_GetTasksBySource 测试获取同一来源的任务
func TestRedisQueue_GetTasksBySource(t *testing.T) {
	queue, cleanup := newTestQueue(t)
	defer cleanup()

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, err := queue.Enqueue(ctx, TaskRetrain, "weekly.csv", retrainPayload())
		require.NoError(t, err)
	}
	_, err := queue.Enqueue(ctx, TaskRetrain, "api", retrainPayload())
	require.NoError(t, err)

	tasks, err := queue.GetTasksBySource(ctx, "weekly.csv")
	assert.NoError(t, err)
	assert.Len(t, tasks, 3)
	for _, task := range tasks {
		assert.Equal(t, "weekly.csv", task.Source)
	}

	emptyTasks, err := queue.GetTasksBySource(ctx, "non-existent")
	assert.NoError(t, err)
	assert.Empty(t, emptyTasks)
}

// TestRedisQueue_UpdateTaskStatus 测试更新任务状态
func TestRedisQueue_UpdateTaskStatus(t *testing.T) {
	queue, cleanup := newTestQueue(t)
	defer cleanup()

	ctx := context.Background()
	taskID, err := queue.Enqueue(ctx, TaskRetrain, "api", retrainPayload())
	require.NoError(t, err)

	err = queue.UpdateTaskStatus(ctx, taskID, StatusProcessing, nil, "")
	assert.NoError(t, err)

	task, err := queue.GetTask(ctx, taskID)
	require.NoError(t, err)
	assert.Equal(t, StatusProcessing, task.Status)
	assert.NotNil(t, task.StartedAt)
	assert.Equal(t, 1, task.Attempts)
	assert.Nil(t, task.CompletedAt)

	result := &RetrainResult{Version: 4, Samples: 2, Accuracy: 1, F1: 1}
	err = queue.UpdateTaskStatus(ctx, taskID, StatusCompleted, result, "")
	assert.NoError(t, err)

	task, err = queue.GetTask(ctx, taskID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, task.Status)
	assert.NotNil(t, task.CompletedAt)

	var stored RetrainResult
	require.NoError(t, UnmarshalPayload(task.Result, &stored))
	assert.Equal(t, 4, stored.Version)

	failTaskID, err := queue.Enqueue(ctx, TaskRetrain, "api", retrainPayload())
	require.NoError(t, err)

	errorMsg := "label 7 is not a known class"
	err = queue.UpdateTaskStatus(ctx, failTaskID, StatusFailed, nil, errorMsg)
	assert.NoError(t, err)

	failTask, err := queue.GetTask(ctx, failTaskID)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, failTask.Status)
	assert.Equal(t, errorMsg, failTask.Error)
	assert.NotNil(t, failTask.CompletedAt)
}

// TestRedisQueue_WaitForTask 测试等待任务完成
func TestRedisQueue_WaitForTask(t *testing.T) {
	queue, cleanup := newTestQueue(t)
	defer cleanup()

	ctx := context.Background()
	taskID, err := queue.Enqueue(ctx, TaskRetrain, "api", retrainPayload())
	require.NoError(t, err)

	t.Run("Timeout", func(t *testing.T) {
		_, err := queue.WaitForTask(ctx, taskID, 50*time.Millisecond)
		assert.ErrorIs(t, err, ErrTaskTimeout)
	})

	t.Run("Completed", func(t *testing.T) {
		go func() {
			time.Sleep(50 * time.Millisecond)
			queue.UpdateTaskStatus(ctx, taskID, StatusCompleted, &RetrainResult{Version: 2}, "")
			queue.NotifyTaskUpdate(ctx, taskID)
		}()

		task, err := queue.WaitForTask(ctx, taskID, 3*time.Second)
		require.NoError(t, err)
		assert.Equal(t, StatusCompleted, task.Status)
	})
}

// mockHandler 实现Handler接口，用于测试
type mockHandler struct {
	processFunc func(context.Context, *Task) (interface{}, error)
	taskTypes   []TaskType
}

func (h *mockHandler) ProcessTask(ctx context.Context, task *Task) (interface{}, error) {
	if h.processFunc != nil {
		return h.processFunc(ctx, task)
	}
	return nil, nil
}

func (h *mockHandler) GetTaskTypes() []TaskType {
	return h.taskTypes
}

// TestRedisWorker_Process 测试工作者对单个任务的状态流转
func TestRedisWorker_Process(t *testing.T) {
	queue, cleanup := newTestQueue(t)
	defer cleanup()

	ctx := context.Background()
	worker := NewRedisWorker(queue, nil).(*RedisWorker)

	t.Run("Success", func(t *testing.T) {
		taskID, err := queue.Enqueue(ctx, TaskRetrain, "api", retrainPayload())
		require.NoError(t, err)

		h := &mockHandler{
			processFunc: func(ctx context.Context, task *Task) (interface{}, error) {
				assert.Equal(t, StatusProcessing, mustStatus(t, queue, task.ID))
				return &RetrainResult{Version: 3, Samples: 2}, nil
			},
			taskTypes: []TaskType{TaskRetrain},
		}

		err = worker.process(ctx, h, taskID)
		assert.NoError(t, err)

		task, err := queue.GetTask(ctx, taskID)
		require.NoError(t, err)
		assert.Equal(t, StatusCompleted, task.Status)
		assert.Empty(t, task.Error)
		assert.JSONEq(t, `{"version":3,"samples":2,"accuracy":0,"f1":0}`, string(task.Result))
	})

	t.Run("ValidationFailureSkipsRetry", func(t *testing.T) {
		taskID, err := queue.Enqueue(ctx, TaskRetrain, "api", retrainPayload())
		require.NoError(t, err)

		h := &mockHandler{
			processFunc: func(ctx context.Context, task *Task) (interface{}, error) {
				return nil, models.NewValidationError("label %q is not a known class", "7")
			},
		}

		err = worker.process(ctx, h, taskID)
		assert.ErrorIs(t, err, asynq.SkipRetry)

		task, err := queue.GetTask(ctx, taskID)
		require.NoError(t, err)
		assert.Equal(t, StatusFailed, task.Status)
		assert.Contains(t, task.Error, "not a known class")
	})

	t.Run("TransientFailureRetries", func(t *testing.T) {
		taskID, err := queue.Enqueue(ctx, TaskRetrain, "api", retrainPayload())
		require.NoError(t, err)

		h := &mockHandler{
			processFunc: func(ctx context.Context, task *Task) (interface{}, error) {
				return nil, errors.New("storage unavailable")
			},
		}

		err = worker.process(ctx, h, taskID)
		assert.Error(t, err)
		assert.False(t, errors.Is(err, asynq.SkipRetry))
	})

	t.Run("MissingTask", func(t *testing.T) {
		err := worker.process(ctx, &mockHandler{}, "missing")
		assert.ErrorIs(t, err, asynq.SkipRetry)
	})
}

func mustStatus(t *testing.T, queue *RedisQueue, taskID string) TaskStatus {
	task, err := queue.GetTask(context.Background(), taskID)
	require.NoError(t, err)
	return task.Status
}

// TestNewQueue 测试队列工厂
func TestNewQueue(t *testing.T) {
	redisAddr, cleanup := setupRedisTest(t)
	defer cleanup()

	queue, err := NewQueue("redis", &Config{RedisAddr: redisAddr})
	require.NoError(t, err)
	queue.Close()

	_, err = NewQueue("kafka", nil)
	assert.Error(t, err)
}

// TestTaskInfo 测试TaskInfo生成
func TestTaskInfo(t *testing.T) {
	now := time.Now()
	startedAt := now.Add(-5 * time.Minute)
	completedAt := now.Add(-1 * time.Minute)

	task := &Task{
		ID:          "task-123",
		Type:        TaskRetrain,
		Source:      "weekly.csv",
		Status:      StatusCompleted,
		Result:      []byte(`{"version":2}`),
		CreatedAt:   now.Add(-10 * time.Minute),
		UpdatedAt:   now,
		StartedAt:   &startedAt,
		CompletedAt: &completedAt,
		Attempts:    1,
		MaxRetries:  3,
	}

	info := NewTaskInfo(task)

	assert.Equal(t, task.ID, info.ID)
	assert.Equal(t, task.Type, info.Type)
	assert.Equal(t, task.Source, info.Source)
	assert.Equal(t, task.Status, info.Status)
	assert.Equal(t, task.Result, info.Result)
	assert.Equal(t, task.StartedAt, info.StartedAt)
	assert.Equal(t, task.CompletedAt, info.CompletedAt)
	assert.Equal(t, 100.0, info.Progress)

	task.Status = StatusPending
	assert.Equal(t, 0.0, NewTaskInfo(task).Progress)
	assert.False(t, task.Status.Terminal())
}
