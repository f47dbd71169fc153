package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fyerfyer/news-classifier/api"
	"github.com/fyerfyer/news-classifier/api/handler"
	"github.com/fyerfyer/news-classifier/api/middleware"
	"github.com/fyerfyer/news-classifier/config"
	"github.com/fyerfyer/news-classifier/internal/app"
	"github.com/fyerfyer/news-classifier/internal/database"
	"github.com/fyerfyer/news-classifier/internal/services"
	"github.com/fyerfyer/news-classifier/pkg/taskqueue"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// 命令行参数
type options struct {
	ConfigFile string // 配置文件路径
	Port       int    // 服务端口，0表示使用配置文件
	Mode       string // 运行模式 (debug/release)，空表示使用配置文件
	LogLevel   string // 日志级别，空表示使用配置文件
}

func main() {
	// .env 中的变量在解析配置前生效
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("Warning: Failed to load .env file: %v", err)
	}

	opts := parseFlags()

	cfg, err := config.Load(opts.ConfigFile)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	applyFlags(cfg, opts)

	// 设置Gin模式
	gin.SetMode(cfg.Server.Mode)

	// 初始化日志，HTTP中间件共用同一个记录器
	logger := app.NewLogger(cfg.Log, opts.LogLevel)
	middleware.SetLogger(logger)
	logger.Info("Starting news classifier...")

	// 初始化数据库
	runs, err := app.SetupRunRepository(cfg, logger)
	if err != nil {
		logger.Fatalf("Failed to initialize database: %v", err)
	}
	defer database.Close()

	// 创建制品存储
	blobStorage, err := app.NewStorage(cfg)
	if err != nil {
		logger.Fatalf("Failed to initialize storage: %v", err)
	}
	store := app.NewArtifactStore(blobStorage, cfg, logger)

	// 创建缓存服务
	predictionCache, err := app.NewPredictionCache(cfg)
	if err != nil {
		logger.Fatalf("Failed to initialize cache: %v", err)
	}

	serviceOptions := []services.ClassifierOption{
		services.WithLogger(logger),
		services.WithRunRepository(runs),
	}
	if predictionCache != nil {
		serviceOptions = append(serviceOptions, services.WithPredictionCache(predictionCache))
	}

	// 初始化任务队列（如果启用）
	var queue taskqueue.Queue
	if cfg.Queue.Enable {
		queue, err = setupTaskQueue(cfg, logger)
		if err != nil {
			logger.Fatalf("Failed to initialize task queue: %v", err)
		}
		defer queue.Close()
		serviceOptions = append(serviceOptions, services.WithRetrainQueue(queue))
		logger.Info("Task queue initialized successfully")
	}

	svc := services.NewClassifierService(store, serviceOptions...)

	// 加载模型，缺失、损坏或维度不一致都无法提供服务
	loadCtx, cancelLoad := context.WithTimeout(context.Background(), time.Minute)
	err = svc.Load(loadCtx)
	cancelLoad()
	if err != nil {
		logger.Fatalf("Failed to load model artifact (run cmd/bootstrap first): %v", err)
	}

	// 启动再训练工作者
	if queue != nil {
		worker, err := setupWorker(queue, cfg, svc, logger)
		if err != nil {
			logger.Fatalf("Failed to start retrain worker: %v", err)
		}
		defer worker.Stop()
	}

	// 设置路由
	r := api.SetupRouter(
		handler.NewClassifierHandler(svc),
		handler.NewTaskHandler(svc),
	)

	// 启动HTTP服务器
	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// 优雅关闭
	go func() {
		logger.WithFields(logrus.Fields{
			"addr":    srv.Addr,
			"version": svc.Version(),
		}).Info("Server is running")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("Failed to start server: %v", err)
		}
	}()

	// 等待终止信号
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	// 创建带超时的上下文
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// 优雅关闭服务器
	if err := srv.Shutdown(ctx); err != nil {
		logger.Errorf("Server forced to shutdown: %v", err)
	}

	logger.Info("Server exited")
}

// parseFlags 解析命令行参数
func parseFlags() options {
	opts := options{}

	flag.StringVar(&opts.ConfigFile, "config", "config.yaml", "Path to config file")
	flag.IntVar(&opts.Port, "port", 0, "Server port (overrides config)")
	flag.StringVar(&opts.Mode, "mode", "", "Run mode debug/release (overrides config)")
	flag.StringVar(&opts.LogLevel, "log-level", "", "Log level debug/info/warn/error (overrides config)")

	flag.Parse()
	return opts
}

// applyFlags 用命令行上明确设置的参数覆盖配置文件
func applyFlags(cfg *config.Config, opts options) {
	if opts.Port > 0 {
		cfg.Server.Port = opts.Port
	}
	if opts.Mode != "" {
		cfg.Server.Mode = opts.Mode
	}
}

// setupTaskQueue 设置任务队列
func setupTaskQueue(cfg *config.Config, logger *logrus.Logger) (taskqueue.Queue, error) {
	queueConfig := cfg.QueueConfig()

	logger.WithFields(logrus.Fields{
		"redis_addr":  queueConfig.RedisAddr,
		"concurrency": queueConfig.Concurrency,
		"retry_limit": queueConfig.RetryLimit,
	}).Info("Setting up task queue")

	queue, err := taskqueue.NewQueue("redis", queueConfig)
	if err != nil {
		return nil, err
	}
	if rq, ok := queue.(*taskqueue.RedisQueue); ok {
		rq.SetLogger(logger)
	}
	return queue, nil
}

// setupWorker 注册再训练处理器并启动工作者
func setupWorker(queue taskqueue.Queue, cfg *config.Config, svc *services.ClassifierService, logger *logrus.Logger) (taskqueue.Worker, error) {
	rq, ok := queue.(*taskqueue.RedisQueue)
	if !ok {
		return nil, fmt.Errorf("unsupported queue implementation %T", queue)
	}

	worker := taskqueue.NewRedisWorker(rq, cfg.QueueConfig())
	worker.RegisterHandler(taskqueue.TaskRetrain, taskqueue.NewRetrainHandler(svc, logger))
	if err := worker.Start(); err != nil {
		return nil, err
	}

	logger.Info("Retrain worker started")
	return worker, nil
}
