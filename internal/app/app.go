// Package app 组装服务进程与引导脚本共用的基础组件
package app

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fyerfyer/news-classifier/config"
	"github.com/fyerfyer/news-classifier/internal/artifact"
	"github.com/fyerfyer/news-classifier/internal/cache"
	"github.com/fyerfyer/news-classifier/internal/database"
	"github.com/fyerfyer/news-classifier/internal/pipeline"
	"github.com/fyerfyer/news-classifier/internal/repository"
	"github.com/fyerfyer/news-classifier/internal/textproc"
	"github.com/fyerfyer/news-classifier/pkg/storage"
	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// NewLogger 按配置创建日志记录器
// level非空时覆盖配置文件中的级别；配置了日志文件时同时写入标准输出和滚动文件
func NewLogger(cfg config.LogConfig, level string) *logrus.Logger {
	logger := logrus.New()

	if level == "" {
		level = cfg.Level
	}
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	logger.SetLevel(lvl)

	if strings.EqualFold(cfg.Format, "text") {
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: time.RFC3339,
		})
	} else {
		logger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: time.RFC3339,
		})
	}

	var out io.Writer = os.Stdout
	if cfg.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.File), 0755); err != nil {
			logger.WithError(err).Warn("Failed to create log directory, logging to stdout only")
		} else {
			out = io.MultiWriter(os.Stdout, &lumberjack.Logger{
				Filename:   cfg.File,
				MaxSize:    cfg.MaxSizeMB,
				MaxBackups: cfg.MaxBackups,
				MaxAge:     cfg.MaxAgeDays,
				Compress:   true,
			})
		}
	}
	logger.SetOutput(out)

	return logger
}

// NewStorage 创建模型制品所在的对象存储
func NewStorage(cfg *config.Config) (storage.Storage, error) {
	sc := cfg.StorageConfig()
	if sc.Type == storage.TypeLocal {
		// 确保存储目录存在
		if err := os.MkdirAll(sc.Local.Path, 0755); err != nil {
			return nil, fmt.Errorf("failed to create storage directory: %v", err)
		}
	}
	return storage.New(sc)
}

// NewArtifactStore 创建模型制品存储
func NewArtifactStore(st storage.Storage, cfg *config.Config, logger *logrus.Logger) *artifact.Store {
	return artifact.NewStore(st,
		artifact.WithPrefix(cfg.Artifact.Prefix),
		artifact.WithKeep(cfg.Artifact.Keep),
		artifact.WithExpectedDim(cfg.Model.NFeatures),
		artifact.WithLogger(logger),
	)
}

// NewPipeline 按配置创建未训练的流水线，配置了词典文件时一并加载
func NewPipeline(cfg *config.Config, logger *logrus.Logger) (*pipeline.Pipeline, error) {
	var opts []pipeline.Option
	if cfg.Model.LexiconPath != "" {
		lex, err := textproc.LoadLexicon(cfg.Model.LexiconPath)
		if err != nil {
			return nil, err
		}
		logger.WithFields(logrus.Fields{
			"path":  cfg.Model.LexiconPath,
			"forms": len(lex),
		}).Info("Lemma lexicon loaded")
		opts = append(opts, pipeline.WithLexicon(lex))
	}
	return pipeline.New(cfg.PipelineConfig(), opts...)
}

// SetupRunRepository 初始化数据库并返回训练记录仓储
func SetupRunRepository(cfg *config.Config, logger *logrus.Logger) (repository.TrainingRunRepository, error) {
	if err := database.Setup(cfg.DatabaseConfig(), logger); err != nil {
		return nil, err
	}
	return repository.NewTrainingRunRepository(), nil
}

// NewPredictionCache 创建预测结果缓存，未启用时返回nil
func NewPredictionCache(cfg *config.Config) (*cache.PredictionCache, error) {
	if !cfg.Cache.Enable {
		return nil, nil
	}
	cc := cfg.CacheConfig()
	c, err := cache.NewCache(cc)
	if err != nil {
		return nil, err
	}
	return cache.NewPredictionCache(c, cc.DefaultTTL), nil
}
