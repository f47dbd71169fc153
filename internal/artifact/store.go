package artifact

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/fyerfyer/news-classifier/internal/models"
	"github.com/fyerfyer/news-classifier/internal/pipeline"
	"github.com/fyerfyer/news-classifier/pkg/storage"
	"github.com/sirupsen/logrus"
)

// ErrNoArtifact 存储中还没有任何模型制品
var ErrNoArtifact = fmt.Errorf("%w: no model artifact found", models.ErrPersistence)

// latestKey 指向当前制品的指针对象名
const latestKey = "LATEST"

// Store 模型制品存储
//
// 布局：<prefix>/model-v000001.bin、<prefix>/model-v000002.bin … 以及 <prefix>/LATEST。
// 保存时先写入新版本的制品，再替换 LATEST；任一步失败时旧的 LATEST 仍然有效
type Store struct {
	storage     storage.Storage
	prefix      string
	keep        int
	expectedDim int
	logger      *logrus.Logger
}

// StoreOption 制品存储配置选项
type StoreOption func(*Store)

// WithPrefix 设置对象键前缀
func WithPrefix(prefix string) StoreOption {
	return func(s *Store) {
		s.prefix = strings.Trim(prefix, "/")
	}
}

// WithKeep 设置保留的历史版本数，0表示全部保留
func WithKeep(keep int) StoreOption {
	return func(s *Store) {
		if keep >= 0 {
			s.keep = keep
		}
	}
}

// WithExpectedDim 设置加载时要求的特征维度
func WithExpectedDim(dim int) StoreOption {
	return func(s *Store) {
		s.expectedDim = dim
	}
}

// WithLogger 设置日志记录器
func WithLogger(logger *logrus.Logger) StoreOption {
	return func(s *Store) {
		s.logger = logger
	}
}

// NewStore 创建制品存储
func NewStore(st storage.Storage, opts ...StoreOption) *Store {
	s := &Store{
		storage: st,
		prefix:  "model",
		keep:    5,
		logger:  logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Save 保存流水线为指定版本
func (s *Store) Save(ctx context.Context, p *pipeline.Pipeline, version int) error {
	if version <= 0 {
		return models.NewValidationError("artifact version must be positive, got %d", version)
	}

	data, err := Marshal(FromPipeline(p, version))
	if err != nil {
		return fmt.Errorf("%w: %v", models.ErrPersistence, err)
	}

	blob := blobName(version)
	if _, err := s.storage.Put(ctx, s.key(blob), bytes.NewReader(data), int64(len(data))); err != nil {
		return fmt.Errorf("%w: write %s: %v", models.ErrPersistence, blob, err)
	}
	if _, err := s.storage.Put(ctx, s.key(latestKey), strings.NewReader(blob), int64(len(blob))); err != nil {
		return fmt.Errorf("%w: update %s: %v", models.ErrPersistence, latestKey, err)
	}

	s.logger.WithFields(logrus.Fields{
		"version": version,
		"key":     s.key(blob),
		"bytes":   len(data),
	}).Info("Model artifact saved")

	s.prune(ctx, version)
	return nil
}

// Load 加载 LATEST 指向的流水线及其版本
func (s *Store) Load(ctx context.Context) (*pipeline.Pipeline, int, error) {
	a, err := s.LoadArtifact(ctx)
	if err != nil {
		return nil, 0, err
	}

	if s.expectedDim > 0 && a.Config.NFeatures != s.expectedDim {
		return nil, 0, models.NewValidationError("artifact v%d has dimension %d, configured hasher uses %d",
			a.Version, a.Config.NFeatures, s.expectedDim)
	}

	p, err := a.Pipeline()
	if err != nil {
		return nil, 0, err
	}
	return p, a.Version, nil
}

// LoadArtifact 读取并解码 LATEST 指向的制品
func (s *Store) LoadArtifact(ctx context.Context) (Artifact, error) {
	blob, err := s.latest(ctx)
	if err != nil {
		return Artifact{}, err
	}
	return s.LoadVersion(ctx, mustVersion(blob))
}

// LoadVersion 读取并解码指定版本的制品
func (s *Store) LoadVersion(ctx context.Context, version int) (Artifact, error) {
	blob := blobName(version)
	reader, err := s.storage.Get(ctx, s.key(blob))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return Artifact{}, fmt.Errorf("%w: %s is missing", models.ErrPersistence, blob)
		}
		return Artifact{}, fmt.Errorf("%w: read %s: %v", models.ErrPersistence, blob, err)
	}
	defer reader.Close()

	a, err := Decode(reader)
	if err != nil {
		return Artifact{}, fmt.Errorf("%w: %s is corrupt: %v", models.ErrPersistence, blob, err)
	}
	if a.Version != version {
		return Artifact{}, fmt.Errorf("%w: %s embeds version %d", models.ErrPersistence, blob, a.Version)
	}
	return a, nil
}

// Exists 是否已有可用的制品
func (s *Store) Exists(ctx context.Context) (bool, error) {
	exists, err := s.storage.Exists(ctx, s.key(latestKey))
	if err != nil {
		return false, fmt.Errorf("%w: %v", models.ErrPersistence, err)
	}
	return exists, nil
}

// Versions 列出存储中所有制品版本（升序）
func (s *Store) Versions(ctx context.Context) ([]int, error) {
	objects, err := s.storage.List(ctx, s.key(""))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrPersistence, err)
	}

	var versions []int
	for _, obj := range objects {
		name := strings.TrimPrefix(obj.Key, s.key(""))
		if v, ok := parseBlobName(name); ok {
			versions = append(versions, v)
		}
	}
	sort.Ints(versions)
	return versions, nil
}

// latest 读取 LATEST 指针
func (s *Store) latest(ctx context.Context) (string, error) {
	reader, err := s.storage.Get(ctx, s.key(latestKey))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return "", ErrNoArtifact
		}
		return "", fmt.Errorf("%w: read %s: %v", models.ErrPersistence, latestKey, err)
	}
	defer reader.Close()

	data, err := io.ReadAll(io.LimitReader(reader, 256))
	if err != nil {
		return "", fmt.Errorf("%w: read %s: %v", models.ErrPersistence, latestKey, err)
	}
	blob := strings.TrimSpace(string(data))
	if _, ok := parseBlobName(blob); !ok {
		return "", fmt.Errorf("%w: %s points to invalid blob %q", models.ErrPersistence, latestKey, blob)
	}
	return blob, nil
}

// prune 删除超出保留数量的旧版本，失败只记录日志
func (s *Store) prune(ctx context.Context, current int) {
	if s.keep <= 0 {
		return
	}

	versions, err := s.Versions(ctx)
	if err != nil {
		s.logger.WithError(err).Warn("Failed to list artifacts for pruning")
		return
	}

	kept := 0
	for i := len(versions) - 1; i >= 0; i-- {
		v := versions[i]
		if v > current {
			continue
		}
		kept++
		if kept <= s.keep {
			continue
		}
		if err := s.storage.Delete(ctx, s.key(blobName(v))); err != nil {
			s.logger.WithError(err).WithField("version", v).Warn("Failed to prune artifact")
			continue
		}
		s.logger.WithField("version", v).Debug("Pruned old artifact")
	}
}

func (s *Store) key(name string) string {
	if s.prefix == "" {
		return name
	}
	return s.prefix + "/" + name
}

var blobPattern = regexp.MustCompile(`^model-v(\d{6,})\.bin$`)

func blobName(version int) string {
	return fmt.Sprintf("model-v%06d.bin", version)
}

func parseBlobName(name string) (int, bool) {
	m := blobPattern.FindStringSubmatch(name)
	if m == nil {
		return 0, false
	}
	v, err := strconv.Atoi(m[1])
	if err != nil || v <= 0 {
		return 0, false
	}
	return v, true
}

// mustVersion 解析已校验过的制品名
func mustVersion(blob string) int {
	v, _ := parseBlobName(blob)
	return v
}
