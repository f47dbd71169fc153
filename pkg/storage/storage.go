package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"
)

// ErrNotFound 对象不存在
var ErrNotFound = errors.New("object not found")

// ObjectInfo 对象元数据结构
type ObjectInfo struct {
	Key         string    // 对象键，使用 / 分隔
	Size        int64     // 对象大小(字节)
	ContentType string    // 内容类型
	ModTime     time.Time // 最后修改时间
}

// Storage 对象存储接口
// 定义按键存取二进制对象的基本操作，可以有不同实现(本地文件系统、MinIO等)
type Storage interface {
	// Put 写入对象，同一键的旧对象被整体替换
	Put(ctx context.Context, key string, reader io.Reader, size int64) (ObjectInfo, error)

	// Get 获取对象内容，对象不存在时返回 ErrNotFound
	Get(ctx context.Context, key string) (io.ReadCloser, error)

	// Delete 删除对象，对象不存在时返回 ErrNotFound
	Delete(ctx context.Context, key string) error

	// List 列出指定前缀下的所有对象
	List(ctx context.Context, prefix string) ([]ObjectInfo, error)

	// Exists 检查对象是否存在
	Exists(ctx context.Context, key string) (bool, error)
}

// Type 存储类型
type Type string

const (
	// TypeLocal 本地文件系统
	TypeLocal Type = "local"
	// TypeMinio MinIO / S3 兼容存储
	TypeMinio Type = "minio"
)

// Config 存储配置
type Config struct {
	Type  Type
	Local LocalConfig
	Minio MinioConfig
}

// Factory 存储实现的工厂函数
// 用于根据配置创建不同类型的存储实现
type Factory func(cfg Config) (Storage, error)

var factories = map[Type]Factory{
	TypeLocal: func(cfg Config) (Storage, error) { return NewLocalStorage(cfg.Local) },
	TypeMinio: func(cfg Config) (Storage, error) { return NewMinioStorage(cfg.Minio) },
}

// New 根据配置创建存储实例
func New(cfg Config) (Storage, error) {
	factory, ok := factories[cfg.Type]
	if !ok {
		return nil, fmt.Errorf("unsupported storage type: %s", cfg.Type)
	}
	return factory(cfg)
}

// cleanKey 规范化对象键，拒绝空键与越界路径
func cleanKey(key string) (string, error) {
	if key == "" {
		return "", fmt.Errorf("object key is empty")
	}
	cleaned := path.Clean("/" + strings.ReplaceAll(key, "\\", "/"))[1:]
	if cleaned == "" || cleaned != strings.TrimPrefix(key, "/") {
		return "", fmt.Errorf("invalid object key: %q", key)
	}
	return cleaned, nil
}

// getMimeType 简单根据对象键的扩展名判断内容类型
func getMimeType(key string) string {
	switch strings.ToLower(path.Ext(key)) {
	case ".json":
		return "application/json"
	case ".csv":
		return "text/csv"
	case ".txt", "":
		return "text/plain"
	case ".yaml", ".yml":
		return "application/yaml"
	default:
		return "application/octet-stream"
	}
}
