package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// LocalStorage 本地文件存储实现
type LocalStorage struct {
	basePath string // 基础存储路径
}

// LocalConfig 本地存储配置
type LocalConfig struct {
	Path string // 本地存储路径
}

// NewLocalStorage 创建本地存储实例
func NewLocalStorage(cfg LocalConfig) (*LocalStorage, error) {
	// 确保路径是绝对路径
	absPath, err := filepath.Abs(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve absolute path: %v", err)
	}

	// 确保目录存在
	if err := os.MkdirAll(absPath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %v", err)
	}

	return &LocalStorage{
		basePath: absPath,
	}, nil
}

// Put 写入对象
// 先写入同目录下的临时文件再重命名，读者不会看到写了一半的对象
func (s *LocalStorage) Put(ctx context.Context, key string, reader io.Reader, size int64) (ObjectInfo, error) {
	filePath, key, err := s.resolve(key)
	if err != nil {
		return ObjectInfo{}, err
	}
	if err := ctx.Err(); err != nil {
		return ObjectInfo{}, err
	}

	dir := filepath.Dir(filePath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return ObjectInfo{}, fmt.Errorf("failed to create directory: %v", err)
	}

	tmp, err := os.CreateTemp(dir, ".tmp-"+filepath.Base(filePath)+"-*")
	if err != nil {
		return ObjectInfo{}, fmt.Errorf("failed to create temp file: %v", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // 重命名成功后为空操作

	written, err := io.Copy(tmp, reader)
	if err == nil && size >= 0 && written != size {
		err = fmt.Errorf("short write: %d of %d bytes", written, size)
	}
	if err == nil {
		err = tmp.Sync()
	}
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return ObjectInfo{}, fmt.Errorf("failed to write file: %v", err)
	}

	if err := os.Rename(tmpName, filePath); err != nil {
		return ObjectInfo{}, fmt.Errorf("failed to commit file: %v", err)
	}

	info, err := os.Stat(filePath)
	if err != nil {
		return ObjectInfo{}, fmt.Errorf("failed to stat file: %v", err)
	}
	return ObjectInfo{
		Key:         key,
		Size:        info.Size(),
		ContentType: getMimeType(key),
		ModTime:     info.ModTime(),
	}, nil
}

// Get 获取对象内容
func (s *LocalStorage) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	filePath, key, err := s.resolve(key)
	if err != nil {
		return nil, err
	}

	file, err := os.Open(filePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return nil, fmt.Errorf("failed to open file: %v", err)
	}
	return file, nil
}

// Delete 删除对象
func (s *LocalStorage) Delete(ctx context.Context, key string) error {
	filePath, key, err := s.resolve(key)
	if err != nil {
		return err
	}

	if err := os.Remove(filePath); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return fmt.Errorf("failed to delete file: %v", err)
	}
	return nil
}

// List 列出指定前缀下的所有对象，按键排序
func (s *LocalStorage) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	var objects []ObjectInfo

	err := filepath.WalkDir(s.basePath, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		// 跳过目录与写入中的临时文件
		if d.IsDir() || strings.HasPrefix(d.Name(), ".tmp-") {
			return nil
		}

		relPath, err := filepath.Rel(s.basePath, p)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(relPath)
		if !strings.HasPrefix(key, prefix) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		objects = append(objects, ObjectInfo{
			Key:         key,
			Size:        info.Size(),
			ContentType: getMimeType(key),
			ModTime:     info.ModTime(),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list files: %v", err)
	}

	sort.Slice(objects, func(i, j int) bool { return objects[i].Key < objects[j].Key })
	return objects, nil
}

// Exists 检查对象是否存在
func (s *LocalStorage) Exists(ctx context.Context, key string) (bool, error) {
	filePath, _, err := s.resolve(key)
	if err != nil {
		return false, err
	}

	info, err := os.Stat(filePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	return !info.IsDir(), nil
}

// resolve 将对象键转换为本地文件路径
func (s *LocalStorage) resolve(key string) (string, string, error) {
	cleaned, err := cleanKey(key)
	if err != nil {
		return "", "", err
	}
	return filepath.Join(s.basePath, filepath.FromSlash(cleaned)), cleaned, nil
}
