package disk

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gitdb/pkg/core"
	"gitdb/pkg/storage"
	"gitdb/pkg/types"
)

const tempPrefix = "temp-"

// Adapter 实现了 storage.Store 接口
type Adapter struct {
	rootPath string // 比如: /var/lib/gitdb/objects
}

// NewAdapter 创建一个新的磁盘存储适配器
func NewAdapter(root string) (*Adapter, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create root storage dir: %w", err)
	}
	return &Adapter{rootPath: root}, nil
}

// layout 返回哈希对应的物理路径
// 策略：使用前 2 个字符作为子目录 (Sharding)
// Example: hash "aabbcc..." -> root/aa/bbcc...
func (s *Adapter) layout(hash types.Hash) string {
	h := string(hash)
	if len(h) < 2 {
		return filepath.Join(s.rootPath, h)
	}
	return filepath.Join(s.rootPath, h[:2], h[2:])
}

func (s *Adapter) Put(ctx context.Context, obj core.Object) error {
	targetPath := s.layout(obj.ID())

	// 1. 检查是否存在 (幂等性)
	if _, err := os.Stat(targetPath); err == nil {
		return nil
	}

	dir := filepath.Dir(targetPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	// 2. 原子写入：先写临时文件再 Rename，读者要么看不到对象，要么看到完整对象
	tempFile, err := os.CreateTemp(dir, tempPrefix+"*")
	if err != nil {
		return err
	}
	defer os.Remove(tempFile.Name())

	if _, err := tempFile.Write(obj.Bytes()); err != nil {
		tempFile.Close()
		return err
	}
	if err := tempFile.Sync(); err != nil {
		tempFile.Close()
		return err
	}
	if err := tempFile.Close(); err != nil {
		return err
	}

	return os.Rename(tempFile.Name(), targetPath)
}

func (s *Adapter) Get(ctx context.Context, hash types.Hash) (io.ReadCloser, error) {
	f, err := os.Open(s.layout(hash))
	if os.IsNotExist(err) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return f, nil
}

func (s *Adapter) Has(ctx context.Context, hash types.Hash) (bool, error) {
	_, err := os.Stat(s.layout(hash))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

// ExpandHash 在分片目录里按前缀查找
func (s *Adapter) ExpandHash(ctx context.Context, short types.HashPrefix) (types.Hash, error) {
	prefix := string(short)
	if len(prefix) < storage.MinPrefixLen {
		return "", fmt.Errorf("%w: %q", storage.ErrPrefixTooShort, prefix)
	}

	entries, err := os.ReadDir(filepath.Join(s.rootPath, prefix[:2]))
	if os.IsNotExist(err) {
		return "", fmt.Errorf("%w: %s", storage.ErrNotFound, prefix)
	}
	if err != nil {
		return "", err
	}

	var found types.Hash
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, tempPrefix) || !strings.HasPrefix(name, prefix[2:]) {
			continue
		}
		if found != "" {
			return "", fmt.Errorf("%w: %s", storage.ErrAmbiguousHash, prefix)
		}
		found = types.Hash(prefix[:2] + name)
	}
	if found == "" {
		return "", fmt.Errorf("%w: %s", storage.ErrNotFound, prefix)
	}
	return found, nil
}
