package memory

import (
	"bytes"
	"context"
	"io"
	"strings"
	"sync"

	"gitdb/pkg/core"
	"gitdb/pkg/storage"
	"gitdb/pkg/types"
)

// Adapter 是纯内存的 storage.Store 实现，用于测试和临时仓库
type Adapter struct {
	mu      sync.RWMutex
	objects map[types.Hash][]byte
}

func NewAdapter() *Adapter {
	return &Adapter{objects: make(map[types.Hash][]byte)}
}

func (s *Adapter) Put(ctx context.Context, obj core.Object) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.objects[obj.ID()]; ok {
		return nil
	}
	// 拷贝一份，调用方之后修改切片不会影响已存对象
	s.objects[obj.ID()] = bytes.Clone(obj.Bytes())
	return nil
}

func (s *Adapter) Get(ctx context.Context, hash types.Hash) (io.ReadCloser, error) {
	s.mu.RLock()
	data, ok := s.objects[hash]
	s.mu.RUnlock()
	if !ok {
		return nil, storage.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (s *Adapter) Has(ctx context.Context, hash types.Hash) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.objects[hash]
	return ok, nil
}

func (s *Adapter) ExpandHash(ctx context.Context, short types.HashPrefix) (types.Hash, error) {
	prefix := string(short)
	if len(prefix) < storage.MinPrefixLen {
		return "", storage.ErrPrefixTooShort
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var found types.Hash
	for h := range s.objects {
		if !strings.HasPrefix(string(h), prefix) {
			continue
		}
		if found != "" {
			return "", storage.ErrAmbiguousHash
		}
		found = h
	}
	if found == "" {
		return "", storage.ErrNotFound
	}
	return found, nil
}

// Len 返回对象数量
func (s *Adapter) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.objects)
}
