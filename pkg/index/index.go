// Package index 是事务的暂存区：记录待写入与待删除的文档 Key
package index

import (
	"encoding/json"
	"fmt"
	"maps"
	"os"
	"slices"
	"sync"
	"time"

	"gitdb/pkg/types"
)

// Entry 代表暂存区中的一条记录
// Delete 为 true 时表示删除这个 Key，Hash 为空
type Entry struct {
	Key        string     `json:"key"`
	Hash       types.Hash `json:"hash,omitempty"` // 新内容的 Blob Hash
	Size       int64      `json:"size,omitempty"`
	Delete     bool       `json:"delete,omitempty"`
	ModifiedAt time.Time  `json:"modified_at"`
}

// Index 管理暂存区状态
// 同一个 Key 上最后一次操作生效：删除会覆盖之前的写入，写入会覆盖之前的删除。
type Index struct {
	path    string           // 持久化文件路径，为空时只存在于内存
	Base    types.Hash       `json:"base,omitempty"`
	Entries map[string]Entry `json:"entries"`
	mu      sync.RWMutex
}

// New 创建一个只存在于内存的暂存区
func New() *Index {
	return &Index{Entries: make(map[string]Entry)}
}

// NewIndex 加载或创建一个持久化到 indexPath 的暂存区
func NewIndex(indexPath string) (*Index, error) {
	idx := New()
	idx.path = indexPath

	if _, err := os.Stat(indexPath); err == nil {
		data, err := os.ReadFile(indexPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read index: %w", err)
		}
		if err := json.Unmarshal(data, idx); err != nil {
			return nil, fmt.Errorf("corrupted index file: %w", err)
		}
		if idx.Entries == nil {
			idx.Entries = make(map[string]Entry)
		}
	} else if !os.IsNotExist(err) {
		return nil, err
	}

	return idx, nil
}

// Add 暂存一次写入，key 必须已经规范化
func (i *Index) Add(key string, hash types.Hash, size int64) {
	i.mu.Lock()
	defer i.mu.Unlock()

	i.Entries[key] = Entry{
		Key:        key,
		Hash:       hash,
		Size:       size,
		ModifiedAt: time.Now(),
	}
}

// Delete 暂存一次删除
func (i *Index) Delete(key string) {
	i.mu.Lock()
	defer i.mu.Unlock()

	i.Entries[key] = Entry{
		Key:        key,
		Delete:     true,
		ModifiedAt: time.Now(),
	}
}

// Unstage 丢弃某个 Key 上暂存的操作
func (i *Index) Unstage(key string) {
	i.mu.Lock()
	defer i.mu.Unlock()
	delete(i.Entries, key)
}

// Save 将暂存区持久化到磁盘，内存暂存区什么都不做
func (i *Index) Save() error {
	if i.path == "" {
		return nil
	}

	i.mu.RLock()
	defer i.mu.RUnlock()

	data, err := json.MarshalIndent(i, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(i.path, data, 0644)
}

// Snapshot 返回当前 Entry 的副本，用于并发安全的读取
func (i *Index) Snapshot() map[string]Entry {
	i.mu.RLock()
	defer i.mu.RUnlock()

	snap := make(map[string]Entry, len(i.Entries))
	maps.Copy(snap, i.Entries)
	return snap
}

// Keys 返回排序后的暂存 Key
func (i *Index) Keys() []string {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return slices.Sorted(maps.Keys(i.Entries))
}

func (i *Index) Reset() {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.Base = ""
	i.Entries = make(map[string]Entry)
}

func (i *Index) IsEmpty() bool {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return len(i.Entries) == 0
}
