package storage

import (
	"context"
	"errors"
	"io"

	"gitdb/pkg/core"
	"gitdb/pkg/types"
)

var (
	ErrNotFound       = errors.New("object not found")
	ErrAmbiguousHash  = errors.New("ambiguous hash prefix")
	ErrPrefixTooShort = errors.New("hash prefix too short")
)

// MinPrefixLen 是 ExpandHash 接受的最短前缀
const MinPrefixLen = 4

// Store defines the interface for a storage backend.
// Implementations can be local disk, cloud storage, or in-memory storage.
// Store 是只追加的：Put 幂等，已存在的对象永远不会被覆盖。
type Store interface {
	// Put 将一个核心对象持久化
	// 它不需要返回 Hash，因为 Hash 已经在 core.Object 里了
	Put(ctx context.Context, obj core.Object) error

	// Get 根据 Hash 读取原始数据
	Get(ctx context.Context, hash types.Hash) (io.ReadCloser, error)

	// Has 检查对象是否存在 (用于去重逻辑)
	Has(ctx context.Context, hash types.Hash) (bool, error)

	// ExpandHash 把短哈希扩展为完整哈希
	ExpandHash(ctx context.Context, short types.HashPrefix) (types.Hash, error)
}
