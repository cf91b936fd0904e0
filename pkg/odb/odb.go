// Package odb 在 storage.Store 之上提供带类型的对象读写
package odb

import (
	"context"
	"errors"
	"fmt"
	"io"

	"gitdb/pkg/core"
	"gitdb/pkg/storage"
	"gitdb/pkg/types"
)

// DB 把原始字节存储包装成 Blob/Tree/Commit 的读写接口
// 底层的 ErrNotFound 统一映射为 types.ErrNotFound
type DB struct {
	store storage.Store
}

func New(store storage.Store) *DB {
	return &DB{store: store}
}

func (o *DB) Put(ctx context.Context, obj core.Object) error {
	if err := o.store.Put(ctx, obj); err != nil {
		return fmt.Errorf("failed to put %s %s: %w", obj.Type(), obj.ID().Short(), err)
	}
	return nil
}

func (o *DB) PutBlob(ctx context.Context, data []byte) (*core.Blob, error) {
	blob := core.NewBlob(data)
	if err := o.Put(ctx, blob); err != nil {
		return nil, err
	}
	return blob, nil
}

func (o *DB) PutTree(ctx context.Context, entries []core.TreeEntry) (*core.Tree, error) {
	tree, err := core.NewTree(entries)
	if err != nil {
		return nil, err
	}
	if err := o.Put(ctx, tree); err != nil {
		return nil, err
	}
	return tree, nil
}

func (o *DB) PutCommit(ctx context.Context, c *core.Commit) error {
	return o.Put(ctx, c)
}

// ReadRaw 读出对象的原始字节
func (o *DB) ReadRaw(ctx context.Context, hash types.Hash) ([]byte, error) {
	reader, err := o.store.Get(ctx, hash)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%w: object %s", types.ErrNotFound, hash)
		}
		return nil, fmt.Errorf("failed to get object %s: %w", hash, err)
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read object %s: %w", hash, err)
	}
	return data, nil
}

func (o *DB) GetBlob(ctx context.Context, hash types.Hash) (*core.Blob, error) {
	data, err := o.ReadRaw(ctx, hash)
	if err != nil {
		return nil, err
	}
	return core.NewBlob(data), nil
}

func (o *DB) GetTree(ctx context.Context, hash types.Hash) (*core.Tree, error) {
	data, err := o.ReadRaw(ctx, hash)
	if err != nil {
		return nil, err
	}
	tree, err := core.DecodeTree(data)
	if err != nil {
		return nil, fmt.Errorf("%w: tree %s: %v", types.ErrNotFound, hash, err)
	}
	return tree, nil
}

func (o *DB) GetCommit(ctx context.Context, hash types.Hash) (*core.Commit, error) {
	data, err := o.ReadRaw(ctx, hash)
	if err != nil {
		return nil, err
	}
	commit, err := core.DecodeCommit(data)
	if err != nil {
		return nil, fmt.Errorf("%w: commit %s: %v", types.ErrNotFound, hash, err)
	}
	return commit, nil
}

func (o *DB) Has(ctx context.Context, hash types.Hash) (bool, error) {
	return o.store.Has(ctx, hash)
}

// ExpandHash 把短 Hash 展开为完整 Hash，错误映射为领域错误
func (o *DB) ExpandHash(ctx context.Context, prefix types.HashPrefix) (types.Hash, error) {
	h, err := o.store.ExpandHash(ctx, prefix)
	switch {
	case err == nil:
		return h, nil
	case errors.Is(err, storage.ErrNotFound):
		return "", fmt.Errorf("%w: no object matches %q", types.ErrNotFound, prefix)
	case errors.Is(err, storage.ErrAmbiguousHash), errors.Is(err, storage.ErrPrefixTooShort):
		return "", fmt.Errorf("%w: %q: %v", types.ErrInvalidArgument, prefix, err)
	default:
		return "", err
	}
}

// EnsureRoot 写入空树与根提交，返回根提交的 Hash
// 重复调用是幂等的
func (o *DB) EnsureRoot(ctx context.Context) (types.Hash, error) {
	tree, commit, err := core.NewRootCommit()
	if err != nil {
		return "", err
	}
	if err := o.Put(ctx, tree); err != nil {
		return "", err
	}
	if err := o.Put(ctx, commit); err != nil {
		return "", err
	}
	return commit.ID(), nil
}
