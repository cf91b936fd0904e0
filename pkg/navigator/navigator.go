// Package navigator 在某个提交的目录树快照里按 Key 读取文档
package navigator

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"gitdb/pkg/core"
	"gitdb/pkg/odb"
	"gitdb/pkg/types"
)

// Navigator 只读，不持有任何状态，可以与任何写操作并发使用
type Navigator struct {
	objects *odb.DB
}

func New(objects *odb.DB) *Navigator {
	return &Navigator{objects: objects}
}

// Entry 是扁平化后的一个文档：Key 与 Blob Hash
type Entry struct {
	Key  string
	Hash types.Hash
	Size int64
}

// Get 读取 commit 快照中 key 对应的文档内容
func (n *Navigator) Get(ctx context.Context, commit types.Hash, key string) ([]byte, error) {
	hash, err := n.Stat(ctx, commit, key)
	if err != nil {
		return nil, err
	}
	blob, err := n.objects.GetBlob(ctx, hash)
	if err != nil {
		return nil, err
	}
	return blob.Bytes(), nil
}

// Stat 返回 key 处文档的 Blob Hash，不读取内容
// key 缺失或指向目录时返回 ErrNotFound
func (n *Navigator) Stat(ctx context.Context, commit types.Hash, key string) (types.Hash, error) {
	key, err := types.CleanKey(key)
	if err != nil {
		return "", err
	}
	rootTree, err := n.RootTree(ctx, commit)
	if err != nil {
		return "", err
	}
	entry, err := n.lookup(ctx, rootTree, key)
	if err != nil {
		return "", err
	}
	if entry.IsTree() {
		return "", fmt.Errorf("%w: %q is a folder", types.ErrNotFound, key)
	}
	return entry.Hash.Hash, nil
}

// GetFiles 递归列出 prefix 目录下所有文档的 Key (排序)
// prefix 指向一个文档时返回它自己
func (n *Navigator) GetFiles(ctx context.Context, commit types.Hash, prefix string) ([]string, error) {
	entries, err := n.Flatten(ctx, commit, prefix)
	if err != nil {
		return nil, err
	}
	keys := make([]string, len(entries))
	for i, e := range entries {
		keys[i] = e.Key
	}
	return keys, nil
}

// GetDocuments 与 GetFiles 相同，但同时返回文档内容
func (n *Navigator) GetDocuments(ctx context.Context, commit types.Hash, prefix string) ([]types.Document, error) {
	entries, err := n.Flatten(ctx, commit, prefix)
	if err != nil {
		return nil, err
	}
	docs := make([]types.Document, 0, len(entries))
	for _, e := range entries {
		blob, err := n.objects.GetBlob(ctx, e.Hash)
		if err != nil {
			return nil, err
		}
		docs = append(docs, types.Document{Key: e.Key, Value: blob.Bytes()})
	}
	return docs, nil
}

// GetSubfolders 返回 prefix 目录下的直接子目录名 (不递归)
// prefix 不存在时返回空列表
func (n *Navigator) GetSubfolders(ctx context.Context, commit types.Hash, prefix string) ([]string, error) {
	tree, err := n.folder(ctx, commit, prefix)
	if err != nil || tree == nil {
		return nil, err
	}
	var names []string
	for _, e := range tree.Entries {
		if e.IsTree() {
			names = append(names, e.Name)
		}
	}
	return names, nil
}

// Flatten 列出 prefix 下的所有文档条目，按 Key 排序
// prefix 指向一个文档时返回它自己；prefix 不存在时返回空列表
func (n *Navigator) Flatten(ctx context.Context, commit types.Hash, prefix string) ([]Entry, error) {
	prefix, err := types.CleanPrefix(prefix)
	if err != nil {
		return nil, err
	}
	rootTree, err := n.RootTree(ctx, commit)
	if err != nil {
		return nil, err
	}

	start := rootTree
	if prefix != "" {
		entry, err := n.lookup(ctx, rootTree, prefix)
		if errors.Is(err, errMissing) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		if !entry.IsTree() {
			return []Entry{{Key: prefix, Hash: entry.Hash.Hash, Size: entry.Size}}, nil
		}
		start = entry.Hash.Hash
	}
	return n.walk(ctx, start, prefix)
}

// FlattenTree 列出一棵树下的所有文档条目，Key 以 prefix 开头，按 Key 排序
func (n *Navigator) FlattenTree(ctx context.Context, tree types.Hash, prefix string) ([]Entry, error) {
	return n.walk(ctx, tree, prefix)
}

func (n *Navigator) walk(ctx context.Context, treeHash types.Hash, prefix string) ([]Entry, error) {
	var out []Entry
	// 显式栈，不用递归
	type frame struct {
		hash   types.Hash
		prefix string
	}
	stack := []frame{{hash: treeHash, prefix: prefix}}
	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		tree, err := n.objects.GetTree(ctx, f.hash)
		if err != nil {
			return nil, err
		}
		for _, e := range tree.Entries {
			key := types.JoinKey(f.prefix, e.Name)
			if e.IsTree() {
				stack = append(stack, frame{hash: e.Hash.Hash, prefix: key})
				continue
			}
			out = append(out, Entry{Key: key, Hash: e.Hash.Hash, Size: e.Size})
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

// RootTree 返回提交的根树 Hash
func (n *Navigator) RootTree(ctx context.Context, commit types.Hash) (types.Hash, error) {
	c, err := n.objects.GetCommit(ctx, commit)
	if err != nil {
		return "", err
	}
	return c.TreeHash(), nil
}

// folder 解析 prefix 指向的目录。prefix 不存在或指向文档时返回 nil
func (n *Navigator) folder(ctx context.Context, commit types.Hash, prefix string) (*core.Tree, error) {
	prefix, err := types.CleanPrefix(prefix)
	if err != nil {
		return nil, err
	}
	treeHash, err := n.RootTree(ctx, commit)
	if err != nil {
		return nil, err
	}

	if prefix != "" {
		entry, err := n.lookup(ctx, treeHash, prefix)
		if errors.Is(err, errMissing) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		if !entry.IsTree() {
			return nil, nil
		}
		treeHash = entry.Hash.Hash
	}
	return n.objects.GetTree(ctx, treeHash)
}

// errMissing 表示路径中某一段缺失或类型不对，它同时是 ErrNotFound
var errMissing = fmt.Errorf("%w: no such path", types.ErrNotFound)

// lookup 从根树开始逐段解析已规范化的 key
func (n *Navigator) lookup(ctx context.Context, rootTree types.Hash, key string) (core.TreeEntry, error) {
	treeHash := rootTree
	parts := types.SplitKey(key)
	for i, part := range parts {
		tree, err := n.objects.GetTree(ctx, treeHash)
		if err != nil {
			return core.TreeEntry{}, err
		}
		entry, ok := tree.Find(part)
		if !ok {
			return core.TreeEntry{}, fmt.Errorf("%w: %q", errMissing, key)
		}
		if i == len(parts)-1 {
			return entry, nil
		}
		if !entry.IsTree() {
			return core.TreeEntry{}, fmt.Errorf("%w: %q (%q is a document)", errMissing, key, part)
		}
		treeHash = entry.Hash.Hash
	}
	return core.TreeEntry{}, fmt.Errorf("%w: empty key", types.ErrInvalidArgument)
}
