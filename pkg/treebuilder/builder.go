// Package treebuilder 把暂存区的改动应用到一棵已有的目录树上
package treebuilder

import (
	"context"
	"fmt"
	"maps"
	"slices"

	"gitdb/pkg/core"
	"gitdb/pkg/index"
	"gitdb/pkg/odb"
	"gitdb/pkg/types"
)

// Builder 负责将暂存区转换为 Merkle Tree
// 只有改动路径上的目录会被重新读取和写入，其余子树按 Hash 原样复用。
type Builder struct {
	objects *odb.DB
}

func NewBuilder(objects *odb.DB) *Builder {
	return &Builder{objects: objects}
}

// Build 把暂存区应用到 baseTree 上，返回新的根树 Hash
func (b *Builder) Build(ctx context.Context, baseTree types.Hash, idx *index.Index) (types.Hash, error) {
	return b.Apply(ctx, baseTree, idx.Snapshot())
}

// Apply 把 changes 应用到 baseTree 上。baseTree 为空表示从空树开始。
// 删除不存在的 Key 是空操作；变空的目录会被删掉；根目录总是存在。
func (b *Builder) Apply(ctx context.Context, baseTree types.Hash, changes map[string]index.Entry) (types.Hash, error) {
	root := newDirNode()
	for key, entry := range changes {
		root.insert(types.SplitKey(key), entry)
	}

	entry, err := b.writeNode(ctx, baseTree, root, "")
	if err != nil {
		return "", err
	}
	if entry != nil {
		return entry.Hash.Hash, nil
	}

	// 根目录被清空
	empty, err := b.objects.PutTree(ctx, nil)
	if err != nil {
		return "", err
	}
	return empty.ID(), nil
}

// -----------------------------------------------------------------------------
// 内部辅助结构：改动树
// -----------------------------------------------------------------------------

type node struct {
	children map[string]*node
	change   *index.Entry // 落在这个路径上的改动 (可能为空)
}

func newDirNode() *node {
	return &node{children: make(map[string]*node)}
}

// insert 将一个改动按路径插入到改动树中
// 例如 "a/b/c.json" -> 创建 a, b, 然后把改动挂在 c.json 上
func (n *node) insert(parts []string, entry index.Entry) {
	current := n
	for _, part := range parts {
		child, ok := current.children[part]
		if !ok {
			child = newDirNode()
			current.children[part] = child
		}
		current = child
	}
	e := entry
	current.change = &e
}

// onlyDeletes 判断子树中的改动是否全部是删除
func (n *node) onlyDeletes() bool {
	if n.change != nil && !n.change.Delete {
		return false
	}
	for _, c := range n.children {
		if !c.onlyDeletes() {
			return false
		}
	}
	return true
}

// writeNode 把改动树 n 应用到 base 目录上，自底向上写入新的 Tree
// 返回 nil 表示该目录已空，应从父目录中移除
func (b *Builder) writeNode(ctx context.Context, base types.Hash, n *node, prefix string) (*core.TreeEntry, error) {
	entries := make(map[string]core.TreeEntry)
	if base != "" {
		tree, err := b.objects.GetTree(ctx, base)
		if err != nil {
			return nil, fmt.Errorf("failed to load tree %q: %w", prefix, err)
		}
		for _, e := range tree.Entries {
			entries[e.Name] = e
		}
	}

	// 按名字顺序处理，错误信息稳定
	for _, name := range slices.Sorted(maps.Keys(n.children)) {
		child := n.children[name]
		key := types.JoinKey(prefix, name)
		existing, exists := entries[name]

		if c := child.change; c != nil {
			switch {
			case !c.Delete && len(child.children) > 0:
				return nil, fmt.Errorf("%w: %q is written both as a document and as a folder", types.ErrInvalidArgument, key)
			case !c.Delete && exists && existing.IsTree():
				return nil, fmt.Errorf("%w: document %q would replace a folder", types.ErrInvalidArgument, key)
			case !c.Delete:
				entries[name] = core.TreeEntry{
					Name: name,
					Type: core.EntryBlob,
					Hash: core.NewBlobLink(c.Hash),
					Size: c.Size,
				}
				continue
			case exists && !existing.IsTree():
				delete(entries, name)
				exists = false
			}
			// 删除一个目录名或不存在的 Key 是空操作
		}

		if len(child.children) == 0 {
			continue
		}

		var subBase types.Hash
		if exists {
			if !existing.IsTree() {
				if child.onlyDeletes() {
					continue
				}
				return nil, fmt.Errorf("%w: path %q crosses document %q", types.ErrInvalidArgument, key+"/...", key)
			}
			subBase = existing.Hash.Hash
		}

		sub, err := b.writeNode(ctx, subBase, child, key)
		if err != nil {
			return nil, err
		}
		if sub == nil {
			delete(entries, name)
			continue
		}
		sub.Name = name
		entries[name] = *sub
	}

	if len(entries) == 0 {
		return nil, nil
	}

	tree, err := core.NewTree(slices.Collect(maps.Values(entries)))
	if err != nil {
		return nil, fmt.Errorf("failed to create tree object: %w", err)
	}
	if tree.ID() != base {
		if err := b.objects.Put(ctx, tree); err != nil {
			return nil, fmt.Errorf("failed to store tree: %w", err)
		}
	}

	return &core.TreeEntry{Type: core.EntryTree, Hash: core.NewLink(tree.ID())}, nil
}
