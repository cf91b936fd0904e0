// Package history 实现提交图上的遍历：祖先、最佳公共祖先、Diff 与 Log
package history

import (
	"context"

	"gitdb/pkg/core"
	"gitdb/pkg/odb"
	"gitdb/pkg/types"
)

// Graph 在一次操作内缓存已读取的提交
// 提交不可变，缓存永远不会过期，但 Graph 不应跨请求长期持有
type Graph struct {
	objects *odb.DB
	commits map[types.Hash]*core.Commit
}

func NewGraph(objects *odb.DB) *Graph {
	return &Graph{
		objects: objects,
		commits: make(map[types.Hash]*core.Commit),
	}
}

// Commit 读取提交，命中缓存时不访问存储
func (g *Graph) Commit(ctx context.Context, hash types.Hash) (*core.Commit, error) {
	if c, ok := g.commits[hash]; ok {
		return c, nil
	}
	c, err := g.objects.GetCommit(ctx, hash)
	if err != nil {
		return nil, err
	}
	g.commits[hash] = c
	return c, nil
}

// Ancestors 返回从 tips 可达的所有提交 (包含 tips 自身)
func (g *Graph) Ancestors(ctx context.Context, tips ...types.Hash) (map[types.Hash]struct{}, error) {
	return g.walk(ctx, tips, nil)
}

// walk 从 tips 开始广度优先遍历，跳过 stop 中的提交
func (g *Graph) walk(ctx context.Context, tips []types.Hash, stop map[types.Hash]struct{}) (map[types.Hash]struct{}, error) {
	visited := make(map[types.Hash]struct{})
	frontier := make([]types.Hash, 0, len(tips))
	frontier = append(frontier, tips...)

	for len(frontier) > 0 {
		h := frontier[0]
		frontier = frontier[1:]

		if _, seen := visited[h]; seen {
			continue
		}
		if _, skip := stop[h]; skip {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		c, err := g.Commit(ctx, h)
		if err != nil {
			return nil, err
		}
		visited[h] = struct{}{}
		frontier = append(frontier, c.ParentHashes()...)
	}
	return visited, nil
}

// IsAncestor 判断 ancestor 是否可从 descendant 到达 (自身也算)
func (g *Graph) IsAncestor(ctx context.Context, ancestor, descendant types.Hash) (bool, error) {
	if ancestor == descendant {
		return true, nil
	}
	set, err := g.Ancestors(ctx, descendant)
	if err != nil {
		return false, err
	}
	_, ok := set[ancestor]
	return ok, nil
}

// MergeBase 返回 a 与 b 的最佳公共祖先
// 最佳指：不是其他公共祖先的祖先；有多个时取时间戳最新的，再按 Hash 升序。
// 两段历史不相交时 ok 为 false。
func (g *Graph) MergeBase(ctx context.Context, a, b types.Hash) (types.Hash, bool, error) {
	fromA, err := g.Ancestors(ctx, a)
	if err != nil {
		return "", false, err
	}

	// 从 b 出发，遇到 a 的祖先就停下，得到候选集合
	var candidates []types.Hash
	visited := make(map[types.Hash]struct{})
	frontier := []types.Hash{b}
	for len(frontier) > 0 {
		h := frontier[0]
		frontier = frontier[1:]
		if _, seen := visited[h]; seen {
			continue
		}
		visited[h] = struct{}{}

		if _, common := fromA[h]; common {
			candidates = append(candidates, h)
			continue
		}
		c, err := g.Commit(ctx, h)
		if err != nil {
			return "", false, err
		}
		frontier = append(frontier, c.ParentHashes()...)
	}
	if len(candidates) == 0 {
		return "", false, nil
	}

	// 去掉是其他候选祖先的候选：从所有候选的父节点做一次遍历，
	// 被走到的候选就是冗余的 (DAG 中候选无法经由自己的父节点回到自身)
	var parents []types.Hash
	for _, c := range candidates {
		ps, err := g.commitParents(ctx, c)
		if err != nil {
			return "", false, err
		}
		parents = append(parents, ps...)
	}
	reach, err := g.Ancestors(ctx, parents...)
	if err != nil {
		return "", false, err
	}
	best := make([]types.Hash, 0, len(candidates))
	for _, c := range candidates {
		if _, redundant := reach[c]; !redundant {
			best = append(best, c)
		}
	}

	var pick *core.Commit
	for _, h := range best {
		c, err := g.Commit(ctx, h)
		if err != nil {
			return "", false, err
		}
		if pick == nil || newer(c, pick) {
			pick = c
		}
	}
	return pick.ID(), true, nil
}

func (g *Graph) commitParents(ctx context.Context, h types.Hash) ([]types.Hash, error) {
	c, err := g.Commit(ctx, h)
	if err != nil {
		return nil, err
	}
	return c.ParentHashes(), nil
}

// newer 定义提交的展示顺序：时间戳大的在前，相同时 Hash 小的在前
func newer(a, b *core.Commit) bool {
	if a.Timestamp != b.Timestamp {
		return a.Timestamp > b.Timestamp
	}
	return a.ID() < b.ID()
}

// Info 把提交转换为只读视图
func Info(c *core.Commit) types.CommitInfo {
	return types.CommitInfo{
		Hash:      c.ID(),
		Tree:      c.TreeHash(),
		Parents:   c.ParentHashes(),
		Author:    c.Author,
		Message:   c.Message,
		Timestamp: c.Timestamp,
	}
}
