package history

import (
	"container/heap"
	"context"

	"gitdb/pkg/core"
	"gitdb/pkg/types"
)

// Log 返回从 to 可达但从 from 不可达的提交
// 按拓扑序输出 (子提交总在父提交之前)，同一层按时间戳降序、Hash 升序。
// from 为空表示不排除任何提交。
func (g *Graph) Log(ctx context.Context, from, to types.Hash) ([]types.CommitInfo, error) {
	var exclude map[types.Hash]struct{}
	if from != "" {
		var err error
		exclude, err = g.Ancestors(ctx, from)
		if err != nil {
			return nil, err
		}
	}

	set, err := g.walk(ctx, []types.Hash{to}, exclude)
	if err != nil {
		return nil, err
	}

	// 入度 = 集合内子提交的数量
	indegree := make(map[types.Hash]int, len(set))
	for h := range set {
		c, err := g.Commit(ctx, h)
		if err != nil {
			return nil, err
		}
		for _, p := range c.ParentHashes() {
			if _, ok := set[p]; ok {
				indegree[p]++
			}
		}
	}

	ready := &commitHeap{}
	for h := range set {
		if indegree[h] == 0 {
			c, _ := g.Commit(ctx, h)
			heap.Push(ready, c)
		}
	}

	out := make([]types.CommitInfo, 0, len(set))
	for ready.Len() > 0 {
		c := heap.Pop(ready).(*core.Commit)
		out = append(out, Info(c))
		for _, p := range c.ParentHashes() {
			if _, ok := set[p]; !ok {
				continue
			}
			indegree[p]--
			if indegree[p] == 0 {
				pc, _ := g.Commit(ctx, p)
				heap.Push(ready, pc)
			}
		}
	}
	return out, nil
}

// commitHeap 是按 newer 排序的最大堆
type commitHeap []*core.Commit

func (h commitHeap) Len() int           { return len(h) }
func (h commitHeap) Less(i, j int) bool { return newer(h[i], h[j]) }
func (h commitHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *commitHeap) Push(x any)        { *h = append(*h, x.(*core.Commit)) }
func (h *commitHeap) Pop() any {
	old := *h
	n := len(old)
	c := old[n-1]
	*h = old[:n-1]
	return c
}
