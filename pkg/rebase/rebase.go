// Package rebase 把源分支独有的提交逐个重放到目标 tip 上
package rebase

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"strings"
	"time"

	"gitdb/pkg/core"
	"gitdb/pkg/history"
	"gitdb/pkg/index"
	"gitdb/pkg/meta"
	"gitdb/pkg/odb"
	"gitdb/pkg/refs"
	"gitdb/pkg/treebuilder"
	"gitdb/pkg/types"
)

// CommitIndexer 把新提交投影到查询索引
type CommitIndexer interface {
	IndexCommit(ctx context.Context, c *core.Commit) error
}

type Engine struct {
	objects *odb.DB
	refs    *refs.Manager
	builder *treebuilder.Builder
	indexer CommitIndexer
	now     func() time.Time
}

type Option func(*Engine)

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func WithCommitIndexer(ix CommitIndexer) Option {
	return func(e *Engine) { e.indexer = ix }
}

func New(objects *odb.DB, refMgr *refs.Manager, opts ...Option) *Engine {
	e := &Engine{
		objects: objects,
		refs:    refMgr,
		builder: treebuilder.NewBuilder(objects),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Result 描述一次变基的结果
type Result struct {
	Commit   types.Hash // source 的新 tip
	Replayed int        // 生成的新提交数量
	Skipped  int        // 跳过的提交 (合并提交或变化已存在于目标)
}

// step 是一个待重放的提交与它相对原父节点的变化
type step struct {
	commit  *core.Commit
	changes map[string]index.Entry
}

// Rebase 把分支 source 独有的提交按原顺序重放到 target 的 tip 上，然后移动 source
// 任何冲突都会中止整个变基，不写入任何对象，也不移动引用。
func (e *Engine) Rebase(ctx context.Context, source, target, author, message string) (Result, error) {
	if strings.TrimSpace(author) == "" || strings.TrimSpace(message) == "" {
		return Result{}, fmt.Errorf("%w: rebase requires author and message", types.ErrInvalidArgument)
	}

	sourceTip, err := e.refs.GetBranch(ctx, source)
	if err != nil {
		return Result{}, err
	}
	targetTip, err := e.refs.Resolve(ctx, target)
	if err != nil {
		return Result{}, err
	}

	graph := history.NewGraph(e.objects)

	// source 已经基于 target
	upToDate, err := graph.IsAncestor(ctx, targetTip, sourceTip)
	if err != nil {
		return Result{}, err
	}
	if upToDate {
		return Result{Commit: sourceTip}, nil
	}

	// 从 source 可达、从 target 不可达的提交，按拓扑序从旧到新
	unique, err := graph.Log(ctx, targetTip, sourceTip)
	if err != nil {
		return Result{}, err
	}
	slices.Reverse(unique)

	targetCommit, err := graph.Commit(ctx, targetTip)
	if err != nil {
		return Result{}, err
	}
	state, err := graph.Docs(ctx, targetCommit.TreeHash())
	if err != nil {
		return Result{}, err
	}

	steps, conflicts, skipped, err := e.plan(ctx, graph, unique, state)
	if err != nil {
		return Result{}, err
	}
	if len(conflicts) > 0 {
		return Result{}, &types.ConflictError{Op: "rebase", Conflicts: conflicts}
	}

	tip, tipTree := targetTip, targetCommit.TreeHash()
	var created []*core.Commit
	for _, s := range steps {
		tree, err := e.builder.Apply(ctx, tipTree, s.changes)
		if err != nil {
			return Result{}, err
		}
		if tree == tipTree {
			skipped++
			continue
		}
		c, err := core.NewCommitAt(tree, []types.Hash{tip}, author, s.commit.Message, e.now().Unix())
		if err != nil {
			return Result{}, err
		}
		if err := e.objects.PutCommit(ctx, c); err != nil {
			return Result{}, err
		}
		created = append(created, c)
		tip, tipTree = c.ID(), tree
	}

	err = e.refs.AdvanceBranch(ctx, source, sourceTip, tip, refs.Move{
		Author:  author,
		Message: message,
		Action:  meta.ActionRebase,
	})
	if err != nil {
		return Result{}, err
	}

	if e.indexer != nil {
		for _, c := range created {
			if err := e.indexer.IndexCommit(ctx, c); err != nil {
				slog.WarnContext(ctx, "failed to index rebased commit",
					slog.String("commit", c.ID().Short()),
					slog.String("err", err.Error()),
				)
			}
		}
	}

	return Result{Commit: tip, Replayed: len(created), Skipped: skipped}, nil
}

// plan 在内存中的文档集合 state 上模拟重放，收集全部冲突
// 某个 Key 的变化可以干净重放，当且仅当当前值等于原父节点的值，或已经等于新值。
func (e *Engine) plan(ctx context.Context, graph *history.Graph, unique []types.CommitInfo, state map[string]types.Hash) ([]step, []types.Conflict, int, error) {
	var steps []step
	var conflicts []types.Conflict
	conflicted := make(map[string]bool)
	skipped := 0

	for _, info := range unique {
		// 合并提交的变化已经由它的父提交带来
		if len(info.Parents) > 1 {
			skipped++
			continue
		}
		c, err := graph.Commit(ctx, info.Hash)
		if err != nil {
			return nil, nil, 0, err
		}

		var parentTree types.Hash
		if len(info.Parents) == 1 {
			p, err := graph.Commit(ctx, info.Parents[0])
			if err != nil {
				return nil, nil, 0, err
			}
			parentTree = p.TreeHash()
		}
		changes, err := graph.TreeChanges(ctx, parentTree, c.TreeHash())
		if err != nil {
			return nil, nil, 0, err
		}

		entries := make(map[string]index.Entry, len(changes))
		for _, ch := range changes {
			cur := state[ch.Key]
			if cur != ch.Old && cur != ch.New {
				reason := types.ReasonBothModified
				if cur == "" || ch.New == "" {
					reason = types.ReasonDeleteModify
				}
				if err := e.addConflict(ctx, &conflicts, conflicted, ch.Key, reason, ch.New, cur); err != nil {
					return nil, nil, 0, err
				}
			}
			if ch.New == "" {
				delete(state, ch.Key)
				entries[ch.Key] = index.Entry{Key: ch.Key, Delete: true}
				continue
			}
			state[ch.Key] = ch.New
			entries[ch.Key] = index.Entry{Key: ch.Key, Hash: ch.New}
		}

		for key, en := range entries {
			if en.Delete {
				continue
			}
			if other, clash := history.KindClash(state, key); clash {
				if err := e.addConflict(ctx, &conflicts, conflicted, key, types.ReasonDocumentClash, en.Hash, state[other]); err != nil {
					return nil, nil, 0, err
				}
			}
			blob, err := e.objects.GetBlob(ctx, en.Hash)
			if err != nil {
				return nil, nil, 0, err
			}
			en.Size = blob.Size()
			entries[key] = en
		}

		steps = append(steps, step{commit: c, changes: entries})
	}

	sort.Slice(conflicts, func(i, j int) bool { return conflicts[i].Key < conflicts[j].Key })
	return steps, conflicts, skipped, nil
}

func (e *Engine) addConflict(ctx context.Context, out *[]types.Conflict, seen map[string]bool, key, reason string, source, target types.Hash) error {
	if seen[key] {
		return nil
	}
	src, err := e.content(ctx, source)
	if err != nil {
		return err
	}
	dst, err := e.content(ctx, target)
	if err != nil {
		return err
	}
	seen[key] = true
	*out = append(*out, types.Conflict{Key: key, Reason: reason, Source: src, Target: dst})
	return nil
}

func (e *Engine) content(ctx context.Context, h types.Hash) ([]byte, error) {
	if h == "" {
		return nil, nil
	}
	blob, err := e.objects.GetBlob(ctx, h)
	if err != nil {
		return nil, err
	}
	return blob.Bytes(), nil
}
