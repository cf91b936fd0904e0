// Package merge 实现分支的三方合并
package merge

import (
	"context"
	"fmt"
	"log/slog"
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

	"golang.org/x/sync/errgroup"
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

// Result 描述一次合并的结果
type Result struct {
	Commit types.Hash // target 合并后的 tip
	NoOp   bool       // source 已经包含在 target 中，没有生成提交
}

// Merge 把 source (任意可解析的 ref) 合并进分支 target
// 有冲突时返回 *types.ConflictError，列出所有冲突的 Key，两边的 tip 都不移动。
func (e *Engine) Merge(ctx context.Context, source, target, author, message string) (Result, error) {
	if strings.TrimSpace(author) == "" || strings.TrimSpace(message) == "" {
		return Result{}, fmt.Errorf("%w: merge requires author and message", types.ErrInvalidArgument)
	}

	sourceTip, err := e.refs.Resolve(ctx, source)
	if err != nil {
		return Result{}, err
	}
	targetTip, err := e.refs.GetBranch(ctx, target)
	if err != nil {
		return Result{}, err
	}

	graph := history.NewGraph(e.objects)
	contained, err := graph.IsAncestor(ctx, sourceTip, targetTip)
	if err != nil {
		return Result{}, err
	}
	if contained {
		return Result{Commit: targetTip, NoOp: true}, nil
	}

	base, ok, err := graph.MergeBase(ctx, sourceTip, targetTip)
	if err != nil {
		return Result{}, err
	}
	var baseTree types.Hash
	if ok {
		bc, err := graph.Commit(ctx, base)
		if err != nil {
			return Result{}, err
		}
		baseTree = bc.TreeHash()
	}

	sc, err := graph.Commit(ctx, sourceTip)
	if err != nil {
		return Result{}, err
	}
	tc, err := graph.Commit(ctx, targetTip)
	if err != nil {
		return Result{}, err
	}

	// 两侧的 Diff 互不依赖，并发计算
	var ours, theirs []history.Change
	var targetDocs map[string]types.Hash
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		theirs, err = history.NewGraph(e.objects).TreeChanges(gctx, baseTree, sc.TreeHash())
		return err
	})
	g.Go(func() error {
		var err error
		ours, err = history.NewGraph(e.objects).TreeChanges(gctx, baseTree, tc.TreeHash())
		return err
	})
	g.Go(func() error {
		var err error
		targetDocs, err = history.NewGraph(e.objects).Docs(gctx, tc.TreeHash())
		return err
	})
	if err := g.Wait(); err != nil {
		return Result{}, err
	}

	changes, conflicts, err := e.threeWay(ctx, theirs, ours, targetDocs)
	if err != nil {
		return Result{}, err
	}
	if len(conflicts) > 0 {
		return Result{}, &types.ConflictError{Op: "merge", Conflicts: conflicts}
	}

	tree, err := e.builder.Apply(ctx, tc.TreeHash(), changes)
	if err != nil {
		return Result{}, err
	}
	commit, err := core.NewCommitAt(tree, []types.Hash{sourceTip, targetTip}, author, message, e.now().Unix())
	if err != nil {
		return Result{}, err
	}
	if err := e.objects.PutCommit(ctx, commit); err != nil {
		return Result{}, err
	}

	err = e.refs.AdvanceBranch(ctx, target, targetTip, commit.ID(), refs.Move{
		Author:  author,
		Message: message,
		Action:  meta.ActionMerge,
	})
	if err != nil {
		return Result{}, err
	}

	if e.indexer != nil {
		if err := e.indexer.IndexCommit(ctx, commit); err != nil {
			slog.WarnContext(ctx, "failed to index merge commit",
				slog.String("commit", commit.ID().Short()),
				slog.String("err", err.Error()),
			)
		}
	}
	return Result{Commit: commit.ID()}, nil
}

// threeWay 逐 Key 比较两侧相对公共祖先的变化
// 只有 source 一侧改动的 Key 被应用到 target 上；两侧改成同样结果的 Key 不需要动作。
func (e *Engine) threeWay(ctx context.Context, theirs, ours []history.Change, targetDocs map[string]types.Hash) (map[string]index.Entry, []types.Conflict, error) {
	oursByKey := make(map[string]history.Change, len(ours))
	for _, c := range ours {
		oursByKey[c.Key] = c
	}

	changes := make(map[string]index.Entry)
	var conflicts []types.Conflict
	conflicted := make(map[string]bool)

	addConflict := func(key, reason string, source, target types.Hash) error {
		if conflicted[key] {
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
		conflicted[key] = true
		conflicts = append(conflicts, types.Conflict{Key: key, Reason: reason, Source: src, Target: dst})
		return nil
	}

	// result 是合并后的文档集合，用来检查文档与目录的冲突
	result := make(map[string]types.Hash, len(targetDocs))
	for k, v := range targetDocs {
		result[k] = v
	}

	for _, s := range theirs {
		t, touched := oursByKey[s.Key]
		switch {
		case touched && t.New == s.New:
			// 两侧得到相同结果
		case touched:
			reason := types.ReasonBothModified
			if s.New == "" || t.New == "" {
				reason = types.ReasonDeleteModify
			}
			if err := addConflict(s.Key, reason, s.New, t.New); err != nil {
				return nil, nil, err
			}
		case s.New == "":
			changes[s.Key] = index.Entry{Key: s.Key, Delete: true}
			delete(result, s.Key)
		default:
			changes[s.Key] = index.Entry{Key: s.Key, Hash: s.New}
			result[s.Key] = s.New
		}
	}

	// 新写入的文档不能穿过已有文档，也不能占据已有目录
	for key, c := range changes {
		if c.Delete {
			continue
		}
		if other, clash := history.KindClash(result, key); clash {
			if err := addConflict(key, types.ReasonDocumentClash, c.Hash, result[other]); err != nil {
				return nil, nil, err
			}
		}
	}

	sort.Slice(conflicts, func(i, j int) bool { return conflicts[i].Key < conflicts[j].Key })
	if err := e.fillSizes(ctx, changes); err != nil {
		return nil, nil, err
	}
	return changes, conflicts, nil
}

// content 读取 Blob 内容，空 Hash 返回 nil
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

// fillSizes 补齐树条目需要的文档大小
func (e *Engine) fillSizes(ctx context.Context, changes map[string]index.Entry) error {
	for k, c := range changes {
		if c.Delete {
			continue
		}
		blob, err := e.objects.GetBlob(ctx, c.Hash)
		if err != nil {
			return err
		}
		c.Size = blob.Size()
		changes[k] = c
	}
	return nil
}
