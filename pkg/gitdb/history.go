package gitdb

import (
	"context"
	"log/slog"
	"time"

	"gitdb/pkg/history"
	"gitdb/pkg/merge"
	"gitdb/pkg/rebase"
	"gitdb/pkg/types"
)

// MergeBranch 把 source 合并进分支 target
func (d *DB) MergeBranch(ctx context.Context, source, target, author, message string) (merge.Result, error) {
	start := time.Now()
	res, err := d.merger.Merge(ctx, source, target, author, message)
	logOp(ctx, "MergeBranch", start, err,
		slog.String("source", source),
		slog.String("branch", target),
		slog.String("commit", res.Commit.Short()),
		slog.Bool("noop", res.NoOp),
	)
	return res, err
}

// RebaseBranch 把分支 source 独有的提交重放到 target 上
func (d *DB) RebaseBranch(ctx context.Context, source, target, author, message string) (rebase.Result, error) {
	start := time.Now()
	res, err := d.rebaser.Rebase(ctx, source, target, author, message)
	logOp(ctx, "RebaseBranch", start, err,
		slog.String("branch", source),
		slog.String("onto", target),
		slog.String("commit", res.Commit.Short()),
		slog.Int("replayed", res.Replayed),
	)
	return res, err
}

// Diff 比较两个 ref 的快照：Added 只在 ref2 中，Removed 只在 ref1 中
func (d *DB) Diff(ctx context.Context, ref1, ref2 string) (types.Diff, error) {
	from, err := d.refs.Resolve(ctx, ref1)
	if err != nil {
		return types.Diff{}, err
	}
	to, err := d.refs.Resolve(ctx, ref2)
	if err != nil {
		return types.Diff{}, err
	}
	return history.NewGraph(d.objects).DiffCommits(ctx, from, to)
}

// Log 返回从 ref2 可达、从 ref1 不可达的提交，最新的在前
func (d *DB) Log(ctx context.Context, ref1, ref2 string) ([]types.CommitInfo, error) {
	from, err := d.refs.Resolve(ctx, ref1)
	if err != nil {
		return nil, err
	}
	to, err := d.refs.Resolve(ctx, ref2)
	if err != nil {
		return nil, err
	}
	return history.NewGraph(d.objects).Log(ctx, from, to)
}

// History 返回 ref 的全部祖先提交
func (d *DB) History(ctx context.Context, ref string) ([]types.CommitInfo, error) {
	tip, err := d.refs.Resolve(ctx, ref)
	if err != nil {
		return nil, err
	}
	return history.NewGraph(d.objects).Log(ctx, "", tip)
}

// FindCommitsByAuthor 通过提交索引按作者查询，最新的在前
func (d *DB) FindCommitsByAuthor(ctx context.Context, author string, limit int) ([]types.CommitInfo, error) {
	models, err := d.repo.FindCommitsByAuthor(ctx, author, limit)
	if err != nil {
		return nil, err
	}
	out := make([]types.CommitInfo, 0, len(models))
	for i := range models {
		m := &models[i]
		parents, err := m.ParentHashes()
		if err != nil {
			return nil, err
		}
		out = append(out, types.CommitInfo{
			Hash:      m.Hash,
			Tree:      m.TreeHash,
			Parents:   parents,
			Author:    m.Author,
			Message:   m.Message,
			Timestamp: m.Timestamp,
		})
	}
	return out, nil
}
