package gitdb

import (
	"context"
	"log/slog"
	"time"

	"gitdb/pkg/meta"
	"gitdb/pkg/types"
)

// GetAllBranches 返回所有分支及其指向的提交
func (d *DB) GetAllBranches(ctx context.Context) ([]types.Reference, error) {
	return d.refs.GetAllBranches(ctx)
}

// CreateBranch 创建分支 ref.Name，指向 ref.Pointer 解析出的提交 (为空时为根提交)
func (d *DB) CreateBranch(ctx context.Context, ref types.Reference) (types.Reference, error) {
	start := time.Now()
	created, err := d.refs.CreateBranch(ctx, ref.Name, ref.Pointer, d.actor)
	logOp(ctx, "CreateBranch", start, err,
		slog.String("branch", ref.Name),
		slog.String("pointer", ref.Pointer),
	)
	return created, err
}

// DeleteBranch 删除分支，提交对象保持不变
func (d *DB) DeleteBranch(ctx context.Context, name string) error {
	start := time.Now()
	err := d.refs.DeleteBranch(ctx, name, d.actor)
	logOp(ctx, "DeleteBranch", start, err, slog.String("branch", name))
	return err
}

// Tag 创建标签，标签创建后不再移动
func (d *DB) Tag(ctx context.Context, ref types.Reference) (types.Reference, error) {
	start := time.Now()
	created, err := d.refs.CreateTag(ctx, ref.Name, ref.Pointer)
	logOp(ctx, "Tag", start, err,
		slog.String("tag", ref.Name),
		slog.String("pointer", ref.Pointer),
	)
	return created, err
}

func (d *DB) DeleteTag(ctx context.Context, name string) error {
	start := time.Now()
	err := d.refs.DeleteTag(ctx, name)
	logOp(ctx, "DeleteTag", start, err, slog.String("tag", name))
	return err
}

func (d *DB) GetAllTags(ctx context.Context) ([]types.Reference, error) {
	return d.refs.GetAllTags(ctx)
}

// RefLog 返回分支的移动记录，最新的在前；limit <= 0 表示全部
// 已删除分支的记录仍然保留。
func (d *DB) RefLog(ctx context.Context, branch string, limit int) ([]meta.RefLogEntry, error) {
	return d.refs.RefLog(ctx, branch, limit)
}
