package gitdb

import (
	"context"
	"log/slog"
	"time"

	"gitdb/pkg/txn"
	"gitdb/pkg/types"
)

// Get 读取 ref 快照中 key 处的文档
func (d *DB) Get(ctx context.Context, ref, key string) ([]byte, error) {
	commit, err := d.refs.Resolve(ctx, ref)
	if err != nil {
		return nil, err
	}
	return d.nav.Get(ctx, commit, key)
}

// GetFiles 递归列出 prefix 下所有文档的 Key
func (d *DB) GetFiles(ctx context.Context, ref, prefix string) ([]string, error) {
	commit, err := d.refs.Resolve(ctx, ref)
	if err != nil {
		return nil, err
	}
	return d.nav.GetFiles(ctx, commit, prefix)
}

// GetDocuments 与 GetFiles 相同，但同时返回内容
func (d *DB) GetDocuments(ctx context.Context, ref, prefix string) ([]types.Document, error) {
	commit, err := d.refs.Resolve(ctx, ref)
	if err != nil {
		return nil, err
	}
	return d.nav.GetDocuments(ctx, commit, prefix)
}

// GetSubfolders 列出 prefix 下一级的目录名
func (d *DB) GetSubfolders(ctx context.Context, ref, prefix string) ([]string, error) {
	commit, err := d.refs.Resolve(ctx, ref)
	if err != nil {
		return nil, err
	}
	return d.nav.GetSubfolders(ctx, commit, prefix)
}

// Save 以单文档事务写入 doc，返回新提交
func (d *DB) Save(ctx context.Context, branch, message string, doc types.Document, author string) (types.Hash, error) {
	start := time.Now()
	commit, err := d.oneShot(ctx, branch, message, author, func(tx *txn.Transaction) error {
		return tx.Add(ctx, doc)
	})
	logOp(ctx, "Save", start, err,
		slog.String("branch", branch),
		slog.String("key", doc.Key),
		slog.String("commit", commit.Short()),
	)
	return commit, err
}

// Delete 以单文档事务删除 key，返回新提交
// key 在分支快照中不是文档时返回 ErrNotFound，不产生提交
func (d *DB) Delete(ctx context.Context, branch, key, message, author string) (types.Hash, error) {
	start := time.Now()
	commit, err := d.oneShot(ctx, branch, message, author, func(tx *txn.Transaction) error {
		if _, err := d.nav.Stat(ctx, tx.Base(), key); err != nil {
			return err
		}
		return tx.Delete(key)
	})
	logOp(ctx, "Delete", start, err,
		slog.String("branch", branch),
		slog.String("key", key),
		slog.String("commit", commit.Short()),
	)
	return commit, err
}

// oneShot 开启事务、暂存、提交；任何一步失败都中止事务
func (d *DB) oneShot(ctx context.Context, branch, message, author string, stage func(*txn.Transaction) error) (types.Hash, error) {
	tx, err := d.txns.Begin(ctx, branch)
	if err != nil {
		return "", err
	}
	if err := stage(tx); err != nil {
		_ = tx.Abort()
		return "", err
	}
	commit, err := tx.Commit(ctx, message, author)
	if err != nil {
		// 冲突已经结束了事务，其它失败由这里收尾
		_ = tx.Abort()
		return "", err
	}
	return commit, nil
}
