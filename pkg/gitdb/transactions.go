package gitdb

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"gitdb/pkg/index"
	"gitdb/pkg/txn"
	"gitdb/pkg/types"
)

// CreateTransaction 在 branch 的当前 tip 上开启事务，返回事务 ID
func (d *DB) CreateTransaction(ctx context.Context, branch string) (string, error) {
	start := time.Now()
	tx, err := d.txns.Begin(ctx, branch)
	var id string
	if tx != nil {
		id = tx.ID()
	}
	logOp(ctx, "CreateTransaction", start, err,
		slog.String("branch", branch),
		slog.String("txn", id),
	)
	return id, err
}

// Transaction 按 ID 取得未结束的事务
func (d *DB) Transaction(id string) (*txn.Transaction, error) {
	return d.txns.Get(id)
}

func (d *DB) AddToTransaction(ctx context.Context, id string, doc types.Document) error {
	tx, err := d.txns.Get(id)
	if err != nil {
		return err
	}
	return tx.Add(ctx, doc)
}

func (d *DB) AddManyToTransaction(ctx context.Context, id string, docs []types.Document) error {
	tx, err := d.txns.Get(id)
	if err != nil {
		return err
	}
	return tx.AddMany(ctx, docs)
}

func (d *DB) DeleteInTransaction(id, key string) error {
	tx, err := d.txns.Get(id)
	if err != nil {
		return err
	}
	return tx.Delete(key)
}

func (d *DB) DeleteManyInTransaction(id string, keys []string) error {
	tx, err := d.txns.Get(id)
	if err != nil {
		return err
	}
	return tx.DeleteMany(keys)
}

// CommitTransaction 提交事务并返回新提交
func (d *DB) CommitTransaction(ctx context.Context, id, message, author string) (types.Hash, error) {
	start := time.Now()
	var commit types.Hash
	tx, err := d.txns.Get(id)
	if err == nil {
		commit, err = tx.Commit(ctx, message, author)
	}

	attrs := []slog.Attr{slog.String("txn", id), slog.String("commit", commit.Short())}
	if tx != nil {
		attrs = append(attrs, slog.String("branch", tx.Branch()))
	}
	logOp(ctx, "Commit", start, err, attrs...)
	return commit, err
}

// AbortTransaction 丢弃事务
func (d *DB) AbortTransaction(ctx context.Context, id string) error {
	start := time.Now()
	tx, err := d.txns.Get(id)
	if err == nil {
		err = tx.Abort()
	}
	logOp(ctx, "Abort", start, err, slog.String("txn", id))
	return err
}

// CloseTransactions 中止 branch 上所有未结束的事务，返回关闭的数量
func (d *DB) CloseTransactions(ctx context.Context, branch string) int {
	start := time.Now()
	n := d.txns.CloseTransactions(branch)
	logOp(ctx, "CloseTransactions", start, nil,
		slog.String("branch", branch),
		slog.Int("closed", n),
	)
	return n
}

// CommitIndex 把持久化暂存区的内容作为一次提交写入 branch。
// 暂存区记录了 Base 时，branch 必须仍停在该提交上。
func (d *DB) CommitIndex(ctx context.Context, branch string, staged *index.Index, message, author string) (types.Hash, error) {
	start := time.Now()
	entries := staged.Snapshot()
	commit, err := d.oneShot(ctx, branch, message, author, func(tx *txn.Transaction) error {
		if !staged.Base.IsZero() && staged.Base != tx.Base() {
			return fmt.Errorf("%w: index is based on %s but %s is at %s",
				types.ErrConflict, staged.Base.Short(), branch, tx.Base().Short())
		}
		return tx.Stage(ctx, entries)
	})
	logOp(ctx, "CommitIndex", start, err,
		slog.String("branch", branch),
		slog.Int("entries", len(entries)),
		slog.String("commit", commit.Short()),
	)
	return commit, err
}
