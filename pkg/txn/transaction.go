package txn

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"gitdb/pkg/core"
	"gitdb/pkg/index"
	"gitdb/pkg/meta"
	"gitdb/pkg/refs"
	"gitdb/pkg/types"
)

// Transaction 暂存对一个分支的若干改动
// 生命周期: Open -> Add/Delete* -> Committed | Aborted，结束后任何操作都返回 NotFound
type Transaction struct {
	m      *Manager
	id     string
	branch string
	base   types.Hash

	mu     sync.Mutex
	staged *index.Index
	done   bool
}

func newTransaction(m *Manager, id, branch string, base types.Hash) *Transaction {
	staged := index.New()
	staged.Base = base
	return &Transaction{
		m:      m,
		id:     id,
		branch: branch,
		base:   base,
		staged: staged,
	}
}

func (t *Transaction) ID() string       { return t.id }
func (t *Transaction) Branch() string   { return t.branch }
func (t *Transaction) Base() types.Hash { return t.base }

// Staged 返回暂存区的副本
func (t *Transaction) Staged() map[string]index.Entry {
	return t.staged.Snapshot()
}

func (t *Transaction) errDone() error {
	return fmt.Errorf("%w: transaction %s", types.ErrNotFound, t.id)
}

// Add 暂存一次写入，覆盖该 Key 上之前暂存的任何操作
func (t *Transaction) Add(ctx context.Context, doc types.Document) error {
	return t.AddMany(ctx, []types.Document{doc})
}

// AddMany 先校验全部 Key，任何一个非法都不会暂存
func (t *Transaction) AddMany(ctx context.Context, docs []types.Document) error {
	keys := make([]string, len(docs))
	for i, d := range docs {
		key, err := types.CleanKey(d.Key)
		if err != nil {
			return err
		}
		keys[i] = key
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		return t.errDone()
	}

	// 对象先于引用写入，未被引用的 Blob 无害
	blobs := make([]*core.Blob, len(docs))
	for i, d := range docs {
		blob, err := t.m.objects.PutBlob(ctx, d.Value)
		if err != nil {
			return err
		}
		blobs[i] = blob
	}
	for i, blob := range blobs {
		t.staged.Add(keys[i], blob.ID(), blob.Size())
	}
	return nil
}

// Delete 暂存一次删除，覆盖该 Key 上之前暂存的写入
func (t *Transaction) Delete(key string) error {
	return t.DeleteMany([]string{key})
}

func (t *Transaction) DeleteMany(keys []string) error {
	cleaned := make([]string, len(keys))
	for i, k := range keys {
		key, err := types.CleanKey(k)
		if err != nil {
			return err
		}
		cleaned[i] = key
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		return t.errDone()
	}
	for _, key := range cleaned {
		t.staged.Delete(key)
	}
	return nil
}

// Stage 暂存已经写入对象库的条目 (例如持久化暂存区中的改动)
// 写入条目引用的 Blob 必须已经存在。
func (t *Transaction) Stage(ctx context.Context, entries map[string]index.Entry) error {
	cleaned := make([]index.Entry, 0, len(entries))
	for _, e := range entries {
		key, err := types.CleanKey(e.Key)
		if err != nil {
			return err
		}
		e.Key = key
		if !e.Delete {
			ok, err := t.m.objects.Has(ctx, e.Hash)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("%w: blob %s for key %q", types.ErrNotFound, e.Hash.Short(), key)
			}
		}
		cleaned = append(cleaned, e)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		return t.errDone()
	}
	for _, e := range cleaned {
		if e.Delete {
			t.staged.Delete(e.Key)
		} else {
			t.staged.Add(e.Key, e.Hash, e.Size)
		}
	}
	return nil
}

// Commit 在 base 的树上应用暂存区，生成以 base 为唯一父节点的提交，
// 并把分支从 base CAS 推进到新提交。
// 分支已被移动时返回 Conflict，已被删除时返回 NotFound，两者都结束事务；
// 参数或存储错误时事务保持打开。
func (t *Transaction) Commit(ctx context.Context, message, author string) (types.Hash, error) {
	if strings.TrimSpace(message) == "" {
		return "", fmt.Errorf("%w: commit message is empty", types.ErrInvalidArgument)
	}
	if strings.TrimSpace(author) == "" {
		return "", fmt.Errorf("%w: commit author is empty", types.ErrInvalidArgument)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		return "", t.errDone()
	}

	baseCommit, err := t.m.objects.GetCommit(ctx, t.base)
	if err != nil {
		return "", err
	}
	tree, err := t.m.builder.Build(ctx, baseCommit.TreeHash(), t.staged)
	if err != nil {
		return "", err
	}

	commit, err := core.NewCommitAt(tree, []types.Hash{t.base}, author, message, t.m.now().Unix())
	if err != nil {
		return "", err
	}
	if err := t.m.objects.PutCommit(ctx, commit); err != nil {
		return "", err
	}

	err = t.m.refs.AdvanceBranch(ctx, t.branch, t.base, commit.ID(), refs.Move{
		Author:  author,
		Message: message,
		Action:  meta.ActionCommit,
	})
	if errors.Is(err, types.ErrConflict) || errors.Is(err, types.ErrNotFound) {
		// base 永远不会再成为 tip (或分支已被删除)，事务作废
		t.finish()
		return "", err
	}
	if err != nil {
		return "", err
	}

	if t.m.indexer != nil {
		if err := t.m.indexer.IndexCommit(ctx, commit); err != nil {
			slog.WarnContext(ctx, "failed to index commit",
				slog.String("commit", commit.ID().Short()),
				slog.String("err", err.Error()),
			)
		}
	}

	t.finish()
	return commit.ID(), nil
}

// Abort 丢弃暂存区，分支不受影响
func (t *Transaction) Abort() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		return t.errDone()
	}
	t.finish()
	return nil
}

// finish 必须在持有 t.mu 时调用
func (t *Transaction) finish() {
	t.done = true
	t.staged.Reset()
	t.m.forget(t.id)
}
