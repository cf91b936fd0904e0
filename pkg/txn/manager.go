// Package txn 实现多步事务：暂存若干文档改动，提交时一次性生成新提交并 CAS 推进分支
package txn

import (
	"context"
	"fmt"
	"sync"
	"time"

	"gitdb/pkg/core"
	"gitdb/pkg/odb"
	"gitdb/pkg/refs"
	"gitdb/pkg/treebuilder"
	"gitdb/pkg/types"
)

// CommitIndexer 把新提交投影到查询索引 (meta.Repository 实现它)
type CommitIndexer interface {
	IndexCommit(ctx context.Context, c *core.Commit) error
}

// Manager 持有所有未结束的事务
// 注册表本身由 mu 保护；单个事务的暂存区由事务自己的锁保护，不同事务互不阻塞。
type Manager struct {
	objects *odb.DB
	refs    *refs.Manager
	builder *treebuilder.Builder
	indexer CommitIndexer
	ids     IDGenerator
	now     func() time.Time

	mu   sync.Mutex
	open map[string]*Transaction
}

type Option func(*Manager)

// WithIDGenerator 替换事务 ID 生成器 (默认 UUIDv7)
func WithIDGenerator(g IDGenerator) Option {
	return func(m *Manager) { m.ids = g }
}

// WithClock 替换提交时间来源
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithCommitIndexer 在提交成功后写入提交索引
func WithCommitIndexer(ix CommitIndexer) Option {
	return func(m *Manager) { m.indexer = ix }
}

func NewManager(objects *odb.DB, refMgr *refs.Manager, opts ...Option) *Manager {
	m := &Manager{
		objects: objects,
		refs:    refMgr,
		builder: treebuilder.NewBuilder(objects),
		ids:     UUIDv7Generator{},
		now:     time.Now,
		open:    make(map[string]*Transaction),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Begin 在 branch 当前的 tip 上开启一个事务
func (m *Manager) Begin(ctx context.Context, branch string) (*Transaction, error) {
	base, err := m.refs.GetBranch(ctx, branch)
	if err != nil {
		return nil, err
	}

	tx := newTransaction(m, m.ids.Generate(), branch, base)

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, dup := m.open[tx.id]; dup {
		return nil, fmt.Errorf("%w: transaction id %s", types.ErrAlreadyExists, tx.id)
	}
	m.open[tx.id] = tx
	return tx, nil
}

// Get 按 ID 查找未结束的事务
func (m *Manager) Get(id string) (*Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tx, ok := m.open[id]
	if !ok {
		return nil, fmt.Errorf("%w: transaction %s", types.ErrNotFound, id)
	}
	return tx, nil
}

// CloseTransactions 中止 branch 上所有未结束的事务，返回关闭的数量
func (m *Manager) CloseTransactions(branch string) int {
	m.mu.Lock()
	var targets []*Transaction
	for _, tx := range m.open {
		if tx.branch == branch {
			targets = append(targets, tx)
		}
	}
	m.mu.Unlock()

	closed := 0
	for _, tx := range targets {
		// 并发提交可能已经结束了它
		if err := tx.Abort(); err == nil {
			closed++
		}
	}
	return closed
}

// Len 返回未结束事务的数量
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.open)
}

func (m *Manager) forget(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.open, id)
}
