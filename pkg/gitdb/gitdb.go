// Package gitdb 是文档数据库引擎的门面：把引用、事务、合并、变基和历史查询组合成一组操作
package gitdb

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"gitdb/pkg/merge"
	"gitdb/pkg/meta"
	"gitdb/pkg/navigator"
	"gitdb/pkg/odb"
	"gitdb/pkg/rebase"
	"gitdb/pkg/refs"
	"gitdb/pkg/storage"
	"gitdb/pkg/txn"
	"gitdb/pkg/types"
)

const (
	DefaultBranch = "master"
	// SystemAuthor 记录在引擎自身发起的引用变更上
	SystemAuthor = "gitdb"
)

// DB 持有引擎的所有组件
type DB struct {
	objects *odb.DB
	repo    *meta.Repository
	refs    *refs.Manager
	nav     *navigator.Navigator
	txns    *txn.Manager
	merger  *merge.Engine
	rebaser *rebase.Engine

	defaultBranch string
	actor         string
}

type options struct {
	defaultBranch string
	actor         string
	now           func() time.Time
	ids           txn.IDGenerator
}

type Option func(*options)

// WithDefaultBranch 设置 Init 创建的分支名
func WithDefaultBranch(name string) Option {
	return func(o *options) { o.defaultBranch = name }
}

// WithActor 设置分支/标签管理操作写入 reflog 的作者
func WithActor(name string) Option {
	return func(o *options) { o.actor = name }
}

// WithClock 替换提交时间来源 (测试用)
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithIDGenerator 替换事务 ID 生成器
func WithIDGenerator(g txn.IDGenerator) Option {
	return func(o *options) { o.ids = g }
}

// New 用对象存储和元数据仓库组装引擎
func New(store storage.Store, repo *meta.Repository, opts ...Option) *DB {
	o := options{
		defaultBranch: DefaultBranch,
		actor:         SystemAuthor,
		now:           time.Now,
		ids:           txn.UUIDv7Generator{},
	}
	for _, opt := range opts {
		opt(&o)
	}

	objects := odb.New(store)
	refMgr := refs.NewManager(repo, objects)
	return &DB{
		objects: objects,
		repo:    repo,
		refs:    refMgr,
		nav:     navigator.New(objects),
		txns: txn.NewManager(objects, refMgr,
			txn.WithIDGenerator(o.ids),
			txn.WithClock(o.now),
			txn.WithCommitIndexer(repo),
		),
		merger: merge.New(objects, refMgr,
			merge.WithClock(o.now),
			merge.WithCommitIndexer(repo),
		),
		rebaser: rebase.New(objects, refMgr,
			rebase.WithClock(o.now),
			rebase.WithCommitIndexer(repo),
		),
		defaultBranch: o.defaultBranch,
		actor:         o.actor,
	}
}

// Objects 暴露底层对象库 (导出/导入使用)
func (d *DB) Objects() *odb.DB { return d.objects }

// Refs 暴露引用管理器
func (d *DB) Refs() *refs.Manager { return d.refs }

// Navigator 暴露只读的快照导航
func (d *DB) Navigator() *navigator.Navigator { return d.nav }

// Init 写入根提交；没有任何分支时创建默认分支
// 可以重复调用。
func (d *DB) Init(ctx context.Context) (types.Hash, error) {
	start := time.Now()
	root, err := d.objects.EnsureRoot(ctx)
	if err != nil {
		logOp(ctx, "Init", start, err)
		return "", err
	}

	branches, err := d.refs.GetAllBranches(ctx)
	if err != nil {
		logOp(ctx, "Init", start, err)
		return "", err
	}
	if len(branches) == 0 {
		_, err = d.refs.CreateBranch(ctx, d.defaultBranch, "", d.actor)
	}
	logOp(ctx, "Init", start, err,
		slog.String("branch", d.defaultBranch),
		slog.String("commit", root.Short()),
	)
	if err != nil {
		return "", err
	}
	return root, nil
}

// DecodeKey 还原路由层传入的百分号编码的 Key
func DecodeKey(raw string) (string, error) {
	key, err := url.PathUnescape(raw)
	if err != nil {
		return "", fmt.Errorf("%w: malformed key %q: %v", types.ErrInvalidArgument, raw, err)
	}
	return key, nil
}

// logOp 为每个变更操作打印一条结构化日志
// 成功为 Info，领域错误 (NotFound/Conflict 等) 为 Warn，其它为 Error。
func logOp(ctx context.Context, op string, start time.Time, err error, attrs ...slog.Attr) {
	code := types.Code(err)
	level := slog.LevelInfo
	switch code {
	case "OK":
	case "INTERNAL":
		level = slog.LevelError
	default:
		level = slog.LevelWarn
	}

	all := append([]slog.Attr{
		slog.String("op", op),
		slog.String("code", code),
		slog.Duration("dur", time.Since(start)),
	}, attrs...)
	if err != nil {
		all = append(all, slog.String("err", err.Error()))
	}
	slog.LogAttrs(ctx, level, "gitdb operation", all...)
}
