package meta

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"gitdb/pkg/core"
	"gitdb/pkg/types"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrRefNotFound      = errors.New("reference not found")
	ErrRefExists        = errors.New("reference already exists")
	ErrConcurrentUpdate = errors.New("concurrent update detected (CAS failed)")
	ErrCommitNotFound   = errors.New("commit not found in metadata")
)

// Repository 封装所有对 SQL 数据库的操作
type Repository struct {
	db *DB
}

func NewRepository(db *DB) *Repository {
	return &Repository{db: db}
}

// isDuplicate 兼容不同数据库 (PG 与 SQLite) 的唯一约束错误
func isDuplicate(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "duplicate key value")
}

// -----------------------------------------------------------------------------
// 1. 引用管理 (Refs / Branches / Tags)
// -----------------------------------------------------------------------------

// CreateRef 创建一个新引用，同名引用已存在时返回 ErrRefExists
// entry 不为空时与引用在同一个事务里写入 reflog
func (r *Repository) CreateRef(ctx context.Context, ref *Ref, entry *RefLogEntry) error {
	return r.db.GetConn().WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if ref.Version == 0 {
			ref.Version = 1
		}
		if err := tx.Create(ref).Error; err != nil {
			if isDuplicate(err) {
				return ErrRefExists
			}
			return fmt.Errorf("failed to create ref: %w", err)
		}
		return appendLog(tx, entry)
	})
}

// GetRef 获取引用的当前指向
func (r *Repository) GetRef(ctx context.Context, name string) (*Ref, error) {
	var ref Ref
	err := r.db.GetConn().WithContext(ctx).
		Where("name = ?", name).
		First(&ref).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrRefNotFound
	}
	if err != nil {
		return nil, err
	}
	return &ref, nil
}

// ListRefs 按名字顺序列出某一类引用
func (r *Repository) ListRefs(ctx context.Context, kind RefKind) ([]Ref, error) {
	var refs []Ref
	err := r.db.GetConn().WithContext(ctx).
		Where("kind = ?", kind).
		Order("name ASC").
		Find(&refs).Error
	return refs, err
}

// UpdateRef 原子更新引用 (CAS - Compare And Swap)
// expected: 调用方读到的 Commit Hash。如果数据库里现在的值不等于它，说明有人抢先改了。
// SQL: UPDATE refs SET commit_hash = ?, version = version + 1 WHERE name = ? AND commit_hash = ?
func (r *Repository) UpdateRef(ctx context.Context, name string, expected, newHash types.Hash, entry *RefLogEntry) error {
	return r.db.GetConn().WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&Ref{}).
			Where("name = ? AND commit_hash = ?", name, expected).
			Updates(map[string]any{
				"commit_hash": newHash,
				"version":     gorm.Expr("version + 1"),
				"updated_at":  time.Now(),
			})
		if result.Error != nil {
			return result.Error
		}

		// 影响行数为 0：要么引用不存在，要么已被别人移动
		if result.RowsAffected == 0 {
			var count int64
			if err := tx.Model(&Ref{}).Where("name = ?", name).Count(&count).Error; err != nil {
				return err
			}
			if count == 0 {
				return ErrRefNotFound
			}
			return ErrConcurrentUpdate
		}

		return appendLog(tx, entry)
	})
}

// DeleteRef 删除引用，不存在时返回 ErrRefNotFound
func (r *Repository) DeleteRef(ctx context.Context, name string, entry *RefLogEntry) error {
	return r.db.GetConn().WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Where("name = ?", name).Delete(&Ref{})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrRefNotFound
		}
		return appendLog(tx, entry)
	})
}

// -----------------------------------------------------------------------------
// 2. 引用日志 (RefLog)
// -----------------------------------------------------------------------------

func appendLog(tx *gorm.DB, entry *RefLogEntry) error {
	if entry == nil {
		return nil
	}
	if err := tx.Create(entry).Error; err != nil {
		return fmt.Errorf("failed to append reflog: %w", err)
	}
	return nil
}

// RefLog 返回引用的变更记录，最新的在前；limit <= 0 表示不限制
func (r *Repository) RefLog(ctx context.Context, name string, limit int) ([]RefLogEntry, error) {
	q := r.db.GetConn().WithContext(ctx).
		Where("ref = ?", name).
		Order("id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}

	var entries []RefLogEntry
	err := q.Find(&entries).Error
	return entries, err
}

// -----------------------------------------------------------------------------
// 3. 提交索引 (Commit Indexing)
// -----------------------------------------------------------------------------

// IndexCommit 将 core.Commit 对象投影到 SQL 数据库中
func (r *Repository) IndexCommit(ctx context.Context, c *core.Commit) error {
	parentsJSON, err := json.Marshal(c.ParentHashes())
	if err != nil {
		return fmt.Errorf("failed to marshal parents: %w", err)
	}

	model := CommitModel{
		Hash:      c.ID(),
		Author:    c.Author,
		Message:   c.Message,
		Timestamp: c.Timestamp,
		TreeHash:  c.TreeHash(),
		Parents:   datatypes.JSON(parentsJSON),
		CreatedAt: time.Unix(c.Timestamp, 0),
	}

	// 幂等写入：Hash 已存在则忽略
	err = r.db.GetConn().WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "hash"}},
			DoNothing: true,
		}).
		Create(&model).Error

	if err != nil {
		return fmt.Errorf("failed to index commit: %w", err)
	}
	return nil
}

func (r *Repository) GetCommit(ctx context.Context, hash types.Hash) (*CommitModel, error) {
	var commit CommitModel
	err := r.db.GetConn().WithContext(ctx).
		Where("hash = ?", hash).
		First(&commit).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrCommitNotFound
	}
	if err != nil {
		return nil, err
	}
	return &commit, nil
}

// ParentHashes 解出 JSON 中的父节点列表
func (m *CommitModel) ParentHashes() ([]types.Hash, error) {
	var parents []types.Hash
	if len(m.Parents) == 0 {
		return nil, nil
	}
	if err := json.Unmarshal(m.Parents, &parents); err != nil {
		return nil, fmt.Errorf("failed to unmarshal parents of %s: %w", m.Hash, err)
	}
	return parents, nil
}

// FindCommitsByAuthor 按作者查询提交，最新的在前；limit <= 0 表示不限制
func (r *Repository) FindCommitsByAuthor(ctx context.Context, author string, limit int) ([]CommitModel, error) {
	q := r.db.GetConn().WithContext(ctx).
		Where("author = ?", author).
		Order("timestamp DESC").
		Order("hash ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}

	var commits []CommitModel
	err := q.Find(&commits).Error
	return commits, err
}
