package meta

import (
	"time"

	"gitdb/pkg/types"

	"gorm.io/datatypes"
)

// RefKind 区分分支与标签，两者的命名空间互相独立
type RefKind string

const (
	KindBranch RefKind = "branch"
	KindTag    RefKind = "tag"
)

// Ref 存储一个引用 (例如 "refs/heads/main" 或 "refs/tags/v1")
type Ref struct {
	// Name 是完整引用名，作为主键
	Name string `gorm:"primaryKey;type:varchar(255)"`

	Kind RefKind `gorm:"index;type:varchar(16);not null"`

	// CommitHash 指向当前的 Commit ID，CAS 以它为比较对象
	CommitHash types.Hash `gorm:"type:char(64);not null"`

	// Version 每次移动 +1，便于观察引用被改写的次数
	Version int64 `gorm:"default:1"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

// CommitModel 是 core.Commit 在关系型数据库中的投影 (索引)
// 用于按作者、时间查询历史，不参与 DAG 计算
type CommitModel struct {
	Hash types.Hash `gorm:"primaryKey;type:char(64)"`

	Author    string `gorm:"index;type:varchar(100)"`
	Message   string `gorm:"type:text"`
	Timestamp int64  `gorm:"index"`

	TreeHash types.Hash `gorm:"type:char(64);not null"`

	// Parents 是父节点列表 ["hash1", "hash2"]，合并提交有两个
	Parents datatypes.JSON

	CreatedAt time.Time
}

func (CommitModel) TableName() string {
	return "commits"
}

// RefAction 描述一次引用变更的来源
type RefAction string

const (
	ActionCreate RefAction = "create"
	ActionCommit RefAction = "commit"
	ActionMerge  RefAction = "merge"
	ActionRebase RefAction = "rebase"
	ActionDelete RefAction = "delete"
)

// RefLogEntry 是引用移动的审计记录 (对应 Git 的 reflog)
type RefLogEntry struct {
	ID uint `gorm:"primaryKey;autoIncrement"`

	Ref     string     `gorm:"index;type:varchar(255);not null"`
	OldHash types.Hash `gorm:"type:varchar(64)"`
	NewHash types.Hash `gorm:"type:varchar(64)"`

	Author  string    `gorm:"type:varchar(100)"`
	Message string    `gorm:"type:text"`
	Action  RefAction `gorm:"type:varchar(16)"`

	CreatedAt time.Time
}

func (RefLogEntry) TableName() string {
	return "reflog"
}

// AllModels 是需要迁移的全部表
func AllModels() []any {
	return []any{&Ref{}, &CommitModel{}, &RefLogEntry{}}
}
