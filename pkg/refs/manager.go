// Package refs 管理分支与标签。引用存放在 meta 的 refs 表里，
// 每次移动都通过 CAS 完成并留下 reflog。
package refs

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gitdb/pkg/meta"
	"gitdb/pkg/odb"
	"gitdb/pkg/types"

	"github.com/go-git/go-git/v5/plumbing"
)

const (
	BranchPrefix = "refs/heads/"
	TagPrefix    = "refs/tags/"
)

// ErrStaleTip 表示分支已被别人移动，CAS 失败
var ErrStaleTip = fmt.Errorf("%w: branch tip moved", types.ErrConflict)

// Move 描述一次分支移动，用于写入 reflog
type Move struct {
	Author  string
	Message string
	Action  meta.RefAction
}

// Manager 负责管理引用 (Refs)
type Manager struct {
	repo    *meta.Repository
	objects *odb.DB
}

func NewManager(repo *meta.Repository, objects *odb.DB) *Manager {
	return &Manager{repo: repo, objects: objects}
}

// ValidateName 按 git 的引用命名规则检查短名字
func ValidateName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: reference name is empty", types.ErrInvalidArgument)
	}
	if err := plumbing.NewBranchReferenceName(name).Validate(); err != nil {
		return fmt.Errorf("%w: reference name %q: %v", types.ErrInvalidArgument, name, err)
	}
	return nil
}

// -----------------------------------------------------------------------------
// 分支
// -----------------------------------------------------------------------------

// CreateBranch 从 startPoint 创建分支。startPoint 为空表示根提交。
func (m *Manager) CreateBranch(ctx context.Context, name, startPoint, author string) (types.Reference, error) {
	if err := ValidateName(name); err != nil {
		return types.Reference{}, err
	}

	var target types.Hash
	var err error
	if startPoint == "" {
		target, err = m.objects.EnsureRoot(ctx)
	} else {
		target, err = m.Resolve(ctx, startPoint)
	}
	if err != nil {
		return types.Reference{}, err
	}

	full := BranchPrefix + name
	err = m.repo.CreateRef(ctx,
		&meta.Ref{Name: full, Kind: meta.KindBranch, CommitHash: target},
		&meta.RefLogEntry{
			Ref:     full,
			NewHash: target,
			Author:  author,
			Message: "branch: created from " + displayStart(startPoint),
			Action:  meta.ActionCreate,
		},
	)
	if err != nil {
		return types.Reference{}, translate(err, "branch", name)
	}
	return types.Reference{Name: name, Pointer: string(target)}, nil
}

func displayStart(startPoint string) string {
	if startPoint == "" {
		return "root"
	}
	return startPoint
}

// DeleteBranch 删除分支，不影响任何对象
func (m *Manager) DeleteBranch(ctx context.Context, name, author string) error {
	full := BranchPrefix + name
	ref, err := m.repo.GetRef(ctx, full)
	if err != nil {
		return translate(err, "branch", name)
	}
	err = m.repo.DeleteRef(ctx, full, &meta.RefLogEntry{
		Ref:     full,
		OldHash: ref.CommitHash,
		Author:  author,
		Message: "branch: deleted",
		Action:  meta.ActionDelete,
	})
	return translate(err, "branch", name)
}

// GetBranch 返回分支的当前指向
func (m *Manager) GetBranch(ctx context.Context, name string) (types.Hash, error) {
	ref, err := m.repo.GetRef(ctx, BranchPrefix+name)
	if err != nil {
		return "", translate(err, "branch", name)
	}
	return ref.CommitHash, nil
}

// GetAllBranches 按名字顺序返回所有分支
func (m *Manager) GetAllBranches(ctx context.Context) ([]types.Reference, error) {
	return m.list(ctx, meta.KindBranch, BranchPrefix)
}

// AdvanceBranch 把分支从 expected 移动到 next。
// 分支已被移动时返回 ErrStaleTip (ErrConflict)，从不覆盖。
func (m *Manager) AdvanceBranch(ctx context.Context, name string, expected, next types.Hash, mv Move) error {
	full := BranchPrefix + name
	err := m.repo.UpdateRef(ctx, full, expected, next, &meta.RefLogEntry{
		Ref:     full,
		OldHash: expected,
		NewHash: next,
		Author:  mv.Author,
		Message: mv.Message,
		Action:  mv.Action,
	})
	if errors.Is(err, meta.ErrConcurrentUpdate) {
		return fmt.Errorf("%w: %s expected at %s", ErrStaleTip, name, expected.Short())
	}
	return translate(err, "branch", name)
}

// RefLog 返回分支的变更记录，最新的在前
func (m *Manager) RefLog(ctx context.Context, name string, limit int) ([]meta.RefLogEntry, error) {
	return m.repo.RefLog(ctx, BranchPrefix+name, limit)
}

// -----------------------------------------------------------------------------
// 标签
// -----------------------------------------------------------------------------

// CreateTag 一次性绑定标签到 target 解析出的提交
func (m *Manager) CreateTag(ctx context.Context, name, target string) (types.Reference, error) {
	if err := ValidateName(name); err != nil {
		return types.Reference{}, err
	}
	hash, err := m.Resolve(ctx, target)
	if err != nil {
		return types.Reference{}, err
	}
	err = m.repo.CreateRef(ctx, &meta.Ref{Name: TagPrefix + name, Kind: meta.KindTag, CommitHash: hash}, nil)
	if err != nil {
		return types.Reference{}, translate(err, "tag", name)
	}
	return types.Reference{Name: name, Pointer: string(hash)}, nil
}

// DeleteTag 只删除绑定，提交本身不受影响
func (m *Manager) DeleteTag(ctx context.Context, name string) error {
	return translate(m.repo.DeleteRef(ctx, TagPrefix+name, nil), "tag", name)
}

func (m *Manager) GetAllTags(ctx context.Context) ([]types.Reference, error) {
	return m.list(ctx, meta.KindTag, TagPrefix)
}

func (m *Manager) list(ctx context.Context, kind meta.RefKind, prefix string) ([]types.Reference, error) {
	rows, err := m.repo.ListRefs(ctx, kind)
	if err != nil {
		return nil, err
	}
	out := make([]types.Reference, 0, len(rows))
	for _, r := range rows {
		out = append(out, types.Reference{
			Name:    strings.TrimPrefix(r.Name, prefix),
			Pointer: string(r.CommitHash),
		})
	}
	return out, nil
}

// -----------------------------------------------------------------------------
// 解析
// -----------------------------------------------------------------------------

// Resolve 把 ref 解析为提交 Hash
// 顺序: 分支名 -> 标签名 -> 完整提交 Hash -> 唯一的 Hash 前缀 (至少 4 位)
func (m *Manager) Resolve(ctx context.Context, ref string) (types.Hash, error) {
	if ref == "" {
		return "", fmt.Errorf("%w: empty reference", types.ErrInvalidArgument)
	}

	for _, name := range []string{BranchPrefix + ref, TagPrefix + ref} {
		r, err := m.repo.GetRef(ctx, name)
		if err == nil {
			return r.CommitHash, nil
		}
		if !errors.Is(err, meta.ErrRefNotFound) {
			return "", err
		}
	}

	if !looksLikeHash(ref) {
		return "", fmt.Errorf("%w: reference %q", types.ErrNotFound, ref)
	}

	hash := types.Hash(strings.ToLower(ref))
	if !hash.IsValid() {
		expanded, err := m.objects.ExpandHash(ctx, types.HashPrefix(hash))
		if err != nil {
			return "", fmt.Errorf("reference %q: %w", ref, err)
		}
		hash = expanded
	}

	// 只接受提交对象
	if _, err := m.objects.GetCommit(ctx, hash); err != nil {
		return "", fmt.Errorf("reference %q: %w", ref, err)
	}
	return hash, nil
}

func looksLikeHash(s string) bool {
	if len(s) < 4 || len(s) > 64 {
		return false
	}
	for _, c := range s {
		switch {
		case c >= '0' && c <= '9', c >= 'a' && c <= 'f', c >= 'A' && c <= 'F':
		default:
			return false
		}
	}
	return true
}

// translate 把 meta 的错误映射为领域错误
func translate(err error, kind, name string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, meta.ErrRefNotFound):
		return fmt.Errorf("%w: %s %q", types.ErrNotFound, kind, name)
	case errors.Is(err, meta.ErrRefExists):
		return fmt.Errorf("%w: %s %q", types.ErrAlreadyExists, kind, name)
	default:
		return err
	}
}
