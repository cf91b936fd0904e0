package meta

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"gitdb/pkg/core"
	"gitdb/pkg/types"

	"github.com/stretchr/testify/require"
)

// mockHash 生成合法的测试用 Hash
func mockHash(input string) types.Hash {
	sum := sha256.Sum256([]byte(input))
	return types.Hash(hex.EncodeToString(sum[:]))
}

// mustNewCommit 创建指定时间戳的 Commit，如果失败直接终止测试
func mustNewCommit(t *testing.T, treeHash types.Hash, parents []types.Hash, author, msg string, ts int64, msgAndArgs ...any) *core.Commit {
	t.Helper()
	c, err := core.NewCommitAt(treeHash, parents, author, msg, ts)
	require.NoError(t, err, msgAndArgs...)
	return c
}

// mustIndexCommit 强制索引 Commit，失败则终止
func mustIndexCommit(t *testing.T, repo *Repository, c *core.Commit, msgAndArgs ...any) {
	t.Helper()
	err := repo.IndexCommit(context.Background(), c)
	require.NoError(t, err, msgAndArgs...)
}

// mustCreateBranch 强制创建分支引用，失败则终止
func mustCreateBranch(t *testing.T, repo *Repository, name string, hash types.Hash, msgAndArgs ...any) {
	t.Helper()
	err := repo.CreateRef(context.Background(), &Ref{Name: name, Kind: KindBranch, CommitHash: hash}, nil)
	require.NoError(t, err, msgAndArgs...)
}
