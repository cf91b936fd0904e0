package history

import (
	"context"
	"testing"

	"gitdb/pkg/core"
	"gitdb/pkg/index"
	"gitdb/pkg/odb"
	"gitdb/pkg/storage/memory"
	"gitdb/pkg/treebuilder"
	"gitdb/pkg/types"

	"github.com/stretchr/testify/require"
)

func newObjects() *odb.DB {
	return odb.New(memory.NewAdapter())
}

// mustTree 把 docs 写成一棵树，返回根树 Hash
func mustTree(t *testing.T, objects *odb.DB, docs map[string]string) types.Hash {
	t.Helper()
	ctx := context.Background()
	changes := make(map[string]index.Entry, len(docs))
	for k, v := range docs {
		blob, err := objects.PutBlob(ctx, []byte(v))
		require.NoError(t, err)
		changes[k] = index.Entry{Key: k, Hash: blob.ID(), Size: blob.Size()}
	}
	tree, err := treebuilder.NewBuilder(objects).Apply(ctx, "", changes)
	require.NoError(t, err)
	return tree
}

// mustCommit 在空树上创建一个提交
func mustCommit(t *testing.T, objects *odb.DB, msg string, ts int64, parents ...types.Hash) types.Hash {
	t.Helper()
	return mustCommitTree(t, objects, mustTree(t, objects, nil), msg, ts, parents...)
}

func mustCommitTree(t *testing.T, objects *odb.DB, tree types.Hash, msg string, ts int64, parents ...types.Hash) types.Hash {
	t.Helper()
	c, err := core.NewCommitAt(tree, parents, "tester", msg, ts)
	require.NoError(t, err)
	require.NoError(t, objects.PutCommit(context.Background(), c))
	return c.ID()
}

func messages(log []types.CommitInfo) []string {
	out := make([]string, len(log))
	for i, c := range log {
		out[i] = c.Message
	}
	return out
}
