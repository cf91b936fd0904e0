package exporter

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gitdb/pkg/core"
	"gitdb/pkg/ignore"
	"gitdb/pkg/index"
	"gitdb/pkg/odb"
	"gitdb/pkg/storage/memory"
	"gitdb/pkg/treebuilder"
	"gitdb/pkg/types"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mustSnapshot 把 docs 写成一个以根提交为父节点的提交
func mustSnapshot(t *testing.T, objects *odb.DB, docs []types.Document) *core.Commit {
	t.Helper()
	ctx := context.Background()

	root, err := objects.EnsureRoot(ctx)
	require.NoError(t, err)

	changes := make(map[string]index.Entry, len(docs))
	for _, d := range docs {
		blob, err := objects.PutBlob(ctx, d.Value)
		require.NoError(t, err)
		changes[d.Key] = index.Entry{Key: d.Key, Hash: blob.ID(), Size: blob.Size()}
	}
	tree, err := treebuilder.NewBuilder(objects).Apply(ctx, "", changes)
	require.NoError(t, err)

	commit, err := core.NewCommitAt(tree, []types.Hash{root}, "Tester", "snapshot", 1700000000)
	require.NoError(t, err)
	require.NoError(t, objects.PutCommit(ctx, commit))
	return commit
}

func TestCheckout(t *testing.T) {
	objects := odb.New(memory.NewAdapter())
	exp := NewExporter(objects)
	ctx := context.Background()

	commit := mustSnapshot(t, objects, []types.Document{
		{Key: "a.json", Value: []byte("1")},
		{Key: "dir/b.json", Value: []byte("2")},
		{Key: "dir/sub/c.txt", Value: []byte("3")},
	})

	target := filepath.Join(t.TempDir(), "out")
	var restored []string
	err := exp.Checkout(ctx, commit.ID(), target, func(path, key string, hash types.Hash, size int64) {
		restored = append(restored, key)
		assert.Equal(t, int64(1), size)
		assert.True(t, strings.HasPrefix(path, target))
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a.json", "dir/b.json", "dir/sub/c.txt"}, restored)

	content, err := os.ReadFile(filepath.Join(target, "dir", "sub", "c.txt"))
	require.NoError(t, err)
	assert.Equal(t, []byte("3"), content)

	err = exp.Checkout(ctx, commit.TreeHash(), target, nil)
	assert.ErrorIs(t, err, types.ErrNotFound, "a tree hash is not a commit")
}

func TestImportDir(t *testing.T) {
	root := t.TempDir()
	files := map[string]string{
		"users/1.json":       `{"id":1}`,
		"users/2.json":       `{"id":2}`,
		"settings.json":      `{}`,
		"debug.log":          "noise",
		"tmp/scratch.json":   "x",
		".gitdb/objects/aa":  "internal",
		".gitdbignore":       "tmp/\n",
		"users/.DS_Store":    "mac",
		"nested/deep/k.yaml": "k: v",
	}
	for name, content := range files {
		path := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	}

	matcher, err := ignore.NewMatcher(root, "*.log")
	require.NoError(t, err)

	docs, err := ImportDir(context.Background(), root, "seed", matcher)
	require.NoError(t, err)

	keys := make([]string, len(docs))
	for i, d := range docs {
		keys[i] = d.Key
	}
	assert.Equal(t, []string{
		"seed/nested/deep/k.yaml",
		"seed/settings.json",
		"seed/users/1.json",
		"seed/users/2.json",
	}, keys)
	assert.Equal(t, []byte(`{"id":1}`), docs[2].Value)

	_, err = ImportDir(context.Background(), root, "../up", matcher)
	assert.ErrorIs(t, err, types.ErrInvalidArgument)
}

func TestImportCheckoutRoundTrip(t *testing.T) {
	src := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(src, "a", "b"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(src, "a", "b", "doc.json"), []byte("deep"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(src, "top.json"), []byte("top"), 0644))

	docs, err := ImportDir(context.Background(), src, "", nil)
	require.NoError(t, err)

	objects := odb.New(memory.NewAdapter())
	commit := mustSnapshot(t, objects, docs)

	dst := t.TempDir()
	require.NoError(t, NewExporter(objects).Checkout(context.Background(), commit.ID(), dst, nil))

	again, err := ImportDir(context.Background(), dst, "", nil)
	require.NoError(t, err)
	assert.Equal(t, docs, again)
}

func TestPrintObject(t *testing.T) {
	objects := odb.New(memory.NewAdapter())
	exp := NewExporter(objects)
	ctx := context.Background()

	commit := mustSnapshot(t, objects, []types.Document{{Key: "dir/test.json", Value: []byte("hello")}})
	var buf bytes.Buffer

	require.NoError(t, exp.PrintObject(ctx, commit.ID(), &buf))
	assert.Contains(t, buf.String(), "Type:    Commit")
	assert.Contains(t, buf.String(), "Tester")
	assert.Contains(t, buf.String(), "2023-11-14T22:13:20Z")

	buf.Reset()
	require.NoError(t, exp.PrintObject(ctx, commit.TreeHash(), &buf))
	assert.Contains(t, buf.String(), "Type: Tree")
	assert.Contains(t, buf.String(), "dir")

	buf.Reset()
	blob := core.NewBlob([]byte("hello"))
	require.NoError(t, exp.PrintObject(ctx, blob.ID(), &buf))
	assert.Equal(t, "Type: Blob\nSize: 5B\n\nhello", buf.String())

	buf.Reset()
	require.NoError(t, exp.ExportDocument(ctx, blob.ID(), &buf))
	assert.Equal(t, "hello", buf.String())
	assert.ErrorIs(t, exp.ExportDocument(ctx, hashOf('9'), &buf), types.ErrNotFound)
}

func hashOf(c byte) types.Hash {
	return types.Hash(strings.Repeat(string(c), 64))
}

func TestPrinters_Golden(t *testing.T) {
	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)

	t.Run("log", func(t *testing.T) {
		var buf bytes.Buffer
		PrintLog(&buf, []types.CommitInfo{
			{
				Hash:      hashOf('c'),
				Parents:   []types.Hash{hashOf('b'), hashOf('d')},
				Author:    "bob",
				Message:   "merge f\nsecond line",
				Timestamp: 1700003600,
			},
			{
				Hash:      hashOf('b'),
				Parents:   []types.Hash{hashOf('a')},
				Author:    "alice",
				Message:   "add users",
				Timestamp: 1700000000,
			},
		})
		g.Assert(t, "log", buf.Bytes())
	})

	t.Run("diff", func(t *testing.T) {
		var buf bytes.Buffer
		PrintDiff(&buf, types.Diff{
			Added:    []string{"dir/new"},
			Removed:  []string{"drop"},
			Modified: []string{"change"},
		})
		g.Assert(t, "diff", buf.Bytes())
	})

	t.Run("conflicts", func(t *testing.T) {
		var buf bytes.Buffer
		PrintConflicts(&buf, []types.Conflict{
			{Key: "d", Reason: types.ReasonDeleteModify},
			{Key: "k", Reason: types.ReasonBothModified},
		})
		g.Assert(t, "conflicts", buf.Bytes())
	})

	t.Run("refs", func(t *testing.T) {
		var buf bytes.Buffer
		err := PrintRefs(&buf, []types.Reference{
			{Name: "dev", Pointer: string(hashOf('e'))},
			{Name: "main", Pointer: string(hashOf('f'))},
		}, "main")
		require.NoError(t, err)
		g.Assert(t, "refs", buf.Bytes())
	})
}
