package treebuilder

import (
	"context"
	"testing"

	"gitdb/pkg/index"
	"gitdb/pkg/odb"
	"gitdb/pkg/storage/memory"
	"gitdb/pkg/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type env struct {
	objects *odb.DB
	store   *memory.Adapter
	builder *Builder
}

func setup(t *testing.T) *env {
	t.Helper()
	store := memory.NewAdapter()
	objects := odb.New(store)
	return &env{objects: objects, store: store, builder: NewBuilder(objects)}
}

// add 写入 Blob 并返回对应的暂存条目
func (e *env) add(t *testing.T, key, content string) index.Entry {
	t.Helper()
	blob, err := e.objects.PutBlob(context.Background(), []byte(content))
	require.NoError(t, err)
	return index.Entry{Key: key, Hash: blob.ID(), Size: blob.Size()}
}

func del(key string) index.Entry {
	return index.Entry{Key: key, Delete: true}
}

// flatten 读出整棵树的 Key -> 内容
func (e *env) flatten(t *testing.T, treeHash types.Hash) map[string]string {
	t.Helper()
	out := make(map[string]string)
	var walk func(h types.Hash, prefix string)
	walk = func(h types.Hash, prefix string) {
		tree, err := e.objects.GetTree(context.Background(), h)
		require.NoError(t, err)
		for _, entry := range tree.Entries {
			key := types.JoinKey(prefix, entry.Name)
			if entry.IsTree() {
				walk(entry.Hash.Hash, key)
				continue
			}
			blob, err := e.objects.GetBlob(context.Background(), entry.Hash.Hash)
			require.NoError(t, err)
			out[key] = string(blob.Bytes())
		}
	}
	walk(treeHash, "")
	return out
}

func (e *env) apply(t *testing.T, base types.Hash, changes ...index.Entry) types.Hash {
	t.Helper()
	m := make(map[string]index.Entry, len(changes))
	for _, c := range changes {
		m[c.Key] = c
	}
	h, err := e.builder.Apply(context.Background(), base, m)
	require.NoError(t, err)
	return h
}

func TestTreeBuilder_FromEmpty(t *testing.T) {
	e := setup(t)

	// root
	//  ├── a.json
	//  └── sub
	//       └── b.json
	root := e.apply(t, "", e.add(t, "a.json", "A"), e.add(t, "sub/b.json", "B"))

	tree, err := e.objects.GetTree(context.Background(), root)
	require.NoError(t, err)
	require.Len(t, tree.Entries, 2)
	assert.Equal(t, "a.json", tree.Entries[0].Name)
	assert.False(t, tree.Entries[0].IsTree())
	assert.Equal(t, int64(1), tree.Entries[0].Size)
	assert.Equal(t, "sub", tree.Entries[1].Name)
	assert.True(t, tree.Entries[1].IsTree())

	assert.Equal(t, map[string]string{"a.json": "A", "sub/b.json": "B"}, e.flatten(t, root))
}

func TestTreeBuilder_Deterministic(t *testing.T) {
	e := setup(t)

	// 同样的内容，不同的构造路径，得到同样的 Hash
	h1 := e.apply(t, "", e.add(t, "x/1", "1"), e.add(t, "x/2", "2"))
	step := e.apply(t, "", e.add(t, "x/2", "2"))
	h2 := e.apply(t, step, e.add(t, "x/1", "1"))

	assert.Equal(t, h1, h2)
}

func TestTreeBuilder_StructuralSharing(t *testing.T) {
	e := setup(t)

	base := e.apply(t, "",
		e.add(t, "left/a", "a"),
		e.add(t, "right/b", "b"),
	)
	baseTree, err := e.objects.GetTree(context.Background(), base)
	require.NoError(t, err)
	left, _ := baseTree.Find("left")

	before := e.store.Len()
	next := e.apply(t, base, e.add(t, "right/c", "c"))

	nextTree, err := e.objects.GetTree(context.Background(), next)
	require.NoError(t, err)
	leftAfter, ok := nextTree.Find("left")
	require.True(t, ok)
	assert.Equal(t, left.Hash, leftAfter.Hash, "untouched subtree must be reused")

	// 新增: blob c、新的 right 树、新的根树
	assert.Equal(t, before+3, e.store.Len())

	assert.Equal(t, map[string]string{"left/a": "a", "right/b": "b", "right/c": "c"}, e.flatten(t, next))
}

func TestTreeBuilder_NoopKeepsHash(t *testing.T) {
	e := setup(t)
	base := e.apply(t, "", e.add(t, "a", "1"))

	// 删除不存在的 Key、用相同内容覆盖都不改变根 Hash
	assert.Equal(t, base, e.apply(t, base, del("missing"), del("nope/deep")))
	assert.Equal(t, base, e.apply(t, base, e.add(t, "a", "1")))
}

func TestTreeBuilder_DeletePrunesEmptyFolders(t *testing.T) {
	e := setup(t)
	base := e.apply(t, "", e.add(t, "a/b/c.json", "1"), e.add(t, "keep.json", "2"))

	next := e.apply(t, base, del("a/b/c.json"))
	tree, err := e.objects.GetTree(context.Background(), next)
	require.NoError(t, err)

	_, ok := tree.Find("a")
	assert.False(t, ok, "empty folder chain should be pruned")
	assert.Equal(t, map[string]string{"keep.json": "2"}, e.flatten(t, next))

	// 全部删除后得到空的根树
	empty := e.apply(t, next, del("keep.json"))
	tree, err = e.objects.GetTree(context.Background(), empty)
	require.NoError(t, err)
	assert.Empty(t, tree.Entries)
}

func TestTreeBuilder_KindClashes(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	base := e.apply(t, "", e.add(t, "doc", "1"), e.add(t, "dir/x", "2"))

	tests := []struct {
		name    string
		changes []index.Entry
	}{
		{"path crosses a document", []index.Entry{e.add(t, "doc/child", "3")}},
		{"document replaces a folder", []index.Entry{e.add(t, "dir", "3")}},
		{"document and folder in one batch", []index.Entry{e.add(t, "new", "3"), e.add(t, "new/x", "4")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := make(map[string]index.Entry)
			for _, c := range tt.changes {
				m[c.Key] = c
			}
			_, err := e.builder.Apply(ctx, base, m)
			assert.ErrorIs(t, err, types.ErrInvalidArgument)
		})
	}
}

func TestTreeBuilder_ReplaceDocumentWithFolder(t *testing.T) {
	e := setup(t)
	base := e.apply(t, "", e.add(t, "doc", "1"))

	// 先删除文档再在同名目录下写入是合法的
	next := e.apply(t, base, del("doc"), e.add(t, "doc/child", "2"))
	assert.Equal(t, map[string]string{"doc/child": "2"}, e.flatten(t, next))
}

func TestTreeBuilder_Build(t *testing.T) {
	e := setup(t)
	idx := index.New()
	a := e.add(t, "a", "1")
	idx.Add(a.Key, a.Hash, a.Size)

	root, err := e.builder.Build(context.Background(), "", idx)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"a": "1"}, e.flatten(t, root))
}
