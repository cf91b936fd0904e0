package gitdb

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"gitdb/pkg/core"
	"gitdb/pkg/index"
	"gitdb/pkg/meta"
	"gitdb/pkg/storage/memory"
	"gitdb/pkg/txn"
	"gitdb/pkg/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupDB(t *testing.T, opts ...Option) *DB {
	t.Helper()
	ctx := context.Background()
	conn, err := meta.NewDB(ctx, meta.Config{
		Driver: "sqlite",
		Path:   "file:" + t.Name() + "?mode=memory&cache=shared",
	})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	db := New(memory.NewAdapter(), meta.NewRepository(conn), append([]Option{WithDefaultBranch("main")}, opts...)...)
	_, err = db.Init(ctx)
	require.NoError(t, err)
	return db
}

func doc(key, value string) types.Document {
	return types.Document{Key: key, Value: []byte(value)}
}

func mustSave(t *testing.T, db *DB, branch, key, value string) types.Hash {
	t.Helper()
	h, err := db.Save(context.Background(), branch, "save "+key, doc(key, value), "tester")
	require.NoError(t, err)
	return h
}

func mustTip(t *testing.T, db *DB, branch string) types.Hash {
	t.Helper()
	h, err := db.Refs().GetBranch(context.Background(), branch)
	require.NoError(t, err)
	return h
}

func TestInit(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()

	_, rootCommit, err := core.NewRootCommit()
	require.NoError(t, err)

	// 再次 Init 不会创建新分支
	root, err := db.Init(ctx)
	require.NoError(t, err)
	assert.Equal(t, rootCommit.ID(), root)

	branches, err := db.GetAllBranches(ctx)
	require.NoError(t, err)
	assert.Equal(t, []types.Reference{{Name: "main", Pointer: string(root)}}, branches)

	files, err := db.GetFiles(ctx, "main", "")
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestScenario_SaveListDelete(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()

	mustSave(t, db, "main", "a/b.json", "1")

	files, err := db.GetFiles(ctx, "main", "a")
	require.NoError(t, err)
	assert.Equal(t, []string{"a/b.json"}, files)

	_, err = db.Delete(ctx, "main", "a/b.json", "remove", "tester")
	require.NoError(t, err)

	_, err = db.Get(ctx, "main", "a/b.json")
	assert.ErrorIs(t, err, types.ErrNotFound)

	folders, err := db.GetSubfolders(ctx, "main", "")
	require.NoError(t, err)
	assert.Empty(t, folders, "emptied folder is pruned")
}

func TestDelete_MissingDocument(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()

	tip := mustSave(t, db, "main", "a/b", "1")

	tests := []struct {
		name string
		key  string
	}{
		{"Absent key", "nope"},
		{"Folder key", "a"},
		{"Path through a document", "a/b/c"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := db.Delete(ctx, "main", tt.key, "rm", "tester")
			assert.ErrorIs(t, err, types.ErrNotFound)
			assert.Equal(t, tip, mustTip(t, db, "main"), "no commit is written")
		})
	}

	_, err := db.Delete(ctx, "main", "../x", "rm", "tester")
	assert.ErrorIs(t, err, types.ErrInvalidArgument)
	assert.Zero(t, db.txns.Len(), "failed one-shot deletes leave no open transaction")

	got, err := db.Get(ctx, "main", "a/b")
	require.NoError(t, err)
	assert.Equal(t, []byte("1"), got)
}

func TestScenario_TransactionLastOpWins(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()

	id, err := db.CreateTransaction(ctx, "main")
	require.NoError(t, err)
	require.NoError(t, db.AddManyToTransaction(ctx, id, []types.Document{doc("x", "1"), doc("y", "2")}))
	require.NoError(t, db.DeleteInTransaction(id, "x"))
	_, err = db.CommitTransaction(ctx, id, "batch", "tester")
	require.NoError(t, err)

	docs, err := db.GetDocuments(ctx, "main", "")
	require.NoError(t, err)
	assert.Equal(t, []types.Document{doc("y", "2")}, docs)

	// 结束后的事务不可再用
	assert.ErrorIs(t, db.AddToTransaction(ctx, id, doc("z", "3")), types.ErrNotFound)
	assert.ErrorIs(t, db.AbortTransaction(ctx, id), types.ErrNotFound)
}

func TestScenario_MergeConflictKeepsTips(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()

	mustSave(t, db, "main", "k", "base")
	_, err := db.CreateBranch(ctx, types.Reference{Name: "f", Pointer: "main"})
	require.NoError(t, err)
	mustSave(t, db, "f", "k", "from-f")
	mustSave(t, db, "main", "k", "from-main")
	fTip, mainTip := mustTip(t, db, "f"), mustTip(t, db, "main")

	_, err = db.MergeBranch(ctx, "f", "main", "tester", "merge f")
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrConflict))
	var ce *types.ConflictError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, []string{"k"}, ce.Keys())

	assert.Equal(t, fTip, mustTip(t, db, "f"))
	assert.Equal(t, mainTip, mustTip(t, db, "main"))
}

func TestWriteThenRead(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()

	commit := mustSave(t, db, "main", "users/42.json", `{"name":"ada"}`)

	got, err := db.Get(ctx, "main", "users/42.json")
	require.NoError(t, err)
	assert.Equal(t, []byte(`{"name":"ada"}`), got)

	// 提交 Hash 也是合法的 ref
	got, err = db.Get(ctx, string(commit), "users/42.json")
	require.NoError(t, err)
	assert.Equal(t, []byte(`{"name":"ada"}`), got)

	_, err = db.Save(ctx, "missing", "m", doc("a", "1"), "tester")
	assert.ErrorIs(t, err, types.ErrNotFound)
	_, err = db.Save(ctx, "main", "", doc("a", "1"), "tester")
	assert.ErrorIs(t, err, types.ErrInvalidArgument)
	_, err = db.Save(ctx, "main", "m", doc("a//b", "1"), "tester")
	assert.ErrorIs(t, err, types.ErrInvalidArgument)
}

func TestStaleTransactionConflicts(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()

	first, err := db.CreateTransaction(ctx, "main")
	require.NoError(t, err)
	second, err := db.CreateTransaction(ctx, "main")
	require.NoError(t, err)

	require.NoError(t, db.AddToTransaction(ctx, first, doc("a", "1")))
	require.NoError(t, db.AddToTransaction(ctx, second, doc("a", "2")))

	winner, err := db.CommitTransaction(ctx, first, "first", "tester")
	require.NoError(t, err)

	_, err = db.CommitTransaction(ctx, second, "second", "tester")
	assert.ErrorIs(t, err, types.ErrConflict)
	assert.Equal(t, winner, mustTip(t, db, "main"))

	_, err = db.Transaction(second)
	assert.ErrorIs(t, err, types.ErrNotFound, "conflict terminates the transaction")
}

func TestCommitIndex(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()
	mustSave(t, db, "main", "gone", "x")

	blob, err := db.Objects().PutBlob(ctx, []byte("from disk"))
	require.NoError(t, err)

	staged := index.New()
	staged.Base = mustTip(t, db, "main")
	staged.Add("docs/a", blob.ID(), blob.Size())
	staged.Delete("gone")

	commit, err := db.CommitIndex(ctx, "main", staged, "commit index", "tester")
	require.NoError(t, err)
	assert.Equal(t, commit, mustTip(t, db, "main"))

	got, err := db.Get(ctx, "main", "docs/a")
	require.NoError(t, err)
	assert.Equal(t, "from disk", string(got))
	_, err = db.Get(ctx, "main", "gone")
	assert.ErrorIs(t, err, types.ErrNotFound)

	// 暂存区的 Base 已经落后于分支
	_, err = db.CommitIndex(ctx, "main", staged, "again", "tester")
	assert.ErrorIs(t, err, types.ErrConflict)
	assert.Equal(t, commit, mustTip(t, db, "main"))
}

func TestMergeWithItself(t *testing.T) {
	db := setupDB(t)
	mustSave(t, db, "main", "a", "1")
	before := mustTip(t, db, "main")

	res, err := db.MergeBranch(context.Background(), "main", "main", "tester", "self")
	require.NoError(t, err)
	assert.True(t, res.NoOp)
	assert.Equal(t, before, mustTip(t, db, "main"))
}

func TestDiffProperties(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()

	mustSave(t, db, "main", "keep", "1")
	mustSave(t, db, "main", "change", "1")
	mustSave(t, db, "main", "drop", "1")
	_, err := db.Tag(ctx, types.Reference{Name: "v1", Pointer: "main"})
	require.NoError(t, err)

	mustSave(t, db, "main", "change", "2")
	mustSave(t, db, "main", "dir/new", "1")
	_, err = db.Delete(ctx, "main", "drop", "rm", "tester")
	require.NoError(t, err)

	same, err := db.Diff(ctx, "main", "main")
	require.NoError(t, err)
	assert.True(t, same.IsEmpty())

	forward, err := db.Diff(ctx, "v1", "main")
	require.NoError(t, err)
	assert.Equal(t, types.Diff{
		Added:    []string{"dir/new"},
		Removed:  []string{"drop"},
		Modified: []string{"change"},
	}, forward)

	backward, err := db.Diff(ctx, "main", "v1")
	require.NoError(t, err)
	assert.Equal(t, forward.Added, backward.Removed)
	assert.Equal(t, forward.Removed, backward.Added)
	assert.Equal(t, forward.Modified, backward.Modified)
}

func TestLog(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()

	first := mustSave(t, db, "main", "a", "1")
	_, err := db.Tag(ctx, types.Reference{Name: "v1", Pointer: "main"})
	require.NoError(t, err)
	second := mustSave(t, db, "main", "b", "2")
	third := mustSave(t, db, "main", "c", "3")

	log, err := db.Log(ctx, "v1", "main")
	require.NoError(t, err)
	require.Len(t, log, 2)
	assert.Equal(t, third, log[0].Hash)
	assert.Equal(t, second, log[1].Hash)

	empty, err := db.Log(ctx, "main", "v1")
	require.NoError(t, err)
	assert.Empty(t, empty)

	all, err := db.History(ctx, "main")
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.Equal(t, first, all[2].Hash)
	assert.Empty(t, all[3].Parents, "history ends at the root commit")
}

func TestRebaseYieldsUnion(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()

	mustSave(t, db, "main", "base", "0")
	_, err := db.CreateBranch(ctx, types.Reference{Name: "f", Pointer: "main"})
	require.NoError(t, err)
	mustSave(t, db, "f", "from-f", "f")
	mustSave(t, db, "main", "from-main", "m")

	res, err := db.RebaseBranch(ctx, "f", "main", "tester", "rebase f")
	require.NoError(t, err)
	assert.Equal(t, 1, res.Replayed)

	files, err := db.GetFiles(ctx, "f", "")
	require.NoError(t, err)
	assert.Equal(t, []string{"base", "from-f", "from-main"}, files)

	entries, err := db.RefLog(ctx, "f", 1)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, meta.ActionRebase, entries[0].Action)
}

func TestBranchesAndTags(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()
	tip := mustSave(t, db, "main", "a", "1")

	_, err := db.CreateBranch(ctx, types.Reference{Name: "main"})
	assert.ErrorIs(t, err, types.ErrAlreadyExists)

	ref, err := db.CreateBranch(ctx, types.Reference{Name: "dev", Pointer: string(tip[:6])})
	require.NoError(t, err)
	assert.Equal(t, string(tip), ref.Pointer)

	_, err = db.Tag(ctx, types.Reference{Name: "dev", Pointer: "main"})
	require.NoError(t, err, "tags and branches use separate namespaces")
	_, err = db.Tag(ctx, types.Reference{Name: "dev", Pointer: "main"})
	assert.ErrorIs(t, err, types.ErrAlreadyExists)

	require.NoError(t, db.DeleteBranch(ctx, "dev"))
	assert.ErrorIs(t, db.DeleteBranch(ctx, "dev"), types.ErrNotFound)

	// 分支被删后，同名标签依然可解析
	got, err := db.Get(ctx, "dev", "a")
	require.NoError(t, err)
	assert.Equal(t, []byte("1"), got)

	require.NoError(t, db.DeleteTag(ctx, "dev"))
	tags, err := db.GetAllTags(ctx)
	require.NoError(t, err)
	assert.Empty(t, tags)

	// 删除记录保留在 reflog 中
	entries, err := db.RefLog(ctx, "dev", 0)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, meta.ActionDelete, entries[0].Action)
}

func TestCloseTransactions(t *testing.T) {
	db := setupDB(t, WithIDGenerator(txn.NewFixedGenerator("t1", "t2", "t3")))
	ctx := context.Background()
	_, err := db.CreateBranch(ctx, types.Reference{Name: "other"})
	require.NoError(t, err)

	for _, branch := range []string{"main", "main", "other"} {
		_, err := db.CreateTransaction(ctx, branch)
		require.NoError(t, err)
	}

	assert.Equal(t, 2, db.CloseTransactions(ctx, "main"))
	assert.Equal(t, 0, db.CloseTransactions(ctx, "main"))

	_, err = db.Transaction("t1")
	assert.ErrorIs(t, err, types.ErrNotFound)
	_, err = db.Transaction("t3")
	assert.NoError(t, err)
}

func TestFindCommitsByAuthor(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()

	_, err := db.Save(ctx, "main", "by ada", doc("a", "1"), "ada")
	require.NoError(t, err)
	mustSave(t, db, "main", "b", "2")

	commits, err := db.FindCommitsByAuthor(ctx, "ada", 0)
	require.NoError(t, err)
	require.Len(t, commits, 1)
	assert.Equal(t, "by ada", commits[0].Message)
	assert.Len(t, commits[0].Parents, 1)
}

func TestDecodeKey(t *testing.T) {
	key, err := DecodeKey("a%2Fb%20c.json")
	require.NoError(t, err)
	assert.Equal(t, "a/b c.json", key)

	_, err = DecodeKey("bad%zz")
	assert.ErrorIs(t, err, types.ErrInvalidArgument)
}

func TestOperationLogging(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(prev) })

	db := setupDB(t)
	mustSave(t, db, "main", "a", "1")
	assert.Contains(t, buf.String(), "op=Save")
	assert.Contains(t, buf.String(), "level=INFO")

	buf.Reset()
	_, err := db.Save(context.Background(), "nope", "m", doc("a", "1"), "tester")
	require.Error(t, err)
	assert.Contains(t, buf.String(), "level=WARN")
	assert.Contains(t, buf.String(), "code=NOT_FOUND")
}
