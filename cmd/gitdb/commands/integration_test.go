package commands

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gitdb/pkg/types"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

// cli 在临时目录里驱动真实的命令树：磁盘对象库 + SQLite 文件
type cli struct {
	t   *testing.T
	dir string
}

func newCLI(t *testing.T) *cli {
	t.Setenv("GITDB_USER_NAME", "tester")
	t.Setenv("GITDB_LOG_LEVEL", "error")
	return &cli{t: t, dir: t.TempDir()}
}

// run 执行一条命令，返回 stdout 与 stderr 的合并输出
func (c *cli) run(args ...string) (string, error) {
	c.t.Helper()
	resetFlags(rootCmd)

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(append([]string{"--storage-path", filepath.Join(c.dir, ".gitdb", "objects")}, args...))
	err := ExecuteContext(context.Background())
	return out.String(), err
}

func (c *cli) mustRun(args ...string) string {
	c.t.Helper()
	out, err := c.run(args...)
	require.NoError(c.t, err, "gitdb %s\n%s", strings.Join(args, " "), out)
	return out
}

// resetFlags 把所有命令的 flag 还原为默认值，cobra 的命令树在多次执行间是共享的
func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			_ = sv.Replace(nil)
		} else {
			_ = f.Value.Set(f.DefValue)
		}
		f.Changed = false
	}
	cmd.PersistentFlags().VisitAll(reset)
	cmd.Flags().VisitAll(reset)
	for _, sub := range cmd.Commands() {
		resetFlags(sub)
	}
}

func TestCLI_NotARepository(t *testing.T) {
	c := newCLI(t)
	_, err := c.run("files")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "gitdb init")
}

func TestCLI_DocumentFlow(t *testing.T) {
	c := newCLI(t)
	assert.Contains(t, c.mustRun("init"), "Initialized gitdb repository")
	// 重复 init 是安全的
	c.mustRun("init")

	c.mustRun("save", "users/alice", "--value", `{"age":30}`, "-m", "add alice")
	c.mustRun("save", "users%2Fbob", "--value", "bob")

	assert.Equal(t, `{"age":30}`, c.mustRun("get", "users/alice"))
	assert.Equal(t, "users/alice\nusers/bob\n", c.mustRun("files"))
	assert.Equal(t, "users\n", c.mustRun("folders"))

	c.mustRun("rm", "users/alice", "-m", "bye")
	_, err := c.run("get", "users/alice")
	assert.ErrorIs(t, err, types.ErrNotFound)

	_, err = c.run("save", "k")
	assert.ErrorIs(t, err, types.ErrInvalidArgument)
}

func TestCLI_BranchMergeConflict(t *testing.T) {
	c := newCLI(t)
	c.mustRun("init")
	c.mustRun("save", "k", "--value", "base")
	c.mustRun("branch", "create", "dev", "master")
	c.mustRun("save", "-b", "dev", "k", "--value", "dev")
	c.mustRun("save", "k", "--value", "master")

	out, err := c.run("merge", "dev")
	assert.ErrorIs(t, err, types.ErrConflict)
	assert.Contains(t, out, "CONFLICT ("+types.ReasonBothModified+"): k")
	assert.Equal(t, "master", c.mustRun("get", "k"))

	// dev 上的新文档可以干净地合并回来
	c.mustRun("save", "-b", "dev", "k", "--value", "master")
	c.mustRun("save", "-b", "dev", "extra", "--value", "x")
	assert.Contains(t, c.mustRun("merge", "dev", "-m", "merge dev"), "merge dev")
	assert.Equal(t, "x", c.mustRun("get", "extra"))

	out = c.mustRun("branch")
	assert.Contains(t, out, "* master")
	assert.Contains(t, out, "  dev")
}

func TestCLI_Rebase(t *testing.T) {
	c := newCLI(t)
	c.mustRun("init")
	c.mustRun("save", "a", "--value", "1")
	c.mustRun("branch", "create", "feature", "master")
	c.mustRun("save", "-b", "feature", "f", "--value", "2")
	c.mustRun("save", "b", "--value", "3")

	out := c.mustRun("rebase", "-b", "feature", "master")
	assert.Contains(t, out, "1 replayed, 0 skipped")
	assert.Equal(t, "a\nb\nf\n", c.mustRun("files", "-b", "feature"))
	assert.Contains(t, c.mustRun("reflog", "feature", "-n", "1"), "feature@{0}: rebase:")
}

func TestCLI_AddStatusCommit(t *testing.T) {
	c := newCLI(t)
	c.mustRun("init")
	c.mustRun("save", "old", "--value", "x")
	t.Chdir(c.dir)

	require.NoError(t, os.MkdirAll("docs", 0755))
	require.NoError(t, os.WriteFile(filepath.Join("docs", "a.txt"), []byte("A"), 0644))
	require.NoError(t, os.WriteFile("b.txt", []byte("B"), 0644))

	assert.Contains(t, c.mustRun("add", "docs", "b.txt"), "Added 2 files")
	c.mustRun("rm", "--staged", "old")

	status := c.mustRun("status")
	assert.Contains(t, status, "staged:   docs/a.txt")
	assert.Contains(t, status, "deleted:  old")

	_, err := c.run("commit")
	assert.ErrorIs(t, err, types.ErrInvalidArgument)

	c.mustRun("commit", "-m", "from index")
	assert.Equal(t, "b.txt\ndocs/a.txt\n", c.mustRun("files"))
	assert.Contains(t, c.mustRun("status"), "nothing staged")
	assert.Contains(t, c.mustRun("commit", "-m", "again"), "nothing to commit")

	// 暂存区基于的 tip 已经过时
	c.mustRun("add", "b.txt")
	c.mustRun("save", "other", "--value", "y")
	_, err = c.run("commit", "-m", "stale")
	assert.ErrorIs(t, err, types.ErrConflict)
}

func TestCLI_ImportCheckout(t *testing.T) {
	c := newCLI(t)
	c.mustRun("init")

	src := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(src, "nested"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(src, "one.json"), []byte("1"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(src, "nested", "two.json"), []byte("2"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(src, "skip.tmp"), []byte("-"), 0644))

	out := c.mustRun("import", src, "--prefix", "data", "--exclude", "*.tmp")
	assert.Contains(t, out, "imported 2 documents")
	assert.Equal(t, "data/nested/two.json\ndata/one.json\n", c.mustRun("files", "data"))

	dst := filepath.Join(t.TempDir(), "out")
	assert.Contains(t, c.mustRun("checkout", "--dir", dst), "2 documents")
	got, err := os.ReadFile(filepath.Join(dst, "data", "nested", "two.json"))
	require.NoError(t, err)
	assert.Equal(t, "2", string(got))
}

func TestCLI_LogDiffCat(t *testing.T) {
	c := newCLI(t)
	c.mustRun("init")
	c.mustRun("tag", "create", "v0")
	c.mustRun("save", "a", "--value", "1", "-m", "first")
	c.mustRun("save", "b", "--value", "2", "-m", "second")

	log := c.mustRun("log", "--since", "v0")
	assert.Contains(t, log, "second")
	assert.Contains(t, log, "first")
	assert.NotContains(t, log, "Initial commit")
	assert.Contains(t, c.mustRun("log"), "Initial commit")

	var byAuthor []types.CommitInfo
	require.NoError(t, yaml.Unmarshal([]byte(c.mustRun("log", "--author", "tester", "-n", "1", "-o", "yaml")), &byAuthor))
	require.Len(t, byAuthor, 1)
	assert.Equal(t, "tester", byAuthor[0].Author)

	assert.Equal(t, "A\ta\nA\tb\n", c.mustRun("diff", "v0"))

	var commits []types.CommitInfo
	require.NoError(t, yaml.Unmarshal([]byte(c.mustRun("log", "-o", "yaml", "-n", "1")), &commits))
	require.Len(t, commits, 1)
	assert.Equal(t, "second", commits[0].Message)

	out := c.mustRun("cat", string(commits[0].Hash[:10]))
	assert.Contains(t, out, "second")
	assert.Contains(t, out, string(commits[0].Tree))
}

func TestCLI_YAMLOutput(t *testing.T) {
	c := newCLI(t)
	c.mustRun("init")
	c.mustRun("branch", "create", "dev")

	var refs []types.Reference
	require.NoError(t, yaml.Unmarshal([]byte(c.mustRun("branch", "-o", "yaml")), &refs))
	names := make([]string, len(refs))
	for i, r := range refs {
		names[i] = r.Name
	}
	assert.ElementsMatch(t, []string{"dev", "master"}, names)

	_, err := c.run("branch", "-o", "json")
	assert.ErrorIs(t, err, types.ErrInvalidArgument)
}
