package commands

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"gitdb/pkg/exporter"
	"gitdb/pkg/ignore"
	"gitdb/pkg/index"
	"gitdb/pkg/types"

	"github.com/spf13/cobra"
)

var commitMsg string

var addCmd = &cobra.Command{
	Use:   "add <path>...",
	Short: "Stage files as documents in the index",
	Long: `Store the contents of the given files (directories are walked recursively,
honoring .gitdbignore) and record them in the index. The document key is the
file path relative to the current directory.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		start := time.Now()

		wd, err := os.Getwd()
		if err != nil {
			return err
		}
		matcher, err := ignore.NewMatcher(wd)
		if err != nil {
			return err
		}
		if err := stageBase(cmd); err != nil {
			return err
		}

		var docs []types.Document
		for _, path := range args {
			found, err := collect(cmd, path, matcher)
			if err != nil {
				return err
			}
			docs = append(docs, found...)
		}

		var totalSize int64
		for _, d := range docs {
			blob, err := DB.Engine.Objects().PutBlob(ctx, d.Value)
			if err != nil {
				return fmt.Errorf("failed to store %s: %w", d.Key, err)
			}
			DB.Index.Add(d.Key, blob.ID(), blob.Size())
			totalSize += blob.Size()
		}

		if len(docs) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No files added.")
			return nil
		}
		if err := DB.Index.Save(); err != nil {
			return fmt.Errorf("failed to save index: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Added %d files (%dB) in %s\n", len(docs), totalSize, time.Since(start).Round(time.Millisecond))
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the changes staged in the index",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		snap := DB.Index.Snapshot()
		keys := DB.Index.Keys()
		entries := make([]index.Entry, 0, len(keys))
		for _, k := range keys {
			entries = append(entries, snap[k])
		}

		view := struct {
			Branch  string        `yaml:"branch"`
			Base    types.Hash    `yaml:"base,omitempty"`
			Entries []index.Entry `yaml:"entries"`
		}{branch, DB.Index.Base, entries}

		return render(cmd, view, func(w io.Writer) error {
			fmt.Fprintf(w, "On branch %s\n", branch)
			if len(entries) == 0 {
				fmt.Fprintln(w, "nothing staged")
				return nil
			}
			fmt.Fprintf(w, "Changes to be committed (base %s):\n", DB.Index.Base.Short())
			for _, e := range entries {
				if e.Delete {
					fmt.Fprintf(w, "\tdeleted:  %s\n", e.Key)
				} else {
					fmt.Fprintf(w, "\tstaged:   %s (%dB)\n", e.Key, e.Size)
				}
			}
			return nil
		})
	},
}

var commitCmd = &cobra.Command{
	Use:   "commit",
	Short: "Commit the staged changes to the branch",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if commitMsg == "" {
			return fmt.Errorf("%w: commit message cannot be empty (use -m)", types.ErrInvalidArgument)
		}
		if DB.Index.IsEmpty() {
			fmt.Fprintln(cmd.OutOrStdout(), "nothing to commit")
			return nil
		}

		commit, err := DB.Engine.CommitIndex(cmd.Context(), branch, DB.Index, commitMsg, DB.User)
		if err != nil {
			return err
		}

		// 提交已经成功，清空暂存区失败只记录警告
		DB.Index.Reset()
		if err := DB.Index.Save(); err != nil {
			slog.Warn("failed to clear index", slog.Any("err", err))
		}
		fmt.Fprintf(cmd.OutOrStdout(), "[%s %s] %s\n", branch, commit.Short(), commitMsg)
		return nil
	},
}

// stageBase 在暂存区为空时记录它基于的分支 tip
func stageBase(cmd *cobra.Command) error {
	if !DB.Index.Base.IsZero() {
		return nil
	}
	tip, err := DB.Engine.Refs().GetBranch(cmd.Context(), branch)
	if err != nil {
		return err
	}
	DB.Index.Base = tip
	return nil
}

// collect 读取 path 下的文档；目录按 .gitdbignore 过滤
func collect(cmd *cobra.Command, path string, matcher *ignore.Matcher) ([]types.Document, error) {
	prefix, err := keyOf(path)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return exporter.ImportDir(cmd.Context(), path, prefix, matcher)
	}
	if prefix == "" {
		return nil, fmt.Errorf("%w: cannot derive a key from %q", types.ErrInvalidArgument, path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return []types.Document{{Key: prefix, Value: data}}, nil
}

// keyOf 把相对路径转换为文档 Key
func keyOf(path string) (string, error) {
	p := filepath.ToSlash(filepath.Clean(path))
	if p == "." {
		return "", nil
	}
	return types.CleanPrefix(p)
}

func init() {
	commitCmd.Flags().StringVarP(&commitMsg, "message", "m", "", "commit message")
	rootCmd.AddCommand(addCmd, statusCmd, commitCmd)
}
