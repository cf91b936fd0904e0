package commands

import (
	"errors"
	"fmt"
	"io"
	"time"

	"gitdb/pkg/exporter"
	"gitdb/pkg/meta"
	"gitdb/pkg/types"

	"github.com/spf13/cobra"
)

var (
	mergeMessage  string
	rebaseMessage string
	logSince      string
	logAuthor     string
	logLimit      int
	reflogLimit   int
)

var mergeCmd = &cobra.Command{
	Use:   "merge <source>",
	Short: "Merge a ref into the current branch",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		source := args[0]
		msg := mergeMessage
		if msg == "" {
			msg = fmt.Sprintf("Merge %s into %s", source, branch)
		}

		res, err := DB.Engine.MergeBranch(cmd.Context(), source, branch, DB.User, msg)
		if err != nil {
			return reportConflicts(cmd, err)
		}
		return render(cmd, res, func(w io.Writer) error {
			if res.NoOp {
				fmt.Fprintln(w, "Already up to date.")
				return nil
			}
			fmt.Fprintf(w, "[%s %s] %s\n", branch, res.Commit.Short(), msg)
			return nil
		})
	},
}

var rebaseCmd = &cobra.Command{
	Use:   "rebase <target>",
	Short: "Replay the current branch on top of target",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		target := args[0]
		msg := rebaseMessage
		if msg == "" {
			msg = fmt.Sprintf("Rebase %s onto %s", branch, target)
		}

		res, err := DB.Engine.RebaseBranch(cmd.Context(), branch, target, DB.User, msg)
		if err != nil {
			return reportConflicts(cmd, err)
		}
		return render(cmd, res, func(w io.Writer) error {
			fmt.Fprintf(w, "%s is now at %s (%d replayed, %d skipped)\n", branch, res.Commit.Short(), res.Replayed, res.Skipped)
			return nil
		})
	},
}

var diffCmd = &cobra.Command{
	Use:   "diff <ref1> [ref2]",
	Short: "Show documents added, removed or modified between two refs",
	Long:  `Compare the snapshots of ref1 and ref2 (default: the current branch).`,
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		to := branch
		if len(args) == 2 {
			to = args[1]
		}
		d, err := DB.Engine.Diff(cmd.Context(), args[0], to)
		if err != nil {
			return err
		}
		return render(cmd, d, func(w io.Writer) error {
			exporter.PrintDiff(w, d)
			return nil
		})
	},
}

var logCmd = &cobra.Command{
	Use:   "log [ref]",
	Short: "Show commit logs",
	Long: `Display the commits reachable from ref (default: the current branch), newest first.
With --since only commits not reachable from that ref are shown. With --author the
commit index is queried instead of walking the graph.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		ref := branch
		if len(args) == 1 {
			ref = args[0]
		}

		var commits []types.CommitInfo
		var err error
		switch {
		case logAuthor != "":
			commits, err = DB.Engine.FindCommitsByAuthor(ctx, logAuthor, logLimit)
		case logSince != "":
			commits, err = DB.Engine.Log(ctx, logSince, ref)
		default:
			commits, err = DB.Engine.History(ctx, ref)
		}
		if err != nil {
			return err
		}
		if logLimit > 0 && len(commits) > logLimit {
			commits = commits[:logLimit]
		}
		return render(cmd, commits, func(w io.Writer) error {
			exporter.PrintLog(w, commits)
			return nil
		})
	},
}

var reflogCmd = &cobra.Command{
	Use:   "reflog [branch]",
	Short: "Show how a branch moved",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := branch
		if len(args) == 1 {
			name = args[0]
		}
		entries, err := DB.Engine.RefLog(cmd.Context(), name, reflogLimit)
		if err != nil {
			return err
		}
		return render(cmd, reflogView(entries), func(w io.Writer) error {
			for i, e := range entries {
				fmt.Fprintf(w, "%s %s@{%d}: %s: %s\n", shortOrNone(e.NewHash), e.Ref, i, e.Action, e.Message)
			}
			return nil
		})
	},
}

type reflogItem struct {
	Ref     string     `yaml:"ref"`
	Old     types.Hash `yaml:"old,omitempty"`
	New     types.Hash `yaml:"new,omitempty"`
	Action  string     `yaml:"action"`
	Author  string     `yaml:"author"`
	Message string     `yaml:"message"`
	Time    string     `yaml:"time"`
}

func reflogView(entries []meta.RefLogEntry) []reflogItem {
	out := make([]reflogItem, len(entries))
	for i, e := range entries {
		out[i] = reflogItem{
			Ref:     e.Ref,
			Old:     e.OldHash,
			New:     e.NewHash,
			Action:  string(e.Action),
			Author:  e.Author,
			Message: e.Message,
			Time:    e.CreatedAt.UTC().Format(time.RFC3339),
		}
	}
	return out
}

func shortOrNone(h types.Hash) string {
	if h.IsZero() {
		return "(none)  "
	}
	return h.Short()
}

// reportConflicts 把冲突的 Key 打印到输出，再把错误原样返回
func reportConflicts(cmd *cobra.Command, err error) error {
	var ce *types.ConflictError
	if errors.As(err, &ce) {
		exporter.PrintConflicts(cmd.OutOrStdout(), ce.Conflicts)
	}
	return err
}

func init() {
	mergeCmd.Flags().StringVarP(&mergeMessage, "message", "m", "", "merge commit message")
	rebaseCmd.Flags().StringVarP(&rebaseMessage, "message", "m", "", "message recorded in the reflog")
	logCmd.Flags().StringVar(&logSince, "since", "", "hide commits reachable from this ref")
	logCmd.Flags().StringVar(&logAuthor, "author", "", "list commits by author from the commit index")
	logCmd.Flags().IntVarP(&logLimit, "limit", "n", 0, "maximum number of commits (0 = all)")
	reflogCmd.Flags().IntVarP(&reflogLimit, "limit", "n", 0, "maximum number of entries (0 = all)")

	rootCmd.AddCommand(mergeCmd, rebaseCmd, diffCmd, logCmd, reflogCmd)
}
