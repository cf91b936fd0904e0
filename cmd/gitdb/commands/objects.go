package commands

import (
	"fmt"
	"time"

	"gitdb/pkg/exporter"
	"gitdb/pkg/ignore"
	"gitdb/pkg/types"

	"github.com/spf13/cobra"
)

var (
	importPrefix  string
	importExclude []string
	importMessage string
	checkoutDir   string
)

var catCmd = &cobra.Command{
	Use:   "cat <hash>",
	Short: "Show an object by hash",
	Long:  `Print a commit or tree in readable form, or the raw content of a document blob. Hash prefixes are accepted.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		hash, err := DB.Engine.Objects().ExpandHash(ctx, types.HashPrefix(args[0]))
		if err != nil {
			return err
		}
		return DB.Exporter.PrintObject(ctx, hash, cmd.OutOrStdout())
	},
}

var importCmd = &cobra.Command{
	Use:   "import <dir>",
	Short: "Import a directory tree as documents in one commit",
	Long: `Read every file under dir (skipping .gitdbignore matches and --exclude patterns)
and write them to the branch in a single transaction.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		start := time.Now()
		dir := args[0]

		matcher, err := ignore.NewMatcher(dir, importExclude...)
		if err != nil {
			return err
		}
		docs, err := exporter.ImportDir(ctx, dir, importPrefix, matcher)
		if err != nil {
			return err
		}
		if len(docs) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No files to import.")
			return nil
		}

		msg := importMessage
		if msg == "" {
			msg = fmt.Sprintf("Import %d documents from %s", len(docs), dir)
		}

		id, err := DB.Engine.CreateTransaction(ctx, branch)
		if err != nil {
			return err
		}
		if err := DB.Engine.AddManyToTransaction(ctx, id, docs); err != nil {
			_ = DB.Engine.AbortTransaction(ctx, id)
			return err
		}
		commit, err := DB.Engine.CommitTransaction(ctx, id, msg, DB.User)
		if err != nil {
			_ = DB.Engine.AbortTransaction(ctx, id)
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "[%s %s] imported %d documents in %s\n",
			branch, commit.Short(), len(docs), time.Since(start).Round(time.Millisecond))
		return nil
	},
}

var checkoutCmd = &cobra.Command{
	Use:   "checkout [ref]",
	Short: "Write a snapshot to a directory",
	Long:  `Restore every document of ref (default: the current branch) as a file under --dir.`,
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		ref := branch
		if len(args) == 1 {
			ref = args[0]
		}
		commit, err := DB.Engine.Refs().Resolve(ctx, ref)
		if err != nil {
			return err
		}

		var count int
		var total int64
		err = DB.Exporter.Checkout(ctx, commit, checkoutDir, func(path, key string, hash types.Hash, size int64) {
			count++
			total += size
		})
		if err != nil {
			return fmt.Errorf("checkout failed: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Checked out %s: %d documents (%dB) into %s\n", commit.Short(), count, total, checkoutDir)
		return nil
	},
}

func init() {
	importCmd.Flags().StringVar(&importPrefix, "prefix", "", "key prefix for imported documents")
	importCmd.Flags().StringSliceVar(&importExclude, "exclude", nil, "extra ignore patterns")
	importCmd.Flags().StringVarP(&importMessage, "message", "m", "", "commit message")
	checkoutCmd.Flags().StringVar(&checkoutDir, "dir", ".", "target directory")

	rootCmd.AddCommand(catCmd, importCmd, checkoutCmd)
}
