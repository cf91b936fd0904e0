package commands

import (
	"fmt"
	"io"

	"gitdb/pkg/exporter"
	"gitdb/pkg/types"

	"github.com/spf13/cobra"
)

var branchCmd = &cobra.Command{
	Use:   "branch",
	Short: "List, create or delete branches",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		refs, err := DB.Engine.GetAllBranches(cmd.Context())
		if err != nil {
			return err
		}
		return render(cmd, refs, func(w io.Writer) error {
			return exporter.PrintRefs(w, refs, branch)
		})
	},
}

var branchCreateCmd = &cobra.Command{
	Use:   "create <name> [start-point]",
	Short: "Create a branch at start-point (default: the root commit)",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ref := types.Reference{Name: args[0]}
		if len(args) == 2 {
			ref.Pointer = args[1]
		}
		created, err := DB.Engine.CreateBranch(cmd.Context(), ref)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Created branch %s at %s\n", created.Name, types.Hash(created.Pointer).Short())
		return nil
	},
}

var branchDeleteCmd = &cobra.Command{
	Use:   "delete <name>",
	Short: "Delete a branch",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := DB.Engine.DeleteBranch(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Deleted branch %s\n", args[0])
		return nil
	},
}

var tagCmd = &cobra.Command{
	Use:   "tag",
	Short: "List, create or delete tags",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		refs, err := DB.Engine.GetAllTags(cmd.Context())
		if err != nil {
			return err
		}
		return render(cmd, refs, func(w io.Writer) error {
			return exporter.PrintRefs(w, refs, "")
		})
	},
}

var tagCreateCmd = &cobra.Command{
	Use:   "create <name> [ref]",
	Short: "Tag the commit ref resolves to (default: the current branch)",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ref := types.Reference{Name: args[0], Pointer: branch}
		if len(args) == 2 {
			ref.Pointer = args[1]
		}
		created, err := DB.Engine.Tag(cmd.Context(), ref)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Tagged %s as %s\n", types.Hash(created.Pointer).Short(), created.Name)
		return nil
	},
}

var tagDeleteCmd = &cobra.Command{
	Use:   "delete <name>",
	Short: "Delete a tag",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := DB.Engine.DeleteTag(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Deleted tag %s\n", args[0])
		return nil
	},
}

func init() {
	branchCmd.AddCommand(branchCreateCmd, branchDeleteCmd)
	tagCmd.AddCommand(tagCreateCmd, tagDeleteCmd)
	rootCmd.AddCommand(branchCmd, tagCmd)
}
