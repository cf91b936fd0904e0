package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a gitdb repository",
	Long:  `Create the root commit and the default branch. Running init on an existing repository is safe.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		root, err := DB.Engine.Init(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Initialized gitdb repository in %s (root %s)\n", DB.RepoPath, root.Short())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}
