package commands

import (
	"fmt"
	"io"
	"os"

	"gitdb/pkg/gitdb"
	"gitdb/pkg/types"

	"github.com/spf13/cobra"
)

var (
	saveValue   string
	saveMessage string
	rmMessage   string
	rmStaged    bool
)

var getCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Print the value of a document",
	Long:  `Print the document stored under key in the snapshot of the ref given by --branch. The key may be URL-encoded.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, err := gitdb.DecodeKey(args[0])
		if err != nil {
			return err
		}
		value, err := DB.Engine.Get(cmd.Context(), branch, key)
		if err != nil {
			return err
		}
		view := map[string]string{"key": key, "value": string(value)}
		return render(cmd, view, func(w io.Writer) error {
			_, err := w.Write(value)
			return err
		})
	},
}

var filesCmd = &cobra.Command{
	Use:   "files [prefix]",
	Short: "List all document keys under prefix",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		prefix, err := prefixArg(args)
		if err != nil {
			return err
		}
		keys, err := DB.Engine.GetFiles(cmd.Context(), branch, prefix)
		if err != nil {
			return err
		}
		return render(cmd, keys, printLines(keys))
	},
}

var foldersCmd = &cobra.Command{
	Use:   "folders [prefix]",
	Short: "List the direct subfolders of prefix",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		prefix, err := prefixArg(args)
		if err != nil {
			return err
		}
		names, err := DB.Engine.GetSubfolders(cmd.Context(), branch, prefix)
		if err != nil {
			return err
		}
		return render(cmd, names, printLines(names))
	},
}

var saveCmd = &cobra.Command{
	Use:   "save <key> [file|-]",
	Short: "Write a document and commit it to the branch",
	Long: `Write a document in a single-document commit. The value comes from --value,
from the given file, or from stdin when the file is "-".`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, err := gitdb.DecodeKey(args[0])
		if err != nil {
			return err
		}
		value, err := readValue(cmd, args[1:])
		if err != nil {
			return err
		}
		msg := saveMessage
		if msg == "" {
			msg = "Save " + key
		}

		commit, err := DB.Engine.Save(cmd.Context(), branch, msg, types.Document{Key: key, Value: value}, DB.User)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "[%s %s] %s\n", branch, commit.Short(), msg)
		return nil
	},
}

var rmCmd = &cobra.Command{
	Use:   "rm <key>",
	Short: "Delete a document",
	Long: `Delete a document in a single-document commit. With --staged the deletion is
only recorded in the index and committed by the next 'gitdb commit'.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, err := gitdb.DecodeKey(args[0])
		if err != nil {
			return err
		}
		if rmStaged {
			if key, err = types.CleanKey(key); err != nil {
				return err
			}
			if err := stageBase(cmd); err != nil {
				return err
			}
			DB.Index.Delete(key)
			if err := DB.Index.Save(); err != nil {
				return fmt.Errorf("failed to save index: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Staged deletion of %s\n", key)
			return nil
		}

		msg := rmMessage
		if msg == "" {
			msg = "Delete " + key
		}
		commit, err := DB.Engine.Delete(cmd.Context(), branch, key, msg, DB.User)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "[%s %s] %s\n", branch, commit.Short(), msg)
		return nil
	},
}

func prefixArg(args []string) (string, error) {
	if len(args) == 0 {
		return "", nil
	}
	return gitdb.DecodeKey(args[0])
}

func printLines(lines []string) func(w io.Writer) error {
	return func(w io.Writer) error {
		for _, l := range lines {
			if _, err := fmt.Fprintln(w, l); err != nil {
				return err
			}
		}
		return nil
	}
}

func readValue(cmd *cobra.Command, args []string) ([]byte, error) {
	switch {
	case cmd.Flags().Changed("value"):
		return []byte(saveValue), nil
	case len(args) == 0:
		return nil, fmt.Errorf("%w: no value given (use --value, a file or -)", types.ErrInvalidArgument)
	case args[0] == "-":
		return io.ReadAll(cmd.InOrStdin())
	default:
		return os.ReadFile(args[0])
	}
}

func init() {
	saveCmd.Flags().StringVar(&saveValue, "value", "", "document value")
	saveCmd.Flags().StringVarP(&saveMessage, "message", "m", "", "commit message")
	rmCmd.Flags().StringVarP(&rmMessage, "message", "m", "", "commit message")
	rmCmd.Flags().BoolVar(&rmStaged, "staged", false, "only stage the deletion in the index")

	rootCmd.AddCommand(getCmd, filesCmd, foldersCmd, saveCmd, rmCmd)
}
