package fs

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marmos91/layerfs/cmd/layerfs/cmdutil"
)

var mvCmd = &cobra.Command{
	Use:   "mv <from> <to>",
	Short: "Rename a file or directory",
	Long: `Rename within the active layer. An existing file destination is
replaced; an existing directory destination must be empty.

Examples:
  layerfs fs mv /draft.txt /docs/final.txt`,
	Args: cobra.ExactArgs(2),
	RunE: runMv,
}

func runMv(cmd *cobra.Command, args []string) error {
	s, err := cmdutil.Open(cmd.Context())
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.FS.Rename(s.Op, args[0], args[1]); err != nil {
		return fmt.Errorf("mv %s %s: %w", args[0], args[1], err)
	}
	return nil
}
