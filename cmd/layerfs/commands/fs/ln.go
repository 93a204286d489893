package fs

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marmos91/layerfs/cmd/layerfs/cmdutil"
)

var lnCmd = &cobra.Command{
	Use:   "ln <target> <link>",
	Short: "Create a symbolic link",
	Long: `Create a symbolic link. The target is stored as given and is not
resolved.

Examples:
  layerfs fs ln ../notes.txt /docs/notes`,
	Args: cobra.ExactArgs(2),
	RunE: runLn,
}

func runLn(cmd *cobra.Command, args []string) error {
	s, err := cmdutil.Open(cmd.Context())
	if err != nil {
		return err
	}
	defer s.Close()

	if _, err := s.FS.Symlink(s.Op, args[0], args[1]); err != nil {
		return fmt.Errorf("ln %s %s: %w", args[0], args[1], err)
	}
	return nil
}
