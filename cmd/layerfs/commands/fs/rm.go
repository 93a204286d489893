package fs

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marmos91/layerfs/cmd/layerfs/cmdutil"
)

var rmCmd = &cobra.Command{
	Use:   "rm <path>...",
	Short: "Remove files",
	Long: `Remove files or symlinks from the active layer. Inherited files are
hidden with a tombstone; ancestors keep their copy.

Examples:
  layerfs fs rm /notes.txt`,
	Args: cobra.MinimumNArgs(1),
	RunE: runRm,
}

var rmdirCmd = &cobra.Command{
	Use:   "rmdir <path>...",
	Short: "Remove empty directories",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runRmdir,
}

func runRm(cmd *cobra.Command, args []string) error {
	s, err := cmdutil.Open(cmd.Context())
	if err != nil {
		return err
	}
	defer s.Close()

	for _, path := range args {
		if err := s.FS.Unlink(s.Op, path); err != nil {
			return fmt.Errorf("rm %s: %w", path, err)
		}
	}
	return nil
}

func runRmdir(cmd *cobra.Command, args []string) error {
	s, err := cmdutil.Open(cmd.Context())
	if err != nil {
		return err
	}
	defer s.Close()

	for _, path := range args {
		if err := s.FS.Rmdir(s.Op, path); err != nil {
			return fmt.Errorf("rmdir %s: %w", path, err)
		}
	}
	return nil
}
