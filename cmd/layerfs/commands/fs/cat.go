package fs

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/marmos91/layerfs/cmd/layerfs/cmdutil"
)

var catCmd = &cobra.Command{
	Use:   "cat <path>",
	Short: "Print a file",
	Long: `Print a file as seen from the active layer, or from --layer.

Examples:
  layerfs fs cat /notes.txt
  layerfs fs cat /notes.txt --layer base
  layerfs fs cat /.layers/chain`,
	Args: cobra.ExactArgs(1),
	RunE: runCat,
}

func runCat(cmd *cobra.Command, args []string) error {
	s, err := cmdutil.Open(cmd.Context())
	if err != nil {
		return err
	}
	defer s.Close()

	data, err := s.FS.ReadFile(s.Op, args[0])
	if err != nil {
		return fmt.Errorf("cat %s: %w", args[0], err)
	}
	_, err = os.Stdout.Write(data)
	return err
}
