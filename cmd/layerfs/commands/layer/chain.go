package layer

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/marmos91/layerfs/cmd/layerfs/cmdutil"
	"github.com/marmos91/layerfs/pkg/hooks"
)

var chainCmd = &cobra.Command{
	Use:   "chain",
	Short: "Show the resolution chain",
	Long: `Show the chain used to resolve paths, nearest layer first. With
--layer, the chain of that layer is shown instead of the active one.

Examples:
  layerfs layer chain
  layerfs layer chain --layer base -o json`,
	RunE: runChain,
}

func runChain(cmd *cobra.Command, args []string) error {
	s, err := cmdutil.Open(cmd.Context())
	if err != nil {
		return err
	}
	defer s.Close()

	chain, err := s.FS.Chain(s.Op)
	if err != nil {
		return fmt.Errorf("failed to resolve chain: %w", err)
	}

	table := hooks.NewLayerTable(chain)
	return cmdutil.PrintOutput(os.Stdout, table, len(table) == 0, "Empty chain.", table)
}
