package layer

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/marmos91/layerfs/cmd/layerfs/cmdutil"
	"github.com/marmos91/layerfs/pkg/hooks"
)

var listDeleted bool

var listCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List layers",
	Long: `List the layers of the tenant. The active layer is marked with '*'.

Examples:
  # List live layers
  layerfs layer list

  # Include deleted layers, as JSON
  layerfs layer list --deleted -o json`,
	RunE: runList,
}

func init() {
	listCmd.Flags().BoolVar(&listDeleted, "deleted", false, "Include deleted layers")
}

func runList(cmd *cobra.Command, args []string) error {
	s, err := cmdutil.Open(cmd.Context())
	if err != nil {
		return err
	}
	defer s.Close()

	layers, err := s.FS.ListLayers(s.Op, listDeleted)
	if err != nil {
		return fmt.Errorf("failed to list layers: %w", err)
	}

	table := hooks.NewLayerTable(layers)
	return cmdutil.PrintOutput(os.Stdout, table, len(table) == 0, "No layers found.", table)
}
