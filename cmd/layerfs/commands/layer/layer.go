// Package layer implements layer management commands.
package layer

import (
	"github.com/spf13/cobra"
)

// Cmd is the parent command for layer management.
var Cmd = &cobra.Command{
	Use:   "layer",
	Short: "Manage layers",
	Long: `Manage the layers of a tenant.

A layer sees every file of its ancestors. Only the active layer is written;
switching layers changes what every later call reads and writes.

Examples:
  # List layers
  layerfs layer list

  # Create a layer on top of the active one and switch to it
  layerfs layer create dev
  layerfs layer switch dev

  # Show the active chain
  layerfs layer chain`,
}

func init() {
	Cmd.AddCommand(createCmd)
	Cmd.AddCommand(listCmd)
	Cmd.AddCommand(switchCmd)
	Cmd.AddCommand(deleteCmd)
	Cmd.AddCommand(chainCmd)
}
