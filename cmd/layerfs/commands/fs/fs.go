// Package fs implements filesystem commands against the active layer.
package fs

import (
	"github.com/spf13/cobra"
)

// Cmd is the parent command for filesystem operations.
var Cmd = &cobra.Command{
	Use:   "fs",
	Short: "Read and write files",
	Long: `Operate on the union view of the active layer. Writes go to the active
layer; files inherited from ancestors are copied on write. Use the global
--layer flag to read from another layer.

Examples:
  layerfs fs write /notes.txt "hello"
  layerfs fs cat /notes.txt
  layerfs fs ls /
  layerfs fs stat /notes.txt`,
}

func init() {
	Cmd.AddCommand(lsCmd)
	Cmd.AddCommand(catCmd)
	Cmd.AddCommand(writeCmd)
	Cmd.AddCommand(mkdirCmd)
	Cmd.AddCommand(rmCmd)
	Cmd.AddCommand(rmdirCmd)
	Cmd.AddCommand(mvCmd)
	Cmd.AddCommand(statCmd)
	Cmd.AddCommand(lnCmd)
	Cmd.AddCommand(dfCmd)
}
