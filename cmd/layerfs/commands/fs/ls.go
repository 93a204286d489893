package fs

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/marmos91/layerfs/cmd/layerfs/cmdutil"
	"github.com/marmos91/layerfs/internal/cli/output"
	"github.com/marmos91/layerfs/pkg/metadata"
)

var lsCmd = &cobra.Command{
	Use:   "ls [path]",
	Short: "List a directory",
	Long: `List a directory of the union view. LAYER is the layer owning each
entry's current version.

Examples:
  layerfs fs ls
  layerfs fs ls /docs -o json`,
	Args: cobra.MaximumNArgs(1),
	RunE: runLs,
}

// entryTable renders directory entries.
type entryTable []metadata.DirectoryEntry

func (t entryTable) Headers() []string {
	return []string{"Name", "Type", "Inode", "Layer"}
}

func (t entryTable) Rows() [][]string {
	rows := make([][]string, 0, len(t))
	for _, e := range t {
		name := e.Name
		if e.Type == metadata.TypeDirectory {
			name += "/"
		}
		rows = append(rows, []string{name, e.Type.String(), shortID(e.InodeID), shortID(e.LayerID)})
	}
	return rows
}

var _ output.TableRenderer = entryTable(nil)

func runLs(cmd *cobra.Command, args []string) error {
	path := "/"
	if len(args) == 1 {
		path = args[0]
	}

	s, err := cmdutil.Open(cmd.Context())
	if err != nil {
		return err
	}
	defer s.Close()

	entries, err := s.FS.ReadDir(s.Op, path)
	if err != nil {
		return fmt.Errorf("ls %s: %w", path, err)
	}

	table := entryTable(entries)
	return cmdutil.PrintOutput(os.Stdout, entries, len(entries) == 0, "(empty)", table)
}

// shortID shortens a UUID for tables.
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
