package fs

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/marmos91/layerfs/cmd/layerfs/cmdutil"
	"github.com/marmos91/layerfs/internal/bytesize"
	"github.com/marmos91/layerfs/internal/cli/output"
	"github.com/marmos91/layerfs/pkg/layerfs"
	"github.com/marmos91/layerfs/pkg/metadata"
)

var statCmd = &cobra.Command{
	Use:   "stat <path>",
	Short: "Show attributes and version state",
	Long: `Show a path's attributes and how its current version is stored:
materialized (full content), diffed (line diff over an ancestor) or
unmodified (inherited as is).

Examples:
  layerfs fs stat /notes.txt
  layerfs fs stat /notes.txt -o json`,
	Args: cobra.ExactArgs(1),
	RunE: runStat,
}

// statResult is the machine-readable form of stat.
type statResult struct {
	Path    string                `json:"path" yaml:"path"`
	Attr    *layerfs.Attr         `json:"attr" yaml:"attr"`
	Version *metadata.FileVersion `json:"version,omitempty" yaml:"version,omitempty"`
}

func runStat(cmd *cobra.Command, args []string) error {
	s, err := cmdutil.Open(cmd.Context())
	if err != nil {
		return err
	}
	defer s.Close()

	path := args[0]
	attr, err := s.FS.GetAttr(s.Op, path)
	if err != nil {
		return fmt.Errorf("stat %s: %w", path, err)
	}
	res := statResult{Path: path, Attr: attr}
	// Control files have no stored version.
	if attr.LayerID != "" {
		if res.Version, err = s.FS.Version(s.Op, path); err != nil {
			return fmt.Errorf("stat %s: %w", path, err)
		}
	}

	format, err := cmdutil.GetOutputFormatParsed()
	if err != nil {
		return err
	}
	switch format {
	case output.FormatJSON:
		return output.PrintJSON(os.Stdout, res)
	case output.FormatYAML:
		return output.PrintYAML(os.Stdout, res)
	}

	pairs := [][2]string{
		{"Path", path},
		{"Type", attr.Type.String()},
		{"Mode", fmt.Sprintf("%04o", attr.Mode)},
		{"Size", strconv.FormatUint(attr.Size, 10)},
		{"Owner", fmt.Sprintf("%d:%d", attr.UID, attr.GID)},
		{"Modified", attr.Mtime.Format(time.RFC3339)},
		{"Inode", attr.InodeID},
	}
	if attr.LinkTarget != "" {
		pairs = append(pairs, [2]string{"Target", attr.LinkTarget})
	}
	if res.Version != nil {
		pairs = append(pairs,
			[2]string{"State", res.Version.State.String()},
			[2]string{"Layer", res.Version.LayerID})
	}
	return output.PrintKeyValues(os.Stdout, pairs)
}

var dfCmd = &cobra.Command{
	Use:   "df",
	Short: "Show tenant usage",
	Args:  cobra.NoArgs,
	RunE:  runDf,
}

func runDf(cmd *cobra.Command, args []string) error {
	s, err := cmdutil.Open(cmd.Context())
	if err != nil {
		return err
	}
	defer s.Close()

	st, err := s.FS.Statfs(s.Op)
	if err != nil {
		return fmt.Errorf("df: %w", err)
	}

	format, err := cmdutil.GetOutputFormatParsed()
	if err != nil {
		return err
	}
	switch format {
	case output.FormatJSON:
		return output.PrintJSON(os.Stdout, st)
	case output.FormatYAML:
		return output.PrintYAML(os.Stdout, st)
	}

	capacity := "unbounded"
	if st.Capacity > 0 {
		capacity = bytesize.ByteSize(st.Capacity).String()
	}
	return output.PrintKeyValues(os.Stdout, [][2]string{
		{"Capacity", capacity},
		{"Used", bytesize.ByteSize(st.UsedBytes).String()},
		{"Blocks", strconv.FormatUint(st.Blocks, 10)},
		{"Inodes", strconv.FormatUint(st.Inodes, 10)},
		{"Layers", strconv.FormatUint(st.Layers, 10)},
	})
}
