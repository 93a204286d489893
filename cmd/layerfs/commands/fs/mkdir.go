package fs

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/marmos91/layerfs/cmd/layerfs/cmdutil"
	"github.com/marmos91/layerfs/pkg/metadata/errors"
)

var (
	mkdirParents bool
	mkdirMode    string
)

var mkdirCmd = &cobra.Command{
	Use:   "mkdir <path>",
	Short: "Create a directory",
	Long: `Create a directory in the active layer.

Examples:
  layerfs fs mkdir /docs
  layerfs fs mkdir -p /docs/2024/q1`,
	Args: cobra.ExactArgs(1),
	RunE: runMkdir,
}

func init() {
	mkdirCmd.Flags().BoolVarP(&mkdirParents, "parents", "p", false, "Create missing parents, no error if existing")
	mkdirCmd.Flags().StringVarP(&mkdirMode, "mode", "m", "0755", "Directory mode (octal)")
}

func runMkdir(cmd *cobra.Command, args []string) error {
	mode, err := strconv.ParseUint(mkdirMode, 8, 32)
	if err != nil {
		return fmt.Errorf("invalid mode %q: %w", mkdirMode, err)
	}

	s, err := cmdutil.Open(cmd.Context())
	if err != nil {
		return err
	}
	defer s.Close()

	path := args[0]
	if !mkdirParents {
		if _, err := s.FS.Mkdir(s.Op, path, uint32(mode)); err != nil {
			return fmt.Errorf("mkdir %s: %w", path, err)
		}
		return nil
	}

	cur := ""
	for _, part := range strings.Split(strings.Trim(path, "/"), "/") {
		if part == "" {
			continue
		}
		cur += "/" + part
		if _, err := s.FS.Mkdir(s.Op, cur, uint32(mode)); err != nil && !errors.Is(err, errors.ErrAlreadyExists) {
			return fmt.Errorf("mkdir %s: %w", cur, err)
		}
	}
	return nil
}
