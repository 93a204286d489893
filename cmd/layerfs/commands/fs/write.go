package fs

import (
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/marmos91/layerfs/cmd/layerfs/cmdutil"
)

var (
	writeOffset int64
	writeAppend bool
	writeMode   string
)

var writeCmd = &cobra.Command{
	Use:   "write <path> [data]",
	Short: "Write a file",
	Long: `Write data (or stdin) to a file in the active layer. Without --offset
or --append the file is replaced; missing files are created.

Writing to the control directory runs layer commands.

Examples:
  layerfs fs write /notes.txt "hello"
  echo more | layerfs fs write /notes.txt --append
  layerfs fs write /.layers/ctl "create dev"`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runWrite,
}

func init() {
	writeCmd.Flags().Int64Var(&writeOffset, "offset", -1, "Write at this byte offset instead of replacing")
	writeCmd.Flags().BoolVarP(&writeAppend, "append", "a", false, "Append to the file")
	writeCmd.Flags().StringVarP(&writeMode, "mode", "m", "0644", "Mode for new files (octal)")
}

func runWrite(cmd *cobra.Command, args []string) error {
	path := args[0]

	var data []byte
	if len(args) == 2 {
		data = []byte(args[1])
	} else {
		var err error
		if data, err = io.ReadAll(os.Stdin); err != nil {
			return fmt.Errorf("read stdin: %w", err)
		}
	}

	mode, err := strconv.ParseUint(writeMode, 8, 32)
	if err != nil {
		return fmt.Errorf("invalid mode %q: %w", writeMode, err)
	}

	s, err := cmdutil.Open(cmd.Context())
	if err != nil {
		return err
	}
	defer s.Close()

	offset := writeOffset
	if writeAppend {
		attr, err := s.FS.GetAttr(s.Op, path)
		if err != nil {
			return fmt.Errorf("write %s: %w", path, err)
		}
		offset = int64(attr.Size)
	}

	if offset < 0 {
		if err := s.FS.WriteFile(s.Op, path, data, uint32(mode)); err != nil {
			return fmt.Errorf("write %s: %w", path, err)
		}
		return nil
	}

	if _, err := s.FS.Write(s.Op, path, offset, data); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
