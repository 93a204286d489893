package layer

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marmos91/layerfs/cmd/layerfs/cmdutil"
)

var deleteForce bool

var deleteCmd = &cobra.Command{
	Use:   "delete <name>",
	Short: "Delete a layer",
	Long: `Delete a layer. The active layer and layers with live children cannot
be deleted. The name becomes free for reuse.

You will be prompted for confirmation unless --force is specified.

Examples:
  # Delete with confirmation
  layerfs layer delete dev

  # Delete without confirmation
  layerfs layer delete dev --force`,
	Args: cobra.ExactArgs(1),
	RunE: runDelete,
}

func init() {
	deleteCmd.Flags().BoolVarP(&deleteForce, "force", "f", false, "Skip confirmation prompt")
}

func runDelete(cmd *cobra.Command, args []string) error {
	s, err := cmdutil.Open(cmd.Context())
	if err != nil {
		return err
	}
	defer s.Close()

	name := args[0]
	return cmdutil.RunDeleteWithConfirmation("layer", name, deleteForce, func() error {
		l, err := s.FS.DeleteLayer(s.Op, name)
		if err != nil {
			return fmt.Errorf("failed to delete layer: %w", err)
		}
		fmt.Printf("Layer '%s' deleted\n", l.Name)
		return nil
	})
}
