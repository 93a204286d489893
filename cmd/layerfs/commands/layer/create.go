package layer

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/marmos91/layerfs/cmd/layerfs/cmdutil"
	"github.com/marmos91/layerfs/pkg/hooks"
)

var (
	createParent string
	createSwitch bool
)

var createCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a layer",
	Long: `Create a layer whose parent is the active layer, or --parent.

Examples:
  # Child of the active layer
  layerfs layer create dev

  # Child of a named layer, activated immediately
  layerfs layer create hotfix --parent base --switch`,
	Args: cobra.ExactArgs(1),
	RunE: runCreate,
}

func init() {
	createCmd.Flags().StringVarP(&createParent, "parent", "p", "", "Parent layer (default: active layer)")
	createCmd.Flags().BoolVarP(&createSwitch, "switch", "s", false, "Activate the new layer")
}

func runCreate(cmd *cobra.Command, args []string) error {
	s, err := cmdutil.Open(cmd.Context())
	if err != nil {
		return err
	}
	defer s.Close()

	l, err := s.FS.CreateLayer(s.Op, args[0], createParent)
	if err != nil {
		return fmt.Errorf("failed to create layer: %w", err)
	}
	if createSwitch {
		if l, err = s.FS.SwitchLayer(s.Op, l.ID); err != nil {
			return fmt.Errorf("failed to switch layer: %w", err)
		}
	}

	return cmdutil.PrintResourceWithSuccess(os.Stdout, hooks.NewLayerInfo(l, nil),
		fmt.Sprintf("Layer '%s' created (%s)", l.Name, l.ID))
}
