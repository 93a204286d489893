package layer

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/marmos91/layerfs/cmd/layerfs/cmdutil"
	"github.com/marmos91/layerfs/internal/cli/prompt"
	"github.com/marmos91/layerfs/pkg/hooks"
	"github.com/marmos91/layerfs/pkg/metadata"
)

var switchCmd = &cobra.Command{
	Use:   "switch [name]",
	Short: "Activate a layer",
	Long: `Make a layer the active layer. Without a name, pick one interactively.

Examples:
  # Switch by name or ID
  layerfs layer switch dev

  # Pick from a list
  layerfs layer switch`,
	Args: cobra.MaximumNArgs(1),
	RunE: runSwitch,
}

func runSwitch(cmd *cobra.Command, args []string) error {
	s, err := cmdutil.Open(cmd.Context())
	if err != nil {
		return err
	}
	defer s.Close()

	var ref string
	if len(args) == 1 {
		ref = args[0]
	} else {
		layers, err := s.FS.ListLayers(s.Op, false)
		if err != nil {
			return fmt.Errorf("failed to list layers: %w", err)
		}
		ref, err = selectLayer(layers)
		if err != nil {
			if prompt.IsAborted(err) {
				fmt.Println("\nAborted.")
				return nil
			}
			return err
		}
	}

	l, err := s.FS.SwitchLayer(s.Op, ref)
	if err != nil {
		return fmt.Errorf("failed to switch layer: %w", err)
	}
	return cmdutil.PrintResourceWithSuccess(os.Stdout, hooks.NewLayerInfo(l, nil),
		fmt.Sprintf("Switched to layer '%s'", l.Name))
}

// selectLayer prompts for a layer with the cursor on the active one.
func selectLayer(layers []*metadata.Layer) (string, error) {
	table := hooks.NewLayerTable(layers)
	options := make([]prompt.SelectOption, 0, len(table))
	cursor := 0
	for i, info := range table {
		parent := info.Parent
		if parent == "" {
			parent = "-"
		}
		if info.Active {
			cursor = i
		}
		options = append(options, prompt.SelectOption{
			Label:       info.Name,
			Value:       info.ID,
			Description: parent,
		})
	}
	return prompt.Select("Switch to layer", options, cursor)
}
