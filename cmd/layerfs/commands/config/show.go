package config

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/marmos91/layerfs/cmd/layerfs/cmdutil"
	"github.com/marmos91/layerfs/internal/cli/output"
)

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Display current configuration",
	Long: `Display the effective layerfs configuration, defaults and environment
overrides included.

By default outputs YAML. Use --output json for JSON.

Examples:
  # Show the effective configuration
  layerfs config show

  # Show as JSON
  layerfs config show --output json

  # Show a specific config file
  layerfs config show --config /etc/layerfs/config.yaml`,
	RunE: runConfigShow,
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := cmdutil.LoadConfig()
	if err != nil {
		return err
	}

	format, err := cmdutil.GetOutputFormatParsed()
	if err != nil {
		return err
	}

	if format == output.FormatJSON {
		return output.PrintJSON(os.Stdout, cfg)
	}
	return output.PrintYAML(os.Stdout, cfg)
}
