package config

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marmos91/layerfs/cmd/layerfs/cmdutil"
	"github.com/marmos91/layerfs/pkg/config"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration file",
	Long: `Load the configuration file and check every section.

Examples:
  # Validate the default configuration file
  layerfs config validate

  # Validate a specific file
  layerfs config validate --config /etc/layerfs/config.yaml`,
	RunE: runConfigValidate,
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	path := cmdutil.Flags.ConfigFile
	if _, err := config.MustLoad(path); err != nil {
		return err
	}

	if path == "" {
		path = config.GetDefaultConfigPath()
	}
	fmt.Printf("Configuration is valid: %s\n", path)
	return nil
}
