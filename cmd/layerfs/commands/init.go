package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marmos91/layerfs/cmd/layerfs/cmdutil"
	"github.com/marmos91/layerfs/pkg/config"
)

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a sample configuration file",
	Long: `Initialize a sample layerfs configuration file.

By default, the configuration file is created at $XDG_CONFIG_HOME/layerfs/config.yaml.
Use --config to specify a custom path.

Examples:
  # Initialize with default location
  layerfs init

  # Initialize with custom path
  layerfs init --config /etc/layerfs/config.yaml

  # Force overwrite existing config
  layerfs init --force`,
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "Force overwrite existing config file")
}

func runInit(cmd *cobra.Command, args []string) error {
	var (
		configPath string
		err        error
	)

	if cmdutil.Flags.ConfigFile != "" {
		configPath = cmdutil.Flags.ConfigFile
		err = config.InitConfigToPath(configPath, initForce)
	} else {
		configPath, err = config.InitConfig(initForce)
	}
	if err != nil {
		return fmt.Errorf("failed to initialize config: %w", err)
	}

	fmt.Printf("Configuration file created at: %s\n", configPath)
	fmt.Println("\nNext steps:")
	fmt.Println("  1. Edit the configuration file to pick a store (store.type)")
	fmt.Println("  2. Create a layer with: layerfs layer create dev")
	fmt.Println("  3. Switch to it with:   layerfs layer switch dev")
	return nil
}
