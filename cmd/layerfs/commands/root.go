// Package commands implements the layerfs command line.
package commands

import (
	"github.com/spf13/cobra"

	"github.com/marmos91/layerfs/cmd/layerfs/cmdutil"
	"github.com/marmos91/layerfs/cmd/layerfs/commands/config"
	"github.com/marmos91/layerfs/cmd/layerfs/commands/fs"
	"github.com/marmos91/layerfs/cmd/layerfs/commands/layer"

	// Registers the Prometheus metric implementations.
	_ "github.com/marmos91/layerfs/pkg/metrics/prometheus"
)

var (
	// Version information injected at build time.
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "layerfs",
	Short: "layerfs - Layered copy-on-write filesystem",
	Long: `layerfs stores a filesystem as a chain of layers. Every layer sees its
ancestors' files; writes land in the active layer only, as full copies for
binary files and as line diffs for text.

Use "layerfs [command] --help" for more information about a command.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

// GetRootCmd returns the root command for testing purposes.
func GetRootCmd() *cobra.Command {
	return rootCmd
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cmdutil.Flags.ConfigFile, "config", "", "config file (default: $XDG_CONFIG_HOME/layerfs/config.yaml)")
	flags.StringVarP(&cmdutil.Flags.Tenant, "tenant", "t", "", "tenant (default: tenant.default from config)")
	flags.StringVarP(&cmdutil.Flags.Layer, "layer", "l", "", "pin reads to a layer (name or ID)")
	flags.StringVarP(&cmdutil.Flags.Output, "output", "o", "table", "output format (table|json|yaml)")
	flags.BoolVar(&cmdutil.Flags.NoColor, "no-color", false, "disable colored output")
	flags.BoolVarP(&cmdutil.Flags.Verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(config.Cmd)
	rootCmd.AddCommand(layer.Cmd)
	rootCmd.AddCommand(fs.Cmd)
}
