// Package cli implements the eventbus command line.
package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewRootCmd creates the eventbus command tree.
func NewRootCmd(version string) *cobra.Command {
	root := &cobra.Command{
		Use:   "eventbus",
		Short: "In-process event bus host",
		Long:  "eventbus hosts an event bus with Lua plugins and triggers events on it.",
		// SilenceUsage prevents printing usage on every error
		SilenceUsage: true,
	}

	root.PersistentFlags().StringP("config", "c", "", "Path to a TOML or YAML configuration file")
	root.PersistentFlags().StringP("plugins", "p", "", "Plugin directory (overrides plugins.dir)")
	root.PersistentFlags().String("log-level", "", "Log level: debug | info | warn | error | off")

	root.Version = version
	root.SetVersionTemplate(fmt.Sprintf("eventbus version %s\n", version))

	root.AddCommand(NewRunCmd())
	root.AddCommand(NewNamesCmd())
	return root
}
