package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dshills/eventbus/internal/event"
)

// NewNamesCmd creates the "names" subcommand.
func NewNamesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "names",
		Short: "List the events plugins listen for",
		Long: `Load the plugins from the plugin directory and print each event name they
registered, with the number of listeners per name, followed by the listener
count of every plugin.`,
		Args: cobra.NoArgs,
		RunE: runNames,
	}
}

func runNames(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cfg.Plugins.Dir == "" {
		return exitError(exitUsage, "no plugin directory: set --plugins or plugins.dir")
	}

	ctx := commandContext(cmd)
	h, err := startHost(ctx, cfg, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer func() { _ = h.close(ctx) }()

	out := cmd.OutOrStdout()
	counts := make(map[string]int)
	_ = h.bus.ForEachEvent(func(name string, _ event.Handler, _ any) {
		counts[name]++
	})
	for _, name := range h.bus.EventNames() {
		fmt.Fprintf(out, "%s\t%d\n", name, counts[name])
	}
	for _, p := range h.plugins.List() {
		fmt.Fprintf(out, "plugin %s\t%d\n", p.Name, p.EventCount())
	}
	return nil
}
