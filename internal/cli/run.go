package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dshills/eventbus/internal/event"
)

// NewRunCmd creates the "run" subcommand.
func NewRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Load plugins and trigger events",
		Long: `Start an event bus, load the Lua plugins from the plugin directory and
trigger the given events in order.

Each --trigger value is an event name optionally followed by "=" and
comma-separated arguments, e.g. --trigger "buffer:save=main.go,42".
With --watch the command keeps running, reloading plugins as their files
change, until interrupted.`,
		RunE: runRun,
	}

	cmd.Flags().StringArrayP("trigger", "t", nil, "Event to trigger as name[=arg,...] (repeatable)")
	cmd.Flags().StringP("mode", "m", "trigger", "Trigger mode: trigger | sync | async | defer")
	cmd.Flags().BoolP("watch", "w", false, "Watch the plugin directory and keep running")
	cmd.Flags().Bool("stats", false, "Print bus statistics before exiting")

	return cmd
}

func runRun(cmd *cobra.Command, _ []string) error {
	rawTriggers, _ := cmd.Flags().GetStringArray("trigger")
	modeFlag, _ := cmd.Flags().GetString("mode")
	showStats, _ := cmd.Flags().GetBool("stats")

	mode, err := parseMode(modeFlag)
	if err != nil {
		return exitError(exitUsage, "%v", err)
	}
	calls := make([]triggerCall, 0, len(rawTriggers))
	for _, raw := range rawTriggers {
		call, err := parseTrigger(raw)
		if err != nil {
			return exitError(exitUsage, "%v", err)
		}
		calls = append(calls, call)
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("watch") {
		cfg.Plugins.Watch, _ = cmd.Flags().GetBool("watch")
	}
	if err := cfg.Validate(); err != nil {
		return exitError(exitConfig, "%v", err)
	}

	ctx := commandContext(cmd)

	h, err := startHost(ctx, cfg, cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	runErr := fire(ctx, out, h.bus, mode, calls)

	if runErr == nil && cfg.Plugins.Watch {
		runErr = watch(ctx, h)
	}

	if err := h.close(ctx); err != nil {
		h.logger.Warn().Err(err).Msg("shutdown")
	}
	if showStats {
		writeStats(out, h.bus.Stats())
	}
	if err := h.writeMetrics(ctx, out); err != nil {
		h.logger.Warn().Err(err).Msg("metrics")
	}
	return runErr
}

// fire triggers each call in order and prints results for the collecting modes.
func fire(ctx context.Context, out io.Writer, bus *event.Bus, mode event.TriggerMode, calls []triggerCall) error {
	for _, call := range calls {
		switch mode {
		case event.ModeTrigger:
			if err := bus.Trigger(call.Name, call.Args...); err != nil {
				return exitError(exitTrigger, "trigger %s: %v", call.Name, err)
			}
			fmt.Fprintf(out, "triggered %s\n", call.Name)

		case event.ModeDefer:
			if err := bus.TriggerDefer(call.Name, call.Args...); err != nil {
				return exitError(exitTrigger, "trigger %s: %v", call.Name, err)
			}
			fmt.Fprintf(out, "deferred %s\n", call.Name)

		case event.ModeSync:
			result, err := bus.TriggerSync(call.Name, call.Args...)
			if err != nil {
				return exitError(exitTrigger, "trigger %s: %v", call.Name, err)
			}
			fmt.Fprintf(out, "%s => %s\n", call.Name, formatResult(result))

		case event.ModeAsync:
			result, err := bus.TriggerAsync(call.Name, call.Args...).Await(ctx)
			if err != nil {
				return exitError(exitTrigger, "trigger %s: %v", call.Name, err)
			}
			fmt.Fprintf(out, "%s => %s\n", call.Name, formatResult(result))
		}
	}

	if mode == event.ModeDefer {
		if err := bus.Flush(ctx); err != nil {
			return exitError(exitTrigger, "flush: %v", err)
		}
	}
	return nil
}

// watch reloads plugins on change until the context ends or a signal arrives.
func watch(ctx context.Context, h *host) error {
	w, err := h.plugins.Watch(h.cfg.Plugins.Dir, h.cfg.Plugins.Debounce)
	if err != nil {
		return exitError(exitPlugin, "watch: %v", err)
	}
	defer w.Close()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()
	return nil
}

// commandContext returns the command's context, or Background when the
// command was executed without one.
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func formatResult(v any) string {
	if v == nil {
		return "<nil>"
	}
	if s, ok := v.(string); ok {
		return fmt.Sprintf("%q", s)
	}
	return fmt.Sprintf("%v", v)
}

func writeStats(out io.Writer, stats event.Stats) {
	for _, mode := range []event.TriggerMode{event.ModeTrigger, event.ModeDefer, event.ModeSync, event.ModeAsync} {
		fmt.Fprintf(out, "stat triggers.%s %d\n", mode, stats.Triggers[mode])
	}
	fmt.Fprintf(out, "stat listeners.matched %d\n", stats.ListenersMatched)
	fmt.Fprintf(out, "stat handler.errors %d\n", stats.HandlerErrors)
	fmt.Fprintf(out, "stat handler.panics %d\n", stats.HandlerPanics)
	fmt.Fprintf(out, "stat listeners %d\n", stats.Listeners)
}
