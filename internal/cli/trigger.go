package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/dshills/eventbus/internal/event"
)

// triggerCall is one --trigger flag value: "name" or "name=arg,arg". Names
// may contain colons, so the argument separator is "=".
type triggerCall struct {
	Name string
	Args []any
}

// parseTrigger parses a trigger flag value. Arguments are typed as int,
// float, bool or string, in that order of preference.
func parseTrigger(s string) (triggerCall, error) {
	name, rest, hasArgs := strings.Cut(s, "=")
	name = strings.TrimSpace(name)
	if name == "" {
		return triggerCall{}, fmt.Errorf("trigger %q: empty event name", s)
	}

	call := triggerCall{Name: name}
	if !hasArgs || rest == "" {
		return call, nil
	}
	for _, raw := range strings.Split(rest, ",") {
		call.Args = append(call.Args, parseArg(strings.TrimSpace(raw)))
	}
	return call, nil
}

func parseArg(s string) any {
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	switch s {
	case "true":
		return true
	case "false":
		return false
	}
	return s
}

// parseMode maps a --mode value to a trigger mode.
func parseMode(s string) (event.TriggerMode, error) {
	switch strings.ToLower(s) {
	case "", "trigger":
		return event.ModeTrigger, nil
	case "sync":
		return event.ModeSync, nil
	case "async":
		return event.ModeAsync, nil
	case "defer":
		return event.ModeDefer, nil
	default:
		return 0, fmt.Errorf("unknown mode %q (want trigger, sync, async or defer)", s)
	}
}
