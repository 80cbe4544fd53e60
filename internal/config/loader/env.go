package loader

import (
	"encoding/json"
	"os"
	"strconv"
	"strings"
)

// Env loads configuration from environment variables carrying Prefix.
//
// EVENTBUS_BUS_DEFER_QUEUE_HINT becomes bus.deferQueueHint: the first
// segment after the prefix names the section, the rest form a camelCase key.
type Env struct {
	// Prefix includes the trailing underscore, e.g. "EVENTBUS_".
	Prefix string

	// Aliases maps full variable names to dotted keys, overriding the
	// naming rule. Aliased variables need not carry Prefix.
	Aliases map[string]string

	// Environ lists the environment as KEY=VALUE pairs. Nil means os.Environ.
	Environ func() []string
}

// Load collects the matching variables. Empty values are kept.
func (e Env) Load() (map[string]any, error) {
	environ := e.Environ
	if environ == nil {
		environ = os.Environ
	}

	out := make(map[string]any)
	for _, kv := range environ() {
		name, value, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		key, aliased := e.Aliases[name]
		if !aliased {
			if !strings.HasPrefix(name, e.Prefix) {
				continue
			}
			key = KeyFor(e.Prefix, name)
		}
		set(out, key, scalar(value))
	}
	return out, nil
}

// KeyFor converts a prefixed variable name to a dotted configuration key.
func KeyFor(prefix, name string) string {
	parts := strings.Split(strings.TrimPrefix(name, prefix), "_")

	var key strings.Builder
	key.WriteString(strings.ToLower(parts[0]))
	for i, part := range parts[1:] {
		if part == "" {
			continue
		}
		if i == 0 {
			key.WriteByte('.')
			key.WriteString(strings.ToLower(part))
			continue
		}
		key.WriteString(strings.ToUpper(part[:1]))
		key.WriteString(strings.ToLower(part[1:]))
	}
	return key.String()
}

// scalar types an environment value. Only true and false are booleans, so
// "off" stays a string.
func scalar(s string) any {
	switch s {
	case "true":
		return true
	case "false":
		return false
	}
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i
	}
	if strings.Contains(s, ".") {
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f
		}
	}
	if strings.HasPrefix(s, "[") || strings.HasPrefix(s, "{") {
		var v any
		if json.Unmarshal([]byte(s), &v) == nil {
			return v
		}
	}
	return s
}

// set stores value under a dotted key, creating intermediate maps.
func set(m map[string]any, key string, value any) {
	parts := strings.Split(key, ".")
	for _, part := range parts[:len(parts)-1] {
		next, ok := m[part].(map[string]any)
		if !ok {
			next = make(map[string]any)
			m[part] = next
		}
		m = next
	}
	m[parts[len(parts)-1]] = value
}
