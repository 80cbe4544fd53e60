package topic

import (
	"slices"
	"strings"
	"unicode"
)

// All is the wildcard event name. Listeners registered under it are invoked
// for every triggered name and receive that name as their first argument.
const All = "all"

// Resolve splits a name argument into the individual event names it
// denotes. Names are separated by runs of whitespace; a blank argument
// resolves to nothing.
//
// Example: "buffer:save  buffer:close" -> ["buffer:save", "buffer:close"]
func Resolve(name string) []string {
	if name == "" {
		return nil
	}
	if !strings.ContainsFunc(name, unicode.IsSpace) {
		return []string{name}
	}
	return strings.Fields(name)
}

// IsValid reports whether name resolves to at least one event name.
func IsValid(name string) bool {
	return strings.TrimSpace(name) != ""
}

// Entry is one event name paired with the value registered for it.
type Entry[V any] struct {
	Name  string
	Value V
}

// Expand flattens a name map into entries. Keys are visited in sorted order
// so expansion is deterministic, and each key is itself resolved, so a key
// like "a b" yields one entry per name.
func Expand[V any](m map[string]V) []Entry[V] {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	entries := make([]Entry[V], 0, len(m))
	for _, k := range keys {
		for _, name := range Resolve(k) {
			entries = append(entries, Entry[V]{Name: name, Value: m[k]})
		}
	}
	return entries
}
