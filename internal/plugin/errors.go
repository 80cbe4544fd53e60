package plugin

import "errors"

// Plugin system errors.
var (
	// ErrPluginNotFound is returned when a plugin is not loaded under a name.
	ErrPluginNotFound = errors.New("plugin not found")

	// ErrAlreadyLoaded is returned when attempting to load an already loaded plugin.
	ErrAlreadyLoaded = errors.New("plugin is already loaded")

	// ErrInvalidPlugin is returned when a path does not name a Lua plugin.
	ErrInvalidPlugin = errors.New("invalid plugin")

	// ErrManagerClosed is returned after the manager has been closed.
	ErrManagerClosed = errors.New("plugin manager is closed")
)
