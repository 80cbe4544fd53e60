// Package loader reads configuration sources into generic maps.
//
// A File decodes one TOML or YAML document and Env turns prefixed
// environment variables into nested keys. Merge layers the results, later
// sources overriding earlier ones.
package loader

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
)

// Loader produces a configuration map from one source.
type Loader interface {
	// Load returns nil, nil when the source does not exist.
	Load() (map[string]any, error)
}

// ReadFileFunc reads a whole file. os.ReadFile satisfies it.
type ReadFileFunc func(path string) ([]byte, error)

// File loads a configuration file.
type File struct {
	Path   string
	Format Format

	read ReadFileFunc
}

// NewFile returns a loader for path, choosing the format from its extension.
// A nil read uses os.ReadFile.
func NewFile(path string, read ReadFileFunc) (*File, error) {
	format, err := FormatOf(path)
	if err != nil {
		return nil, err
	}
	if read == nil {
		read = os.ReadFile
	}
	return &File{Path: path, Format: format, read: read}, nil
}

// Load reads and decodes the file.
func (f *File) Load() (map[string]any, error) {
	data, err := f.read(f.Path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("reading config file %s: %w", f.Path, err)
	}
	return f.Format.Decode(f.Path, data)
}

// ParseError reports a malformed configuration document.
type ParseError struct {
	Source string
	Line   int // 0 when unknown
	Column int // 0 when unknown
	Err    error
}

func (e *ParseError) Error() string {
	switch {
	case e.Line > 0 && e.Column > 0:
		return fmt.Sprintf("%s:%d:%d: %v", e.Source, e.Line, e.Column, e.Err)
	case e.Line > 0:
		return fmt.Sprintf("%s:%d: %v", e.Source, e.Line, e.Err)
	default:
		return fmt.Sprintf("%s: %v", e.Source, e.Err)
	}
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// Merge returns a new map with over layered onto base. Nested maps merge
// key by key; any other value in over replaces the one in base. Neither
// argument is modified.
func Merge(base, over map[string]any) map[string]any {
	out := make(map[string]any, len(base)+len(over))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range over {
		sub, isMap := v.(map[string]any)
		prev, wasMap := out[k].(map[string]any)
		if isMap && wasMap {
			out[k] = Merge(prev, sub)
			continue
		}
		out[k] = v
	}
	return out
}
