package patterns

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed catalog/*.yaml
var builtinFS embed.FS

// Builtin parses the embedded catalogue.
func Builtin() ([]Pattern, error) {
	sub, err := fs.Sub(builtinFS, "catalog")
	if err != nil {
		return nil, fmt.Errorf("opening builtin catalogue: %w", err)
	}
	return LoadFS(sub)
}

// LoadDir parses every *.yaml / *.yml file in dir. A missing directory is
// not an error.
func LoadDir(dir string) ([]Pattern, error) {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return nil, nil
	}
	return LoadFS(os.DirFS(dir))
}

// LoadFS parses pattern files at the root of fsys in lexical order.
func LoadFS(fsys fs.FS) ([]Pattern, error) {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("reading catalogue: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if !e.IsDir() && (ext == ".yaml" || ext == ".yml") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	out := make([]Pattern, 0, len(names))
	for _, name := range names {
		data, err := fs.ReadFile(fsys, name)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", name, err)
		}
		var p Pattern
		if err := yaml.Unmarshal(data, &p); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", name, err)
		}
		if p.ID == "" {
			return nil, fmt.Errorf("parsing %s: %w: missing id", name, ErrInvalidPattern)
		}
		out = append(out, p)
	}
	return out, nil
}

// RegisterAll registers patterns in order; a later pattern with the same ID
// replaces an earlier one.
func (l *Library) RegisterAll(ps []Pattern) error {
	for _, p := range ps {
		if err := l.Register(p); err != nil {
			return err
		}
	}
	return nil
}
