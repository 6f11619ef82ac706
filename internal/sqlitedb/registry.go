// Maps database names from request paths to SQLite files.

package sqlitedb

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"sync"
)

// ErrUnknownDatabase is returned for names that map to no database.
var ErrUnknownDatabase = errors.New("unknown database")

var validName = regexp.MustCompile(`^[A-Za-z0-9_][A-Za-z0-9_.-]*$`)

// Registry opens databases lazily and keeps them open.
type Registry struct {
	dir    string
	paths  map[string]string
	create bool
	opts   Options

	mu   sync.Mutex
	open map[string]*Database
}

// NewRegistry serves databases from dir.
//
// When paths is non-empty only those names are served, each mapped to its
// file (relative paths resolve against dir). Otherwise every "<name>.db" in
// dir is served. create allows the first write to a missing file to create it.
func NewRegistry(dir string, paths map[string]string, create bool, opts Options) *Registry {
	p := make(map[string]string, len(paths))
	for name, path := range paths {
		if !filepath.IsAbs(path) {
			path = filepath.Join(dir, path)
		}
		p[name] = path
	}
	return &Registry{dir: dir, paths: p, create: create, opts: opts, open: make(map[string]*Database)}
}

// Get returns the named database, opening it on first use.
func (r *Registry) Get(ctx context.Context, name string) (*Database, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if d := r.open[name]; d != nil {
		return d, nil
	}
	path, err := r.resolve(name)
	if err != nil {
		return nil, err
	}
	d, err := Open(ctx, name, path, r.opts)
	if err != nil {
		return nil, err
	}
	r.open[name] = d
	return d, nil
}

// Has reports whether name maps to a database without opening it.
func (r *Registry) Has(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.open[name] != nil {
		return true
	}
	_, err := r.resolve(name)
	return err == nil
}

func (r *Registry) resolve(name string) (string, error) {
	if !validName.MatchString(name) {
		return "", fmt.Errorf("%w: %q", ErrUnknownDatabase, name)
	}
	var path string
	if len(r.paths) != 0 {
		p, ok := r.paths[name]
		if !ok {
			return "", fmt.Errorf("%w: %q", ErrUnknownDatabase, name)
		}
		path = p
	} else {
		path = filepath.Join(r.dir, name+".db")
	}
	if _, err := os.Stat(path); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return "", err
		}
		if !r.create {
			return "", fmt.Errorf("%w: %q", ErrUnknownDatabase, name)
		}
	}
	return path, nil
}

// Names lists the databases currently available.
func (r *Registry) Names() []string {
	if len(r.paths) != 0 {
		out := make([]string, 0, len(r.paths))
		for name := range r.paths {
			out = append(out, name)
		}
		slices.Sort(out)
		return out
	}
	matches, _ := filepath.Glob(filepath.Join(r.dir, "*.db"))
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		name := strings.TrimSuffix(filepath.Base(m), ".db")
		if validName.MatchString(name) {
			out = append(out, name)
		}
	}
	return out
}

// Close closes every open database.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var errs []error
	for name, d := range r.open {
		if err := d.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", name, err))
		}
		delete(r.open, name)
	}
	return errors.Join(errs...)
}
