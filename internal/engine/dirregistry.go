package engine

import (
	"cmp"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"sync"
)

// dirRegistry tracks destination directories created by migrations in this
// process. A directory is removed on release only when this process created
// it, no live migration still claims it, and it is empty. Workers share
// destination trees, so the last one out removes what the others left.
var globalDirRegistry = &dirRegistry{
	created: make(map[string]struct{}),
	claims:  make(map[string]int),
}

type dirRegistry struct {
	mu      sync.Mutex
	created map[string]struct{}
	claims  map[string]int
}

// mkdirAll creates dir and its missing parents. Every created level, and the
// first existing ancestor, is claimed in held until release.
func (g *dirRegistry) mkdirAll(dir string, held map[string]struct{}) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	var missing []string
	d := filepath.Clean(dir)
	for {
		g.claim(d, held)
		_, err := os.Stat(d)
		if err == nil {
			break
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return err
		}
		missing = append(missing, d)
		if filepath.Dir(d) == d {
			break
		}
		d = filepath.Dir(d)
	}
	for i := len(missing) - 1; i >= 0; i-- {
		if err := os.Mkdir(missing[i], 0o755); err != nil {
			if errors.Is(err, fs.ErrExist) {
				continue
			}
			return err
		}
		g.created[missing[i]] = struct{}{}
	}
	return nil
}

func (g *dirRegistry) claim(dir string, held map[string]struct{}) {
	if _, ok := held[dir]; ok {
		return
	}
	held[dir] = struct{}{}
	g.claims[dir]++
}

// release drops every claim in held, then removes the unclaimed empty
// directories this process created, deepest first, walking up through
// created parents.
func (g *dirRegistry) release(held map[string]struct{}) {
	g.mu.Lock()
	defer g.mu.Unlock()

	dirs := make([]string, 0, len(held))
	for d := range held {
		if g.claims[d]--; g.claims[d] <= 0 {
			delete(g.claims, d)
		}
		dirs = append(dirs, d)
	}
	clear(held)
	slices.SortFunc(dirs, func(a, b string) int { return cmp.Compare(len(b), len(a)) })

	for _, d := range dirs {
		for g.removable(d) && removeIfEmpty(d) {
			delete(g.created, d)
			d = filepath.Dir(d)
		}
	}
}

func (g *dirRegistry) removable(dir string) bool {
	_, created := g.created[dir]
	return created && g.claims[dir] == 0
}
