// Package watch rebuilds chains when their source files change.
//
// Every binding is a two-state machine. A matching change moves an idle
// binding to rebuilding and starts its chain. A change that arrives while
// the chain is rebuilding marks the binding dirty; when the rebuild
// finishes a dirty binding rebuilds once more instead of going idle. No
// change is lost and there is no timer-based debounce.
package watch

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"assetweaver/internal/core"
	"assetweaver/internal/dag"
	"assetweaver/internal/logging"
)

// State of a binding.
type State int

const (
	StateIdle State = iota
	StateRebuilding
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRebuilding:
		return "rebuilding"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Binding maps source patterns to the chain rebuilt when they change.
type Binding struct {
	Chain    string
	Patterns []string
}

// RebuildFunc runs one chain. A chain failure is reported in the result.
type RebuildFunc func(ctx context.Context, chain string) (*dag.GraphResult, error)

// Notifier tells connected browsers about new output.
type Notifier interface {
	Reload()
	// InjectCSS swaps stylesheets in place. Paths are project-relative.
	InjectCSS(paths []string)
}

// Options configure a Watcher.
type Options struct {
	Logger *zap.Logger

	// Notifier is told about successful rebuilds. Nil disables notification.
	Notifier Notifier

	// Ignore lists project-relative directories that are never watched,
	// typically the output root. Hidden directories and node_modules are
	// always skipped.
	Ignore []string
}

// Watcher watches the project tree and drives the bindings.
type Watcher struct {
	root     string
	rebuild  RebuildFunc
	notifier Notifier
	ignore   map[string]bool
	logger   *zap.Logger

	mu       sync.Mutex
	bindings []*binding
	rebuilds int

	wg sync.WaitGroup
}

type binding struct {
	chain    string
	patterns []*core.Pattern
	state    State
	dirty    bool
}

// New compiles the bindings. Bindings naming the same chain are merged.
func New(root string, bindings []Binding, rebuild RebuildFunc, opts Options) (*Watcher, error) {
	if rebuild == nil {
		return nil, fmt.Errorf("rebuild function is required")
	}
	w := &Watcher{
		root:     root,
		rebuild:  rebuild,
		notifier: opts.Notifier,
		ignore:   make(map[string]bool),
		logger:   opts.Logger,
	}
	if w.logger == nil {
		w.logger = zap.NewNop()
	}
	for _, dir := range opts.Ignore {
		w.ignore[path.Clean(filepath.ToSlash(dir))] = true
	}

	byChain := make(map[string]*binding)
	for _, b := range bindings {
		if b.Chain == "" {
			return nil, fmt.Errorf("binding without chain")
		}
		cur, ok := byChain[b.Chain]
		if !ok {
			cur = &binding{chain: b.Chain}
			byChain[b.Chain] = cur
			w.bindings = append(w.bindings, cur)
		}
		for _, raw := range b.Patterns {
			p, err := core.CompilePattern(raw)
			if err != nil {
				return nil, fmt.Errorf("binding %q: pattern %q: %w", b.Chain, raw, err)
			}
			cur.patterns = append(cur.patterns, p)
		}
	}
	return w, nil
}

// State returns the state of the binding for chain.
func (w *Watcher) State(chain string) State {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, b := range w.bindings {
		if b.chain == chain {
			return b.state
		}
	}
	return StateIdle
}

// Rebuilds returns how many rebuilds have been started.
func (w *Watcher) Rebuilds() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.rebuilds
}

// Run watches the tree until ctx is done, then waits for running rebuilds.
func (w *Watcher) Run(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating file watcher: %w", err)
	}
	defer fsw.Close()

	if err := w.addTree(fsw, w.root); err != nil {
		return err
	}
	w.logger.Info("Watching for changes", zap.String("root", w.root), zap.Int("bindings", len(w.bindings)))

	defer w.wait()
	for {
		select {
		case <-ctx.Done():
			w.logger.Debug("Watcher stopping")
			return nil

		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			w.handleEvent(ctx, fsw, event)

		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("File watcher error", zap.Error(err))
		}
	}
}

func (w *Watcher) handleEvent(ctx context.Context, fsw *fsnotify.Watcher, event fsnotify.Event) {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) &&
		!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
		return
	}
	rel, err := filepath.Rel(w.root, event.Name)
	if err != nil || strings.HasPrefix(rel, "..") {
		return
	}
	rel = filepath.ToSlash(rel)

	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if w.skipDir(rel, info.Name()) {
				return
			}
			if err := w.addTree(fsw, event.Name); err != nil {
				w.logger.Warn("Watching new directory failed", zap.String("dir", rel), zap.Error(err))
			}
			// Files may have landed before the watch was added.
			_ = filepath.WalkDir(event.Name, func(p string, d fs.DirEntry, err error) error {
				if err == nil && !d.IsDir() {
					if r, err := filepath.Rel(w.root, p); err == nil {
						w.Trigger(ctx, filepath.ToSlash(r))
					}
				}
				return nil
			})
			return
		}
	}

	w.logger.Debug("Change detected", zap.String("path", rel), zap.String("op", event.Op.String()))
	w.Trigger(ctx, rel)
}

// Trigger reports a change to a project-relative path and starts or marks
// dirty every binding it matches.
func (w *Watcher) Trigger(ctx context.Context, rel string) {
	for _, b := range w.bindings {
		if !b.matches(rel) {
			continue
		}
		w.mu.Lock()
		if b.state == StateRebuilding {
			b.dirty = true
			w.mu.Unlock()
			continue
		}
		b.state = StateRebuilding
		w.mu.Unlock()

		w.wg.Add(1)
		go w.rebuildLoop(ctx, b)
	}
}

func (w *Watcher) rebuildLoop(ctx context.Context, b *binding) {
	defer w.wg.Done()
	log := logging.Chain(w.logger, b.chain)

	for {
		w.mu.Lock()
		w.rebuilds++
		w.mu.Unlock()

		res, err := w.rebuild(ctx, b.chain)
		switch {
		case err != nil:
			if ctx.Err() == nil {
				log.Error("Rebuild aborted", zap.Error(err))
			}
		case res != nil && res.Succeeded():
			w.notify(res.Changed())
		default:
			log.Warn("Rebuild failed; waiting for the next change")
		}

		w.mu.Lock()
		if b.dirty && ctx.Err() == nil {
			b.dirty = false
			w.mu.Unlock()
			log.Debug("Changes arrived during rebuild; rebuilding again")
			continue
		}
		b.dirty = false
		b.state = StateIdle
		w.mu.Unlock()
		return
	}
}

// notify sends a CSS inject when only stylesheets changed and a full
// reload otherwise. Nothing is sent when no output changed.
func (w *Watcher) notify(changed []string) {
	if w.notifier == nil || len(changed) == 0 {
		return
	}
	for _, p := range changed {
		if !strings.EqualFold(path.Ext(p), ".css") {
			w.notifier.Reload()
			return
		}
	}
	w.notifier.InjectCSS(changed)
}

func (w *Watcher) wait() { w.wg.Wait() }

func (b *binding) matches(rel string) bool {
	for _, p := range b.patterns {
		if p.Match(rel) {
			return true
		}
	}
	return false
}

func (w *Watcher) skipDir(rel, name string) bool {
	if rel != "." && (strings.HasPrefix(name, ".") || name == "node_modules") {
		return true
	}
	return w.ignore[rel]
}

// addTree watches dir and its subdirectories.
func (w *Watcher) addTree(fsw *fsnotify.Watcher, dir string) error {
	return filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(w.root, p)
		if err != nil {
			return err
		}
		if w.skipDir(filepath.ToSlash(rel), d.Name()) {
			return filepath.SkipDir
		}
		if err := fsw.Add(p); err != nil {
			return fmt.Errorf("watching %s: %w", p, err)
		}
		return nil
	})
}
