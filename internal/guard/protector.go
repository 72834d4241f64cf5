// Package guard keeps the agent from modifying the files that keep it
// alive. It owns the protected-path registry, static validation of
// proposed code, and the backup/apply/rollback cycle the orchestrator
// drives. Nothing in this package talks to the network or to git.
package guard

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/theRebelliousNerd/evoloop/internal/logging"

	"github.com/fsnotify/fsnotify"
)

// ProtectFileName is the workspace-relative file listing extra
// protected paths, one per line, # comments allowed.
const ProtectFileName = ".evoprotect"

// coreProtected can never be unprotected, not even by editing the
// protect file. Everything the agent needs to boot, push, and stay
// guarded lives here.
var coreProtected = map[string]struct{}{
	"cmd/evoloop/main.go":     {},
	"internal/vcs/gateway.go": {},
	".evoloop/config.yaml":    {},
	ProtectFileName:           {},
}

// Protector answers "may the agent touch this file". The answer
// combines the hardcoded core set with the on-disk protect file, which
// can be reloaded at runtime (or watched, see Watch).
type Protector struct {
	mu    sync.RWMutex
	root  string
	extra map[string]struct{}

	watcher *fsnotify.Watcher
	stopCh  chan struct{}
	doneCh  chan struct{}
	running bool
}

// NewProtector loads the protect file under root. A missing or
// unreadable protect file leaves only the core set active.
func NewProtector(root string) *Protector {
	p := &Protector{
		root:   root,
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
	p.Reload()
	return p
}

// Reload re-reads the protect file. Core entries survive regardless of
// file content.
func (p *Protector) Reload() {
	extra := make(map[string]struct{})

	path := filepath.Join(p.root, ProtectFileName)
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			logging.GuardWarn("failed to read %s: %v", ProtectFileName, err)
		}
	} else {
		for _, line := range strings.Split(string(data), "\n") {
			line = strings.TrimSpace(line)
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			// Strip trailing inline comments.
			if idx := strings.Index(line, "#"); idx >= 0 {
				line = strings.TrimSpace(line[:idx])
			}
			if line != "" {
				extra[normalizePath(line)] = struct{}{}
			}
		}
	}

	p.mu.Lock()
	p.extra = extra
	p.mu.Unlock()

	logging.GuardDebug("protect list reloaded: %d core + %d from %s", len(coreProtected), len(extra), ProtectFileName)
}

// IsProtected reports whether a workspace-relative path may not be
// modified by the agent.
func (p *Protector) IsProtected(filename string) bool {
	if filename == "" {
		return false
	}
	normalized := normalizePath(filename)

	if _, ok := coreProtected[normalized]; ok {
		return true
	}

	// The protect file itself is off-limits wherever it sits.
	if filepath.Base(normalized) == ProtectFileName {
		return true
	}

	// The whole commit/push path is off-limits, not just the gateway.
	if strings.HasPrefix(normalized, "internal/vcs/") {
		return true
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.extra[normalized]
	return ok
}

// Protected returns the active protected paths, sorted, for status
// output.
func (p *Protector) Protected() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]string, 0, len(coreProtected)+len(p.extra))
	for path := range coreProtected {
		out = append(out, path)
	}
	for path := range p.extra {
		if _, dup := coreProtected[path]; !dup {
			out = append(out, path)
		}
	}
	sort.Strings(out)
	return out
}

// Watch reloads the protect list whenever the protect file changes on
// disk. Non-blocking; Stop tears the watcher down.
func (p *Protector) Watch(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		p.mu.Unlock()
		return err
	}
	p.watcher = watcher
	p.running = true
	p.mu.Unlock()

	// Watch the directory, not the file: editors replace files and the
	// watch would die with the old inode.
	if err := watcher.Add(p.root); err != nil {
		logging.GuardWarn("protect watch failed for %s: %v", p.root, err)
	}

	go p.run(ctx)
	return nil
}

// Stop stops the watcher and waits for the loop to exit.
func (p *Protector) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	p.mu.Unlock()

	close(p.stopCh)
	<-p.doneCh

	if err := p.watcher.Close(); err != nil {
		logging.GuardWarn("error closing protect watcher: %v", err)
	}
}

func (p *Protector) run(ctx context.Context) {
	defer close(p.doneCh)

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stopCh:
			return
		case event, ok := <-p.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != ProtectFileName {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				logging.Guard("%s changed on disk, reloading protect list", ProtectFileName)
				p.Reload()
			}
		case err, ok := <-p.watcher.Errors:
			if !ok {
				return
			}
			logging.GuardWarn("protect watcher error: %v", err)
		}
	}
}

// normalizePath strips leading ./ and converts backslashes so protect
// entries match however the generator spells the path.
func normalizePath(path string) string {
	path = strings.ReplaceAll(path, "\\", "/")
	for strings.HasPrefix(path, "./") {
		path = path[2:]
	}
	return strings.TrimPrefix(path, "/")
}
