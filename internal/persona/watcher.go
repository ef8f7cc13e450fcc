package persona

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"

	"peterbot/internal/logging"
)

const defaultDebounce = 250 * time.Millisecond

// Watcher serves the current persona and reloads it when the file changes.
// It implements generation.Persona, so backends always see the latest
// version without being rebuilt.
type Watcher struct {
	path     string
	current  atomic.Pointer[Persona]
	debounce time.Duration

	mu      sync.Mutex
	reloads int
}

// NewWatcher loads path once and returns a Watcher serving it.
func NewWatcher(path string) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve persona path: %w", err)
	}
	p, err := Load(abs)
	if err != nil {
		return nil, err
	}
	w := &Watcher{path: abs, debounce: defaultDebounce}
	w.current.Store(&p)
	return w, nil
}

// Current returns the persona in effect.
func (w *Watcher) Current() Persona { return *w.current.Load() }

// SystemInstruction implements generation.Persona.
func (w *Watcher) SystemInstruction() string { return w.current.Load().SystemInstruction }

// Render implements generation.Persona.
func (w *Watcher) Render(prompt string) string { return w.current.Load().Render(prompt) }

// Reloads reports how many successful reloads have happened.
func (w *Watcher) Reloads() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.reloads
}

// Reload re-reads the file. On failure the previous persona stays active.
func (w *Watcher) Reload() error {
	p, err := Load(w.path)
	if err != nil {
		logging.PersonaWarn("keeping previous persona, reload of %s failed: %v", w.path, err)
		return err
	}
	w.current.Store(&p)

	w.mu.Lock()
	w.reloads++
	w.mu.Unlock()

	logging.Persona("persona reloaded: name=%s", p.Name)
	return nil
}

// Run watches the persona file until ctx is cancelled. The parent directory
// is watched rather than the file so editors that save via rename are seen.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create persona watcher: %w", err)
	}
	defer fw.Close()

	dir := filepath.Dir(w.path)
	if err := fw.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}
	logging.Persona("watching persona file %s", w.path)

	var timer *time.Timer
	var fire <-chan time.Time
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) && !event.Has(fsnotify.Rename) {
				continue
			}
			// Debounce: editors often emit several events per save.
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			fire = timer.C

		case <-fire:
			fire = nil
			_ = w.Reload()

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			logging.PersonaWarn("persona watcher error: %v", err)
		}
	}
}
