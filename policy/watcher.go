package policy

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	apperrors "github.com/jrsteele09/go-workspace-gateway/internal/errors"
	"github.com/jrsteele09/go-workspace-gateway/internal/metrics"
	"github.com/rs/zerolog/log"
)

const defaultDebounce = 250 * time.Millisecond

// Rename and Remove cover atomic replaces; the debounced reload reads whatever
// sits at the path once the replace has settled.
const reloadOps = fsnotify.Write | fsnotify.Create | fsnotify.Rename | fsnotify.Remove

// Watcher reloads a policy file into a Policy whenever the file changes. A file
// that fails to load leaves the active snapshot in place.
type Watcher struct {
	path     string
	policy   *Policy
	debounce time.Duration

	mu      sync.Mutex
	watcher *fsnotify.Watcher
	stopCh  chan struct{}
	doneCh  chan struct{}
	running bool
}

func NewWatcher(path string, p *Policy, debounce time.Duration) *Watcher {
	if debounce <= 0 {
		debounce = defaultDebounce
	}
	return &Watcher{
		path:     filepath.Clean(path),
		policy:   p,
		debounce: debounce,
	}
}

// Reload loads the file and applies it.
func (w *Watcher) Reload() error {
	s, err := LoadFile(w.path)
	if err != nil {
		metrics.PolicyReloads.WithLabelValues("error").Inc()
		log.Err(err).Str("path", w.path).Msg("policy reload failed, keeping current snapshot")
		return err
	}
	w.policy.Apply(s)
	metrics.PolicyReloads.WithLabelValues("success").Inc()
	return nil
}

// Start watches the directory holding the file, so editors that replace the
// file on save are still followed. When the path is a symlink the directory of
// its target is watched too, and a swapped link target triggers a reload.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return nil
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return apperrors.Wrapf(err, "creating policy watcher")
	}
	if err := fw.Add(filepath.Dir(w.path)); err != nil {
		_ = fw.Close()
		return apperrors.Wrapf(err, "watching %s", filepath.Dir(w.path))
	}
	w.watchTarget(fw, w.resolve())

	w.watcher = fw
	w.stopCh = make(chan struct{})
	w.doneCh = make(chan struct{})
	w.running = true

	go w.loop(ctx, fw, w.stopCh, w.doneCh)

	log.Info().Str("path", w.path).Msg("watching policy file for changes")
	return nil
}

// Stop ends the watch and waits for the event loop to exit.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	close(w.stopCh)
	done := w.doneCh
	w.mu.Unlock()

	<-done
}

func (w *Watcher) loop(ctx context.Context, fw *fsnotify.Watcher, stopCh <-chan struct{}, doneCh chan<- struct{}) {
	defer close(doneCh)
	defer fw.Close()

	target := w.resolve()
	var pending *time.Timer
	defer func() {
		if pending != nil {
			pending.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case event, ok := <-fw.Events:
			if !ok {
				return
			}
			name := filepath.Clean(event.Name)
			relevant := (name == w.path || name == target) && event.Op&reloadOps != 0
			if next := w.resolve(); next != target {
				// the link now points somewhere else, e.g. a ConfigMap ..data swap
				target = next
				w.watchTarget(fw, target)
				relevant = true
			}
			if !relevant {
				continue
			}
			if pending == nil {
				pending = time.AfterFunc(w.debounce, func() { _ = w.Reload() })
			} else {
				pending.Reset(w.debounce)
			}
		case err, ok := <-fw.Errors:
			if !ok {
				return
			}
			log.Err(err).Str("path", w.path).Msg("policy watcher error")
		}
	}
}

// resolve returns the file the path currently points at, or "" when it cannot
// be resolved (for instance mid-swap).
func (w *Watcher) resolve() string {
	target, err := filepath.EvalSymlinks(w.path)
	if err != nil {
		return ""
	}
	return filepath.Clean(target)
}

func (w *Watcher) watchTarget(fw *fsnotify.Watcher, target string) {
	if target == "" || filepath.Dir(target) == filepath.Dir(w.path) {
		return
	}
	if err := fw.Add(filepath.Dir(target)); err != nil {
		log.Warn().Err(err).Str("path", target).Msg("cannot watch policy link target")
	}
}
