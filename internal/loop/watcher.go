package loop

import (
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watcher notices deployment stamp changes so the orchestrator can hand
// control back for a clean restart. It never restarts anything itself; it
// only raises a flag the loop checks once per cycle.
//
// A nil *Watcher is valid and never requests a restart.
type Watcher struct {
	path string
	fw   *fsnotify.Watcher
	log  *zap.Logger

	restart  atomic.Bool
	baseline time.Time

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// NewWatcher watches the stamp file's directory for writes to the stamp.
// An empty path disables watching (returns nil, nil).
func NewWatcher(stampPath string, log *zap.Logger) (*Watcher, error) {
	if stampPath == "" {
		return nil, nil
	}
	if log == nil {
		log = zap.NewNop()
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		path:   filepath.Clean(stampPath),
		fw:     fw,
		log:    log.Named("watcher"),
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
	if info, err := os.Stat(w.path); err == nil {
		w.baseline = info.ModTime()
	}

	// Watch the parent directory: deployers typically replace the stamp
	// file wholesale, which a file-level watch would lose track of.
	if err := fw.Add(filepath.Dir(w.path)); err != nil {
		fw.Close()
		return nil, err
	}

	go w.run()
	return w, nil
}

func (w *Watcher) run() {
	defer close(w.doneCh)
	for {
		select {
		case <-w.stopCh:
			return
		case event, ok := <-w.fw.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				w.log.Info("deployment stamp changed", zap.String("path", w.path))
				w.restart.Store(true)
			}
		case err, ok := <-w.fw.Errors:
			if !ok {
				return
			}
			w.log.Warn("stamp watch error", zap.Error(err))
		}
	}
}

// RestartRequested reports whether the stamp has changed since startup.
// The mtime check backstops filesystems where inotify events are unreliable.
func (w *Watcher) RestartRequested() bool {
	if w == nil {
		return false
	}
	if w.restart.Load() {
		return true
	}
	if info, err := os.Stat(w.path); err == nil && info.ModTime().After(w.baseline) {
		w.restart.Store(true)
		return true
	}
	return false
}

// Close stops the watch goroutine and releases the inotify handle.
func (w *Watcher) Close() error {
	if w == nil {
		return nil
	}
	var err error
	w.stopOnce.Do(func() {
		close(w.stopCh)
		err = w.fw.Close()
		<-w.doneCh
	})
	return err
}
