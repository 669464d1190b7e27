// Package watch turns filesystem activity in scanned folders into scan triggers.
package watch

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	tidyfs "tidy-go/internal/fs"
	"tidy-go/internal/tidy"
)

// ErrWatcherFailed indicates the filesystem watcher failed to initialize.
var ErrWatcherFailed = errors.New("failed to initialize filesystem watcher")

// DefaultSettle is how long a folder must stay quiet before a trigger fires.
const DefaultSettle = 2 * time.Second

// Triggerer accepts scan triggers. *scheduler.Scheduler satisfies it.
type Triggerer interface {
	Trigger(t tidy.Trigger) bool
}

// Watcher sends folderChanged triggers when files appear in watched folders.
// Bursts of events are collapsed into one trigger after the folder settles.
type Watcher struct {
	watcher *fsnotify.Watcher
	target  Triggerer
	ignore  *tidyfs.IgnoreMatcher
	logger  tidy.Logger
	settle  time.Duration

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// New creates a Watcher. Call Add, then Start.
func New(target Triggerer, logger tidy.Logger) (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrWatcherFailed, err)
	}
	return &Watcher{
		watcher: w,
		target:  target,
		ignore:  tidyfs.NewIgnoreMatcher(tidyfs.DefaultIgnorePatterns),
		logger:  logger,
		settle:  DefaultSettle,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}, nil
}

// Add watches the top level of each location. Folders that cannot be
// watched are logged and skipped; the number watched is returned.
func (w *Watcher) Add(locations []tidy.ScanLocation) int {
	n := 0
	for _, loc := range locations {
		if err := w.watcher.Add(loc.Path); err != nil {
			w.logger.Warn("cannot watch folder", "location", loc.Key, "path", loc.Path, "error", err)
			continue
		}
		n++
	}
	return n
}

// Start processes events in the background until ctx is done or Stop is called.
func (w *Watcher) Start(ctx context.Context) {
	go w.loop(ctx)
}

// Stop ends event processing and releases the watcher. It is safe to call more than once.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.stop)
		_ = w.watcher.Close()
	})
}

// Done is closed when the event loop has exited.
func (w *Watcher) Done() <-chan struct{} {
	return w.done
}

func (w *Watcher) loop(ctx context.Context) {
	defer close(w.done)

	var settled <-chan time.Time
	var timer *time.Timer
	for {
		select {
		case <-w.stop:
			return
		case <-ctx.Done():
			w.Stop()
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !w.relevant(event) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.settle)
			} else {
				timer.Reset(w.settle)
			}
			settled = timer.C
		case <-settled:
			settled = nil
			queued := w.target.Trigger(tidy.TriggerFolderChanged)
			w.logger.Debug("folder changed", "queued", queued)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watcher error", "error", err)
		}
	}
}

// relevant reports whether event can bring a new file into a folder.
func (w *Watcher) relevant(event fsnotify.Event) bool {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) && !event.Has(fsnotify.Write) {
		return false
	}
	name := filepath.Base(event.Name)
	if strings.HasPrefix(name, ".") {
		return false
	}
	return !w.ignore.Match(name)
}
