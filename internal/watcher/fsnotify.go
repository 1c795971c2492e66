package watcher

import (
	"context"
	"fmt"
	"time"

	"github.com/fsnotify/fsnotify"
)

// FSWatcher implements Watcher over fsnotify, non-recursive: it watches a
// single directory and reports changes to the files directly inside it.
type FSWatcher struct {
	opts      Options
	fsw       *fsnotify.Watcher
	debouncer *debouncer
	errCh     chan error
	stopCh    chan struct{}
}

var _ Watcher = (*FSWatcher)(nil)

// NewFSWatcher builds an FSWatcher. Call Start to begin watching.
func NewFSWatcher(opts Options) *FSWatcher {
	opts = opts.withDefaults()
	return &FSWatcher{
		opts:  opts,
		errCh: make(chan error, opts.EventBufferSize),
	}
}

func (w *FSWatcher) Start(ctx context.Context, path string) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watcher: create fsnotify watcher: %w", err)
	}
	if err := fsw.Add(path); err != nil {
		fsw.Close()
		return fmt.Errorf("watcher: watch %s: %w", path, err)
	}

	w.fsw = fsw
	w.debouncer = newDebouncer(w.opts.DebounceWindow, w.opts.EventBufferSize)
	w.stopCh = make(chan struct{})

	go w.run(ctx)
	return nil
}

func (w *FSWatcher) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			w.Stop()
			return
		case <-w.stopCh:
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.debouncer.add(toFileEvent(ev))
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			select {
			case w.errCh <- err:
			default:
			}
		}
	}
}

func toFileEvent(ev fsnotify.Event) FileEvent {
	op := OpModify
	switch {
	case ev.Has(fsnotify.Create):
		op = OpCreate
	case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
		op = OpRemove
	}
	return FileEvent{Path: ev.Name, Operation: op, Timestamp: time.Now()}
}

func (w *FSWatcher) Stop() error {
	select {
	case <-w.stopCh:
		return nil
	default:
	}
	close(w.stopCh)
	if w.debouncer != nil {
		w.debouncer.Stop()
	}
	if w.fsw != nil {
		return w.fsw.Close()
	}
	return nil
}

func (w *FSWatcher) Events() <-chan []FileEvent {
	return w.debouncer.Output()
}

func (w *FSWatcher) Errors() <-chan error {
	return w.errCh
}
