// Package watcher provides a small generic filesystem watcher with
// debounced event coalescing, used by internal/config to notice edits to
// the on-disk config file.
package watcher

import (
	"context"
	"time"
)

// Operation identifies the kind of filesystem change observed for a path.
type Operation int

const (
	OpCreate Operation = iota
	OpModify
	OpRemove
)

func (op Operation) String() string {
	switch op {
	case OpCreate:
		return "CREATE"
	case OpModify:
		return "MODIFY"
	case OpRemove:
		return "REMOVE"
	default:
		return "UNKNOWN"
	}
}

// FileEvent is one coalesced filesystem change.
type FileEvent struct {
	Path      string
	Operation Operation
	Timestamp time.Time
}

// Watcher watches a directory and emits debounced file events.
type Watcher interface {
	// Start begins watching path. Runs until ctx is cancelled or Stop is called.
	Start(ctx context.Context, path string) error
	// Stop releases the watcher's resources. Safe to call more than once.
	Stop() error
	// Events returns the channel of debounced event batches, closed on Stop.
	Events() <-chan []FileEvent
	// Errors returns the channel of non-fatal watch errors. It is not
	// closed on Stop.
	Errors() <-chan error
}

// Options configures a Watcher.
type Options struct {
	// DebounceWindow coalesces rapid successive events for the same path.
	DebounceWindow time.Duration
	// EventBufferSize bounds the debounced-batch output channel.
	EventBufferSize int
}

// DefaultOptions returns sensible defaults: editors often write a file in
// several rapid syscalls (create, write, chmod), so a few hundred
// milliseconds of coalescing avoids ingesting a half-written file.
func DefaultOptions() Options {
	return Options{
		DebounceWindow:  500 * time.Millisecond,
		EventBufferSize: 64,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.DebounceWindow == 0 {
		o.DebounceWindow = d.DebounceWindow
	}
	if o.EventBufferSize == 0 {
		o.EventBufferSize = d.EventBufferSize
	}
	return o
}
