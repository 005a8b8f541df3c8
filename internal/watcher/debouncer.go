package watcher

import (
	"log/slog"
	"sync"
	"time"
)

// Debouncer coalesces rapid file events so a burst of saves triggers a
// single refresh. Events for the same path inside the window merge:
//
//	CREATE + MODIFY = CREATE (file is still new)
//	CREATE + DELETE = nothing (file never really existed)
//	MODIFY + DELETE = DELETE (file is gone)
//	DELETE + CREATE = MODIFY (file was replaced)
type Debouncer struct {
	window  time.Duration
	logger  *slog.Logger
	output  chan []FileEvent
	mu      sync.Mutex
	pending map[string]*pendingEvent
	timer   *time.Timer
	stopped bool
}

type pendingEvent struct {
	event   FileEvent
	firstOp Operation
}

// NewDebouncer creates a debouncer that emits coalesced batches after
// the window has been quiet.
func NewDebouncer(window time.Duration, logger *slog.Logger) *Debouncer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Debouncer{
		window:  window,
		logger:  logger,
		output:  make(chan []FileEvent, 10),
		pending: make(map[string]*pendingEvent),
	}
}

// Add feeds one event into the current window.
func (d *Debouncer) Add(event FileEvent) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}

	if existing, ok := d.pending[event.Path]; ok {
		merged := coalesce(existing, event)
		if merged == nil {
			delete(d.pending, event.Path)
		} else {
			existing.event = *merged
		}
	} else {
		d.pending[event.Path] = &pendingEvent{
			event:   event,
			firstOp: event.Operation,
		}
	}

	// Restart the window on every event so a burst flushes once.
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.window, d.flush)
}

// coalesce merges a new event into the pending one. A nil result means
// the events cancelled out.
func coalesce(existing *pendingEvent, event FileEvent) *FileEvent {
	switch existing.firstOp {
	case OpCreate:
		switch event.Operation {
		case OpModify:
			return &existing.event
		case OpDelete:
			return nil
		default:
			return &event
		}
	case OpDelete:
		if event.Operation == OpCreate {
			merged := event
			merged.Operation = OpModify
			return &merged
		}
		return &event
	default:
		return &event
	}
}

func (d *Debouncer) flush() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped || len(d.pending) == 0 {
		return
	}

	events := make([]FileEvent, 0, len(d.pending))
	for _, pe := range d.pending {
		events = append(events, pe.event)
	}
	d.pending = make(map[string]*pendingEvent)

	select {
	case d.output <- events:
	default:
		d.logger.Warn("debouncer output full, dropping batch",
			slog.Int("batch_size", len(events)))
	}
}

// Output returns the channel of coalesced event batches.
func (d *Debouncer) Output() <-chan []FileEvent {
	return d.output
}

// Stop closes the output channel. Safe to call more than once.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}
	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
	}
	close(d.output)
}
