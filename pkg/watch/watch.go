// Package watch notifies changes of KAR files in directories.
package watch

import (
	"context"
	"log"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

type Op int

const (
	// Created means a KAR file is created or rewritten.
	Created Op = iota + 1

	// Removed means a KAR file is removed or renamed away.
	Removed
)

func (op Op) String() string {
	switch op {
	case Created:
		return "created"
	case Removed:
		return "removed"
	default:
		return "unknown"
	}
}

type Event struct {
	Op   Op
	Path string
}

type option struct {
	debounce time.Duration
	logger   *log.Logger
}

type Option func(*option) *option

// WithDebounce sets how long to wait for writes to settle before notifying Created.
//
// Default is 500ms. Zero or negative d notifies Created at the next tick.
func WithDebounce(d time.Duration) Option {
	return func(o *option) *option {
		o.debounce = d
		return o
	}
}

func WithLogger(l *log.Logger) Option {
	return func(o *option) *option {
		o.logger = l
		return o
	}
}

// minTick is the shortest interval to check pending writes.
const minTick = time.Millisecond

func isKAR(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".kar")
}

// Watch notifies changes of *.kar files in dirs (not recursively), until ctx is done.
//
// onChange is called from one goroutine, in order of events.
//
// # Returns
//
// - error: caused when it fails to start watching. After started, it returns nil when ctx is done.
func Watch(ctx context.Context, dirs []string, onChange func(Event), options ...Option) error {
	opt := &option{debounce: 500 * time.Millisecond, logger: log.Default()}
	for _, o := range options {
		opt = o(opt)
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	for _, d := range dirs {
		if err := w.Add(d); err != nil {
			return err
		}
	}

	// path -> time of last write. Notified when it settles.
	pending := map[string]time.Time{}
	tick := opt.debounce / 2
	if tick < minTick {
		tick = minTick
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			opt.logger.Printf("watch: %s", err)
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if !isKAR(ev.Name) {
				continue
			}
			switch {
			case ev.Has(fsnotify.Create), ev.Has(fsnotify.Write):
				pending[ev.Name] = time.Now()
			case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
				delete(pending, ev.Name)
				onChange(Event{Op: Removed, Path: ev.Name})
			}
		case now := <-ticker.C:
			settled := []string{}
			for p, last := range pending {
				if now.Sub(last) >= opt.debounce {
					settled = append(settled, p)
				}
			}
			for _, p := range settled {
				delete(pending, p)
				onChange(Event{Op: Created, Path: p})
			}
		}
	}
}
