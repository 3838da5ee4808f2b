// Package workspace keeps windows opened from cached objects.
package workspace

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	xe "github.com/opst/karfab/pkg/errors"
	"github.com/opst/karfab/pkg/lsid"
)

// Kind of windows.
const (
	KindActor         = "actor"
	KindDocumentation = "documentation"
)

// Window is a materialized view of a cached object.
//
// Windows are built completely before added to Workspace, and never changed after that.
type Window struct {
	ID       string            `json:"id"`
	Title    string            `json:"title"`
	LSID     string            `json:"lsid"`
	Kind     string            `json:"kind"`
	Body     string            `json:"body"`
	Props    map[string]string `json:"properties,omitempty"`
	OpenedAt time.Time         `json:"openedAt"`
}

// NewWindow creates a window with new id.
func NewWindow(kind string, l lsid.LSID, title string, body string) *Window {
	return &Window{
		ID:    uuid.NewString(),
		Kind:  kind,
		LSID:  l.String(),
		Title: title,
		Body:  body,
		Props: map[string]string{},
	}
}

// Workspace is a set of opened windows.
//
// Workspace is safe for concurrent use.
type Workspace struct {
	mu      sync.RWMutex
	windows map[string]*Window
	now     func() time.Time
}

type Option func(*Workspace) *Workspace

// WithClock replaces the clock used to stamp OpenedAt.
func WithClock(now func() time.Time) Option {
	return func(w *Workspace) *Workspace {
		w.now = now
		return w
	}
}

func New(options ...Option) *Workspace {
	ws := &Workspace{windows: map[string]*Window{}, now: time.Now}
	for _, o := range options {
		ws = o(ws)
	}
	return ws
}

// Add puts the window into the workspace.
//
// Adding a window with id already opened is an error, and nothing changes.
func (ws *Workspace) Add(w *Window) error {
	if w == nil || w.ID == "" {
		return fmt.Errorf("window without id")
	}

	ws.mu.Lock()
	defer ws.mu.Unlock()
	if _, ok := ws.windows[w.ID]; ok {
		return fmt.Errorf("window %s is already opened", w.ID)
	}
	if w.OpenedAt.IsZero() {
		w.OpenedAt = ws.now()
	}
	ws.windows[w.ID] = w
	return nil
}

func (ws *Workspace) Get(id string) (*Window, error) {
	ws.mu.RLock()
	defer ws.mu.RUnlock()
	w, ok := ws.windows[id]
	if !ok {
		return nil, fmt.Errorf("%w: window %s", xe.ErrNotFound, id)
	}
	return w, nil
}

// List returns windows, ordered by opened time.
func (ws *Workspace) List() []*Window {
	ws.mu.RLock()
	defer ws.mu.RUnlock()
	list := make([]*Window, 0, len(ws.windows))
	for _, w := range ws.windows {
		list = append(list, w)
	}
	sort.SliceStable(list, func(i, j int) bool {
		if list[i].OpenedAt.Equal(list[j].OpenedAt) {
			return list[i].ID < list[j].ID
		}
		return list[i].OpenedAt.Before(list[j].OpenedAt)
	})
	return list
}

// FindByLSID returns windows showing the object.
func (ws *Workspace) FindByLSID(l lsid.LSID) []*Window {
	found := []*Window{}
	for _, w := range ws.List() {
		if w.LSID == l.String() {
			found = append(found, w)
		}
	}
	return found
}

// Close removes the window.
func (ws *Workspace) Close(id string) error {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	if _, ok := ws.windows[id]; !ok {
		return fmt.Errorf("%w: window %s", xe.ErrNotFound, id)
	}
	delete(ws.windows, id)
	return nil
}

func (ws *Workspace) Len() int {
	ws.mu.RLock()
	defer ws.mu.RUnlock()
	return len(ws.windows)
}
