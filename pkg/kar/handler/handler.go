// Package handler dispatches KAR entries to handlers by their declared types.
package handler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	xe "github.com/opst/karfab/pkg/errors"
	"github.com/opst/karfab/pkg/kar"
	"github.com/opst/karfab/pkg/workspace"
)

// ErrNotViewable is returned by Open of handlers which have nothing to show.
var ErrNotViewable = errors.New("entry is not viewable")

// Handler converts KAR entries of some types into cached objects, and opens them.
type Handler interface {
	// Name identifies this handler in a Registry.
	//
	// Entries can request a handler by this name with "handler" attribute.
	Name() string

	// HandlesType reports whether this handler is responsible for the declared type.
	HandlesType(typeName string) bool

	// Cache reads the entry and returns an object to be cached.
	//
	// It can return (nil, nil). It means that the entry has nothing to be cached,
	// and the work is done as a side-effect (for example, extracting files).
	//
	// Errors are returned as is, to the caller.
	Cache(ctx context.Context, f *kar.File, e kar.Entry) (any, error)

	// Open builds a window from the cached object.
	//
	// When cached is nil, the handler should read the entry again.
	//
	// Open should not change anything when it fails.
	Open(ctx context.Context, f *kar.File, e kar.Entry, cached any) (*workspace.Window, error)
}

// Registry is a set of handlers.
//
// Registry is safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

func NewRegistry(handlers ...Handler) (*Registry, error) {
	r := &Registry{handlers: map[string]Handler{}}
	for _, h := range handlers {
		if err := r.Register(h); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds a handler. Handlers with the same name cannot be registered.
func (r *Registry) Register(h Handler) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.handlers[h.Name()]; ok {
		return fmt.Errorf("handler %s is already registered", h.Name())
	}
	r.handlers[h.Name()] = h
	return nil
}

// Handlers returns registered handlers, ordered by name.
func (r *Registry) Handlers() []Handler {
	r.mu.RLock()
	defer r.mu.RUnlock()
	hs := make([]Handler, 0, len(r.handlers))
	for _, h := range r.handlers {
		hs = append(hs, h)
	}
	sort.Slice(hs, func(i, j int) bool { return hs[i].Name() < hs[j].Name() })
	return hs
}

// ResolveType returns the one handler which handles the type.
//
// # Errors
//
// - ErrNoHandler: no handlers handle the type.
//
// - ErrAmbiguousHandler: two or more handlers claim the type.
func (r *Registry) ResolveType(typeName string) (Handler, error) {
	var found []Handler
	for _, h := range r.Handlers() {
		if h.HandlesType(typeName) {
			found = append(found, h)
		}
	}
	switch len(found) {
	case 0:
		return nil, fmt.Errorf("%w: %s", xe.ErrNoHandler, typeName)
	case 1:
		return found[0], nil
	default:
		names := make([]string, 0, len(found))
		for _, h := range found {
			names = append(names, h.Name())
		}
		return nil, fmt.Errorf("%w: %s is claimed by %v", xe.ErrAmbiguousHandler, typeName, names)
	}
}

// Resolve returns the handler for the entry.
//
// When the entry requests a handler explicitly, the handler is used
// only if it handles the type of the entry.
// Otherwise, it is same as ResolveType(e.Type).
func (r *Registry) Resolve(e kar.Entry) (Handler, error) {
	if e.Handler == "" {
		return r.ResolveType(e.Type)
	}

	r.mu.RLock()
	h, ok := r.handlers[e.Handler]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: entry %s requests handler %s, but it is not registered", xe.ErrNoHandler, e.Name, e.Handler)
	}
	if !h.HandlesType(e.Type) {
		return nil, fmt.Errorf("%w: entry %s requests handler %s, but it does not handle %s", xe.ErrNoHandler, e.Name, e.Handler, e.Type)
	}
	return h, nil
}
