// Package types resolves declared types of KAR entries.
//
// An entry declares its type either as a legacy short name (like "actorMetadata")
// or as a fully-qualified type name. Fully-qualified names form a single-inheritance
// hierarchy, registered explicitly in a Hierarchy.
package types

import (
	"fmt"
	"sort"
	"sync"

	xe "github.com/opst/karfab/pkg/errors"
)

// Legacy type names, used by KAR-Version 1.0 archives.
const (
	LegacyActorMetadata = "actorMetadata"
	LegacyJar           = "jar"
	LegacyDocumentation = "documentation"
)

// Well-known fully-qualified type names.
const (
	NamedObj            = "ptolemy.kernel.util.NamedObj"
	Attribute           = "ptolemy.kernel.util.Attribute"
	Entity              = "ptolemy.kernel.Entity"
	ComponentEntity     = "ptolemy.kernel.ComponentEntity"
	CompositeEntity     = "ptolemy.kernel.CompositeEntity"
	AtomicActor         = "ptolemy.actor.AtomicActor"
	TypedAtomicActor    = "ptolemy.actor.TypedAtomicActor"
	CompositeActor      = "ptolemy.actor.CompositeActor"
	TypedCompositeActor = "ptolemy.actor.TypedCompositeActor"
	Director            = "ptolemy.actor.Director"
	JarFile             = "java.util.jar.JarFile"
	Document            = "org.kepler.documentation.Document"
	ModuleDocument      = "org.kepler.documentation.ModuleDocument"
)

// Hierarchy is a table of type name to its parent.
//
// Hierarchy is safe for concurrent use.
type Hierarchy struct {
	mu     sync.RWMutex
	parent map[string]string
}

// New returns an empty Hierarchy.
func New() *Hierarchy {
	return &Hierarchy{parent: map[string]string{}}
}

// Default returns a Hierarchy with well-known types registered.
func Default() *Hierarchy {
	h := New()
	for _, p := range [][2]string{
		{NamedObj, ""},
		{Attribute, NamedObj},
		{Director, Attribute},
		{Entity, NamedObj},
		{ComponentEntity, Entity},
		{AtomicActor, ComponentEntity},
		{TypedAtomicActor, AtomicActor},
		{CompositeEntity, ComponentEntity},
		{CompositeActor, CompositeEntity},
		{TypedCompositeActor, CompositeActor},
		{JarFile, ""},
		{Document, ""},
		{ModuleDocument, Document},
	} {
		if err := h.Register(p[0], p[1]); err != nil {
			panic(err) // programming error
		}
	}
	return h
}

// Register adds a type with its parent.
//
// parent can be empty for root types. Otherwise, parent should be registered before.
// Re-registering a type with the same parent is no-op.
func (h *Hierarchy) Register(name, parent string) error {
	if name == "" {
		return fmt.Errorf("%w: empty type name", xe.ErrUnknownType)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if parent != "" {
		if _, ok := h.parent[parent]; !ok {
			return fmt.Errorf("%w: parent %s of %s", xe.ErrUnknownType, parent, name)
		}
	}
	if p, ok := h.parent[name]; ok {
		if p == parent {
			return nil
		}
		return fmt.Errorf("type %s is already registered with parent %q", name, p)
	}

	// parents are always registered before, so a new name cannot make a cycle.
	h.parent[name] = parent
	return nil
}

// Ancestors returns the type name and its ancestors, nearest first.
//
// When the name is not registered, it returns ErrUnknownType.
func (h *Hierarchy) Ancestors(name string) ([]string, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if _, ok := h.parent[name]; !ok {
		return nil, fmt.Errorf("%w: %s", xe.ErrUnknownType, name)
	}

	chain := []string{}
	for cur := name; cur != ""; cur = h.parent[cur] {
		chain = append(chain, cur)
	}
	return chain, nil
}

// IsA reports whether name is ancestor itself or its descendant.
//
// Unknown names are not anything.
func (h *Hierarchy) IsA(name, ancestor string) bool {
	chain, err := h.Ancestors(name)
	if err != nil {
		return false
	}
	for _, c := range chain {
		if c == ancestor {
			return true
		}
	}
	return false
}

// Known reports whether the name is registered.
func (h *Hierarchy) Known(name string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.parent[name]
	return ok
}

// Names returns all registered names, sorted.
func (h *Hierarchy) Names() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	names := make([]string, 0, len(h.parent))
	for n := range h.parent {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
