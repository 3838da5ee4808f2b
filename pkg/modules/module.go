// Package modules resolves module dependencies of KAR files, and fetches KAR files.
package modules

import (
	"fmt"
	"sort"
	"strings"

	"github.com/Masterminds/semver"
	xe "github.com/opst/karfab/pkg/errors"
	"github.com/opst/karfab/pkg/kar"
)

// Module is a named and versioned module, written as "name-1.2.3".
type Module struct {
	Name string

	// Version of the module. It can be nil for unversioned modules.
	Version *semver.Version
}

// Parse parses "name-version" form.
//
// The version is the part after the last hyphen, when it is a version.
// Otherwise, whole of s is the name of an unversioned module.
func Parse(s string) (Module, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Module{}, fmt.Errorf("empty module name")
	}
	if i := strings.LastIndex(s, "-"); 0 < i && i < len(s)-1 {
		if v, err := semver.NewVersion(s[i+1:]); err == nil {
			return Module{Name: s[:i], Version: v}, nil
		}
	}
	return Module{Name: s}, nil
}

// ParseAll parses modules.
func ParseAll(ss []string) ([]Module, error) {
	mods := make([]Module, 0, len(ss))
	for _, s := range ss {
		m, err := Parse(s)
		if err != nil {
			return nil, err
		}
		mods = append(mods, m)
	}
	return mods, nil
}

func (m Module) String() string {
	if m.Version == nil {
		return m.Name
	}
	return m.Name + "-" + m.Version.Original()
}

// Satisfies tells m can be used as the dependency required.
//
// Names should match, and version of m should be same or newer than the required.
// Unversioned requirement accepts any version.
func (m Module) Satisfies(required Module) bool {
	if m.Name != required.Name {
		return false
	}
	if required.Version == nil {
		return true
	}
	if m.Version == nil {
		return false
	}
	return !m.Version.LessThan(required.Version)
}

// Installed is a set of installed modules.
type Installed struct {
	modules []Module
}

func NewInstalled(mods ...Module) *Installed {
	ms := append([]Module{}, mods...)
	sort.SliceStable(ms, func(i, j int) bool { return ms[i].Name < ms[j].Name })
	return &Installed{modules: ms}
}

// Modules returns installed modules, sorted by name.
func (in *Installed) Modules() []Module {
	return append([]Module{}, in.modules...)
}

// Find returns an installed module satisfying required.
func (in *Installed) Find(required Module) (Module, bool) {
	for _, m := range in.modules {
		if m.Satisfies(required) {
			return m, true
		}
	}
	return Module{}, false
}

// CheckDependencies checks all module-dependencies of the KAR file are installed.
//
// # Errors
//
// - ErrMissingDependency: naming the first dependency which is not satisfied.
func (in *Installed) CheckDependencies(f *kar.File) error {
	for _, d := range f.Dependencies() {
		required, err := Parse(d)
		if err != nil {
			return fmt.Errorf("%w: %s: %w", xe.ErrCorruptEntry, kar.AttrModuleDependencies, err)
		}
		if _, ok := in.Find(required); !ok {
			return fmt.Errorf("%w: %s requires %s", xe.ErrMissingDependency, f.Path(), required)
		}
	}
	return nil
}
