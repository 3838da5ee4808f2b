package modules_test

import (
	"errors"
	"testing"

	xe "github.com/opst/karfab/pkg/errors"
	"github.com/opst/karfab/pkg/kar"
	"github.com/opst/karfab/pkg/kar/kartest"
	"github.com/opst/karfab/pkg/lsid"
	"github.com/opst/karfab/pkg/modules"
	"github.com/opst/karfab/pkg/utils/try"
)

func TestParse(t *testing.T) {
	type Then struct {
		name    string
		version string
	}
	theory := func(when string, then Then) func(*testing.T) {
		return func(t *testing.T) {
			m := try.To(modules.Parse(when)).OrFatal(t)
			if m.Name != then.name {
				t.Errorf("name: (actual, expected) = (%s, %s)", m.Name, then.name)
			}
			version := ""
			if m.Version != nil {
				version = m.Version.String()
			}
			if version != then.version {
				t.Errorf("version: (actual, expected) = (%s, %s)", version, then.version)
			}
			if m.String() != when {
				t.Errorf("String: %s", m)
			}
		}
	}

	t.Run("versioned", theory("core-2.4.0", Then{name: "core", version: "2.4.0"}))
	t.Run("short version", theory("actors-2.4", Then{name: "actors", version: "2.4.0"}))
	t.Run("hyphenated name", theory("kepler-tasks-1.0.1", Then{name: "kepler-tasks", version: "1.0.1"}))
	t.Run("unversioned", theory("outreach", Then{name: "outreach"}))
	t.Run("hyphenated, unversioned", theory("r-tools", Then{name: "r-tools"}))

	if _, err := modules.Parse(" "); err == nil {
		t.Error("empty name should be rejected")
	}
}

func TestSatisfies(t *testing.T) {
	m := func(s string) modules.Module { return try.To(modules.Parse(s)).OrFatal(t) }

	for _, c := range []struct {
		installed, required string
		expected            bool
	}{
		{"core-2.4.0", "core-2.4.0", true},
		{"core-2.5.0", "core-2.4.0", true},
		{"core-2.3.9", "core-2.4.0", false},
		{"core-2.3.9", "core", true},
		{"core", "core-2.4.0", false},
		{"actors-2.4.0", "core-2.4.0", false},
	} {
		if got := m(c.installed).Satisfies(m(c.required)); got != c.expected {
			t.Errorf("%s satisfies %s: (actual, expected) = (%v, %v)", c.installed, c.required, got, c.expected)
		}
	}
}

func TestCheckDependencies(t *testing.T) {
	dir := t.TempDir()
	p := kartest.Build(
		t, dir, "deps.kar", lsid.MustParse("urn:lsid:kepler-project.org:kar:500:1"), nil,
		kar.WithDependencies("core-2.4.0", "actors-2.4.0"),
	)
	f := try.To(kar.Open(p)).OrFatal(t)
	defer f.Close()

	installed := try.To(modules.ParseAll([]string{"actors-2.5.0", "core-2.4.1"})).OrFatal(t)
	if err := modules.NewInstalled(installed...).CheckDependencies(f); err != nil {
		t.Errorf("unexpected error: %v", err)
	}

	old := try.To(modules.ParseAll([]string{"actors-2.3.0", "core-2.4.1"})).OrFatal(t)
	err := modules.NewInstalled(old...).CheckDependencies(f)
	if !errors.Is(err, xe.ErrMissingDependency) {
		t.Errorf("unexpected error: %v", err)
	}
}
