// Package kartest builds KAR files for tests.
package kartest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/opst/karfab/pkg/kar"
	"github.com/opst/karfab/pkg/lsid"
)

// Build writes a KAR file named name into dir, and returns its path.
func Build(t *testing.T, dir string, name string, archive lsid.LSID, entries []kar.EntrySpec, options ...kar.WriterOption) string {
	t.Helper()

	p := filepath.Join(dir, name)
	f, err := os.Create(p)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	w := kar.NewWriter(f, archive, options...)
	for _, e := range entries {
		if err := w.Add(e); err != nil {
			t.Fatal(err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	return p
}

// ActorXML returns actor metadata document for tests.
func ActorXML(name, class string) []byte {
	return []byte(`<?xml version="1.0"?>
<entity name="` + name + `" class="` + class + `">
  <property name="documentation" value="` + name + ` for tests"/>
  <property name="firingCountLimit" class="ptolemy.data.expr.Parameter" value="0"/>
  <port name="output" class="ptolemy.actor.TypedIOPort">
    <property name="output"/>
  </port>
</entity>
`)
}
