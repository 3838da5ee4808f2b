package kar_test

import (
	"archive/zip"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/opst/karfab/pkg/cmp"
	xe "github.com/opst/karfab/pkg/errors"
	"github.com/opst/karfab/pkg/kar"
	"github.com/opst/karfab/pkg/kar/kartest"
	"github.com/opst/karfab/pkg/lsid"
	"github.com/opst/karfab/pkg/utils/try"
)

func TestOpen(t *testing.T) {
	archiveLSID := lsid.MustParse("urn:lsid:kepler-project.org:kar:100:1")
	rampLSID := lsid.MustParse("urn:lsid:kepler-project.org:actor:101:1")
	jarLSID := lsid.MustParse("urn:lsid:kepler-project.org:jar:102:2")

	t.Run("it reads entries declared in the manifest", func(t *testing.T) {
		dir := t.TempDir()
		p := kartest.Build(
			t, dir, "ramp.kar", archiveLSID,
			[]kar.EntrySpec{
				{
					Name: "actors/Ramp.xml", Type: "ptolemy.actor.TypedAtomicActor", LSID: rampLSID,
					DependsOn: []lsid.LSID{jarLSID},
					Content:   kartest.ActorXML("Ramp", "ptolemy.actor.lib.Ramp"),
				},
				{
					Name: "lib/ramp.jar", Type: "jar", LSID: jarLSID, Handler: "jar",
					Content: []byte("PK fake jar"),
				},
			},
			kar.WithDependencies("core-2.4.0", "actors-2.4.0"),
		)

		testee := try.To(kar.Open(p)).OrFatal(t)
		defer testee.Close()

		if !testee.LSID().Equal(archiveLSID) {
			t.Errorf("archive lsid: %s", testee.LSID())
		}
		if v := testee.Version().String(); v != "2.1.0" {
			t.Errorf("version: %s", v)
		}
		if !cmp.SliceEq(testee.Dependencies(), []string{"core-2.4.0", "actors-2.4.0"}) {
			t.Errorf("dependencies: %v", testee.Dependencies())
		}
		if testee.Openable() {
			t.Errorf("it should not be openable")
		}

		entries := testee.Entries()
		if len(entries) != 2 {
			t.Fatalf("entries: %+v", entries)
		}
		if e := entries[0]; e.Name != "actors/Ramp.xml" || !e.LSID.Equal(rampLSID) || e.Type != "ptolemy.actor.TypedAtomicActor" {
			t.Errorf("entry[0]: %+v", e)
		}
		if e := entries[0]; len(e.DependsOn) != 1 || !e.DependsOn[0].Equal(jarLSID) {
			t.Errorf("entry[0].DependsOn: %+v", e.DependsOn)
		}
		if e := entries[1]; e.Handler != "jar" {
			t.Errorf("entry[1].Handler: %s", e.Handler)
		}

		e, ok := testee.EntryByLSID(jarLSID)
		if !ok || e.Name != "lib/ramp.jar" {
			t.Errorf("EntryByLSID: %+v, %v", e, ok)
		}
		if _, ok := testee.Entry("missing"); ok {
			t.Errorf("Entry returns missing one")
		}

		rc := try.To(testee.Read(e)).OrFatal(t)
		defer rc.Close()
		content := try.To(io.ReadAll(rc)).OrFatal(t)
		if string(content) != "PK fake jar" {
			t.Errorf("content: %q", content)
		}
	})

	t.Run("legacy archive without KAR-Version is version 1.0", func(t *testing.T) {
		dir := t.TempDir()
		p := kartest.Build(
			t, dir, "legacy.kar", lsid.LSID{},
			[]kar.EntrySpec{{Name: "a.xml", Type: "actorMetadata", LSID: rampLSID, Content: []byte("<entity/>")}},
			kar.WithVersion(""),
		)
		testee := try.To(kar.Open(p)).OrFatal(t)
		defer testee.Close()
		if v := testee.Version().String(); v != "1.0.0" {
			t.Errorf("version: %s", v)
		}
		if !testee.LSID().IsZero() {
			t.Errorf("archive lsid should be zero: %s", testee.LSID())
		}
	})

	t.Run("unsupported version is rejected", func(t *testing.T) {
		dir := t.TempDir()
		p := kartest.Build(t, dir, "future.kar", archiveLSID, nil, kar.WithVersion("3.0"))
		_, err := kar.Open(p)
		if !errors.Is(err, xe.ErrUnsupportedVersion) {
			t.Errorf("unexpected error: %v", err)
		}

		f := try.To(kar.Open(p, kar.WithSupportedVersions(">= 3.0.0"))).OrFatal(t)
		f.Close()
	})

	for name, files := range map[string]map[string]string{
		"no manifest": {
			"a.xml": "<entity/>",
		},
		"declared but not archived": {
			kar.ManifestPath: "Manifest-Version: 1.0\n\nName: a.xml\nlsid: urn:lsid:a:b:c:1\ntype: jar\n",
		},
		"entry without lsid": {
			kar.ManifestPath: "Manifest-Version: 1.0\n\nName: a.xml\ntype: jar\n",
			"a.xml":          "",
		},
		"entry without type": {
			kar.ManifestPath: "Manifest-Version: 1.0\n\nName: a.xml\nlsid: urn:lsid:a:b:c:1\n",
			"a.xml":          "",
		},
		"entries with same lsid": {
			kar.ManifestPath: "Manifest-Version: 1.0\n\n" +
				"Name: a.xml\nlsid: urn:lsid:a:b:c:1\ntype: jar\n\n" +
				"Name: b.xml\nlsid: urn:lsid:a:b:c:1\ntype: jar\n",
			"a.xml": "",
			"b.xml": "",
		},
		"not a zip": nil,
	} {
		t.Run("it rejects "+name, func(t *testing.T) {
			p := filepath.Join(t.TempDir(), "broken.kar")
			writeZip(t, p, files)
			_, err := kar.Open(p)
			if !errors.Is(err, xe.ErrCorruptEntry) {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestExtract(t *testing.T) {
	dir := t.TempDir()
	jarLSID := lsid.MustParse("urn:lsid:kepler-project.org:jar:102:2")
	p := kartest.Build(
		t, dir, "jar.kar", lsid.LSID{},
		[]kar.EntrySpec{{Name: "lib/ramp.jar", Type: "jar", LSID: jarLSID, Content: []byte("jar content")}},
	)
	f := try.To(kar.Open(p)).OrFatal(t)
	defer f.Close()

	e, _ := f.Entry("lib/ramp.jar")
	dest := filepath.Join(dir, "modules")

	t.Run("it writes entry under the destination", func(t *testing.T) {
		written := try.To(kar.Extract(context.Background(), f, e, dest)).OrFatal(t)
		if written != filepath.Join(dest, "lib", "ramp.jar") {
			t.Errorf("written path: %s", written)
		}
		content := try.To(os.ReadFile(written)).OrFatal(t)
		if string(content) != "jar content" {
			t.Errorf("content: %q", content)
		}
	})

	t.Run("it stops when context is cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		other := filepath.Join(dir, "cancelled")
		if _, err := kar.Extract(ctx, f, e, other); !errors.Is(err, context.Canceled) {
			t.Errorf("unexpected error: %v", err)
		}
		if _, err := os.Stat(filepath.Join(other, "lib", "ramp.jar")); !errors.Is(err, os.ErrNotExist) {
			t.Errorf("half written file is left: %v", err)
		}
	})
}

// writeZip writes files as a zip. nil files makes a non-zip file.
func writeZip(t *testing.T, p string, files map[string]string) {
	t.Helper()
	f := try.To(os.Create(p)).OrFatal(t)
	defer f.Close()

	if files == nil {
		if _, err := io.Copy(f, strings.NewReader("this is not a zip")); err != nil {
			t.Fatal(err)
		}
		return
	}

	zw := zip.NewWriter(f)
	for name, content := range files {
		w := try.To(zw.Create(name)).OrFatal(t)
		if _, err := io.WriteString(w, content); err != nil {
			t.Fatal(err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
}
