package handler_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	xe "github.com/opst/karfab/pkg/errors"
	"github.com/opst/karfab/pkg/kar"
	"github.com/opst/karfab/pkg/kar/handler"
	"github.com/opst/karfab/pkg/kar/kartest"
	"github.com/opst/karfab/pkg/kar/types"
	"github.com/opst/karfab/pkg/lsid"
	"github.com/opst/karfab/pkg/utils/try"
	"github.com/opst/karfab/pkg/workspace"
)

type fakeHandler struct {
	name  string
	types map[string]bool
}

func (f fakeHandler) Name() string                     { return f.name }
func (f fakeHandler) HandlesType(typeName string) bool { return f.types[typeName] }
func (f fakeHandler) Cache(context.Context, *kar.File, kar.Entry) (any, error) {
	return nil, nil
}
func (f fakeHandler) Open(context.Context, *kar.File, kar.Entry, any) (*workspace.Window, error) {
	return nil, handler.ErrNotViewable
}

func TestRegistry(t *testing.T) {
	a := fakeHandler{name: "a", types: map[string]bool{"x": true, "shared": true}}
	b := fakeHandler{name: "b", types: map[string]bool{"y": true, "shared": true}}
	testee := try.To(handler.NewRegistry(a, b)).OrFatal(t)

	t.Run("handler with the same name is rejected", func(t *testing.T) {
		if err := testee.Register(fakeHandler{name: "a"}); err == nil {
			t.Errorf("expected error, but nil")
		}
		if len(testee.Handlers()) != 2 {
			t.Errorf("handlers: %v", testee.Handlers())
		}
	})

	type Then struct {
		name string
		err  error
	}
	theory := func(when kar.Entry, then Then) func(*testing.T) {
		return func(t *testing.T) {
			h, err := testee.Resolve(when)
			if !errors.Is(err, then.err) {
				t.Fatalf("unexpected error: (actual, expected) = (%v, %v)", err, then.err)
			}
			if err != nil {
				return
			}
			if h.Name() != then.name {
				t.Errorf("(actual, expected) = (%s, %s)", h.Name(), then.name)
			}
		}
	}

	t.Run("type with one handler", theory(kar.Entry{Type: "x"}, Then{name: "a"}))
	t.Run("type without handler", theory(kar.Entry{Type: "z"}, Then{err: xe.ErrNoHandler}))
	t.Run("type with two handlers", theory(kar.Entry{Type: "shared"}, Then{err: xe.ErrAmbiguousHandler}))
	t.Run("explicit handler resolves ambiguity", theory(kar.Entry{Type: "shared", Handler: "b"}, Then{name: "b"}))
	t.Run("explicit handler should handle the type", theory(kar.Entry{Type: "x", Handler: "b"}, Then{err: xe.ErrNoHandler}))
	t.Run("explicit handler should be registered", theory(kar.Entry{Type: "x", Handler: "c"}, Then{err: xe.ErrNoHandler}))
}

func TestDefaults_TypeResolution(t *testing.T) {
	h := types.Default()
	if err := h.Register("org.example.Ramp", types.TypedAtomicActor); err != nil {
		t.Fatal(err)
	}
	testee := try.To(handler.Defaults(h, t.TempDir())).OrFatal(t)

	for typeName, expected := range map[string]string{
		types.LegacyActorMetadata: "actorMetadata",
		types.TypedCompositeActor: "actorMetadata",
		types.Director:            "actorMetadata",
		"org.example.Ramp":        "actorMetadata",
		types.LegacyJar:           "jar",
		types.JarFile:             "jar",
		types.LegacyDocumentation: "documentation",
		types.ModuleDocument:      "documentation",
	} {
		t.Run(typeName, func(t *testing.T) {
			actual, err := testee.ResolveType(typeName)
			if err != nil {
				t.Fatal(err)
			}
			if actual.Name() != expected {
				t.Errorf("(actual, expected) = (%s, %s)", actual.Name(), expected)
			}
		})
	}

	t.Run("unknown class is not handled", func(t *testing.T) {
		if _, err := testee.ResolveType("com.example.Unknown"); !errors.Is(err, xe.ErrNoHandler) {
			t.Errorf("unexpected error: %v", err)
		}
	})
}

// every handler should accept entries of every type it claims.
func TestDefaults_DispatchIsTypeSafe(t *testing.T) {
	h := types.Default()
	dir := t.TempDir()
	registry := try.To(handler.Defaults(h, filepath.Join(dir, "modules"))).OrFatal(t)

	contentFor := map[string][]byte{
		"actorMetadata": kartest.ActorXML("Ramp", "ptolemy.actor.lib.Ramp"),
		"jar":           []byte("PK jar"),
		"documentation": []byte("# Ramp\nproduces a ramp."),
	}

	candidates := append(h.Names(), types.LegacyActorMetadata, types.LegacyJar, types.LegacyDocumentation)
	for _, hd := range registry.Handlers() {
		for _, typeName := range candidates {
			if !hd.HandlesType(typeName) {
				continue
			}
			t.Run(hd.Name()+"/"+typeName, func(t *testing.T) {
				entryLSID := lsid.New("example.com", "test")
				p := kartest.Build(
					t, t.TempDir(), "x.kar", lsid.LSID{},
					[]kar.EntrySpec{{Name: "entry/x", Type: typeName, LSID: entryLSID, Content: contentFor[hd.Name()]}},
				)
				f := try.To(kar.Open(p)).OrFatal(t)
				defer f.Close()
				e, _ := f.Entry("entry/x")

				resolved := try.To(registry.Resolve(e)).OrFatal(t)
				if resolved.Name() != hd.Name() {
					t.Fatalf("resolved to other handler: %s", resolved.Name())
				}

				cached, err := hd.Cache(context.Background(), f, e)
				if err != nil {
					t.Fatalf("Cache: %v", err)
				}
				w, err := hd.Open(context.Background(), f, e, cached)
				if hd.Name() == "jar" {
					if !errors.Is(err, handler.ErrNotViewable) {
						t.Errorf("jar should not be viewable: %v", err)
					}
					return
				}
				if err != nil {
					t.Fatalf("Open: %v", err)
				}
				if w.LSID != entryLSID.String() {
					t.Errorf("window lsid: %s", w.LSID)
				}
			})
		}
	}
}

func TestActorMetadataHandler(t *testing.T) {
	h := types.Default()
	testee := handler.NewActorMetadata(h)
	rampLSID := lsid.MustParse("urn:lsid:kepler-project.org:actor:1:1")
	brokenLSID := lsid.MustParse("urn:lsid:kepler-project.org:actor:2:1")
	wrongLSID := lsid.MustParse("urn:lsid:kepler-project.org:actor:3:1")

	p := kartest.Build(
		t, t.TempDir(), "actors.kar", lsid.LSID{},
		[]kar.EntrySpec{
			{Name: "Ramp.xml", Type: types.TypedAtomicActor, LSID: rampLSID, Content: kartest.ActorXML("Ramp", "ptolemy.actor.lib.Ramp")},
			{Name: "Broken.xml", Type: types.TypedAtomicActor, LSID: brokenLSID, Content: []byte("<entity name=\"Broken\"><property")},
			{Name: "Wrong.xml", Type: types.TypedAtomicActor, LSID: wrongLSID, Content: []byte("<html><body/></html>")},
		},
	)
	f := try.To(kar.Open(p)).OrFatal(t)
	defer f.Close()

	t.Run("it caches parsed metadata", func(t *testing.T) {
		e, _ := f.Entry("Ramp.xml")
		cached := try.To(testee.Cache(context.Background(), f, e)).OrFatal(t)
		am, ok := cached.(*handler.ActorMetadata)
		if !ok {
			t.Fatalf("unexpected type: %T", cached)
		}
		if am.Name != "Ramp" || am.Class != "ptolemy.actor.lib.Ramp" || !am.LSID.Equal(rampLSID) {
			t.Errorf("unexpected metadata: %+v", am)
		}
		if am.Documentation() != "Ramp for tests" {
			t.Errorf("documentation: %q", am.Documentation())
		}
		if len(am.Ports) != 1 || am.Ports[0].Direction() != "output" {
			t.Errorf("ports: %+v", am.Ports)
		}
	})

	t.Run("Open without cache reads the entry again", func(t *testing.T) {
		e, _ := f.Entry("Ramp.xml")
		w := try.To(testee.Open(context.Background(), f, e, nil)).OrFatal(t)
		if w.Title != "Ramp" || w.Kind != workspace.KindActor || w.Props["class"] != "ptolemy.actor.lib.Ramp" {
			t.Errorf("unexpected window: %+v", w)
		}
	})

	t.Run("Open with an object of other type fails", func(t *testing.T) {
		e, _ := f.Entry("Ramp.xml")
		if _, err := testee.Open(context.Background(), f, e, &handler.Documentation{}); err == nil {
			t.Errorf("expected error, but nil")
		}
	})

	for _, name := range []string{"Broken.xml", "Wrong.xml"} {
		t.Run("corrupt entry "+name+" is reported", func(t *testing.T) {
			e, _ := f.Entry(name)
			if _, err := testee.Cache(context.Background(), f, e); !errors.Is(err, xe.ErrCorruptEntry) {
				t.Errorf("unexpected error: %v", err)
			}
			if _, err := testee.Open(context.Background(), f, e, nil); !errors.Is(err, xe.ErrCorruptEntry) {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestJARHandler(t *testing.T) {
	dir := t.TempDir()
	dest := filepath.Join(dir, "modules")
	testee := handler.NewJAR(types.Default(), dest)

	p := kartest.Build(
		t, dir, "jar.kar", lsid.LSID{},
		[]kar.EntrySpec{{Name: "lib/a.jar", Type: types.LegacyJar, LSID: lsid.New("a", "jar"), Content: []byte("jar!")}},
	)
	f := try.To(kar.Open(p)).OrFatal(t)
	defer f.Close()
	e, _ := f.Entry("lib/a.jar")

	cached, err := testee.Cache(context.Background(), f, e)
	if err != nil {
		t.Fatal(err)
	}
	if cached != nil {
		t.Errorf("jar should not be cached: %v", cached)
	}
	content := try.To(os.ReadFile(filepath.Join(dest, "lib", "a.jar"))).OrFatal(t)
	if string(content) != "jar!" {
		t.Errorf("extracted content: %q", content)
	}
}

func TestDocumentationHandler(t *testing.T) {
	testee := handler.NewDocumentation(types.Default())
	p := kartest.Build(
		t, t.TempDir(), "doc.kar", lsid.LSID{},
		[]kar.EntrySpec{
			{Name: "doc/ramp.md", Type: types.LegacyDocumentation, LSID: lsid.New("a", "doc"), Content: []byte("Ramp produces a ramp.")},
			{
				Name: "doc/titled.md", Type: types.ModuleDocument, LSID: lsid.New("a", "doc"),
				Attributes: map[string]string{handler.AttrTitle: "Module Guide"},
				Content:    []byte("Guide."),
			},
			{Name: "doc/binary.md", Type: types.LegacyDocumentation, LSID: lsid.New("a", "doc"), Content: []byte{0xff, 0xfe, 0xfd}},
		},
	)
	f := try.To(kar.Open(p)).OrFatal(t)
	defer f.Close()

	for name, expected := range map[string]string{"doc/ramp.md": "ramp", "doc/titled.md": "Module Guide"} {
		t.Run("title of "+name, func(t *testing.T) {
			e, _ := f.Entry(name)
			w := try.To(testee.Open(context.Background(), f, e, nil)).OrFatal(t)
			if w.Title != expected {
				t.Errorf("(actual, expected) = (%s, %s)", w.Title, expected)
			}
		})
	}

	t.Run("binary content is corrupt", func(t *testing.T) {
		e, _ := f.Entry("doc/binary.md")
		if _, err := testee.Cache(context.Background(), f, e); !errors.Is(err, xe.ErrCorruptEntry) {
			t.Errorf("unexpected error: %v", err)
		}
	})
}
