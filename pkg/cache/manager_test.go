package cache_test

import (
	"context"
	"errors"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/opst/karfab/pkg/cache"
	"github.com/opst/karfab/pkg/cache/index/memory"
	"github.com/opst/karfab/pkg/cmp"
	xe "github.com/opst/karfab/pkg/errors"
	"github.com/opst/karfab/pkg/kar"
	"github.com/opst/karfab/pkg/kar/handler"
	"github.com/opst/karfab/pkg/kar/kartest"
	"github.com/opst/karfab/pkg/kar/types"
	"github.com/opst/karfab/pkg/lsid"
	"github.com/opst/karfab/pkg/utils/try"
	"github.com/opst/karfab/pkg/workspace"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

var (
	archiveLSID = lsid.MustParse("urn:lsid:kepler-project.org:kar:200:1")
	rampLSID    = lsid.MustParse("urn:lsid:kepler-project.org:actor:201:1")
	constLSID   = lsid.MustParse("urn:lsid:kepler-project.org:actor:202:1")
	jarLSID     = lsid.MustParse("urn:lsid:kepler-project.org:jar:203:1")
	docLSID     = lsid.MustParse("urn:lsid:kepler-project.org:doc:204:1")
)

func entries() []kar.EntrySpec {
	return []kar.EntrySpec{
		{
			Name: "actors/Ramp.xml", Type: types.TypedAtomicActor, LSID: rampLSID,
			Content: kartest.ActorXML("Ramp", "ptolemy.actor.lib.Ramp"),
		},
		{
			Name: "actors/Const.xml", Type: types.LegacyActorMetadata, LSID: constLSID,
			Content: kartest.ActorXML("Const", "ptolemy.actor.lib.Const"),
		},
		{
			Name: "lib/actors.jar", Type: types.LegacyJar, LSID: jarLSID,
			Content: []byte("PK fake jar"),
		},
		{
			Name: "doc/README.txt", Type: types.LegacyDocumentation, LSID: docLSID,
			Attributes: map[string]string{handler.AttrTitle: "About actors"},
			Content:    []byte("actors for tests"),
		},
	}
}

type fixture struct {
	dir       string
	workspace *workspace.Workspace
	testee    *cache.Manager
}

func setup(t *testing.T, options ...cache.Option) fixture {
	t.Helper()
	dir := t.TempDir()
	registry := try.To(handler.Defaults(types.Default(), filepath.Join(dir, "modules"))).OrFatal(t)
	ws := workspace.New()
	options = append([]cache.Option{cache.WithLogger(log.New(io.Discard, "", 0))}, options...)
	return fixture{
		dir:       dir,
		workspace: ws,
		testee:    cache.New(registry, memory.New(), ws, options...),
	}
}

func TestCacheArchive(t *testing.T) {
	ctx := context.Background()

	t.Run("it caches objects and indexes all entries", func(t *testing.T) {
		fx := setup(t)
		p := kartest.Build(t, fx.dir, "actors.kar", archiveLSID, entries())

		report := try.To(fx.testee.CacheArchive(ctx, p)).OrFatal(t)

		got := []lsid.LSID{}
		for _, o := range report.Objects {
			got = append(got, o.LSID)
		}
		if !cmp.SliceEqWith(got, []lsid.LSID{rampLSID, constLSID, docLSID}, lsid.LSID.Equal) {
			t.Errorf("objects: %v", got)
		}
		if !cmp.SliceEqWith(report.SideEffects, []lsid.LSID{jarLSID}, lsid.LSID.Equal) {
			t.Errorf("side-effects: %v", report.SideEffects)
		}
		if fx.testee.Len() != 3 {
			t.Errorf("len: %d", fx.testee.Len())
		}

		records := try.To(fx.testee.Records(ctx)).OrFatal(t)
		if len(records) != 4 {
			t.Fatalf("records: %+v", records)
		}
		for _, r := range records {
			if r.Archive != p {
				t.Errorf("archive of %s: %s", r.LSID, r.Archive)
			}
			if r.Object == r.LSID.Equal(jarLSID) {
				t.Errorf("record %s: object = %v", r.LSID, r.Object)
			}
		}

		if _, err := os.Stat(filepath.Join(fx.dir, "modules", "lib", "actors.jar")); err != nil {
			t.Errorf("jar is not extracted: %s", err)
		}
	})

	t.Run("caching twice returns the identical objects", func(t *testing.T) {
		fx := setup(t)
		p := kartest.Build(t, fx.dir, "actors.kar", archiveLSID, entries())

		first := try.To(fx.testee.CacheArchive(ctx, p)).OrFatal(t)
		second := try.To(fx.testee.CacheArchive(ctx, p)).OrFatal(t)

		if len(first.Objects) != len(second.Objects) {
			t.Fatalf("objects: (first, second) = (%d, %d)", len(first.Objects), len(second.Objects))
		}
		for i := range first.Objects {
			if first.Objects[i] != second.Objects[i] {
				t.Errorf("object %s is not identical", first.Objects[i].LSID)
			}
			if first.Objects[i].Value != second.Objects[i].Value {
				t.Errorf("value of %s is not identical", first.Objects[i].LSID)
			}
		}

		got := try.To(fx.testee.Get(ctx, rampLSID)).OrFatal(t)
		if got != first.Objects[0] {
			t.Errorf("Get returns other object")
		}
	})

	t.Run("failure of handler is propagated", func(t *testing.T) {
		fx := setup(t)
		broken := entries()
		broken[1].Content = []byte("<entity name=")
		p := kartest.Build(t, fx.dir, "broken.kar", archiveLSID, broken)

		report, err := fx.testee.CacheArchive(ctx, p)
		if err == nil {
			t.Fatal("expected error, but nil")
		}
		if !errors.Is(err, xe.ErrCorruptEntry) {
			t.Errorf("unexpected error: %v", err)
		}
		// entries before the broken one stay cached
		if len(report.Objects) != 1 || !report.Objects[0].LSID.Equal(rampLSID) {
			t.Errorf("objects: %+v", report.Objects)
		}
		if _, err := fx.testee.Get(ctx, constLSID); !errors.Is(err, xe.ErrNotFound) {
			t.Errorf("broken entry should not be indexed: %v", err)
		}
	})

	t.Run("archive check can reject archives", func(t *testing.T) {
		fx := setup(t, cache.WithArchiveCheck(func(f *kar.File) error {
			return xe.ErrMissingDependency
		}))
		p := kartest.Build(t, fx.dir, "actors.kar", archiveLSID, entries())

		if _, err := fx.testee.CacheArchive(ctx, p); !errors.Is(err, xe.ErrMissingDependency) {
			t.Errorf("unexpected error: %v", err)
		}
		if fx.testee.Len() != 0 {
			t.Errorf("len: %d", fx.testee.Len())
		}
	})
}

func TestCacheDirectory(t *testing.T) {
	ctx := context.Background()
	fx := setup(t, cache.WithParallelism(2))

	kartest.Build(t, fx.dir, "a.kar", archiveLSID, entries()[:1])
	kartest.Build(
		t, fx.dir, "b.KAR", lsid.MustParse("urn:lsid:kepler-project.org:kar:300:1"),
		[]kar.EntrySpec{entries()[1]},
	)
	kartest.Build(
		t, fx.dir, "broken.kar", lsid.MustParse("urn:lsid:kepler-project.org:kar:301:1"),
		[]kar.EntrySpec{{
			Name: "actors/Broken.xml", Type: types.LegacyActorMetadata,
			LSID:    lsid.MustParse("urn:lsid:kepler-project.org:actor:302:1"),
			Content: []byte("not xml"),
		}},
	)
	if err := os.WriteFile(filepath.Join(fx.dir, "README"), []byte("not a kar"), 0644); err != nil {
		t.Fatal(err)
	}

	reports, err := fx.testee.CacheDirectory(ctx, fx.dir)
	if !errors.Is(err, xe.ErrCorruptEntry) {
		t.Errorf("unexpected error: %v", err)
	}
	if len(reports) != 2 {
		t.Errorf("reports: %+v", reports)
	}
	if !cmp.SliceEqWith(fx.testee.Cached(), []lsid.LSID{rampLSID, constLSID}, lsid.LSID.Equal) {
		t.Errorf("cached: %v", fx.testee.Cached())
	}
}

func TestGet(t *testing.T) {
	ctx := context.Background()

	t.Run("unknown lsid is not found", func(t *testing.T) {
		fx := setup(t)
		if _, err := fx.testee.Get(ctx, rampLSID); !errors.Is(err, xe.ErrNotFound) {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("side-effect only entry has no object", func(t *testing.T) {
		fx := setup(t)
		p := kartest.Build(t, fx.dir, "actors.kar", archiveLSID, entries())
		try.To(fx.testee.CacheArchive(ctx, p)).OrFatal(t)

		if _, err := fx.testee.Get(ctx, jarLSID); !errors.Is(err, xe.ErrNotFound) {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("evicted objects are reloaded from archive", func(t *testing.T) {
		reg := prometheus.NewRegistry()
		fx := setup(t, cache.WithMaxEntries(2), cache.WithRegisterer(reg))
		p := kartest.Build(t, fx.dir, "actors.kar", archiveLSID, entries())

		try.To(fx.testee.CacheArchive(ctx, p)).OrFatal(t)
		if fx.testee.Len() != 2 {
			t.Errorf("len: %d", fx.testee.Len())
		}
		metrics := fx.testee.Metrics()
		if n := testutil.ToFloat64(metrics.Evictions); n != 1 {
			t.Errorf("evictions: %v", n)
		}

		// Ramp is the least recently used one.
		reloaded := try.To(fx.testee.Get(ctx, rampLSID)).OrFatal(t)
		if !reloaded.LSID.Equal(rampLSID) || reloaded.Archive != p {
			t.Errorf("reloaded: %+v", reloaded)
		}
		am, ok := reloaded.Value.(*handler.ActorMetadata)
		if !ok || am.Name != "Ramp" {
			t.Errorf("value: %#v", reloaded.Value)
		}
		if n := testutil.ToFloat64(metrics.Misses); n != 1 {
			t.Errorf("misses: %v", n)
		}

		again := try.To(fx.testee.Get(ctx, rampLSID)).OrFatal(t)
		if again != reloaded {
			t.Errorf("Get should return the identical object while cached")
		}
		if n := testutil.ToFloat64(metrics.Hits); n != 1 {
			t.Errorf("hits: %v", n)
		}
		if n := testutil.ToFloat64(metrics.Entries); n != 2 {
			t.Errorf("entries: %v", n)
		}
		if n := testutil.CollectAndCount(reg); n != 4 {
			t.Errorf("registered collectors: %d", n)
		}
	})

	t.Run("concurrent loads yield one object", func(t *testing.T) {
		fx := setup(t)
		p := kartest.Build(t, fx.dir, "actors.kar", archiveLSID, entries())
		try.To(fx.testee.CacheArchive(ctx, p)).OrFatal(t)
		fx.testee.Invalidate(rampLSID)

		const n = 8
		got := make([]*cache.Object, n)
		wg := new(sync.WaitGroup)
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				obj, err := fx.testee.Get(ctx, rampLSID)
				if err != nil {
					t.Error(err)
					return
				}
				got[i] = obj
			}(i)
		}
		wg.Wait()
		for i := 1; i < n; i++ {
			if got[i] != got[0] {
				t.Errorf("object #%d differs", i)
			}
		}
	})
}

// gate is a handler which can hold Cache until released.
type gate struct {
	started chan struct{}
	release chan struct{}
}

func (*gate) Name() string { return "test.gate" }

func (*gate) HandlesType(typeName string) bool { return typeName == "test.Gate" }

func (g *gate) Cache(ctx context.Context, f *kar.File, e kar.Entry) (any, error) {
	if g.release != nil {
		g.started <- struct{}{}
		<-g.release
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return e.Name, nil
}

func (*gate) Open(context.Context, *kar.File, kar.Entry, any) (*workspace.Window, error) {
	return nil, handler.ErrNotViewable
}

func TestGet_CancelOfOneCaller(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	g := &gate{}
	registry := try.To(handler.NewRegistry(g)).OrFatal(t)
	testee := cache.New(
		registry, memory.New(), workspace.New(),
		cache.WithLogger(log.New(io.Discard, "", 0)),
	)

	gated := lsid.MustParse("urn:lsid:kepler-project.org:gate:220:1")
	p := kartest.Build(t, dir, "gate.kar", lsid.MustParse("urn:lsid:kepler-project.org:kar:220:1"), []kar.EntrySpec{
		{Name: "gate/Gate.txt", Type: "test.Gate", LSID: gated, Content: []byte("gate")},
	})
	try.To(testee.CacheArchive(ctx, p)).OrFatal(t)
	testee.Invalidate(gated)

	g.started = make(chan struct{}, 1)
	g.release = make(chan struct{})

	canceled, cancel := context.WithCancel(ctx)
	defer cancel()
	firstErr := make(chan error, 1)
	go func() {
		_, err := testee.Get(canceled, gated)
		firstErr <- err
	}()
	<-g.started

	type result struct {
		obj *cache.Object
		err error
	}
	second := make(chan result, 1)
	go func() {
		obj, err := testee.Get(ctx, gated)
		second <- result{obj: obj, err: err}
	}()
	for testutil.ToFloat64(testee.Metrics().Misses) < 2 {
		time.Sleep(time.Millisecond)
	}
	time.Sleep(10 * time.Millisecond)

	cancel()
	if err := <-firstErr; !errors.Is(err, context.Canceled) {
		t.Errorf("canceled caller: unexpected error: %v", err)
	}

	close(g.release)
	got := <-second
	if got.err != nil {
		t.Fatalf("other caller fails: %v", got.err)
	}
	if !got.obj.LSID.Equal(gated) || got.obj.Value != "gate/Gate.txt" {
		t.Errorf("object: %+v", got.obj)
	}
}

func TestOpen(t *testing.T) {
	ctx := context.Background()

	t.Run("it opens windows of cached objects", func(t *testing.T) {
		fx := setup(t)
		p := kartest.Build(t, fx.dir, "actors.kar", archiveLSID, entries())
		try.To(fx.testee.CacheArchive(ctx, p)).OrFatal(t)

		if !fx.testee.Open(ctx, rampLSID) {
			t.Fatal("it should be opened")
		}
		w := try.To(fx.testee.OpenWindow(ctx, docLSID)).OrFatal(t)
		if w.Title != "About actors" || w.Kind != workspace.KindDocumentation {
			t.Errorf("window: %+v", w)
		}

		windows := fx.workspace.List()
		if len(windows) != 2 {
			t.Fatalf("windows: %+v", windows)
		}
		ramp := fx.workspace.FindByLSID(rampLSID)
		if len(ramp) != 1 || ramp[0].Title != "Ramp" || ramp[0].Kind != workspace.KindActor {
			t.Errorf("window: %+v", ramp)
		}
	})

	t.Run("not viewable entry is not opened", func(t *testing.T) {
		fx := setup(t)
		p := kartest.Build(t, fx.dir, "actors.kar", archiveLSID, entries())
		try.To(fx.testee.CacheArchive(ctx, p)).OrFatal(t)

		if fx.testee.Open(ctx, jarLSID) {
			t.Error("jar should not be opened")
		}
		if _, err := fx.testee.OpenWindow(ctx, jarLSID); !errors.Is(err, handler.ErrNotViewable) {
			t.Errorf("unexpected error: %v", err)
		}
		if fx.workspace.Len() != 0 {
			t.Errorf("windows: %+v", fx.workspace.List())
		}
	})

	t.Run("unknown lsid is not opened", func(t *testing.T) {
		fx := setup(t)
		if fx.testee.Open(ctx, rampLSID) {
			t.Error("it should not be opened")
		}
	})

	t.Run("corrupt entry is not opened, and other windows are kept", func(t *testing.T) {
		fx := setup(t)
		p := kartest.Build(t, fx.dir, "actors.kar", archiveLSID, entries())
		try.To(fx.testee.CacheArchive(ctx, p)).OrFatal(t)
		if !fx.testee.Open(ctx, constLSID) {
			t.Fatal("it should be opened")
		}
		before := fx.workspace.List()

		// the archive is replaced by a broken one after caching.
		broken := entries()
		broken[0].Content = []byte("<entity name=\"Ramp\" class=\"ptolemy.actor.lib.Ramp\">")
		if err := os.Remove(p); err != nil {
			t.Fatal(err)
		}
		kartest.Build(t, fx.dir, "actors.kar", archiveLSID, broken)
		fx.testee.Invalidate(rampLSID)

		if fx.testee.Open(ctx, rampLSID) {
			t.Error("corrupt entry should not be opened")
		}
		after := fx.workspace.List()
		if !cmp.SliceEqWith(before, after, func(a, b *workspace.Window) bool { return a == b }) {
			t.Errorf("windows are changed: (before, after) = (%+v, %+v)", before, after)
		}
	})
}

func TestForgetArchive(t *testing.T) {
	ctx := context.Background()
	fx := setup(t)
	p := kartest.Build(t, fx.dir, "actors.kar", archiveLSID, entries())
	try.To(fx.testee.CacheArchive(ctx, p)).OrFatal(t)

	forgotten := try.To(fx.testee.ForgetArchive(ctx, p)).OrFatal(t)
	if len(forgotten) != 4 {
		t.Errorf("forgotten: %v", forgotten)
	}
	if fx.testee.Len() != 0 {
		t.Errorf("len: %d", fx.testee.Len())
	}
	if _, err := fx.testee.Get(ctx, rampLSID); !errors.Is(err, xe.ErrNotFound) {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestForgetArchive_SharedLSID(t *testing.T) {
	ctx := context.Background()
	otherArchive := lsid.MustParse("urn:lsid:kepler-project.org:kar:210:1")
	rampOnly := []kar.EntrySpec{entries()[0]}

	t.Run("evicted object is reloaded from the archive which remains", func(t *testing.T) {
		fx := setup(t)
		dirA := filepath.Join(fx.dir, "a")
		dirB := filepath.Join(fx.dir, "b")
		for _, d := range []string{dirA, dirB} {
			if err := os.Mkdir(d, os.FileMode(0o755)); err != nil {
				t.Fatal(err)
			}
		}
		a := kartest.Build(t, dirA, "a.kar", archiveLSID, entries())
		try.To(fx.testee.CacheArchive(ctx, a)).OrFatal(t)
		fx.testee.Invalidate(rampLSID)

		b := kartest.Build(t, dirB, "b.kar", otherArchive, rampOnly)
		try.To(fx.testee.CacheArchive(ctx, b)).OrFatal(t)
		if err := os.Remove(b); err != nil {
			t.Fatal(err)
		}

		forgotten := try.To(fx.testee.ForgetArchive(ctx, b)).OrFatal(t)
		if !cmp.SliceEqWith(forgotten, []lsid.LSID{rampLSID}, lsid.LSID.Equal) {
			t.Errorf("forgotten: %v", forgotten)
		}
		try.To(fx.testee.Reconcile(ctx, []string{dirA})).OrFatal(t)

		obj, err := fx.testee.Get(ctx, rampLSID)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if obj.Archive != a {
			t.Errorf("archive: %s", obj.Archive)
		}

		records := try.To(fx.testee.Records(ctx)).OrFatal(t)
		if len(records) != 4 {
			t.Errorf("records: %+v", records)
		}
		for _, r := range records {
			if r.Archive != a {
				t.Errorf("record of %s: archive = %s", r.LSID, r.Archive)
			}
		}
	})

	t.Run("object on memory is recorded for both archives, and kept while its archive remains", func(t *testing.T) {
		fx := setup(t)
		a := kartest.Build(t, fx.dir, "a.kar", archiveLSID, entries())
		try.To(fx.testee.CacheArchive(ctx, a)).OrFatal(t)
		before := try.To(fx.testee.Get(ctx, rampLSID)).OrFatal(t)

		b := kartest.Build(t, fx.dir, "b.kar", otherArchive, rampOnly)
		report := try.To(fx.testee.CacheArchive(ctx, b)).OrFatal(t)
		if len(report.Objects) != 1 || report.Objects[0] != before {
			t.Errorf("objects: %+v", report.Objects)
		}

		archives := []string{}
		for _, r := range try.To(fx.testee.Records(ctx)).OrFatal(t) {
			if r.LSID.Equal(rampLSID) {
				archives = append(archives, r.Archive)
			}
		}
		if !cmp.SliceContentEq(archives, []string{a, b}) {
			t.Errorf("archives of ramp: %v", archives)
		}

		try.To(fx.testee.ForgetArchive(ctx, b)).OrFatal(t)
		after := try.To(fx.testee.Get(ctx, rampLSID)).OrFatal(t)
		if after != before {
			t.Errorf("object is reloaded: %+v", after)
		}
	})

	t.Run("object read from the forgotten archive is dropped, and reloaded from the other", func(t *testing.T) {
		fx := setup(t)
		a := kartest.Build(t, fx.dir, "a.kar", archiveLSID, entries())
		try.To(fx.testee.CacheArchive(ctx, a)).OrFatal(t)
		fx.testee.Invalidate(rampLSID)

		b := kartest.Build(t, fx.dir, "b.kar", otherArchive, rampOnly)
		try.To(fx.testee.CacheArchive(ctx, b)).OrFatal(t)
		fromB := try.To(fx.testee.Get(ctx, rampLSID)).OrFatal(t)
		if fromB.Archive != b {
			t.Fatalf("archive: %s", fromB.Archive)
		}

		try.To(fx.testee.ForgetArchive(ctx, b)).OrFatal(t)
		fromA := try.To(fx.testee.Get(ctx, rampLSID)).OrFatal(t)
		if fromA == fromB || fromA.Archive != a {
			t.Errorf("object: %+v", fromA)
		}
	})

	t.Run("LSID is forgotten with its last archive", func(t *testing.T) {
		fx := setup(t)
		a := kartest.Build(t, fx.dir, "a.kar", archiveLSID, entries())
		b := kartest.Build(t, fx.dir, "b.kar", otherArchive, rampOnly)
		try.To(fx.testee.CacheArchive(ctx, a)).OrFatal(t)
		try.To(fx.testee.CacheArchive(ctx, b)).OrFatal(t)

		try.To(fx.testee.ForgetArchive(ctx, a)).OrFatal(t)
		if _, err := fx.testee.Get(ctx, rampLSID); err != nil {
			t.Errorf("ramp is lost while b.kar remains: %v", err)
		}
		try.To(fx.testee.ForgetArchive(ctx, b)).OrFatal(t)
		if _, err := fx.testee.Get(ctx, rampLSID); !errors.Is(err, xe.ErrNotFound) {
			t.Errorf("unexpected error: %v", err)
		}
	})
}

func TestReconcile(t *testing.T) {
	ctx := context.Background()
	fx := setup(t)
	karDir := filepath.Join(fx.dir, "kar")
	if err := os.Mkdir(karDir, os.FileMode(0o755)); err != nil {
		t.Fatal(err)
	}

	old := kartest.Build(t, karDir, "actors.kar", archiveLSID, entries())
	try.To(fx.testee.CacheArchive(ctx, old)).OrFatal(t)

	other := lsid.MustParse("urn:lsid:kepler-project.org:actor:301:1")
	kartest.Build(t, karDir, "other.kar", lsid.MustParse("urn:lsid:kepler-project.org:kar:300:1"), []kar.EntrySpec{
		{
			Name: "actors/Other.xml", Type: types.TypedAtomicActor, LSID: other,
			Content: kartest.ActorXML("Other", "ptolemy.actor.lib.Other"),
		},
	})
	if err := os.Remove(old); err != nil {
		t.Fatal(err)
	}

	report := try.To(fx.testee.Reconcile(ctx, []string{karDir})).OrFatal(t)

	forgotten := []string{}
	for _, l := range report.Forgotten {
		forgotten = append(forgotten, l.String())
	}
	if !cmp.SliceContentEq(forgotten, []string{
		rampLSID.String(), constLSID.String(), jarLSID.String(), docLSID.String(),
	}) {
		t.Errorf("forgotten: %v", report.Forgotten)
	}
	if len(report.Cached) != 1 || len(report.Cached[0].Objects) != 1 || !report.Cached[0].Objects[0].LSID.Equal(other) {
		t.Errorf("cached: %+v", report.Cached)
	}
	if _, err := fx.testee.Get(ctx, rampLSID); !errors.Is(err, xe.ErrNotFound) {
		t.Errorf("unexpected error: %v", err)
	}

	again := try.To(fx.testee.Reconcile(ctx, []string{karDir})).OrFatal(t)
	if len(again.Cached) != 0 || len(again.Forgotten) != 0 {
		t.Errorf("second reconcile does something: %+v", again)
	}
}
