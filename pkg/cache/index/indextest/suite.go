// Package indextest is a conformance suite for index implementations.
package indextest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/opst/karfab/pkg/cache/index"
	xe "github.com/opst/karfab/pkg/errors"
	"github.com/opst/karfab/pkg/lsid"
)

// Run tests an implementation. newIndex should return an empty index.
func Run(t *testing.T, newIndex func(*testing.T) index.Interface) {
	ctx := context.Background()
	at := time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)

	ramp := index.Record{
		LSID: lsid.MustParse("urn:lsid:kepler-project.org:actor:1:1"), Entry: "Ramp.xml",
		Type: "ptolemy.actor.TypedAtomicActor", Handler: "actorMetadata",
		Archive: "/kar/a.kar", Object: true, CachedAt: at,
	}
	jar := index.Record{
		LSID: lsid.MustParse("urn:lsid:kepler-project.org:jar:2:1"), Entry: "lib/a.jar",
		Type: "jar", Handler: "jar",
		Archive: "/kar/a.kar", Object: false, CachedAt: at,
	}
	doc := index.Record{
		LSID: lsid.MustParse("urn:lsid:kepler-project.org:doc:3:1"), Entry: "doc.md",
		Type: "documentation", Handler: "documentation",
		Archive: "/kar/b.kar", Object: true, CachedAt: at.Add(time.Minute),
	}

	t.Run("Get returns what Put", func(t *testing.T) {
		testee := newIndex(t)
		defer testee.Close()

		for _, r := range []index.Record{ramp, jar, doc} {
			if err := testee.Put(ctx, r); err != nil {
				t.Fatal(err)
			}
		}
		for _, r := range []index.Record{ramp, jar, doc} {
			actual, err := testee.Get(ctx, r.LSID)
			if err != nil {
				t.Fatal(err)
			}
			if !actual.Equal(r) {
				t.Errorf("(actual, expected) = (%+v, %+v)", actual, r)
			}
		}
	})

	t.Run("Get for missing LSID is ErrNotFound", func(t *testing.T) {
		testee := newIndex(t)
		defer testee.Close()
		if _, err := testee.Get(ctx, ramp.LSID.Next()); !errors.Is(err, xe.ErrNotFound) {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("Put replaces a record with the same LSID and archive", func(t *testing.T) {
		testee := newIndex(t)
		defer testee.Close()
		if err := testee.Put(ctx, ramp); err != nil {
			t.Fatal(err)
		}
		recached := ramp
		recached.Entry = "actors/Ramp.xml"
		recached.CachedAt = at.Add(time.Hour)
		if err := testee.Put(ctx, recached); err != nil {
			t.Fatal(err)
		}
		list, err := testee.List(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if len(list) != 1 || !list[0].Equal(recached) {
			t.Errorf("unexpected list: %+v", list)
		}
	})

	t.Run("an LSID provided by some archives has a record for each", func(t *testing.T) {
		testee := newIndex(t)
		defer testee.Close()

		older := ramp
		older.Archive = "/kar/z.kar"
		older.CachedAt = at.Add(-time.Hour)
		newer := ramp
		newer.Archive = "/kar/c.kar"
		newer.CachedAt = at.Add(time.Hour)
		for _, r := range []index.Record{ramp, older, newer} {
			if err := testee.Put(ctx, r); err != nil {
				t.Fatal(err)
			}
		}

		found, err := testee.Find(ctx, ramp.LSID)
		if err != nil {
			t.Fatal(err)
		}
		expected := []index.Record{newer, ramp, older}
		if len(found) != len(expected) {
			t.Fatalf("found: %+v", found)
		}
		for i := range expected {
			if !found[i].Equal(expected[i]) {
				t.Errorf("found[%d]: (actual, expected) = (%+v, %+v)", i, found[i], expected[i])
			}
		}

		if actual, err := testee.Get(ctx, ramp.LSID); err != nil {
			t.Fatal(err)
		} else if !actual.Equal(newer) {
			t.Errorf("Get should be the most recent: %+v", actual)
		}

		deleted, err := testee.DeleteArchive(ctx, newer.Archive)
		if err != nil {
			t.Fatal(err)
		}
		if len(deleted) != 1 || !deleted[0].Equal(ramp.LSID) {
			t.Errorf("deleted: %v", deleted)
		}
		if actual, err := testee.Get(ctx, ramp.LSID); err != nil {
			t.Errorf("LSID should survive in other archives: %v", err)
		} else if !actual.Equal(ramp) {
			t.Errorf("Get after delete: %+v", actual)
		}

		list, err := testee.List(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if len(list) != 2 || list[0].Archive != "/kar/a.kar" || list[1].Archive != "/kar/z.kar" {
			t.Errorf("list should be ordered by archive for the same LSID: %+v", list)
		}
	})

	t.Run("Find for missing LSID is empty", func(t *testing.T) {
		testee := newIndex(t)
		defer testee.Close()
		found, err := testee.Find(ctx, ramp.LSID)
		if err != nil {
			t.Fatal(err)
		}
		if len(found) != 0 {
			t.Errorf("found: %+v", found)
		}
	})

	t.Run("List is ordered by LSID", func(t *testing.T) {
		testee := newIndex(t)
		defer testee.Close()
		for _, r := range []index.Record{doc, jar, ramp} {
			if err := testee.Put(ctx, r); err != nil {
				t.Fatal(err)
			}
		}
		list, err := testee.List(ctx)
		if err != nil {
			t.Fatal(err)
		}
		expected := []index.Record{ramp, doc, jar} // actor < doc < jar
		if len(list) != len(expected) {
			t.Fatalf("unexpected list: %+v", list)
		}
		for i := range expected {
			if !list[i].Equal(expected[i]) {
				t.Errorf("list[%d]: (actual, expected) = (%+v, %+v)", i, list[i], expected[i])
			}
		}
	})

	t.Run("DeleteArchive deletes only records from the archive", func(t *testing.T) {
		testee := newIndex(t)
		defer testee.Close()
		for _, r := range []index.Record{ramp, jar, doc} {
			if err := testee.Put(ctx, r); err != nil {
				t.Fatal(err)
			}
		}
		deleted, err := testee.DeleteArchive(ctx, "/kar/a.kar")
		if err != nil {
			t.Fatal(err)
		}
		if len(deleted) != 2 || !deleted[0].Equal(ramp.LSID) || !deleted[1].Equal(jar.LSID) {
			t.Errorf("deleted: %v", deleted)
		}
		if _, err := testee.Get(ctx, ramp.LSID); !errors.Is(err, xe.ErrNotFound) {
			t.Errorf("unexpected error: %v", err)
		}
		if _, err := testee.Get(ctx, doc.LSID); err != nil {
			t.Errorf("unexpected error: %v", err)
		}

		again, err := testee.DeleteArchive(ctx, "/kar/a.kar")
		if err != nil {
			t.Fatal(err)
		}
		if len(again) != 0 {
			t.Errorf("deleted twice: %v", again)
		}
	})
}
