// Package index defines the persistent catalogue of cached KAR entries.
//
// The catalogue survives restarts of cache manager. It remembers where each LSID
// comes from, so that evicted objects can be loaded again.
package index

import (
	"context"
	"fmt"
	"sort"
	"time"

	xe "github.com/opst/karfab/pkg/errors"
	"github.com/opst/karfab/pkg/lsid"
)

// Record is a row of the catalogue.
type Record struct {
	LSID lsid.LSID

	// Entry is the name of the entry in the archive.
	Entry string

	// Type is declared type of the entry.
	Type string

	// Handler is the name of handler which has cached the entry.
	Handler string

	// Archive is filepath of KAR which contains the entry.
	Archive string

	// Object is true when the handler produced an object to be cached.
	//
	// It is false for entries cached as side-effects only.
	Object bool

	CachedAt time.Time
}

func (r Record) Equal(o Record) bool {
	return r.LSID.Equal(o.LSID) &&
		r.Entry == o.Entry &&
		r.Type == o.Type &&
		r.Handler == o.Handler &&
		r.Archive == o.Archive &&
		r.Object == o.Object &&
		r.CachedAt.Equal(o.CachedAt)
}

// Interface is the catalogue.
//
// A record is identified by its LSID and archive. The same LSID can be provided
// by more than one archive, and each of them has its own record.
type Interface interface {
	// Put inserts or replaces the record for its LSID and archive.
	Put(ctx context.Context, r Record) error

	// Get returns a record of the LSID. When some archives provide the LSID,
	// the most recently cached one is returned.
	//
	// When it is missing, it returns errors.ErrNotFound.
	Get(ctx context.Context, l lsid.LSID) (Record, error)

	// Find returns all records of the LSID, ordered by Recency.
	//
	// When it is missing, it returns an empty slice.
	Find(ctx context.Context, l lsid.LSID) ([]Record, error)

	// List returns all records, ordered by LSID and then archive.
	List(ctx context.Context) ([]Record, error)

	// DeleteArchive deletes records from the archive, and returns their LSIDs.
	DeleteArchive(ctx context.Context, archive string) ([]lsid.LSID, error)

	Close() error
}

// Recency sorts records of a LSID: most recently cached first, and then by archive.
func Recency(records []Record) {
	sort.SliceStable(records, func(i, j int) bool {
		a, b := records[i], records[j]
		if !a.CachedAt.Equal(b.CachedAt) {
			return a.CachedAt.After(b.CachedAt)
		}
		return a.Archive < b.Archive
	})
}

// First returns the first of records found for l, or ErrNotFound when there are none.
func First(l lsid.LSID, records []Record) (Record, error) {
	if len(records) == 0 {
		return Record{}, fmt.Errorf("%w: %s", xe.ErrNotFound, l)
	}
	return records[0], nil
}
