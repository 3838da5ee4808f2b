// Package cache keeps objects converted from KAR entries, keyed by their LSIDs.
//
// Objects are loaded lazily: an object evicted from memory, or cached by another
// process sharing the index, is loaded again from its archive on Get.
package cache

import (
	"container/list"
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/opst/karfab/pkg/cache/index"
	xe "github.com/opst/karfab/pkg/errors"
	"github.com/opst/karfab/pkg/kar"
	"github.com/opst/karfab/pkg/kar/handler"
	"github.com/opst/karfab/pkg/lsid"
	"github.com/opst/karfab/pkg/workspace"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// DefaultMaxEntries is the default bound of objects kept on memory.
const DefaultMaxEntries = 1024

// Object is a cached form of a KAR entry.
type Object struct {
	LSID     lsid.LSID
	Entry    string
	Type     string
	Handler  string
	Archive  string
	CachedAt time.Time

	// Value is what the handler returned on Cache.
	Value any
}

// Report tells what CacheArchive has done.
type Report struct {
	Archive string

	// Objects cached on memory, in the order of entries.
	Objects []*Object

	// SideEffects lists LSIDs of entries which were handled without cached objects.
	SideEffects []lsid.LSID
}

type Manager struct {
	registry  *handler.Registry
	index     index.Interface
	workspace *workspace.Workspace

	logger       *log.Logger
	maxEntries   int
	karOptions   []kar.Option
	checkArchive func(*kar.File) error
	now          func() time.Time
	parallelism  int
	metrics      *Metrics

	mu      sync.Mutex
	lru     *list.List // of *Object, most recently used first
	entries map[string]*list.Element

	loading singleflight.Group
}

type Option func(*Manager) *Manager

func WithLogger(l *log.Logger) Option {
	return func(m *Manager) *Manager {
		m.logger = l
		return m
	}
}

// WithMaxEntries bounds objects on memory. n < 1 is treated as 1.
func WithMaxEntries(n int) Option {
	return func(m *Manager) *Manager {
		if n < 1 {
			n = 1
		}
		m.maxEntries = n
		return m
	}
}

// WithArchiveOptions passes options to kar.Open.
func WithArchiveOptions(options ...kar.Option) Option {
	return func(m *Manager) *Manager {
		m.karOptions = append(m.karOptions, options...)
		return m
	}
}

// WithArchiveCheck sets a check of archives before caching them.
//
// When check returns an error, the archive is not cached.
func WithArchiveCheck(check func(*kar.File) error) Option {
	return func(m *Manager) *Manager {
		m.checkArchive = check
		return m
	}
}

// WithClock replaces the clock to stamp records.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) *Manager {
		m.now = now
		return m
	}
}

// WithParallelism sets how many archives are cached concurrently in CacheDirectory.
func WithParallelism(n int) Option {
	return func(m *Manager) *Manager {
		if n < 1 {
			n = 1
		}
		m.parallelism = n
		return m
	}
}

// WithRegisterer registers metrics of the Manager.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(m *Manager) *Manager {
		for _, c := range m.metrics.collectors() {
			reg.MustRegister(c)
		}
		return m
	}
}

func New(
	registry *handler.Registry,
	idx index.Interface,
	ws *workspace.Workspace,
	options ...Option,
) *Manager {
	m := &Manager{
		registry:     registry,
		index:        idx,
		workspace:    ws,
		logger:       log.Default(),
		maxEntries:   DefaultMaxEntries,
		checkArchive: func(*kar.File) error { return nil },
		now:          time.Now,
		parallelism:  4,
		metrics:      newMetrics(),
		lru:          list.New(),
		entries:      map[string]*list.Element{},
	}
	for _, o := range options {
		m = o(m)
	}
	return m
}

func (m *Manager) Metrics() *Metrics {
	return m.metrics
}

// Len returns the number of objects on memory.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// lookup returns the object on memory, marking it as recently used.
func (m *Manager) lookup(l lsid.LSID) (*Object, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	el, ok := m.entries[l.Key()]
	if !ok {
		return nil, false
	}
	m.lru.MoveToFront(el)
	return el.Value.(*Object), true
}

// store puts the object on memory, unless other object for the LSID is there.
//
// It returns the object on memory after all.
func (m *Manager) store(obj *Object) *Object {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := obj.LSID.Key()
	if el, ok := m.entries[key]; ok {
		m.lru.MoveToFront(el)
		return el.Value.(*Object)
	}

	m.entries[key] = m.lru.PushFront(obj)
	for m.lru.Len() > m.maxEntries {
		last := m.lru.Back()
		evicted := m.lru.Remove(last).(*Object)
		delete(m.entries, evicted.LSID.Key())
		m.metrics.Evictions.Inc()
		m.logger.Printf("evicted %s from memory", evicted.LSID)
	}
	m.metrics.Entries.Set(float64(len(m.entries)))
	return obj
}

// Invalidate drops the object from memory. The index is kept as is.
//
// It reports whether the object was on memory.
func (m *Manager) Invalidate(l lsid.LSID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	el, ok := m.entries[l.Key()]
	if !ok {
		return false
	}
	m.lru.Remove(el)
	delete(m.entries, l.Key())
	m.metrics.Entries.Set(float64(len(m.entries)))
	return true
}

// CacheArchive caches all entries in the KAR file.
//
// Each entry is passed to its handler, and recorded in the index.
// Entries whose objects are already on memory are not read again, but they are
// recorded as provided by this archive too.
//
// Errors from handlers are returned as is. Entries handled before the error stay cached.
func (m *Manager) CacheArchive(ctx context.Context, path string) (Report, error) {
	abspath, err := filepath.Abs(path)
	if err != nil {
		return Report{}, err
	}

	f, err := kar.Open(abspath, m.karOptions...)
	if err != nil {
		return Report{}, err
	}
	defer f.Close()

	if err := m.checkArchive(f); err != nil {
		return Report{}, fmt.Errorf("%s: %w", abspath, err)
	}

	report := Report{Archive: abspath}
	for _, e := range f.Entries() {
		select {
		case <-ctx.Done():
			return report, ctx.Err()
		default:
		}

		if obj, ok := m.lookup(e.LSID); ok {
			h, err := m.registry.Resolve(e)
			if err != nil {
				return report, xe.WrapWithNote(abspath, err)
			}
			if _, err := m.record(ctx, f, e, h.Name(), true); err != nil {
				return report, xe.WrapWithNote(abspath, err)
			}
			report.Objects = append(report.Objects, obj)
			continue
		}

		obj, err := m.cacheEntry(ctx, f, e)
		if err != nil {
			return report, xe.WrapWithNote(abspath, err)
		}
		if obj == nil {
			report.SideEffects = append(report.SideEffects, e.LSID)
			continue
		}
		report.Objects = append(report.Objects, obj)
	}

	m.logger.Printf(
		"cached %s: %d objects, %d side-effects",
		abspath, len(report.Objects), len(report.SideEffects),
	)
	return report, nil
}

// cacheEntry passes the entry to its handler, records it and stores the object.
//
// It returns nil object for side-effect only entries.
func (m *Manager) cacheEntry(ctx context.Context, f *kar.File, e kar.Entry) (*Object, error) {
	h, err := m.registry.Resolve(e)
	if err != nil {
		return nil, err
	}
	value, err := h.Cache(ctx, f, e)
	if err != nil {
		return nil, fmt.Errorf("entry %s (handler %s): %w", e.Name, h.Name(), err)
	}

	rec, err := m.record(ctx, f, e, h.Name(), value != nil)
	if err != nil {
		return nil, err
	}
	if value == nil {
		return nil, nil
	}

	return m.store(&Object{
		LSID:     e.LSID,
		Entry:    e.Name,
		Type:     e.Type,
		Handler:  h.Name(),
		Archive:  f.Path(),
		CachedAt: rec.CachedAt,
		Value:    value,
	}), nil
}

// record puts the entry of the archive into the index.
func (m *Manager) record(ctx context.Context, f *kar.File, e kar.Entry, handler string, object bool) (index.Record, error) {
	rec := index.Record{
		LSID:     e.LSID,
		Entry:    e.Name,
		Type:     e.Type,
		Handler:  handler,
		Archive:  f.Path(),
		Object:   object,
		CachedAt: m.now(),
	}
	if err := m.index.Put(ctx, rec); err != nil {
		return index.Record{}, err
	}
	return rec, nil
}

// CacheDirectory caches all *.kar files in the directory (not recursively).
//
// All archives are tried even if some of them fail. It returns reports of
// succeeded archives, and the first error.
func (m *Manager) CacheDirectory(ctx context.Context, dir string) ([]Report, error) {
	paths, err := listKAR(dir)
	if err != nil {
		return nil, err
	}

	reports := make([]*Report, len(paths))
	g := new(errgroup.Group)
	g.SetLimit(m.parallelism)
	for i, p := range paths {
		g.Go(func() error {
			r, err := m.CacheArchive(ctx, p)
			if err != nil {
				m.logger.Printf("failed to cache %s: %s", p, err)
				return err
			}
			reports[i] = &r
			return nil
		})
	}
	err = g.Wait()

	succeeded := []Report{}
	for _, r := range reports {
		if r != nil {
			succeeded = append(succeeded, *r)
		}
	}
	return succeeded, err
}

// ReconcileReport tells what Reconcile has done.
type ReconcileReport struct {
	Cached    []Report
	Forgotten []lsid.LSID
}

// Reconcile brings the index in line with KAR files in directories.
//
// Archives recorded in the index but missing on the filesystem are forgotten,
// and *.kar files in dirs which are not recorded are cached.
//
// All archives are tried even if some of them fail. It returns the first error.
func (m *Manager) Reconcile(ctx context.Context, dirs []string) (ReconcileReport, error) {
	report := ReconcileReport{}

	records, err := m.index.List(ctx)
	if err != nil {
		return report, err
	}
	known := map[string]struct{}{}
	for _, r := range records {
		known[r.Archive] = struct{}{}
	}

	var first error
	for archive := range known {
		if _, err := os.Stat(archive); !xe.Is(err, os.ErrNotExist) {
			continue
		}
		forgotten, err := m.ForgetArchive(ctx, archive)
		if err != nil {
			if first == nil {
				first = err
			}
			continue
		}
		report.Forgotten = append(report.Forgotten, forgotten...)
	}

	for _, dir := range dirs {
		paths, err := listKAR(dir)
		if err != nil {
			if first == nil {
				first = err
			}
			continue
		}
		for _, p := range paths {
			abspath, err := filepath.Abs(p)
			if err != nil {
				continue
			}
			if _, ok := known[abspath]; ok {
				continue
			}
			r, err := m.CacheArchive(ctx, abspath)
			if err != nil {
				m.logger.Printf("failed to cache %s: %s", abspath, err)
				if first == nil {
					first = err
				}
				continue
			}
			report.Cached = append(report.Cached, r)
		}
	}

	sort.Slice(report.Forgotten, func(i, j int) bool {
		return report.Forgotten[i].Key() < report.Forgotten[j].Key()
	})
	return report, first
}

// listKAR returns paths of *.kar files in the directory.
func listKAR(dir string) ([]string, error) {
	des, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	paths := []string{}
	for _, de := range des {
		if de.Type().IsRegular() && strings.EqualFold(filepath.Ext(de.Name()), ".kar") {
			paths = append(paths, filepath.Join(dir, de.Name()))
		}
	}
	return paths, nil
}

// Get returns the object for the LSID.
//
// When it is not on memory, it is loaded from an archive recorded in the index.
// Concurrent loads for the same LSID are done once. A load is not cancelled by
// callers giving up; each caller stops waiting when its own ctx is done.
//
// As long as the object is on memory, Get returns the same pointer.
//
// # Errors
//
// - ErrNotFound: the LSID is not indexed, or it has no cached object (like jar entries).
func (m *Manager) Get(ctx context.Context, l lsid.LSID) (*Object, error) {
	if obj, ok := m.lookup(l); ok {
		m.metrics.Hits.Inc()
		return obj, nil
	}
	m.metrics.Misses.Inc()

	loadCtx := context.WithoutCancel(ctx)
	ch := m.loading.DoChan(l.Key(), func() (interface{}, error) {
		if obj, ok := m.lookup(l); ok {
			return obj, nil
		}
		return m.load(loadCtx, l)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Object), nil
	}
}

// provider is an archive providing the LSID.
type provider struct {
	file   *kar.File
	entry  kar.Entry
	record index.Record
}

// providers calls fn with archives providing the LSID, most recently cached first,
// until fn returns nil.
//
// Archives which cannot be opened, or do not have the entry any more, are skipped.
// When no archive is found, it returns ErrNotFound. When fn fails for all, it returns
// the error for the most recent one.
func (m *Manager) providers(ctx context.Context, l lsid.LSID, fn func(provider) error) error {
	records, err := m.index.Find(ctx, l)
	if err != nil {
		return err
	}

	var first error
	for _, rec := range records {
		err := func() error {
			f, err := kar.Open(rec.Archive, m.karOptions...)
			if err != nil {
				return err
			}
			defer f.Close()
			e, ok := f.EntryByLSID(l)
			if !ok {
				return fmt.Errorf("%w: %s is not in %s any more", xe.ErrNotFound, l, rec.Archive)
			}
			return fn(provider{file: f, entry: e, record: rec})
		}()
		if err == nil {
			return nil
		}
		if first == nil {
			first = err
		}
	}
	if first == nil {
		return fmt.Errorf("%w: %s", xe.ErrNotFound, l)
	}
	return first
}

func (m *Manager) load(ctx context.Context, l lsid.LSID) (*Object, error) {
	var loaded *Object
	err := m.providers(ctx, l, func(p provider) error {
		if !p.record.Object {
			return fmt.Errorf(
				"%w: %s has no cached object (handled by %s)", xe.ErrNotFound, l, p.record.Handler,
			)
		}
		obj, err := m.cacheEntry(ctx, p.file, p.entry)
		if err != nil {
			return err
		}
		if obj == nil {
			return fmt.Errorf("%w: %s has no cached object", xe.ErrNotFound, l)
		}
		loaded = obj
		return nil
	})
	if err != nil {
		return nil, err
	}
	return loaded, nil
}

// OpenWindow materializes the object as a window in the workspace.
//
// The object on memory is passed to its handler if any. Otherwise, the handler reads
// the entry from the archive. The workspace is changed only when it succeeds.
func (m *Manager) OpenWindow(ctx context.Context, l lsid.LSID) (*workspace.Window, error) {
	var opened *workspace.Window
	err := m.providers(ctx, l, func(p provider) error {
		h, err := m.registry.Resolve(p.entry)
		if err != nil {
			return err
		}

		var cached any
		if obj, ok := m.lookup(l); ok {
			cached = obj.Value
		}
		w, err := h.Open(ctx, p.file, p.entry, cached)
		if err != nil {
			return err
		}
		if err := m.workspace.Add(w); err != nil {
			return err
		}
		opened = w
		return nil
	})
	if err != nil {
		return nil, err
	}
	return opened, nil
}

// Open is OpenWindow which reports only success or not.
//
// Failures are logged.
func (m *Manager) Open(ctx context.Context, l lsid.LSID) bool {
	w, err := m.OpenWindow(ctx, l)
	if err != nil {
		m.logger.Printf("failed to open %s: %s", l, err)
		return false
	}
	m.logger.Printf("opened %s as window %s", l, w.ID)
	return true
}

// ForgetArchive removes entries of the archive from the index and memory.
//
// Objects are dropped from memory when they were read from the archive, or when
// no other archive provides their LSIDs. Others stay, and Get keeps returning them.
//
// It returns LSIDs whose records of the archive were forgotten.
func (m *Manager) ForgetArchive(ctx context.Context, path string) ([]lsid.LSID, error) {
	abspath, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	deleted, err := m.index.DeleteArchive(ctx, abspath)
	if err != nil {
		return nil, err
	}
	for _, l := range deleted {
		if obj, ok := m.lookup(l); ok && obj.Archive != abspath {
			rest, err := m.index.Find(ctx, l)
			if err != nil {
				return deleted, err
			}
			if len(rest) != 0 {
				continue
			}
		}
		m.Invalidate(l)
	}
	if len(deleted) != 0 {
		m.logger.Printf("forgot %d entries of %s", len(deleted), abspath)
	}
	return deleted, nil
}

// Records returns the index records.
func (m *Manager) Records(ctx context.Context) ([]index.Record, error) {
	return m.index.List(ctx)
}

// Cached returns LSIDs of objects on memory, sorted.
func (m *Manager) Cached() []lsid.LSID {
	m.mu.Lock()
	defer m.mu.Unlock()
	ls := make([]lsid.LSID, 0, len(m.entries))
	for _, el := range m.entries {
		ls = append(ls, el.Value.(*Object).LSID)
	}
	sort.Slice(ls, func(i, j int) bool { return ls[i].Key() < ls[j].Key() })
	return ls
}
