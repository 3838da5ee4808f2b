// Package memory is an index kept on memory. It is lost when the process exits.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/opst/karfab/pkg/cache/index"
	"github.com/opst/karfab/pkg/lsid"
)

type memoryIndex struct {
	mu sync.RWMutex

	// LSID key -> archive -> record
	records map[string]map[string]index.Record
}

func New() index.Interface {
	return &memoryIndex{records: map[string]map[string]index.Record{}}
}

func (m *memoryIndex) Put(_ context.Context, r index.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	byArchive, ok := m.records[r.LSID.Key()]
	if !ok {
		byArchive = map[string]index.Record{}
		m.records[r.LSID.Key()] = byArchive
	}
	byArchive[r.Archive] = r
	return nil
}

func (m *memoryIndex) Find(_ context.Context, l lsid.LSID) ([]index.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	found := []index.Record{}
	for _, r := range m.records[l.Key()] {
		found = append(found, r)
	}
	index.Recency(found)
	return found, nil
}

func (m *memoryIndex) Get(ctx context.Context, l lsid.LSID) (index.Record, error) {
	found, err := m.Find(ctx, l)
	if err != nil {
		return index.Record{}, err
	}
	return index.First(l, found)
}

func (m *memoryIndex) List(context.Context) ([]index.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	list := []index.Record{}
	for _, byArchive := range m.records {
		for _, r := range byArchive {
			list = append(list, r)
		}
	}
	sort.Slice(list, func(i, j int) bool {
		ki, kj := list[i].LSID.Key(), list[j].LSID.Key()
		if ki != kj {
			return ki < kj
		}
		return list[i].Archive < list[j].Archive
	})
	return list, nil
}

func (m *memoryIndex) DeleteArchive(_ context.Context, archive string) ([]lsid.LSID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	deleted := []lsid.LSID{}
	for k, byArchive := range m.records {
		r, ok := byArchive[archive]
		if !ok {
			continue
		}
		deleted = append(deleted, r.LSID)
		delete(byArchive, archive)
		if len(byArchive) == 0 {
			delete(m.records, k)
		}
	}
	sort.Slice(deleted, func(i, j int) bool { return deleted[i].Key() < deleted[j].Key() })
	return deleted, nil
}

func (m *memoryIndex) Close() error {
	return nil
}
