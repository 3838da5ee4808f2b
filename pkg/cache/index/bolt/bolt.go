// Package bolt is an index stored in a local bbolt file.
package bolt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/opst/karfab/pkg/cache/index"
	"github.com/opst/karfab/pkg/lsid"
	bolt "go.etcd.io/bbolt"
)

const (
	READ_WRITE_MODE os.FileMode = 0600

	// keys are "<LSID key>\x00<archive>".
	bucketRecords = "records-by-archive"

	// records keyed by LSID only. It is dropped on Open, and rebuilt by caching again.
	legacyBucketRecords = "records"
)

func recordKey(r index.Record) []byte {
	return append(lsidPrefix(r.LSID), r.Archive...)
}

func lsidPrefix(l lsid.LSID) []byte {
	return append([]byte(l.Key()), 0)
}

type boltIndex struct {
	db *bolt.DB
}

type record struct {
	LSID     string    `json:"lsid"`
	Entry    string    `json:"entry"`
	Type     string    `json:"type"`
	Handler  string    `json:"handler"`
	Archive  string    `json:"archive"`
	Object   bool      `json:"object"`
	CachedAt time.Time `json:"cachedAt"`
}

func marshal(r index.Record) ([]byte, error) {
	return json.Marshal(record{
		LSID: r.LSID.String(), Entry: r.Entry, Type: r.Type, Handler: r.Handler,
		Archive: r.Archive, Object: r.Object, CachedAt: r.CachedAt,
	})
}

func unmarshal(b []byte) (index.Record, error) {
	var r record
	if err := json.Unmarshal(b, &r); err != nil {
		return index.Record{}, err
	}
	l, err := lsid.Parse(r.LSID)
	if err != nil {
		return index.Record{}, err
	}
	return index.Record{
		LSID: l, Entry: r.Entry, Type: r.Type, Handler: r.Handler,
		Archive: r.Archive, Object: r.Object, CachedAt: r.CachedAt,
	}, nil
}

// Open opens (or creates) the bbolt file as an index.
func Open(filePath string) (index.Interface, error) {
	filePath = strings.TrimSpace(filePath)
	if filePath == "" {
		return nil, fmt.Errorf("index file path is blank")
	}

	db, err := bolt.Open(filePath, READ_WRITE_MODE, &bolt.Options{Timeout: 30 * time.Second})
	if err != nil {
		return nil, err
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		if tx.Bucket([]byte(legacyBucketRecords)) != nil {
			if err := tx.DeleteBucket([]byte(legacyBucketRecords)); err != nil {
				return err
			}
		}
		_, err := tx.CreateBucketIfNotExists([]byte(bucketRecords))
		return err
	}); err != nil {
		db.Close()
		return nil, err
	}
	return &boltIndex{db: db}, nil
}

func (b *boltIndex) Put(ctx context.Context, r index.Record) error {
	v, err := marshal(r)
	if err != nil {
		return err
	}
	return b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucketRecords)).Put(recordKey(r), v)
	})
}

func (b *boltIndex) Find(ctx context.Context, l lsid.LSID) ([]index.Record, error) {
	found := []index.Record{}
	prefix := lsidPrefix(l)
	err := b.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket([]byte(bucketRecords)).Cursor()
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			r, err := unmarshal(v)
			if err != nil {
				return err
			}
			found = append(found, r)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	index.Recency(found)
	return found, nil
}

func (b *boltIndex) Get(ctx context.Context, l lsid.LSID) (index.Record, error) {
	found, err := b.Find(ctx, l)
	if err != nil {
		return index.Record{}, err
	}
	return index.First(l, found)
}

func (b *boltIndex) List(ctx context.Context) ([]index.Record, error) {
	list := []index.Record{}
	err := b.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucketRecords)).ForEach(func(_, v []byte) error {
			r, err := unmarshal(v)
			if err != nil {
				return err
			}
			list = append(list, r)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return list, nil
}

func (b *boltIndex) DeleteArchive(ctx context.Context, archive string) ([]lsid.LSID, error) {
	deleted := []lsid.LSID{}
	err := b.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(bucketRecords))

		keys := [][]byte{}
		if err := bucket.ForEach(func(k, v []byte) error {
			r, err := unmarshal(v)
			if err != nil {
				return err
			}
			if r.Archive == archive {
				keys = append(keys, append([]byte{}, k...))
				deleted = append(deleted, r.LSID)
			}
			return nil
		}); err != nil {
			return err
		}

		// deleting while ForEach is not allowed.
		for _, k := range keys {
			if err := bucket.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return deleted, nil
}

func (b *boltIndex) Close() error {
	return b.db.Close()
}
