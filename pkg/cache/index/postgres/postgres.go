// Package postgres is an index shared among karfab processes through PostgreSQL.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgerrcode"
	"github.com/opst/karfab/pkg/cache/index"
	kpool "github.com/opst/karfab/pkg/conn/postgres/pool"
	"github.com/opst/karfab/pkg/lsid"
)

// ErrSchemaNotReady is returned when the table for the index is missing.
var ErrSchemaNotReady = errors.New("index schema is not ready")

// "kar_cache_index" was keyed by lsid only. It is dropped, and rebuilt by caching again.
const schema = `
drop table if exists "kar_cache_index";
create table if not exists "kar_cache_record" (
	"lsid" varchar not null,
	"archive" varchar not null,
	"entry" varchar not null,
	"type" varchar not null,
	"handler" varchar not null,
	"object" boolean not null,
	"cached_at" timestamp with time zone not null,
	primary key ("lsid", "archive")
);
create index if not exists "kar_cache_record_archive" on "kar_cache_record" ("archive");
`

type pgIndex struct {
	pool kpool.Pool
}

type option struct {
	migrate bool
}

type Option func(*option) *option

// WithoutMigration skips creating the table on New.
func WithoutMigration() Option {
	return func(o *option) *option {
		o.migrate = false
		return o
	}
}

// New returns an index backed by the pool.
//
// It creates the table unless WithoutMigration is passed.
// Close of the index closes the pool.
func New(ctx context.Context, pool kpool.Pool, options ...Option) (index.Interface, error) {
	opt := &option{migrate: true}
	for _, o := range options {
		opt = o(opt)
	}
	if opt.migrate {
		if _, err := pool.Exec(ctx, schema); err != nil {
			return nil, err
		}
	}
	return &pgIndex{pool: pool}, nil
}

func translate(err error) error {
	var pgerr *pgconn.PgError
	if errors.As(err, &pgerr) && pgerr.Code == pgerrcode.UndefinedTable {
		return fmt.Errorf("%w: %w", ErrSchemaNotReady, err)
	}
	return err
}

func (p *pgIndex) Put(ctx context.Context, r index.Record) error {
	_, err := p.pool.Exec(
		ctx,
		`
		insert into "kar_cache_record"
			("lsid", "entry", "type", "handler", "archive", "object", "cached_at")
		values ($1, $2, $3, $4, $5, $6, $7)
		on conflict ("lsid", "archive") do update set
			"entry" = excluded."entry",
			"type" = excluded."type",
			"handler" = excluded."handler",
			"object" = excluded."object",
			"cached_at" = excluded."cached_at"
		`,
		r.LSID.Key(), r.Entry, r.Type, r.Handler, r.Archive, r.Object, r.CachedAt,
	)
	return translate(err)
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scan(row scanner) (index.Record, error) {
	var rawLSID string
	r := index.Record{}
	if err := row.Scan(
		&rawLSID, &r.Entry, &r.Type, &r.Handler, &r.Archive, &r.Object, &r.CachedAt,
	); err != nil {
		return index.Record{}, err
	}
	l, err := lsid.Parse(rawLSID)
	if err != nil {
		return index.Record{}, err
	}
	r.LSID = l
	return r, nil
}

func (p *pgIndex) query(ctx context.Context, sql string, args ...interface{}) ([]index.Record, error) {
	rows, err := p.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, translate(err)
	}
	defer rows.Close()

	list := []index.Record{}
	for rows.Next() {
		r, err := scan(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, r)
	}
	if err := rows.Err(); err != nil {
		return nil, translate(err)
	}
	return list, nil
}

func (p *pgIndex) Find(ctx context.Context, l lsid.LSID) ([]index.Record, error) {
	return p.query(
		ctx,
		`
		select "lsid", "entry", "type", "handler", "archive", "object", "cached_at"
		from "kar_cache_record" where "lsid" = $1
		order by "cached_at" desc, "archive" collate "C"
		`,
		l.Key(),
	)
}

func (p *pgIndex) Get(ctx context.Context, l lsid.LSID) (index.Record, error) {
	found, err := p.Find(ctx, l)
	if err != nil {
		return index.Record{}, err
	}
	return index.First(l, found)
}

func (p *pgIndex) List(ctx context.Context) ([]index.Record, error) {
	return p.query(
		ctx,
		`
		select "lsid", "entry", "type", "handler", "archive", "object", "cached_at"
		from "kar_cache_record"
		order by "lsid" collate "C", "archive" collate "C"
		`,
	)
}

func (p *pgIndex) DeleteArchive(ctx context.Context, archive string) ([]lsid.LSID, error) {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(
		ctx,
		`delete from "kar_cache_record" where "archive" = $1 returning "lsid"`,
		archive,
	)
	if err != nil {
		return nil, translate(err)
	}
	deleted := []lsid.LSID{}
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			rows.Close()
			return nil, err
		}
		l, err := lsid.Parse(raw)
		if err != nil {
			rows.Close()
			return nil, err
		}
		deleted = append(deleted, l)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, translate(err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	sort.Slice(deleted, func(i, j int) bool { return deleted[i].Key() < deleted[j].Key() })
	return deleted, nil
}

func (p *pgIndex) Close() error {
	p.pool.Close()
	return nil
}
