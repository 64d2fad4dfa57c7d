// Copyright 2016 The Upspin Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package index implements the local, durable projection of drive events:
// a single table, drive_events, keyed by event id and queried by a small
// set of equality filters plus an arbitrary in-process predicate. The
// sync engine writes ingested events; drive operations read it and also
// write the records of their own changes directly.
package index

import (
	"context"
	"database/sql"
	"embed"
	"io/fs"
	"sort"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	"relaydrive.io/cache"
	"relaydrive.io/errors"
	"relaydrive.io/log"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// decodeCacheSize bounds the number of decoded records Index keeps ready
// without re-parsing record_json, trading memory for avoiding JSON
// unmarshalling on repeated Get calls for the same hot events (share
// access checks, repeated DownloadFile calls against the same record).
const decodeCacheSize = 256

// Index is a handle to one account's local event projection. An Index is
// safe for concurrent use by multiple goroutines.
type Index struct {
	db      *sql.DB
	decoded *cache.LRU
}

// Open opens (creating if necessary) the sqlite database at dsn and brings
// its schema up to date. Use ":memory:" for a private, ephemeral index.
func Open(ctx context.Context, dsn string) (*Index, error) {
	const op = "index.Open"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errors.E(op, errors.Other, err)
	}
	db.SetMaxOpenConns(1) // modernc.org/sqlite serializes writers; one connection avoids SQLITE_BUSY.

	sub, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return nil, errors.E(op, errors.Other, err)
	}
	provider, err := goose.NewProvider(goose.DialectSQLite3, db, sub)
	if err != nil {
		db.Close()
		return nil, errors.E(op, errors.Other, err)
	}
	results, err := provider.Up(ctx)
	if err != nil {
		db.Close()
		return nil, errors.E(op, errors.Other, err)
	}
	for _, r := range results {
		log.Debug.Printf("index: applied migration %s in %s", r.Source.Path, r.Duration)
	}
	return &Index{db: db, decoded: cache.NewLRU(decodeCacheSize)}, nil
}

// Close releases the index's database handle.
func (idx *Index) Close() error {
	return idx.db.Close()
}

// Put upserts rec, keyed by rec.Event.ID.
func (idx *Index) Put(ctx context.Context, rec *Record) error {
	const op = "index.Put"
	data, err := marshalRecord(rec)
	if err != nil {
		return errors.E(op, err)
	}
	_, err = idx.db.ExecContext(ctx, `
		INSERT INTO drive_events (id, pubkey, created_at, content_type, path, record_json)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			pubkey=excluded.pubkey,
			created_at=excluded.created_at,
			content_type=excluded.content_type,
			path=excluded.path,
			record_json=excluded.record_json
	`, rec.Event.ID, rec.Event.Pubkey, rec.Event.CreatedAt, rec.ContentType(), rec.Path(), data)
	if err != nil {
		return errors.E(op, errors.Other, err)
	}
	idx.decoded.Add(rec.Event.ID, rec)
	return nil
}

// Get returns the record stored under id, or errors.NotFound.
func (idx *Index) Get(ctx context.Context, id string) (*Record, error) {
	const op = "index.Get"
	if v, ok := idx.decoded.Get(id); ok {
		return v.(*Record), nil
	}
	row := idx.db.QueryRowContext(ctx, `SELECT record_json FROM drive_events WHERE id = ?`, id)
	var data []byte
	if err := row.Scan(&data); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.E(op, errors.NotFound, errors.Errorf("no event %s", id))
		}
		return nil, errors.E(op, errors.Other, err)
	}
	rec, err := unmarshalRecord(data)
	if err != nil {
		return nil, errors.E(op, err)
	}
	idx.decoded.Add(id, rec)
	return rec, nil
}

// Delete removes the record stored under id. Deleting an absent id is not
// an error: callers that discover a tombstone for an unseen target rely on
// this to be idempotent.
func (idx *Index) Delete(ctx context.Context, id string) error {
	const op = "index.Delete"
	if _, err := idx.db.ExecContext(ctx, `DELETE FROM drive_events WHERE id = ?`, id); err != nil {
		return errors.E(op, errors.Other, err)
	}
	idx.decoded.Remove(id)
	return nil
}

// Query describes a composable read over the index: zero or more equality
// filters narrow the SQL scan, then an optional Predicate is applied in
// process to every candidate record (used for tag scans and path-prefix
// scans that the schema does not index directly).
type Query struct {
	Pubkey          string
	HasPubkey       bool
	ContentType     string
	HasContentType  bool
	Path            string
	HasPath         bool
	Predicate       func(*Record) bool
	DescByCreatedAt bool
	Limit           int
}

// Query runs q against the index and returns matching records.
func (idx *Index) Query(ctx context.Context, q Query) ([]*Record, error) {
	const op = "index.Query"
	sqlStr := `SELECT record_json FROM drive_events WHERE 1=1`
	var args []interface{}
	if q.HasPubkey {
		sqlStr += ` AND pubkey = ?`
		args = append(args, q.Pubkey)
	}
	if q.HasContentType {
		sqlStr += ` AND content_type = ?`
		args = append(args, q.ContentType)
	}
	if q.HasPath {
		sqlStr += ` AND path = ?`
		args = append(args, q.Path)
	}
	sqlStr += ` ORDER BY created_at DESC, id DESC`

	rows, err := idx.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, errors.E(op, errors.Other, err)
	}
	defer rows.Close()

	var out []*Record
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, errors.E(op, errors.Other, err)
		}
		rec, err := unmarshalRecord(data)
		if err != nil {
			return nil, errors.E(op, err)
		}
		idx.decoded.Add(rec.Event.ID, rec)
		if q.Predicate != nil && !q.Predicate(rec) {
			continue
		}
		out = append(out, rec)
		if q.Limit > 0 && !q.DescByCreatedAt && len(out) >= q.Limit {
			break
		}
	}
	if err := rows.Err(); err != nil {
		return nil, errors.E(op, errors.Other, err)
	}
	if q.DescByCreatedAt {
		sort.SliceStable(out, func(i, j int) bool {
			if out[i].Event.CreatedAt != out[j].Event.CreatedAt {
				return out[i].Event.CreatedAt > out[j].Event.CreatedAt
			}
			return out[i].Event.ID > out[j].Event.ID
		})
		if q.Limit > 0 && len(out) > q.Limit {
			out = out[:q.Limit]
		}
	}
	return out, nil
}

// Scan returns every record in the index, newest created_at first (ties
// by descending id): a Query with no filters.
func (idx *Index) Scan(ctx context.Context) ([]*Record, error) {
	return idx.Query(ctx, Query{})
}

// Watermark returns the highest created_at currently stored, or 0 if the
// index is empty. It is the only cursor state the sync engine persists.
func (idx *Index) Watermark(ctx context.Context) (int64, error) {
	const op = "index.Watermark"
	row := idx.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(created_at), 0) FROM drive_events`)
	var wm int64
	if err := row.Scan(&wm); err != nil {
		return 0, errors.E(op, errors.Other, err)
	}
	return wm, nil
}
