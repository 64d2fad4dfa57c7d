// Copyright 2016 The Upspin Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package drive implements the end-user operations of a personal,
// end-to-end encrypted drive: listing, uploading, downloading, deleting,
// moving, copying, searching, and sharing items whose metadata is
// projected from the local index and whose content lives in the blob
// network. A Drive is an explicit handle over an identity, a relay
// client, a blob client, an index and a sync engine — no package-level
// globals, mirroring the teacher's Context/Client split.
package drive // import "relaydrive.io/drive"

import (
	"context"
	"sort"
	"strings"

	"relaydrive.io/blob"
	"relaydrive.io/drivepath"
	"relaydrive.io/errors"
	"relaydrive.io/event"
	"relaydrive.io/index"
	"relaydrive.io/relay"
	"relaydrive.io/signer"
	"relaydrive.io/syncengine"
)

// Drive is a handle to one account's view of the drive: its identity, its
// transport clients, its local index, and its sync engine.
type Drive struct {
	Signer signer.Signer
	Seal   signer.Sealer
	Relay  relay.Client
	Blob   blob.Client
	Index  *index.Index
	Engine *syncengine.Engine
}

// New returns a Drive handle over the given collaborators. The caller is
// responsible for having already called Engine.Start.
func New(s signer.Signer, seal signer.Sealer, rc relay.Client, bc blob.Client, idx *index.Index, eng *syncengine.Engine) *Drive {
	return &Drive{Signer: s, Seal: seal, Relay: rc, Blob: bc, Index: idx, Engine: eng}
}

func (d *Drive) me() string { return d.Signer.Pubkey() }

// DriveItem is the public, current-version view of one index record.
type DriveItem struct {
	EventID    string
	Path       string
	Type       string // "file" or "folder"
	Hash       string
	Size       int64
	FileType   string
	CreatedAt  int64
	Author     string
	SharedWith string
}

func toItem(rec *index.Record) DriveItem {
	item := DriveItem{
		EventID:    rec.Event.ID,
		Path:       rec.Path(),
		Type:       rec.ContentType(),
		CreatedAt:  rec.Event.CreatedAt,
		Author:     rec.Event.Pubkey,
		SharedWith: rec.SharedWith,
	}
	if fc, ok := rec.DecryptedContent.(*event.FileContent); ok {
		item.Hash = fc.Hash
		item.Size = fc.Size
		item.FileType = fc.FileType
	}
	return item
}

// accessible reports whether rec is visible to me: authored by me, or
// shared to me via a p-tag.
func accessible(rec *index.Record, me string) bool {
	return rec.Event.Pubkey == me || rec.Event.HasPTag(me)
}

// currentVersions reduces records to one per path, keeping the one with
// the greatest created_at, breaking ties by the greatest event id.
func currentVersions(records []*index.Record) []DriveItem {
	best := make(map[string]*index.Record)
	for _, r := range records {
		p := r.Path()
		cur, ok := best[p]
		if !ok || r.Event.CreatedAt > cur.Event.CreatedAt ||
			(r.Event.CreatedAt == cur.Event.CreatedAt && r.Event.ID > cur.Event.ID) {
			best[p] = r
		}
	}
	items := make([]DriveItem, 0, len(best))
	for _, r := range best {
		items = append(items, toItem(r))
	}
	return items
}

// List scans the index for items visible to me within path: items equal
// to path, or (if recursive) within path, or (otherwise) direct children
// of path. If mimeTypes is non-empty, results are restricted to files
// whose file-type case-insensitively matches one of them.
func (d *Drive) List(ctx context.Context, path drivepath.Path, mimeTypes []string, recursive bool) ([]DriveItem, error) {
	const op = "drive.List"
	path = drivepath.Clean(path)
	me := d.me()

	wantTypes := make(map[string]bool, len(mimeTypes))
	for _, mt := range mimeTypes {
		wantTypes[strings.ToLower(mt)] = true
	}

	records, err := d.Index.Query(ctx, index.Query{
		Predicate: func(r *index.Record) bool {
			if !accessible(r, me) {
				return false
			}
			itemPath := drivepath.Path(r.Path())
			inScope := itemPath == path || (recursive && drivepath.IsWithin(path, itemPath)) || (!recursive && drivepath.Dir(itemPath) == path)
			if !inScope {
				return false
			}
			if len(wantTypes) == 0 {
				return true
			}
			fc, ok := r.DecryptedContent.(*event.FileContent)
			if !ok {
				return false
			}
			return wantTypes[strings.ToLower(fc.FileType)]
		},
	})
	if err != nil {
		return nil, errors.E(op, err)
	}
	return currentVersions(records), nil
}

// GetFileVersions returns every version of the file at path visible to
// me, newest first.
func (d *Drive) GetFileVersions(ctx context.Context, path drivepath.Path) ([]DriveItem, error) {
	const op = "drive.GetFileVersions"
	path = drivepath.Clean(path)
	me := d.me()
	records, err := d.Index.Query(ctx, index.Query{
		Path: string(path), HasPath: true,
		DescByCreatedAt: true,
		Predicate: func(r *index.Record) bool {
			return accessible(r, me) && r.ContentType() == "file"
		},
	})
	if err != nil {
		return nil, errors.E(op, err)
	}
	items := make([]DriveItem, len(records))
	for i, r := range records {
		items[i] = toItem(r)
	}
	return items, nil
}

// Search matches query (case-insensitive) against the basename, full
// path, and (for files) file-type of every accessible item, returning
// current versions sorted ascending by path.
func (d *Drive) Search(ctx context.Context, query string) ([]DriveItem, error) {
	const op = "drive.Search"
	me := d.me()
	q := strings.ToLower(query)
	records, err := d.Index.Query(ctx, index.Query{
		Predicate: func(r *index.Record) bool {
			if !accessible(r, me) {
				return false
			}
			p := r.Path()
			if strings.Contains(strings.ToLower(p), q) {
				return true
			}
			if strings.Contains(strings.ToLower(drivepath.Base(drivepath.Path(p))), q) {
				return true
			}
			if fc, ok := r.DecryptedContent.(*event.FileContent); ok {
				return strings.Contains(strings.ToLower(fc.FileType), q)
			}
			return false
		},
	})
	if err != nil {
		return nil, errors.E(op, err)
	}
	items := currentVersions(records)
	sort.Slice(items, func(i, j int) bool { return items[i].Path < items[j].Path })
	return items, nil
}
