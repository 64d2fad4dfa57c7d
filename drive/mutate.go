// Copyright 2016 The Upspin Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package drive

import (
	"context"
	"encoding/base64"
	"strings"
	"time"

	"relaydrive.io/cryptofile"
	"relaydrive.io/drivepath"
	"relaydrive.io/errors"
	"relaydrive.io/event"
	"relaydrive.io/index"
	"relaydrive.io/syncengine"
	"relaydrive.io/valid"
)

func now() int64 { return time.Now().Unix() }

// CreateFolder creates path as a folder if no accessible folder already
// exists there; it is a silent no-op if one does.
func (d *Drive) CreateFolder(ctx context.Context, path drivepath.Path) (*DriveItem, error) {
	const op = "drive.CreateFolder"
	path = drivepath.Clean(path)
	me := d.me()

	existing, err := d.Index.Query(ctx, index.Query{
		Path: string(path), HasPath: true,
		Predicate: func(r *index.Record) bool { return accessible(r, me) && r.ContentType() == "folder" },
		Limit:     1,
	})
	if err != nil {
		return nil, errors.E(op, err)
	}
	if len(existing) > 0 {
		item := toItem(existing[0])
		return &item, nil
	}

	content := &event.FolderContent{Type: "folder", Path: string(path)}
	ev, err := event.BuildDrive(d.Signer, d.Seal, me, content, now())
	if err != nil {
		return nil, errors.E(op, errors.CryptoFailed, err)
	}
	rec := &index.Record{Event: *ev, DecryptedContent: content}
	if err := d.Index.Put(ctx, rec); err != nil {
		return nil, errors.E(op, err)
	}
	if err := d.Relay.Publish(ctx, ev); err != nil {
		return nil, errors.E(op, errors.NetworkFailed, err)
	}
	d.Engine.NotifyLocal(syncengine.Change{Type: syncengine.Added, Path: string(path)})
	item := toItem(rec)
	return &item, nil
}

// UploadFile optionally encrypts data, stores it in the blob network, and
// publishes a file event describing it.
func (d *Drive) UploadFile(ctx context.Context, data []byte, path drivepath.Path, mimeType string, encrypt bool) (*FileMetadata, error) {
	const op = "drive.UploadFile"
	path = drivepath.Clean(path)
	me := d.me()

	toStore := data
	var key, nonce []byte
	if encrypt {
		var err error
		toStore, key, nonce, err = cryptofile.Encrypt(data)
		if err != nil {
			return nil, errors.E(op, errors.CryptoFailed, err)
		}
	}
	hash, err := d.Blob.Put(ctx, toStore)
	if err != nil {
		return nil, errors.E(op, errors.NetworkFailed, err)
	}

	content := &event.FileContent{
		Type: "file",
		Hash: hash,
		Path: string(path),
		Size: int64(len(data)),
	}
	if mimeType != "" {
		content.FileType = mimeType
	}
	if encrypt {
		content.EncryptionAlgorithm = cryptofile.Algorithm
		content.DecryptionKey = base64.StdEncoding.EncodeToString(key)
		content.DecryptionNonce = base64.StdEncoding.EncodeToString(nonce)
	}

	ev, err := event.BuildDrive(d.Signer, d.Seal, me, content, now())
	if err != nil {
		return nil, errors.E(op, errors.CryptoFailed, err)
	}
	rec := &index.Record{Event: *ev, DecryptedContent: content}
	if err := d.Index.Put(ctx, rec); err != nil {
		return nil, errors.E(op, err)
	}
	if err := d.Relay.Publish(ctx, ev); err != nil {
		return nil, errors.E(op, errors.NetworkFailed, err)
	}
	d.Engine.NotifyLocal(syncengine.Change{Type: syncengine.Added, Path: string(path)})

	return contentToMetadata(ev.ID, content), nil
}

// FileMetadata is the decrypted description of one file version, as
// returned by UploadFile and AccessSharedFile.
type FileMetadata struct {
	EventID             string
	Path                string
	Hash                string
	Size                int64
	FileType            string
	EncryptionAlgorithm string
	DecryptionKey       string
	DecryptionNonce     string
}

func contentToMetadata(eventID string, c *event.FileContent) *FileMetadata {
	return &FileMetadata{
		EventID:             eventID,
		Path:                c.Path,
		Hash:                c.Hash,
		Size:                c.Size,
		FileType:            c.FileType,
		EncryptionAlgorithm: c.EncryptionAlgorithm,
		DecryptionKey:       c.DecryptionKey,
		DecryptionNonce:     c.DecryptionNonce,
	}
}

// DownloadFile fetches the blob stored under hash and, if key and nonce
// are non-nil, AES-GCM-decrypts it.
func (d *Drive) DownloadFile(ctx context.Context, hash string, key, nonce []byte) ([]byte, error) {
	const op = "drive.DownloadFile"
	if err := valid.Hash(hash); err != nil {
		return nil, errors.E(op, err)
	}
	data, err := d.Blob.Get(ctx, hash)
	if err != nil {
		return nil, errors.E(op, errors.NetworkFailed, err)
	}
	if key == nil && nonce == nil {
		return data, nil
	}
	if err := cryptofile.ValidateKey(key); err != nil {
		return nil, errors.E(op, err)
	}
	if err := cryptofile.ValidateNonce(nonce); err != nil {
		return nil, errors.E(op, err)
	}
	plain, err := cryptofile.Decrypt(data, key, nonce)
	if err != nil {
		return nil, errors.E(op, errors.CryptoFailed, err)
	}
	return plain, nil
}

// DeleteByID removes eventID from the index and broadcasts a tombstone
// for it. It refuses unless eventID was authored by me.
func (d *Drive) DeleteByID(ctx context.Context, eventID string) error {
	const op = "drive.DeleteByID"
	_, err := d.deleteByID(ctx, eventID, true)
	if err != nil {
		return errors.E(op, err)
	}
	return nil
}

// deleteByID deletes eventID from the index and broadcasts its tombstone,
// returning the deleted record's path. If emit is false, no Change is
// reported — used by callers that will report a single, coarser change of
// their own (DeleteByPath, Move).
func (d *Drive) deleteByID(ctx context.Context, eventID string, emit bool) (string, error) {
	const op = "drive.deleteByID"
	me := d.me()
	rec, err := d.Index.Get(ctx, eventID)
	if err != nil {
		return "", errors.E(op, err)
	}
	if rec.Event.Pubkey != me {
		return "", errors.E(op, errors.Unauthorized, errors.Errorf("event %s not authored by me", eventID))
	}
	if err := d.Index.Delete(ctx, eventID); err != nil {
		return "", errors.E(op, err)
	}
	delEv, err := event.BuildDelete(d.Signer, []string{eventID}, now())
	if err != nil {
		return "", errors.E(op, errors.CryptoFailed, err)
	}
	if err := d.Relay.Publish(ctx, delEv); err != nil {
		return "", errors.E(op, errors.NetworkFailed, err)
	}
	if emit {
		d.Engine.NotifyLocal(syncengine.Change{Type: syncengine.Deleted, Path: rec.Path()})
	}
	return rec.Path(), nil
}

// DeleteByPath removes every version of path authored by me. If path
// names a folder, every descendant authored by me is deleted first.
func (d *Drive) DeleteByPath(ctx context.Context, path drivepath.Path) error {
	const op = "drive.DeleteByPath"
	path = drivepath.Clean(path)
	me := d.me()

	roots, err := d.Index.Query(ctx, index.Query{
		Pubkey: me, HasPubkey: true,
		Path: string(path), HasPath: true,
	})
	if err != nil {
		return errors.E(op, err)
	}
	if len(roots) == 0 {
		return errors.E(op, errors.NotFound, errors.Errorf("no event at %s authored by me", path))
	}

	isFolder := false
	for _, r := range roots {
		if r.ContentType() == "folder" {
			isFolder = true
			break
		}
	}
	if isFolder {
		prefix := string(path) + "/"
		children, err := d.Index.Query(ctx, index.Query{
			Pubkey: me, HasPubkey: true,
			Predicate: func(r *index.Record) bool { return strings.HasPrefix(r.Path(), prefix) },
		})
		if err != nil {
			return errors.E(op, err)
		}
		for _, c := range children {
			if _, err := d.deleteByID(ctx, c.Event.ID, false); err != nil {
				return errors.E(op, err)
			}
		}
	}
	for _, r := range roots {
		if _, err := d.deleteByID(ctx, r.Event.ID, false); err != nil {
			return errors.E(op, err)
		}
	}
	d.Engine.NotifyLocal(syncengine.Change{Type: syncengine.Deleted, Path: string(path)})
	return nil
}

// Move renames every version of old authored by me to new, recursing into
// children if old is a folder. It emits Deleted on old then Added on new.
func (d *Drive) Move(ctx context.Context, old, new drivepath.Path) error {
	const op = "drive.Move"
	if _, err := d.moveOrCopy(ctx, old, new, true); err != nil {
		return errors.E(op, err)
	}
	d.Engine.NotifyLocal(syncengine.Change{Type: syncengine.Deleted, Path: string(drivepath.Clean(old))})
	d.Engine.NotifyLocal(syncengine.Change{Type: syncengine.Added, Path: string(drivepath.Clean(new))})
	return nil
}

// Copy duplicates every version of src authored by me under dst, leaving
// src untouched, recursing into children if src is a folder.
func (d *Drive) Copy(ctx context.Context, src, dst drivepath.Path) error {
	const op = "drive.Copy"
	if _, err := d.moveOrCopy(ctx, src, dst, false); err != nil {
		return errors.E(op, err)
	}
	d.Engine.NotifyLocal(syncengine.Change{Type: syncengine.Added, Path: string(drivepath.Clean(dst))})
	return nil
}

// moveOrCopy rebuilds every version of old/src authored by me under
// new/dst, optionally deleting the originals, and recurses into children.
func (d *Drive) moveOrCopy(ctx context.Context, oldPath, newPath drivepath.Path, deleteOld bool) ([]string, error) {
	const op = "drive.moveOrCopy"
	oldPath, newPath = drivepath.Clean(oldPath), drivepath.Clean(newPath)
	me := d.me()

	versions, err := d.Index.Query(ctx, index.Query{
		Pubkey: me, HasPubkey: true,
		Path: string(oldPath), HasPath: true,
	})
	if err != nil {
		return nil, errors.E(op, err)
	}
	if len(versions) == 0 {
		return nil, errors.E(op, errors.NotFound, errors.Errorf("no event at %s authored by me", oldPath))
	}

	isFolder := false
	var newIDs []string
	for _, r := range versions {
		clone := cloneContent(r.DecryptedContent, string(newPath))
		ev, err := event.BuildDrive(d.Signer, d.Seal, me, clone, now())
		if err != nil {
			return nil, errors.E(op, errors.CryptoFailed, err)
		}
		newRec := &index.Record{Event: *ev, DecryptedContent: clone}
		if err := d.Index.Put(ctx, newRec); err != nil {
			return nil, errors.E(op, err)
		}
		if err := d.Relay.Publish(ctx, ev); err != nil {
			return nil, errors.E(op, errors.NetworkFailed, err)
		}
		newIDs = append(newIDs, ev.ID)
		if r.ContentType() == "folder" {
			isFolder = true
		}
		if deleteOld {
			if _, err := d.deleteByID(ctx, r.Event.ID, false); err != nil {
				return nil, errors.E(op, err)
			}
		}
	}

	if isFolder {
		prefix := string(oldPath) + "/"
		children, err := d.Index.Query(ctx, index.Query{
			Pubkey: me, HasPubkey: true,
			Predicate: func(r *index.Record) bool { return strings.HasPrefix(r.Path(), prefix) },
		})
		if err != nil {
			return nil, errors.E(op, err)
		}
		seen := make(map[string]bool)
		for _, c := range children {
			childOld := drivepath.Path(c.Path())
			if seen[string(childOld)] {
				continue
			}
			seen[string(childOld)] = true
			rest := strings.TrimPrefix(c.Path(), prefix)
			childNew := drivepath.Join(newPath, rest)
			ids, err := d.moveOrCopy(ctx, childOld, childNew, deleteOld)
			if err != nil {
				return nil, errors.E(op, err)
			}
			newIDs = append(newIDs, ids...)
		}
	}
	return newIDs, nil
}

func cloneContent(content interface{}, newPath string) interface{} {
	switch c := content.(type) {
	case *event.FileContent:
		cp := *c
		cp.Path = newPath
		return &cp
	case *event.FolderContent:
		cp := *c
		cp.Path = newPath
		return &cp
	}
	return content
}
