// Copyright 2016 The Upspin Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package drive

import (
	"bytes"
	"context"
	"testing"
	"time"

	"relaydrive.io/blob/memblob"
	"relaydrive.io/cryptofile"
	"relaydrive.io/drivepath"
	"relaydrive.io/event"
	"relaydrive.io/index"
	"relaydrive.io/relay/memrelay"
	"relaydrive.io/signer/localsigner"
	"relaydrive.io/syncengine"
)

func newTestDrive(t *testing.T) (*Drive, *memrelay.Relay) {
	t.Helper()
	s, err := localsigner.Generate()
	if err != nil {
		t.Fatal(err)
	}
	r := memrelay.New()
	t.Cleanup(func() { r.Close() })
	idx, err := index.Open(context.Background(), ":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { idx.Close() })
	eng := syncengine.New(s, s, r, idx)
	if err := eng.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { eng.Stop() })
	return New(s, s, r, memblob.New(), idx, eng), r
}

// drainChanges consumes n change notifications from eng. Drive operations
// write the index themselves and report each change through
// eng.NotifyLocal; when their own published events come back over the
// relay subscription, the engine finds them already indexed and reports
// nothing further.
func drainChanges(t *testing.T, eng *syncengine.Engine, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-eng.Changes():
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for change %d/%d", i+1, n)
		}
	}
}

func TestCreateFolderAndList(t *testing.T) {
	d, _ := newTestDrive(t)
	ctx := context.Background()

	if _, err := d.CreateFolder(ctx, drivepath.Path("/docs")); err != nil {
		t.Fatalf("CreateFolder: %v", err)
	}
	drainChanges(t, d.Engine, 1)

	items, err := d.List(ctx, drivepath.Root, nil, false)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(items) != 1 || items[0].Path != "/docs" || items[0].Type != "folder" {
		t.Errorf("List(/) = %+v, want one folder /docs", items)
	}

	// Re-creating the same folder is a silent no-op, not a duplicate.
	if _, err := d.CreateFolder(ctx, drivepath.Path("/docs")); err != nil {
		t.Fatalf("CreateFolder (repeat): %v", err)
	}
	items, err = d.List(ctx, drivepath.Root, nil, false)
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 1 {
		t.Errorf("List(/) after repeat CreateFolder = %d items, want 1", len(items))
	}
}

func TestUploadDownloadRoundTrip(t *testing.T) {
	d, _ := newTestDrive(t)
	ctx := context.Background()
	data := []byte("hello, drive")

	meta, err := d.UploadFile(ctx, data, drivepath.Path("/a.txt"), "text/plain", true)
	if err != nil {
		t.Fatalf("UploadFile: %v", err)
	}
	drainChanges(t, d.Engine, 1)

	if meta.Path != "/a.txt" || meta.Size != int64(len(data)) {
		t.Errorf("meta = %+v", meta)
	}
	key, err := cryptofile.DecodeKey(meta.DecryptionKey)
	if err != nil {
		t.Fatal(err)
	}
	nonce, err := cryptofile.DecodeNonce(meta.DecryptionNonce)
	if err != nil {
		t.Fatal(err)
	}
	got, err := d.DownloadFile(ctx, meta.Hash, key, nonce)
	if err != nil {
		t.Fatalf("DownloadFile: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Errorf("DownloadFile = %q, want %q", got, data)
	}
}

func TestFileVersionsNewestFirst(t *testing.T) {
	d, _ := newTestDrive(t)
	ctx := context.Background()

	if _, err := d.UploadFile(ctx, []byte("v1"), drivepath.Path("/v.txt"), "", false); err != nil {
		t.Fatal(err)
	}
	drainChanges(t, d.Engine, 1)
	time.Sleep(1100 * time.Millisecond) // Ensure a distinct created_at second.
	if _, err := d.UploadFile(ctx, []byte("v2 longer"), drivepath.Path("/v.txt"), "", false); err != nil {
		t.Fatal(err)
	}
	drainChanges(t, d.Engine, 1)

	versions, err := d.GetFileVersions(ctx, drivepath.Path("/v.txt"))
	if err != nil {
		t.Fatalf("GetFileVersions: %v", err)
	}
	if len(versions) != 2 {
		t.Fatalf("GetFileVersions = %d versions, want 2", len(versions))
	}
	if versions[0].CreatedAt < versions[1].CreatedAt {
		t.Errorf("versions not newest-first: %+v", versions)
	}
}

// TestCurrentVersionsTieBreaksByID constructs two records for the same
// path with equal created_at and differing id, and checks that the one
// with the lexicographically greatest id wins, per the documented
// (created_at desc, id desc) tie-break rule.
func TestCurrentVersionsTieBreaksByID(t *testing.T) {
	older := &index.Record{
		Event: event.Event{ID: "a-first", CreatedAt: 100, Kind: event.KindDrive},
		DecryptedContent: &event.FileContent{
			Type: "file", Hash: "h1", Path: "/v.txt", Size: 2,
		},
	}
	newerByID := &index.Record{
		Event: event.Event{ID: "z-second", CreatedAt: 100, Kind: event.KindDrive},
		DecryptedContent: &event.FileContent{
			Type: "file", Hash: "h2", Path: "/v.txt", Size: 9,
		},
	}

	items := currentVersions([]*index.Record{older, newerByID})
	if len(items) != 1 {
		t.Fatalf("len(items) = %d, want 1", len(items))
	}
	if items[0].EventID != "z-second" {
		t.Errorf("currentVersions picked EventID %q, want %q (greatest id on a created_at tie)", items[0].EventID, "z-second")
	}

	// Order of insertion must not matter.
	items = currentVersions([]*index.Record{newerByID, older})
	if len(items) != 1 || items[0].EventID != "z-second" {
		t.Errorf("currentVersions order-dependent result: got %+v", items)
	}
}

func TestDeleteByPathRemovesFolderAndChildren(t *testing.T) {
	d, _ := newTestDrive(t)
	ctx := context.Background()

	if _, err := d.CreateFolder(ctx, drivepath.Path("/docs")); err != nil {
		t.Fatal(err)
	}
	drainChanges(t, d.Engine, 1)
	if _, err := d.UploadFile(ctx, []byte("x"), drivepath.Path("/docs/a.txt"), "", false); err != nil {
		t.Fatal(err)
	}
	drainChanges(t, d.Engine, 1)

	if err := d.DeleteByPath(ctx, drivepath.Path("/docs")); err != nil {
		t.Fatalf("DeleteByPath: %v", err)
	}

	items, err := d.List(ctx, drivepath.Root, nil, true)
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 0 {
		t.Errorf("List after DeleteByPath(/docs) = %+v, want empty", items)
	}
}

func TestMoveRenamesFile(t *testing.T) {
	d, _ := newTestDrive(t)
	ctx := context.Background()

	if _, err := d.UploadFile(ctx, []byte("data"), drivepath.Path("/old.txt"), "", false); err != nil {
		t.Fatal(err)
	}
	drainChanges(t, d.Engine, 1)

	if err := d.Move(ctx, drivepath.Path("/old.txt"), drivepath.Path("/new.txt")); err != nil {
		t.Fatalf("Move: %v", err)
	}

	items, err := d.List(ctx, drivepath.Root, nil, false)
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 1 || items[0].Path != "/new.txt" {
		t.Errorf("List after Move = %+v, want single item /new.txt", items)
	}
}

func TestCopyLeavesSourceIntact(t *testing.T) {
	d, _ := newTestDrive(t)
	ctx := context.Background()

	if _, err := d.UploadFile(ctx, []byte("data"), drivepath.Path("/src.txt"), "", false); err != nil {
		t.Fatal(err)
	}
	drainChanges(t, d.Engine, 1)

	if err := d.Copy(ctx, drivepath.Path("/src.txt"), drivepath.Path("/dst.txt")); err != nil {
		t.Fatalf("Copy: %v", err)
	}

	items, err := d.List(ctx, drivepath.Root, nil, false)
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 2 {
		t.Fatalf("List after Copy = %+v, want 2 items", items)
	}
}

func TestSearchMatchesPathAndFileType(t *testing.T) {
	d, _ := newTestDrive(t)
	ctx := context.Background()

	if _, err := d.UploadFile(ctx, []byte("x"), drivepath.Path("/report.pdf"), "application/pdf", false); err != nil {
		t.Fatal(err)
	}
	drainChanges(t, d.Engine, 1)
	if _, err := d.UploadFile(ctx, []byte("y"), drivepath.Path("/notes.txt"), "text/plain", false); err != nil {
		t.Fatal(err)
	}
	drainChanges(t, d.Engine, 1)

	got, err := d.Search(ctx, "report")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(got) != 1 || got[0].Path != "/report.pdf" {
		t.Errorf("Search(report) = %+v", got)
	}

	got, err = d.Search(ctx, "pdf")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Path != "/report.pdf" {
		t.Errorf("Search(pdf) = %+v", got)
	}
}

func TestShareWithUserAndAccess(t *testing.T) {
	author, _ := newTestDrive(t)
	ctx := context.Background()

	meta, err := author.UploadFile(ctx, []byte("shared content"), drivepath.Path("/shared.txt"), "", false)
	if err != nil {
		t.Fatal(err)
	}
	drainChanges(t, author.Engine, 1)

	recipient, err := localsigner.Generate()
	if err != nil {
		t.Fatal(err)
	}

	item, err := author.ShareWithUser(ctx, meta.EventID, recipient.Pubkey())
	if err != nil {
		t.Fatalf("ShareWithUser: %v", err)
	}
	if item.SharedWith != recipient.Pubkey() {
		t.Errorf("item.SharedWith = %q, want %q", item.SharedWith, recipient.Pubkey())
	}
}

func TestGenerateAndAccessShareLink(t *testing.T) {
	author, r := newTestDrive(t)
	ctx := context.Background()

	meta, err := author.UploadFile(ctx, []byte("via link"), drivepath.Path("/link.txt"), "", false)
	if err != nil {
		t.Fatal(err)
	}
	drainChanges(t, author.Engine, 1)

	link, err := author.GenerateShareLink(ctx, meta.EventID, "", "https://example.test", nil)
	if err != nil {
		t.Fatalf("GenerateShareLink: %v", err)
	}
	drainChanges(t, author.Engine, 1)

	sfa, err := ParseShareLink(link)
	if err != nil {
		t.Fatalf("ParseShareLink: %v", err)
	}
	if sfa.IsPasswordProtected {
		t.Error("IsPasswordProtected = true, want false for plain nsec link")
	}

	skShare, err := DecodeShareKey(sfa.EncodedPrivateKey, "")
	if err != nil {
		t.Fatalf("DecodeShareKey: %v", err)
	}

	got, err := AccessSharedFile(ctx, r, sfa.Nevent, skShare)
	if err != nil {
		t.Fatalf("AccessSharedFile: %v", err)
	}
	if got.Hash != meta.Hash || got.Path != meta.Path {
		t.Errorf("AccessSharedFile = %+v, want hash=%s path=%s", got, meta.Hash, meta.Path)
	}
}

func TestGenerateAndAccessShareLinkPasswordProtected(t *testing.T) {
	author, r := newTestDrive(t)
	ctx := context.Background()

	meta, err := author.UploadFile(ctx, []byte("locked"), drivepath.Path("/locked.txt"), "", false)
	if err != nil {
		t.Fatal(err)
	}
	drainChanges(t, author.Engine, 1)

	link, err := author.GenerateShareLink(ctx, meta.EventID, "hunter2", "https://example.test", nil)
	if err != nil {
		t.Fatalf("GenerateShareLink: %v", err)
	}
	drainChanges(t, author.Engine, 1)

	sfa, err := ParseShareLink(link)
	if err != nil {
		t.Fatal(err)
	}
	if !sfa.IsPasswordProtected {
		t.Error("IsPasswordProtected = false, want true for ncryptsec link")
	}

	if _, err := DecodeShareKey(sfa.EncodedPrivateKey, "wrong"); err == nil {
		t.Error("DecodeShareKey with wrong password: expected error")
	}
	skShare, err := DecodeShareKey(sfa.EncodedPrivateKey, "hunter2")
	if err != nil {
		t.Fatalf("DecodeShareKey: %v", err)
	}
	got, err := AccessSharedFile(ctx, r, sfa.Nevent, skShare)
	if err != nil {
		t.Fatalf("AccessSharedFile: %v", err)
	}
	if got.Path != meta.Path {
		t.Errorf("AccessSharedFile path = %q, want %q", got.Path, meta.Path)
	}
}

func TestAccessSharedFileWrongKeyIsUnauthorized(t *testing.T) {
	author, r := newTestDrive(t)
	ctx := context.Background()

	meta, err := author.UploadFile(ctx, []byte("secret"), drivepath.Path("/secret.txt"), "", false)
	if err != nil {
		t.Fatal(err)
	}
	drainChanges(t, author.Engine, 1)

	link, err := author.GenerateShareLink(ctx, meta.EventID, "", "https://example.test", nil)
	if err != nil {
		t.Fatal(err)
	}
	drainChanges(t, author.Engine, 1)
	sfa, err := ParseShareLink(link)
	if err != nil {
		t.Fatal(err)
	}

	intruder, err := localsigner.Generate()
	if err != nil {
		t.Fatal(err)
	}
	if _, err := AccessSharedFile(ctx, r, sfa.Nevent, intruder.Bytes()); err == nil {
		t.Error("AccessSharedFile with wrong key: expected error")
	}
}

func TestFolderSize(t *testing.T) {
	items := []DriveItem{
		{Path: "/docs/a.txt", Type: "file", Size: 10},
		{Path: "/docs/sub/b.txt", Type: "file", Size: 20},
		{Path: "/other.txt", Type: "file", Size: 5},
		{Path: "/docs", Type: "folder"},
	}
	if got := FolderSize(items, "/docs"); got != 30 {
		t.Errorf("FolderSize(/docs) = %d, want 30", got)
	}
}
