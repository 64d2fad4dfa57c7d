// Copyright 2017 The Upspin Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package syncengine

import (
	"context"
	"testing"
	"time"

	"relaydrive.io/event"
	"relaydrive.io/index"
	"relaydrive.io/relay/memrelay"
	"relaydrive.io/signer/localsigner"
)

func setup(t *testing.T) (*Engine, *localsigner.Signer, *memrelay.Relay, *index.Index) {
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
	eng := New(s, s, r, idx)
	return eng, s, r, idx
}

func waitChange(t *testing.T, eng *Engine) Change {
	t.Helper()
	select {
	case c := <-eng.Changes():
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for change")
		return Change{}
	}
}

func TestIngestOwnFileEvent(t *testing.T) {
	eng, s, r, idx := setup(t)
	ctx := context.Background()
	if err := eng.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer eng.Stop()

	content := &event.FileContent{Type: "file", Hash: "h1", Path: "/a.txt", Size: 5}
	ev, err := event.BuildDrive(s, s, s.Pubkey(), content, time.Now().Unix())
	if err != nil {
		t.Fatal(err)
	}
	if err := r.Publish(ctx, ev); err != nil {
		t.Fatal(err)
	}

	got := waitChange(t, eng)
	if got.Type != Added || got.Path != "/a.txt" {
		t.Errorf("Change = %+v, want {Added /a.txt}", got)
	}

	rec, err := idx.Get(ctx, ev.ID)
	if err != nil {
		t.Fatalf("index.Get: %v", err)
	}
	if rec.Path() != "/a.txt" {
		t.Errorf("rec.Path() = %q, want /a.txt", rec.Path())
	}
}

func TestIngestIsIdempotent(t *testing.T) {
	eng, s, r, idx := setup(t)
	ctx := context.Background()
	if err := eng.Start(ctx); err != nil {
		t.Fatal(err)
	}
	defer eng.Stop()

	content := &event.FolderContent{Type: "folder", Path: "/docs"}
	ev, err := event.BuildDrive(s, s, s.Pubkey(), content, time.Now().Unix())
	if err != nil {
		t.Fatal(err)
	}
	if err := r.Publish(ctx, ev); err != nil {
		t.Fatal(err)
	}
	waitChange(t, eng)

	eng.ingest(ctx, ev) // Direct re-ingestion must be a silent no-op.
	select {
	case c := <-eng.Changes():
		t.Errorf("unexpected second change %+v", c)
	case <-time.After(100 * time.Millisecond):
	}
	rec, err := idx.Get(ctx, ev.ID)
	if err != nil {
		t.Fatal(err)
	}
	if rec.Path() != "/docs" {
		t.Errorf("rec.Path() = %q, want /docs", rec.Path())
	}
}

func TestIngestDeleteByOwner(t *testing.T) {
	eng, s, r, idx := setup(t)
	ctx := context.Background()
	if err := eng.Start(ctx); err != nil {
		t.Fatal(err)
	}
	defer eng.Stop()

	content := &event.FileContent{Type: "file", Hash: "h2", Path: "/b.txt", Size: 5}
	fileEv, err := event.BuildDrive(s, s, s.Pubkey(), content, time.Now().Unix())
	if err != nil {
		t.Fatal(err)
	}
	if err := r.Publish(ctx, fileEv); err != nil {
		t.Fatal(err)
	}
	waitChange(t, eng)

	delEv, err := event.BuildDelete(s, []string{fileEv.ID}, time.Now().Unix())
	if err != nil {
		t.Fatal(err)
	}
	if err := r.Publish(ctx, delEv); err != nil {
		t.Fatal(err)
	}
	got := waitChange(t, eng)
	if got.Type != Deleted || got.Path != "/b.txt" {
		t.Errorf("Change = %+v, want {Deleted /b.txt}", got)
	}
	if _, err := idx.Get(ctx, fileEv.ID); err == nil {
		t.Error("index.Get after delete: expected error")
	}
}

func TestIngestDeleteIgnoresWrongAuthor(t *testing.T) {
	eng, s, r, idx := setup(t)
	mallory, err := newOtherSigner(t)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	if err := eng.Start(ctx); err != nil {
		t.Fatal(err)
	}
	defer eng.Stop()

	content := &event.FileContent{Type: "file", Hash: "h3", Path: "/c.txt", Size: 5}
	fileEv, err := event.BuildDrive(s, s, s.Pubkey(), content, time.Now().Unix())
	if err != nil {
		t.Fatal(err)
	}
	if err := r.Publish(ctx, fileEv); err != nil {
		t.Fatal(err)
	}
	waitChange(t, eng)

	// A DELETE authored by someone else naming this event id must be
	// ignored: the event stays in the index.
	forgedDelete, err := event.BuildDelete(mallory, []string{fileEv.ID}, time.Now().Unix())
	if err != nil {
		t.Fatal(err)
	}
	// Publish directly via ingest since the forged delete's author has no
	// subscription filter matching it through the relay in this test.
	eng.ingest(ctx, forgedDelete)

	if _, err := idx.Get(ctx, fileEv.ID); err != nil {
		t.Errorf("index.Get after forged delete: %v, want record to remain", err)
	}
}

func newOtherSigner(t *testing.T) (*localsigner.Signer, error) {
	t.Helper()
	return localsigner.Generate()
}
