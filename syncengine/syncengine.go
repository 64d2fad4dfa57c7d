// Copyright 2017 The Upspin Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package syncengine keeps the local index in step with the relay
// network: a single subscription carrying two unioned filters (the
// account's own events, and events shared into it) drives an idempotent
// ingestion loop that projects decrypted DRIVE events and applies DELETE
// tombstones.
package syncengine // import "relaydrive.io/syncengine"

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"relaydrive.io/errors"
	"relaydrive.io/event"
	"relaydrive.io/index"
	"relaydrive.io/log"
	"relaydrive.io/relay"
	"relaydrive.io/signer"
)

// State is a point in the engine's lifecycle.
type State int

// The engine's states, per the design's Idle → Subscribing → Live ⇄
// Reconnecting → Stopped state machine.
const (
	Idle State = iota
	Subscribing
	Live
	Reconnecting
	Stopped
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Subscribing:
		return "subscribing"
	case Live:
		return "live"
	case Reconnecting:
		return "reconnecting"
	case Stopped:
		return "stopped"
	}
	return "unknown"
}

// ChangeType classifies a Change emitted by the engine.
type ChangeType string

// The kinds of change the engine reports to callers.
const (
	Added   ChangeType = "added"
	Deleted ChangeType = "deleted"
	Shared  ChangeType = "shared"
)

// Change describes one observed effect of ingesting an event.
type Change struct {
	Type ChangeType
	Path string
}

const changeBuffer = 256

// Engine runs the subscription and ingestion loop for one identity.
type Engine struct {
	signer signer.Signer
	seal   signer.Sealer
	relay  relay.Client
	idx    *index.Index

	changes chan Change

	mu     sync.Mutex
	state  State
	cancel context.CancelFunc
	group  *errgroup.Group
	sub    relay.Subscription
}

// New returns an Engine in state Idle. It does not start syncing until
// Start is called.
func New(s signer.Signer, seal signer.Sealer, rc relay.Client, idx *index.Index) *Engine {
	return &Engine{
		signer:  s,
		seal:    seal,
		relay:   rc,
		idx:     idx,
		changes: make(chan Change, changeBuffer),
		state:   Idle,
	}
}

// State returns the engine's current state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Changes returns the channel on which the engine reports ingestion
// effects. It is bounded and drops the oldest pending change rather than
// block ingestion if the caller falls behind.
func (e *Engine) Changes() <-chan Change {
	return e.changes
}

func (e *Engine) setState(s State) {
	e.mu.Lock()
	e.state = s
	e.mu.Unlock()
}

// Start reads the watermark, opens the account's subscription, and begins
// ingesting events in the background. It returns once the subscription is
// live; ingestion continues until Stop is called or ctx is done.
func (e *Engine) Start(ctx context.Context) error {
	const op = "syncengine.Start"
	e.setState(Subscribing)

	watermark, err := e.idx.Watermark(ctx)
	if err != nil {
		e.setState(Idle)
		return errors.E(op, err)
	}

	me := e.signer.Pubkey()
	filters := []relay.Filter{
		{Kinds: []int{event.KindDrive, event.KindDelete}, Authors: []string{me}, Since: watermark},
		{Kinds: []int{event.KindDrive}, PTags: []string{me}, Since: watermark},
	}
	sub, err := e.relay.Subscribe(ctx, filters)
	if err != nil {
		e.setState(Idle)
		return errors.E(op, errors.NetworkFailed, err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(runCtx)

	e.mu.Lock()
	e.cancel = cancel
	e.group = g
	e.sub = sub
	e.state = Live
	e.mu.Unlock()

	g.Go(func() error {
		return e.ingestLoop(gctx, sub)
	})
	return nil
}

// ingestLoop reads events from sub until it closes or gctx is done,
// applying each with ingest. It never returns a non-nil error for a
// per-event failure; those are logged and skipped.
func (e *Engine) ingestLoop(gctx context.Context, sub relay.Subscription) error {
	for {
		select {
		case ev, ok := <-sub.Events():
			if !ok {
				e.setState(Reconnecting)
				return nil
			}
			e.ingest(gctx, ev)
		case <-gctx.Done():
			return nil
		}
	}
}

// ingest applies one event to the index: idempotent by id, a DELETE
// removes its targets when authored by their own author, a DRIVE event is
// decrypted, parsed, and upserted. Any failure along the way causes the
// event to be dropped silently, per the design's "drop and continue" rule.
func (e *Engine) ingest(ctx context.Context, ev *event.Event) {
	if _, err := e.idx.Get(ctx, ev.ID); err == nil {
		return // Already indexed: idempotent no-op.
	}
	switch ev.Kind {
	case event.KindDelete:
		e.ingestDelete(ctx, ev)
	case event.KindDrive:
		e.ingestDrive(ctx, ev)
	default:
		log.Debug.Printf("syncengine: ignoring event %s of unknown kind %d", ev.ID, ev.Kind)
	}
}

func (e *Engine) ingestDelete(ctx context.Context, ev *event.Event) {
	for _, id := range ev.ETags() {
		rec, err := e.idx.Get(ctx, id)
		if err != nil {
			continue // Tombstone for an unseen (or already-gone) target: blind no-op.
		}
		if rec.Event.Pubkey != ev.Pubkey {
			continue // Tombstone author does not match the target's author: ignored.
		}
		path := rec.Path()
		if err := e.idx.Delete(ctx, id); err != nil {
			log.Error.Printf("syncengine: delete %s: %v", id, err)
			continue
		}
		e.emit(Change{Type: Deleted, Path: path})
	}
}

func (e *Engine) ingestDrive(ctx context.Context, ev *event.Event) {
	plain, err := e.seal.Open(ev.Pubkey, ev.Content)
	if err != nil {
		return // Not decryptable with our key: drop silently.
	}
	content, err := event.ParseContent(plain)
	if err != nil {
		return // Malformed metadata: drop silently.
	}
	rec := &index.Record{Event: *ev, DecryptedContent: content}
	if err := e.idx.Put(ctx, rec); err != nil {
		log.Error.Printf("syncengine: put %s: %v", ev.ID, err)
		return
	}
	e.emit(Change{Type: Added, Path: rec.Path()})
}

// NotifyLocal reports a change on behalf of a caller that mutated the
// index directly — a drive operation — rather than through ingestion. It
// uses the same bounded, drop-oldest delivery as ingested changes.
func (e *Engine) NotifyLocal(c Change) {
	e.emit(c)
}

// emit delivers c on the changes channel, dropping the oldest pending
// change if the channel is full rather than blocking ingestion.
func (e *Engine) emit(c Change) {
	select {
	case e.changes <- c:
		return
	default:
	}
	select {
	case <-e.changes:
	default:
	}
	select {
	case e.changes <- c:
	default:
	}
}

// OnAccountChanged cancels the current subscription and restarts it with a
// cleared watermark context: the caller is expected to have already
// switched the engine to a different account's Index before calling this.
func (e *Engine) OnAccountChanged(ctx context.Context) error {
	const op = "syncengine.OnAccountChanged"
	if err := e.Stop(); err != nil {
		return errors.E(op, err)
	}
	if err := e.Start(ctx); err != nil {
		return errors.E(op, err)
	}
	return nil
}

// SyncNow is a best-effort request for the subscription to flush any
// server-side backlog. With an already-live subscription this is a no-op:
// the single, always-live subscription already delivers events as they
// arrive.
func (e *Engine) SyncNow(ctx context.Context) error {
	if e.State() != Live {
		return e.Start(ctx)
	}
	return nil
}

// Stop cancels the subscription and waits for the ingest loop to exit.
func (e *Engine) Stop() error {
	e.mu.Lock()
	cancel := e.cancel
	g := e.group
	sub := e.sub
	e.state = Stopped
	e.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if sub != nil {
		sub.Close()
	}
	if g != nil {
		return g.Wait()
	}
	return nil
}
