// Copyright 2016 The Upspin Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package relay declares the Client a drive uses to publish and subscribe
// to events on the relay network. relaydrive.io/relay/memrelay provides an
// in-process implementation for tests and single-node deployments.
package relay // import "relaydrive.io/relay"

import (
	"context"

	"relaydrive.io/event"
)

// Filter selects events by kind, author, recipient p-tag, and a lower
// bound on created_at. A zero-valued field imposes no constraint on that
// dimension. Subscribe accepts several filters whose matches are unioned,
// mirroring the relay-side OR-of-filters semantics the sync engine relies
// on for "own events OR inbound shares".
type Filter struct {
	Kinds   []int
	Authors []string
	PTags   []string
	Since   int64
}

// Matches reports whether ev satisfies every constraint f sets.
func (f Filter) Matches(ev *event.Event) bool {
	if len(f.Kinds) > 0 && !containsInt(f.Kinds, ev.Kind) {
		return false
	}
	if len(f.Authors) > 0 && !containsString(f.Authors, ev.Pubkey) {
		return false
	}
	if len(f.PTags) > 0 {
		found := false
		for _, p := range f.PTags {
			if ev.HasPTag(p) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if ev.CreatedAt < f.Since {
		return false
	}
	return true
}

func containsInt(s []int, v int) bool {
	for _, x := range s {
		if x == v {
			return true
		}
	}
	return false
}

func containsString(s []string, v string) bool {
	for _, x := range s {
		if x == v {
			return true
		}
	}
	return false
}

// Subscription delivers events matching the filters it was created with,
// until Close is called.
type Subscription interface {
	Events() <-chan *event.Event
	Close()
}

// Client is what a drive needs from the relay network: publish an event,
// subscribe to a unioned set of filters, and fetch one event by id.
type Client interface {
	Publish(ctx context.Context, ev *event.Event) error
	Subscribe(ctx context.Context, filters []Filter) (Subscription, error)
	QueryByID(ctx context.Context, id string) (*event.Event, error)
	Close() error
}
