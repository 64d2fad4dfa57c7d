// Copyright 2017 The Upspin Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package memrelay is an in-process relay.Client, useful for tests and for
// a single-node deployment with no external relay. A single goroutine
// mediates all state through channels, so there are no explicit mutexes.
package memrelay // import "relaydrive.io/relay/memrelay"

import (
	"context"

	"github.com/google/uuid"

	"relaydrive.io/errors"
	"relaydrive.io/event"
	"relaydrive.io/log"
	"relaydrive.io/relay"
)

const subscriberBuffer = 64

// Relay is an in-memory store of published events plus live subscribers.
// All access to its state happens on the run goroutine.
type Relay struct {
	publish   chan publishReq
	subscribe chan subscribeReq
	queryByID chan queryReq
	subDone   chan *subscription
	closed    chan struct{}
}

// New starts a new, empty in-memory relay.
func New() *Relay {
	r := &Relay{
		publish:   make(chan publishReq),
		subscribe: make(chan subscribeReq),
		queryByID: make(chan queryReq),
		subDone:   make(chan *subscription, 16),
		closed:    make(chan struct{}),
	}
	go r.run()
	return r
}

type publishReq struct {
	ev   *event.Event
	done chan error
}

type subscribeReq struct {
	filters []relay.Filter
	done    chan *subscription
}

type queryReq struct {
	id   string
	done chan queryResult
}

type queryResult struct {
	ev  *event.Event
	err error
}

type subscription struct {
	id      uuid.UUID // Correlates log lines for one subscription's lifetime.
	events  chan *event.Event
	filters []relay.Filter
	done    chan struct{}
	owner   *Relay
}

func (s *subscription) Events() <-chan *event.Event { return s.events }

func (s *subscription) Close() {
	select {
	case s.owner.subDone <- s:
	case <-s.owner.closed:
	}
}

func (r *Relay) run() {
	var events []*event.Event
	var subs []*subscription

	for {
		select {
		case req := <-r.publish:
			cp := *req.ev
			events = append(events, &cp)
			for _, s := range subs {
				// Matching is done by the caller-supplied filters stored
				// alongside the subscription; see deliverTo.
				s.deliverTo(&cp)
			}
			req.done <- nil

		case req := <-r.subscribe:
			s := &subscription{
				id:      uuid.New(),
				events:  make(chan *event.Event, subscriberBuffer),
				filters: req.filters,
				done:    make(chan struct{}),
				owner:   r,
			}
			for _, ev := range events {
				s.deliverTo(ev)
			}
			subs = append(subs, s)
			log.Debug.Printf("memrelay: subscription %s opened with %d filters", s.id, len(s.filters))
			req.done <- s

		case s := <-r.subDone:
			for i, cand := range subs {
				if cand == s {
					close(s.events)
					subs = append(subs[:i], subs[i+1:]...)
					log.Debug.Printf("memrelay: subscription %s closed", s.id)
					break
				}
			}

		case req := <-r.queryByID:
			var found *event.Event
			for _, ev := range events {
				if ev.ID == req.id {
					found = ev
					break
				}
			}
			if found == nil {
				req.done <- queryResult{err: errors.E("memrelay.QueryByID", errors.NotFound, errors.Errorf("no event %s", req.id))}
			} else {
				cp := *found
				req.done <- queryResult{ev: &cp}
			}

		case <-r.closed:
			for _, s := range subs {
				close(s.events)
			}
			return
		}
	}
}

// deliverTo sends ev to s if it matches any of s's filters, dropping it
// rather than blocking the relay's run loop if s is not keeping up.
func (s *subscription) deliverTo(ev *event.Event) {
	for _, f := range s.filters {
		if f.Matches(ev) {
			select {
			case s.events <- ev:
			default:
				// Slow subscriber: drop rather than block the relay.
			}
			return
		}
	}
}

// Publish appends ev to the relay's event log and fans it out to every
// live subscription whose filters match it.
func (r *Relay) Publish(ctx context.Context, ev *event.Event) error {
	done := make(chan error, 1)
	select {
	case r.publish <- publishReq{ev: ev, done: done}:
	case <-ctx.Done():
		return errors.E("memrelay.Publish", errors.NetworkFailed, ctx.Err())
	}
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return errors.E("memrelay.Publish", errors.NetworkFailed, ctx.Err())
	}
}

// Subscribe returns a subscription that immediately receives every
// already-published event matching filters, then any future match.
func (r *Relay) Subscribe(ctx context.Context, filters []relay.Filter) (relay.Subscription, error) {
	done := make(chan *subscription, 1)
	select {
	case r.subscribe <- subscribeReq{filters: filters, done: done}:
	case <-ctx.Done():
		return nil, errors.E("memrelay.Subscribe", errors.NetworkFailed, ctx.Err())
	}
	select {
	case s := <-done:
		return s, nil
	case <-ctx.Done():
		return nil, errors.E("memrelay.Subscribe", errors.NetworkFailed, ctx.Err())
	}
}

// QueryByID returns the event with the given id, or errors.NotFound.
func (r *Relay) QueryByID(ctx context.Context, id string) (*event.Event, error) {
	done := make(chan queryResult, 1)
	select {
	case r.queryByID <- queryReq{id: id, done: done}:
	case <-ctx.Done():
		return nil, errors.E("memrelay.QueryByID", errors.NetworkFailed, ctx.Err())
	}
	select {
	case res := <-done:
		return res.ev, res.err
	case <-ctx.Done():
		return nil, errors.E("memrelay.QueryByID", errors.NetworkFailed, ctx.Err())
	}
}

// Close shuts down the relay's run goroutine and every live subscription.
func (r *Relay) Close() error {
	close(r.closed)
	return nil
}
