// Copyright 2016 The Upspin Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package memblob is an in-memory blob.Client, useful for tests and for a
// single-node deployment with no external blob network.
package memblob // import "relaydrive.io/blob/memblob"

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"

	"relaydrive.io/errors"
)

// Store is an in-memory, content-addressed blob store.
type Store struct {
	mu   sync.Mutex
	data map[string][]byte
}

// New returns an empty Store.
func New() *Store {
	return &Store{data: make(map[string][]byte)}
}

// Put stores a copy of data under its hex-encoded SHA-256 hash.
func (s *Store) Put(ctx context.Context, data []byte) (string, error) {
	sum := sha256.Sum256(data)
	hash := hex.EncodeToString(sum[:])
	cp := make([]byte, len(data))
	copy(cp, data)

	s.mu.Lock()
	s.data[hash] = cp
	s.mu.Unlock()
	return hash, nil
}

// Get returns a copy of the bytes stored under hash.
func (s *Store) Get(ctx context.Context, hash string) ([]byte, error) {
	const op = "memblob.Get"
	s.mu.Lock()
	data, ok := s.data[hash]
	s.mu.Unlock()
	if !ok {
		return nil, errors.E(op, errors.NotFound, errors.Errorf("no blob %s", hash))
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	return cp, nil
}

// Delete removes the blob stored under hash, if any.
func (s *Store) Delete(ctx context.Context, hash string) error {
	s.mu.Lock()
	delete(s.data, hash)
	s.mu.Unlock()
	return nil
}
