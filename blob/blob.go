// Copyright 2016 The Upspin Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package blob declares the Client a drive uses to store and fetch
// ciphertext (or, for unencrypted uploads, plaintext) bytes, content
// addressed by their SHA-256 hash. relaydrive.io/blob/memblob provides an
// in-process implementation for tests and single-node deployments.
package blob // import "relaydrive.io/blob"

import "context"

// Client stores and retrieves content-addressed blobs.
type Client interface {
	// Put stores data and returns its hex-encoded SHA-256 hash.
	Put(ctx context.Context, data []byte) (hash string, err error)
	// Get returns the bytes stored under hash, or errors.NotFound.
	Get(ctx context.Context, hash string) ([]byte, error)
	// Delete removes the blob stored under hash. Deleting an absent hash
	// is not an error.
	Delete(ctx context.Context, hash string) error
}
