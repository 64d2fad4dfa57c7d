// Copyright 2016 The Upspin Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"fmt"

	"relaydrive.io/blob/memblob"
	"relaydrive.io/config"
	"relaydrive.io/drive"
	"relaydrive.io/index"
	"relaydrive.io/relay/memrelay"
	"relaydrive.io/shutdown"
	"relaydrive.io/syncengine"
)

// newDrive loads the identity named by cfg and wires it to a fresh
// in-process relay and blob store (the network transport described by
// cfg.Relays/cfg.BlobServer is out of this module's scope; see DESIGN.md),
// opens the local index, starts the sync engine, and returns the
// resulting Drive handle ready for use.
func newDrive(ctx context.Context, cfg *config.Config, password string) (*drive.Drive, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	signer, err := cfg.Identity(password)
	if err != nil {
		return nil, fmt.Errorf("loading identity: %w", err)
	}

	idx, err := index.Open(ctx, cfg.IndexPath)
	if err != nil {
		return nil, fmt.Errorf("opening index: %w", err)
	}

	rc := memrelay.New()
	bc := memblob.New()
	eng := syncengine.New(signer, signer, rc, idx)
	if err := eng.Start(ctx); err != nil {
		return nil, fmt.Errorf("starting sync engine: %w", err)
	}
	shutdown.Handle(func() {
		eng.Stop()
		idx.Close()
	})

	return drive.New(signer, signer, rc, bc, idx, eng), nil
}
