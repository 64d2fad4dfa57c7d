// Copyright 2016 The Upspin Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package valid does validation of various data types passed across a
// drive operation's boundary. For the most part, its functions enforce
// stronger constraints than the internal types themselves carry, since
// callers may supply pubkeys, hashes, and paths from an untrusted source
// (a share link, an inbound share event).
package valid // import "relaydrive.io/valid"

import (
	"encoding/hex"

	"relaydrive.io/drivepath"
	"relaydrive.io/errors"
)

// Pubkey verifies that s is a syntactically valid x-only secp256k1 public
// key: 64 lowercase hex characters.
func Pubkey(s string) error {
	const op = "valid.Pubkey"
	if len(s) != 64 {
		return errors.E(op, errors.InvalidArgument, errors.Errorf("pubkey must be 64 hex chars, got %d", len(s)))
	}
	if err := lowerHex(s); err != nil {
		return errors.E(op, errors.InvalidArgument, err)
	}
	return nil
}

// Hash verifies that s is a syntactically valid content hash: 64
// lowercase hex characters, the hex encoding of a SHA-256 digest.
func Hash(s string) error {
	const op = "valid.Hash"
	if len(s) != 64 {
		return errors.E(op, errors.InvalidArgument, errors.Errorf("hash must be 64 hex chars, got %d", len(s)))
	}
	if err := lowerHex(s); err != nil {
		return errors.E(op, errors.InvalidArgument, err)
	}
	return nil
}

// EventID verifies that s is a syntactically valid event id: 64
// lowercase hex characters, the hex encoding of a SHA-256 digest.
func EventID(s string) error {
	const op = "valid.EventID"
	if err := Hash(s); err != nil {
		return errors.E(op, err)
	}
	return nil
}

func lowerHex(s string) error {
	if _, err := hex.DecodeString(s); err != nil {
		return errors.Errorf("not valid hex: %v", err)
	}
	for _, r := range s {
		if r >= 'A' && r <= 'F' {
			return errors.Str("hex must be lowercase")
		}
	}
	return nil
}

// Path verifies that p is an absolute, cleaned drive path.
func Path(p drivepath.Path) error {
	const op = "valid.Path"
	if !drivepath.IsAbs(p) {
		return errors.E(op, errors.InvalidArgument, errors.Errorf("path %q is not absolute", p))
	}
	if drivepath.Clean(p) != p {
		return errors.E(op, errors.InvalidArgument, errors.Errorf("path %q is not clean", p))
	}
	return nil
}

// Size verifies that n is a non-negative file size.
func Size(n int64) error {
	const op = "valid.Size"
	if n < 0 {
		return errors.E(op, errors.InvalidArgument, errors.Errorf("negative size %d", n))
	}
	return nil
}
