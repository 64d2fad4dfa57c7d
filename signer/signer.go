// Copyright 2016 The Upspin Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package signer declares the two external collaborators a drive needs
// from an identity: a Schnorr Signer over secp256k1 and a Sealer that
// performs authenticated encryption to self or to a recipient, standing in
// for the host ecosystem's NIP-44 scheme. Both are treated as opaque
// oracles by every other package; relaydrive.io/signer/localsigner
// supplies a concrete implementation for tests and single-user
// deployments.
package signer // import "relaydrive.io/signer"

// Signer produces a Schnorr signature over a 32-byte message hash and
// reports the hex-encoded, x-only public key its signatures verify
// against.
type Signer interface {
	Pubkey() string
	Sign(hash [32]byte) ([64]byte, error)
}

// Sealer performs authenticated encryption between two parties identified
// by their hex-encoded public keys. Seal is called with the caller's own
// key pair and the recipient's public key; for "encrypt to self" the
// recipient is the caller. Open is the inverse, given the sender's public
// key.
type Sealer interface {
	Seal(recipientPubHex string, plaintext []byte) (string, error)
	Open(senderPubHex string, ciphertext string) ([]byte, error)
}
