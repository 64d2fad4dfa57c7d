// Copyright 2016 The Upspin Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package localsigner implements relaydrive.io/signer.Signer and Sealer
// directly against a secp256k1 private key held in memory: Schnorr
// signatures per BIP-340 and an ECDH-derived, HKDF-stretched
// ChaCha20-Poly1305 seal standing in for the host ecosystem's NIP-44. It
// is the reference identity used by tests and by single-process
// deployments that have not wired in an external signing agent.
package localsigner // import "relaydrive.io/signer/localsigner"

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"io"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/schnorr"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"

	"relaydrive.io/errors"
)

// hkdfInfo is domain-separation context for the shared-secret key
// derivation; it has no meaning beyond binding derived keys to this
// package's sealing scheme.
const hkdfInfo = "relaydrive/localsigner/seal/v1"

// Signer is a secp256k1 key pair that signs with Schnorr (BIP-340) and
// seals with an ECDH-derived symmetric key, implementing
// relaydrive.io/signer.Signer and relaydrive.io/signer.Sealer.
type Signer struct {
	priv *secp256k1.PrivateKey
	pub  *secp256k1.PublicKey
}

// Generate creates a fresh key pair from the system CSPRNG.
func Generate() (*Signer, error) {
	const op = "localsigner.Generate"
	priv, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		return nil, errors.E(op, errors.CryptoFailed, err)
	}
	return &Signer{priv: priv, pub: priv.PubKey()}, nil
}

// FromHex loads a key pair from a 32-byte hex-encoded private key, the
// format used by nsec/ncryptsec envelopes once decoded.
func FromHex(privHex string) (*Signer, error) {
	const op = "localsigner.FromHex"
	b, err := hex.DecodeString(privHex)
	if err != nil {
		return nil, errors.E(op, errors.InvalidArgument, err)
	}
	return FromBytes(b)
}

// FromBytes loads a key pair from a raw 32-byte private key.
func FromBytes(b []byte) (*Signer, error) {
	const op = "localsigner.FromBytes"
	if len(b) != 32 {
		return nil, errors.E(op, errors.InvalidArgument, errors.Errorf("private key must be 32 bytes, got %d", len(b)))
	}
	priv := secp256k1.PrivKeyFromBytes(b)
	return &Signer{priv: priv, pub: priv.PubKey()}, nil
}

// Bytes returns the raw 32-byte private key, for wrapping in an
// nsec/ncryptsec envelope.
func (s *Signer) Bytes() [32]byte {
	var out [32]byte
	b := s.priv.Serialize()
	copy(out[:], b)
	return out
}

// xOnly returns the 32-byte x-only encoding of pub, the form used as a
// Nostr-style public key.
func xOnly(pub *secp256k1.PublicKey) [32]byte {
	var out [32]byte
	compressed := pub.SerializeCompressed()
	copy(out[:], compressed[1:])
	return out
}

// Pubkey returns the hex-encoded, x-only public key.
func (s *Signer) Pubkey() string {
	x := xOnly(s.pub)
	return hex.EncodeToString(x[:])
}

// Sign produces a BIP-340 Schnorr signature over hash.
func (s *Signer) Sign(hash [32]byte) ([64]byte, error) {
	const op = "localsigner.Sign"
	var out [64]byte
	sig, err := schnorr.Sign(s.priv, hash[:])
	if err != nil {
		return out, errors.E(op, errors.CryptoFailed, err)
	}
	copy(out[:], sig.Serialize())
	return out, nil
}

// VerifyHex verifies a BIP-340 signature against an x-only hex public key;
// it does not require a Signer instance of the verifying party.
func VerifyHex(pubHex string, hash [32]byte, sig [64]byte) (bool, error) {
	const op = "localsigner.VerifyHex"
	pub, err := parseXOnlyHex(pubHex)
	if err != nil {
		return false, errors.E(op, err)
	}
	parsed, err := schnorr.ParseSignature(sig[:])
	if err != nil {
		return false, errors.E(op, errors.CryptoFailed, err)
	}
	return parsed.Verify(hash[:], pub), nil
}

func parseXOnlyHex(pubHex string) (*secp256k1.PublicKey, error) {
	b, err := hex.DecodeString(pubHex)
	if err != nil {
		return nil, errors.E(errors.InvalidArgument, err)
	}
	if len(b) != 32 {
		return nil, errors.E(errors.InvalidArgument, errors.Errorf("public key must be 32 bytes, got %d", len(b)))
	}
	// BIP-340 x-only keys are the compressed encoding with an assumed
	// even-y prefix.
	compressed := append([]byte{0x02}, b...)
	pub, err := secp256k1.ParsePubKey(compressed)
	if err != nil {
		return nil, errors.E(errors.InvalidArgument, err)
	}
	return pub, nil
}

// sharedSecret computes the x-coordinate of priv*pub, the ECDH shared
// secret between s and the party holding peerPub.
func sharedSecret(priv *secp256k1.PrivateKey, peerPub *secp256k1.PublicKey) []byte {
	var point, result secp256k1.JacobianPoint
	peerPub.AsJacobian(&point)
	secp256k1.ScalarMultNonConst(&priv.Key, &point, &result)
	result.ToAffine()
	x := result.X.Bytes()
	return x[:]
}

func (s *Signer) derivedKey(peerPubHex string) ([]byte, error) {
	peerPub, err := parseXOnlyHex(peerPubHex)
	if err != nil {
		return nil, err
	}
	secret := sharedSecret(s.priv, peerPub)
	r := hkdf.New(sha256.New, secret, nil, []byte(hkdfInfo))
	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, errors.E(errors.CryptoFailed, err)
	}
	return key, nil
}

// Seal encrypts plaintext to recipientPubHex (which may be s's own
// public key, for "encrypt to self") using a key derived from the ECDH
// shared secret between s and the recipient. The result is base64
// standard encoding of nonce || ciphertext || tag.
func (s *Signer) Seal(recipientPubHex string, plaintext []byte) (string, error) {
	const op = "localsigner.Seal"
	key, err := s.derivedKey(recipientPubHex)
	if err != nil {
		return "", errors.E(op, err)
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return "", errors.E(op, errors.CryptoFailed, err)
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", errors.E(op, errors.CryptoFailed, err)
	}
	sealed := aead.Seal(nonce, nonce, plaintext, nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Open decrypts a value produced by Seal, called by senderPubHex for s.
func (s *Signer) Open(senderPubHex string, ciphertext string) ([]byte, error) {
	const op = "localsigner.Open"
	key, err := s.derivedKey(senderPubHex)
	if err != nil {
		return nil, errors.E(op, err)
	}
	raw, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return nil, errors.E(op, errors.InvalidArgument, err)
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, errors.E(op, errors.CryptoFailed, err)
	}
	if len(raw) < aead.NonceSize() {
		return nil, errors.E(op, errors.CryptoFailed, errors.Str("ciphertext shorter than nonce"))
	}
	nonce, sealed := raw[:aead.NonceSize()], raw[aead.NonceSize():]
	plain, err := aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, errors.E(op, errors.CryptoFailed, errors.Str("authentication failed"))
	}
	return plain, nil
}
