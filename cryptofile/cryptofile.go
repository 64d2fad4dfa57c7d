// Copyright 2016 The Upspin Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package cryptofile implements the content-encryption primitive used for
// file and folder payloads, and the bech32 envelopes ("nsec"/"ncryptsec")
// used to carry a share's ephemeral private key across a share link.
package cryptofile // import "relaydrive.io/cryptofile"

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"io"

	"github.com/btcsuite/btcutil/bech32"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/scrypt"

	"relaydrive.io/errors"
)

const (
	keySize   = 32
	nonceSize = 12
	tagSize   = 16

	// Algorithm is the only content-encryption algorithm this package
	// understands; anything else in an untrusted record is rejected.
	Algorithm = "aes-gcm"
)

// Encrypt seals plaintext under a freshly generated key and nonce, both
// drawn from a cryptographic RNG. The returned blob is ciphertext with the
// 16-byte GCM tag appended.
func Encrypt(plaintext []byte) (blob, key, nonce []byte, err error) {
	const op = "cryptofile.Encrypt"
	key = make([]byte, keySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, nil, nil, errors.E(op, errors.CryptoFailed, err)
	}
	nonce = make([]byte, nonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, nil, nil, errors.E(op, errors.CryptoFailed, err)
	}
	aead, err := newGCM(key)
	if err != nil {
		return nil, nil, nil, errors.E(op, errors.CryptoFailed, err)
	}
	blob = aead.Seal(nil, nonce, plaintext, nil)
	return blob, key, nonce, nil
}

// Decrypt opens blob, which must be ciphertext with the GCM tag appended,
// under key and nonce. A tag mismatch returns errors.CryptoFailed and no
// plaintext.
func Decrypt(blob, key, nonce []byte) ([]byte, error) {
	const op = "cryptofile.Decrypt"
	if err := ValidateKey(key); err != nil {
		return nil, errors.E(op, err)
	}
	if err := ValidateNonce(nonce); err != nil {
		return nil, errors.E(op, err)
	}
	if len(blob) < tagSize {
		return nil, errors.E(op, errors.CryptoFailed, errors.Str("ciphertext shorter than tag"))
	}
	aead, err := newGCM(key)
	if err != nil {
		return nil, errors.E(op, errors.CryptoFailed, err)
	}
	plaintext, err := aead.Open(nil, nonce, blob, nil)
	if err != nil {
		return nil, errors.E(op, errors.CryptoFailed, errors.Str("authentication tag mismatch"))
	}
	return plaintext, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// ValidateKey reports whether key has the length required of an AES-256
// content key, for use at boundaries that admit an untrusted key (a share
// event or share link).
func ValidateKey(key []byte) error {
	if len(key) != keySize {
		return errors.E(errors.InvalidArgument, errors.Errorf("key must be %d bytes, got %d", keySize, len(key)))
	}
	return nil
}

// ValidateNonce reports whether nonce has the length required of a GCM
// nonce.
func ValidateNonce(nonce []byte) error {
	if len(nonce) != nonceSize {
		return errors.E(errors.InvalidArgument, errors.Errorf("nonce must be %d bytes, got %d", nonceSize, len(nonce)))
	}
	return nil
}

// ValidateAlgorithm reports whether alg names a content-encryption
// algorithm this package supports.
func ValidateAlgorithm(alg string) error {
	if alg != Algorithm {
		return errors.E(errors.InvalidArgument, errors.Errorf("unsupported encryption-algorithm %q", alg))
	}
	return nil
}

// decodeBase64 decodes a base64-encoded key or nonce taken from an
// untrusted record and validates its length against want.
func decodeBase64(s string, want int) ([]byte, error) {
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, errors.E(errors.InvalidArgument, err)
	}
	if len(b) != want {
		return nil, errors.E(errors.InvalidArgument, errors.Errorf("want %d bytes, got %d", want, len(b)))
	}
	return b, nil
}

// DecodeKey decodes and validates a base64-encoded content key.
func DecodeKey(s string) ([]byte, error) { return decodeBase64(s, keySize) }

// DecodeNonce decodes and validates a base64-encoded content nonce.
func DecodeNonce(s string) ([]byte, error) { return decodeBase64(s, nonceSize) }

// EncodeNsec wraps a raw 32-byte private key as a plain bech32 "nsec"
// string, with no password protection.
func EncodeNsec(key [32]byte) (string, error) {
	const op = "cryptofile.EncodeNsec"
	conv, err := bech32.ConvertBits(key[:], 8, 5, true)
	if err != nil {
		return "", errors.E(op, errors.InvalidArgument, err)
	}
	s, err := bech32.Encode("nsec", conv)
	if err != nil {
		return "", errors.E(op, errors.InvalidArgument, err)
	}
	return s, nil
}

// DecodeNsec is the inverse of EncodeNsec.
func DecodeNsec(s string) ([32]byte, error) {
	const op = "cryptofile.DecodeNsec"
	var key [32]byte
	gotHRP, data, err := bech32.Decode(s)
	if err != nil {
		return key, errors.E(op, errors.InvalidArgument, err)
	}
	if gotHRP != "nsec" {
		return key, errors.E(op, errors.InvalidArgument, errors.Errorf("wrong prefix %q, want nsec", gotHRP))
	}
	raw, err := bech32.ConvertBits(data, 5, 8, false)
	if err != nil {
		return key, errors.E(op, errors.InvalidArgument, err)
	}
	if len(raw) != 32 {
		return key, errors.E(op, errors.InvalidArgument, errors.Errorf("want 32 bytes, got %d", len(raw)))
	}
	copy(key[:], raw)
	return key, nil
}

// ncryptsec envelope layout, version 2: a one-byte version, a one-byte
// log2(N) scrypt cost parameter, a 16-byte salt, a 24-byte XChaCha20-Poly1305
// nonce, a one-byte key-security flag, and the sealed 32-byte key (48 bytes
// with its 16-byte tag).
const (
	ncryptsecVersion   = 0x02
	ncryptsecLogN      = 16 // N = 2^16
	ncryptsecR         = 8
	ncryptsecP         = 1
	ncryptsecSaltSize  = 16
	keyUnknownSecurity = 0x02
)

// EncodeNcryptsec wraps key with a password-derived scrypt key and seals it
// with XChaCha20-Poly1305, then bech32-encodes the envelope under HRP
// "ncryptsec".
func EncodeNcryptsec(key [32]byte, password string) (string, error) {
	const op = "cryptofile.EncodeNcryptsec"
	salt := make([]byte, ncryptsecSaltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", errors.E(op, errors.CryptoFailed, err)
	}
	derived, err := scrypt.Key([]byte(password), salt, 1<<ncryptsecLogN, ncryptsecR, ncryptsecP, chacha20poly1305.KeySize)
	if err != nil {
		return "", errors.E(op, errors.CryptoFailed, err)
	}
	aead, err := chacha20poly1305.NewX(derived)
	if err != nil {
		return "", errors.E(op, errors.CryptoFailed, err)
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", errors.E(op, errors.CryptoFailed, err)
	}
	aad := []byte{keyUnknownSecurity}
	sealed := aead.Seal(nil, nonce, key[:], aad)

	raw := make([]byte, 0, 2+ncryptsecSaltSize+len(nonce)+1+len(sealed))
	raw = append(raw, ncryptsecVersion, ncryptsecLogN)
	raw = append(raw, salt...)
	raw = append(raw, nonce...)
	raw = append(raw, keyUnknownSecurity)
	raw = append(raw, sealed...)

	conv, err := bech32.ConvertBits(raw, 8, 5, true)
	if err != nil {
		return "", errors.E(op, errors.InvalidArgument, err)
	}
	s, err := bech32.Encode("ncryptsec", conv)
	if err != nil {
		return "", errors.E(op, errors.InvalidArgument, err)
	}
	return s, nil
}

// DecodeNcryptsec is the inverse of EncodeNcryptsec: it derives the same
// scrypt key from password and opens the envelope, returning CryptoFailed
// if the password is wrong or the envelope has been tampered with.
func DecodeNcryptsec(s, password string) ([32]byte, error) {
	const op = "cryptofile.DecodeNcryptsec"
	var key [32]byte
	gotHRP, data, err := bech32.Decode(s)
	if err != nil {
		return key, errors.E(op, errors.InvalidArgument, err)
	}
	if gotHRP != "ncryptsec" {
		return key, errors.E(op, errors.InvalidArgument, errors.Errorf("wrong prefix %q, want ncryptsec", gotHRP))
	}
	raw, err := bech32.ConvertBits(data, 5, 8, false)
	if err != nil {
		return key, errors.E(op, errors.InvalidArgument, err)
	}
	if len(raw) < 2+ncryptsecSaltSize+1 {
		return key, errors.E(op, errors.InvalidArgument, errors.Str("truncated envelope"))
	}
	version, logN := raw[0], raw[1]
	if version != ncryptsecVersion {
		return key, errors.E(op, errors.InvalidArgument, errors.Errorf("unsupported envelope version %d", version))
	}
	raw = raw[2:]
	salt := raw[:ncryptsecSaltSize]
	raw = raw[ncryptsecSaltSize:]

	nonceSize := chacha20poly1305.NonceSizeX
	if len(raw) < nonceSize+1 {
		return key, errors.E(op, errors.InvalidArgument, errors.Str("truncated envelope"))
	}
	nonce := raw[:nonceSize]
	raw = raw[nonceSize:]
	security := raw[0]
	sealed := raw[1:]

	derived, err := scrypt.Key([]byte(password), salt, 1<<logN, ncryptsecR, ncryptsecP, chacha20poly1305.KeySize)
	if err != nil {
		return key, errors.E(op, errors.CryptoFailed, err)
	}
	aead, err := chacha20poly1305.NewX(derived)
	if err != nil {
		return key, errors.E(op, errors.CryptoFailed, err)
	}
	plain, err := aead.Open(nil, nonce, sealed, []byte{security})
	if err != nil {
		return key, errors.E(op, errors.CryptoFailed, errors.Str("wrong password or corrupt envelope"))
	}
	if len(plain) != 32 {
		return key, errors.E(op, errors.InvalidArgument, errors.Errorf("want 32 bytes, got %d", len(plain)))
	}
	copy(key[:], plain)
	return key, nil
}
