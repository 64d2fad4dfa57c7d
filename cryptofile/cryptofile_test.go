// Copyright 2016 The Upspin Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cryptofile

import (
	"bytes"
	"testing"

	"relaydrive.io/errors"
)

func TestEncryptDecryptRoundTrip(t *testing.T) {
	plaintext := []byte("the quick brown fox jumps over the lazy dog")
	blob, key, nonce, err := Encrypt(plaintext)
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if len(key) != keySize || len(nonce) != nonceSize {
		t.Fatalf("key/nonce length = %d/%d, want %d/%d", len(key), len(nonce), keySize, nonceSize)
	}
	got, err := Decrypt(blob, key, nonce)
	if err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	if !bytes.Equal(got, plaintext) {
		t.Errorf("Decrypt = %q, want %q", got, plaintext)
	}
}

func TestDecryptTamperedTag(t *testing.T) {
	blob, key, nonce, err := Encrypt([]byte("hello"))
	if err != nil {
		t.Fatal(err)
	}
	blob[len(blob)-1] ^= 0xff
	if _, err := Decrypt(blob, key, nonce); !errors.Is(errors.CryptoFailed, err) {
		t.Errorf("Decrypt(tampered) = %v, want CryptoFailed", err)
	}
}

func TestValidateKeyNonce(t *testing.T) {
	if err := ValidateKey(make([]byte, 31)); !errors.Is(errors.InvalidArgument, err) {
		t.Errorf("ValidateKey(31 bytes) = %v, want InvalidArgument", err)
	}
	if err := ValidateKey(make([]byte, 32)); err != nil {
		t.Errorf("ValidateKey(32 bytes) = %v, want nil", err)
	}
	if err := ValidateNonce(make([]byte, 11)); !errors.Is(errors.InvalidArgument, err) {
		t.Errorf("ValidateNonce(11 bytes) = %v, want InvalidArgument", err)
	}
	if err := ValidateNonce(make([]byte, 12)); err != nil {
		t.Errorf("ValidateNonce(12 bytes) = %v, want nil", err)
	}
}

func TestValidateAlgorithm(t *testing.T) {
	if err := ValidateAlgorithm("aes-gcm"); err != nil {
		t.Errorf("ValidateAlgorithm(aes-gcm) = %v, want nil", err)
	}
	if err := ValidateAlgorithm("aes-cbc"); !errors.Is(errors.InvalidArgument, err) {
		t.Errorf("ValidateAlgorithm(aes-cbc) = %v, want InvalidArgument", err)
	}
}

func TestNsecRoundTrip(t *testing.T) {
	var key [32]byte
	for i := range key {
		key[i] = byte(i)
	}
	s, err := EncodeNsec(key)
	if err != nil {
		t.Fatalf("EncodeNsec: %v", err)
	}
	got, err := DecodeNsec(s)
	if err != nil {
		t.Fatalf("DecodeNsec: %v", err)
	}
	if got != key {
		t.Errorf("DecodeNsec = %x, want %x", got, key)
	}
	if _, err := DecodeNsec("nevent1qqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqq"); err == nil {
		t.Error("DecodeNsec(wrong prefix): expected error")
	}
}

func TestNcryptsecRoundTrip(t *testing.T) {
	var key [32]byte
	for i := range key {
		key[i] = byte(32 - i)
	}
	s, err := EncodeNcryptsec(key, "correct horse battery staple")
	if err != nil {
		t.Fatalf("EncodeNcryptsec: %v", err)
	}
	got, err := DecodeNcryptsec(s, "correct horse battery staple")
	if err != nil {
		t.Fatalf("DecodeNcryptsec: %v", err)
	}
	if got != key {
		t.Errorf("DecodeNcryptsec = %x, want %x", got, key)
	}
	if _, err := DecodeNcryptsec(s, "wrong password"); !errors.Is(errors.CryptoFailed, err) {
		t.Errorf("DecodeNcryptsec(wrong password) = %v, want CryptoFailed", err)
	}
}
