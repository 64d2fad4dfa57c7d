// Copyright 2016 The Upspin Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package localsigner

import (
	"bytes"
	"crypto/sha256"
	"testing"
)

func TestSignVerify(t *testing.T) {
	s, err := Generate()
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	hash := sha256.Sum256([]byte("drive event body"))
	sig, err := s.Sign(hash)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	ok, err := VerifyHex(s.Pubkey(), hash, sig)
	if err != nil {
		t.Fatalf("VerifyHex: %v", err)
	}
	if !ok {
		t.Error("VerifyHex: signature did not verify")
	}

	hash[0] ^= 0xff
	ok, err = VerifyHex(s.Pubkey(), hash, sig)
	if err != nil {
		t.Fatalf("VerifyHex(tampered hash): %v", err)
	}
	if ok {
		t.Error("VerifyHex(tampered hash): unexpectedly verified")
	}
}

func TestFromBytesRoundTrip(t *testing.T) {
	s1, err := Generate()
	if err != nil {
		t.Fatal(err)
	}
	key := s1.Bytes()
	s2, err := FromBytes(key[:])
	if err != nil {
		t.Fatalf("FromBytes: %v", err)
	}
	if s1.Pubkey() != s2.Pubkey() {
		t.Errorf("Pubkey() = %q, want %q", s2.Pubkey(), s1.Pubkey())
	}
}

func TestSealOpenSelf(t *testing.T) {
	s, err := Generate()
	if err != nil {
		t.Fatal(err)
	}
	plaintext := []byte(`{"type":"file","path":"/docs/a.txt"}`)
	ct, err := s.Seal(s.Pubkey(), plaintext)
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	got, err := s.Open(s.Pubkey(), ct)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if !bytes.Equal(got, plaintext) {
		t.Errorf("Open = %q, want %q", got, plaintext)
	}
}

func TestSealOpenBetweenParties(t *testing.T) {
	alice, err := Generate()
	if err != nil {
		t.Fatal(err)
	}
	bob, err := Generate()
	if err != nil {
		t.Fatal(err)
	}
	plaintext := []byte(`{"type":"folder","path":"/shared"}`)
	ct, err := alice.Seal(bob.Pubkey(), plaintext)
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	got, err := bob.Open(alice.Pubkey(), ct)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if !bytes.Equal(got, plaintext) {
		t.Errorf("Open = %q, want %q", got, plaintext)
	}

	// Wrong sender key must not decrypt.
	mallory, err := Generate()
	if err != nil {
		t.Fatal(err)
	}
	if _, err := bob.Open(mallory.Pubkey(), ct); err == nil {
		t.Error("Open with wrong sender key unexpectedly succeeded")
	}
}
