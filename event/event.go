// Copyright 2016 The Upspin Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package event defines the two event kinds a drive exchanges over the
// relay network, and the canonical id/signature rules shared by both: a
// DRIVE event carries an encrypted file or folder metadata object, and a
// DELETE event tombstones one or more earlier events by id.
package event // import "relaydrive.io/event"

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/schnorr"

	"relaydrive.io/errors"
	"relaydrive.io/signer"
)

// Kind identifies the semantics of an Event's content and tags.
const (
	KindDrive  = 9500
	KindDelete = 5
)

// Tag is a single Nostr-style tag: its first element names the tag, the
// rest are its arguments.
type Tag []string

// Event is a signed, timestamped record published to and read from the
// relay network. Content is the sealed (NIP-44-style) ciphertext for a
// DRIVE event, and empty for a DELETE event.
type Event struct {
	ID        string `json:"id"`
	Pubkey    string `json:"pubkey"`
	CreatedAt int64  `json:"created_at"`
	Kind      int    `json:"kind"`
	Tags      []Tag  `json:"tags"`
	Content   string `json:"content"`
	Sig       string `json:"sig"`
}

// FileContent is the decrypted metadata object carried by a DRIVE event
// for a file.
type FileContent struct {
	Type                string `json:"type"`
	Hash                string `json:"hash"`
	Path                string `json:"path"`
	Size                int64  `json:"size"`
	FileType            string `json:"file-type,omitempty"`
	EncryptionAlgorithm string `json:"encryption-algorithm,omitempty"`
	DecryptionKey       string `json:"decryption-key,omitempty"`
	DecryptionNonce     string `json:"decryption-nonce,omitempty"`
}

// FolderContent is the decrypted metadata object carried by a DRIVE event
// for a folder.
type FolderContent struct {
	Type string `json:"type"`
	Path string `json:"path"`
}

const (
	typeFile   = "file"
	typeFolder = "folder"
)

// ParseContent inspects raw's "type" field and unmarshals it into either a
// *FileContent or a *FolderContent.
func ParseContent(raw []byte) (interface{}, error) {
	const op = "event.ParseContent"
	var probe struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return nil, errors.E(op, errors.InvalidArgument, err)
	}
	switch probe.Type {
	case typeFile:
		var c FileContent
		if err := json.Unmarshal(raw, &c); err != nil {
			return nil, errors.E(op, errors.InvalidArgument, err)
		}
		return &c, nil
	case typeFolder:
		var c FolderContent
		if err := json.Unmarshal(raw, &c); err != nil {
			return nil, errors.E(op, errors.InvalidArgument, err)
		}
		return &c, nil
	default:
		return nil, errors.E(op, errors.InvalidArgument, errors.Errorf("unknown content type %q", probe.Type))
	}
}

// Path returns the path carried by a *FileContent or *FolderContent.
func Path(content interface{}) (string, bool) {
	switch c := content.(type) {
	case *FileContent:
		return c.Path, true
	case *FolderContent:
		return c.Path, true
	}
	return "", false
}

// serializeForID renders the canonical, whitespace-free JSON array
// `[0, pubkey, created_at, kind, tags, content]` that is hashed to produce
// an event's id.
func serializeForID(pubkey string, createdAt int64, kind int, tags []Tag, content string) ([]byte, error) {
	if tags == nil {
		tags = []Tag{}
	}
	arr := []interface{}{0, pubkey, createdAt, kind, tags, content}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(arr); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// computeID returns the sha256 digest of the event's canonical
// serialization, both as hex and as the raw 32-byte array Sign/Verify
// operate on.
func computeID(pubkey string, createdAt int64, kind int, tags []Tag, content string) (string, [32]byte, error) {
	ser, err := serializeForID(pubkey, createdAt, kind, tags, content)
	if err != nil {
		return "", [32]byte{}, err
	}
	digest := sha256.Sum256(ser)
	return hex.EncodeToString(digest[:]), digest, nil
}

// BuildDrive constructs and signs a DRIVE event carrying content, sealed
// for recipientPubHex (which may be s's own public key, for a self-owned
// item). A non-empty recipientPubHex different from the signer's own key
// produces a single `p` tag naming the recipient.
func BuildDrive(s signer.Signer, seal signer.Sealer, recipientPubHex string, content interface{}, createdAt int64) (*Event, error) {
	const op = "event.BuildDrive"
	plain, err := json.Marshal(content)
	if err != nil {
		return nil, errors.E(op, errors.InvalidArgument, err)
	}
	sealed, err := seal.Seal(recipientPubHex, plain)
	if err != nil {
		return nil, errors.E(op, errors.CryptoFailed, err)
	}
	var tags []Tag
	if recipientPubHex != s.Pubkey() {
		tags = []Tag{{"p", recipientPubHex}}
	}
	return sign(s, KindDrive, tags, sealed, createdAt)
}

// BuildDelete constructs and signs a DELETE event tombstoning every event
// id in ids.
func BuildDelete(s signer.Signer, ids []string, createdAt int64) (*Event, error) {
	tags := make([]Tag, len(ids))
	for i, id := range ids {
		tags[i] = Tag{"e", id}
	}
	return sign(s, KindDelete, tags, "", createdAt)
}

func sign(s signer.Signer, kind int, tags []Tag, content string, createdAt int64) (*Event, error) {
	const op = "event.sign"
	pubkey := s.Pubkey()
	idHex, idBytes, err := computeID(pubkey, createdAt, kind, tags, content)
	if err != nil {
		return nil, errors.E(op, errors.CryptoFailed, err)
	}
	sig, err := s.Sign(idBytes)
	if err != nil {
		return nil, errors.E(op, errors.CryptoFailed, err)
	}
	return &Event{
		ID:        idHex,
		Pubkey:    pubkey,
		CreatedAt: createdAt,
		Kind:      kind,
		Tags:      tags,
		Content:   content,
		Sig:       hex.EncodeToString(sig[:]),
	}, nil
}

// Verify recomputes e's id from its fields and checks it against e.ID, then
// verifies e.Sig as a BIP-340 Schnorr signature by e.Pubkey over that id.
func (e *Event) Verify() error {
	const op = "event.Verify"
	wantHex, idBytes, err := computeID(e.Pubkey, e.CreatedAt, e.Kind, e.Tags, e.Content)
	if err != nil {
		return errors.E(op, errors.InvalidArgument, err)
	}
	if wantHex != e.ID {
		return errors.E(op, errors.InvalidArgument, errors.Errorf("id mismatch: got %s, want %s", e.ID, wantHex))
	}
	pubBytes, err := hex.DecodeString(e.Pubkey)
	if err != nil || len(pubBytes) != 32 {
		return errors.E(op, errors.InvalidArgument, errors.Str("malformed pubkey"))
	}
	sigBytes, err := hex.DecodeString(e.Sig)
	if err != nil || len(sigBytes) != 64 {
		return errors.E(op, errors.InvalidArgument, errors.Str("malformed signature"))
	}
	compressed := append([]byte{0x02}, pubBytes...)
	pub, err := secp256k1.ParsePubKey(compressed)
	if err != nil {
		return errors.E(op, errors.InvalidArgument, err)
	}
	sig, err := schnorr.ParseSignature(sigBytes)
	if err != nil {
		return errors.E(op, errors.InvalidArgument, err)
	}
	if !sig.Verify(idBytes[:], pub) {
		return errors.E(op, errors.CryptoFailed, errors.Str("signature does not verify"))
	}
	return nil
}

// ETags returns the values of every "e" tag on e, in order.
func (e *Event) ETags() []string {
	var out []string
	for _, t := range e.Tags {
		if len(t) >= 2 && t[0] == "e" {
			out = append(out, t[1])
		}
	}
	return out
}

// PTags returns the values of every "p" tag on e, in order.
func (e *Event) PTags() []string {
	var out []string
	for _, t := range e.Tags {
		if len(t) >= 2 && t[0] == "p" {
			out = append(out, t[1])
		}
	}
	return out
}

// HasPTag reports whether pubHex appears in any "p" tag on e.
func (e *Event) HasPTag(pubHex string) bool {
	for _, t := range e.Tags {
		if len(t) >= 2 && t[0] == "p" && t[1] == pubHex {
			return true
		}
	}
	return false
}

// SortByCreatedAtDesc sorts events newest-first, breaking ties by id for a
// stable, deterministic order.
func SortByCreatedAtDesc(events []*Event) {
	sort.SliceStable(events, func(i, j int) bool {
		if events[i].CreatedAt != events[j].CreatedAt {
			return events[i].CreatedAt > events[j].CreatedAt
		}
		return events[i].ID > events[j].ID
	})
}
