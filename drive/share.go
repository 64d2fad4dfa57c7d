// Copyright 2016 The Upspin Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package drive

import (
	"context"
	"encoding/hex"
	"strings"

	"relaydrive.io/cryptofile"
	"relaydrive.io/errors"
	"relaydrive.io/event"
	"relaydrive.io/index"
	"relaydrive.io/nevent"
	"relaydrive.io/relay"
	"relaydrive.io/signer/localsigner"
	"relaydrive.io/syncengine"
	"relaydrive.io/valid"
)

// decodeHex32 decodes a 32-byte hex-encoded value into dst.
func decodeHex32(s string, dst *[32]byte) error {
	b, err := hex.DecodeString(s)
	if err != nil {
		return err
	}
	if len(b) != 32 {
		return errors.Str("hex value is not 32 bytes")
	}
	copy(dst[:], b)
	return nil
}

func hexEncode32(b [32]byte) string {
	return hex.EncodeToString(b[:])
}

// ShareWithUser re-seals the metadata of the event authored by me under
// eventID for recipientPubHex, publishing a new DRIVE event tagged to
// them. It refuses unless the source event was authored by me.
func (d *Drive) ShareWithUser(ctx context.Context, eventID, recipientPubHex string) (*DriveItem, error) {
	const op = "drive.ShareWithUser"
	if err := valid.Pubkey(recipientPubHex); err != nil {
		return nil, errors.E(op, err)
	}
	me := d.me()

	src, err := d.Index.Get(ctx, eventID)
	if err != nil {
		return nil, errors.E(op, err)
	}
	if src.Event.Pubkey != me {
		return nil, errors.E(op, errors.Unauthorized, errors.Errorf("event %s not authored by me", eventID))
	}

	ev, err := event.BuildDrive(d.Signer, d.Seal, recipientPubHex, src.DecryptedContent, now())
	if err != nil {
		return nil, errors.E(op, errors.CryptoFailed, err)
	}
	rec := &index.Record{
		Event:            *ev,
		DecryptedContent: src.DecryptedContent,
		SharedWith:       recipientPubHex,
		OriginalEventID:  eventID,
	}
	if err := d.Index.Put(ctx, rec); err != nil {
		return nil, errors.E(op, err)
	}
	if err := d.Relay.Publish(ctx, ev); err != nil {
		return nil, errors.E(op, errors.NetworkFailed, err)
	}
	d.Engine.NotifyLocal(syncengine.Change{Type: syncengine.Shared, Path: rec.Path()})
	item := toItem(rec)
	return &item, nil
}

// GenerateShareLink generates a fresh per-share keypair, shares eventID to
// its public key via ShareWithUser, and returns a link encoding a pointer
// to the resulting share event alongside the share private key — plain
// nsec1 if password is empty, or a password-wrapped ncryptsec1 envelope
// otherwise.
func (d *Drive) GenerateShareLink(ctx context.Context, eventID, password, baseURL string, relays []string) (string, error) {
	const op = "drive.GenerateShareLink"
	shareSigner, err := localsigner.Generate()
	if err != nil {
		return "", errors.E(op, errors.CryptoFailed, err)
	}
	shared, err := d.ShareWithUser(ctx, eventID, shareSigner.Pubkey())
	if err != nil {
		return "", errors.E(op, err)
	}

	var authorBytes [32]byte
	authorHex := d.me()
	if err := decodeHex32(authorHex, &authorBytes); err != nil {
		return "", errors.E(op, errors.InvalidArgument, err)
	}
	kind := uint32(event.KindDrive)
	ptr := nevent.Pointer{Author: &authorBytes, Kind: &kind, Relays: relays}
	if err := decodeHex32(shared.EventID, &ptr.EventID); err != nil {
		return "", errors.E(op, errors.InvalidArgument, err)
	}
	nev, err := nevent.Encode(ptr)
	if err != nil {
		return "", errors.E(op, err)
	}

	skBytes := shareSigner.Bytes()
	var encoded string
	if password == "" {
		encoded, err = cryptofile.EncodeNsec(skBytes)
	} else {
		encoded, err = cryptofile.EncodeNcryptsec(skBytes, password)
	}
	if err != nil {
		return "", errors.E(op, errors.CryptoFailed, err)
	}
	return baseURL + "/" + nev + "/" + encoded, nil
}

// AccessSharedFile decodes nevent, fetches the referenced event by id from
// scratchRelay (a client scoped to whatever relays the caller has already
// dialed for this purpose), verifies it names the
// share's public key in a p tag, decrypts it under the share's private
// key, and returns its file metadata. It has no effect on d's index and
// does not close scratchRelay; the caller owns that client's lifetime.
func AccessSharedFile(ctx context.Context, scratchRelay relay.Client, nev string, skShare [32]byte) (*FileMetadata, error) {
	const op = "drive.AccessSharedFile"
	ptr, err := nevent.Decode(nev)
	if err != nil {
		return nil, errors.E(op, err)
	}
	shareSigner, err := localsigner.FromBytes(skShare[:])
	if err != nil {
		return nil, errors.E(op, errors.CryptoFailed, err)
	}
	pkShare := shareSigner.Pubkey()

	eventIDHex := hexEncode32(ptr.EventID)
	ev, err := scratchRelay.QueryByID(ctx, eventIDHex)
	if err != nil {
		return nil, errors.E(op, errors.NetworkFailed, err)
	}
	if !ev.HasPTag(pkShare) {
		return nil, errors.E(op, errors.Unauthorized, errors.Errorf("event %s is not shared to this key", eventIDHex))
	}
	plain, err := shareSigner.Open(ev.Pubkey, ev.Content)
	if err != nil {
		return nil, errors.E(op, errors.CryptoFailed, err)
	}
	content, err := event.ParseContent(plain)
	if err != nil {
		return nil, errors.E(op, errors.InvalidArgument, err)
	}
	fc, ok := content.(*event.FileContent)
	if !ok {
		return nil, errors.E(op, errors.InvalidArgument, errors.Str("shared event is not a file"))
	}
	return contentToMetadata(ev.ID, fc), nil
}

// SharedFileAccess is the parsed, not-yet-decoded form of a share link.
type SharedFileAccess struct {
	EventID             string
	Relays              []string
	Author              string
	Kind                int
	EncodedPrivateKey   string
	IsPasswordProtected bool
	Nevent              string
}

// ParseShareLink splits link into its nevent and encoded-key segments and
// decodes the nevent, without touching the encoded key's contents beyond
// checking its HRP.
func ParseShareLink(link string) (*SharedFileAccess, error) {
	const op = "drive.ParseShareLink"
	parts := strings.Split(link, "/")
	if len(parts) < 2 {
		return nil, errors.E(op, errors.InvalidArgument, errors.Errorf("malformed share link %q", link))
	}
	encodedKey := parts[len(parts)-1]
	nev := parts[len(parts)-2]

	ptr, err := nevent.Decode(nev)
	if err != nil {
		return nil, errors.E(op, err)
	}
	sfa := &SharedFileAccess{
		EventID:             hexEncode32(ptr.EventID),
		Relays:              ptr.Relays,
		EncodedPrivateKey:   encodedKey,
		IsPasswordProtected: strings.HasPrefix(encodedKey, "ncryptsec1"),
		Nevent:              nev,
	}
	if ptr.Author != nil {
		sfa.Author = hexEncode32(*ptr.Author)
	}
	if ptr.Kind != nil {
		sfa.Kind = int(*ptr.Kind)
	}
	return sfa, nil
}

// DecodeShareKey decodes an nsec1 or ncryptsec1 encoded private key,
// supplying password for the latter, and returns the raw 32-byte key.
func DecodeShareKey(encoded, password string) ([32]byte, error) {
	const op = "drive.DecodeShareKey"
	var key [32]byte
	var err error
	if strings.HasPrefix(encoded, "ncryptsec1") {
		key, err = cryptofile.DecodeNcryptsec(encoded, password)
	} else {
		key, err = cryptofile.DecodeNsec(encoded)
	}
	if err != nil {
		return key, errors.E(op, errors.CryptoFailed, err)
	}
	return key, nil
}

// FolderSize sums the size of every file item whose path lies within
// folderPath, recursively.
func FolderSize(items []DriveItem, folderPath string) int64 {
	prefix := strings.TrimSuffix(folderPath, "/") + "/"
	var total int64
	for _, it := range items {
		if it.Type != "file" {
			continue
		}
		if it.Path == folderPath || strings.HasPrefix(it.Path, prefix) {
			total += it.Size
		}
	}
	return total
}
