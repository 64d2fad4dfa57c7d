// Copyright 2016 The Upspin Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package nevent encodes and decodes SharePointer values: bech32-wrapped
// TLV pointers to a drive event, carried inside a share link. The wire
// format is a sequence of (type, length, value) triples packed 8 bits to
// the byte, repacked to 5-bit groups and checksummed under the bech32 HRP
// "nevent".
package nevent // import "relaydrive.io/nevent"

import (
	"encoding/binary"
	"unicode/utf8"

	"github.com/btcsuite/btcutil/bech32"

	"relaydrive.io/errors"
)

// TLV type tags, per the share-pointer wire format.
const (
	tlvEventID = 0 // 32 bytes, required
	tlvRelay   = 1 // variable-length UTF-8
	tlvAuthor  = 2 // 32 bytes
	tlvKind    = 3 // 4 bytes, big-endian
)

// hrp is the bech32 human-readable prefix for a share pointer.
const hrp = "nevent"

// Pointer is a decoded share pointer: a reference to a drive event plus
// optional hints for locating and verifying it.
type Pointer struct {
	EventID [32]byte
	Relays  []string
	Author  *[32]byte
	Kind    *uint32
}

// Encode renders p as a bech32 string with HRP "nevent".
func Encode(p Pointer) (string, error) {
	const op = "nevent.Encode"
	var raw []byte
	raw = appendTLV(raw, tlvEventID, p.EventID[:])
	for _, r := range p.Relays {
		raw = appendTLV(raw, tlvRelay, []byte(r))
	}
	if p.Author != nil {
		raw = appendTLV(raw, tlvAuthor, p.Author[:])
	}
	if p.Kind != nil {
		var kb [4]byte
		binary.BigEndian.PutUint32(kb[:], *p.Kind)
		raw = appendTLV(raw, tlvKind, kb[:])
	}
	conv, err := bech32.ConvertBits(raw, 8, 5, true)
	if err != nil {
		return "", errors.E(op, errors.InvalidArgument, err)
	}
	s, err := bech32.Encode(hrp, conv)
	if err != nil {
		return "", errors.E(op, errors.InvalidArgument, err)
	}
	return s, nil
}

// appendTLV appends a single (type, length, value) triple to b. Values
// longer than 255 bytes are truncated to fit the one-byte length field;
// callers never pass one, since every defined type is either fixed-size
// or a relay URL well under that bound.
func appendTLV(b []byte, typ byte, value []byte) []byte {
	if len(value) > 255 {
		value = value[:255]
	}
	b = append(b, typ, byte(len(value)))
	return append(b, value...)
}

// Decode parses a bech32 "nevent" string into a Pointer. It rejects any
// string whose HRP is not "nevent" or whose TLV stream lacks a type-0
// event id. TLVs of unknown type are ignored; a relay TLV is discarded if
// it is not valid UTF-8; a kind TLV is discarded unless it is exactly 4
// bytes long.
func Decode(s string) (Pointer, error) {
	const op = "nevent.Decode"
	gotHRP, data, err := bech32.Decode(s)
	if err != nil {
		return Pointer{}, errors.E(op, errors.InvalidArgument, err)
	}
	if gotHRP != hrp {
		return Pointer{}, errors.E(op, errors.InvalidArgument, errors.Errorf("wrong prefix %q, want %q", gotHRP, hrp))
	}
	raw, err := bech32.ConvertBits(data, 5, 8, false)
	if err != nil {
		return Pointer{}, errors.E(op, errors.InvalidArgument, err)
	}

	var p Pointer
	haveEventID := false
	for len(raw) > 0 {
		if len(raw) < 2 {
			return Pointer{}, errors.E(op, errors.InvalidArgument, errors.Str("truncated TLV header"))
		}
		typ, length := raw[0], int(raw[1])
		raw = raw[2:]
		if len(raw) < length {
			return Pointer{}, errors.E(op, errors.InvalidArgument, errors.Str("truncated TLV value"))
		}
		value := raw[:length]
		raw = raw[length:]

		switch typ {
		case tlvEventID:
			if length != 32 {
				return Pointer{}, errors.E(op, errors.InvalidArgument, errors.Str("malformed event id TLV"))
			}
			copy(p.EventID[:], value)
			haveEventID = true
		case tlvRelay:
			if !isValidUTF8(value) {
				continue
			}
			p.Relays = append(p.Relays, string(value))
		case tlvAuthor:
			if length != 32 {
				continue
			}
			var author [32]byte
			copy(author[:], value)
			p.Author = &author
		case tlvKind:
			if length != 4 {
				continue
			}
			kind := binary.BigEndian.Uint32(value)
			p.Kind = &kind
		default:
			// Unknown type: ignore per the share-pointer wire format.
		}
	}
	if !haveEventID {
		return Pointer{}, errors.E(op, errors.InvalidArgument, errors.Str("missing event id TLV"))
	}
	return p, nil
}

func isValidUTF8(b []byte) bool {
	return utf8.Valid(b)
}
