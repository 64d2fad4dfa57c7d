// Copyright 2016 The Upspin Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package index // import "relaydrive.io/index"

import (
	"encoding/json"

	"relaydrive.io/errors"
	"relaydrive.io/event"
)

// Record is the value stored under a drive_events row: the signed event as
// received from the relay network, its decrypted metadata object, and the
// derived fields a share operation attaches.
type Record struct {
	Event            event.Event `json:"event"`
	DecryptedContent interface{} `json:"decryptedContent"`
	SharedWith       string      `json:"sharedWith,omitempty"`
	OriginalEventID  string      `json:"originalEventId,omitempty"`
}

// Path returns the path named by the record's decrypted content.
func (r *Record) Path() string {
	p, _ := event.Path(r.DecryptedContent)
	return p
}

// ContentType returns "file" or "folder", the discriminator of the
// record's decrypted content.
func (r *Record) ContentType() string {
	switch r.DecryptedContent.(type) {
	case *event.FileContent:
		return "file"
	case *event.FolderContent:
		return "folder"
	}
	return ""
}

// recordEnvelope is the JSON shape actually persisted in record_json: it
// carries the decrypted content as a tagged union so it round-trips
// through Record.DecryptedContent, which is untyped.
type recordEnvelope struct {
	Event            event.Event     `json:"event"`
	ContentType      string          `json:"contentType"`
	DecryptedContent json.RawMessage `json:"decryptedContent"`
	SharedWith       string          `json:"sharedWith,omitempty"`
	OriginalEventID  string          `json:"originalEventId,omitempty"`
}

func marshalRecord(r *Record) ([]byte, error) {
	const op = "index.marshalRecord"
	contentJSON, err := json.Marshal(r.DecryptedContent)
	if err != nil {
		return nil, errors.E(op, errors.InvalidArgument, err)
	}
	env := recordEnvelope{
		Event:            r.Event,
		ContentType:      r.ContentType(),
		DecryptedContent: contentJSON,
		SharedWith:       r.SharedWith,
		OriginalEventID:  r.OriginalEventID,
	}
	b, err := json.Marshal(env)
	if err != nil {
		return nil, errors.E(op, errors.InvalidArgument, err)
	}
	return b, nil
}

func unmarshalRecord(b []byte) (*Record, error) {
	const op = "index.unmarshalRecord"
	var env recordEnvelope
	if err := json.Unmarshal(b, &env); err != nil {
		return nil, errors.E(op, errors.InvalidArgument, err)
	}
	r := &Record{
		Event:           env.Event,
		SharedWith:      env.SharedWith,
		OriginalEventID: env.OriginalEventID,
	}
	switch env.ContentType {
	case "file":
		var c event.FileContent
		if err := json.Unmarshal(env.DecryptedContent, &c); err != nil {
			return nil, errors.E(op, errors.InvalidArgument, err)
		}
		r.DecryptedContent = &c
	case "folder":
		var c event.FolderContent
		if err := json.Unmarshal(env.DecryptedContent, &c); err != nil {
			return nil, errors.E(op, errors.InvalidArgument, err)
		}
		r.DecryptedContent = &c
	default:
		return nil, errors.E(op, errors.InvalidArgument, errors.Errorf("unknown content type %q", env.ContentType))
	}
	return r, nil
}
