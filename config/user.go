// Copyright 2016 The Upspin Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package config

import (
	"os"
	"path/filepath"
	"strings"

	"relaydrive.io/cryptofile"
	"relaydrive.io/errors"
	"relaydrive.io/signer/localsigner"
)

// Identity loads the signer described by cfg.IdentityFile. The file may
// hold a plain "nsec1..." envelope or a password-protected
// "ncryptsec1..." envelope; password is ignored for the former and
// required for the latter.
func (cfg *Config) Identity(password string) (*localsigner.Signer, error) {
	const op = "config.Identity"
	if cfg.IdentityFile == "" {
		return nil, errors.E(op, errors.NotLoggedIn, errors.Str("no identity file configured"))
	}

	data, err := os.ReadFile(cfg.IdentityFile)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.E(op, errors.NotLoggedIn, err)
		}
		return nil, errors.E(op, err)
	}

	envelope := strings.TrimSpace(string(data))
	switch {
	case strings.HasPrefix(envelope, "ncryptsec1"):
		key, err := cryptofile.DecodeNcryptsec(envelope, password)
		if err != nil {
			return nil, errors.E(op, err)
		}
		return localsigner.FromBytes(key[:])
	case strings.HasPrefix(envelope, "nsec1"):
		key, err := cryptofile.DecodeNsec(envelope)
		if err != nil {
			return nil, errors.E(op, err)
		}
		return localsigner.FromBytes(key[:])
	default:
		return nil, errors.E(op, errors.InvalidArgument, errors.Str("identity file holds neither an nsec nor an ncryptsec envelope"))
	}
}

// WriteIdentity generates a fresh identity, writes its envelope to
// cfg.IdentityFile (password-protected if password is non-empty), and
// returns the new identity's hex-encoded public key. It creates the
// identity file's parent directory if necessary and refuses to
// overwrite an existing identity file.
func (cfg *Config) WriteIdentity(password string) (string, error) {
	const op = "config.WriteIdentity"
	if cfg.IdentityFile == "" {
		return "", errors.E(op, errors.InvalidArgument, errors.Str("no identity file path configured"))
	}
	if _, err := os.Stat(cfg.IdentityFile); err == nil {
		return "", errors.E(op, errors.InvalidArgument, errors.Errorf("identity file %q already exists", cfg.IdentityFile))
	}

	signer, err := localsigner.Generate()
	if err != nil {
		return "", errors.E(op, err)
	}

	var envelope string
	if password != "" {
		envelope, err = cryptofile.EncodeNcryptsec(signer.Bytes(), password)
	} else {
		envelope, err = cryptofile.EncodeNsec(signer.Bytes())
	}
	if err != nil {
		return "", errors.E(op, err)
	}

	if err := os.MkdirAll(filepath.Dir(cfg.IdentityFile), 0700); err != nil {
		return "", errors.E(op, err)
	}
	if err := os.WriteFile(cfg.IdentityFile, []byte(envelope+"\n"), 0600); err != nil {
		return "", errors.E(op, err)
	}

	return signer.Pubkey(), nil
}
