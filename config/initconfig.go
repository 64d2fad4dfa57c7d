// Copyright 2016 The Upspin Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package config loads a drive client configuration from a TOML file,
// falling back to defaults for anything left unset.
package config // import "relaydrive.io/config"

import (
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"relaydrive.io/errors"
)

// Config holds everything a drive client needs to reach a relay, a blob
// server, its local index, and its own identity.
type Config struct {
	// IdentityFile is the path to a file holding an nsec or ncryptsec
	// envelope (see relaydrive.io/cryptofile). Empty means no identity
	// has been configured yet.
	IdentityFile string `toml:"identity_file"`

	// Relays is the set of relay WebSocket URLs the sync engine
	// subscribes to and publishes against.
	Relays []string `toml:"relays"`

	// BlobServer is the base URL of the content-addressed blob store.
	BlobServer string `toml:"blob_server"`

	// IndexPath is the path to the local sqlite index database.
	IndexPath string `toml:"index_path"`
}

// Known keys. All others are treated as errors.
const (
	keyIdentityFile = "identity_file"
	keyRelays       = "relays"
	keyBlobServer   = "blob_server"
	keyIndexPath    = "index_path"
)

// defaultRelay is used when a config omits relays entirely; it points
// nowhere useful but keeps a freshly-initialized config well-formed.
const defaultRelay = "wss://relay.relaydrive.io"

// Default returns a config with every field set to its default value,
// mirroring the teacher's zero-config base{} pattern: a caller can use
// the result directly, without a config file on disk.
func Default() *Config {
	home, err := Homedir()
	if err != nil {
		home = "."
	}
	return &Config{
		IdentityFile: filepath.Join(home, defaultDirName, "identity"),
		Relays:       []string{defaultRelay},
		BlobServer:   "https://blob.relaydrive.io",
		IndexPath:    filepath.Join(home, defaultDirName, "index.db"),
	}
}

// FromFile reads and parses a TOML config file at path, overlaying any
// keys it sets on top of Default. Unrecognized keys are a fatal error.
func FromFile(path string) (*Config, error) {
	const op = "config.FromFile"

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.E(op, errors.NotFound, err)
		}
		return nil, errors.E(op, err)
	}

	cfg := Default()
	md, err := toml.Decode(string(data), cfg)
	if err != nil {
		return nil, errors.E(op, errors.InvalidArgument, err)
	}
	if err := checkUnknownKeys(&md); err != nil {
		return nil, errors.E(op, errors.InvalidArgument, err)
	}

	if err := validate(cfg); err != nil {
		return nil, errors.E(op, errors.InvalidArgument, err)
	}

	return cfg, nil
}

// LoadOrDefault reads the config file at path if it exists, otherwise
// returns Default(). This is the zero-config first-run path: a client
// can start talking to the default relay and blob server without the
// user writing a config file by hand.
func LoadOrDefault(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return Default(), nil
	}
	return FromFile(path)
}

func validate(cfg *Config) error {
	if len(cfg.Relays) == 0 {
		return errors.Str("config: at least one relay is required")
	}
	if cfg.BlobServer == "" {
		return errors.Str("config: blob_server is required")
	}
	if cfg.IndexPath == "" {
		return errors.Str("config: index_path is required")
	}
	return nil
}
