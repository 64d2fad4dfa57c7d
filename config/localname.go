// Copyright 2016 The Upspin Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package config

import (
	"os"
	osuser "os/user"
	"path/filepath"

	"relaydrive.io/errors"
)

// defaultDirName is the per-user directory holding the identity file,
// the local index, and the config file itself, unless overridden.
const defaultDirName = ".relaydrive"

// DefaultConfigPath returns $HOME/.relaydrive/config.toml.
func DefaultConfigPath() string {
	home, err := Homedir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, defaultDirName, "config.toml")
}

// Homedir returns the home directory of the OS' logged-in user.
func Homedir() (string, error) {
	u, err := osuser.Current()
	// user.Current may return an error, but we should only handle it if
	// it returns a nil user. os/user is wonky without cgo, but it should
	// work well enough for our purposes.
	if u == nil {
		e := errors.Str("lookup of current user failed")
		if err != nil {
			e = errors.Errorf("%v: %v", e, err)
		}
		return "", e
	}
	h := u.HomeDir
	if h == "" {
		return "", errors.E(errors.NotFound, errors.Str("user home directory not found"))
	}
	if err := isDir(h); err != nil {
		return "", err
	}
	return h, nil
}

// Home returns the home directory of the user, or panics if it cannot
// find one.
func Home() string {
	home, err := Homedir()
	if err != nil {
		panic(err)
	}
	return home
}

func isDir(p string) error {
	fi, err := os.Stat(p)
	if err != nil {
		return errors.E(errors.NotFound, err)
	}
	if !fi.IsDir() {
		return errors.E(errors.InvalidArgument, errors.Errorf("%s is not a directory", p))
	}
	return nil
}
