// Copyright 2016 The Upspin Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package config

import (
	"github.com/BurntSushi/toml"

	"relaydrive.io/errors"
)

// knownKeys are the valid top-level keys in the config file. Anything
// else is treated as a typo rather than silently ignored.
var knownKeys = map[string]bool{
	keyIdentityFile: true,
	keyRelays:       true,
	keyBlobServer:   true,
	keyIndexPath:    true,
}

// checkUnknownKeys inspects TOML metadata for undecoded keys and returns
// an error naming the first one found.
func checkUnknownKeys(md *toml.MetaData) error {
	for _, key := range md.Undecoded() {
		k := key.String()
		if knownKeys[k] {
			continue
		}
		return errors.E(errors.InvalidArgument, errors.Errorf("unknown config key %q", k))
	}
	return nil
}
