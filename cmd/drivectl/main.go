// Copyright 2016 The Upspin Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command drivectl is the command-line client for a relaydrive personal
// drive: it loads an identity and configuration, starts a sync engine
// against a relay and blob store, and exposes the drive operations as
// subcommands.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "drivectl: %v\n", err)
		os.Exit(1)
	}
}
