// Copyright 2016 The Upspin Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"relaydrive.io/config"
)

func newInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:         "init",
		Short:       "Generate a new identity and write the default config",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{skipSessionAnnotation: "true"},
		RunE:        runInit,
	}
	return cmd
}

func runInit(cmd *cobra.Command, _ []string) error {
	path := flagConfigPath
	if path == "" {
		path = config.DefaultConfigPath()
	}

	cfg, err := config.LoadOrDefault(path)
	if err != nil {
		return err
	}

	pub, err := cfg.WriteIdentity(flagPassword)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "identity written to %s\npubkey: %s\n", cfg.IdentityFile, pub)
	return nil
}
