// Copyright 2016 The Upspin Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"relaydrive.io/config"
	"relaydrive.io/drive"
)

// Global persistent flags, bound in newRootCmd.
var (
	flagConfigPath string
	flagPassword   string
	flagJSON       bool
)

// skipSessionAnnotation marks commands that must run before a Drive
// session exists (init writes the very identity file a session would
// load).
const skipSessionAnnotation = "skipSession"

// cliContextKey is the context key under which the running session is
// stashed for subcommands to retrieve.
type cliContextKey struct{}

// session bundles the config and live Drive handle built once in
// PersistentPreRunE and shared by every RunE in this invocation.
type session struct {
	cfg *config.Config
	d   *drive.Drive
}

func sessionFrom(ctx context.Context) *session {
	s, _ := ctx.Value(cliContextKey{}).(*session)
	return s
}

func mustSession(ctx context.Context) *session {
	s := sessionFrom(ctx)
	if s == nil {
		panic("drivectl: BUG: no session in context; command should not have skipped session setup")
	}
	return s
}

// newRootCmd builds the fully assembled command tree.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "drivectl",
		Short:         "Command-line client for a relaydrive personal drive",
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Annotations[skipSessionAnnotation] == "true" {
				return nil
			}
			return loadSession(cmd)
		},
	}

	cmd.PersistentFlags().StringVar(&flagConfigPath, "config", "", "config file path (default $HOME/.relaydrive/config.toml)")
	cmd.PersistentFlags().StringVar(&flagPassword, "password", "", "password for a password-protected identity or share link")
	cmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "output in JSON format")

	cmd.AddCommand(newInitCmd())
	cmd.AddCommand(newLsCmd())
	cmd.AddCommand(newMkdirCmd())
	cmd.AddCommand(newPutCmd())
	cmd.AddCommand(newGetCmd())
	cmd.AddCommand(newMvCmd())
	cmd.AddCommand(newCpCmd())
	cmd.AddCommand(newRmCmd())
	cmd.AddCommand(newFindCmd())
	cmd.AddCommand(newShareCmd())
	cmd.AddCommand(newOpenShareCmd())
	cmd.AddCommand(newShellCmd())

	return cmd
}

// activeSession, when non-nil, is reused by loadSession instead of
// building a new one. The shell command sets this so that every line it
// dispatches shares the one in-process relay, blob store and index
// opened for the shell itself, rather than each line getting its own
// (and losing all prior state, since the transport is in-process only).
var activeSession *session

// loadSession resolves the config, loads the identity, opens the index
// and starts a sync engine over a fresh in-process relay and blob
// store, then stashes the result in the command's context.
func loadSession(cmd *cobra.Command) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	if activeSession != nil {
		cmd.SetContext(context.WithValue(ctx, cliContextKey{}, activeSession))
		return nil
	}

	path := flagConfigPath
	if path == "" {
		path = config.DefaultConfigPath()
	}
	cfg, err := config.LoadOrDefault(path)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	d, err := newDrive(ctx, cfg, flagPassword)
	if err != nil {
		return err
	}

	cmd.SetContext(context.WithValue(ctx, cliContextKey{}, &session{cfg: cfg, d: d}))
	return nil
}
