// Copyright 2016 The Upspin Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

// newShellCmd runs an interactive session for drivectl subcommands.
// Because the relay and blob store backing a session live only in this
// process, a single invocation of "ls", "put", "share" and so on each
// sees nothing the others did; running them inside one shell session
// keeps them all talking to the same in-process drive.
func newShellCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "shell",
		Short: "Run an interactive session sharing one drive across commands",
		Args:  cobra.NoArgs,
		RunE:  runShell,
	}
	cmd.Flags().Bool("verbose", false, "print each command before executing it")
	return cmd
}

func runShell(cmd *cobra.Command, _ []string) error {
	verbose, _ := cmd.Flags().GetBool("verbose")

	// The root PersistentPreRunE already built one session for the
	// "shell" command itself; pin it so every dispatched line reuses it.
	activeSession = mustSession(cmd.Context())
	defer func() { activeSession = nil }()

	fmt.Fprintln(os.Stderr, "drivectl> type a subcommand, or \"exit\"")
	scanner := bufio.NewScanner(os.Stdin)
	for fmt.Fprint(os.Stderr, "drivectl> "); scanner.Scan(); fmt.Fprint(os.Stderr, "drivectl> ") {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "exit" || line == "quit" {
			return nil
		}
		if verbose {
			fmt.Fprintln(os.Stderr, "+ "+line)
		}
		dispatch(strings.Fields(line))
	}
	return scanner.Err()
}

// dispatch runs one shell line as a fresh drivectl invocation sharing
// activeSession, printing any error without aborting the shell loop.
func dispatch(words []string) {
	sub := newRootCmd()
	sub.SetArgs(words)
	if err := sub.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "drivectl: %v\n", err)
	}
}
