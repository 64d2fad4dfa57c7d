// Copyright 2016 The Upspin Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"relaydrive.io/drive"
)

func newShareCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "share <event-id>",
		Short: "Share a file directly with another user, or generate a share link",
		Args:  cobra.ExactArgs(1),
		RunE:  runShare,
	}
	cmd.Flags().String("with", "", "pubkey hex of the recipient, for a direct share")
	cmd.Flags().String("link", "", "base URL to prefix a generated share link with")
	cmd.Flags().StringSlice("relay", nil, "relay URLs to embed in a generated share link")
	return cmd
}

func runShare(cmd *cobra.Command, args []string) error {
	s := mustSession(cmd.Context())
	eventID := args[0]

	if recipient, _ := cmd.Flags().GetString("with"); recipient != "" {
		item, err := s.d.ShareWithUser(cmd.Context(), eventID, recipient)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "shared %s with %s\n", item.Path, recipient)
		return nil
	}

	baseURL, _ := cmd.Flags().GetString("link")
	relays, _ := cmd.Flags().GetStringSlice("relay")
	if len(relays) == 0 {
		relays = s.cfg.Relays
	}

	link, err := s.d.GenerateShareLink(cmd.Context(), eventID, flagPassword, baseURL, relays)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), link)
	return nil
}

func newOpenShareCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "open-share <share-link>",
		Short: "Resolve a share link against a scratch relay and print its metadata",
		Args:  cobra.ExactArgs(1),
		RunE:  runOpenShare,
	}
}

func runOpenShare(cmd *cobra.Command, args []string) error {
	access, err := drive.ParseShareLink(args[0])
	if err != nil {
		return err
	}
	skShare, err := drive.DecodeShareKey(access.EncodedPrivateKey, flagPassword)
	if err != nil {
		return err
	}

	// A scratch relay stands in for whichever of access.Relays the link
	// names; dialing out to them is the out-of-scope network transport
	// (see DESIGN.md), so here we resolve against the caller's own
	// in-process relay, which must already hold the shared event for
	// this to succeed (e.g. after a prior "share" in the same session).
	scratch := mustSession(cmd.Context()).d.Relay
	meta, err := drive.AccessSharedFile(cmd.Context(), scratch, access.Nevent, skShare)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s hash=%s size=%d\n", meta.Path, meta.Hash, meta.Size)
	return nil
}
