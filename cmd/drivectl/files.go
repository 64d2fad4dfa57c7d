// Copyright 2016 The Upspin Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"mime"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"relaydrive.io/drive"
	"relaydrive.io/drivepath"
)

// printItems writes items as JSON if --json was given, otherwise as
// plain tab-separated lines via format.
func printItems(cmd *cobra.Command, items []drive.DriveItem, format func(it drive.DriveItem) string) error {
	if flagJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(items)
	}
	for _, it := range items {
		fmt.Fprintln(cmd.OutOrStdout(), format(it))
	}
	return nil
}

func newLsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ls [path]",
		Short: "List files and folders",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runLs,
	}
	cmd.Flags().BoolP("recursive", "r", false, "list recursively")
	return cmd
}

func runLs(cmd *cobra.Command, args []string) error {
	s := mustSession(cmd.Context())
	p, err := argPath(args, drivepath.Root)
	if err != nil {
		return err
	}
	recursive, _ := cmd.Flags().GetBool("recursive")

	items, err := s.d.List(cmd.Context(), p, nil, recursive)
	if err != nil {
		return err
	}
	return printItems(cmd, items, func(it drive.DriveItem) string {
		if it.Type == "folder" {
			return it.Path + "/"
		}
		return fmt.Sprintf("%s\t%d\t%s", it.Path, it.Size, it.Hash)
	})
}

func newMkdirCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mkdir <path>",
		Short: "Create a folder",
		Args:  cobra.ExactArgs(1),
		RunE:  runMkdir,
	}
}

func runMkdir(cmd *cobra.Command, args []string) error {
	s := mustSession(cmd.Context())
	p, err := drivepath.Parse(args[0])
	if err != nil {
		return err
	}
	item, err := s.d.CreateFolder(cmd.Context(), p)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "created %s (%s)\n", item.Path, item.EventID)
	return nil
}

func newPutCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "put <local-path> <remote-path>",
		Short: "Upload a file",
		Args:  cobra.ExactArgs(2),
		RunE:  runPut,
	}
	cmd.Flags().Bool("encrypt", true, "encrypt file contents before upload")
	return cmd
}

func runPut(cmd *cobra.Command, args []string) error {
	s := mustSession(cmd.Context())
	data, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}
	p, err := drivepath.Parse(args[1])
	if err != nil {
		return err
	}
	encrypt, _ := cmd.Flags().GetBool("encrypt")
	mimeType := mime.TypeByExtension(filepath.Ext(args[0]))
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}

	meta, err := s.d.UploadFile(cmd.Context(), data, p, mimeType, encrypt)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "uploaded %s (%s) hash=%s\n", meta.Path, meta.EventID, meta.Hash)
	if meta.DecryptionKey != "" {
		fmt.Fprintf(cmd.OutOrStdout(), "key=%s nonce=%s\n", meta.DecryptionKey, meta.DecryptionNonce)
	}
	return nil
}

func newGetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get <hash> <local-path>",
		Short: "Download a file by content hash",
		Args:  cobra.ExactArgs(2),
		RunE:  runGet,
	}
	cmd.Flags().String("key", "", "base64 decryption key, for encrypted files")
	cmd.Flags().String("nonce", "", "base64 decryption nonce, for encrypted files")
	return cmd
}

func runGet(cmd *cobra.Command, args []string) error {
	s := mustSession(cmd.Context())
	keyStr, _ := cmd.Flags().GetString("key")
	nonceStr, _ := cmd.Flags().GetString("nonce")

	var key, nonce []byte
	var err error
	if keyStr != "" {
		if key, err = base64.StdEncoding.DecodeString(keyStr); err != nil {
			return fmt.Errorf("decoding --key: %w", err)
		}
	}
	if nonceStr != "" {
		if nonce, err = base64.StdEncoding.DecodeString(nonceStr); err != nil {
			return fmt.Errorf("decoding --nonce: %w", err)
		}
	}

	data, err := s.d.DownloadFile(cmd.Context(), args[0], key, nonce)
	if err != nil {
		return err
	}
	if err := os.WriteFile(args[1], data, 0600); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "wrote %d bytes to %s\n", len(data), args[1])
	return nil
}

func newMvCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mv <old-path> <new-path>",
		Short: "Rename or move a file or folder",
		Args:  cobra.ExactArgs(2),
		RunE:  runMv,
	}
}

func runMv(cmd *cobra.Command, args []string) error {
	s := mustSession(cmd.Context())
	oldPath, err := drivepath.Parse(args[0])
	if err != nil {
		return err
	}
	newPath, err := drivepath.Parse(args[1])
	if err != nil {
		return err
	}
	if err := s.d.Move(cmd.Context(), oldPath, newPath); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "moved %s -> %s\n", oldPath, newPath)
	return nil
}

func newCpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cp <src-path> <dst-path>",
		Short: "Copy a file or folder",
		Args:  cobra.ExactArgs(2),
		RunE:  runCp,
	}
}

func runCp(cmd *cobra.Command, args []string) error {
	s := mustSession(cmd.Context())
	src, err := drivepath.Parse(args[0])
	if err != nil {
		return err
	}
	dst, err := drivepath.Parse(args[1])
	if err != nil {
		return err
	}
	if err := s.d.Copy(cmd.Context(), src, dst); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "copied %s -> %s\n", src, dst)
	return nil
}

func newRmCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rm <path>",
		Short: "Delete a file or folder",
		Args:  cobra.ExactArgs(1),
		RunE:  runRm,
	}
	cmd.Flags().String("event-id", "", "delete a specific version by event id instead of by path")
	return cmd
}

func runRm(cmd *cobra.Command, args []string) error {
	s := mustSession(cmd.Context())
	if eventID, _ := cmd.Flags().GetString("event-id"); eventID != "" {
		return s.d.DeleteByID(cmd.Context(), eventID)
	}
	p, err := drivepath.Parse(args[0])
	if err != nil {
		return err
	}
	if err := s.d.DeleteByPath(cmd.Context(), p); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "removed %s\n", p)
	return nil
}

func newFindCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "find <query>",
		Short: "Search files and folders by name or type",
		Args:  cobra.ExactArgs(1),
		RunE:  runFind,
	}
}

func runFind(cmd *cobra.Command, args []string) error {
	s := mustSession(cmd.Context())
	items, err := s.d.Search(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	return printItems(cmd, items, func(it drive.DriveItem) string { return it.Path })
}

// argPath returns the path given as args[0], or def if args is empty.
func argPath(args []string, def drivepath.Path) (drivepath.Path, error) {
	if len(args) == 0 {
		return def, nil
	}
	return drivepath.Parse(args[0])
}
