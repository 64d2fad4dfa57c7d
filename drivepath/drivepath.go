// Copyright 2016 The Upspin Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package drivepath provides tools for parsing, cleaning and comparing the
// absolute, slash-separated paths used to name items in a drive. Unlike a
// filesystem path, a drive path carries no user or host component: the root
// is "/" and every other path is an absolute, normalised descendant of it.
package drivepath // import "relaydrive.io/drivepath"

import (
	gopath "path"
	"strings"

	"relaydrive.io/errors"
)

// Path is the canonical string representation of a drive path. It is always
// absolute and normalised once constructed by Clean, Parse or Join.
type Path string

// Root is the path of the drive's root directory.
const Root Path = "/"

// IsAbs reports whether p begins with a slash.
func IsAbs(p Path) bool {
	return strings.HasPrefix(string(p), "/")
}

// Clean normalises p: it collapses repeated slashes, resolves "." and ".."
// elements textually (without touching any filesystem or index), and removes
// any trailing slash except for the root. Clean is idempotent:
// Clean(Clean(p)) == Clean(p) for every input.
func Clean(p Path) Path {
	s := string(p)
	if s == "" {
		return Root
	}
	if !strings.HasPrefix(s, "/") {
		s = "/" + s
	}
	cleaned := gopath.Clean(s)
	if cleaned == "." {
		cleaned = "/"
	}
	return Path(cleaned)
}

// Parse validates that p is an absolute path and returns its cleaned form.
// It is the entry point every public drive operation uses to turn a caller
// supplied string into a Path; it returns errors.InvalidArgument if p is not
// absolute.
func Parse(p string) (Path, error) {
	const op = "drivepath.Parse"
	if !strings.HasPrefix(p, "/") {
		return "", errors.E(op, errors.InvalidArgument, errors.Errorf("path %q is not absolute", p))
	}
	return Clean(Path(p)), nil
}

// Dir returns all but the last element of p, following the rules of Go's
// path.Dir, applied to an already-clean path.
func Dir(p Path) Path {
	return Clean(Path(gopath.Dir(string(Clean(p)))))
}

// Base returns the last element of p. Base("/") is "/".
func Base(p Path) string {
	return gopath.Base(string(Clean(p)))
}

// Join joins a to b, inserting a separating slash as needed, and returns the
// cleaned result.
func Join(a Path, b string) Path {
	if b == "" {
		return Clean(a)
	}
	if string(a) == "/" {
		return Clean(Path("/" + b))
	}
	return Clean(Path(string(a) + "/" + b))
}

// IsWithin reports whether child is a proper descendant of parent: that is,
// parent is an ancestor of child under component-wise comparison. IsWithin
// is false when parent == child, and false for a parent that is merely a
// string prefix without a path-element boundary — "/a" is not within "/ab".
func IsWithin(parent, child Path) bool {
	parent, child = Clean(parent), Clean(child)
	if parent == child {
		return false
	}
	if parent == Root {
		return child != Root
	}
	prefix := string(parent) + "/"
	return strings.HasPrefix(string(child), prefix)
}

// Equal reports whether two (possibly un-cleaned) paths denote the same
// normalised path.
func Equal(a, b Path) bool {
	return Clean(a) == Clean(b)
}

// Elements returns the non-empty path components of p, excluding the
// leading slash. Elements("/") is an empty slice.
func Elements(p Path) []string {
	p = Clean(p)
	if p == Root {
		return nil
	}
	return strings.Split(strings.TrimPrefix(string(p), "/"), "/")
}
