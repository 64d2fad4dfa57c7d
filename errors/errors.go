// Copyright 2016 The Upspin Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package errors defines the error handling used throughout relaydrive.
package errors

import (
	"bytes"
	"encoding"
	"encoding/binary"
	"fmt"
	"runtime"

	"relaydrive.io/log"
)

// Error is the type that implements the error interface.
// It contains a number of fields, each of different type.
// An Error value may leave some values unset.
type Error struct {
	// Path is the path of the item being accessed, if any.
	Path string
	// User is the hex-encoded pubkey of the identity attempting the
	// operation, if known.
	User Who
	// Op is the operation being performed, usually the name of the
	// method being invoked (List, UploadFile, Move, ...).
	Op Op
	// Kind is the class of error, such as a permission failure, or
	// Other if its class is unknown or irrelevant.
	Kind Kind
	// The underlying error that triggered this one, if any.
	Err error

	stack
}

// Op describes an operation, usually as the package and method,
// such as "drive.UploadFile".
type Op string

// Who is the hex-encoded pubkey of an identity, given its own type so it
// is not confused with a bare Path when building an Error with E.
type Who string

var (
	_       error                      = (*Error)(nil)
	_       encoding.BinaryUnmarshaler = (*Error)(nil)
	_       encoding.BinaryMarshaler   = (*Error)(nil)
	zeroErr Error
)

// Separator is the string used to separate nested errors. By
// default, to make errors easier on the eye, nested errors are
// indented on a new line. Callers may instead choose to keep each
// error on a single line by modifying the separator string, perhaps
// to ":: ".
var Separator = ":\n\t"

// Kind defines the kind of error this is, used by callers (CLI, UI) that
// must act differently depending on the error.
type Kind uint8

// Kinds of errors, matching the taxonomy of the error handling design.
const (
	Other               Kind = iota // Unclassified error. Not printed.
	InvalidArgument                 // Non-absolute path, malformed share link, bad base64/TLV.
	NotLoggedIn                     // No current signer identity.
	NotFound                        // Referenced event id or path absent.
	Unauthorized                    // Operation on an event not authored by the caller.
	CryptoFailed                    // GCM tag mismatch, bad key/nonce length, seal/open failure.
	NetworkFailed                   // Blob upload/download or relay publish failure.
	ConcurrencyTerminated           // Operation invoked after dispose().
)

func (k Kind) String() string {
	switch k {
	case Other:
		return "other error"
	case InvalidArgument:
		return "invalid argument"
	case NotLoggedIn:
		return "not logged in"
	case NotFound:
		return "not found"
	case Unauthorized:
		return "unauthorized"
	case CryptoFailed:
		return "cryptographic operation failed"
	case NetworkFailed:
		return "network operation failed"
	case ConcurrencyTerminated:
		return "operation terminated"
	}
	return "unknown error kind"
}

// E builds an error value from its arguments.
// The type of each argument determines its meaning.
// If more than one argument of a given type is presented,
// only the last one is recorded.
//
// The types are:
//	errors.Op
//		The operation being performed, usually the method being invoked.
//	string
//		A bare string is always taken as a Path. Use errors.Errorf or
//		errors.Str to wrap free text as the Err field.
//	Kind
//		The class of error, such as a permission failure.
//	error
//		The underlying error that triggered this one.
//
// If the error is printed, only those items that have been
// set to non-zero values will appear in the result.
//
// If Kind is not specified or Other, we set it to the Kind of
// the underlying error.
func E(args ...interface{}) error {
	if len(args) == 0 {
		return nil
	}
	e := &Error{}
	for _, arg := range args {
		switch arg := arg.(type) {
		case Op:
			e.Op = arg
		case Who:
			e.User = arg
		case string:
			e.Path = arg
		case Kind:
			e.Kind = arg
		case *Error:
			// Make a copy.
			cp := *arg
			e.Err = &cp
		case error:
			e.Err = arg
		default:
			_, file, line, _ := runtime.Caller(1)
			log.Printf("errors.E: bad call from %s:%d: %v", file, line, args)
			return Errorf("unknown type %T, value %v in error call", arg, arg)
		}
	}
	e.populateStack()
	prev, ok := e.Err.(*Error)
	if !ok {
		return e
	}

	// The previous error was also one of ours. Suppress duplications
	// so the message won't contain the same kind, path or user twice.
	if prev.Path == e.Path {
		prev.Path = ""
	}
	if prev.User == e.User {
		prev.User = ""
	}
	if prev.Kind == e.Kind {
		prev.Kind = Other
	}
	// If this error has Kind unset or Other, pull up the inner one.
	if e.Kind == Other {
		e.Kind = prev.Kind
		prev.Kind = Other
	}
	return e
}

// User attaches the given identity to err if err is (or wraps) an *Error.
// It is a convenience for call sites that learn the acting identity only
// after the error has been constructed.
func User(err error, who string) error {
	if e, ok := err.(*Error); ok {
		e.User = Who(who)
	}
	return err
}

// pad appends str to the buffer if the buffer already has some data.
func pad(b *bytes.Buffer, str string) {
	if b.Len() == 0 {
		return
	}
	b.WriteString(str)
}

func (e *Error) Error() string {
	b := new(bytes.Buffer)
	if e.Op != "" {
		b.WriteString(string(e.Op))
	}
	if e.Path != "" {
		pad(b, ": ")
		b.WriteString(e.Path)
	}
	if e.User != "" {
		pad(b, ", ")
		b.WriteString("user ")
		b.WriteString(string(e.User))
	}
	if e.Kind != Other {
		pad(b, ": ")
		b.WriteString(e.Kind.String())
	}
	if e.Err != nil {
		// Indent on new line if we are cascading non-empty Errors.
		if prevErr, ok := e.Err.(*Error); ok {
			if *prevErr != zeroErr {
				pad(b, Separator)
				b.WriteString(e.Err.Error())
			}
		} else {
			pad(b, ": ")
			b.WriteString(e.Err.Error())
		}
	}
	if b.Len() == 0 {
		return "no error"
	}
	e.printStack(b)
	return b.String()
}

// Str returns an error that formats as the given text. It is intended to
// be used as the error-typed argument to the E function.
func Str(text string) error {
	return &errorString{text}
}

// errorString is a trivial implementation of error.
type errorString struct {
	s string
}

func (e *errorString) Error() string {
	return e.s
}

// Errorf is equivalent to fmt.Errorf, but returns a type that may be used as
// the error-typed argument to E, keeping callers from needing to import both
// this package and the standard errors/fmt packages.
func Errorf(format string, args ...interface{}) error {
	return &errorString{fmt.Sprintf(format, args...)}
}

// Is reports whether err is an *Error of the given Kind, looking through
// any chain of wrapped *Error values.
func Is(kind Kind, err error) bool {
	e, ok := err.(*Error)
	if !ok {
		return false
	}
	if e.Kind != Other {
		return e.Kind == kind
	}
	if e.Err != nil {
		return Is(kind, e.Err)
	}
	return false
}

// Match compares its two error arguments. It can be used to check
// that two errors have equivalent, non-zero fields: the result is true
// if every non-zero element of the first error is equal to the
// corresponding element of the second, and the set of wrapped errors
// matches recursively. Match is intended to be used in tests as a
// simple way to account for the fact that logged errors include a
// stack trace, which varies with the build.
func Match(template, err error) bool {
	te, ok := err.(*Error)
	if !ok {
		return false
	}
	t, ok := template.(*Error)
	if !ok {
		return false
	}
	if t.Path != "" && te.Path != t.Path {
		return false
	}
	if t.User != "" && te.User != t.User {
		return false
	}
	if t.Op != "" && te.Op != t.Op {
		return false
	}
	if t.Kind != Other && te.Kind != t.Kind {
		return false
	}
	if t.Err != nil {
		if _, ok := t.Err.(*Error); ok {
			return Match(t.Err, te.Err)
		}
		if te.Err == nil || te.Err.Error() != t.Err.Error() {
			return false
		}
	}
	return true
}

// MarshalAppend marshals err into a byte slice. The result is appended to b,
// which may be nil.
// It returns the argument slice unchanged if the error is nil.
func (e *Error) MarshalAppend(b []byte) []byte {
	if e == nil {
		return b
	}
	b = appendString(b, string(e.Op))
	b = appendString(b, e.Path)
	b = appendString(b, string(e.User))
	var tmp [16]byte // For use by PutVarint.
	n := binary.PutVarint(tmp[:], int64(e.Kind))
	b = append(b, tmp[:n]...)
	b = MarshalErrorAppend(e.Err, b)
	return b
}

// MarshalBinary marshals its receiver into a byte slice, which it returns.
// It returns nil if the error is nil. The returned error is always nil.
func (e *Error) MarshalBinary() ([]byte, error) {
	return e.MarshalAppend(nil), nil
}

// MarshalErrorAppend marshals an arbitrary error into a byte slice.
// The result is appended to b, which may be nil.
// It returns the argument slice unchanged if the error is nil.
// If the error is not an *Error, it just records the result of err.Error().
// Otherwise it encodes the full Error struct.
func MarshalErrorAppend(err error, b []byte) []byte {
	if err == nil {
		return b
	}
	if e, ok := err.(*Error); ok {
		b = append(b, 'E')
		return e.MarshalAppend(b)
	}
	b = append(b, 'e')
	b = appendString(b, err.Error())
	return b
}

// MarshalError marshals an arbitrary error and returns the byte slice.
func MarshalError(err error) []byte {
	return MarshalErrorAppend(err, nil)
}

// UnmarshalBinary unmarshals the byte slice into the receiver, which must be non-nil.
// The returned error is always nil.
func (e *Error) UnmarshalBinary(b []byte) error {
	if len(b) == 0 {
		return nil
	}
	data, b := getBytes(b)
	if data != nil {
		e.Op = Op(data)
	}
	data, b = getBytes(b)
	if data != nil {
		e.Path = string(data)
	}
	data, b = getBytes(b)
	if data != nil {
		e.User = Who(data)
	}
	k, n := binary.Varint(b)
	e.Kind = Kind(k)
	b = b[n:]
	e.Err = UnmarshalError(b)
	return nil
}

// UnmarshalError unmarshals the byte slice into an error value.
// The byte slice must have been created by MarshalError or
// MarshalErrorAppend.
func UnmarshalError(b []byte) error {
	if len(b) == 0 {
		return nil
	}
	code := b[0]
	b = b[1:]
	switch code {
	case 'e':
		var data []byte
		data, b = getBytes(b)
		if len(b) != 0 {
			log.Printf("errors.UnmarshalError: trailing bytes")
		}
		return Str(string(data))
	case 'E':
		var err Error
		err.UnmarshalBinary(b)
		return &err
	default:
		log.Printf("errors.UnmarshalError: corrupt data %q", b)
		return Str(string(b))
	}
}

func appendString(b []byte, str string) []byte {
	var tmp [16]byte // For use by PutUvarint.
	n := binary.PutUvarint(tmp[:], uint64(len(str)))
	b = append(b, tmp[:n]...)
	b = append(b, str...)
	return b
}

// getBytes unmarshals the byte slice at b (uvarint count followed by bytes)
// and returns the slice followed by the remaining bytes.
// If there is insufficient data, both return values will be nil.
func getBytes(b []byte) (data, remaining []byte) {
	u, n := binary.Uvarint(b)
	if len(b) < n+int(u) {
		log.Printf("errors.getBytes: bad encoding")
		return nil, nil
	}
	if n == 0 {
		log.Printf("errors.getBytes: bad encoding")
		return nil, b
	}
	return b[n : n+int(u)], b[n+int(u):]
}
