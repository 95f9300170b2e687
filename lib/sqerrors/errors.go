// Copyright (C) 2022-2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

// Package sqerrors defines the error kinds surfaced by the image
// reader and storage strategy engine.
package sqerrors

import (
	"fmt"
)

// BadMagicError means the first header word did not decode to a
// known magic number in either byte order.
type BadMagicError struct {
	Word uint64
}

func (e *BadMagicError) Error() string {
	return fmt.Sprintf("bad magic number: 0x%x", e.Word)
}

// TruncatedImageError means a read ran past the end of the
// underlying file.
type TruncatedImageError struct {
	Pos   int64
	Need  int
	Avail int
}

func (e *TruncatedImageError) Error() string {
	return fmt.Sprintf("truncated image: at position %d: need %d bytes, only %d available",
		e.Pos, e.Need, e.Avail)
}

// CorruptImageError wraps a detail string describing a structural
// inconsistency discovered while decoding.
type CorruptImageError struct {
	Pos     int64
	Details string
	Err     error
}

func (e *CorruptImageError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("corrupt image at position %d: %s: %v", e.Pos, e.Details, e.Err)
	}
	return fmt.Sprintf("corrupt image at position %d: %s", e.Pos, e.Details)
}

func (e *CorruptImageError) Unwrap() error { return e.Err }

// UnsupportedVersionError means the magic number was recognized but
// names a dialect/word-size combination this reader does not
// implement.
type UnsupportedVersionError struct {
	Magic uint64
}

func (e *UnsupportedVersionError) Error() string {
	return fmt.Sprintf("unsupported image version: magic 0x%x", e.Magic)
}

// UnknownFormatError means a chunk declared a format nibble this
// dialect does not assign a meaning to.
type UnknownFormatError struct {
	Format int
}

func (e *UnknownFormatError) Error() string {
	return fmt.Sprintf("unknown object format: %d", e.Format)
}

// DanglingReferenceError means a slot's oop does not resolve to any
// chunk produced during the read pass.
type DanglingReferenceError struct {
	OOP int64
}

func (e *DanglingReferenceError) Error() string {
	return fmt.Sprintf("dangling reference: oop 0x%x", e.OOP)
}

// UnexpectedForwarderError means a Spur chunk declared format 7
// (forwarder), which must never appear in a freshly saved image.
type UnexpectedForwarderError struct {
	OOP int64
}

func (e *UnexpectedForwarderError) Error() string {
	return fmt.Sprintf("unexpected forwarder object at oop 0x%x", e.OOP)
}

// TooManyObserversError means a second distinct dependent tried to
// register on an ObserveeShadow that already has one.
type TooManyObserversError struct{}

func (e *TooManyObserversError) Error() string {
	return "shadow already has a registered observer"
}

// StorageMismatchError means a strategy transition was asked to
// generalize for a value that no strategy in the lattice can handle
// (a programming error: List must always match).
type StorageMismatchError struct {
	Value any
}

func (e *StorageMismatchError) Error() string {
	return fmt.Sprintf("no storage strategy can hold value %#v", e.Value)
}

// PrimitiveFailedError is returned by collaborators (outside this
// core) when a VM primitive could not be simulated; the core defines
// it so that Space and CompiledMethod accessors can report it
// uniformly.
type PrimitiveFailedError struct {
	Name string
}

func (e *PrimitiveFailedError) Error() string {
	return fmt.Sprintf("primitive failed: %s", e.Name)
}
