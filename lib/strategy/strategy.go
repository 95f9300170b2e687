// Copyright (C) 2022-2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

// Package strategy implements the storage strategy engine (§4.6): a
// small algebraic system in which each pointer-object's slots are
// held by one of a fixed set of representations, generalizing
// monotonically as stores demand it.
//
// Strategies operate on `any` so that this package has no dependency
// on the concrete in-memory object representation (lib/object); a
// slot value is one of: nil, an int64 (a SmallInteger), a float64 (a
// Float), or anything else (treated as an opaque object reference,
// only List and WeakList can hold it).
package strategy

import (
	"math"

	"sqimage/lib/sqerrors"
)

// Kind names one of the five concrete storage strategies.
type Kind int

const (
	AllNil Kind = iota
	SmallIntOrNil
	FloatOrNil
	List
	WeakList
)

func (k Kind) String() string {
	switch k {
	case AllNil:
		return "AllNil"
	case SmallIntOrNil:
		return "SmallIntOrNil"
	case FloatOrNil:
		return "FloatOrNil"
	case List:
		return "List"
	case WeakList:
		return "WeakList"
	default:
		return "Unknown"
	}
}

// nilSmallInt and nilFloat are the reserved tag values AllNil's
// specialized successors use to represent a nil slot without falling
// back to a parallel bitset (§4.6).
const nilSmallInt = int64(math.MaxInt64)

var nilFloat = math.MaxFloat64

// transitions is the lattice's adjacency list (§4.6): on a store the
// current strategy can't handle, these are tried in order, first
// match wins. List is terminal (never appears as a source here).
var transitions = map[Kind][]Kind{
	AllNil:        {SmallIntOrNil, FloatOrNil, List},
	SmallIntOrNil: {List},
	FloatOrNil:    {List},
}

// Strategy is the storage contract every concrete representation
// implements (§4.6).
type Strategy interface {
	Kind() Kind
	Fetch(i int) any
	Store(i int, v any)
	Size() int
	CheckCanHandle(v any) bool
	// GeneralizedStrategyFor scans this strategy's transition set,
	// in order, and returns the first Kind whose zero value can
	// handle v. It is a programming error if none match (List
	// always matches).
	GeneralizedStrategyFor(v any) Kind
	Grow(n int)
	Shrink(n int)
}

func isSmallInt(v any) bool {
	_, ok := v.(int64)
	return ok
}

func isFloat(v any) bool {
	_, ok := v.(float64)
	return ok
}

// New builds an empty strategy instance of the given kind and size.
func New(kind Kind, size int) Strategy {
	switch kind {
	case AllNil:
		return &allNilStrategy{size: size}
	case SmallIntOrNil:
		s := &smallIntOrNilStrategy{backing: make([]int64, size)}
		for i := range s.backing {
			s.backing[i] = nilSmallInt
		}
		return s
	case FloatOrNil:
		s := &floatOrNilStrategy{backing: make([]float64, size)}
		for i := range s.backing {
			s.backing[i] = nilFloat
		}
		return s
	case List:
		return &listStrategy{backing: make([]any, size)}
	case WeakList:
		return &weakListStrategy{backing: make([]*weakRef, size)}
	default:
		panic(&sqerrors.StorageMismatchError{Value: kind})
	}
}

func genericGeneralize(order []Kind, v any) Kind {
	for _, k := range order {
		if New(k, 0).CheckCanHandle(v) {
			return k
		}
	}
	panic(&sqerrors.StorageMismatchError{Value: v})
}

// ---- AllNil -----------------------------------------------------------

type allNilStrategy struct{ size int }

func (s *allNilStrategy) Kind() Kind     { return AllNil }
func (s *allNilStrategy) Size() int      { return s.size }
func (s *allNilStrategy) Fetch(int) any  { return nil }
func (s *allNilStrategy) Store(int, any) { panic("allNilStrategy.Store: caller must transition first") }
func (s *allNilStrategy) CheckCanHandle(v any) bool { return v == nil }
func (s *allNilStrategy) GeneralizedStrategyFor(v any) Kind {
	return genericGeneralize(transitions[AllNil], v)
}
func (s *allNilStrategy) Grow(n int)   { s.size += n }
func (s *allNilStrategy) Shrink(n int) { s.size -= n }

// ---- SmallIntOrNil ------------------------------------------------------

type smallIntOrNilStrategy struct{ backing []int64 }

func (s *smallIntOrNilStrategy) Kind() Kind { return SmallIntOrNil }
func (s *smallIntOrNilStrategy) Size() int  { return len(s.backing) }
func (s *smallIntOrNilStrategy) Fetch(i int) any {
	v := s.backing[i]
	if v == nilSmallInt {
		return nil
	}
	return v
}
func (s *smallIntOrNilStrategy) Store(i int, v any) {
	if v == nil {
		s.backing[i] = nilSmallInt
		return
	}
	s.backing[i] = v.(int64)
}
func (s *smallIntOrNilStrategy) CheckCanHandle(v any) bool {
	if v == nil {
		return true
	}
	iv, ok := v.(int64)
	return ok && iv != nilSmallInt
}
func (s *smallIntOrNilStrategy) GeneralizedStrategyFor(v any) Kind {
	return genericGeneralize(transitions[SmallIntOrNil], v)
}
func (s *smallIntOrNilStrategy) Grow(n int) {
	for i := 0; i < n; i++ {
		s.backing = append(s.backing, nilSmallInt)
	}
}
func (s *smallIntOrNilStrategy) Shrink(n int) { s.backing = s.backing[:len(s.backing)-n] }

// ---- FloatOrNil ---------------------------------------------------------

type floatOrNilStrategy struct{ backing []float64 }

func (s *floatOrNilStrategy) Kind() Kind { return FloatOrNil }
func (s *floatOrNilStrategy) Size() int  { return len(s.backing) }
func (s *floatOrNilStrategy) Fetch(i int) any {
	v := s.backing[i]
	if v == nilFloat {
		return nil
	}
	return v
}
func (s *floatOrNilStrategy) Store(i int, v any) {
	if v == nil {
		s.backing[i] = nilFloat
		return
	}
	s.backing[i] = v.(float64)
}
func (s *floatOrNilStrategy) CheckCanHandle(v any) bool {
	if v == nil {
		return true
	}
	fv, ok := v.(float64)
	return ok && fv != nilFloat
}
func (s *floatOrNilStrategy) GeneralizedStrategyFor(v any) Kind {
	return genericGeneralize(transitions[FloatOrNil], v)
}
func (s *floatOrNilStrategy) Grow(n int) {
	for i := 0; i < n; i++ {
		s.backing = append(s.backing, nilFloat)
	}
}
func (s *floatOrNilStrategy) Shrink(n int) { s.backing = s.backing[:len(s.backing)-n] }

// ---- List (generic) -----------------------------------------------------

type listStrategy struct{ backing []any }

func (s *listStrategy) Kind() Kind             { return List }
func (s *listStrategy) Size() int              { return len(s.backing) }
func (s *listStrategy) Fetch(i int) any        { return s.backing[i] }
func (s *listStrategy) Store(i int, v any)     { s.backing[i] = v }
func (s *listStrategy) CheckCanHandle(any) bool { return true }
func (s *listStrategy) GeneralizedStrategyFor(any) Kind {
	panic(&sqerrors.StorageMismatchError{Value: "List is terminal and always handles every value"})
}
func (s *listStrategy) Grow(n int)   { s.backing = append(s.backing, make([]any, n)...) }
func (s *listStrategy) Shrink(n int) { s.backing = s.backing[:len(s.backing)-n] }

// ---- WeakList -----------------------------------------------------------

type weakRef struct{ target any }

type weakListStrategy struct{ backing []*weakRef }

func (s *weakListStrategy) Kind() Kind { return WeakList }
func (s *weakListStrategy) Size() int  { return len(s.backing) }
func (s *weakListStrategy) Fetch(i int) any {
	r := s.backing[i]
	if r == nil {
		return nil
	}
	return r.target
}
func (s *weakListStrategy) Store(i int, v any) {
	if v == nil {
		s.backing[i] = nil
		return
	}
	s.backing[i] = &weakRef{target: v}
}
func (s *weakListStrategy) CheckCanHandle(any) bool { return true }
func (s *weakListStrategy) GeneralizedStrategyFor(any) Kind {
	panic(&sqerrors.StorageMismatchError{Value: "WeakList stands alone and is never generalized"})
}
func (s *weakListStrategy) Grow(n int)   { s.backing = append(s.backing, make([]*weakRef, n)...) }
func (s *weakListStrategy) Shrink(n int) { s.backing = s.backing[:len(s.backing)-n] }

// Drop clears a weak slot's target, modeling the host runtime
// collecting the referent; fetch thereafter returns nil (the
// default).
func (s *weakListStrategy) Drop(i int) { s.backing[i] = nil }

// InitiateCopyInto copies every element of src into dst (both already
// sized to match), via the visitor dispatch described in §4.6/§9: the
// source strategy's kind picks the copy path, defaulting to
// element-wise for everything but the AllNil source (which is a
// no-op, since a freshly built dst already defaults every slot to
// nil).
func InitiateCopyInto(src, dst Strategy) {
	if src.Kind() == AllNil {
		return
	}
	for i := 0; i < src.Size(); i++ {
		dst.Store(i, src.Fetch(i))
	}
}

// Transition performs the §4.6 transition rule: given the strategy
// currently installed and a store that it cannot handle, compute the
// generalized kind, build it, copy the old contents in, and return it
// installed (the caller still must perform the original store).
func Transition(current Strategy, v any) Strategy {
	newKind := current.GeneralizedStrategyFor(v)
	next := New(newKind, current.Size())
	InitiateCopyInto(current, next)
	return next
}
