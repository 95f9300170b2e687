// Copyright (C) 2022-2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

// Package shadow implements the thin adapters (§4.7) that bind a host
// object to a strategy instance: the base StorageShadow plus the
// cached, observed, and redirecting variants.
package shadow

import (
	"sqimage/lib/strategy"
)

// Shadow is the interface every variant exposes to its host object
// and, through it, to the interpreter (§6: "calls shadow.fetch/store/
// size on pointer objects").
type Shadow interface {
	Fetch(i int) any
	Store(i int, v any)
	Size() int
}

// StorageShadow is the base adapter over any strategy kind (§4.7). It
// owns the strategy transition: a store the current strategy can't
// handle swaps in a more general strategy (§4.6) before performing
// the store.
type StorageShadow struct {
	current strategy.Strategy
}

var _ Shadow = (*StorageShadow)(nil)

// NewStorageShadow wraps an already-constructed strategy (typically
// produced by a strategy.Factory).
func NewStorageShadow(s strategy.Strategy) *StorageShadow {
	return &StorageShadow{current: s}
}

func (s *StorageShadow) Fetch(i int) any { return s.current.Fetch(i) }

func (s *StorageShadow) Store(i int, v any) {
	if !s.current.CheckCanHandle(v) {
		s.current = strategy.Transition(s.current, v)
	}
	s.current.Store(i, v)
}

func (s *StorageShadow) Size() int { return s.current.Size() }

// Strategy exposes the currently installed strategy, e.g. so a Space
// can report a PointerObject's representation for diagnostics.
func (s *StorageShadow) Strategy() strategy.Strategy { return s.current }

// Grow/Shrink resize the backing strategy in place (§4.6 "for
// variable-size storage").
func (s *StorageShadow) Grow(n int)   { s.current.Grow(n) }
func (s *StorageShadow) Shrink(n int) { s.current.Shrink(n) }
