// Copyright (C) 2022-2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package shadow

import (
	"sqimage/lib/strategy"
)

// RedirectingShadow records a declared size independently from the
// backing storage's actual size (§4.7), used where the logical size
// of a slot collection must remain stable under a sparser physical
// representation (e.g. a class's declared instance-variable count
// versus a strategy that only grew to fit what's actually been
// stored so far).
type RedirectingShadow struct {
	base         *StorageShadow
	declaredSize int
}

var _ Shadow = (*RedirectingShadow)(nil)

func NewRedirectingShadow(s strategy.Strategy, declaredSize int) *RedirectingShadow {
	return &RedirectingShadow{base: NewStorageShadow(s), declaredSize: declaredSize}
}

func (s *RedirectingShadow) Fetch(i int) any {
	if i >= s.base.Size() {
		return nil
	}
	return s.base.Fetch(i)
}

func (s *RedirectingShadow) Store(i int, v any) {
	if i >= s.base.Size() {
		s.base.Grow(i + 1 - s.base.Size())
	}
	s.base.Store(i, v)
}

// Size reports the declared size, not the (possibly smaller)
// physical storage size.
func (s *RedirectingShadow) Size() int { return s.declaredSize }

// SetDeclaredSize updates the logical size independently of the
// backing storage.
func (s *RedirectingShadow) SetDeclaredSize(n int) { s.declaredSize = n }
