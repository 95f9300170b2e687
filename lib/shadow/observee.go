// Copyright (C) 2022-2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package shadow

import (
	"sqimage/lib/sqerrors"
	"sqimage/lib/strategy"
)

// Dependent is notified whenever an ObserveeShadow's storage changes.
type Dependent interface {
	Update()
}

// ObserveeShadow is a shadow with at most one registered dependent
// (§4.7): every store calls dependent.Update(). Registering a second
// distinct dependent fails with TooManyObservers.
type ObserveeShadow struct {
	base      *StorageShadow
	dependent Dependent
}

var _ Shadow = (*ObserveeShadow)(nil)

func NewObserveeShadow(s strategy.Strategy) *ObserveeShadow {
	return &ObserveeShadow{base: NewStorageShadow(s)}
}

// Register installs dep as the shadow's dependent. Registering the
// same dependent again is a no-op; registering a second, distinct
// dependent is an error.
func (s *ObserveeShadow) Register(dep Dependent) error {
	if s.dependent != nil && s.dependent != dep {
		return &sqerrors.TooManyObserversError{}
	}
	s.dependent = dep
	return nil
}

func (s *ObserveeShadow) Fetch(i int) any { return s.base.Fetch(i) }

func (s *ObserveeShadow) Store(i int, v any) {
	s.base.Store(i, v)
	if s.dependent != nil {
		s.dependent.Update()
	}
}

func (s *ObserveeShadow) Size() int { return s.base.Size() }
