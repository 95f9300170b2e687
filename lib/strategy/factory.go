// Copyright (C) 2022-2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package strategy

// Factory is the strategy engine's construction entry point (§4.6
// "Factory"). Space owns one Factory instance and every shadow goes
// through it rather than calling New directly, so that the global
// no-specialized-storage flag is honored uniformly.
type Factory struct {
	// NoSpecializedStorage disables all specialized strategies
	// (SmallIntOrNil, FloatOrNil): every non-weak storage request
	// is served by List. This mirrors Space's
	// no_specialized_storage flag (§4.8).
	NoSpecializedStorage bool
}

// specializedOrder is the set of specialized (non-terminal,
// non-weak) strategy kinds, most-specialized first, used when
// picking the tightest strategy that can hold a whole initial slice.
var specializedOrder = []Kind{SmallIntOrNil, FloatOrNil}

// StrategyTypeFor picks the most-specialized strategy kind that can
// hold every value in objects. If weak is true, it always returns
// WeakList, regardless of contents — the §9 Open Question resolution:
// weak is an explicit, always-honored parameter.
func (f *Factory) StrategyTypeFor(objects []any, weak bool) Kind {
	if weak {
		return WeakList
	}
	if f.NoSpecializedStorage {
		return List
	}
	for _, k := range specializedOrder {
		probe := New(k, 0)
		handlesAll := true
		for _, v := range objects {
			if !probe.CheckCanHandle(v) {
				handlesAll = false
				break
			}
		}
		if handlesAll {
			return k
		}
	}
	return List
}

// EmptyStorage returns the initial strategy for a freshly allocated
// slot array of the given size: AllNil ordinarily, WeakList if weak,
// or List if specialization is globally disabled.
func (f *Factory) EmptyStorage(size int, weak bool) Strategy {
	switch {
	case weak:
		return New(WeakList, size)
	case f.NoSpecializedStorage:
		return New(List, size)
	default:
		return New(AllNil, size)
	}
}

// StrategyFor builds a strategy instance already populated with
// objects, choosing its kind via StrategyTypeFor.
func (f *Factory) StrategyFor(objects []any, weak bool) Strategy {
	kind := f.StrategyTypeFor(objects, weak)
	s := New(kind, len(objects))
	for i, v := range objects {
		s.Store(i, v)
	}
	return s
}
