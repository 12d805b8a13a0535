/* Copyright 2024 Comcast Cable Communications Management, LLC
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 * http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package cells

import (
	"reflect"

	"github.com/Comcast/gadgets/gadget"
)

// Map is the state (and input) type of the map cells: a
// JSON-friendly string-keyed map.
type Map = map[string]any

// MapCell is a gadget over Maps.
type MapCell = gadget.Gadget[Map, Map, Map]

func copyMap(m Map) Map {
	acc := make(Map, len(m))
	for k, v := range m {
		acc[k] = v
	}
	return acc
}

func initialMap(m Map) Map {
	if m == nil {
		return make(Map)
	}
	return m
}

// FirstMap keeps the first value ever written for each key.
//
// Keys absent from the current state are added, and the emitted
// effect lists only those added keys.  For a key that already
// exists, the incoming value is normally ignored -- unless the
// resident value is a gadget.Receiver, in which case the incoming
// value is forwarded into it.  That lets a map hold nested
// sub-gadgets as values.
func FirstMap(initial Map) *MapCell {
	g := gadget.New(func(current, incoming Map) *gadget.Step[Map, Map, Map] {
		var (
			added    Map
			forwards []func()
		)
		for k, v := range incoming {
			resident, have := current[k]
			if !have {
				if added == nil {
					added = make(Map)
				}
				added[k] = v
				continue
			}
			if r, is := resident.(gadget.Receiver); is {
				v := v
				forwards = append(forwards, func() { r.Receive(v) })
			}
		}
		if added == nil && forwards == nil {
			return nil
		}
		return &gadget.Step[Map, Map, Map]{
			Do: func(g *MapCell) *gadget.Effect[Map] {
				if added != nil {
					next := copyMap(current)
					for k, v := range added {
						next[k] = v
					}
					g.Update(next)
				}
				for _, forward := range forwards {
					forward()
				}
				if added == nil {
					return nil
				}
				return gadget.Change(added)
			},
		}
	}, initialMap(initial))

	g.Snapshot = copyMap
	return g
}

// LastMap overwrites: every key in the incoming map replaces the
// current entry, and the merged map is emitted.
func LastMap(initial Map) *MapCell {
	g := gadget.New(func(current, incoming Map) *gadget.Step[Map, Map, Map] {
		if len(incoming) == 0 {
			return nil
		}
		merged := copyMap(current)
		for k, v := range incoming {
			merged[k] = v
		}
		return &gadget.Step[Map, Map, Map]{
			Do: func(g *MapCell) *gadget.Effect[Map] {
				g.Update(merged)
				return gadget.Change(merged)
			},
		}
	}, initialMap(initial))

	g.Snapshot = copyMap
	return g
}

// UnionMap merges per key: when both sides hold arrays, the arrays
// are unioned -- existing order preserved, new unique items
// appended -- and anything else is overwritten.  The merged map is
// emitted; an input that changes nothing is ignored.
func UnionMap(initial Map) *MapCell {
	g := gadget.New(func(current, incoming Map) *gadget.Step[Map, Map, Map] {
		if len(incoming) == 0 {
			return nil
		}
		merged := copyMap(current)
		for k, v := range incoming {
			cv, have := merged[k]
			if !have {
				merged[k] = v
				continue
			}
			ca, cok := cv.([]any)
			va, vok := v.([]any)
			if cok && vok {
				merged[k] = unionSlices(ca, va)
			} else {
				merged[k] = v
			}
		}
		if reflect.DeepEqual(merged, current) {
			return nil
		}
		return &gadget.Step[Map, Map, Map]{
			Do: func(g *MapCell) *gadget.Effect[Map] {
				g.Update(merged)
				return gadget.Change(merged)
			},
		}
	}, initialMap(initial))

	g.Snapshot = copyMap
	return g
}

// unionSlices appends the items of b not already in a.  Items can be
// maps or slices, so membership is by deep equality.
func unionSlices(a, b []any) []any {
	acc := make([]any, len(a), len(a)+len(b))
	copy(acc, a)
	for _, x := range b {
		seen := false
		for _, y := range acc {
			if reflect.DeepEqual(x, y) {
				seen = true
				break
			}
		}
		if !seen {
			acc = append(acc, x)
		}
	}
	return acc
}
