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

// Package cells provides the built-in gadget cells: each one is a
// thin merge policy plugged into package gadget, mostly via a
// lattice from package lattice.
package cells

import (
	"cmp"
	"reflect"

	"github.com/Comcast/gadgets/gadget"
	"github.com/Comcast/gadgets/lattice"
)

// ValueCell is a gadget whose state, input, and emissions are all T.
type ValueCell[T any] = gadget.Gadget[T, T, T]

// FromLattice builds a monotone cell from a lattice: an input is
// accepted only if it improves on the current state (it is not Lte
// current), and the new state is the join.
func FromLattice[T any](lat lattice.Lattice[T], initial T) *ValueCell[T] {
	return gadget.New(func(current, incoming T) *gadget.Step[T, T, T] {
		if lat.Lte(incoming, current) {
			return nil
		}
		joined := lat.Join(current, incoming)
		return &gadget.Step[T, T, T]{
			Do: func(g *ValueCell[T]) *gadget.Effect[T] {
				g.Update(joined)
				return gadget.Change(joined)
			},
		}
	}, initial)
}

// Max is a cell that accepts only strictly greater values.
func Max[T cmp.Ordered](initial T) *ValueCell[T] {
	return FromLattice(lattice.Max[T](), initial)
}

// Min is a cell that accepts only strictly smaller values.
func Min[T cmp.Ordered](initial T) *ValueCell[T] {
	return FromLattice(lattice.Min(initial), initial)
}

// Union is a set cell that accepts any input not already a subset of
// the current state and emits the union.
func Union[T comparable](initial lattice.Set[T]) *SetCell[T] {
	g := FromLattice(lattice.Union[T](), initialSet(initial))
	g.Snapshot = lattice.Set[T].Copy
	return g
}

// Last is the "unsafe" last-write cell: any input that differs from
// the current value replaces it.  No ordering discipline at all;
// hence unsafe.
func Last[T comparable](initial T) *ValueCell[T] {
	return gadget.New(func(current, incoming T) *gadget.Step[T, T, T] {
		if incoming == current {
			return nil
		}
		return &gadget.Step[T, T, T]{
			Do: func(g *ValueCell[T]) *gadget.Effect[T] {
				g.Update(incoming)
				return gadget.Change(incoming)
			},
		}
	}, initial)
}

// LooseLast is Last for payloads that aren't comparable (JSON maps,
// slices): difference is judged by deep equality.
func LooseLast(initial any) *ValueCell[any] {
	return gadget.New(func(current, incoming any) *gadget.Step[any, any, any] {
		if reflect.DeepEqual(incoming, current) {
			return nil
		}
		return &gadget.Step[any, any, any]{
			Do: func(g *ValueCell[any]) *gadget.Effect[any] {
				g.Update(incoming)
				return gadget.Change(incoming)
			},
		}
	}, initial)
}

// LWW is a last-write-wins register cell over stamped values.  An
// incoming write is accepted only if its timestamp strictly exceeds
// the current one: on ties the resident value wins, per the LWW
// lattice's left bias.
func LWW[T any](initial lattice.Stamped[T]) *ValueCell[lattice.Stamped[T]] {
	return gadget.New(func(current, incoming lattice.Stamped[T]) *gadget.Step[lattice.Stamped[T], lattice.Stamped[T], lattice.Stamped[T]] {
		if incoming.Timestamp <= current.Timestamp {
			return nil
		}
		return &gadget.Step[lattice.Stamped[T], lattice.Stamped[T], lattice.Stamped[T]]{
			Do: func(g *ValueCell[lattice.Stamped[T]]) *gadget.Effect[lattice.Stamped[T]] {
				g.Update(incoming)
				return gadget.Change(incoming)
			},
		}
	}, initial)
}
