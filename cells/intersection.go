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
	"github.com/Comcast/gadgets/gadget"
	"github.com/Comcast/gadgets/lattice"
)

// SetCell is a gadget over sets of T.
type SetCell[T comparable] = gadget.Gadget[lattice.Set[T], lattice.Set[T], lattice.Set[T]]

// Intersection is a narrowing cell: state only ever shrinks.
//
// An empty current state adopts the incoming set.  Otherwise the new
// state is the intersection.  If that intersection is empty while
// both inputs were not, the two sets cannot be reconciled: the cell
// emits a Contradiction carrying both sides and leaves its state
// untouched.  Contradiction is a value, not an error; the caller
// decides how severe it is.
func Intersection[T comparable](initial lattice.Set[T]) *SetCell[T] {
	g := gadget.New(considerIntersection[T], initialSet(initial))
	g.Snapshot = lattice.Set[T].Copy
	return g
}

func considerIntersection[T comparable](current, incoming lattice.Set[T]) *gadget.Step[lattice.Set[T], lattice.Set[T], lattice.Set[T]] {
	if len(incoming) == 0 {
		return nil
	}

	if len(current) == 0 {
		adopted := incoming.Copy()
		return stepSet(adopted)
	}

	narrowed := current.Intersect(incoming)

	if len(narrowed) == 0 {
		// Both sides non-empty, nothing in common.
		snapshot := current.Copy()
		return &gadget.Step[lattice.Set[T], lattice.Set[T], lattice.Set[T]]{
			Do: func(g *SetCell[T]) *gadget.Effect[lattice.Set[T]] {
				return gadget.Contradict(snapshot, incoming)
			},
		}
	}

	if narrowed.Equal(current) {
		return nil
	}

	return stepSet(narrowed)
}

// stepSet makes a Step that installs the given set and emits it.
func stepSet[T comparable](next lattice.Set[T]) *gadget.Step[lattice.Set[T], lattice.Set[T], lattice.Set[T]] {
	return &gadget.Step[lattice.Set[T], lattice.Set[T], lattice.Set[T]]{
		Do: func(g *SetCell[T]) *gadget.Effect[lattice.Set[T]] {
			g.Update(next)
			return gadget.Change(next)
		},
	}
}

func initialSet[T comparable](s lattice.Set[T]) lattice.Set[T] {
	if s == nil {
		return lattice.NewSet[T]()
	}
	return s
}
