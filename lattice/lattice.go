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

// Package lattice provides the algebraic structures that gadget cells
// merge their state with.
//
// A Lattice is three pure functions: Bottom gives the least element,
// Join merges two elements, and Lte is the induced partial order.
// For the monotone lattices here (Max, Min, Union), Join is
// idempotent and commutative.  LWW is deliberately not commutative on
// timestamp ties; see lww.go.
//
// Lattice values are stateless and are meant to be shared by
// reference.
package lattice

import "cmp"

// Lattice defines a (semi)lattice over T.
type Lattice[T any] interface {
	// Bottom returns the least element.
	Bottom() T

	// Join merges two elements.  Either operand may be Bottom().
	Join(a, b T) T

	// Lte reports whether a is less than or equal to b in the
	// lattice's partial order.
	Lte(a, b T) bool
}

type maxLattice[T cmp.Ordered] struct{}

func (maxLattice[T]) Bottom() T { var zero T; return zero }

func (maxLattice[T]) Join(a, b T) T {
	if a < b {
		return b
	}
	return a
}

func (maxLattice[T]) Lte(a, b T) bool { return a <= b }

// Max is the lattice whose Join takes the greater operand.
//
// Bottom is the zero value, so Max is only a true lattice over
// non-negative numbers (or strings).  Cells built on Max take an
// explicit initial state, so in practice Bottom rarely matters.
func Max[T cmp.Ordered]() Lattice[T] { return maxLattice[T]{} }

type minLattice[T cmp.Ordered] struct {
	bottom T
}

func (l minLattice[T]) Bottom() T { return l.bottom }

func (minLattice[T]) Join(a, b T) T {
	if b < a {
		return b
	}
	return a
}

func (minLattice[T]) Lte(a, b T) bool { return b <= a }

// Min is the dual of Max: Join takes the lesser operand, and the
// order is reversed.
//
// The caller provides the bottom element, which must be the greatest
// value of interest (math.MaxInt64, +Inf, ...) so that it is the
// identity for Join.
func Min[T cmp.Ordered](bottom T) Lattice[T] { return minLattice[T]{bottom: bottom} }

type unionLattice[T comparable] struct{}

func (unionLattice[T]) Bottom() Set[T] { return NewSet[T]() }

func (unionLattice[T]) Join(a, b Set[T]) Set[T] { return a.Union(b) }

func (unionLattice[T]) Lte(a, b Set[T]) bool { return a.Subset(b) }

// Union is the powerset lattice ordered by inclusion.
func Union[T comparable]() Lattice[Set[T]] { return unionLattice[T]{} }
