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

package lattice

// Stamped is a value with a timestamp for last-write-wins merging.
//
// The Timestamp is opaque to this package; callers can use Unix
// milliseconds, a logical clock, or whatever else orders their
// writes.  A bare value without a stamp is Stamp(v), which gets
// timestamp 0 and therefore loses to any stamped write.
type Stamped[T any] struct {
	Value     T     `json:"value"`
	Timestamp int64 `json:"timestamp"`
}

// Stamp wraps a bare value with timestamp 0.
func Stamp[T any](v T) Stamped[T] {
	return Stamped[T]{Value: v}
}

type lwwLattice[T any] struct{}

func (lwwLattice[T]) Bottom() Stamped[T] { var zero Stamped[T]; return zero }

// Join picks the operand with the greater-or-equal timestamp.
//
// Ties favor the left operand a.  That makes Join non-commutative,
// which is the point: a cell holding a keeps a on a tied incoming
// write.  Do not "fix" this symmetry.
func (lwwLattice[T]) Join(a, b Stamped[T]) Stamped[T] {
	if b.Timestamp > a.Timestamp {
		return b
	}
	return a
}

func (lwwLattice[T]) Lte(a, b Stamped[T]) bool { return a.Timestamp <= b.Timestamp }

// LWW is the last-write-wins register lattice over Stamped values.
func LWW[T any]() Lattice[Stamped[T]] { return lwwLattice[T]{} }
