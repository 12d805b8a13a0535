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

import (
	"encoding/json"
	"fmt"
	"sort"
)

// Set is a small set implementation for the union and intersection
// cells (and for meta-gadget adjacency).
//
// A Set is a plain map with a single-writer assumption: no locking
// here.
type Set[T comparable] map[T]struct{}

// NewSet makes a Set containing the given elements.
func NewSet[T comparable](xs ...T) Set[T] {
	s := make(Set[T], len(xs))
	for _, x := range xs {
		s[x] = struct{}{}
	}
	return s
}

// Add inserts x, reporting whether the Set changed.
func (s Set[T]) Add(x T) bool {
	if _, have := s[x]; have {
		return false
	}
	s[x] = struct{}{}
	return true
}

// Remove deletes x, reporting whether the Set changed.
func (s Set[T]) Remove(x T) bool {
	if _, have := s[x]; !have {
		return false
	}
	delete(s, x)
	return true
}

// Contains reports membership.
func (s Set[T]) Contains(x T) bool {
	_, have := s[x]
	return have
}

// Copy makes a shallow copy.
func (s Set[T]) Copy() Set[T] {
	acc := make(Set[T], len(s))
	for x := range s {
		acc[x] = struct{}{}
	}
	return acc
}

// Union returns a new Set with the elements of both operands.
func (s Set[T]) Union(other Set[T]) Set[T] {
	acc := s.Copy()
	for x := range other {
		acc[x] = struct{}{}
	}
	return acc
}

// Intersect returns a new Set with the common elements.
func (s Set[T]) Intersect(other Set[T]) Set[T] {
	acc := make(Set[T])
	for x := range s {
		if other.Contains(x) {
			acc[x] = struct{}{}
		}
	}
	return acc
}

// Subset reports whether every element of s is in other.
func (s Set[T]) Subset(other Set[T]) bool {
	for x := range s {
		if !other.Contains(x) {
			return false
		}
	}
	return true
}

// Equal reports whether the two Sets have the same elements.
func (s Set[T]) Equal(other Set[T]) bool {
	return len(s) == len(other) && s.Subset(other)
}

// Values returns the elements in no particular order.
func (s Set[T]) Values() []T {
	acc := make([]T, 0, len(s))
	for x := range s {
		acc = append(acc, x)
	}
	return acc
}

// MarshalJSON renders the Set as a sorted array, which keeps wire
// output deterministic.
func (s Set[T]) MarshalJSON() ([]byte, error) {
	vs := s.Values()
	sort.Slice(vs, func(i, j int) bool {
		return fmt.Sprint(vs[i]) < fmt.Sprint(vs[j])
	})
	return json.Marshal(vs)
}

// UnmarshalJSON reads an array of elements.
func (s *Set[T]) UnmarshalJSON(bs []byte) error {
	var vs []T
	if err := json.Unmarshal(bs, &vs); err != nil {
		return err
	}
	*s = NewSet(vs...)
	return nil
}
