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

package gadget

import "encoding/json"

// Effect reports what a gadget did with an input.
//
// Exactly one of the three fields is non-nil.  The JSON encoding is
// {"changed":...}, {"noop":{}}, or
// {"contradiction":{"current":...,"incoming":...}}, and consumers
// discriminate by which key is present.  There is no separate tag
// field; that's the wire format, so don't add one.
type Effect[E any] struct {
	Changed       *E           `json:"changed,omitempty"`
	Noop          *struct{}    `json:"noop,omitempty"`
	Contradiction *Conflict[E] `json:"contradiction,omitempty"`
}

// Conflict carries both sides of a merge that could not be
// reconciled.  The gadget's state is left at Current.
type Conflict[E any] struct {
	Current  E `json:"current"`
	Incoming E `json:"incoming"`
}

// Change makes a Changed effect.
func Change[E any](v E) *Effect[E] {
	return &Effect[E]{Changed: &v}
}

// NoChange makes a Noop effect.
//
// A Noop is an explicit "nothing happened" emission.  It is distinct
// from a nil effect, which emits nothing at all.
func NoChange[E any]() *Effect[E] {
	return &Effect[E]{Noop: &struct{}{}}
}

// Contradict makes a Contradiction effect.
func Contradict[E any](current, incoming E) *Effect[E] {
	return &Effect[E]{
		Contradiction: &Conflict[E]{
			Current:  current,
			Incoming: incoming,
		},
	}
}

func (e *Effect[E]) String() string {
	js, err := json.Marshal(e)
	if err != nil {
		return "effect/{*}"
	}
	return string(js)
}
