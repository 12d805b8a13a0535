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
	"encoding/json"
	"fmt"

	"github.com/Comcast/gadgets/gadget"
)

// Versioned is a value with an explicit version number.
//
// The JSON encoding is a two-element array [version, value], which
// is the externally authorable form.
type Versioned[T any] struct {
	Version int64
	Value   T
}

func (v Versioned[T]) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{v.Version, v.Value})
}

func (v *Versioned[T]) UnmarshalJSON(bs []byte) error {
	var pair []json.RawMessage
	if err := json.Unmarshal(bs, &pair); err != nil {
		return err
	}
	if len(pair) != 2 {
		return fmt.Errorf("versioned value has %d elements (want 2)", len(pair))
	}
	if err := json.Unmarshal(pair[0], &v.Version); err != nil {
		return err
	}
	return json.Unmarshal(pair[1], &v.Value)
}

// Ordinal is a versioned register: an incoming [version, value] is
// accepted only if its version strictly exceeds the current one.
// Stale and replayed writes fall on the ignore path.
func Ordinal[T any](initial Versioned[T]) *ValueCell[Versioned[T]] {
	return gadget.New(func(current, incoming Versioned[T]) *gadget.Step[Versioned[T], Versioned[T], Versioned[T]] {
		if incoming.Version <= current.Version {
			return nil
		}
		return &gadget.Step[Versioned[T], Versioned[T], Versioned[T]]{
			Do: func(g *ValueCell[Versioned[T]]) *gadget.Effect[Versioned[T]] {
				g.Update(incoming)
				return gadget.Change(incoming)
			},
		}
	}, initial)
}
