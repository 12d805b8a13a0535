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
	"testing"

	"github.com/Comcast/gadgets/gadget"
	"github.com/Comcast/gadgets/lattice"
)

func tapEffects[T any](g *ValueCell[T]) *[]*gadget.Effect[T] {
	acc := make([]*gadget.Effect[T], 0, 4)
	g.Tap(func(e *gadget.Effect[T]) {
		acc = append(acc, e)
	})
	return &acc
}

func TestMaxCell(t *testing.T) {
	g := Max(10)
	effects := tapEffects(g)

	g.Receive(5)
	if len(*effects) != 0 {
		t.Fatalf("emitted %v", *effects)
	}
	if got := g.Current(); got != 10 {
		t.Fatalf("Current() == %d", got)
	}

	g.Receive(15)
	if len(*effects) != 1 || (*effects)[0].Changed == nil || *(*effects)[0].Changed != 15 {
		t.Fatalf("emitted %v", *effects)
	}
	if got := g.Current(); got != 15 {
		t.Fatalf("Current() == %d", got)
	}

	// Equal input is not an improvement.
	g.Receive(15)
	if len(*effects) != 1 {
		t.Fatalf("emitted %v", *effects)
	}
}

func TestMinCell(t *testing.T) {
	g := Min(10)
	effects := tapEffects(g)

	g.Receive(15)
	if len(*effects) != 0 {
		t.Fatalf("emitted %v", *effects)
	}

	g.Receive(5)
	if got := g.Current(); got != 5 {
		t.Fatalf("Current() == %d", got)
	}
	if len(*effects) != 1 {
		t.Fatalf("emitted %v", *effects)
	}
}

func TestUnionCell(t *testing.T) {
	g := Union(lattice.NewSet(1, 2, 3))
	effects := tapEffects(g)

	g.Receive(lattice.NewSet(2, 3, 4))
	if len(*effects) != 1 {
		t.Fatalf("emitted %v", *effects)
	}
	if got := (*effects)[0].Changed; got == nil || !got.Equal(lattice.NewSet(1, 2, 3, 4)) {
		t.Fatalf("changed == %v", got)
	}

	// A subset of the current state is not news.
	g.Receive(lattice.NewSet(1, 2))
	if len(*effects) != 1 {
		t.Fatalf("emitted %v", *effects)
	}
	if got := g.Current(); !got.Equal(lattice.NewSet(1, 2, 3, 4)) {
		t.Fatalf("Current() == %v", got)
	}
}

func TestIntersectionCell(t *testing.T) {
	g := Intersection(lattice.NewSet(1, 2, 3, 4))
	effects := tapEffects(g)

	g.Receive(lattice.NewSet(2, 3, 4, 5))
	if len(*effects) != 1 {
		t.Fatalf("emitted %v", *effects)
	}
	if got := (*effects)[0].Changed; got == nil || !got.Equal(lattice.NewSet(2, 3, 4)) {
		t.Fatalf("changed == %v", got)
	}

	// Disjoint input: contradiction, state untouched.
	g.Receive(lattice.NewSet(5, 6))
	if len(*effects) != 2 {
		t.Fatalf("emitted %v", *effects)
	}
	contra := (*effects)[1].Contradiction
	if contra == nil {
		t.Fatalf("expected a contradiction, got %v", (*effects)[1])
	}
	if !contra.Current.Equal(lattice.NewSet(2, 3, 4)) {
		t.Fatalf("contradiction current == %v", contra.Current)
	}
	if !contra.Incoming.Equal(lattice.NewSet(5, 6)) {
		t.Fatalf("contradiction incoming == %v", contra.Incoming)
	}
	if got := g.Current(); !got.Equal(lattice.NewSet(2, 3, 4)) {
		t.Fatalf("Current() == %v (state should be untouched)", got)
	}
}

func TestIntersectionAdoptsIntoEmpty(t *testing.T) {
	g := Intersection[string](nil)
	effects := tapEffects(g)

	g.Receive(lattice.NewSet("a", "b"))
	if len(*effects) != 1 || (*effects)[0].Changed == nil {
		t.Fatalf("emitted %v", *effects)
	}
	if got := g.Current(); !got.Equal(lattice.NewSet("a", "b")) {
		t.Fatalf("Current() == %v", got)
	}
}

func TestFirstMap(t *testing.T) {
	g := FirstMap(Map{"a": 1})

	var changed []Map
	g.Tap(func(e *gadget.Effect[Map]) {
		if e.Changed != nil {
			changed = append(changed, *e.Changed)
		}
	})

	g.Receive(Map{"a": 99, "b": 2})

	if len(changed) != 1 || !reflect.DeepEqual(changed[0], Map{"b": 2}) {
		t.Fatalf("changed == %v (should list only new keys)", changed)
	}
	want := Map{"a": 1, "b": 2}
	if got := g.Current(); !reflect.DeepEqual(got, want) {
		t.Fatalf("Current() == %v", got)
	}

	// Nothing new: the ignore path.
	g.Receive(Map{"a": 42})
	if len(changed) != 1 {
		t.Fatalf("changed == %v", changed)
	}
}

func TestFirstMapForwardsToNestedGadget(t *testing.T) {
	nested := Max(0)
	g := FirstMap(Map{
		"limit": gadget.Loose(nested, func(x any) (int, bool) {
			v, is := x.(int)
			return v, is
		}),
	})

	// The key exists, so the map doesn't change -- but the value
	// is forwarded into the nested gadget.
	g.Receive(Map{"limit": 7})

	if got := nested.Current(); got != 7 {
		t.Fatalf("nested.Current() == %d", got)
	}
}

func TestLastMap(t *testing.T) {
	g := LastMap(Map{"a": 1, "b": 2})

	g.Receive(Map{"b": 3, "c": 4})

	want := Map{"a": 1, "b": 3, "c": 4}
	if got := g.Current(); !reflect.DeepEqual(got, want) {
		t.Fatalf("Current() == %v", got)
	}
}

func TestUnionMap(t *testing.T) {
	g := UnionMap(Map{
		"tags": []any{"a", "b"},
		"n":    1,
	})
	effects := make([]*gadget.Effect[Map], 0, 2)
	g.Tap(func(e *gadget.Effect[Map]) { effects = append(effects, e) })

	g.Receive(Map{
		"tags": []any{"b", "c"},
		"n":    2,
	})

	want := Map{
		"tags": []any{"a", "b", "c"},
		"n":    2,
	}
	if got := g.Current(); !reflect.DeepEqual(got, want) {
		t.Fatalf("Current() == %v", got)
	}

	// Same input again changes nothing.
	g.Receive(Map{"tags": []any{"b", "c"}, "n": 2})
	if len(effects) != 1 {
		t.Fatalf("emitted %v", effects)
	}
}

func TestOrdinalCell(t *testing.T) {
	g := Ordinal(Versioned[string]{Version: 3, Value: "three"})
	effects := tapEffects(g)

	g.Receive(Versioned[string]{Version: 2, Value: "two"})
	g.Receive(Versioned[string]{Version: 3, Value: "other three"})
	if len(*effects) != 0 {
		t.Fatalf("emitted %v", *effects)
	}

	g.Receive(Versioned[string]{Version: 5, Value: "five"})
	if len(*effects) != 1 {
		t.Fatalf("emitted %v", *effects)
	}
	if got := g.Current(); got.Version != 5 || got.Value != "five" {
		t.Fatalf("Current() == %v", got)
	}
}

func TestVersionedJSON(t *testing.T) {
	var v Versioned[string]
	if err := v.UnmarshalJSON([]byte(`[7,"seven"]`)); err != nil {
		t.Fatal(err)
	}
	if v.Version != 7 || v.Value != "seven" {
		t.Fatalf("v == %v", v)
	}

	js, err := v.MarshalJSON()
	if err != nil {
		t.Fatal(err)
	}
	if string(js) != `[7,"seven"]` {
		t.Fatalf("js == %s", js)
	}
}

func TestLastCell(t *testing.T) {
	g := Last("a")
	effects := tapEffects(g)

	g.Receive("a") // same value: ignored
	if len(*effects) != 0 {
		t.Fatalf("emitted %v", *effects)
	}

	g.Receive("b")
	g.Receive("a") // no ordering discipline: anything different wins
	if len(*effects) != 2 {
		t.Fatalf("emitted %v", *effects)
	}
	if got := g.Current(); got != "a" {
		t.Fatalf("Current() == %q", got)
	}
}

func TestLWWCell(t *testing.T) {
	g := LWW(lattice.Stamped[string]{Value: "old", Timestamp: 10})
	effects := tapEffects(g)

	// A tied timestamp loses to the resident value.
	g.Receive(lattice.Stamped[string]{Value: "tie", Timestamp: 10})
	if len(*effects) != 0 {
		t.Fatalf("emitted %v", *effects)
	}

	g.Receive(lattice.Stamped[string]{Value: "new", Timestamp: 11})
	if got := g.Current(); got.Value != "new" {
		t.Fatalf("Current() == %v", got)
	}
}
