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

import (
	"encoding/json"
	"testing"
)

// maxish is a strict-improvement cell for tests: accept an input
// only if it's greater than the current state.
func maxish(initial int) *Gadget[int, int, int] {
	return New(func(current, incoming int) *Step[int, int, int] {
		if incoming <= current {
			return nil
		}
		return &Step[int, int, int]{
			Do: func(g *Gadget[int, int, int]) *Effect[int] {
				g.Update(incoming)
				return Change(incoming)
			},
		}
	}, initial)
}

func TestReceiveIgnorePath(t *testing.T) {
	g := maxish(10)

	emitted := 0
	g.Tap(func(*Effect[int]) { emitted++ })

	g.Receive(5)
	if got := g.Current(); got != 10 {
		t.Fatalf("Current() == %d", got)
	}
	if emitted != 0 {
		t.Fatalf("emitted %d effects", emitted)
	}

	g.Receive(15)
	if got := g.Current(); got != 15 {
		t.Fatalf("Current() == %d", got)
	}
	if emitted != 1 {
		t.Fatalf("emitted %d effects", emitted)
	}
}

func TestConsiderRunsOnce(t *testing.T) {
	considered := 0
	g := New(func(current, incoming int) *Step[int, int, int] {
		considered++
		expensive := incoming * incoming // stand-in for real work
		if expensive <= current {
			return nil
		}
		return &Step[int, int, int]{
			Do: func(g *Gadget[int, int, int]) *Effect[int] {
				g.Update(expensive)
				return Change(expensive)
			},
		}
	}, 0)

	g.Receive(3)
	if considered != 1 {
		t.Fatalf("considered %d times", considered)
	}
	if got := g.Current(); got != 9 {
		t.Fatalf("Current() == %d", got)
	}
}

func TestTapLIFO(t *testing.T) {
	g := maxish(0)

	var order []string
	g.Tap(func(*Effect[int]) { order = append(order, "first") })
	g.Tap(func(*Effect[int]) { order = append(order, "second") })

	g.Receive(1)

	if len(order) != 2 || order[0] != "second" || order[1] != "first" {
		t.Fatalf("order == %v", order)
	}
}

func TestTapUnsubscribe(t *testing.T) {
	g := maxish(0)

	calls := 0
	unsub := g.Tap(func(*Effect[int]) { calls++ })

	g.Receive(1)
	unsub()
	g.Receive(2)

	if calls != 1 {
		t.Fatalf("calls == %d", calls)
	}
	if got := g.Current(); got != 2 {
		t.Fatalf("Current() == %d", got)
	}
}

func TestDirected(t *testing.T) {
	src := maxish(0)
	dst := maxish(0)

	unsub := Directed(src, dst)

	src.Receive(5)
	if got := dst.Current(); got != 5 {
		t.Fatalf("dst.Current() == %d", got)
	}

	// A non-improving input on src emits nothing, so nothing
	// crosses the wire.
	src.Receive(3)
	if got := dst.Current(); got != 5 {
		t.Fatalf("dst.Current() == %d", got)
	}

	unsub()
	src.Receive(10)
	if got := dst.Current(); got != 5 {
		t.Fatalf("dst.Current() == %d after unsubscribe", got)
	}
}

func TestEffectDirected(t *testing.T) {
	src := maxish(0)

	var seen []*Effect[int]
	sink := New(func(_ int, e *Effect[int]) *Step[int, *Effect[int], int] {
		return &Step[int, *Effect[int], int]{
			Do: func(g *Gadget[int, *Effect[int], int]) *Effect[int] {
				seen = append(seen, e)
				return nil
			},
		}
	}, 0)

	EffectDirected(src, sink)

	src.Receive(7)
	if len(seen) != 1 || seen[0].Changed == nil || *seen[0].Changed != 7 {
		t.Fatalf("seen == %v", seen)
	}
}

// TestFeedbackLoopTerminates wires two strictly-increasing cells
// into a cycle that would recurse forever without the depth guard.
func TestFeedbackLoopTerminates(t *testing.T) {
	inc := func() *Gadget[int, int, int] {
		return New(func(current, incoming int) *Step[int, int, int] {
			if incoming <= current {
				return nil
			}
			return &Step[int, int, int]{
				Do: func(g *Gadget[int, int, int]) *Effect[int] {
					g.Update(incoming)
					return Change(incoming + 1) // always "improves"
				},
			}
		}, 0)
	}

	a, b := inc(), inc()
	Bidirectional(a, b)

	a.Receive(1) // must return

	if a.Dropped() == 0 && b.Dropped() == 0 {
		t.Fatal("expected the depth guard to drop something")
	}
}

func TestLoose(t *testing.T) {
	g := maxish(0)
	r := Loose(g, func(x any) (int, bool) {
		switch v := x.(type) {
		case int:
			return v, true
		case float64:
			return int(v), true
		}
		return 0, false
	})

	r.Receive(4)
	r.Receive(7.0)
	r.Receive("nope") // silently ignored

	if got := g.Current(); got != 7 {
		t.Fatalf("Current() == %d", got)
	}
}

func TestEffectJSON(t *testing.T) {
	// Consumers discriminate effects by which key is present, so
	// the encodings are load-bearing.
	for _, tc := range []struct {
		effect *Effect[int]
		want   string
	}{
		{Change(15), `{"changed":15}`},
		{NoChange[int](), `{"noop":{}}`},
		{Contradict(1, 2), `{"contradiction":{"current":1,"incoming":2}}`},
	} {
		js, err := json.Marshal(tc.effect)
		if err != nil {
			t.Fatal(err)
		}
		if string(js) != tc.want {
			t.Fatalf("marshaled %s (want %s)", js, tc.want)
		}
	}
}
