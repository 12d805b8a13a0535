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

package sio

import (
	"testing"
)

func TestResolveNetSpecYAML(t *testing.T) {
	ns, err := ResolveNetSpec([]byte(`
name: demo
doc: A demo network.
cells:
  - name: high
    kind: max
    init: 10
  - name: profile
    kind: first-map
    init:
      who: somebody
wires:
  - from: high
    to: profile
subs:
  - topic: temps
    subscriber: high
`))
	if err != nil {
		t.Fatal(err)
	}
	if ns.Name != "demo" {
		t.Fatal(ns.Name)
	}
	if len(ns.Cells) != 2 || len(ns.Wires) != 1 || len(ns.Subs) != 1 {
		t.Fatal(JS(ns))
	}

	// YAML maps should have been canonicalized to string keys.
	init, is := ns.Cells[1].Init.(map[string]interface{})
	if !is {
		t.Fatalf("%T", ns.Cells[1].Init)
	}
	if init["who"] != "somebody" {
		t.Fatal(init)
	}
}

func TestResolveNetSpecJSON(t *testing.T) {
	ns, err := ResolveNetSpec([]byte(`{"name":"demo","cells":[{"name":"x","kind":"last"}]}`))
	if err != nil {
		t.Fatal(err)
	}
	if ns.Name != "demo" || len(ns.Cells) != 1 {
		t.Fatal(JS(ns))
	}
}

func TestNetSpecValidate(t *testing.T) {
	bad := []string{
		`cells: [{name: x, kind: nope}]`,
		`cells: [{kind: max}]`,
		`cells: [{name: x, kind: max}, {name: x, kind: min}]`,
		`
cells: [{name: x, kind: max}]
wires: [{from: x, to: y}]
`,
		`
cells: [{name: x, kind: max}]
subs: [{topic: t, subscriber: y}]
`,
		`
cells:
  - name: x
    kind: fuzzy
    fuzzy:
      minCompactInterval: sideways
`,
	}
	for _, src := range bad {
		if _, err := ResolveNetSpec([]byte(src)); err == nil {
			t.Fatalf("expected an error for %s", src)
		}
	}
}

func TestCanonical(t *testing.T) {
	x := map[interface{}]interface{}{
		"a": []interface{}{
			map[interface{}]interface{}{"b": 1},
		},
	}
	y, is := Canonical(x).(map[string]interface{})
	if !is {
		t.Fatalf("%T", Canonical(x))
	}
	inner, is := y["a"].([]interface{})
	if !is || len(inner) != 1 {
		t.Fatal(y)
	}
	if _, is = inner[0].(map[string]interface{}); !is {
		t.Fatalf("%T", inner[0])
	}
}
