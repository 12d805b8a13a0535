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
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/jsccast/yaml"
)

// NetSpec is a declarative description of a gadget network: named
// cells, wires between them, and pubsub subscriptions.
//
// A NetSpec can be written in YAML or JSON.
type NetSpec struct {
	// Name is the (optional) name of the network.
	Name string `json:"name,omitempty" yaml:"name,omitempty"`

	// Doc is (optional) documentation for this network.
	Doc string `json:"doc,omitempty" yaml:"doc,omitempty"`

	// Cells are the named gadgets in the network.
	Cells []*CellSpec `json:"cells" yaml:"cells"`

	// Wires forward emissions from one cell to another.
	Wires []*WireSpec `json:"wires,omitempty" yaml:"wires,omitempty"`

	// Subs are initial pubsub subscriptions.
	Subs []*SubSpec `json:"subs,omitempty" yaml:"subs,omitempty"`
}

// CellSpec describes one cell in a NetSpec.
type CellSpec struct {
	// Name is the cell's name, which is also its address in the
	// network's router.
	Name string `json:"name" yaml:"name"`

	// Kind selects the cell's merge policy.  See Kinds for the
	// legal values.
	Kind string `json:"kind" yaml:"kind"`

	// Doc is (optional) documentation for this cell.
	Doc string `json:"doc,omitempty" yaml:"doc,omitempty"`

	// Init is the cell's (optional) initial state.  Its expected
	// shape depends on Kind: a number for "max" and "min", an
	// array for "union" and "intersection", a map for the map
	// kinds, and so on.
	Init interface{} `json:"init,omitempty" yaml:"init,omitempty"`

	// Fuzzy configures a cell of kind "fuzzy".
	Fuzzy *FuzzySpec `json:"fuzzy,omitempty" yaml:"fuzzy,omitempty"`
}

// FuzzySpec configures the compaction behavior of a "fuzzy" cell.
type FuzzySpec struct {
	// CompactThreshold is the accumulated length that makes
	// compaction eligible.
	CompactThreshold int `json:"compactThreshold,omitempty" yaml:"compactThreshold,omitempty"`

	// CompactProbability is the chance, once eligible, that a
	// write actually triggers compaction.
	CompactProbability float64 `json:"compactProbability,omitempty" yaml:"compactProbability,omitempty"`

	// MinCompactInterval is the minimum time between compactions
	// (a Go duration string like "500ms").
	MinCompactInterval string `json:"minCompactInterval,omitempty" yaml:"minCompactInterval,omitempty"`

	// Strategy names the compactor: "dedupe", "sliding", or
	// "window".  Empty means no compactor.
	Strategy string `json:"strategy,omitempty" yaml:"strategy,omitempty"`

	// Key is the dedupe key field (for "dedupe").
	Key string `json:"key,omitempty" yaml:"key,omitempty"`

	// WindowSize is the number of entries to keep (for
	// "sliding").
	WindowSize int `json:"windowSize,omitempty" yaml:"windowSize,omitempty"`

	// MaxAge is how old an entry can be before "window" drops it
	// (a Go duration string).
	MaxAge string `json:"maxAge,omitempty" yaml:"maxAge,omitempty"`

	// TimestampFields are the fields "window" consults for an
	// entry's time.
	TimestampFields []string `json:"timestampFields,omitempty" yaml:"timestampFields,omitempty"`
}

func (f *FuzzySpec) interval() (time.Duration, error) {
	if f.MinCompactInterval == "" {
		return 0, nil
	}
	return time.ParseDuration(f.MinCompactInterval)
}

func (f *FuzzySpec) maxAge() (time.Duration, error) {
	if f.MaxAge == "" {
		return 0, nil
	}
	return time.ParseDuration(f.MaxAge)
}

// WireSpec forwards emissions from one cell to another.
type WireSpec struct {
	From string `json:"from" yaml:"from"`
	To   string `json:"to" yaml:"to"`

	// Effects forwards the entire effect instead of just the
	// changed payload.
	Effects bool `json:"effects,omitempty" yaml:"effects,omitempty"`
}

// SubSpec subscribes a cell to a pubsub topic at network start.
type SubSpec struct {
	Topic      string `json:"topic" yaml:"topic"`
	Subscriber string `json:"subscriber" yaml:"subscriber"`
}

// Kinds are the legal CellSpec kinds.
var Kinds = []string{
	"max", "min", "union", "intersection",
	"first-map", "last-map", "union-map",
	"ordinal", "last", "lww", "fuzzy",
	"router", "pubsub",
}

// ResolveNetSpec parses a NetSpec from JSON or YAML.
//
// If the first byte is '{', the input is treated as JSON; otherwise
// as YAML.
func ResolveNetSpec(body []byte) (*NetSpec, error) {
	if len(body) == 0 {
		return nil, fmt.Errorf("network spec is empty")
	}

	var ns NetSpec
	var err error
	switch body[0] {
	case '{':
		err = json.Unmarshal(body, &ns)
	default:
		err = yaml.Unmarshal(body, &ns)
	}
	if err != nil {
		return nil, err
	}

	for _, c := range ns.Cells {
		c.Init = Canonical(c.Init)
	}

	if err = ns.Validate(); err != nil {
		return nil, err
	}

	return &ns, nil
}

// LoadNetSpec reads and parses a NetSpec from a file.
func LoadNetSpec(filename string) (*NetSpec, error) {
	body, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	return ResolveNetSpec(body)
}

// Validate performs basic structural checks: every cell has a legal
// kind and a unique name, and wires and subs refer to cells that
// exist.
func (ns *NetSpec) Validate() error {
	names := make(map[string]bool, len(ns.Cells))
	for _, c := range ns.Cells {
		if c.Name == "" {
			return fmt.Errorf("cell with no name")
		}
		if names[c.Name] {
			return fmt.Errorf("duplicate cell name '%s'", c.Name)
		}
		names[c.Name] = true
		legal := false
		for _, k := range Kinds {
			if c.Kind == k {
				legal = true
				break
			}
		}
		if !legal {
			return fmt.Errorf("cell '%s' has unknown kind '%s'", c.Name, c.Kind)
		}
		if c.Kind == "fuzzy" && c.Fuzzy != nil {
			if _, err := c.Fuzzy.interval(); err != nil {
				return fmt.Errorf("cell '%s' minCompactInterval: %v", c.Name, err)
			}
			if _, err := c.Fuzzy.maxAge(); err != nil {
				return fmt.Errorf("cell '%s' maxAge: %v", c.Name, err)
			}
		}
	}
	for _, w := range ns.Wires {
		if !names[w.From] {
			return fmt.Errorf("wire from unknown cell '%s'", w.From)
		}
		if !names[w.To] {
			return fmt.Errorf("wire to unknown cell '%s'", w.To)
		}
	}
	for _, s := range ns.Subs {
		if !names[s.Subscriber] {
			return fmt.Errorf("subscription for unknown cell '%s'", s.Subscriber)
		}
		if s.Topic == "" {
			return fmt.Errorf("subscription for '%s' has no topic", s.Subscriber)
		}
	}
	return nil
}

// Canonical rewrites YAML-style maps (with interface{} keys) as
// JSON-style maps (with string keys) recursively, so that parsed
// initial states can round-trip through encoding/json.
func Canonical(x interface{}) interface{} {
	switch vv := x.(type) {
	case map[interface{}]interface{}:
		m := make(map[string]interface{}, len(vv))
		for k, v := range vv {
			m[fmt.Sprintf("%v", k)] = Canonical(v)
		}
		return m
	case map[string]interface{}:
		m := make(map[string]interface{}, len(vv))
		for k, v := range vv {
			m[k] = Canonical(v)
		}
		return m
	case []interface{}:
		a := make([]interface{}, len(vv))
		for i, v := range vv {
			a[i] = Canonical(v)
		}
		return a
	default:
		return x
	}
}
