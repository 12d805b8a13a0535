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

package meta

import (
	"sort"

	"github.com/Comcast/gadgets/gadget"
	"github.com/Comcast/gadgets/lattice"
)

// Adjacency is Router state: source name → set of target names.
//
// An empty target set is never left dangling: disconnect deletes the
// key, so a lookup for a fully-disconnected source reports absent,
// not empty.
type Adjacency = map[string]lattice.Set[string]

// Router is a gadget whose state is network topology.
//
// Deliveries resolve names through a Registry, a side table separate
// from adjacency: topology edits never touch live gadgets, and
// connecting to a name that isn't registered yet is fine -- networks
// are built incrementally, so forward references are expected and
// unresolvable names are silently skipped.
type Router struct {
	*gadget.Gadget[Adjacency, Command, Event]

	registry map[string]gadget.Receiver
}

// NewRouter makes a Router with empty adjacency and registry.
func NewRouter() *Router {
	r := &Router{
		registry: make(map[string]gadget.Receiver),
	}
	r.Gadget = gadget.New(r.consider, make(Adjacency))
	r.Snapshot = copyAdjacency
	return r
}

func copyAdjacency(adj Adjacency) Adjacency {
	acc := make(Adjacency, len(adj))
	for from, tos := range adj {
		acc[from] = tos.Copy()
	}
	return acc
}

// Register binds a name to a live gadget (or any Receiver) for
// delivery.  Registration is independent of adjacency.
func (r *Router) Register(name string, rec gadget.Receiver) {
	r.registry[name] = rec
}

// Deregister removes a name binding.  Adjacency entries mentioning
// the name stay; they just stop resolving.
func (r *Router) Deregister(name string) {
	delete(r.registry, name)
}

type routerStep = gadget.Step[Adjacency, Command, Event]

func (r *Router) consider(current Adjacency, cmd Command) *routerStep {
	switch cmd.Type {
	case Connect:
		if len(cmd.To) != 1 {
			// Connect installs exactly one edge.
			return nil
		}
		if current[cmd.From].Contains(cmd.To.one()) {
			// Duplicate connect: no change, no emission.
			return nil
		}
		return r.connectStep(cmd.From, cmd.To.one())
	case Disconnect:
		if len(cmd.To) != 1 {
			return nil
		}
		if !current[cmd.From].Contains(cmd.To.one()) {
			return nil
		}
		return r.disconnectStep(cmd.From, cmd.To.one())
	case Send:
		return r.sendStep(cmd.From, cmd.To, cmd.Data)
	case Broadcast:
		tos := sorted(current[cmd.From])
		return r.sendStep(cmd.From, tos, cmd.Data)
	case Subscribe, Unsubscribe, Publish:
		// PubSub commands; not ours.
		return nil
	}
	return nil
}

func (r *Router) connectStep(from, to string) *routerStep {
	return &routerStep{
		Do: func(g *gadget.Gadget[Adjacency, Command, Event]) *gadget.Effect[Event] {
			adj := copyAdjacency(g.Current())
			tos, have := adj[from]
			if !have {
				tos = lattice.NewSet[string]()
				adj[from] = tos
			}
			tos.Add(to)
			g.Update(adj)
			return gadget.Change(Event{
				Connected: &Edge{From: from, To: to},
			})
		},
	}
}

func (r *Router) disconnectStep(from, to string) *routerStep {
	return &routerStep{
		Do: func(g *gadget.Gadget[Adjacency, Command, Event]) *gadget.Effect[Event] {
			adj := copyAdjacency(g.Current())
			tos := adj[from]
			tos.Remove(to)
			if len(tos) == 0 {
				// Delete-on-empty: never leave a dangling
				// empty set.
				delete(adj, from)
			}
			g.Update(adj)
			return gadget.Change(Event{
				Disconnected: &Edge{From: from, To: to},
			})
		},
	}
}

// sendStep delivers data to each resolvable target, synchronously
// and in order.  Unregistered names are skipped without complaint.
func (r *Router) sendStep(from string, tos Targets, data any) *routerStep {
	if len(tos) == 0 {
		return nil
	}
	return &routerStep{
		Do: func(g *gadget.Gadget[Adjacency, Command, Event]) *gadget.Effect[Event] {
			count := 0
			for _, to := range tos {
				if rec, have := r.registry[to]; have {
					rec.Receive(data)
					count++
				}
			}
			if count == 0 {
				return nil
			}
			return gadget.Change(Event{
				Sent: &Delivery{From: from, To: tos, Count: count},
			})
		},
	}
}

// one returns the single target of a connect/disconnect.
func (ts Targets) one() string {
	if len(ts) == 0 {
		return ""
	}
	return ts[0]
}

// sorted returns a Set's members in a deterministic order, since
// delivery order is part of the contract.
func sorted(s lattice.Set[string]) Targets {
	names := s.Values()
	sort.Strings(names)
	return Targets(names)
}
