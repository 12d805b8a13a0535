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
	"github.com/Comcast/gadgets/gadget"
	"github.com/Comcast/gadgets/lattice"
)

// Topics is PubSub state: topic → set of subscriber names.  Same
// delete-on-empty rule as Router adjacency.
type Topics = map[string]lattice.Set[string]

// PubSub is a gadget whose state is subscriptions.
//
// PubSub never delivers data itself.  A publish emits a Router send
// command in the effect's Route field; subscribe and unsubscribe
// emit the Router connect/disconnect that realizes them.  Couple
// feeds those commands into an actual Router.
//
// PubSub also holds the most recent publish per topic.  When a
// subscribe actually changes a topic's subscriber set, the held
// message is re-emitted as a Replay send targeting just the new
// subscriber: a publish that preceded its audience is delivered,
// exactly once, at subscribe time.
type PubSub struct {
	*gadget.Gadget[Topics, Command, Event]

	held map[string]any
}

// NewPubSub makes a PubSub with no topics.
func NewPubSub() *PubSub {
	p := &PubSub{
		held: make(map[string]any),
	}
	p.Gadget = gadget.New(p.consider, make(Topics))
	p.Snapshot = copyTopics
	return p
}

func copyTopics(ts Topics) Topics {
	acc := make(Topics, len(ts))
	for topic, subs := range ts {
		acc[topic] = subs.Copy()
	}
	return acc
}

type pubsubStep = gadget.Step[Topics, Command, Event]

func (p *PubSub) consider(current Topics, cmd Command) *pubsubStep {
	switch cmd.Type {
	case Subscribe:
		if current[cmd.Topic].Contains(cmd.Subscriber) {
			// Idempotent: already subscribed, no emission.
			return nil
		}
		return p.subscribeStep(cmd.Topic, cmd.Subscriber)
	case Unsubscribe:
		if !current[cmd.Topic].Contains(cmd.Subscriber) {
			return nil
		}
		return p.unsubscribeStep(cmd.Topic, cmd.Subscriber)
	case Publish:
		return p.publishStep(cmd.Topic, cmd.Data)
	case Connect, Disconnect, Send, Broadcast:
		// Router commands; not ours.
		return nil
	}
	return nil
}

func (p *PubSub) subscribeStep(topic, subscriber string) *pubsubStep {
	return &pubsubStep{
		Do: func(g *gadget.Gadget[Topics, Command, Event]) *gadget.Effect[Event] {
			ts := copyTopics(g.Current())
			subs, have := ts[topic]
			if !have {
				subs = lattice.NewSet[string]()
				ts[topic] = subs
			}
			subs.Add(subscriber)
			g.Update(ts)

			event := Event{
				Subscribed: &Subscription{Topic: topic, Subscriber: subscriber},
				Route: &Command{
					Type: Connect,
					From: topic,
					To:   Targets{subscriber},
				},
			}
			if data, have := p.held[topic]; have {
				event.Replay = &Command{
					Type: Send,
					From: topic,
					To:   Targets{subscriber},
					Data: data,
				}
			}
			return gadget.Change(event)
		},
	}
}

func (p *PubSub) unsubscribeStep(topic, subscriber string) *pubsubStep {
	return &pubsubStep{
		Do: func(g *gadget.Gadget[Topics, Command, Event]) *gadget.Effect[Event] {
			ts := copyTopics(g.Current())
			subs := ts[topic]
			subs.Remove(subscriber)
			if len(subs) == 0 {
				delete(ts, topic)
			}
			g.Update(ts)

			return gadget.Change(Event{
				Unsubscribed: &Subscription{Topic: topic, Subscriber: subscriber},
				Route: &Command{
					Type: Disconnect,
					From: topic,
					To:   Targets{subscriber},
				},
			})
		},
	}
}

func (p *PubSub) publishStep(topic string, data any) *pubsubStep {
	return &pubsubStep{
		Do: func(g *gadget.Gadget[Topics, Command, Event]) *gadget.Effect[Event] {
			p.held[topic] = data
			subs := sorted(g.Current()[topic])
			return gadget.Change(Event{
				Route: &Command{
					Type: Send,
					From: topic,
					To:   subs,
					Data: data,
				},
			})
		},
	}
}

// Couple taps a PubSub and re-dispatches its nested Router commands
// into the given Router: the Route first, then any Replay, so a
// replayed message finds its edge already in place.  Returns an
// unsubscribe.
//
// This is the whole trick.  Both sides are ordinary gadgets, and the
// coupling is ordinary data flowing through ordinary receives, so
// the network's shape is governed by the same mechanism as any
// application value.
func Couple(p *PubSub, r *Router) func() {
	return p.Tap(func(e *gadget.Effect[Event]) {
		if e.Changed == nil {
			return
		}
		if route := e.Changed.Route; route != nil {
			r.Receive(*route)
		}
		if replay := e.Changed.Replay; replay != nil {
			r.Receive(*replay)
		}
	})
}
