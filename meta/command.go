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

// Package meta provides the meta-gadgets: gadgets whose state is the
// wiring of other gadgets.
//
// A Router's state is an adjacency map, and a PubSub's state is a
// topic→subscriber map.  Both are ordinary gadgets driven by plain
// data Commands, and PubSub's emissions carry nested Router commands,
// so rewiring the network is expressed the same way as any other
// write.  Couple is the translation stage between the two.
package meta

import (
	"encoding/json"
	"fmt"
)

// CommandType discriminates Commands.  The set is closed: consider
// functions switch over it exhaustively, and an unknown type from
// the wire falls on the ignore path.
type CommandType string

const (
	Connect    CommandType = "connect"
	Disconnect CommandType = "disconnect"
	Send       CommandType = "send"
	Broadcast  CommandType = "broadcast"

	Subscribe   CommandType = "subscribe"
	Unsubscribe CommandType = "unsubscribe"
	Publish     CommandType = "publish"
)

// Command is a plain-data instruction for a Router or a PubSub.
//
// Commands are externally authorable JSON: anything that can write
// {"type":"connect","from":"a","to":"b"} can rewire a network.
type Command struct {
	Type CommandType `json:"type"`

	// From and To are Router fields (connect, disconnect, send,
	// broadcast).
	From string  `json:"from,omitempty"`
	To   Targets `json:"to,omitempty"`

	// Topic and Subscriber are PubSub fields (subscribe,
	// unsubscribe, publish).
	Topic      string `json:"topic,omitempty"`
	Subscriber string `json:"subscriber,omitempty"`

	// Data is the payload for send, broadcast, and publish.
	Data any `json:"data,omitempty"`
}

func (c Command) String() string {
	js, err := json.Marshal(c)
	if err != nil {
		return string(c.Type) + "/{*}"
	}
	return string(js)
}

// Targets is a list of gadget names.  On the wire it can be a single
// string or an array of strings.
type Targets []string

func (ts Targets) MarshalJSON() ([]byte, error) {
	if len(ts) == 1 {
		return json.Marshal(ts[0])
	}
	return json.Marshal([]string(ts))
}

func (ts *Targets) UnmarshalJSON(bs []byte) error {
	var name string
	if err := json.Unmarshal(bs, &name); err == nil {
		*ts = Targets{name}
		return nil
	}
	var names []string
	if err := json.Unmarshal(bs, &names); err == nil {
		*ts = Targets(names)
		return nil
	}
	return fmt.Errorf("targets should be a name or an array of names: %s", bs)
}

// Edge is one adjacency entry: messages from From go to To.
type Edge struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// Subscription is one PubSub entry.
type Subscription struct {
	Topic      string `json:"topic"`
	Subscriber string `json:"subscriber"`
}

// Delivery summarizes what a send or broadcast actually did.
type Delivery struct {
	From  string  `json:"from"`
	To    Targets `json:"to"`
	Count int     `json:"count"`
}

// Event is the payload of meta-gadget effects.  As with effects
// themselves, consumers discriminate by which key is present.
//
// Route (and Replay) hold literal Router commands: a PubSub
// subscription change is, as data, exactly the Router command that
// realizes it.
type Event struct {
	Connected    *Edge         `json:"connected,omitempty"`
	Disconnected *Edge         `json:"disconnected,omitempty"`
	Sent         *Delivery     `json:"sent,omitempty"`
	Subscribed   *Subscription `json:"subscribed,omitempty"`
	Unsubscribed *Subscription `json:"unsubscribed,omitempty"`
	Route        *Command      `json:"route,omitempty"`
	Replay       *Command      `json:"replay,omitempty"`
}
