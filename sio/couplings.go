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

// Package sio couples gadget networks to the outside world: building
// a network from a declarative spec, feeding it messages from stdin
// or elsewhere, and writing out what its gadgets emit.
package sio

import (
	"context"
)

// Couplings provide channels for message input and results output.
//
// For example, an implementation could couple a network to an MQTT
// broker, or just to stdin/stdout.
type Couplings interface {
	// Start initializes the Couplings.
	Start(context.Context) error

	// IO returns the input channel, the result channel, and a
	// channel that's closed when the input is exhausted.
	IO(context.Context) (chan interface{}, chan *Result, chan bool, error)

	// Stop shuts down the Couplings.
	Stop(context.Context) error
}

// Emission is one message emitted by one named gadget during
// processing.
type Emission struct {
	// Gadget is the name of the gadget that emitted.
	Gadget string `json:"gadget"`

	// Effect is what the gadget emitted (usually a
	// gadget.Effect).
	Effect interface{} `json:"effect"`
}

// Result represents all visible output from processing a message.
//
// Emissions are ordered: a single input message is propagated
// synchronously, so the tap order is deterministic.
type Result struct {
	Emitted []*Emission `json:"emitted,omitempty"`

	// Error reports a processing problem (as a string so the
	// Result can round-trip through JSON).
	Error string `json:"error,omitempty"`
}
