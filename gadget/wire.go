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

// Wiring combinators.  A wire is just a tap on the source that calls
// Receive on the target, so a wired graph executes as one
// synchronous call tree per external input.

// Directed forwards the unwrapped value of Changed effects from src
// into dst.Receive.  Noop and Contradiction effects do not cross the
// wire.  Returns an unsubscribe.
func Directed[S1, I1, T, S2, E2 any](src *Gadget[S1, I1, T], dst *Gadget[S2, T, E2]) func() {
	return src.Tap(func(e *Effect[T]) {
		if e.Changed != nil {
			dst.Receive(*e.Changed)
		}
	})
}

// Bidirectional installs Directed both ways.  Returns an unsubscribe
// that removes both wires.
func Bidirectional[S1, S2, T, U any](a *Gadget[S1, U, T], b *Gadget[S2, T, U]) func() {
	ab := Directed(a, b)
	ba := Directed(b, a)
	return func() {
		ab()
		ba()
	}
}

// EffectDirected forwards entire effects (including Noop and
// Contradiction) from src into dst.Receive, letting dst reason about
// merge outcomes rather than just values.
func EffectDirected[S1, I1, T, S2, E2 any](src *Gadget[S1, I1, T], dst *Gadget[S2, *Effect[T], E2]) func() {
	return src.Tap(func(e *Effect[T]) {
		dst.Receive(e)
	})
}

// Receiver is anything that accepts loosely typed input.
//
// Registries hold Receivers so that delivery doesn't care what kind
// of gadget (or anything else) is behind a name.
type Receiver interface {
	Receive(x any)
}

// ReceiverFunc adapts a function to a Receiver.
type ReceiverFunc func(x any)

func (f ReceiverFunc) Receive(x any) { f(x) }

type looseReceiver[S, I, E any] struct {
	g      *Gadget[S, I, E]
	coerce func(any) (I, bool)
}

func (l looseReceiver[S, I, E]) Receive(x any) {
	if v, ok := l.coerce(x); ok {
		l.g.Receive(v)
	}
}

// Loose adapts a typed gadget to a Receiver.  Input that coerce
// rejects is silently ignored, which is the same ignore path a
// Consider takes for data of the wrong shape.
func Loose[S, I, E any](g *Gadget[S, I, E], coerce func(any) (I, bool)) Receiver {
	return looseReceiver[S, I, E]{g: g, coerce: coerce}
}
