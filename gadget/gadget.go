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

// Package gadget provides the generic consider→act reactive unit
// that everything else in this module rides on.
//
// A Gadget owns its state exclusively.  Receive(input) calls the
// gadget's Consider function, which either returns nil (the
// canonical ignore path: no state change, no emission) or a Step
// whose Do closure applies the change and returns an Effect.  Any
// expensive work (set algebra, array transforms) happens exactly
// once in Consider and is carried into Do by the closure, so
// deciding whether to change state never recomputes, and observers
// never see a partially applied change.
//
// Everything here is synchronous: Receive on one gadget may directly
// and recursively invoke Receive on wired gadgets within the same
// call stack.  A wiring feedback loop would recurse without bound,
// so Receive drops input once its nesting depth on a single gadget
// exceeds MaxDepth.
package gadget

// MaxDepth bounds Receive reentrancy on a single gadget.
//
// A cross-gadget feedback loop (a → b → a) reenters a's Receive, so
// a per-gadget depth counter is enough to terminate any cycle.
var MaxDepth = 100

// Step is the result of a Consider that accepted an input.
type Step[S, I, E any] struct {
	// Do applies the decision.  It may call g.Update to replace
	// the state, and it returns the effect to emit, or nil for
	// none.
	Do func(g *Gadget[S, I, E]) *Effect[E]
}

// Consider inspects the current state and an input and decides what,
// if anything, to do.  Returning nil ignores the input: wrong type,
// non-improving value, whatever.
type Consider[S, I, E any] func(current S, input I) *Step[S, I, E]

// Gadget is a reactive cell: state S, inputs I, effect payloads E.
type Gadget[S, I, E any] struct {
	// Snapshot, if set, is used by Current to copy the state so
	// that callers can't mutate it behind the gadget's back.
	// Value-typed states don't need one.
	Snapshot func(S) S

	// OnDepthExceeded, if set, is called when Receive drops an
	// input because of the MaxDepth guard.
	OnDepthExceeded func(input I)

	state    S
	consider Consider[S, I, E]
	emit     func(*Effect[E])
	depth    int
	dropped  int
}

// New creates a Gadget with the given policy and initial state.
//
// The default emit is a no-op; use Tap (or the wiring combinators)
// to observe effects.
func New[S, I, E any](consider Consider[S, I, E], initial S) *Gadget[S, I, E] {
	return &Gadget[S, I, E]{
		state:    initial,
		consider: consider,
		emit:     func(*Effect[E]) {},
	}
}

// Receive offers an input to the gadget.
//
// If Consider rejects the input, nothing happens.  Otherwise the
// Step's Do runs, and a non-nil effect is emitted to all taps.
func (g *Gadget[S, I, E]) Receive(input I) {
	if MaxDepth <= g.depth {
		g.dropped++
		if g.OnDepthExceeded != nil {
			g.OnDepthExceeded(input)
		}
		return
	}
	g.depth++
	defer func() { g.depth-- }()

	step := g.consider(g.state, input)
	if step == nil || step.Do == nil {
		return
	}
	if effect := step.Do(g); effect != nil {
		g.emit(effect)
	}
}

// Current returns a read-only snapshot of the state.
func (g *Gadget[S, I, E]) Current() S {
	if g.Snapshot != nil {
		return g.Snapshot(g.state)
	}
	return g.state
}

// Update replaces the state wholesale.
//
// Only a Step's Do should call this method.  No other code mutates
// gadget state.
func (g *Gadget[S, I, E]) Update(state S) {
	g.state = state
}

// Dropped reports how many inputs the MaxDepth guard has discarded.
func (g *Gadget[S, I, E]) Dropped() int {
	return g.dropped
}

// Emit sends an effect to the gadget's taps without touching state.
//
// Meta-gadgets use this to surface deliveries that happen outside a
// Step.  Most code never needs it.
func (g *Gadget[S, I, E]) Emit(effect *Effect[E]) {
	if effect != nil {
		g.emit(effect)
	}
}

// Tap adds a listener for emitted effects and returns an
// unsubscribe.
//
// The new listener wraps the current emit, so listeners fire in LIFO
// order: the most recently added tap sees an effect first.  The
// returned function restores the chain as it was when Tap was
// called.
func (g *Gadget[S, I, E]) Tap(listener func(*Effect[E])) func() {
	prev := g.emit
	g.emit = func(e *Effect[E]) {
		listener(e)
		prev(e)
	}
	return func() {
		g.emit = prev
	}
}
