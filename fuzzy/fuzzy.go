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

// Package fuzzy provides an append-mostly accumulation cell with
// throttled, pluggable, asynchronous compaction.
//
// The philosophy is the same as the rest of this module: accumulate,
// don't lose information.  Writes always append.  The accumulated
// history shrinks or reorganizes only through an explicit, successful
// compaction, and a failed compaction never mutates anything.
package fuzzy

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/Comcast/gadgets/gadget"
)

// Compactor reduces an accumulated history.  It receives the history
// and the delta written since the last compaction, and returns the
// replacement history.
//
// Compactors run outside the cell's lock, so they may block, do IO,
// or take their time; any timeout belongs to the compactor itself
// (or its context).
type Compactor[V any] func(ctx context.Context, accumulated, delta []V) ([]V, error)

// Config controls a Cell's throttled auto-compaction.
type Config[V any] struct {
	// CompactThreshold is the accumulated length at which a write
	// may trigger compaction.  Zero disables auto-compaction
	// entirely; explicit Compact calls still work.
	CompactThreshold int

	// CompactProbability is the chance, per qualifying write,
	// that compaction actually runs.  This amortizes compaction
	// cost: most writes pay nothing.
	CompactProbability float64

	// MinCompactInterval is the minimum spacing between
	// compactions.
	MinCompactInterval time.Duration

	// Compactor does the actual work.  With no Compactor
	// configured, Compact just clears the delta: an inert
	// acknowledgment that leaves the history alone.
	Compactor Compactor[V]

	// Rand and Now exist so tests can pin the throttle down.
	// Defaults: rand.Float64 and time.Now.
	Rand func() float64
	Now  func() time.Time
}

// Stats counts Cell activity.
type Stats struct {
	Writes      int64 `json:"writes"`
	Compactions int64 `json:"compactions"`

	// Stale counts compactions whose results were discarded
	// because another compaction committed first.
	Stale int64 `json:"stale"`
}

// Result reports what a Compact call did.
type Result struct {
	Compacted bool   `json:"compacted"`
	Reason    string `json:"reason,omitempty"`
	Err       error  `json:"-"`
}

// Compact result reasons.
const (
	ReasonNoDelta     = "no_delta"
	ReasonNoCompactor = "no_compactor"
	ReasonError       = "error"
	ReasonStale       = "stale"
)

// Cell accumulates values and periodically compacts them.
//
// Write and Compact are safe for concurrent use.  The compactor call
// itself runs unlocked: during it, writes keep appending (appends
// are never lost), and the history is swapped atomically only when
// the call resolves.  Each successful swap bumps a generation
// counter; a compaction that started against an older generation
// discards its result instead of clobbering the newer one.
type Cell[V any] struct {
	mu sync.Mutex

	conf Config[V]

	accumulated []V
	pending     []V
	last        time.Time
	gen         uint64
	stats       Stats
}

// NewCell makes a Cell with the given configuration.
func NewCell[V any](conf Config[V]) *Cell[V] {
	if conf.Rand == nil {
		conf.Rand = rand.Float64
	}
	if conf.Now == nil {
		conf.Now = time.Now
	}
	return &Cell[V]{
		conf: conf,
	}
}

// Write appends a value to the history and the pending delta.
//
// If the accumulated length has reached CompactThreshold, enough
// time has passed, and the probability draw comes up, a compaction
// runs asynchronously.
func (c *Cell[V]) Write(ctx context.Context, v V) {
	c.mu.Lock()
	c.accumulated = append(c.accumulated, v)
	c.pending = append(c.pending, v)
	c.stats.Writes++
	trigger := c.shouldCompact()
	c.mu.Unlock()

	if trigger {
		go c.Compact(ctx)
	}
}

// shouldCompact implements the throttle.  Callers hold c.mu.
func (c *Cell[V]) shouldCompact() bool {
	if c.conf.CompactThreshold <= 0 {
		return false
	}
	if len(c.accumulated) < c.conf.CompactThreshold {
		return false
	}
	if c.conf.Now().Sub(c.last) < c.conf.MinCompactInterval {
		return false
	}
	return c.conf.Rand() < c.conf.CompactProbability
}

// Compact runs the configured compactor over the current history.
//
// An empty delta is an idempotent no-op.  On compactor error,
// nothing is mutated: failed compaction never loses data.  A stale
// completion (another compaction committed first) is likewise
// discarded.
func (c *Cell[V]) Compact(ctx context.Context) Result {
	c.mu.Lock()

	if len(c.pending) == 0 {
		c.mu.Unlock()
		return Result{Reason: ReasonNoDelta}
	}

	if c.conf.Compactor == nil {
		// Inert acknowledgment: drop the delta marker, keep
		// the history.
		c.pending = nil
		c.last = c.conf.Now()
		c.mu.Unlock()
		return Result{Reason: ReasonNoCompactor}
	}

	var (
		gen      = c.gen
		deltaLen = len(c.pending)
		acc      = append([]V(nil), c.accumulated...)
		delta    = append([]V(nil), c.pending...)
	)
	c.mu.Unlock()

	replacement, err := c.conf.Compactor(ctx, acc, delta)

	c.mu.Lock()
	defer c.mu.Unlock()

	if err != nil {
		return Result{Reason: ReasonError, Err: err}
	}

	if gen != c.gen {
		c.stats.Stale++
		return Result{Reason: ReasonStale}
	}

	// Writes that arrived while the compactor ran are the tail of
	// pending beyond the snapshot; carry them over so nothing is
	// lost, and clear only the compacted prefix of the delta.
	tail := c.pending[deltaLen:]
	c.accumulated = append(replacement, tail...)
	c.pending = append([]V(nil), tail...)
	c.last = c.conf.Now()
	c.gen++
	c.stats.Compactions++

	return Result{Compacted: true}
}

// Accumulated returns a copy of the history.
func (c *Cell[V]) Accumulated() []V {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]V(nil), c.accumulated...)
}

// PendingDelta returns a copy of the uncompacted delta.
func (c *Cell[V]) PendingDelta() []V {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]V(nil), c.pending...)
}

// Stats returns a snapshot of the counters.
func (c *Cell[V]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

// LastCompactedAt reports when the last compaction committed.
func (c *Cell[V]) LastCompactedAt() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last
}

// Receiver adapts the Cell for delivery from a Router: every
// delivered value that coerce accepts becomes a Write, and anything
// else is silently ignored.
func (c *Cell[V]) Receiver(ctx context.Context, coerce func(any) (V, bool)) gadget.Receiver {
	return gadget.ReceiverFunc(func(x any) {
		if v, ok := coerce(x); ok {
			c.Write(ctx, v)
		}
	})
}
