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
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/Comcast/gadgets/cells"
	"github.com/Comcast/gadgets/fuzzy"
	"github.com/Comcast/gadgets/gadget"
	"github.com/Comcast/gadgets/lattice"
	"github.com/Comcast/gadgets/meta"

	"github.com/rs/zerolog"
)

// Cell is one named gadget in a Network.
//
// The typed gadget underneath is reached only through loose
// adapters, so a Network can hold cells of heterogeneous state types.
type Cell struct {
	Name string
	Kind string

	rec     gadget.Receiver
	current func() interface{}
	tap     func(listener func(effect interface{}, changed interface{}, ok bool)) func()
}

// Network couples named gadget cells to a Router, a PubSub, and
// Timers, with I/O via two channels (in and out).
//
// All message processing happens in ProcessMsg under the network's
// lock, so propagation through any number of cells is synchronous
// and deterministic.
type Network struct {
	// Name is the network's name, from its NetSpec.
	Name string

	// Router delivers send and broadcast commands to cells.
	Router *meta.Router

	// PubSub maps topics to subscribers and drives the Router.
	PubSub *meta.PubSub

	// Log is used for diagnostics.  Defaults to a no-op logger.
	Log zerolog.Logger

	cells  map[string]*Cell
	timers *Timers

	// emitted accumulates tap output during ProcessMsg.
	emitted []*Emission

	// in receives all in-bound messages.
	in chan interface{}

	// out receives all out-bound results.
	out chan *Result

	// done is closed by Couplings when its input is closed.
	done chan bool

	// HaltOnInputEOF stops Loop when the couplings' done channel
	// closes.
	HaltOnInputEOF bool

	sync.Mutex
}

// NewNetwork builds a network from its spec.
//
// The couplings' IO() method is called to obtain the network's
// in/out channels.  couplings can be nil, in which case the network
// is only usable via ProcessMsg (handy for tests and embedding).
func NewNetwork(ctx context.Context, spec *NetSpec, couplings Couplings) (*Network, error) {
	if spec == nil {
		return nil, fmt.Errorf("no network spec")
	}
	if err := spec.Validate(); err != nil {
		return nil, err
	}

	n := &Network{
		Name:   spec.Name,
		Router: meta.NewRouter(),
		PubSub: meta.NewPubSub(),
		Log:    zerolog.Nop(),
		cells:  make(map[string]*Cell, len(spec.Cells)),
	}

	if couplings != nil {
		in, out, done, err := couplings.IO(ctx)
		if err != nil {
			return nil, err
		}
		n.in, n.out, n.done = in, out, done
	}

	meta.Couple(n.PubSub, n.Router)

	n.Router.Tap(func(e *gadget.Effect[meta.Event]) {
		n.emitted = append(n.emitted, &Emission{Gadget: "router", Effect: e})
	})
	n.PubSub.Tap(func(e *gadget.Effect[meta.Event]) {
		n.emitted = append(n.emitted, &Emission{Gadget: "pubsub", Effect: e})
	})

	n.timers = NewTimers(func(ctx context.Context, te *TimerEntry) {
		if n.in != nil {
			select {
			case <-ctx.Done():
			case n.in <- te.Msg:
			}
			return
		}
		if _, err := n.ProcessMsg(ctx, te.Msg); err != nil {
			n.Log.Error().Err(err).Str("timer", te.Id).Msg("timer message failed")
		}
	})
	n.timers.log = &n.Log

	for _, cs := range spec.Cells {
		cell, err := n.buildCell(ctx, cs)
		if err != nil {
			return nil, err
		}
		n.cells[cell.Name] = cell
		n.Router.Register(cell.Name, cell.rec)
		if cell.tap != nil {
			name := cell.Name
			cell.tap(func(effect, _ interface{}, _ bool) {
				n.emitted = append(n.emitted, &Emission{Gadget: name, Effect: effect})
			})
		}
	}

	for _, w := range spec.Wires {
		if err := n.wire(w); err != nil {
			return nil, err
		}
	}

	for _, s := range spec.Subs {
		n.PubSub.Receive(meta.Command{
			Type:       meta.Subscribe,
			Topic:      s.Topic,
			Subscriber: s.Subscriber,
		})
	}
	n.emitted = nil // boot-time emissions aren't a Result

	return n, nil
}

// Cells returns the names of the network's cells.
func (n *Network) Cells() []string {
	acc := make([]string, 0, len(n.cells))
	for name := range n.cells {
		acc = append(acc, name)
	}
	return acc
}

// CellState returns the named cell's current state.
func (n *Network) CellState(name string) (interface{}, bool) {
	n.Lock()
	defer n.Unlock()
	c, have := n.cells[name]
	if !have {
		return nil, false
	}
	return c.current(), true
}

// wire taps the From cell and forwards to the To cell.
func (n *Network) wire(w *WireSpec) error {
	from, have := n.cells[w.From]
	if !have {
		return fmt.Errorf("wire from unknown cell '%s'", w.From)
	}
	to, have := n.cells[w.To]
	if !have {
		return fmt.Errorf("wire to unknown cell '%s'", w.To)
	}
	if from.tap == nil {
		return fmt.Errorf("cell '%s' (kind %s) cannot be wired from", w.From, from.Kind)
	}
	forwardEffects := w.Effects
	from.tap(func(effect, changed interface{}, ok bool) {
		if forwardEffects {
			to.rec.Receive(effect)
			return
		}
		if ok {
			to.rec.Receive(changed)
		}
	})
	return nil
}

// wrapCell adapts a typed gadget into a loose Cell.
func wrapCell[S, I, E any](name, kind string, g *gadget.Gadget[S, I, E], coerce func(interface{}) (I, bool)) *Cell {
	return &Cell{
		Name:    name,
		Kind:    kind,
		rec:     gadget.Loose(g, coerce),
		current: func() interface{} { return g.Current() },
		tap: func(listener func(interface{}, interface{}, bool)) func() {
			return g.Tap(func(e *gadget.Effect[E]) {
				var changed interface{}
				ok := e.Changed != nil
				if ok {
					changed = *e.Changed
				}
				listener(e, changed, ok)
			})
		},
	}
}

func (n *Network) buildCell(ctx context.Context, cs *CellSpec) (*Cell, error) {
	switch cs.Kind {
	case "max":
		init, _ := toNumber(cs.Init)
		return wrapCell(cs.Name, cs.Kind, cells.Max(init), toNumber), nil
	case "min":
		init, _ := toNumber(cs.Init)
		return wrapCell(cs.Name, cs.Kind, cells.Min(init), toNumber), nil
	case "union":
		init, _ := toStringSet(cs.Init)
		return wrapCell(cs.Name, cs.Kind, cells.Union(init), toStringSet), nil
	case "intersection":
		init, _ := toStringSet(cs.Init)
		return wrapCell(cs.Name, cs.Kind, cells.Intersection(init), toStringSet), nil
	case "first-map":
		init, _ := toAnyMap(cs.Init)
		return wrapCell(cs.Name, cs.Kind, cells.FirstMap(init), toAnyMap), nil
	case "last-map":
		init, _ := toAnyMap(cs.Init)
		return wrapCell(cs.Name, cs.Kind, cells.LastMap(init), toAnyMap), nil
	case "union-map":
		init, _ := toAnyMap(cs.Init)
		return wrapCell(cs.Name, cs.Kind, cells.UnionMap(init), toAnyMap), nil
	case "ordinal":
		init, have := toVersioned(cs.Init)
		if !have {
			// A fresh ordinal cell should accept version 0.
			init = cells.Versioned[interface{}]{Version: -1}
		}
		return wrapCell(cs.Name, cs.Kind, cells.Ordinal(init), toVersioned), nil
	case "last":
		return wrapCell(cs.Name, cs.Kind, cells.LooseLast(cs.Init), func(x interface{}) (interface{}, bool) {
			return x, true
		}), nil
	case "lww":
		init, _ := toStamped(cs.Init)
		return wrapCell(cs.Name, cs.Kind, cells.LWW(init), toStamped), nil
	case "fuzzy":
		return n.buildFuzzyCell(ctx, cs)
	case "router":
		// A nested router: a cell whose state is topology data.
		// Its registry starts empty; Network.Router is still the
		// one that delivers.
		r := meta.NewRouter()
		return wrapCell(cs.Name, cs.Kind, r.Gadget, toMetaCommand), nil
	case "pubsub":
		p := meta.NewPubSub()
		return wrapCell(cs.Name, cs.Kind, p.Gadget, toMetaCommand), nil
	}
	return nil, fmt.Errorf("cell '%s' has unknown kind '%s'", cs.Name, cs.Kind)
}

func toMetaCommand(x interface{}) (meta.Command, bool) {
	m, is := x.(map[string]interface{})
	if !is {
		return meta.Command{}, false
	}
	cmd, err := asCommand(m)
	if err != nil {
		return meta.Command{}, false
	}
	return *cmd, true
}

// buildFuzzyCell builds a fuzzy cell, which isn't a gadget: it has
// no taps and fuzzy current state.
func (n *Network) buildFuzzyCell(ctx context.Context, cs *CellSpec) (*Cell, error) {
	fs := cs.Fuzzy
	if fs == nil {
		fs = &FuzzySpec{}
	}

	conf := fuzzy.Config[map[string]interface{}]{
		CompactThreshold:   fs.CompactThreshold,
		CompactProbability: fs.CompactProbability,
	}

	var err error
	if conf.MinCompactInterval, err = fs.interval(); err != nil {
		return nil, err
	}

	switch fs.Strategy {
	case "":
	case "dedupe":
		key := fs.Key
		if key == "" {
			key = "id"
		}
		conf.Compactor = fuzzy.DedupeByKey(func(m map[string]interface{}) interface{} {
			return m[key]
		})
	case "sliding":
		conf.Compactor = fuzzy.SlidingWindow[map[string]interface{}](fs.WindowSize)
	case "window":
		age, err := fs.maxAge()
		if err != nil {
			return nil, err
		}
		conf.Compactor = fuzzy.TimeWindow(age, nil, fs.TimestampFields...)
	default:
		return nil, fmt.Errorf("cell '%s' has unknown fuzzy strategy '%s'", cs.Name, fs.Strategy)
	}

	c := fuzzy.NewCell(conf)

	if init, ok := cs.Init.([]interface{}); ok {
		for _, x := range init {
			if m, ok := toAnyMap(x); ok {
				c.Write(ctx, m)
			}
		}
	}

	return &Cell{
		Name: cs.Name,
		Kind: cs.Kind,
		rec: c.Receiver(ctx, func(x interface{}) (map[string]interface{}, bool) {
			if m, ok := toAnyMap(x); ok {
				return m, true
			}
			// Wrap scalars so nothing is silently lost.
			return map[string]interface{}{"value": x}, true
		}),
		current: func() interface{} {
			return map[string]interface{}{
				"accumulated": c.Accumulated(),
				"pending":     c.PendingDelta(),
				"stats":       c.Stats(),
			}
		},
	}, nil
}

// ProcessMsg processes the given message and returns the results,
// which can then be handled by the network's Result coupling.
//
// A message is either a timer operation ({"timer":...}), a meta
// command ({"type":...}), or a direct send ({"to":...,"data":...}),
// which is shorthand for a send command.
func (n *Network) ProcessMsg(ctx context.Context, msg interface{}) (*Result, error) {
	n.Log.Debug().Str("network", n.Name).Msgf("ProcessMsg %s", JShort(msg))

	n.Lock()
	defer n.Unlock()

	n.emitted = nil
	r := &Result{}

	m, is := msg.(map[string]interface{})
	if !is {
		return nil, fmt.Errorf("unintelligible message %s", JShort(msg))
	}

	if spec, have := m["timer"]; have {
		if err := n.timerOp(ctx, spec); err != nil {
			return nil, err
		}
		r.Emitted = n.emitted
		n.emitted = nil
		return r, nil
	}

	cmd, err := asCommand(m)
	if err != nil {
		return nil, err
	}

	switch cmd.Type {
	case meta.Connect, meta.Disconnect, meta.Send, meta.Broadcast:
		n.Router.Receive(*cmd)
	case meta.Subscribe, meta.Unsubscribe, meta.Publish:
		n.PubSub.Receive(*cmd)
	default:
		return nil, fmt.Errorf("unknown command type '%s'", cmd.Type)
	}

	r.Emitted = n.emitted
	n.emitted = nil

	return r, nil
}

// asCommand interprets a raw map as a meta.Command.
//
// {"to":...,"data":...} without a "type" is shorthand for a send
// from "input".
func asCommand(m map[string]interface{}) (*meta.Command, error) {
	if _, have := m["type"]; !have {
		if _, have := m["to"]; have {
			m = copyWith(m, "type", string(meta.Send))
		}
	}
	js, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	var cmd meta.Command
	if err = json.Unmarshal(js, &cmd); err != nil {
		return nil, err
	}
	if cmd.Type == meta.Send && cmd.From == "" {
		cmd.From = "input"
	}
	return &cmd, nil
}

func copyWith(m map[string]interface{}, k string, v interface{}) map[string]interface{} {
	acc := make(map[string]interface{}, len(m)+1)
	for k, v := range m {
		acc[k] = v
	}
	acc[k] = v
	return acc
}

// timerOp interprets {"timer":{"id":...,"in":"5s","msg":...}},
// {"timer":{"id":...,"cron":"* * * * *","msg":...}}, and
// {"timer":{"id":...,"cancel":true}}.
func (n *Network) timerOp(ctx context.Context, spec interface{}) error {
	js, err := json.Marshal(spec)
	if err != nil {
		return err
	}
	var op struct {
		Id     string      `json:"id"`
		In     string      `json:"in,omitempty"`
		Cron   string      `json:"cron,omitempty"`
		Msg    interface{} `json:"msg,omitempty"`
		Cancel bool        `json:"cancel,omitempty"`
	}
	if err = json.Unmarshal(js, &op); err != nil {
		return err
	}

	switch {
	case op.Cancel:
		return n.timers.Cancel(ctx, op.Id)
	case op.Cron != "":
		return n.timers.AddCron(ctx, op.Id, op.Msg, op.Cron)
	case op.In != "":
		d, err := time.ParseDuration(op.In)
		if err != nil {
			return err
		}
		return n.timers.Add(ctx, op.Id, op.Msg, d)
	}

	return fmt.Errorf("timer op needs 'in', 'cron', or 'cancel'")
}

// Errorf writes an error Result and logs.
func (n *Network) Errorf(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	n.Log.Error().Str("network", n.Name).Msg(msg)
	if n.out != nil {
		n.out <- &Result{Error: msg}
	}
}

// Loop starts the input processing loop in the current goroutine.
//
// This loop calls ProcessMsg on each message that arrives via the
// input coupling, and the loop halts when ctx.Done().
func (n *Network) Loop(ctx context.Context) error {
	if n.in == nil {
		return fmt.Errorf("network has no couplings")
	}
	n.Log.Debug().Str("network", n.Name).Msg("Network.Loop starting")
LOOP:
	for {
		select {
		case <-n.done:
			if n.HaltOnInputEOF {
				n.Log.Debug().Msg("Network.Loop shutting down (done)")
				break LOOP
			}
		case <-ctx.Done():
			n.Log.Debug().Msg("Network.Loop shutting down (ctx.Done)")
			break LOOP
		case msg := <-n.in:
			if msg == nil {
				break LOOP
			}
			r, err := n.ProcessMsg(ctx, msg)
			if err != nil {
				n.Errorf("Network.Loop ProcessMsg %s", err)
				continue
			}
			select {
			case <-ctx.Done():
			case n.out <- r:
			}
		}
	}

	n.Log.Debug().Str("network", n.Name).Msg("Network.Loop done")
	return nil
}

// Coercions for loose delivery to typed cells.  Deliveries that
// don't coerce are dropped; a router's Sent count still includes
// them.

func toNumber(x interface{}) (float64, bool) {
	switch vv := x.(type) {
	case float64:
		return vv, true
	case int:
		return float64(vv), true
	case int64:
		return float64(vv), true
	case json.Number:
		f, err := vv.Float64()
		return f, err == nil
	}
	return 0, false
}

func toStringSet(x interface{}) (lattice.Set[string], bool) {
	switch vv := x.(type) {
	case nil:
		return nil, false
	case string:
		return lattice.NewSet(vv), true
	case []string:
		return lattice.NewSet(vv...), true
	case []interface{}:
		s := lattice.NewSet[string]()
		for _, e := range vv {
			str, is := e.(string)
			if !is {
				str = fmt.Sprintf("%v", e)
			}
			s.Add(str)
		}
		return s, true
	case lattice.Set[string]:
		return vv, true
	}
	return nil, false
}

func toAnyMap(x interface{}) (cells.Map, bool) {
	switch vv := x.(type) {
	case map[string]interface{}:
		return vv, true
	case map[interface{}]interface{}:
		m, _ := Canonical(vv).(map[string]interface{})
		return m, m != nil
	}
	return nil, false
}

func toVersioned(x interface{}) (cells.Versioned[interface{}], bool) {
	var v cells.Versioned[interface{}]
	if x == nil {
		return v, false
	}
	js, err := json.Marshal(x)
	if err != nil {
		return v, false
	}
	if err = json.Unmarshal(js, &v); err != nil {
		// Also accept {"version":...,"value":...}.
		var alt struct {
			Version int64       `json:"version"`
			Value   interface{} `json:"value"`
		}
		if err = json.Unmarshal(js, &alt); err != nil {
			return v, false
		}
		v.Version, v.Value = alt.Version, alt.Value
	}
	return v, true
}

func toStamped(x interface{}) (lattice.Stamped[interface{}], bool) {
	switch vv := x.(type) {
	case nil:
		return lattice.Stamped[interface{}]{}, false
	case map[string]interface{}:
		if _, have := vv["timestamp"]; have {
			ts, _ := toNumber(vv["timestamp"])
			return lattice.Stamped[interface{}]{
				Value:     vv["value"],
				Timestamp: int64(ts),
			}, true
		}
	}
	return lattice.Stamp[interface{}](x), true
}
