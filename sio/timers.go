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

// ToDo: Timers.Suspend, Timers.Resume

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gorhill/cronexpr"
	"github.com/rs/zerolog"
)

// TimerEntry represents a pending timer.
type TimerEntry struct {
	Id  string      `json:"id"`
	Msg interface{} `json:"msg"`
	At  time.Time   `json:"at"`

	// Cron, when not empty, makes the timer recurring: after each
	// firing the next At is computed from this cron expression.
	Cron string `json:"cron,omitempty"`

	Ctl chan bool `json:"-"`

	timers *Timers
}

// Timers represents pending timers.
type Timers struct {
	Map     map[string]*TimerEntry
	Emitter func(context.Context, *TimerEntry) `json:"-"`

	log *zerolog.Logger

	sync.Mutex
}

// NewTimers creates a Timers with the given function that the
// TimerEntries will use to emit their messages.
func NewTimers(emitter func(context.Context, *TimerEntry)) *Timers {
	return &Timers{
		Map:     make(map[string]*TimerEntry, 8),
		Emitter: emitter,
	}
}

func (ts *Timers) logf(format string, args ...interface{}) {
	if ts.log == nil {
		return
	}
	ts.log.Debug().Msgf(format, args...)
}

// add installs the entry, replacing any existing timer with the same
// id.
func (ts *Timers) add(ctx context.Context, e *TimerEntry) {
	if old, have := ts.Map[e.Id]; have {
		close(old.Ctl)
	}

	ts.Map[e.Id] = e
	e.timers = ts

	go e.run(ctx)
}

// Add creates a new Timer that will emit the given message later (if
// the timer isn't cancelled first).
func (ts *Timers) Add(ctx context.Context, id string, msg interface{}, d time.Duration) error {
	ts.logf("Timers.Add %s", id)

	ts.Lock()

	e := &TimerEntry{
		Id:  id,
		At:  time.Now().UTC().Add(d),
		Msg: msg,
		Ctl: make(chan bool),
	}

	ts.add(ctx, e)

	ts.Unlock()

	return nil
}

// AddCron creates a recurring Timer driven by a cron expression.
//
// The timer re-arms itself after each firing until cancelled.
func (ts *Timers) AddCron(ctx context.Context, id string, msg interface{}, expr string) error {
	ts.logf("Timers.AddCron %s '%s'", id, expr)

	parsed, err := cronexpr.Parse(expr)
	if err != nil {
		return fmt.Errorf("bad cron expression '%s': %v", expr, err)
	}
	at := parsed.Next(time.Now())
	if at.IsZero() {
		return fmt.Errorf("cron expression '%s' never fires", expr)
	}

	ts.Lock()

	e := &TimerEntry{
		Id:   id,
		At:   at,
		Msg:  msg,
		Cron: expr,
		Ctl:  make(chan bool),
	}

	ts.add(ctx, e)

	ts.Unlock()

	return nil
}

// run starts a timer that will execute the TimerEntry at the
// appointed time if the TimerEntry isn't cancelled first.  A cron
// entry re-arms itself.
func (te *TimerEntry) run(ctx context.Context) {
	te.timers.logf("TimerEntry %s run", te.Id)

	for {
		t := time.NewTimer(time.Until(te.At))
		select {
		case <-t.C:
			te.timers.logf("firing timer '%s'", te.Id)
			te.timers.Emitter(ctx, te)
			if te.Cron != "" {
				if next := nextCron(te.Cron, time.Now()); !next.IsZero() {
					te.timers.Lock()
					te.At = next
					te.timers.Unlock()
					continue
				}
			}
			te.timers.Lock()
			delete(te.timers.Map, te.Id)
			te.timers.Unlock()
		case <-te.Ctl:
			te.timers.logf("canceling timer '%s'", te.Id)
			t.Stop()
		case <-ctx.Done():
			t.Stop()
		}
		return
	}
}

// nextCron returns the next firing time, or the zero time if the
// expression doesn't parse or never fires again.
func nextCron(expr string, after time.Time) time.Time {
	parsed, err := cronexpr.Parse(expr)
	if err != nil {
		return time.Time{}
	}
	return parsed.Next(after)
}

func (ts *Timers) cancel(ctx context.Context, id string) error {
	ts.logf("Timers.cancel %s", id)

	t, have := ts.Map[id]
	if !have {
		return fmt.Errorf("timer '%s' doesn't exist", id)
	}
	delete(ts.Map, id)

	close(t.Ctl)

	return nil
}

// Cancel attempts to cancel the timer with the given id.
func (ts *Timers) Cancel(ctx context.Context, id string) error {
	ts.Lock()
	err := ts.cancel(ctx, id)
	ts.Unlock()
	return err
}
