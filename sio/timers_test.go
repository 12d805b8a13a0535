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
	"testing"
	"time"
)

func TestTimersAdd(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fired := make(chan interface{}, 1)
	ts := NewTimers(func(ctx context.Context, te *TimerEntry) {
		fired <- te.Msg
	})

	if err := ts.Add(ctx, "t1", "hello", 10*time.Millisecond); err != nil {
		t.Fatal(err)
	}

	select {
	case msg := <-fired:
		if msg != "hello" {
			t.Fatal(msg)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timer never fired")
	}

	// The entry cleans itself up.
	deadline := time.Now().Add(time.Second)
	for {
		ts.Lock()
		n := len(ts.Map)
		ts.Unlock()
		if n == 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("entry not removed")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestTimersCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fired := make(chan interface{}, 1)
	ts := NewTimers(func(ctx context.Context, te *TimerEntry) {
		fired <- te.Msg
	})

	if err := ts.Add(ctx, "t1", "hello", 200*time.Millisecond); err != nil {
		t.Fatal(err)
	}
	if err := ts.Cancel(ctx, "t1"); err != nil {
		t.Fatal(err)
	}

	select {
	case msg := <-fired:
		t.Fatal(msg)
	case <-time.After(400 * time.Millisecond):
	}

	if err := ts.Cancel(ctx, "t1"); err == nil {
		t.Fatal("expected an error")
	}
}

func TestTimersReplace(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fired := make(chan interface{}, 2)
	ts := NewTimers(func(ctx context.Context, te *TimerEntry) {
		fired <- te.Msg
	})

	if err := ts.Add(ctx, "t1", "first", 200*time.Millisecond); err != nil {
		t.Fatal(err)
	}
	if err := ts.Add(ctx, "t1", "second", 10*time.Millisecond); err != nil {
		t.Fatal(err)
	}

	select {
	case msg := <-fired:
		if msg != "second" {
			t.Fatal(msg)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timer never fired")
	}
}

func TestTimersAddCron(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ts := NewTimers(func(ctx context.Context, te *TimerEntry) {})

	if err := ts.AddCron(ctx, "c1", nil, "not a cron expression"); err == nil {
		t.Fatal("expected an error")
	}

	if err := ts.AddCron(ctx, "c1", "tick", "* * * * *"); err != nil {
		t.Fatal(err)
	}

	ts.Lock()
	e, have := ts.Map["c1"]
	ts.Unlock()
	if !have {
		t.Fatal("no entry")
	}
	if e.At.Before(time.Now().Add(-time.Second)) {
		t.Fatal(e.At)
	}
	if e.Cron == "" {
		t.Fatal("not recurring")
	}

	if err := ts.Cancel(ctx, "c1"); err != nil {
		t.Fatal(err)
	}
}

func TestNextCron(t *testing.T) {
	then := time.Date(2024, 5, 1, 12, 30, 30, 0, time.UTC)
	next := nextCron("0 13 * * *", then)
	if next.Hour() != 13 || next.Minute() != 0 {
		t.Fatal(next)
	}
	if !nextCron("nope", then).IsZero() {
		t.Fatal("expected the zero time")
	}
}
