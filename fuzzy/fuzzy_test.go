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

package fuzzy

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"
)

func TestCompactEmptyDelta(t *testing.T) {
	ctx := context.Background()
	c := NewCell(Config[int]{
		Compactor: SlidingWindow[int](1),
	})

	r := c.Compact(ctx)
	if r.Compacted || r.Reason != ReasonNoDelta {
		t.Fatalf("result == %+v", r)
	}
	if got := c.Accumulated(); len(got) != 0 {
		t.Fatalf("accumulated == %v", got)
	}

	// Still a no-op after a compaction emptied the delta.
	c.Write(ctx, 1)
	if r = c.Compact(ctx); !r.Compacted {
		t.Fatalf("result == %+v", r)
	}
	if r = c.Compact(ctx); r.Compacted || r.Reason != ReasonNoDelta {
		t.Fatalf("result == %+v", r)
	}
}

func TestCompactWithoutCompactor(t *testing.T) {
	ctx := context.Background()
	c := NewCell(Config[int]{})

	c.Write(ctx, 1)
	c.Write(ctx, 2)

	r := c.Compact(ctx)
	if r.Compacted || r.Reason != ReasonNoCompactor {
		t.Fatalf("result == %+v", r)
	}
	if got := c.Accumulated(); !reflect.DeepEqual(got, []int{1, 2}) {
		t.Fatalf("accumulated == %v", got)
	}
	if got := c.PendingDelta(); len(got) != 0 {
		t.Fatalf("pending == %v", got)
	}
}

func TestDedupeCompaction(t *testing.T) {
	ctx := context.Background()
	c := NewCell(Config[string]{
		Compactor: DedupeByKey(func(s string) string { return s }),
	})

	for _, s := range []string{"a", "b", "a", "c", "b"} {
		c.Write(ctx, s)
	}

	r := c.Compact(ctx)
	if !r.Compacted {
		t.Fatalf("result == %+v", r)
	}
	if got := c.Accumulated(); !reflect.DeepEqual(got, []string{"a", "b", "c"}) {
		t.Fatalf("accumulated == %v", got)
	}
	if got := c.Stats(); got.Writes != 5 || got.Compactions != 1 {
		t.Fatalf("stats == %+v", got)
	}

	// A second compact is a no-op and changes nothing.
	if r = c.Compact(ctx); r.Compacted {
		t.Fatalf("result == %+v", r)
	}
	if got := c.Accumulated(); !reflect.DeepEqual(got, []string{"a", "b", "c"}) {
		t.Fatalf("accumulated == %v", got)
	}
}

func TestFailedCompactionMutatesNothing(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("boom")
	c := NewCell(Config[int]{
		Compactor: func(ctx context.Context, accumulated, delta []int) ([]int, error) {
			return nil, boom
		},
	})

	c.Write(ctx, 1)
	c.Write(ctx, 2)

	r := c.Compact(ctx)
	if r.Compacted || r.Reason != ReasonError || !errors.Is(r.Err, boom) {
		t.Fatalf("result == %+v", r)
	}
	if got := c.Accumulated(); !reflect.DeepEqual(got, []int{1, 2}) {
		t.Fatalf("accumulated == %v", got)
	}
	if got := c.PendingDelta(); !reflect.DeepEqual(got, []int{1, 2}) {
		t.Fatalf("pending == %v", got)
	}
	if got := c.Stats(); got.Compactions != 0 {
		t.Fatalf("stats == %+v", got)
	}
}

// TestWritesDuringCompactionSurvive blocks a compactor mid-flight,
// writes underneath it, and checks that the racing writes end up in
// the committed history.
func TestWritesDuringCompactionSurvive(t *testing.T) {
	ctx := context.Background()

	started := make(chan struct{})
	release := make(chan struct{})
	c := NewCell(Config[int]{
		Compactor: func(ctx context.Context, accumulated, delta []int) ([]int, error) {
			close(started)
			<-release
			return []int{-1}, nil // collapse the snapshot to a marker
		},
	})

	c.Write(ctx, 1)
	c.Write(ctx, 2)

	var (
		wg sync.WaitGroup
		r  Result
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		r = c.Compact(ctx)
	}()

	<-started
	c.Write(ctx, 3) // races with the in-flight compaction
	close(release)
	wg.Wait()

	if !r.Compacted {
		t.Fatalf("result == %+v", r)
	}
	if got := c.Accumulated(); !reflect.DeepEqual(got, []int{-1, 3}) {
		t.Fatalf("accumulated == %v", got)
	}
	if got := c.PendingDelta(); !reflect.DeepEqual(got, []int{3}) {
		t.Fatalf("pending == %v", got)
	}
}

// TestStaleCompactionDiscarded overlaps two compactions and checks
// that the loser's result is thrown away instead of clobbering the
// winner's.
func TestStaleCompactionDiscarded(t *testing.T) {
	ctx := context.Background()

	slowStarted := make(chan struct{})
	release := make(chan struct{})
	calls := 0
	c := NewCell(Config[int]{
		Compactor: func(ctx context.Context, accumulated, delta []int) ([]int, error) {
			calls++
			if calls == 1 {
				close(slowStarted)
				<-release
				return []int{-100}, nil // stale: must be discarded
			}
			return []int{-200}, nil
		},
	})

	c.Write(ctx, 1)

	var (
		wg   sync.WaitGroup
		slow Result
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		slow = c.Compact(ctx)
	}()
	<-slowStarted

	c.Write(ctx, 2)
	if fast := c.Compact(ctx); !fast.Compacted {
		t.Fatalf("fast result == %+v", fast)
	}

	close(release)
	wg.Wait()

	if slow.Compacted || slow.Reason != ReasonStale {
		t.Fatalf("slow result == %+v", slow)
	}
	if got := c.Accumulated(); !reflect.DeepEqual(got, []int{-200}) {
		t.Fatalf("accumulated == %v", got)
	}
	if got := c.Stats(); got.Stale != 1 || got.Compactions != 1 {
		t.Fatalf("stats == %+v", got)
	}
}

func TestAutoCompactionThrottle(t *testing.T) {
	ctx := context.Background()

	clock := time.Unix(1000, 0)
	draws := 0
	c := NewCell(Config[int]{
		CompactThreshold: 3,
		// The draw (0.5) never beats this, so the throttle's
		// decisions are observable without racing an
		// asynchronous compaction.
		CompactProbability: 0.4,
		MinCompactInterval: time.Minute,
		Compactor:          SlidingWindow[int](2),
		Now:                func() time.Time { return clock },
		Rand: func() float64 {
			draws++
			return 0.5
		},
	})

	// Below the threshold: the throttle never even draws.
	c.Write(ctx, 1)
	c.Write(ctx, 2)
	if draws != 0 {
		t.Fatalf("draws == %d", draws)
	}

	// At the threshold, and the interval since the zero time is
	// huge, so this write reaches the draw.
	c.Write(ctx, 3)
	if draws != 1 {
		t.Fatalf("draws == %d", draws)
	}

	// Compact explicitly to stamp lastCompactedAt.
	if r := c.Compact(ctx); !r.Compacted {
		t.Fatalf("result == %+v", r)
	}

	// Immediately after a compaction the interval gate is closed.
	c.Write(ctx, 4)
	c.Write(ctx, 5)
	c.Write(ctx, 6)
	before := draws

	clock = clock.Add(2 * time.Minute)
	c.Write(ctx, 7)
	if draws != before+1 {
		t.Fatalf("draws == %d (interval gate should have reopened)", draws)
	}
}

func TestTimeWindowStrategy(t *testing.T) {
	now := time.Unix(10_000, 0)
	compact := TimeWindow(time.Hour, func() time.Time { return now }, "at", "t")

	old := map[string]any{"at": now.Add(-2 * time.Hour).Unix(), "v": 1}
	fresh := map[string]any{"t": now.Format(time.RFC3339), "v": 2}
	unstamped := map[string]any{"v": 3}

	got, err := compact(context.Background(), []map[string]any{old, fresh, unstamped}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(got, []map[string]any{fresh, unstamped}) {
		t.Fatalf("got %v", got)
	}
}

func TestComposeStrategies(t *testing.T) {
	compact := Compose(
		DedupeByKey(func(n int) int { return n }),
		SlidingWindow[int](2),
	)

	got, err := compact(context.Background(), []int{1, 2, 1, 3, 2}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(got, []int{2, 3}) {
		t.Fatalf("got %v", got)
	}
}
