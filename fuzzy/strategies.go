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
	"time"
)

// Structural compaction strategies.  Each is a Compactor over the
// accumulated history; the delta is available to custom strategies
// but these don't need it, since every delta entry is already in
// the history.

// DedupeByKey keeps the first occurrence per derived key.
func DedupeByKey[V any, K comparable](keyOf func(V) K) Compactor[V] {
	return func(ctx context.Context, accumulated, delta []V) ([]V, error) {
		seen := make(map[K]struct{}, len(accumulated))
		acc := make([]V, 0, len(accumulated))
		for _, v := range accumulated {
			k := keyOf(v)
			if _, have := seen[k]; have {
				continue
			}
			seen[k] = struct{}{}
			acc = append(acc, v)
		}
		return acc, nil
	}
}

// SlidingWindow keeps only the last n entries.
func SlidingWindow[V any](n int) Compactor[V] {
	return func(ctx context.Context, accumulated, delta []V) ([]V, error) {
		if len(accumulated) <= n {
			return accumulated, nil
		}
		return append([]V(nil), accumulated[len(accumulated)-n:]...), nil
	}
}

// TimeWindow drops map-shaped entries older than maxAge.
//
// Each entry is scanned for the candidate timestamp field names in
// order; the first present field decides the entry's age.  An entry
// with none of the fields is always kept: no timestamp is not a
// reason to lose data.
func TimeWindow(maxAge time.Duration, now func() time.Time, fields ...string) Compactor[map[string]any] {
	if now == nil {
		now = time.Now
	}
	if len(fields) == 0 {
		fields = []string{"timestamp", "time", "at"}
	}
	return func(ctx context.Context, accumulated, delta []map[string]any) ([]map[string]any, error) {
		cutoff := now().Add(-maxAge)
		acc := make([]map[string]any, 0, len(accumulated))
		for _, entry := range accumulated {
			ts, have := entryTime(entry, fields)
			if have && ts.Before(cutoff) {
				continue
			}
			acc = append(acc, entry)
		}
		return acc, nil
	}
}

// entryTime finds an entry's timestamp, trying each candidate field.
// Accepts time.Time, Unix seconds (or float), Unix milliseconds, and
// RFC3339 strings.
func entryTime(entry map[string]any, fields []string) (time.Time, bool) {
	for _, field := range fields {
		x, have := entry[field]
		if !have {
			continue
		}
		switch v := x.(type) {
		case time.Time:
			return v, true
		case int64:
			return unixish(v), true
		case int:
			return unixish(int64(v)), true
		case float64:
			return unixish(int64(v)), true
		case string:
			if ts, err := time.Parse(time.RFC3339, v); err == nil {
				return ts, true
			}
		}
	}
	return time.Time{}, false
}

// unixish guesses seconds vs. milliseconds.  Anything past the year
// 33658 in seconds is surely milliseconds.
func unixish(n int64) time.Time {
	const msThreshold = int64(1) << 40
	if msThreshold <= n {
		return time.UnixMilli(n)
	}
	return time.Unix(n, 0)
}

// Compose threads the history through the given strategies in
// order.  Any error aborts the whole composition (and therefore the
// compaction commits nothing).
func Compose[V any](strategies ...Compactor[V]) Compactor[V] {
	return func(ctx context.Context, accumulated, delta []V) ([]V, error) {
		acc := accumulated
		for _, strategy := range strategies {
			var err error
			if acc, err = strategy(ctx, acc, delta); err != nil {
				return nil, err
			}
		}
		return acc, nil
	}
}
