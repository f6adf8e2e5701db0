// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package history

import (
	"context"
	"errors"
	"sync"
)

// Sink receives entries but cannot list them.
type Sink interface {
	Append(ctx context.Context, e Entry) error
}

type tee struct {
	primary Recorder
	sinks   []Sink
}

// Tee returns a Recorder that appends to primary and every sink. Recent
// reads from primary only. Sink errors are joined with the primary's.
func Tee(primary Recorder, sinks ...Sink) Recorder {
	if len(sinks) == 0 {
		return primary
	}
	return &tee{primary: primary, sinks: sinks}
}

func (t *tee) Append(ctx context.Context, e Entry) error {
	errs := []error{t.primary.Append(ctx, e)}
	for _, s := range t.sinks {
		errs = append(errs, s.Append(ctx, e))
	}
	return errors.Join(errs...)
}

func (t *tee) Recent(ctx context.Context, limit int) ([]Entry, error) {
	return t.primary.Recent(ctx, limit)
}

// Feed fans appended entries out to live subscribers.
//
// Subscribers that fall behind lose entries rather than block the
// navigator. Dropped reports how many.
//
// Thread Safety: Safe for concurrent use.
type Feed struct {
	mu      sync.Mutex
	subs    map[int]chan Entry
	next    int
	dropped int
}

// NewFeed returns an empty feed.
func NewFeed() *Feed {
	return &Feed{subs: make(map[int]chan Entry)}
}

// Append implements Sink. It never blocks and never fails.
func (f *Feed) Append(_ context.Context, e Entry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, ch := range f.subs {
		select {
		case ch <- e:
		default:
			f.dropped++
		}
	}
	return nil
}

// Subscribe registers a subscriber with the given buffer. The returned
// cancel func unregisters it and closes the channel.
func (f *Feed) Subscribe(buffer int) (<-chan Entry, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan Entry, buffer)
	f.mu.Lock()
	id := f.next
	f.next++
	f.subs[id] = ch
	f.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			f.mu.Lock()
			delete(f.subs, id)
			f.mu.Unlock()
			close(ch)
		})
	}
}

// Subscribers returns the number of live subscribers.
func (f *Feed) Subscribers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}

// Dropped returns how many deliveries were skipped for slow subscribers.
func (f *Feed) Dropped() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.dropped
}
