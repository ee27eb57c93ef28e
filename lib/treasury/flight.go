// Copyright 2026 The Treasury Authors
// SPDX-License-Identifier: Apache-2.0

package treasury

import (
	"sync"

	"github.com/arcana-engine/treasury/lib/assetid"
	"github.com/arcana-engine/treasury/lib/assetindex"
)

// flight is one orchestration of a key. Every caller waiting on it,
// including a parent flight waiting on a dependency, holds a waiter
// reference.
type flight struct {
	key  assetindex.Key
	done chan struct{}

	// Set before done is closed.
	id  assetid.ID
	err error

	// Guarded by flightTable.mu.
	waiters   int
	waitingOn map[*flight]int
}

// flightTable coalesces concurrent stores of one key and tracks which
// flights wait on which, so a request that would close a wait cycle is
// rejected instead of deadlocking.
type flightTable struct {
	mu      sync.Mutex
	flights map[assetindex.Key]*flight
}

func newFlightTable() *flightTable {
	return &flightTable{flights: make(map[assetindex.Key]*flight)}
}

// join registers a waiter for key on behalf of parent (nil for an
// external caller). leader is true when the caller created the flight
// and must run it.
func (t *flightTable) join(key assetindex.Key, parent *flight) (f *flight, leader bool, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	f, ok := t.flights[key]
	if ok {
		if parent != nil && (f == parent || reaches(f, parent)) {
			return nil, false, ErrDependencyCycle
		}
	} else {
		f = &flight{key: key, done: make(chan struct{}), waitingOn: make(map[*flight]int)}
		t.flights[key] = f
		leader = true
	}

	f.waiters++
	if parent != nil {
		parent.waitingOn[f]++
	}
	return f, leader, nil
}

// leave drops a waiter reference taken by join.
func (t *flightTable) leave(f *flight, parent *flight) {
	t.mu.Lock()
	defer t.mu.Unlock()

	f.waiters--
	if parent != nil {
		parent.waitingOn[f]--
		if parent.waitingOn[f] <= 0 {
			delete(parent.waitingOn, f)
		}
	}
}

// claim is called before committing output. It returns false, and
// retires the flight so later callers start a new one, when no waiter
// remains.
func (t *flightTable) claim(f *flight) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if f.waiters > 0 {
		return true
	}
	if t.flights[f.key] == f {
		delete(t.flights, f.key)
	}
	return false
}

// finish publishes the outcome and removes the flight from the table.
func (t *flightTable) finish(f *flight, id assetid.ID, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.flights[f.key] == f {
		delete(t.flights, f.key)
	}
	f.id, f.err = id, err
	clear(f.waitingOn)
	close(f.done)
}

// reaches reports whether from transitively waits on to. Caller holds
// the table lock.
func reaches(from, to *flight) bool {
	seen := map[*flight]bool{from: true}
	stack := []*flight{from}
	for len(stack) > 0 {
		current := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for next := range current.waitingOn {
			if next == to {
				return true
			}
			if !seen[next] {
				seen[next] = true
				stack = append(stack, next)
			}
		}
	}
	return false
}
