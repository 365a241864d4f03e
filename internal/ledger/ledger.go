/*
SPDX-License-Identifier: Apache-2.0

Copyright 2025 ConfigButler

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package ledger remembers the last generation the Mounter (or the
// surrounding reconcile loop) wrote to the parent and to each mounted
// child, so the echo that write produces can be recognized and dropped.
package ledger

import (
	"sync"

	"github.com/digi-dev/mounter/internal/modelref"
)

// Ledger is safe for concurrent use. The Mounter's own actor goroutine is
// the sole writer of the child map; parent has two writers (the
// Mounter's child-sync success path and the ReconcileBridge), both
// funneled through the same lock.
type Ledger struct {
	mu     sync.Mutex
	parent int64
	child  map[modelref.ChildKey]int64
}

// New returns a Ledger with parent defaulted to -1, meaning no parent
// write has been recorded yet.
func New() *Ledger {
	return &Ledger{
		parent: -1,
		child:  make(map[modelref.ChildKey]int64),
	}
}

// Parent returns the last parent generation written by this runtime.
func (l *Ledger) Parent() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.parent
}

// SetParent records gen as the last parent generation written, but only
// advances monotonically: a stale write can never regress the ledger.
func (l *Ledger) SetParent(gen int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if gen > l.parent {
		l.parent = gen
	}
}

// Child returns the last generation written for a mounted child, and
// whether any write has been recorded yet.
func (l *Ledger) Child(key modelref.ChildKey) (int64, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	gen, ok := l.child[key]
	return gen, ok
}

// SetChild records gen as the last generation written for a mounted
// child, monotonically.
func (l *Ledger) SetChild(key modelref.ChildKey, gen int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if cur, ok := l.child[key]; !ok || gen > cur {
		l.child[key] = gen
	}
}

// ForgetChild drops a child's ledger entry once its mount is removed.
func (l *Ledger) ForgetChild(key modelref.ChildKey) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.child, key)
}

// IsParentEcho reports whether a generation observed on the parent is
// exactly one past the last generation this runtime wrote, i.e. the
// echo of its own immediately preceding write.
func (l *Ledger) IsParentEcho(gen int64) bool {
	return gen == l.Parent()+1
}

// IsChildEcho reports the same for a mounted child.
func (l *Ledger) IsChildEcho(key modelref.ChildKey, gen int64) bool {
	last, ok := l.Child(key)
	if !ok {
		return false
	}
	return gen == last+1
}
