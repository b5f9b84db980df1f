// Copyright 2025 Renegade Studio
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package session

import "sync"

// lazyGuard is a once-like guard whose "done" latch is only set on
// success (spec.md §9's re-architecture note: "initialization errors
// must not latch the guard in done"). sync.Once can't express that, so
// this holds the mutex across the whole init call: concurrent first
// callers serialize instead of racing, and a failed attempt leaves the
// guard open for the next caller to retry.
type lazyGuard struct {
	mu   sync.Mutex
	done bool
}

// once runs fn if the guard hasn't succeeded yet. Concurrent callers
// block on the mutex rather than both attempting fn.
func (g *lazyGuard) once(fn func() error) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.done {
		return nil
	}
	if err := fn(); err != nil {
		return err
	}
	g.done = true
	return nil
}

func (g *lazyGuard) isDone() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.done
}
