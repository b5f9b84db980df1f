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

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"
)

// BackgroundJob is the first-class handle spec.md §9 asks for in place
// of implicit deferred scheduling: run()'s caller decides whether to
// Wait on it (tests, graceful shutdown) or let it run unobserved.
// Nothing inside it ever surfaces an error to the foreground response;
// every task already wraps its own failures in logs and bus events.
type BackgroundJob struct {
	g *errgroup.Group
}

// newBackgroundJob starts an empty job bound to ctx. Use Go to enqueue
// tasks and Wait to block until all of them finish.
func newBackgroundJob(ctx context.Context) (*BackgroundJob, context.Context) {
	g, gctx := errgroup.WithContext(ctx)
	return &BackgroundJob{g: g}, gctx
}

// Go enqueues one task. An error the task returns is logged and
// swallowed, and a panic inside the task is recovered and logged; in
// neither case does anything reach the foreground caller or cancel the
// job's context for sibling tasks.
func (b *BackgroundJob) Go(task func() error) {
	b.g.Go(func() error {
		defer func() {
			if r := recover(); r != nil {
				slog.Error("session: background task panicked", "panic", r)
			}
		}()
		if err := task(); err != nil {
			slog.Warn("session: background task failed", "error", err)
		}
		return nil
	})
}

// Wait blocks until every enqueued task has finished. Fire-and-forget
// callers may ignore the returned job entirely; this is here for
// callers (tests, graceful shutdown) that need to await it explicitly.
func (b *BackgroundJob) Wait() {
	_ = b.g.Wait()
}
