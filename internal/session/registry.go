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
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Registry tracks every live Session a process is holding, so a
// long-running server (as opposed to the one-shot CLI) can sweep idle
// sessions and disconnect their exclusively-owned history providers
// instead of leaking connections until process exit.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*registryEntry
	cron     *cron.Cron
}

type registryEntry struct {
	session  *Session
	lastUsed time.Time
}

// NewRegistry builds an empty registry. Call StartIdleSweep to enable
// the periodic disconnect sweep; a registry with no sweep started is
// just a lookup table.
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*registryEntry)}
}

// Track registers s (or refreshes its last-used timestamp if already
// tracked) under id.
func (r *Registry) Track(id string, s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[id] = &registryEntry{session: s, lastUsed: time.Now()}
}

// Touch updates the last-used timestamp for an already-tracked session,
// called after every successful Run so the idle sweep doesn't disconnect
// a session that's still active.
func (r *Registry) Touch(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.sessions[id]; ok {
		e.lastUsed = time.Now()
	}
}

// Get looks up a tracked session by id.
func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.sessions[id]
	if !ok {
		return nil, false
	}
	return e.session, true
}

// StartIdleSweep schedules a recurring cron job (e.g. "@every 5m")
// that disconnects exclusively-owned history providers for sessions
// unused for longer than maxIdle, then stops tracking them. Borrowed
// providers are untouched, matching Disconnect's own ownership check.
func (r *Registry) StartIdleSweep(spec string, maxIdle time.Duration) error {
	r.mu.Lock()
	if r.cron != nil {
		r.mu.Unlock()
		return nil
	}
	c := cron.New()
	r.cron = c
	r.mu.Unlock()

	if _, err := c.AddFunc(spec, func() { r.sweepIdle(maxIdle) }); err != nil {
		return err
	}
	c.Start()
	return nil
}

func (r *Registry) sweepIdle(maxIdle time.Duration) {
	r.mu.Lock()
	cutoff := time.Now().Add(-maxIdle)
	var idle []string
	for id, e := range r.sessions {
		if e.lastUsed.Before(cutoff) {
			idle = append(idle, id)
		}
	}
	r.mu.Unlock()

	for _, id := range idle {
		r.mu.Lock()
		e, ok := r.sessions[id]
		if ok {
			delete(r.sessions, id)
		}
		r.mu.Unlock()
		if !ok {
			continue
		}
		if err := e.session.Disconnect(); err != nil {
			slog.Warn("session registry: idle disconnect failed", "session", id, "error", err)
		}
	}
}

// StopIdleSweep stops the cron scheduler, if running. In-flight
// background jobs on any still-tracked session are left alone.
func (r *Registry) StopIdleSweep() {
	r.mu.Lock()
	c := r.cron
	r.mu.Unlock()
	if c != nil {
		c.Stop()
	}
}
