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

import "fmt"

// UserInputInvalid is returned synchronously from run() for empty
// input or malformed image data (spec.md §7).
type UserInputInvalid struct {
	Reason string
}

func (e *UserInputInvalid) Error() string { return fmt.Sprintf("session: invalid input: %s", e.Reason) }

// NotInitialized is returned synchronously when run() is called before
// init() has succeeded at least once.
type NotInitialized struct{}

func (e *NotInitialized) Error() string { return "session: not initialized; call init() first" }

// UnsupportedProvider is returned from init() when the provider family
// string doesn't match any known formatter group.
type UnsupportedProvider struct {
	Provider string
}

func (e *UnsupportedProvider) Error() string {
	return fmt.Sprintf("session: unsupported provider family %q", e.Provider)
}

// SessionPersistenceError wraps serialize/deserialize failures with
// the operation and session id, per spec.md §7.
type SessionPersistenceError struct {
	Operation string
	SessionID string
	Err       error
}

func (e *SessionPersistenceError) Error() string {
	return fmt.Sprintf("session: %s failed for session %s: %v", e.Operation, e.SessionID, e.Err)
}

func (e *SessionPersistenceError) Unwrap() error { return e.Err }
