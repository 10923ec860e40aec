// Copyright 2025 Hearth
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

// Package session provides multi-turn conversation state keyed by session
// id. Sessions expire after an idle window, are capped at a hard maximum
// age, and keep only the most recent turns.
package session

import (
	"context"
	"errors"
	"time"
)

const (
	// IdleTTL is the sliding expiry: a session untouched for this long
	// disappears.
	IdleTTL = 5 * time.Minute

	// MaxAge is the hard cap on session lifetime regardless of activity.
	MaxAge = 24 * time.Hour

	// MaxTurns bounds the retained conversation history per session.
	MaxTurns = 20
)

// ErrNotFound is returned when a session does not exist or has expired.
var ErrNotFound = errors.New("session not found")

// Turn is one user query and the answer it produced.
type Turn struct {
	Query     string    `json:"query"`
	Answer    string    `json:"answer"`
	Intents   []string  `json:"intents,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Session is the stored conversation state.
type Session struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Turns     []Turn    `json:"turns"`
}

// Expired reports whether the session has exceeded the hard maximum age.
func (s *Session) Expired(now time.Time) bool {
	return now.Sub(s.CreatedAt) > MaxAge
}

// Store is the session persistence contract.
type Store interface {
	// Get returns the session, or ErrNotFound if absent or past MaxAge.
	Get(ctx context.Context, id string) (*Session, error)

	// AppendTurn adds a turn to the session, creating it on first use,
	// trimming history to MaxTurns, and resetting the idle expiry.
	AppendTurn(ctx context.Context, id string, turn Turn) (*Session, error)

	// Touch resets the idle expiry without modifying the session.
	Touch(ctx context.Context, id string) error

	// Delete removes the session.
	Delete(ctx context.Context, id string) error
}
