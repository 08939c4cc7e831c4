// Copyright 2025 The AgentLens Authors
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

package bridge

import (
	"log/slog"
	"sync"

	"github.com/agentlens/agentlens/pkg/rpcclient"
)

// Session binds one UI connection to a remote agent: the client handle it
// exclusively owns and the agent card resolved during initialization.
type Session struct {
	ConnectionID string
	Client       AgentClient
	Card         *rpcclient.Card
}

// Store maps connection ids to sessions. Operations on distinct ids are
// independent; operations on the same id are expected to arrive already
// serialized by the connection's event loop, the store only guards its
// own map.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewStore returns an empty session store.
func NewStore() *Store {
	return &Store{sessions: make(map[string]*Session)}
}

// Put stores a session under its connection id. An existing session for
// the same id has its client closed before it is replaced, so a rapid
// re-initialize never leaks the prior agent connection.
func (s *Store) Put(sess *Session) {
	s.mu.Lock()
	prior := s.sessions[sess.ConnectionID]
	s.sessions[sess.ConnectionID] = sess
	s.mu.Unlock()

	if prior != nil {
		if err := prior.Client.Close(); err != nil {
			slog.Warn("Failed to close replaced agent client", "connection", sess.ConnectionID, "error", err)
		}
	}
}

// Get returns the session for the connection id, if any.
func (s *Store) Get(connectionID string) (*Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[connectionID]
	return sess, ok
}

// Remove deletes and returns the session for the connection id. The
// caller owns releasing the returned session's client.
func (s *Store) Remove(connectionID string) (*Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[connectionID]
	if ok {
		delete(s.sessions, connectionID)
	}
	return sess, ok
}

// Len returns the number of live sessions.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
