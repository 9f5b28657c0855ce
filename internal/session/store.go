// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Voicebridge Contributors

package session

import (
	"context"
	"sync"
	"time"

	vberr "github.com/voicebridge-dev/voicebridge/pkg/errors"
)

// Store manages per-session turn history. Entries are created lazily on
// first reference and live for the lifetime of the store.
//
// Acquire serializes turn processing per session: at most one in-flight
// turn mutates a given session's history at a time. Callers must hold the
// session for the duration of a turn (history read through final append)
// and call the returned release function exactly once.
type Store interface {
	Acquire(ctx context.Context, sessionID string) (release func(), err error)
	History(ctx context.Context, sessionID string) ([]Turn, error)
	Append(ctx context.Context, sessionID string, turns ...Turn) error
}

// MemoryStore is the in-process Store backend. It is unbounded by default;
// EvictIdle offers an optional bound on idle sessions.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]*memSession
}

type memSession struct {
	// sem admits one in-flight turn. Buffered so release never blocks.
	sem        chan struct{}
	turns      []Turn
	lastActive time.Time
	// evicted marks an entry removed from the map so a waiter that was
	// already queued on it retries against the live entry.
	evicted bool
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]*memSession)}
}

func (s *MemoryStore) session(id string) *memSession {
	s.mu.Lock()
	defer s.mu.Unlock()

	ms, ok := s.sessions[id]
	if !ok {
		ms = &memSession{
			sem:        make(chan struct{}, 1),
			lastActive: time.Now(),
		}
		s.sessions[id] = ms
	}
	return ms
}

// Acquire blocks until the session admits a new turn or ctx is done.
func (s *MemoryStore) Acquire(ctx context.Context, sessionID string) (func(), error) {
	if sessionID == "" {
		return nil, vberr.New(vberr.CodeSessionAppendInvalid, "session id must not be empty")
	}

	for {
		release, ok, err := s.acquireEntry(ctx, s.session(sessionID))
		if err != nil {
			return nil, vberr.Wrap(err, vberr.CodeSessionAcquireTimeout,
				"acquiring session", vberr.FieldSessionID(sessionID))
		}
		if ok {
			return release, nil
		}
		// The entry was evicted while we waited; retry on the live one.
	}
}

func (s *MemoryStore) acquireEntry(ctx context.Context, ms *memSession) (func(), bool, error) {
	select {
	case ms.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, false, ctx.Err()
	}

	s.mu.Lock()
	evicted := ms.evicted
	s.mu.Unlock()

	if evicted {
		<-ms.sem
		return nil, false, nil
	}

	var once sync.Once
	release := func() {
		once.Do(func() { <-ms.sem })
	}
	return release, true, nil
}

// History returns a snapshot copy of the session's turns in chronological
// order, creating the session if it has not been seen before.
func (s *MemoryStore) History(_ context.Context, sessionID string) ([]Turn, error) {
	if sessionID == "" {
		return nil, vberr.New(vberr.CodeSessionAppendInvalid, "session id must not be empty")
	}

	ms := s.session(sessionID)

	s.mu.Lock()
	defer s.mu.Unlock()
	ms.lastActive = time.Now()

	out := make([]Turn, len(ms.turns))
	copy(out, ms.turns)
	return out, nil
}

// Append atomically appends turns to the session's history.
func (s *MemoryStore) Append(_ context.Context, sessionID string, turns ...Turn) error {
	if sessionID == "" {
		return vberr.New(vberr.CodeSessionAppendInvalid, "session id must not be empty")
	}
	for _, t := range turns {
		if t.Role != RoleUser && t.Role != RoleAssistant {
			return vberr.Errorf(vberr.CodeSessionAppendInvalid, "unsupported turn role %q", t.Role)
		}
	}

	ms := s.session(sessionID)

	s.mu.Lock()
	defer s.mu.Unlock()
	ms.turns = append(ms.turns, turns...)
	ms.lastActive = time.Now()
	return nil
}

// Len returns the number of tracked sessions.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// EvictIdle removes sessions that have been inactive for longer than
// maxIdle and have no in-flight turn. It returns the number of sessions
// evicted. With maxIdle <= 0 it is a no-op, preserving the unbounded
// process-lifetime behavior.
func (s *MemoryStore) EvictIdle(maxIdle time.Duration) int {
	if maxIdle <= 0 {
		return 0
	}

	cutoff := time.Now().Add(-maxIdle)

	s.mu.Lock()
	defer s.mu.Unlock()

	evicted := 0
	for id, ms := range s.sessions {
		if !ms.lastActive.Before(cutoff) {
			continue
		}
		select {
		case ms.sem <- struct{}{}:
			// No turn in flight; safe to drop. Mark and drain so any
			// waiter already queued on this entry is admitted, sees the
			// mark, and retries against a fresh entry.
			ms.evicted = true
			delete(s.sessions, id)
			<-ms.sem
			evicted++
		default:
			// A turn holds the session; skip this sweep.
		}
	}
	return evicted
}
