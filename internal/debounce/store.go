// Package debounce coalesces agent_message_chunk notifications.
//
// Agents emit text word-by-word, flooding the client with tiny messages.
// The Store accumulates text per session, the Router decides when ordering
// forces a flush, and the Flusher releases whatever is pending on a fixed
// interval.
package debounce

import (
	"sort"
	"sync"

	"github.com/HyphaGroup/demitasse/internal/acp"
)

// buffer is the per-session accumulation state. template is the most
// recent chunk notification, kept so a flushed chunk preserves fields
// beyond the text itself.
type buffer struct {
	text     []byte
	template *acp.Message
}

// Drained is one session's coalesced text taken out of the store
type Drained struct {
	Session  acp.SessionID
	Text     string
	Template *acp.Message
}

// SessionStat is a read-only view of one session's pending state
type SessionStat struct {
	Session      acp.SessionID `json:"session_id"`
	PendingBytes int           `json:"pending_bytes"`
}

// Store maps session ids to accumulated text. A session with no entry and
// a session with an empty buffer are indistinguishable; entries are
// created lazily on the first chunk. All operations are short critical
// sections - the lock is never held across I/O.
type Store struct {
	mu       sync.Mutex
	sessions map[acp.SessionID]*buffer
}

// NewStore creates an empty store
func NewStore() *Store {
	return &Store{
		sessions: make(map[acp.SessionID]*buffer),
	}
}

// Append adds text to a session's buffer, creating it if absent. The
// template notification is replaced by the most recent one.
func (s *Store) Append(id acp.SessionID, text string, template *acp.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	buf, ok := s.sessions[id]
	if !ok {
		buf = &buffer{}
		s.sessions[id] = buf
	}
	buf.text = append(buf.text, text...)
	buf.template = template
}

// DrainOne atomically takes one session's accumulated text, leaving the
// buffer empty. Text is "" if the session had nothing pending.
func (s *Store) DrainOne(id acp.SessionID) Drained {
	s.mu.Lock()
	defer s.mu.Unlock()

	buf, ok := s.sessions[id]
	if !ok || len(buf.text) == 0 {
		return Drained{Session: id}
	}

	d := Drained{Session: id, Text: string(buf.text), Template: buf.template}
	buf.text = nil
	return d
}

// DrainAll atomically takes every session's non-empty accumulated text,
// leaving all buffers empty. Sessions with nothing pending are skipped.
// Cross-session order is unspecified.
func (s *Store) DrainAll() []Drained {
	s.mu.Lock()
	defer s.mu.Unlock()

	var drained []Drained
	for id, buf := range s.sessions {
		if len(buf.text) == 0 {
			continue
		}
		drained = append(drained, Drained{Session: id, Text: string(buf.text), Template: buf.template})
		buf.text = nil
	}
	return drained
}

// Len returns the number of sessions currently holding unflushed text
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, buf := range s.sessions {
		if len(buf.text) > 0 {
			n++
		}
	}
	return n
}

// PendingBytes returns the total unflushed text size across all sessions
func (s *Store) PendingBytes() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	total := 0
	for _, buf := range s.sessions {
		total += len(buf.text)
	}
	return total
}

// Snapshot returns per-session pending sizes, sorted by session id.
// Read-only; used by the inspection server.
func (s *Store) Snapshot() []SessionStat {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := make([]SessionStat, 0, len(s.sessions))
	for id, buf := range s.sessions {
		stats = append(stats, SessionStat{Session: id, PendingBytes: len(buf.text)})
	}
	sort.Slice(stats, func(i, j int) bool { return stats[i].Session < stats[j].Session })
	return stats
}

// Compact removes entries with empty buffers and returns how many were
// removed. Semantically a no-op (absence equals empty buffer); it only
// bounds memory held for sessions that went permanently idle.
func (s *Store) Compact() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, buf := range s.sessions {
		if len(buf.text) == 0 {
			delete(s.sessions, id)
			removed++
		}
	}
	return removed
}
