package acp

import "sync"

// PromptTracker matches agent responses back to the session/prompt
// requests that produced them. The proxy observes every client->agent
// request; when the agent later answers with the same id, the response is
// known to terminate that session's in-flight prompt.
type PromptTracker struct {
	mu      sync.Mutex
	pending map[string]SessionID
}

// NewPromptTracker creates an empty tracker
func NewPromptTracker() *PromptTracker {
	return &PromptTracker{
		pending: make(map[string]SessionID),
	}
}

// Observe records a client->agent message. Only session/prompt requests
// are tracked; everything else is ignored.
func (t *PromptTracker) Observe(m *Message) {
	sessionID, ok := PromptSession(m)
	if !ok {
		return
	}

	t.mu.Lock()
	t.pending[idKey(m.ID)] = sessionID
	t.mu.Unlock()
}

// Match checks an agent->client message against the tracked prompts.
// If it is the response to a tracked prompt, the entry is consumed and
// the prompt's session is returned.
func (t *PromptTracker) Match(m *Message) (SessionID, bool) {
	if !m.IsResponse() {
		return "", false
	}

	key := idKey(m.ID)

	t.mu.Lock()
	defer t.mu.Unlock()

	sessionID, ok := t.pending[key]
	if !ok {
		return "", false
	}
	delete(t.pending, key)
	return sessionID, true
}

// Pending returns the number of prompts awaiting a response
func (t *PromptTracker) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.pending)
}
