// Package acp provides the wire-level types demitasse needs to sit
// inside an Agent Client Protocol session.
//
// protocol.go - JSON-RPC 2.0 message envelope
//
// This file contains:
// - The Message envelope (request / response / notification)
// - Parsing that preserves the raw frame for unmodified passthrough
// - Builders for synthesized agent_message_chunk notifications
//
// ACP messages are newline-delimited JSON-RPC 2.0 over stdin/stdout.
// Demitasse only understands the handful of shapes it has to act on;
// everything else passes through byte-for-byte.
package acp

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// SessionID identifies a logical agent conversation. Opaque to demitasse;
// it is only ever used as a map key.
type SessionID string

// ACP methods demitasse inspects
const (
	MethodSessionUpdate = "session/update"
	MethodSessionPrompt = "session/prompt"
)

// Session update kinds and content block types
const (
	UpdateAgentMessageChunk = "agent_message_chunk"
	ContentTypeText         = "text"
)

// RPCError represents a JSON-RPC 2.0 error object
type RPCError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Message is one JSON-RPC 2.0 frame. Raw holds the exact bytes read off
// the wire so pass-through forwarding never re-encodes (and never drops
// fields demitasse does not model).
type Message struct {
	Raw []byte `json:"-"`

	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// Parse decodes a single frame. On JSON errors the returned Message still
// carries the raw bytes so the caller can forward it unmodified; demitasse
// is permissive about payloads it does not understand.
func Parse(line []byte) (*Message, error) {
	msg := &Message{Raw: append([]byte(nil), line...)}
	if err := json.Unmarshal(line, msg); err != nil {
		return msg, fmt.Errorf("failed to parse frame: %w", err)
	}
	return msg, nil
}

// IsRequest reports whether the message is a request (has both id and method)
func (m *Message) IsRequest() bool {
	return m.Method != "" && len(m.ID) > 0
}

// IsNotification reports whether the message is a notification (method, no id)
func (m *Message) IsNotification() bool {
	return m.Method != "" && len(m.ID) == 0
}

// IsResponse reports whether the message is a response (id, no method)
func (m *Message) IsResponse() bool {
	return m.Method == "" && len(m.ID) > 0
}

// Encode returns the frame's wire bytes, without a trailing newline.
// Parsed passthrough messages reuse the original bytes.
func (m *Message) Encode() ([]byte, error) {
	if m.Raw != nil {
		return m.Raw, nil
	}
	return json.Marshal(m)
}

// ChunkText extracts the session and text payload from a session/update
// notification carrying an agent_message_chunk with a text content block.
// ok is false for every other shape.
func ChunkText(m *Message) (SessionID, string, bool) {
	if !m.IsNotification() || m.Method != MethodSessionUpdate {
		return "", "", false
	}

	var params struct {
		SessionID SessionID `json:"sessionId"`
		Update    struct {
			Kind    string `json:"sessionUpdate"`
			Content struct {
				Type string `json:"type"`
				Text string `json:"text"`
			} `json:"content"`
		} `json:"update"`
	}
	if err := json.Unmarshal(m.Params, &params); err != nil {
		return "", "", false
	}
	if params.SessionID == "" || params.Update.Kind != UpdateAgentMessageChunk {
		return "", "", false
	}
	if params.Update.Content.Type != ContentTypeText {
		return "", "", false
	}

	return params.SessionID, params.Update.Content.Text, true
}

// PromptSession extracts the session a session/prompt request is scoped to
func PromptSession(m *Message) (SessionID, bool) {
	if !m.IsRequest() || m.Method != MethodSessionPrompt {
		return "", false
	}

	var params struct {
		SessionID SessionID `json:"sessionId"`
	}
	if err := json.Unmarshal(m.Params, &params); err != nil || params.SessionID == "" {
		return "", false
	}
	return params.SessionID, true
}

// NewChunkNotification builds a session/update notification carrying the
// coalesced text as a single agent_message_chunk.
func NewChunkNotification(sessionID SessionID, text string) (*Message, error) {
	params, err := json.Marshal(map[string]any{
		"sessionId": sessionID,
		"update": map[string]any{
			"sessionUpdate": UpdateAgentMessageChunk,
			"content": map[string]any{
				"type": ContentTypeText,
				"text": text,
			},
		},
	})
	if err != nil {
		return nil, err
	}

	return &Message{
		JSONRPC: "2.0",
		Method:  MethodSessionUpdate,
		Params:  params,
	}, nil
}

// RewriteChunkText clones a buffered chunk notification and replaces its
// text content with the coalesced text. Using the most recent notification
// as a template keeps fields demitasse does not model (meta, annotations)
// on the synthesized chunk.
func RewriteChunkText(template *Message, text string) (*Message, error) {
	var params map[string]any
	if err := json.Unmarshal(template.Params, &params); err != nil {
		return nil, fmt.Errorf("failed to decode template params: %w", err)
	}

	update, ok := params["update"].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("template has no update object")
	}
	content, ok := update["content"].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("template has no content block")
	}
	content["text"] = text

	raw, err := json.Marshal(params)
	if err != nil {
		return nil, err
	}

	return &Message{
		JSONRPC: "2.0",
		Method:  template.Method,
		Params:  raw,
	}, nil
}

// idKey canonicalizes a JSON-RPC id for use as a map key. Responses echo
// the request id byte-for-byte in practice, but whitespace is trimmed to
// be safe.
func idKey(id json.RawMessage) string {
	return string(bytes.TrimSpace(id))
}
