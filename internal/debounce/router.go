package debounce

import (
	"context"
	"fmt"
	"time"

	"github.com/HyphaGroup/demitasse/internal/acp"
	"github.com/HyphaGroup/demitasse/internal/metrics"
)

// Sink forwards one message to the downstream party. Implementations may
// fail (broken transport); failures are propagated, never retried here.
type Sink interface {
	Forward(ctx context.Context, msg *acp.Message) error
}

// FlushLog receives a record of every non-empty flush. Optional; used by
// the journal.
type FlushLog interface {
	Record(session acp.SessionID, trigger string, bytes int)
}

// Router applies the buffering policy to every agent->client message:
//
//   - agent_message_chunk with text: absorbed into the session's buffer,
//     nothing forwarded.
//   - response to a tracked session/prompt: that session's buffer is
//     flushed ahead of the response, then the response is forwarded.
//   - anything else: every pending buffer is flushed ahead of the event,
//     then the event is forwarded unmodified. Draining all sessions rather
//     than one is deliberate: the triggering event's session is not always
//     known, and releasing everything avoids cross-session staleness.
type Router struct {
	store   *Store
	sink    Sink
	tracker *acp.PromptTracker
	flushes FlushLog
}

// NewRouter creates a router forwarding through sink
func NewRouter(store *Store, sink Sink) *Router {
	return &Router{
		store:   store,
		sink:    sink,
		tracker: acp.NewPromptTracker(),
	}
}

// SetFlushLog attaches an optional flush journal
func (r *Router) SetFlushLog(log FlushLog) {
	r.flushes = log
}

// TrackClientMessage observes a client->agent message so that prompt
// responses coming back can be recognized. The message itself is not
// forwarded here; the proxy passes it through.
func (r *Router) TrackClientMessage(msg *acp.Message) {
	r.tracker.Observe(msg)
}

// HandleAgentMessage processes one agent->client message. Forwarding
// errors propagate to the caller; the message's buffering side effects
// have already happened by then (drained text is not re-buffered).
func (r *Router) HandleAgentMessage(ctx context.Context, msg *acp.Message) error {
	if sessionID, text, ok := acp.ChunkText(msg); ok {
		r.store.Append(sessionID, text, msg)
		metrics.ChunksBuffered.Inc()
		metrics.BufferedSessions.Set(float64(r.store.Len()))
		return nil
	}

	if sessionID, ok := r.tracker.Match(msg); ok {
		if err := r.flushOne(ctx, sessionID, metrics.TriggerResponse); err != nil {
			return err
		}
		return r.forward(ctx, msg)
	}

	if err := r.flushAll(ctx, metrics.TriggerEvent); err != nil {
		return err
	}
	return r.forward(ctx, msg)
}

// HandleOpaqueFrame treats a frame that failed to parse as a structural
// event, without classifying it: every pending buffer is flushed, then the
// frame's raw bytes are forwarded untouched.
func (r *Router) HandleOpaqueFrame(ctx context.Context, msg *acp.Message) error {
	if err := r.flushAll(ctx, metrics.TriggerEvent); err != nil {
		return err
	}
	return r.forward(ctx, msg)
}

// flushOne drains a single session and forwards its coalesced text, if any
func (r *Router) flushOne(ctx context.Context, sessionID acp.SessionID, trigger string) error {
	start := time.Now()
	d := r.store.DrainOne(sessionID)
	metrics.BufferedSessions.Set(float64(r.store.Len()))
	if d.Text == "" {
		return nil
	}

	if err := forwardDrained(ctx, r.sink, d); err != nil {
		return err
	}

	metrics.ObserveFlush(trigger, len(d.Text), start)
	if r.flushes != nil {
		r.flushes.Record(d.Session, trigger, len(d.Text))
	}
	return nil
}

// flushAll drains every session and forwards the coalesced text ahead of
// whatever triggered the flush
func (r *Router) flushAll(ctx context.Context, trigger string) error {
	start := time.Now()
	drained := r.store.DrainAll()
	metrics.BufferedSessions.Set(float64(r.store.Len()))
	if len(drained) == 0 {
		return nil
	}

	total := 0
	for _, d := range drained {
		if err := forwardDrained(ctx, r.sink, d); err != nil {
			return err
		}
		total += len(d.Text)
		if r.flushes != nil {
			r.flushes.Record(d.Session, trigger, len(d.Text))
		}
	}

	metrics.ObserveFlush(trigger, total, start)
	return nil
}

func (r *Router) forward(ctx context.Context, msg *acp.Message) error {
	if err := r.sink.Forward(ctx, msg); err != nil {
		metrics.ForwardErrors.Inc()
		return err
	}
	return nil
}

// forwardDrained synthesizes a single chunk notification from drained text
// and forwards it. The session's most recent chunk serves as the template
// when available.
func forwardDrained(ctx context.Context, sink Sink, d Drained) error {
	var msg *acp.Message
	var err error

	if d.Template != nil {
		msg, err = acp.RewriteChunkText(d.Template, d.Text)
	} else {
		msg, err = acp.NewChunkNotification(d.Session, d.Text)
	}
	if err != nil {
		return fmt.Errorf("failed to synthesize chunk for session %s: %w", d.Session, err)
	}

	if err := sink.Forward(ctx, msg); err != nil {
		metrics.ForwardErrors.Inc()
		return err
	}
	return nil
}
