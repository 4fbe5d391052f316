package debounce

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/HyphaGroup/demitasse/internal/acp"
)

// chanStream is an in-memory Framed stream driven by the test
type chanStream struct {
	in  chan []byte
	out chan []byte
}

func newChanStream() *chanStream {
	return &chanStream{
		in:  make(chan []byte, 64),
		out: make(chan []byte, 64),
	}
}

func (s *chanStream) Read() ([]byte, error) {
	frame, ok := <-s.in
	if !ok {
		return nil, io.EOF
	}
	return frame, nil
}

func (s *chanStream) Write(frame []byte) error {
	s.out <- append([]byte(nil), frame...)
	return nil
}

func recvFrame(t *testing.T, ch chan []byte) []byte {
	t.Helper()
	select {
	case frame := <-ch:
		return frame
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a frame")
		return nil
	}
}

// A fast agent dumps 20 words as individual chunks and then answers the
// prompt; the client must see one coalesced chunk followed by the
// response.
func TestProxy_CoalescesChunksAheadOfPromptResponse(t *testing.T) {
	words := []string{
		"The ", "quick ", "brown ", "fox ", "jumps ",
		"over ", "the ", "lazy ", "dog. ", "Pack ",
		"my ", "box ", "with ", "five ", "dozen ",
		"liquor ", "jugs. ", "How ", "vexingly ", "quick ",
	}

	agent := newChanStream()
	client := newChanStream()
	// A long interval keeps the timer out of this test
	proxy := NewProxy(time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runDone := make(chan error, 1)
	go func() {
		runDone <- proxy.Run(ctx, agent, client)
	}()

	// Client sends the prompt; the proxy must pass it through to the agent
	prompt := []byte(`{"jsonrpc":"2.0","id":1,"method":"session/prompt","params":{"sessionId":"s1","prompt":[{"type":"text","text":"go"}]}}`)
	client.in <- prompt

	forwarded := recvFrame(t, agent.out)
	if !bytes.Equal(forwarded, prompt) {
		t.Fatalf("prompt not passed through unmodified:\ngot  %s\nwant %s", forwarded, prompt)
	}

	// Agent dumps all words back-to-back, then the terminal response
	for _, w := range words {
		agent.in <- []byte(`{"jsonrpc":"2.0","method":"session/update","params":{"sessionId":"s1","update":{"sessionUpdate":"agent_message_chunk","content":{"type":"text","text":"` + w + `"}}}}`)
	}
	agent.in <- []byte(`{"jsonrpc":"2.0","id":1,"result":{"stopReason":"end_turn"}}`)

	first, err := acp.Parse(recvFrame(t, client.out))
	if err != nil {
		t.Fatalf("client received unparseable frame: %v", err)
	}
	_, text, ok := acp.ChunkText(first)
	if !ok {
		t.Fatal("first frame at the client is not a text chunk")
	}
	if want := strings.Join(words, ""); text != want {
		t.Errorf("coalesced text = %q, want %q", text, want)
	}

	second, err := acp.Parse(recvFrame(t, client.out))
	if err != nil {
		t.Fatalf("client received unparseable frame: %v", err)
	}
	if !second.IsResponse() {
		t.Error("second frame at the client is not the prompt response")
	}

	select {
	case extra := <-client.out:
		t.Errorf("client received an unexpected extra frame: %s", extra)
	default:
	}

	// Agent hangs up; the proxy run ends cleanly
	close(agent.in)
	select {
	case err := <-runDone:
		if err != nil {
			t.Errorf("Run() returned error on clean EOF: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run() did not return after agent EOF")
	}
}

func TestProxy_MalformedFramePassesThroughAfterFlush(t *testing.T) {
	agent := newChanStream()
	client := newChanStream()
	proxy := NewProxy(time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = proxy.Run(ctx, agent, client) }()

	agent.in <- []byte(`{"jsonrpc":"2.0","method":"session/update","params":{"sessionId":"s1","update":{"sessionUpdate":"agent_message_chunk","content":{"type":"text","text":"pending"}}}}`)

	garbage := []byte(`%% not json at all %%`)
	agent.in <- garbage

	// Pending text is released ahead of the unknown frame
	first, err := acp.Parse(recvFrame(t, client.out))
	if err != nil {
		t.Fatalf("client received unparseable flush frame: %v", err)
	}
	if _, text, ok := acp.ChunkText(first); !ok || text != "pending" {
		t.Fatalf("first frame = %s, want the flushed chunk", first.Raw)
	}

	if got := recvFrame(t, client.out); !bytes.Equal(got, garbage) {
		t.Errorf("garbage frame modified in flight: got %q, want %q", got, garbage)
	}
}

// A frame that is valid JSON but not a valid envelope must not be routed
// off its partially decoded fields: pending text flushes first, then the
// frame passes through raw.
func TestProxy_MistypedFrameBypassesClassification(t *testing.T) {
	agent := newChanStream()
	client := newChanStream()
	proxy := NewProxy(time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = proxy.Run(ctx, agent, client) }()

	agent.in <- []byte(`{"jsonrpc":"2.0","method":"session/update","params":{"sessionId":"s1","update":{"sessionUpdate":"agent_message_chunk","content":{"type":"text","text":"pending"}}}}`)

	// Looks like a chunk, but "error" must be an object, so parsing fails
	mistyped := []byte(`{"jsonrpc":"2.0","method":"session/update","params":{"sessionId":"s1","update":{"sessionUpdate":"agent_message_chunk","content":{"type":"text","text":"ghost"}}},"error":5}`)
	agent.in <- mistyped

	first, err := acp.Parse(recvFrame(t, client.out))
	if err != nil {
		t.Fatalf("client received unparseable flush frame: %v", err)
	}
	if _, text, ok := acp.ChunkText(first); !ok || text != "pending" {
		t.Fatalf("first frame = %s, want the flushed chunk", first.Raw)
	}

	if got := recvFrame(t, client.out); !bytes.Equal(got, mistyped) {
		t.Errorf("mistyped frame not passed through raw: got %q, want %q", got, mistyped)
	}
}

// After Run returns, traffic arriving on either stream must be dropped:
// nothing routed, nothing bridged, nothing flushed.
func TestProxy_TeardownStopsForwarding(t *testing.T) {
	agent := newChanStream()
	client := newChanStream()
	proxy := NewProxy(time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	runDone := make(chan error, 1)
	go func() { runDone <- proxy.Run(ctx, agent, client) }()

	cancel()
	select {
	case err := <-runDone:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("Run() = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run() did not return on cancellation")
	}

	// Late agent traffic: a chunk and a structural event that would
	// normally buffer and then flush
	agent.in <- []byte(`{"jsonrpc":"2.0","method":"session/update","params":{"sessionId":"s1","update":{"sessionUpdate":"agent_message_chunk","content":{"type":"text","text":"ghost"}}}}`)
	agent.in <- []byte(`{"jsonrpc":"2.0","method":"session/cancelled","params":{"sessionId":"s1"}}`)

	// Late client traffic that would normally bridge to the agent
	client.in <- []byte(`{"jsonrpc":"2.0","id":9,"method":"session/prompt","params":{"sessionId":"s1"}}`)

	time.Sleep(50 * time.Millisecond)

	select {
	case frame := <-client.out:
		t.Errorf("dead proxy forwarded a frame to the client: %s", frame)
	default:
	}
	select {
	case frame := <-agent.out:
		t.Errorf("dead proxy bridged a frame to the agent: %s", frame)
	default:
	}
	if got := proxy.Store().PendingBytes(); got != 0 {
		t.Errorf("dead proxy buffered %d bytes after Run returned", got)
	}
}

func TestProxy_TimerFlushReachesClient(t *testing.T) {
	agent := newChanStream()
	client := newChanStream()
	proxy := NewProxy(10 * time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = proxy.Run(ctx, agent, client) }()

	agent.in <- []byte(`{"jsonrpc":"2.0","method":"session/update","params":{"sessionId":"s1","update":{"sessionUpdate":"agent_message_chunk","content":{"type":"text","text":"tick tock"}}}}`)

	msg, err := acp.Parse(recvFrame(t, client.out))
	if err != nil {
		t.Fatalf("client received unparseable frame: %v", err)
	}
	if _, text, ok := acp.ChunkText(msg); !ok || text != "tick tock" {
		t.Errorf("timer flush delivered %s, want chunk 'tick tock'", msg.Raw)
	}
}
