package debounce

import (
	"context"
	"errors"
	"io"
	"time"

	"golang.org/x/time/rate"

	"github.com/HyphaGroup/demitasse/internal/acp"
	"github.com/HyphaGroup/demitasse/internal/logger"
	"github.com/HyphaGroup/demitasse/internal/metrics"
)

// warnLimit caps parse-failure log lines so a garbage-spewing peer cannot
// flood the log. The frames themselves still pass through.
var warnLimit = rate.NewLimiter(rate.Limit(1), 5)

// Framed is the message stream a Proxy runs between. transport.Stream
// implements it; tests substitute in-memory pipes.
type Framed interface {
	Read() ([]byte, error)
	Write(frame []byte) error
}

// StreamSink forwards messages over a framed stream
type StreamSink struct {
	stream Framed
}

// NewStreamSink wraps a stream as a forwarding sink
func NewStreamSink(stream Framed) *StreamSink {
	return &StreamSink{stream: stream}
}

// Forward encodes and writes one message. Nothing is written once the
// context is cancelled.
func (s *StreamSink) Forward(ctx context.Context, msg *acp.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	frame, err := msg.Encode()
	if err != nil {
		return err
	}
	return s.stream.Write(frame)
}

// Proxy wires the store, router and flusher onto a pair of message
// streams. The client->agent direction passes through untouched (prompt
// requests are observed so their responses can be matched); the
// agent->client direction goes through the router. Each direction is
// strictly sequential: one message is fully handled, including any
// forwarding, before the next is read.
type Proxy struct {
	interval time.Duration
	store    *Store
	flushes  FlushLog
}

// NewProxy creates a proxy that flushes pending text every interval
func NewProxy(interval time.Duration) *Proxy {
	return &Proxy{
		interval: interval,
		store:    NewStore(),
	}
}

// SetFlushLog attaches an optional flush journal
func (p *Proxy) SetFlushLog(log FlushLog) {
	p.flushes = log
}

// Store exposes the buffer store for read-only introspection
func (p *Proxy) Store() *Store {
	return p.store
}

// Interval returns the configured flush period
func (p *Proxy) Interval() time.Duration {
	return p.interval
}

// Run pumps messages between agent and client until either side closes,
// the context is cancelled, or a forward fails. Text still buffered at
// teardown is discarded; there is no flush-on-shutdown guarantee. After
// Run returns the pumps route and forward nothing: a pump blocked in Read
// drops whatever unblocks it and exits. The caller owns the streams and
// unblocks the reads by closing them, as the entrypoint does with the
// agent's stdin.
func (p *Proxy) Run(ctx context.Context, agent, client Framed) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sink := NewStreamSink(client)
	router := NewRouter(p.store, sink)
	router.SetFlushLog(p.flushes)

	flusher := NewFlusher(p.store, sink, p.interval)
	flusher.SetFlushLog(p.flushes)
	flusher.Start()
	defer flusher.Stop()

	errCh := make(chan error, 2)

	// client -> agent: observe prompt requests, pass everything through
	go func() {
		errCh <- p.pumpClient(ctx, router, client, agent)
	}()

	// agent -> client: classify and route
	go func() {
		errCh <- p.pumpAgent(ctx, router, agent)
	}()

	select {
	case err := <-errCh:
		return err
	case err := <-flusher.Err():
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Proxy) pumpClient(ctx context.Context, router *Router, client, agent Framed) error {
	for {
		frame, err := client.Read()
		if err != nil {
			return readResult(err)
		}
		// A read completing after teardown is dropped, not bridged
		if err := ctx.Err(); err != nil {
			return err
		}

		msg, err := acp.Parse(frame)
		if err != nil {
			p.warnMalformed("client", err)
		} else {
			router.TrackClientMessage(msg)
		}

		if err := agent.Write(frame); err != nil {
			return err
		}
	}
}

func (p *Proxy) pumpAgent(ctx context.Context, router *Router, agent Framed) error {
	for {
		frame, err := agent.Read()
		if err != nil {
			return readResult(err)
		}
		// A read completing after teardown is dropped, not routed
		if err := ctx.Err(); err != nil {
			return err
		}

		msg, err := acp.Parse(frame)
		if err != nil {
			// A frame that fails to parse skips classification entirely:
			// flush everything pending, then pass the raw bytes through.
			// A partially decoded envelope must never route as a chunk.
			p.warnMalformed("agent", err)
			if err := router.HandleOpaqueFrame(ctx, msg); err != nil {
				return err
			}
			continue
		}

		if err := router.HandleAgentMessage(ctx, msg); err != nil {
			return err
		}
	}
}

func (p *Proxy) warnMalformed(side string, err error) {
	metrics.MalformedLines.Inc()
	if warnLimit.Allow() {
		logger.Warn("malformed frame, passing through", "side", side, "error", err)
	}
}

// readResult maps a clean EOF to a nil run result; the session simply
// ended.
func readResult(err error) error {
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}
