package debounce

import (
	"context"
	"sync"
	"time"

	"github.com/HyphaGroup/demitasse/internal/acp"
	"github.com/HyphaGroup/demitasse/internal/logger"
	"github.com/HyphaGroup/demitasse/internal/metrics"
)

// Flusher periodically releases pending text so a quiet session still
// reaches the client within one interval. It runs as an independent
// background goroutine; the router and the flusher contend for the store
// but never for each other.
type Flusher struct {
	store    *Store
	sink     Sink
	interval time.Duration
	flushes  FlushLog

	cancel context.CancelFunc
	wg     sync.WaitGroup
	errCh  chan error
}

// NewFlusher creates a flusher draining store into sink every interval
func NewFlusher(store *Store, sink Sink, interval time.Duration) *Flusher {
	return &Flusher{
		store:    store,
		sink:     sink,
		interval: interval,
		errCh:    make(chan error, 1),
	}
}

// SetFlushLog attaches an optional flush journal
func (f *Flusher) SetFlushLog(log FlushLog) {
	f.flushes = log
}

// Start begins the periodic flush loop
func (f *Flusher) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	f.cancel = cancel
	f.wg.Add(1)

	go func() {
		defer f.wg.Done()
		ticker := time.NewTicker(f.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := f.flush(ctx); err != nil {
					// Drained text is gone regardless of the forward
					// outcome: at-most-once delivery, never re-buffered.
					logger.Error("timer flush failed, stopping flusher", "error", err)
					f.errCh <- err
					return
				}
			}
		}
	}()

	logger.Info("flusher started", "interval", f.interval)
}

// Stop halts the flush loop and waits for any in-flight flush to finish.
// Text still buffered at teardown is discarded.
func (f *Flusher) Stop() {
	if f.cancel != nil {
		f.cancel()
		f.wg.Wait()
	}
}

// Err surfaces a forwarding failure that ended the flush loop
func (f *Flusher) Err() <-chan error {
	return f.errCh
}

// flush drains every pending buffer and forwards the coalesced chunks
func (f *Flusher) flush(ctx context.Context) error {
	start := time.Now()
	drained := f.store.DrainAll()
	metrics.BufferedSessions.Set(float64(f.store.Len()))
	if len(drained) == 0 {
		return nil
	}

	total := 0
	for _, d := range drained {
		if err := forwardDrained(ctx, f.sink, d); err != nil {
			return err
		}
		total += len(d.Text)
		f.record(d.Session, len(d.Text))
	}

	metrics.ObserveFlush(metrics.TriggerTimer, total, start)
	return nil
}

func (f *Flusher) record(session acp.SessionID, bytes int) {
	if f.flushes != nil {
		f.flushes.Record(session, metrics.TriggerTimer, bytes)
	}
}
