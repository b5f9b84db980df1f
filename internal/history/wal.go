package history

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/renegade-studio/matrix/internal/protocol"
)

// WALProvider is an in-memory append log flushed to a sink on a timer
// (spec.md §4.3). It is itself a valid Provider (reads hit the
// in-memory tail) and also serves as the synchronous write path for
// MultiBackend.
type WALProvider struct {
	mu            sync.Mutex
	records       map[string][]*protocol.Message
	maxSize       int
	flushInterval time.Duration
	sink          func(sessionID string, pending []*protocol.Message) error
	ticker        *time.Ticker
	done          chan struct{}
}

// NewWALProvider builds a WAL with the given flush period and a sink
// called on every tick with whatever has accumulated since the last
// flush. maxSize bounds the in-memory log per session; once reached,
// writes fail loudly instead of silently dropping records.
func NewWALProvider(flushInterval time.Duration, maxSize int, sink func(sessionID string, pending []*protocol.Message) error) *WALProvider {
	if flushInterval <= 0 {
		flushInterval = 5 * time.Second
	}
	if maxSize <= 0 {
		maxSize = 10000
	}
	w := &WALProvider{
		records:       make(map[string][]*protocol.Message),
		maxSize:       maxSize,
		flushInterval: flushInterval,
		sink:          sink,
		done:          make(chan struct{}),
	}
	w.ticker = time.NewTicker(flushInterval)
	go w.flushLoop()
	return w
}

func (w *WALProvider) flushLoop() {
	for {
		select {
		case <-w.ticker.C:
			w.flushAll()
		case <-w.done:
			return
		}
	}
}

// flushAll hands every session's pending records to the sink and, on
// success, trims exactly those records from w.records so a healthy
// sink keeps the in-memory log from growing without bound. A failed
// flush leaves its session's records in place so the next tick
// retries them (plus whatever has accumulated since).
func (w *WALProvider) flushAll() {
	w.mu.Lock()
	pending := make(map[string][]*protocol.Message, len(w.records))
	flushedCounts := make(map[string]int, len(w.records))
	for id, msgs := range w.records {
		if len(msgs) > 0 {
			pending[id] = append([]*protocol.Message(nil), msgs...)
			flushedCounts[id] = len(msgs)
		}
	}
	w.mu.Unlock()

	if w.sink == nil {
		return
	}

	for sessionID, msgs := range pending {
		if err := w.sink(sessionID, msgs); err != nil {
			slog.Warn("wal flush failed", "session", sessionID, "error", err)
			continue
		}
		w.trimFlushed(sessionID, flushedCounts[sessionID])
	}
}

// trimFlushed drops the first n records of sessionID's log: exactly
// the records that were durably flushed, even if writes landed in the
// meantime and grew the slice past n.
func (w *WALProvider) trimFlushed(sessionID string, n int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	remaining := w.records[sessionID]
	if n >= len(remaining) {
		delete(w.records, sessionID)
		return
	}
	w.records[sessionID] = append([]*protocol.Message(nil), remaining[n:]...)
}

func (w *WALProvider) AppendMessage(ctx context.Context, sessionID string, msg *protocol.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.records[sessionID]) >= w.maxSize {
		return fmt.Errorf("wal: session %s exceeds max size %d", sessionID, w.maxSize)
	}
	w.records[sessionID] = append(w.records[sessionID], msg)
	return nil
}

func (w *WALProvider) GetMessages(ctx context.Context, sessionID string, limit int) ([]*protocol.Message, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	msgs := w.records[sessionID]
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	out := make([]*protocol.Message, len(msgs))
	copy(out, msgs)
	return out, nil
}

func (w *WALProvider) GetMessageCount(ctx context.Context, sessionID string) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.records[sessionID]), nil
}

func (w *WALProvider) DeleteSession(ctx context.Context, sessionID string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.records, sessionID)
	return nil
}

func (w *WALProvider) Close() error {
	w.ticker.Stop()
	close(w.done)
	return nil
}
