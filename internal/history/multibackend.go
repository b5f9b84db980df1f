package history

import (
	"context"
	"log/slog"
	"time"

	"github.com/renegade-studio/matrix/internal/protocol"
)

// MultiBackend owns a primary, a backup, and a WAL (spec.md §4.3).
// Writes land on the WAL synchronously; the WAL's flush tick fans
// them out to primary and backup. Reads prefer primary, fall back to
// backup within a fixed budget, and finally fall back to the WAL tail
// if both backing stores are unreachable.
type MultiBackend struct {
	primary     Provider
	backup      Provider
	wal         *WALProvider
	readBudget  time.Duration
}

// NewMultiBackend wires wal's flush sink to fan writes to both
// primary and backup, continuing to the next store if one write
// fails rather than losing the batch.
func NewMultiBackend(primary, backup Provider, flushInterval time.Duration, walMaxSize int) *MultiBackend {
	mb := &MultiBackend{primary: primary, backup: backup, readBudget: 250 * time.Millisecond}
	mb.wal = NewWALProvider(flushInterval, walMaxSize, mb.flushToBackends)
	return mb
}

func (mb *MultiBackend) flushToBackends(sessionID string, pending []*protocol.Message) error {
	ctx := context.Background()
	var firstErr error
	for _, msg := range pending {
		if err := mb.primary.AppendMessage(ctx, sessionID, msg); err != nil {
			slog.Warn("multi-backend: primary write failed", "session", sessionID, "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
		if mb.backup != nil {
			if err := mb.backup.AppendMessage(ctx, sessionID, msg); err != nil {
				slog.Warn("multi-backend: backup write failed", "session", sessionID, "error", err)
				if firstErr == nil {
					firstErr = err
				}
			}
		}
	}
	return firstErr
}

func (mb *MultiBackend) AppendMessage(ctx context.Context, sessionID string, msg *protocol.Message) error {
	return mb.wal.AppendMessage(ctx, sessionID, msg)
}

func (mb *MultiBackend) GetMessages(ctx context.Context, sessionID string, limit int) ([]*protocol.Message, error) {
	rctx, cancel := context.WithTimeout(ctx, mb.readBudget)
	defer cancel()

	msgs, err := mb.primary.GetMessages(rctx, sessionID, limit)
	if err == nil {
		return msgs, nil
	}
	slog.Warn("multi-backend: primary read failed, trying backup", "session", sessionID, "error", err)

	if mb.backup != nil {
		rctx2, cancel2 := context.WithTimeout(ctx, mb.readBudget)
		defer cancel2()
		msgs, err2 := mb.backup.GetMessages(rctx2, sessionID, limit)
		if err2 == nil {
			return msgs, nil
		}
		slog.Warn("multi-backend: backup read failed, surfacing wal tail", "session", sessionID, "error", err2)
	}

	return mb.wal.GetMessages(ctx, sessionID, limit)
}

func (mb *MultiBackend) GetMessageCount(ctx context.Context, sessionID string) (int, error) {
	msgs, err := mb.GetMessages(ctx, sessionID, 0)
	if err != nil {
		return 0, err
	}
	return len(msgs), nil
}

func (mb *MultiBackend) DeleteSession(ctx context.Context, sessionID string) error {
	_ = mb.primary.DeleteSession(ctx, sessionID)
	if mb.backup != nil {
		_ = mb.backup.DeleteSession(ctx, sessionID)
	}
	return mb.wal.DeleteSession(ctx, sessionID)
}

func (mb *MultiBackend) Close() error {
	_ = mb.wal.Close()
	if err := mb.primary.Close(); err != nil {
		return err
	}
	if mb.backup != nil {
		return mb.backup.Close()
	}
	return nil
}
