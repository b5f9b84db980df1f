package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/renegade-studio/matrix/internal/protocol"
)

// SQLProvider persists transcripts to Postgres, MySQL, or SQLite via
// database/sql, selected by dialect (spec.md §4.3's "Storage backend
// choice" policy lives in select.go's Select).
type SQLProvider struct {
	db      *sql.DB
	dialect string
	mu      sync.Mutex
}

const createSessionsTableSQL = `
CREATE TABLE IF NOT EXISTS matrix_sessions (
    id VARCHAR(255) PRIMARY KEY,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL
);`

const createMessagesTableSQLite = `
CREATE TABLE IF NOT EXISTS matrix_messages (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    session_id VARCHAR(255) NOT NULL,
    message_json TEXT NOT NULL,
    sequence_num INTEGER NOT NULL,
    created_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_matrix_messages_session ON matrix_messages(session_id, sequence_num);`

const createMessagesTablePostgres = `
CREATE TABLE IF NOT EXISTS matrix_messages (
    id SERIAL PRIMARY KEY,
    session_id VARCHAR(255) NOT NULL,
    message_json TEXT NOT NULL,
    sequence_num BIGINT NOT NULL,
    created_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_matrix_messages_session ON matrix_messages(session_id, sequence_num);`

const createMessagesTableMySQL = `
CREATE TABLE IF NOT EXISTS matrix_messages (
    id INTEGER PRIMARY KEY AUTO_INCREMENT,
    session_id VARCHAR(255) NOT NULL,
    message_json TEXT NOT NULL,
    sequence_num BIGINT NOT NULL,
    created_at TIMESTAMP NOT NULL
);`

// NewSQLProvider opens dialect ("postgres", "mysql", or "sqlite") at
// dsn and ensures the schema exists.
func NewSQLProvider(dialect, dsn string) (*SQLProvider, error) {
	driverName := dialect
	if dialect == "sqlite" {
		driverName = "sqlite3"
	}
	switch dialect {
	case "postgres", "mysql", "sqlite":
	default:
		return nil, fmt.Errorf("history: unsupported dialect %q", dialect)
	}

	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("history: open %s: %w", dialect, err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("history: ping %s: %w", dialect, err)
	}

	p := &SQLProvider{db: db, dialect: dialect}
	if err := p.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return p, nil
}

func (p *SQLProvider) initSchema() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if _, err := p.db.ExecContext(ctx, createSessionsTableSQL); err != nil {
		return fmt.Errorf("history: create sessions table: %w", err)
	}

	messagesSQL := createMessagesTableSQLite
	switch p.dialect {
	case "postgres":
		messagesSQL = createMessagesTablePostgres
	case "mysql":
		messagesSQL = createMessagesTableMySQL
	}
	if _, err := p.db.ExecContext(ctx, messagesSQL); err != nil {
		return fmt.Errorf("history: create messages table: %w", err)
	}
	return nil
}

func (p *SQLProvider) placeholder(n int) string {
	if p.dialect == "postgres" {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

func (p *SQLProvider) AppendMessage(ctx context.Context, sessionID string, msg *protocol.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("history: marshal message: %w", err)
	}

	now := time.Now()
	upsertQ := fmt.Sprintf(
		"INSERT INTO matrix_sessions (id, created_at, updated_at) VALUES (%s, %s, %s) ON CONFLICT(id) DO NOTHING",
		p.placeholder(1), p.placeholder(2), p.placeholder(3))
	if p.dialect == "mysql" {
		upsertQ = "INSERT IGNORE INTO matrix_sessions (id, created_at, updated_at) VALUES (?, ?, ?)"
	}
	if _, err := p.db.ExecContext(ctx, upsertQ, sessionID, now, now); err != nil {
		return fmt.Errorf("history: upsert session %s: %w", sessionID, err)
	}

	seq, err := p.nextSequence(ctx, sessionID)
	if err != nil {
		return err
	}

	insertQ := fmt.Sprintf(
		"INSERT INTO matrix_messages (session_id, message_json, sequence_num, created_at) VALUES (%s, %s, %s, %s)",
		p.placeholder(1), p.placeholder(2), p.placeholder(3), p.placeholder(4))
	if _, err := p.db.ExecContext(ctx, insertQ, sessionID, string(payload), seq, now); err != nil {
		return fmt.Errorf("history: insert message for %s: %w", sessionID, err)
	}
	return nil
}

func (p *SQLProvider) nextSequence(ctx context.Context, sessionID string) (int64, error) {
	q := fmt.Sprintf("SELECT COALESCE(MAX(sequence_num), 0) FROM matrix_messages WHERE session_id = %s", p.placeholder(1))
	var max int64
	if err := p.db.QueryRowContext(ctx, q, sessionID).Scan(&max); err != nil {
		return 0, fmt.Errorf("history: next sequence for %s: %w", sessionID, err)
	}
	return max + 1, nil
}

func (p *SQLProvider) GetMessages(ctx context.Context, sessionID string, limit int) ([]*protocol.Message, error) {
	q := fmt.Sprintf("SELECT message_json FROM matrix_messages WHERE session_id = %s ORDER BY sequence_num ASC", p.placeholder(1))
	if limit > 0 {
		q += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := p.db.QueryContext(ctx, q, sessionID)
	if err != nil {
		return nil, fmt.Errorf("history: get messages for %s: %w", sessionID, err)
	}
	defer rows.Close()

	var out []*protocol.Message
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("history: scan message for %s: %w", sessionID, err)
		}
		var msg protocol.Message
		if err := json.Unmarshal([]byte(raw), &msg); err != nil {
			return nil, fmt.Errorf("history: decode message for %s: %w", sessionID, err)
		}
		out = append(out, &msg)
	}
	return out, rows.Err()
}

func (p *SQLProvider) GetMessageCount(ctx context.Context, sessionID string) (int, error) {
	q := fmt.Sprintf("SELECT COUNT(*) FROM matrix_messages WHERE session_id = %s", p.placeholder(1))
	var count int
	if err := p.db.QueryRowContext(ctx, q, sessionID).Scan(&count); err != nil {
		return 0, fmt.Errorf("history: count messages for %s: %w", sessionID, err)
	}
	return count, nil
}

func (p *SQLProvider) DeleteSession(ctx context.Context, sessionID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	delMsgsQ := fmt.Sprintf("DELETE FROM matrix_messages WHERE session_id = %s", p.placeholder(1))
	if _, err := p.db.ExecContext(ctx, delMsgsQ, sessionID); err != nil {
		return fmt.Errorf("history: delete messages for %s: %w", sessionID, err)
	}
	delSessQ := fmt.Sprintf("DELETE FROM matrix_sessions WHERE id = %s", p.placeholder(1))
	if _, err := p.db.ExecContext(ctx, delSessQ, sessionID); err != nil {
		return fmt.Errorf("history: delete session %s: %w", sessionID, err)
	}
	return nil
}

func (p *SQLProvider) Close() error {
	return p.db.Close()
}
