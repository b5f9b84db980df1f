package history

import (
	"fmt"
	"time"

	"github.com/renegade-studio/matrix/internal/config"
)

// Select implements spec.md §4.3's selection policy: multi-backend if
// MULTI_BACKEND is set, else a single database provider, else nil
// (history disabled, context manager runs ephemeral).
func Select(cfg StorageConfig) (Provider, error) {
	dialect, dsn := backendDSN(cfg)

	if config.BoolEnv("MULTI_BACKEND") {
		primary, err := NewSQLProvider(dialect, dsn)
		if err != nil {
			return nil, fmt.Errorf("history: select multi-backend primary: %w", err)
		}
		var backup Provider
		if cfg.BackupDialect != "" && cfg.BackupDSN != "" {
			backup, err = NewSQLProvider(cfg.BackupDialect, cfg.BackupDSN)
			if err != nil {
				return nil, fmt.Errorf("history: select multi-backend backup: %w", err)
			}
		}
		flushMs := config.IntEnv("WAL_FLUSH_INTERVAL", 5000)
		return NewMultiBackend(primary, backup, time.Duration(flushMs)*time.Millisecond, 10000), nil
	}

	if dsn == "" {
		return nil, nil
	}

	provider, err := NewSQLProvider(dialect, dsn)
	if err != nil {
		return nil, fmt.Errorf("history: select single backend: %w", err)
	}
	return provider, nil
}

// StorageConfig names the knobs the selection policy and backend
// chooser need; it is distinct from config.Config so history stays
// decoupled from the rest of the configuration tree.
type StorageConfig struct {
	PGURL             string
	PGHost, PGDB      string
	SQLitePath        string
	BackupDialect     string
	BackupDSN         string
}

// backendDSN implements "Postgres if URL or host+db configured, SQLite
// otherwise" (spec.md §4.3).
func backendDSN(cfg StorageConfig) (dialect, dsn string) {
	if cfg.PGURL != "" {
		return "postgres", cfg.PGURL
	}
	if cfg.PGHost != "" && cfg.PGDB != "" {
		return "postgres", fmt.Sprintf("host=%s dbname=%s sslmode=disable", cfg.PGHost, cfg.PGDB)
	}
	if cfg.SQLitePath != "" {
		return "sqlite", cfg.SQLitePath
	}
	return "", ""
}
