package storage

import (
	"context"
	"fmt"
	"strings"

	logx "fractald/pkg/logx"
)

// Store is the persistence API used by the app.
type Store interface {
	AppendSession(ctx context.Context, r SessionRecord) error
	// RecentSessions returns up to limit records, newest first.
	RecentSessions(ctx context.Context, limit int) ([]SessionRecord, error)
	Close() error
}

// Open initializes the configured store.
// It returns (nil, nil) if storage is disabled.
func Open(cfg Config, log logx.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" || driver == "none" {
		return nil, nil
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	switch driver {
	case "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, fmt.Errorf("unknown storage driver: %s", driver)
	}
}

func prepare(r SessionRecord) SessionRecord {
	if strings.TrimSpace(r.ID) == "" {
		r.ID = NewSessionID()
	}
	return r
}
