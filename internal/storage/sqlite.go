package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	logx "fractald/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger

	retain     int
	opCount    atomic.Uint64
	pruneEvery uint64
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	busy := cfg.BusyTimeout
	if busy <= 0 {
		busy = time.Second
	}
	_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", busy.Milliseconds()))
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	st := &sqliteStore{db: db, log: log, retain: cfg.retain(), pruneEvery: 100}
	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite migrate: %w", err)
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) AppendSession(ctx context.Context, r SessionRecord) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	r = prepare(r)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions(id, epoch, scale_x, scale_y, scale_width, width, height, anti_aliasing,
		   max_iteration, color_range, threads, outcome, reason, lines, failed_jobs, started, duration_ms)
		 VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		r.ID, int64(r.Epoch), r.Viewport.ScaleX, r.Viewport.ScaleY, r.Viewport.ScaleWidth,
		r.Width, r.Height, r.AntiAliasing, r.MaxIteration, r.ColorRange, r.Threads,
		r.Outcome, nullStr(r.Reason), r.Lines, r.FailedJobs,
		r.Started.UTC().Format(time.RFC3339Nano), r.Duration.Milliseconds(),
	)
	if err == nil && s.opCount.Add(1)%s.pruneEvery == 0 {
		pctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
		if perr := s.prune(pctx); perr != nil {
			s.log.Debug("session prune failed", logx.Err(perr))
		}
		cancel()
	}
	return err
}

func (s *sqliteStore) RecentSessions(ctx context.Context, limit int) ([]SessionRecord, error) {
	if s == nil || s.db == nil {
		return nil, ErrDisabled
	}
	if limit <= 0 {
		limit = s.retain
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, epoch, scale_x, scale_y, scale_width, width, height, anti_aliasing, max_iteration,
		        color_range, threads, outcome, reason, lines, failed_jobs, started, duration_ms
		   FROM sessions ORDER BY seq DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SessionRecord
	for rows.Next() {
		var (
			r       SessionRecord
			epoch   int64
			reason  sql.NullString
			started string
			ms      int64
		)
		if err := rows.Scan(&r.ID, &epoch, &r.Viewport.ScaleX, &r.Viewport.ScaleY, &r.Viewport.ScaleWidth,
			&r.Width, &r.Height, &r.AntiAliasing, &r.MaxIteration, &r.ColorRange, &r.Threads,
			&r.Outcome, &reason, &r.Lines, &r.FailedJobs, &started, &ms); err != nil {
			return nil, err
		}
		r.Epoch = uint64(epoch)
		r.Reason = reason.String
		r.Duration = time.Duration(ms) * time.Millisecond
		if t, err := time.Parse(time.RFC3339Nano, started); err == nil {
			r.Started = t
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// prune drops everything older than the newest retain rows.
func (s *sqliteStore) prune(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM sessions WHERE seq <= (SELECT seq FROM sessions ORDER BY seq DESC LIMIT 1 OFFSET ?)`,
		s.retain)
	return err
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}
