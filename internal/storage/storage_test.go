package storage

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"fractald/internal/fractal"
	logx "fractald/pkg/logx"
)

func record(epoch uint64, outcome string) SessionRecord {
	return SessionRecord{
		Epoch:        epoch,
		Viewport:     fractal.Viewport{ScaleX: -2, ScaleY: -1.25, ScaleWidth: 3},
		Width:        320,
		Height:       200,
		AntiAliasing: 2,
		MaxIteration: 256,
		ColorRange:   64,
		Threads:      4,
		Outcome:      outcome,
		Lines:        200,
		Started:      time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		Duration:     1500 * time.Millisecond,
	}
}

func TestStoresRoundTripNewestFirst(t *testing.T) {
	t.Parallel()
	for _, driver := range []string{"file", "sqlite"} {
		driver := driver
		t.Run(driver, func(t *testing.T) {
			t.Parallel()
			path := filepath.Join(t.TempDir(), "history.db")
			st, err := Open(Config{Driver: driver, Path: path, Retain: 3}, logx.Nop())
			if err != nil {
				t.Fatalf("Open error: %v", err)
			}
			ctx := context.Background()
			for i := uint64(1); i <= 5; i++ {
				outcome := "completed"
				if i%2 == 0 {
					outcome = "cancelled"
				}
				if err := st.AppendSession(ctx, record(i, outcome)); err != nil {
					t.Fatalf("AppendSession error: %v", err)
				}
			}

			got, err := st.RecentSessions(ctx, 2)
			if err != nil {
				t.Fatalf("RecentSessions error: %v", err)
			}
			if len(got) != 2 || got[0].Epoch != 5 || got[1].Epoch != 4 {
				t.Fatalf("unexpected records: %+v", got)
			}
			r := got[1]
			if r.ID == "" || r.Outcome != "cancelled" || r.Viewport.ScaleY != -1.25 || r.Duration != 1500*time.Millisecond {
				t.Fatalf("record not preserved: %+v", r)
			}
			if !r.Started.Equal(time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)) {
				t.Fatalf("Started = %v", r.Started)
			}
			if err := st.Close(); err != nil {
				t.Fatalf("Close error: %v", err)
			}

			// Reopen and check persistence.
			st, err = Open(Config{Driver: driver, Path: path, Retain: 3}, logx.Nop())
			if err != nil {
				t.Fatalf("reopen error: %v", err)
			}
			defer st.Close()
			got, err = st.RecentSessions(ctx, 10)
			if err != nil {
				t.Fatalf("RecentSessions error: %v", err)
			}
			if len(got) == 0 || got[0].Epoch != 5 {
				t.Fatalf("after reopen: %+v", got)
			}
			if driver == "file" && len(got) != 3 {
				t.Fatalf("file store kept %d records, want 3", len(got))
			}
		})
	}
}

func TestFileStoreCompacts(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "history")
	st, err := Open(Config{Driver: "file", Path: path, Retain: 2}, logx.Nop())
	if err != nil {
		t.Fatalf("Open error: %v", err)
	}
	defer st.Close()
	for i := uint64(1); i <= 4; i++ {
		if err := st.AppendSession(context.Background(), record(i, "completed")); err != nil {
			t.Fatalf("AppendSession error: %v", err)
		}
	}
	fs := st.(*fileStore)
	fs.mu.Lock()
	lines := fs.lines
	fs.mu.Unlock()
	if lines != 2 {
		t.Fatalf("file has %d lines after compaction, want 2", lines)
	}
}

func TestOpenDriverSelection(t *testing.T) {
	t.Parallel()
	if st, err := Open(Config{Driver: "none"}, logx.Nop()); st != nil || err != nil {
		t.Fatalf("none: st=%v err=%v", st, err)
	}
	if _, err := Open(Config{Driver: "redis", Path: "x"}, logx.Nop()); err == nil || !strings.Contains(err.Error(), "unknown") {
		t.Fatalf("expected unknown driver error, got %v", err)
	}
	if _, err := Open(Config{Driver: "sqlite"}, logx.Nop()); err == nil {
		t.Fatal("expected error for sqlite without path")
	}
	if a, b := NewSessionID(), NewSessionID(); a == b || len(a) != 36 {
		t.Fatalf("unexpected ids %q %q", a, b)
	}
}
