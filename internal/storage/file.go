package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"

	logx "fractald/pkg/logx"
)

// fileStore keeps sessions in <prefix>.sessions.jsonl. The newest records
// are mirrored in memory; the file is rewritten down to the retained tail
// once it grows to twice the retention.
type fileStore struct {
	log logx.Logger

	mu     sync.Mutex
	path   string
	f      *os.File
	lines  int
	retain int
	recent []SessionRecord // oldest first, at most retain
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}

	dir := filepath.Dir(path)
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	sessionsPath := filepath.Join(dir, base) + ".sessions.jsonl"

	s := &fileStore{log: log, path: sessionsPath, retain: cfg.retain()}
	if err := s.load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	f, err := os.OpenFile(sessionsPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, err
	}
	s.f = f
	return s, nil
}

func (s *fileStore) load() error {
	f, err := os.Open(s.path)
	if err != nil {
		return err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for sc.Scan() {
		s.lines++
		var r SessionRecord
		if err := json.Unmarshal(sc.Bytes(), &r); err != nil {
			s.log.Debug("skipping corrupt session line", logx.Int("line", s.lines), logx.Err(err))
			continue
		}
		s.remember(r)
	}
	return sc.Err()
}

func (s *fileStore) remember(r SessionRecord) {
	s.recent = append(s.recent, r)
	if len(s.recent) > s.retain {
		s.recent = append(s.recent[:0:0], s.recent[len(s.recent)-s.retain:]...)
	}
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return nil
	}
	err := s.f.Close()
	s.f = nil
	return err
}

func (s *fileStore) AppendSession(ctx context.Context, r SessionRecord) error {
	_ = ctx
	r = prepare(r)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return errors.New("session file closed")
	}
	if err := json.NewEncoder(s.f).Encode(r); err != nil {
		return err
	}
	s.lines++
	s.remember(r)

	if s.lines >= 2*s.retain {
		if err := s.compactLocked(); err != nil {
			s.log.Debug("session file compact failed", logx.Err(err))
		}
	}
	return nil
}

func (s *fileStore) RecentSessions(ctx context.Context, limit int) ([]SessionRecord, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if limit <= 0 || limit > len(s.recent) {
		limit = len(s.recent)
	}
	out := make([]SessionRecord, 0, limit)
	for i := len(s.recent) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, s.recent[i])
	}
	return out, nil
}

// compactLocked rewrites the file with only the retained records.
func (s *fileStore) compactLocked() error {
	tmp := s.path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(f)
	for _, r := range s.recent {
		if err := enc.Encode(r); err != nil {
			_ = f.Close()
			return err
		}
	}
	if err := f.Close(); err != nil {
		return err
	}
	if err := s.f.Close(); err != nil {
		return err
	}
	s.f = nil
	if err := os.Rename(tmp, s.path); err != nil {
		return err
	}
	nf, err := os.OpenFile(s.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	s.f = nf
	s.lines = len(s.recent)
	return nil
}
