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
	"time"

	logx "picotick/pkg/logx"
)

// fileStore keeps readings in <prefix>.readings.jsonl.
//
// Prune rewrites the file through a temp copy and swaps it in.
type fileStore struct {
	log logx.Logger

	mu   sync.Mutex
	path string
	f    *os.File

	reopen func(path string) (*os.File, error)
	stale  bool // f points at the file a prune replaced
}

func openAppend(path string) (*os.File, error) {
	return os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}

	dir := filepath.Dir(path)
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	full := filepath.Join(dir, base) + ".readings.jsonl"
	f, err := openAppend(full)
	if err != nil {
		return nil, err
	}
	return &fileStore{log: log, path: full, f: f, reopen: openAppend}, nil
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

func (s *fileStore) AppendReadings(ctx context.Context, recs []Record) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return ErrClosed
	}
	if s.stale {
		_ = s.swap()
	}
	w := bufio.NewWriter(s.f)
	enc := json.NewEncoder(w)
	for _, r := range recs {
		if err := enc.Encode(r); err != nil {
			return err
		}
	}
	return w.Flush()
}

func (s *fileStore) Recent(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		return nil, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return nil, ErrClosed
	}

	ring := make([]Record, limit)
	n := 0
	err := s.scan(ctx, func(r Record) {
		ring[n%limit] = r
		n++
	})
	if err != nil {
		return nil, err
	}

	count := min(n, limit)
	out := make([]Record, 0, count)
	for i := 0; i < count; i++ {
		out = append(out, ring[(n-1-i)%limit])
	}
	return out, nil
}

func (s *fileStore) Prune(ctx context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return 0, ErrClosed
	}

	tmp := s.path + ".tmp"
	tf, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return 0, err
	}
	w := bufio.NewWriter(tf)
	enc := json.NewEncoder(w)

	var dropped int64
	var encErr error
	err = s.scan(ctx, func(r Record) {
		if encErr != nil {
			return
		}
		if r.At.Before(before) {
			dropped++
			return
		}
		encErr = enc.Encode(r)
	})
	if err == nil {
		err = encErr
	}
	if err == nil {
		err = w.Flush()
	}
	if cerr := tf.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(tmp)
		return 0, err
	}
	if dropped == 0 {
		_ = os.Remove(tmp)
		return 0, nil
	}

	// A failed reopen keeps the old handle.
	if err := os.Rename(tmp, s.path); err != nil {
		_ = os.Remove(tmp)
		return 0, err
	}
	s.stale = true
	if err := s.swap(); err != nil {
		return 0, err
	}
	return dropped, nil
}

// swap reopens path after a prune and closes the old handle. On failure the
// old handle stays in place and the next append tries again.
func (s *fileStore) swap() error {
	f, err := s.reopen(s.path)
	if err != nil {
		s.log.Warn("reopen after prune failed", logx.Err(err))
		return err
	}
	if err := s.f.Close(); err != nil {
		s.log.Debug("close after prune swap failed", logx.Err(err))
	}
	s.f = f
	s.stale = false
	return nil
}

// scan reads the file from the start. Undecodable lines (a torn last write)
// are skipped.
func (s *fileStore) scan(ctx context.Context, fn func(Record)) error {
	f, err := os.Open(s.path)
	if err != nil {
		return err
	}
	defer f.Close()
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		var r Record
		if err := json.Unmarshal(sc.Bytes(), &r); err != nil {
			continue
		}
		fn(r)
	}
	return sc.Err()
}
