package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	logx "prayerfirst/pkg/logx"
)

var errKeyRequired = errors.New("storage key required")

// fileStore keeps every key in memory and rewrites one JSON snapshot file
// (map of key -> raw JSON value) on each mutation via tmp file + rename,
// so a crash leaves either the old or the new snapshot, never a torn one.
type fileStore struct {
	log  logx.Logger
	path string

	mu     sync.Mutex
	data   map[string]json.RawMessage
	closed bool
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}
	if filepath.Ext(path) == "" {
		path += ".json"
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	data := map[string]json.RawMessage{}
	b, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, err
	case len(strings.TrimSpace(string(b))) > 0:
		if err := json.Unmarshal(b, &data); err != nil {
			// Keep the broken file around for inspection and start empty.
			bad := path + ".corrupt"
			_ = os.Rename(path, bad)
			log.Warn("storage snapshot unreadable; starting empty", logx.String("path", path), logx.String("moved_to", bad), logx.Err(err))
			data = map[string]json.RawMessage{}
		}
	}

	return &fileStore{log: log, path: path, data: data}, nil
}

func (s *fileStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, false, ErrClosed
	}
	v, ok := s.data[strings.TrimSpace(key)]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), v...), true, nil
}

func (s *fileStore) Put(ctx context.Context, key string, value []byte) error {
	_ = ctx
	key = strings.TrimSpace(key)
	if key == "" {
		return errKeyRequired
	}
	if !json.Valid(value) {
		return fmt.Errorf("storage: value for %q is not valid JSON", key)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	prev, had := s.data[key]
	s.data[key] = append(json.RawMessage(nil), value...)
	if err := s.flushLocked(); err != nil {
		if had {
			s.data[key] = prev
		} else {
			delete(s.data, key)
		}
		return err
	}
	return nil
}

func (s *fileStore) Delete(ctx context.Context, key string) error {
	_ = ctx
	key = strings.TrimSpace(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	prev, had := s.data[key]
	if !had {
		return nil
	}
	delete(s.data, key)
	if err := s.flushLocked(); err != nil {
		s.data[key] = prev
		return err
	}
	return nil
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

func (s *fileStore) flushLocked() error {
	tmp := s.path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(s.data); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return err
	}
	s.log.Trace("storage snapshot written", logx.String("path", s.path), logx.Int("keys", len(s.data)))
	return nil
}
