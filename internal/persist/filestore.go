package persist

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"signal-core/internal/signal"
)

// FileStore keeps one JSON file per key under a root directory. Writes go to
// a temp file in the same directory, are flushed, then renamed over the final
// path; the directory entry is flushed afterwards so a crash mid-write never
// exposes a partial record.
type FileStore struct {
	root string
}

// NewFileStore creates the root directory if needed.
func NewFileStore(root string) (*FileStore, error) {
	if root == "" {
		return nil, fmt.Errorf("file store root is empty")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create store directory: %w", err)
	}
	return &FileStore{root: root}, nil
}

func (s *FileStore) path(key Key) string {
	name := sanitize(key.StrategyID) + "__" + sanitize(key.Symbol) + ".json"
	return filepath.Join(s.root, name)
}

// Read loads the record for key, or ErrNotFound.
func (s *FileStore) Read(ctx context.Context, key Key) (*signal.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("read record %s: %w", key, err)
	}
	var rec signal.Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decode record %s: %w", key, err)
	}
	return &rec, nil
}

// Write atomically replaces the record for key.
func (s *FileStore) Write(ctx context.Context, key Key, rec signal.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("encode record %s: %w", key, err)
	}

	final := s.path(key)
	tmp, err := os.CreateTemp(s.root, ".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, final); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename record %s: %w", key, err)
	}
	s.syncDir()
	return nil
}

// Delete removes the record for key; a missing record is not an error.
func (s *FileStore) Delete(ctx context.Context, key Key) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.Remove(s.path(key)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete record %s: %w", key, err)
	}
	s.syncDir()
	return nil
}

// syncDir flushes the directory entry after a rename or remove. Not every
// platform supports fsync on directories; errors are ignored.
func (s *FileStore) syncDir() {
	dir, err := os.Open(s.root)
	if err != nil {
		return
	}
	_ = dir.Sync()
	_ = dir.Close()
}

func sanitize(part string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '-' || r == '_' || r == '.':
			return r
		default:
			return '_'
		}
	}, part)
}
