package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/Drakonis96/optimAIzer-sub001/internal/logging"
)

const fileSuffix = ".json"

// FileStore persists one JSON file per key under a base directory. Writes go
// through a temp file and rename so readers never observe partial values.
type FileStore struct {
	baseDir string
	mu      sync.RWMutex
	logger  logging.Logger
}

// NewFile opens (creating if needed) a file-backed store rooted at baseDir.
// A leading ~/ expands to the user home directory.
func NewFile(baseDir string, logger logging.Logger) (*FileStore, error) {
	if strings.HasPrefix(baseDir, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("expand store path: %w", err)
		}
		baseDir = filepath.Join(home, baseDir[2:])
	}
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("create store directory %s: %w", baseDir, err)
	}
	return &FileStore{baseDir: baseDir, logger: logging.OrNop(logger)}, nil
}

func (s *FileStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, err := os.ReadFile(s.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	return data, nil
}

func (s *FileStore) Put(_ context.Context, key string, value []byte) error {
	if key == "" {
		return fmt.Errorf("store: empty key")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeLocked(key, value)
}

func (s *FileStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := os.Remove(s.path(key))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

func (s *FileStore) Scan(_ context.Context, prefix string) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	dirEntries, err := os.ReadDir(s.baseDir)
	if err != nil {
		return nil, fmt.Errorf("scan store directory: %w", err)
	}

	var entries []Entry
	for _, de := range dirEntries {
		if de.IsDir() || !strings.HasSuffix(de.Name(), fileSuffix) {
			continue
		}
		key, err := decodeKey(strings.TrimSuffix(de.Name(), fileSuffix))
		if err != nil {
			s.logger.Warn("Skipping undecodable store file %s: %v", de.Name(), err)
			continue
		}
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		data, readErr := os.ReadFile(filepath.Join(s.baseDir, de.Name()))
		if readErr != nil {
			s.logger.Error("Failed to read store file %s: %v", de.Name(), readErr)
			continue
		}
		entries = append(entries, Entry{Key: key, Value: data})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Key < entries[j].Key })
	return entries, nil
}

// Batch stages every write to a temp file first, then applies renames and
// deletes. Readers hold the lock so they never see a half-applied batch; a
// process crash mid-apply can persist a prefix of the batch.
func (s *FileStore) Batch(_ context.Context, mutations []Mutation) error {
	if err := validateMutations(mutations); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	type staged struct {
		tmp   string
		final string
	}
	var writes []staged
	cleanup := func() {
		for _, w := range writes {
			_ = os.Remove(w.tmp)
		}
	}

	for _, m := range mutations {
		if m.Delete {
			continue
		}
		tmp, err := s.stage(m.Key, m.Value)
		if err != nil {
			cleanup()
			return err
		}
		writes = append(writes, staged{tmp: tmp, final: s.path(m.Key)})
	}

	for _, w := range writes {
		if err := os.Rename(w.tmp, w.final); err != nil {
			cleanup()
			return fmt.Errorf("apply batch write: %w", err)
		}
	}
	for _, m := range mutations {
		if !m.Delete {
			continue
		}
		if err := os.Remove(s.path(m.Key)); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("apply batch delete %s: %w", m.Key, err)
		}
	}
	return nil
}

func (s *FileStore) Close() error { return nil }

func (s *FileStore) writeLocked(key string, value []byte) error {
	tmp, err := s.stage(key, value)
	if err != nil {
		return err
	}
	if err := os.Rename(tmp, s.path(key)); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("write %s: %w", key, err)
	}
	return nil
}

func (s *FileStore) stage(key string, value []byte) (string, error) {
	f, err := os.CreateTemp(s.baseDir, ".staged-*")
	if err != nil {
		return "", fmt.Errorf("stage %s: %w", key, err)
	}
	if _, err := f.Write(value); err != nil {
		_ = f.Close()
		_ = os.Remove(f.Name())
		return "", fmt.Errorf("stage %s: %w", key, err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(f.Name())
		return "", fmt.Errorf("stage %s: %w", key, err)
	}
	return f.Name(), nil
}

func (s *FileStore) path(key string) string {
	return filepath.Join(s.baseDir, encodeKey(key)+fileSuffix)
}

// encodeKey maps a store key to a filesystem-safe name. Every byte outside
// [A-Za-z0-9._-] is percent-encoded so keys with separators round-trip.
func encodeKey(key string) string {
	var b strings.Builder
	b.Grow(len(key))
	for i := 0; i < len(key); i++ {
		c := key[i]
		if c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' ||
			c == '.' || c == '_' || c == '-' {
			b.WriteByte(c)
			continue
		}
		fmt.Fprintf(&b, "%%%02X", c)
	}
	return b.String()
}

func decodeKey(name string) (string, error) {
	var b strings.Builder
	b.Grow(len(name))
	for i := 0; i < len(name); i++ {
		c := name[i]
		if c != '%' {
			b.WriteByte(c)
			continue
		}
		if i+2 >= len(name) {
			return "", fmt.Errorf("truncated escape in %q", name)
		}
		v, err := strconv.ParseUint(name[i+1:i+3], 16, 8)
		if err != nil {
			return "", fmt.Errorf("bad escape in %q: %w", name, err)
		}
		b.WriteByte(byte(v))
		i += 2
	}
	return b.String(), nil
}
