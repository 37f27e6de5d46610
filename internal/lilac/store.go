package lilac

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// Store is the single value that survives between invocations.
type Store struct {
	LastCommit string            `json:"last_commit"`
	Failed     map[string]string `json:"failed"`

	path string
}

// LoadStore reads the persistent store, returning an empty one on first
// run. LastCommit stays the empty-tree sentinel until a cycle completes.
func LoadStore(path string) (*Store, error) {
	s := &Store{
		LastCommit: emptyTreeSHA,
		Failed:     make(map[string]string),
		path:       path,
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("failed to read store %s: %w", path, err)
	}
	if err := json.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("failed to parse store %s: %w", path, err)
	}
	if s.LastCommit == "" {
		s.LastCommit = emptyTreeSHA
	}
	if s.Failed == nil {
		s.Failed = make(map[string]string)
	}
	return s, nil
}

// Save writes the store atomically: temp file in the same directory, then
// rename over the old one.
func (s *Store) Save() error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".store-*")
	if err != nil {
		return fmt.Errorf("failed to create temp store: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write store: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to sync store: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to replace store: %w", err)
	}
	return nil
}

// FileLock serializes whole invocations against each other.
type FileLock struct {
	f *os.File
}

// AcquireLock takes an exclusive non-blocking flock on path. A held lock
// means another instance is running; the caller exits.
func AcquireLock(path string) (*FileLock, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open lock file %s: %w", path, err)
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		return nil, fmt.Errorf("another lilac instance holds %s: %w", path, err)
	}
	return &FileLock{f: f}, nil
}

// Release drops the lock.
func (l *FileLock) Release() {
	if l.f != nil {
		unix.Flock(int(l.f.Fd()), unix.LOCK_UN)
		l.f.Close()
		l.f = nil
	}
}
