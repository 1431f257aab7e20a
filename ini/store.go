// Package ini provides a cross-process-safe key/value store backed by a
// single human-readable INI file. Writers are serialized across processes
// via advisory file locking; writes land atomically via write-to-temp then
// rename, so readers never observe a partial write.
package ini

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"
	goini "gopkg.in/ini.v1"
)

// DefaultLockTimeout bounds how long Store waits to acquire the advisory
// file lock before giving up.
const DefaultLockTimeout = 10 * time.Second

// Store is a cross-process-safe key/value namespace persisted to an INI
// file. A Store is safe for concurrent use by multiple goroutines within one
// process; cross-process safety is provided by a sibling ".lock" file.
type Store struct {
	path        string
	mu          sync.Mutex // excludes goroutines; the flock is re-entrant in-process
	lock        *flock.Flock
	lockTimeout time.Duration
}

// Open returns a Store backed by the file at path. The file need not exist
// yet: Get/GetSection report absence until the first Set creates it. Parent
// directories are created on first write, not on Open.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("ini: path must not be empty")
	}
	return &Store{
		path:        path,
		lock:        flock.New(path + ".lock"),
		lockTimeout: DefaultLockTimeout,
	}, nil
}

// Get re-reads the file under a shared lock and returns the value at
// section/key. The second return value is false if the file, section, or
// key is absent.
func (s *Store) Get(section, key string) (string, bool, error) {
	const op = "ini.Store.Get"

	if err := s.rlock(); err != nil {
		return "", false, fmt.Errorf("%s: %w", op, err)
	}
	defer s.unlock()

	file, err := s.load()
	if err != nil {
		if os.IsNotExist(err) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("%s: %w", op, err)
	}

	sec, err := file.GetSection(section)
	if err != nil {
		return "", false, nil
	}
	k, err := sec.GetKey(key)
	if err != nil {
		return "", false, nil
	}
	return k.String(), true, nil
}

// GetSection re-reads the file under a shared lock and returns every
// key/value pair in section. The second return value is false if the file
// or section is absent.
func (s *Store) GetSection(section string) (map[string]string, bool, error) {
	const op = "ini.Store.GetSection"

	if err := s.rlock(); err != nil {
		return nil, false, fmt.Errorf("%s: %w", op, err)
	}
	defer s.unlock()

	file, err := s.load()
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("%s: %w", op, err)
	}

	sec, err := file.GetSection(section)
	if err != nil {
		return nil, false, nil
	}

	out := make(map[string]string, len(sec.Keys()))
	for _, k := range sec.Keys() {
		out[k.Name()] = k.String()
	}
	return out, true, nil
}

// Set acquires an exclusive lock, reads the current file (if any), mutates
// section/key, and writes the result back atomically. Parent directories
// are created if absent.
func (s *Store) Set(section, key, value string) error {
	const op = "ini.Store.Set"

	if err := s.lockExclusive(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer s.unlock()

	file, err := s.loadOrCreate()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	sec, err := file.NewSection(section)
	if err != nil {
		return fmt.Errorf("%s: new section %q: %w", op, section, err)
	}
	sec.Key(key).SetValue(value)

	if err := s.writeAtomic(file); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// RemoveSection acquires an exclusive lock and deletes section in its
// entirety. It is a no-op if the file or section does not exist.
func (s *Store) RemoveSection(section string) error {
	const op = "ini.Store.RemoveSection"

	if err := s.lockExclusive(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer s.unlock()

	file, err := s.load()
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("%s: %w", op, err)
	}

	file.DeleteSection(section)

	if err := s.writeAtomic(file); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// Path returns the filesystem path this Store reads and writes.
func (s *Store) Path() string {
	return s.path
}

func (s *Store) load() (*goini.File, error) {
	if _, err := os.Stat(s.path); err != nil {
		return nil, err
	}
	return goini.LoadSources(goini.LoadOptions{
		Loose:       true,
		Insensitive: false,
	}, s.path)
}

func (s *Store) loadOrCreate() (*goini.File, error) {
	file, err := s.load()
	if err == nil {
		return file, nil
	}
	if !os.IsNotExist(err) {
		return nil, err
	}
	return goini.Empty(), nil
}

// writeAtomic serializes file to a temp file in the same directory, then
// renames it over s.path. Rename is atomic on POSIX filesystems, so readers
// never observe a partially written file.
func (s *Store) writeAtomic(file *goini.File) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create parent directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".aicm-ini-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) // no-op once renamed

	if _, err := file.WriteTo(tmp); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Chmod(tmpPath, 0o600); err != nil {
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("rename into place: %w", err)
	}
	return nil
}

func (s *Store) rlock() error {
	s.mu.Lock()
	ctx, cancel := lockContext(s.lockTimeout)
	defer cancel()
	locked, err := s.lock.TryRLockContext(ctx, 25*time.Millisecond)
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("acquire shared lock: %w", err)
	}
	if !locked {
		s.mu.Unlock()
		return fmt.Errorf("acquire shared lock: timed out after %s", s.lockTimeout)
	}
	return nil
}

func (s *Store) lockExclusive() error {
	s.mu.Lock()
	ctx, cancel := lockContext(s.lockTimeout)
	defer cancel()
	locked, err := s.lock.TryLockContext(ctx, 25*time.Millisecond)
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("acquire exclusive lock: %w", err)
	}
	if !locked {
		s.mu.Unlock()
		return fmt.Errorf("acquire exclusive lock: timed out after %s", s.lockTimeout)
	}
	return nil
}

func (s *Store) unlock() {
	_ = s.lock.Unlock()
	s.mu.Unlock()
}

func lockContext(timeout time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), timeout)
}
