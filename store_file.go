package session

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

const defaultFileWatchInterval = 500 * time.Millisecond

// FileStore persists the bundle as a JSON file. Writes go to a temp file in
// the same directory followed by a rename, so concurrent readers in other
// processes observe either the previous bundle or the new one, never a torn
// write. Cross-process change notification is a polling watcher; writes by
// this instance are fingerprinted and skipped.
type FileStore struct {
	path     string
	origin   uuid.UUID
	interval time.Duration
	logger   Logger

	mu       sync.Mutex
	lastHash [sha256.Size]byte
}

var _ CredentialStore = (*FileStore)(nil)

// FileStoreOption customizes a FileStore.
type FileStoreOption func(*FileStore)

// WithFileWatchInterval sets the polling cadence for Watch.
func WithFileWatchInterval(interval time.Duration) FileStoreOption {
	return func(s *FileStore) {
		if interval > 0 {
			s.interval = interval
		}
	}
}

// WithFileStoreLogger overrides the logger.
func WithFileStoreLogger(logger Logger) FileStoreOption {
	return func(s *FileStore) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewFileStore creates a store at path. The parent directory is created on
// first save.
func NewFileStore(path string, opts ...FileStoreOption) *FileStore {
	s := &FileStore{
		path:     path,
		origin:   uuid.New(),
		interval: defaultFileWatchInterval,
		logger:   defLogger{},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}

	return s
}

func (s *FileStore) Save(ctx context.Context, bundle *CredentialBundle) error {
	raw, err := json.Marshal(bundle)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return err
	}

	tmp := fmt.Sprintf("%s.%s.tmp", s.path, s.origin)
	if err := os.WriteFile(tmp, raw, 0o600); err != nil {
		return err
	}

	// The rename and the fingerprint update must be atomic with respect to
	// the watcher, or a poll landing between them reports this write as
	// foreign.
	s.mu.Lock()
	prev := s.lastHash
	s.lastHash = sha256.Sum256(raw)
	if err := os.Rename(tmp, s.path); err != nil {
		s.lastHash = prev
		s.mu.Unlock()
		os.Remove(tmp)
		return err
	}
	s.mu.Unlock()

	return nil
}

func (s *FileStore) Load(ctx context.Context) (*CredentialBundle, error) {
	raw, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	bundle, ok := decodeBundle(raw)
	if !ok {
		s.logger.Warn("credential file is corrupt, clearing: %s", s.path)
		if err := s.Clear(ctx); err != nil {
			return nil, err
		}
		return nil, nil
	}

	return bundle, nil
}

func (s *FileStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	prev := s.lastHash
	s.lastHash = sha256.Sum256(nil)
	err := os.Remove(s.path)
	if err != nil && !os.IsNotExist(err) {
		s.lastHash = prev
		s.mu.Unlock()
		return err
	}
	s.mu.Unlock()

	return nil
}

// Watch polls the file for content changes. File mtimes are too coarse on
// some filesystems, so changes are detected by content hash.
func (s *FileStore) Watch(ctx context.Context) (<-chan ChangeEvent, error) {
	ch := make(chan ChangeEvent, 8)

	seen, _ := s.pollHash()

	go func() {
		defer close(ch)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}

			current, own := s.pollHash()
			if current == seen {
				continue
			}
			seen = current

			if own {
				continue
			}

			select {
			case ch <- ChangeEvent{OccurredAt: time.Now()}:
			case <-ctx.Done():
				return
			}
		}
	}()

	return ch, nil
}

// pollHash reads the file and judges ownership under the same mutex that
// Save and Clear hold while mutating the file, so a poll never compares
// content from one write against the fingerprint of another.
func (s *FileStore) pollHash() (hash [sha256.Size]byte, own bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := os.ReadFile(s.path)
	if err != nil {
		raw = nil
	}
	hash = sha256.Sum256(raw)
	return hash, hash == s.lastHash
}
