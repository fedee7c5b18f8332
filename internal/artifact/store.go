// Package artifact implements the append-only store for rendered artifacts.
// Entries are keyed by batch, task and pane index so concurrent writers never
// collide, and every entry is write-once.
package artifact

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"github.com/labshot/labshot/internal/log"
	"github.com/labshot/labshot/internal/model"
)

var keyPartRe = regexp.MustCompile(`^[a-zA-Z0-9._-]+$`)

// StoreConfig is the configuration for the artifact store.
type StoreConfig struct {
	// RootDir is the directory artifacts are written under.
	RootDir string
	Logger  log.Logger
}

func (c *StoreConfig) defaults() error {
	if c.RootDir == "" {
		return fmt.Errorf("root dir is required")
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "artifact.Store"})
	return nil
}

// Store is a filesystem artifact store.
type Store struct {
	rootDir string
	logger  log.Logger
}

// NewStore creates a new artifact store.
func NewStore(cfg StoreConfig) (*Store, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	if err := os.MkdirAll(cfg.RootDir, 0o755); err != nil {
		return nil, fmt.Errorf("could not create artifact root: %w", err)
	}

	return &Store{rootDir: cfg.RootDir, logger: cfg.Logger}, nil
}

// Write stores one rendered pane for a task and returns its reference.
// Writing the same key twice fails, artifacts are write-once.
func (s *Store) Write(batchID, taskID string, index int, ext string, data []byte) (string, error) {
	if err := checkKeyPart(batchID); err != nil {
		return "", err
	}
	if err := checkKeyPart(taskID); err != nil {
		return "", err
	}

	ref := filepath.Join(batchID, taskID, fmt.Sprintf("%03d%s", index, ext))
	if err := s.writeOnce(ref, data); err != nil {
		return "", err
	}

	return ref, nil
}

// WriteDocument stores a composed document under the batch and returns its
// reference. Same write-once rule as panes.
func (s *Store) WriteDocument(batchID, name string, data []byte) (string, error) {
	if err := checkKeyPart(batchID); err != nil {
		return "", err
	}
	if err := checkKeyPart(name); err != nil {
		return "", err
	}

	ref := filepath.Join(batchID, name)
	if err := s.writeOnce(ref, data); err != nil {
		return "", err
	}

	return ref, nil
}

// DocumentRef returns the reference WriteDocument uses for a given name.
func DocumentRef(batchID, name string) string {
	return filepath.Join(batchID, name)
}

// Read returns the bytes stored under a reference.
func (s *Store) Read(ref string) ([]byte, error) {
	if !filepath.IsLocal(ref) {
		return nil, fmt.Errorf("reference %q escapes the store: %w", ref, model.ErrNotValid)
	}

	data, err := os.ReadFile(filepath.Join(s.rootDir, ref))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("artifact %q: %w", ref, model.ErrNotFound)
		}
		return nil, fmt.Errorf("could not read artifact: %w", err)
	}

	return data, nil
}

func (s *Store) writeOnce(ref string, data []byte) error {
	path := filepath.Join(s.rootDir, ref)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("could not create artifact directory: %w", err)
	}

	// O_EXCL makes the write-once rule atomic.
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return fmt.Errorf("artifact %q: %w", ref, model.ErrAlreadyExists)
		}
		return fmt.Errorf("could not create artifact file: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("could not write artifact: %w", err)
	}

	s.logger.Debugf("Stored artifact %s (%d bytes)", ref, len(data))
	return nil
}

func checkKeyPart(part string) error {
	if !keyPartRe.MatchString(part) {
		return fmt.Errorf("invalid artifact key part %q: %w", part, model.ErrNotValid)
	}
	return nil
}
