package file

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// LocalStore keeps each key as a file under baseDir.
// All operations are confined to baseDir to prevent path traversal attacks.
// Writes go to a temporary file that is renamed into place, so readers never
// observe a partially written value.
type LocalStore struct {
	baseDir  string // Absolute path - all files stored within this directory
	ext      string
	fileMode os.FileMode
}

// LocalOption defines a function that configures LocalStore.
type LocalOption func(*LocalStore)

// WithFileExtension appends ext to every key on disk, e.g. ".json".
func WithFileExtension(ext string) LocalOption {
	return func(s *LocalStore) {
		if ext != "" && !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		s.ext = ext
	}
}

// WithFileMode sets the permissions of written files. Defaults to 0600.
func WithFileMode(mode os.FileMode) LocalOption {
	return func(s *LocalStore) {
		s.fileMode = mode
	}
}

// NewLocalStore creates a new filesystem-backed store.
// baseDir is resolved to absolute path and created if it doesn't exist.
func NewLocalStore(baseDir string, opts ...LocalOption) (*LocalStore, error) {
	if baseDir == "" {
		return nil, ErrInvalidConfig
	}

	// Must resolve to absolute path for security - prevents relative path confusion
	absBaseDir, err := filepath.Abs(baseDir)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to resolve base directory: %v", ErrFailedToGetAbsolutePath, err)
	}

	if err := os.MkdirAll(absBaseDir, 0o700); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFailedToCreateDirectory, err)
	}

	s := &LocalStore{
		baseDir:  absBaseDir,
		fileMode: 0o600,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s, nil
}

// Dir returns the absolute base directory.
func (s *LocalStore) Dir() string {
	return s.baseDir
}

// Get returns the stored value, or nil, nil when the key has never been set.
func (s *LocalStore) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	path, err := s.keyPath(key)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrFailedToReadFile, err)
	}

	return data, nil
}

// Set replaces the value stored under key.
func (s *LocalStore) Set(ctx context.Context, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	path, err := s.keyPath(key)
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("%w: %v", ErrFailedToCreateDirectory, err)
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("%w: %v", ErrFailedToWriteFile, err)
	}
	tmpName := tmp.Name()

	// Clean up the temp file if anything below fails
	committed := false
	defer func() {
		if !committed {
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(value); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("%w: %v", ErrFailedToWriteFile, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("%w: %v", ErrFailedToWriteFile, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%w: %v", ErrFailedToWriteFile, err)
	}
	if err := os.Chmod(tmpName, s.fileMode); err != nil {
		return fmt.Errorf("%w: %v", ErrFailedToWriteFile, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("%w: %v", ErrFailedToWriteFile, err)
	}
	committed = true

	return nil
}

// Close is a no-op; it lets LocalStore share a shutdown path with network stores.
func (s *LocalStore) Close() error {
	return nil
}

func (s *LocalStore) keyPath(key string) (string, error) {
	if key == "" {
		return "", ErrInvalidKey
	}
	// Colons are common in cache keys but awkward on some filesystems.
	name := strings.ReplaceAll(key, ":", "_") + s.ext
	path, err := s.resolvePath(name)
	if err != nil {
		return "", err
	}
	if path == s.baseDir {
		return "", fmt.Errorf("%w: %s", ErrInvalidKey, key)
	}
	return path, nil
}

// resolvePath validates and resolves a path within the base directory.
// Ensures all resolved paths stay within baseDir bounds using string prefix checking.
func (s *LocalStore) resolvePath(path string) (string, error) {
	path = filepath.Clean(path)
	absPath := filepath.Join(s.baseDir, path)

	absPath, err := filepath.Abs(absPath)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrFailedToGetAbsolutePath, err)
	}

	// Security check: ensure path stays within baseDir (prevents ../ attacks)
	if !strings.HasPrefix(absPath, s.baseDir+string(filepath.Separator)) && absPath != s.baseDir {
		return "", fmt.Errorf("%w: %s", ErrInvalidPath, path)
	}

	return absPath, nil
}
