package audio

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"github.com/lexiqai/speech-gateway/internal/observability"
	"github.com/rs/zerolog"
)

// TempStore hands out uniquely named transient audio files inside one directory
type TempStore struct {
	dir string
}

// NewTempStore creates the directory if needed
func NewTempStore(dir string) (*TempStore, error) {
	if dir == "" {
		dir = os.TempDir()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create temp directory: %w", err)
	}
	return &TempStore{dir: dir}, nil
}

// Dir returns the directory files are created in
func (s *TempStore) Dir() string {
	return s.dir
}

// Acquire creates a new empty file named <uuid>.mp3.
// O_EXCL turns the (negligible) chance of a name collision into an error
// instead of two requests sharing one file.
// The caller must call Release on every exit path.
func (s *TempStore) Acquire(ctx context.Context) (*TempFile, error) {
	path := filepath.Join(s.dir, uuid.NewString()+".mp3")

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return nil, fmt.Errorf("failed to create temp audio file: %w", err)
	}
	observability.TempFileCreated()

	return &TempFile{
		File:   f,
		path:   path,
		logger: observability.FromContext(ctx).With().Str("temp_file", path).Logger(),
	}, nil
}

// Writable checks that a file can be created and removed in the directory
func (s *TempStore) Writable(ctx context.Context) (bool, error) {
	f, err := s.Acquire(ctx)
	if err != nil {
		return false, err
	}
	f.Release()
	return true, nil
}

// TempFile is one transient audio file backing a single response
type TempFile struct {
	*os.File
	path   string
	logger zerolog.Logger
	once   sync.Once
}

// Path returns the absolute location of the file
func (f *TempFile) Path() string {
	return f.path
}

// Release closes and deletes the file. It is idempotent.
// Failures are logged and never returned: the response has already been decided.
func (f *TempFile) Release() {
	f.once.Do(func() {
		if err := f.File.Close(); err != nil && !errors.Is(err, os.ErrClosed) {
			f.logger.Warn().Err(err).Msg("Failed to close temp audio file")
		}

		err := os.Remove(f.path)
		switch {
		case err == nil:
			f.logger.Debug().Msg("Temp audio file removed")
		case errors.Is(err, os.ErrNotExist):
		default:
			f.logger.Error().Err(err).Msg("Failed to remove temp audio file")
			observability.RecordError("cleanup", "audio")
		}
		observability.TempFileRemoved()
	})
}
