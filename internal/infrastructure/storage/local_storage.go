package storage

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
)

// LocalStorage stores blobs under a root directory on the local filesystem.
// It has no notion of checksums, catalog rows, or reference counts; all of
// that is layered above it.
type LocalStorage struct {
	basePath string
	log      zerolog.Logger
}

// NewLocalStorage creates a local filesystem storage backend rooted at basePath.
func NewLocalStorage(basePath string, log zerolog.Logger) (*LocalStorage, error) {
	logger := log.With().Str("component", "local-storage").Logger()

	basePath = strings.TrimSpace(basePath)
	if basePath == "" {
		return nil, fmt.Errorf("MEDIA_LOCAL_STORAGE_PATH is required for the local backend")
	}

	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create local storage directory: %w", err)
	}

	abs, err := filepath.Abs(basePath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve local storage directory: %w", err)
	}

	logger.Info().Str("path", abs).Msg("local storage initialized")

	return &LocalStorage{
		basePath: abs,
		log:      logger,
	}, nil
}

func (l *LocalStorage) fullPath(key string) string {
	return filepath.Join(l.basePath, filepath.FromSlash(key))
}

// Write streams body to the file at key, creating parent directories.
func (l *LocalStorage) Write(ctx context.Context, key string, body io.Reader) (int64, error) {
	fullPath := l.fullPath(key)

	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		return 0, fmt.Errorf("failed to create directory: %w", err)
	}

	file, err := os.Create(fullPath)
	if err != nil {
		return 0, fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	written, err := io.Copy(file, body)
	if err != nil {
		return written, fmt.Errorf("failed to write file: %w", err)
	}

	l.log.Debug().Str("key", key).Int64("bytes", written).Msg("file written to local storage")
	return written, nil
}

// Open returns a reader for the file at key.
func (l *LocalStorage) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	file, err := os.Open(l.fullPath(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("file not found: %s", key)
		}
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	return file, nil
}

// Exists reports whether a file is present at key.
func (l *LocalStorage) Exists(ctx context.Context, key string) (bool, error) {
	_, err := os.Stat(l.fullPath(key))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

// Size returns the byte size of the file at key.
func (l *LocalStorage) Size(ctx context.Context, key string) (int64, error) {
	info, err := os.Stat(l.fullPath(key))
	if err != nil {
		if os.IsNotExist(err) {
			return 0, fmt.Errorf("file not found: %s", key)
		}
		return 0, err
	}
	return info.Size(), nil
}

// Delete removes the file at key. Deleting an already-missing path is not an
// error.
func (l *LocalStorage) Delete(ctx context.Context, key string) error {
	err := os.Remove(l.fullPath(key))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	return nil
}

// Walk visits every regular file under the storage root with its
// slash-separated key and size.
func (l *LocalStorage) Walk(ctx context.Context, fn func(key string, size int64) error) error {
	return filepath.WalkDir(l.basePath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			// Skip dot-directories such as temp staging areas.
			if strings.HasPrefix(d.Name(), ".") && path != l.basePath {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(d.Name(), ".") {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(l.basePath, path)
		if err != nil {
			return err
		}
		return fn(filepath.ToSlash(rel), info.Size())
	})
}

// Health checks if the storage directory is writable.
func (l *LocalStorage) Health(ctx context.Context) error {
	testFile := filepath.Join(l.basePath, ".health_check")
	if err := os.WriteFile(testFile, []byte("ok"), 0644); err != nil {
		return fmt.Errorf("storage directory not writable: %w", err)
	}
	_ = os.Remove(testFile)
	return nil
}
