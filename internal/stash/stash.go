package stash

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/phrazzld/bookrender/internal/platform/logger"
	"golang.org/x/crypto/blake2b"
)

var (
	// ErrBlobNotFound is returned when no blob is stored under a key.
	ErrBlobNotFound = errors.New("stash blob not found")

	// ErrInvalidKey is returned for keys that could not have been produced by Put.
	ErrInvalidKey = errors.New("invalid stash key")
)

// keyPattern matches "<64 hex digits>" with an optional extension.
var keyPattern = regexp.MustCompile(`^[0-9a-f]{64}(\.[A-Za-z0-9]{1,16})?$`)

// Stash is a content-addressed artifact store.
type Stash interface {
	// Put copies the file at path into the stash and returns its key.
	// Identical content with the same extension yields the same key.
	Put(ctx context.Context, path string) (string, error)

	// Get returns the blob stored under key.
	// Returns ErrBlobNotFound if nothing is stored there.
	Get(ctx context.Context, key string) (*Blob, error)
}

// Blob describes a stored artifact.
type Blob struct {
	Key         string
	Name        string
	ContentType string
	Size        int64

	path string
}

// Open returns a reader over the blob content. The caller closes it.
func (b *Blob) Open() (io.ReadCloser, error) {
	f, err := os.Open(b.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrBlobNotFound, b.Key)
		}
		return nil, fmt.Errorf("opening blob %s: %w", b.Key, err)
	}
	return f, nil
}

// FileStash keeps blobs as flat files in a root directory.
type FileStash struct {
	root   string
	logger *slog.Logger
}

var _ Stash = (*FileStash)(nil)

// NewFileStash creates the root directory if needed.
func NewFileStash(root string, logger *slog.Logger) (*FileStash, error) {
	if root == "" {
		return nil, errors.New("stash root cannot be empty")
	}
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("creating stash root: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &FileStash{
		root:   root,
		logger: logger.With(slog.String("component", "stash")),
	}, nil
}

// Put implements Stash.Put
func (s *FileStash) Put(ctx context.Context, path string) (string, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	src, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("opening artifact: %w", err)
	}
	defer func() { _ = src.Close() }()

	tmp, err := os.CreateTemp(s.root, ".incoming-*")
	if err != nil {
		return "", fmt.Errorf("creating stash temp file: %w", err)
	}
	tmpPath := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = os.Remove(tmpPath)
		}
	}()

	hash, err := blake2b.New256(nil)
	if err != nil {
		_ = tmp.Close()
		return "", fmt.Errorf("initializing hash: %w", err)
	}

	size, err := io.Copy(io.MultiWriter(tmp, hash), src)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return "", fmt.Errorf("copying artifact into stash: %w", err)
	}

	key := hex.EncodeToString(hash.Sum(nil)) + normalizeExt(filepath.Ext(path))
	if err := os.Rename(tmpPath, filepath.Join(s.root, key)); err != nil {
		return "", fmt.Errorf("committing stash blob: %w", err)
	}
	committed = true

	log.Debug("artifact stashed", slog.String("key", key), slog.Int64("size", size))
	return key, nil
}

// Get implements Stash.Get
func (s *FileStash) Get(_ context.Context, key string) (*Blob, error) {
	if !keyPattern.MatchString(key) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}

	path := filepath.Join(s.root, key)
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrBlobNotFound, key)
		}
		return nil, fmt.Errorf("inspecting blob %s: %w", key, err)
	}

	contentType := "application/octet-stream"
	if mt, err := mimetype.DetectFile(path); err == nil {
		contentType = mt.String()
	}

	return &Blob{
		Key:         key,
		Name:        key,
		ContentType: contentType,
		Size:        info.Size(),
		path:        path,
	}, nil
}

func normalizeExt(ext string) string {
	ext = strings.ToLower(ext)
	if ext == "" || !keyPattern.MatchString(strings.Repeat("0", 64)+ext) {
		return ""
	}
	return ext
}
