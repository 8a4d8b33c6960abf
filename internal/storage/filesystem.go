package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// FileStore persists assets onto the local filesystem. It backs development
// deployments and tests where an object storage service is not available.
type FileStore struct {
	basePath string
	baseURL  string
	signer   *Signer
}

// NewFileStore initializes a FileStore rooted at basePath. Signed URLs point at
// baseURL + "/files/<key>"; the api serves them from its /files route.
func NewFileStore(basePath, baseURL string, signer *Signer) (*FileStore, error) {
	basePath = strings.TrimSpace(basePath)
	if basePath == "" {
		return nil, errors.New("storage: base path is required")
	}
	if !filepath.IsAbs(basePath) {
		if abs, err := filepath.Abs(basePath); err == nil {
			basePath = abs
		}
	}
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("storage: ensure base path: %w", err)
	}
	return &FileStore{
		basePath: basePath,
		baseURL:  strings.TrimRight(baseURL, "/"),
		signer:   signer,
	}, nil
}

// BasePath returns the configured root directory.
func (s *FileStore) BasePath() string {
	if s == nil {
		return ""
	}
	return s.basePath
}

// Signer exposes the token signer so HTTP handlers can verify downloads.
func (s *FileStore) Signer() *Signer {
	return s.signer
}

// Get opens the file stored under key.
func (s *FileStore) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	fullPath, err := s.resolve(ctx, key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(fullPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return nil, fmt.Errorf("storage: open file: %w", err)
	}
	return f, nil
}

// Put streams body into a temporary sibling and renames it into place, so a
// partially written object is never observable through Exists. The filesystem
// has nowhere to keep PutOptions; content types are derived from the key when
// the file is served.
func (s *FileStore) Put(ctx context.Context, key string, body io.Reader, _ PutOptions) (string, error) {
	fullPath, err := s.resolve(ctx, key)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
		return "", fmt.Errorf("storage: ensure directory: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(fullPath), ".upload-*")
	if err != nil {
		return "", fmt.Errorf("storage: create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := io.Copy(tmp, body); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return "", fmt.Errorf("storage: write file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return "", fmt.Errorf("storage: close file: %w", err)
	}
	if err := os.Chmod(tmpPath, 0o644); err != nil {
		_ = os.Remove(tmpPath)
		return "", fmt.Errorf("storage: chmod file: %w", err)
	}
	if err := os.Rename(tmpPath, fullPath); err != nil {
		_ = os.Remove(tmpPath)
		return "", fmt.Errorf("storage: publish file: %w", err)
	}
	cleanKey, _ := sanitizeKey(key)
	return "file://" + filepath.ToSlash(filepath.Join(s.basePath, filepath.FromSlash(cleanKey))), nil
}

// Exists reports whether key is present, using only a stat call.
func (s *FileStore) Exists(ctx context.Context, key string) (bool, error) {
	fullPath, err := s.resolve(ctx, key)
	if err != nil {
		return false, err
	}
	info, err := os.Stat(fullPath)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("storage: stat file: %w", err)
	}
	return !info.IsDir(), nil
}

// SignedURL returns an expiring download URL served by the API's /files route.
func (s *FileStore) SignedURL(ctx context.Context, key string, ttl time.Duration) (string, time.Time, error) {
	if s.signer == nil {
		return "", time.Time{}, errors.New("storage: signer not configured")
	}
	cleanKey, err := sanitizeKey(key)
	if err != nil {
		return "", time.Time{}, err
	}
	ok, err := s.Exists(ctx, cleanKey)
	if err != nil {
		return "", time.Time{}, err
	}
	if !ok {
		return "", time.Time{}, fmt.Errorf("%w: %s", ErrNotFound, cleanKey)
	}
	expiry := time.Now().Add(ttl)
	token := s.signer.Sign(cleanKey, expiry)
	u := fmt.Sprintf("%s/files/%s?token=%s", s.baseURL, escapeKeyPath(cleanKey), url.QueryEscape(token))
	return u, expiry, nil
}

func (s *FileStore) resolve(ctx context.Context, key string) (string, error) {
	if s == nil {
		return "", errors.New("storage: no store configured")
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	cleanKey, err := sanitizeKey(key)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.basePath, filepath.FromSlash(cleanKey)), nil
}

func escapeKeyPath(key string) string {
	parts := strings.Split(key, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}

// sanitizeKey normalizes a key and prevents escaping the storage root.
func sanitizeKey(key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", errors.New("storage: key is required")
	}
	key = strings.ReplaceAll(key, "\\", "/")
	key = strings.TrimPrefix(key, "./")
	key = strings.TrimLeft(key, "/")
	cleaned := filepath.ToSlash(filepath.Clean(filepath.FromSlash(key)))
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", errors.New("storage: invalid key")
	}
	return cleaned, nil
}

var _ Store = (*FileStore)(nil)
