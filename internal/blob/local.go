package blob

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

// LocalStore keeps objects in a directory and serves them over HTTP under
// baseURL. Used for development and tests.
type LocalStore struct {
	dir     string
	baseURL string
	fetcher *HTTPFetcher
}

func NewLocalStore(dir, baseURL string) (*LocalStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create blob dir: %w", err)
	}
	return &LocalStore{
		dir:     dir,
		baseURL: strings.TrimRight(baseURL, "/"),
		fetcher: NewHTTPFetcher(0),
	}, nil
}

func (s *LocalStore) Put(_ context.Context, name string, data []byte, _ string) (string, error) {
	if err := validName(name); err != nil {
		return "", err
	}
	tmp, err := os.CreateTemp(s.dir, ".upload-*")
	if err != nil {
		return "", fmt.Errorf("create temp object: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("write object: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("close object: %w", err)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(s.dir, name)); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("store object: %w", err)
	}
	return s.baseURL + "/" + url.PathEscape(name), nil
}

// Fetch reads objects of this store from disk and anything else over HTTP.
func (s *LocalStore) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	name, ok := s.objectName(rawURL)
	if !ok {
		return s.fetcher.Fetch(ctx, rawURL)
	}
	data, err := os.ReadFile(filepath.Join(s.dir, name))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetch, err)
	}
	return data, nil
}

func (s *LocalStore) objectName(rawURL string) (string, bool) {
	if s.baseURL == "" || !strings.HasPrefix(rawURL, s.baseURL+"/") {
		return "", false
	}
	name, err := url.PathUnescape(strings.TrimPrefix(rawURL, s.baseURL+"/"))
	if err != nil || validName(name) != nil {
		return "", false
	}
	return name, true
}

// Handler serves stored objects; mount it at the path of baseURL.
func (s *LocalStore) Handler() http.Handler {
	return http.FileServer(http.Dir(s.dir))
}
