package objectstore

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

// Dir stores objects as files below a root directory.
type Dir struct {
	root    string
	baseURL string
}

// NewDir creates root if needed. When baseURL is set, returned URLs are
// baseURL + "/" + key; otherwise they are file:// URLs.
func NewDir(root, baseURL string) (*Dir, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("objectstore: create %s: %w", abs, err)
	}
	return &Dir{root: abs, baseURL: strings.TrimRight(baseURL, "/")}, nil
}

// Root returns the absolute root directory.
func (d *Dir) Root() string {
	return d.root
}

// Upload writes data to root/key.
func (d *Dir) Upload(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	if len(data) == 0 {
		return "", ErrEmptyObject
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	clean := filepath.Clean(filepath.FromSlash(key))
	if clean == "." || filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("objectstore: key %q escapes root", key)
	}

	path := filepath.Join(d.root, clean)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", err
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return "", err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return "", err
	}

	if d.baseURL != "" {
		return d.baseURL + "/" + filepath.ToSlash(clean), nil
	}
	return (&url.URL{Scheme: "file", Path: filepath.ToSlash(path)}).String(), nil
}
