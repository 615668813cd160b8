package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/hazyhaar/docsum/horosafe"
)

// Local keeps objects as files under a root directory. URLs are the key
// appended to BaseURL, e.g. "/media/".
type Local struct {
	root    string
	baseURL string
}

func NewLocal(root, baseURL string) (*Local, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("blob: create root: %w", err)
	}
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	return &Local{root: root, baseURL: baseURL}, nil
}

// Root returns the directory objects are stored in.
func (l *Local) Root() string { return l.root }

func (l *Local) path(key string) (string, error) {
	p, err := horosafe.SafePath(l.root, key)
	if err != nil {
		return "", fmt.Errorf("blob: key %q: %w", key, err)
	}
	return p, nil
}

// stage writes r to a temporary file next to dst and returns its name.
func (l *Local) stage(dst string, r io.Reader) (string, error) {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return "", err
	}
	f, err := os.CreateTemp(filepath.Dir(dst), ".blob-*")
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", err
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", err
	}
	return f.Name(), nil
}

func (l *Local) Put(_ context.Context, key string, r io.Reader, _ string) error {
	dst, err := l.path(key)
	if err != nil {
		return err
	}
	tmp, err := l.stage(dst, r)
	if err != nil {
		return fmt.Errorf("blob: put %s: %w", key, err)
	}
	if err := os.Rename(tmp, dst); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("blob: put %s: %w", key, err)
	}
	return nil
}

func (l *Local) Create(_ context.Context, key string, r io.Reader, _ string) error {
	dst, err := l.path(key)
	if err != nil {
		return err
	}
	tmp, err := l.stage(dst, r)
	if err != nil {
		return fmt.Errorf("blob: create %s: %w", key, err)
	}
	defer os.Remove(tmp)
	// Link fails if dst exists, so concurrent creators cannot both win.
	if err := os.Link(tmp, dst); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return ErrExists
		}
		return fmt.Errorf("blob: create %s: %w", key, err)
	}
	return nil
}

func (l *Local) Get(_ context.Context, key string) (io.ReadCloser, error) {
	p, err := l.path(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	return f, err
}

func (l *Local) Exists(_ context.Context, key string) (bool, error) {
	p, err := l.path(key)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(p)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return err == nil, err
}

func (l *Local) URL(key string) string {
	parts := strings.Split(key, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return l.baseURL + strings.Join(parts, "/")
}

// Handler serves the objects under prefix as static files. Directories and
// keys outside prefix answer 404, so nothing can be listed.
func (l *Local) Handler(prefix string) http.Handler {
	return http.FileServer(http.FS(filesOnly{FS: os.DirFS(l.root), prefix: strings.Trim(prefix, "/") + "/"}))
}

type filesOnly struct {
	fs.FS
	prefix string
}

func (f filesOnly) Open(name string) (fs.File, error) {
	if !strings.HasPrefix(name, f.prefix) || strings.HasPrefix(path.Base(name), ".") {
		return nil, fs.ErrNotExist
	}
	file, err := f.FS.Open(name)
	if err != nil {
		return nil, err
	}
	st, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, err
	}
	if st.IsDir() {
		file.Close()
		return nil, fs.ErrNotExist
	}
	return file, nil
}
