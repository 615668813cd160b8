// Package horosafe collects the small security guards docsum applies at its
// edges: secret length checks, path confinement for stored objects, upload
// filename cleaning, and bounded reads.
package horosafe

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"unicode"
	"unicode/utf8"
)

// MinSecretLen is the minimum length for HMAC secrets (256 bits).
const MinSecretLen = 32

// MaxResponseBody caps reads of upstream HTTP responses (1 MiB).
const MaxResponseBody int64 = 1 << 20

var (
	ErrSecretTooShort = fmt.Errorf("horosafe: secret must be at least %d bytes", MinSecretLen)
	ErrPathTraversal  = errors.New("horosafe: path traversal detected")
	ErrTooLarge       = errors.New("horosafe: input exceeds size limit")
)

// ValidateSecret checks that secret is at least MinSecretLen bytes.
func ValidateSecret(secret []byte) error {
	if len(secret) < MinSecretLen {
		return ErrSecretTooShort
	}
	return nil
}

// SafePath joins base and rel, refusing any rel that would land outside base.
func SafePath(base, rel string) (string, error) {
	if rel == "" || strings.Contains(rel, "..") {
		return "", ErrPathTraversal
	}
	root := filepath.Clean(base)
	full := filepath.Join(root, filepath.Clean("/"+rel))
	if full == root || !strings.HasPrefix(full, root+string(filepath.Separator)) {
		return "", ErrPathTraversal
	}
	return full, nil
}

// SafeFilename reduces a client-supplied filename to a bare base name with no
// separators or control characters. The extension is preserved. An input
// that cleans down to nothing becomes "file".
func SafeFilename(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	if i := strings.LastIndexByte(name, '/'); i >= 0 {
		name = name[i+1:]
	}
	name = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, name)
	name = strings.TrimSpace(strings.TrimLeft(name, "."))
	if name == "" {
		return "file"
	}
	if len(name) > 200 {
		ext := filepath.Ext(name)
		if len(ext) > 20 {
			ext = ""
		}
		cut := 200 - len(ext)
		for cut > 0 && !utf8.RuneStart(name[cut]) {
			cut--
		}
		name = name[:cut] + ext
	}
	return name
}

// LimitedReadAll reads at most maxBytes from r. It returns ErrTooLarge when
// r holds more.
func LimitedReadAll(r io.Reader, maxBytes int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, maxBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > maxBytes {
		return nil, fmt.Errorf("%w (%d bytes)", ErrTooLarge, maxBytes)
	}
	return data, nil
}
