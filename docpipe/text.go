package docpipe

import (
	"context"
	"strings"
)

// textExtractor is the fallback for plain text and unrecognized formats:
// bytes are read as UTF-8 with invalid sequences dropped.
type textExtractor struct{}

func (textExtractor) Extract(_ context.Context, data []byte) (string, error) {
	return decodeText(data), nil
}

// decodeText reads bytes as UTF-8, dropping invalid sequences and a leading
// byte order mark, and normalizes line endings to "\n".
func decodeText(data []byte) string {
	s := strings.ToValidUTF8(string(data), "")
	s = strings.TrimPrefix(s, "\ufeff")
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.ReplaceAll(s, "\r", "\n")
}
