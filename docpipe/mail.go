package docpipe

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/emersion/go-mbox"
	"github.com/jhillyerd/enmime"
	"golang.org/x/net/html"
)

// emlExtractor renders a single RFC 5322 message.
type emlExtractor struct{}

func (emlExtractor) Extract(_ context.Context, data []byte) (string, error) {
	return renderMessage(bytes.NewReader(data))
}

// mboxExtractor renders every message of an mbox archive in order.
type mboxExtractor struct{}

func (mboxExtractor) Extract(ctx context.Context, data []byte) (string, error) {
	mr := mbox.NewReader(bytes.NewReader(data))
	var parts []string
	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		r, err := mr.NextMessage()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("read mbox: %w", err)
		}
		text, err := renderMessage(r)
		if err != nil {
			return "", fmt.Errorf("message %d: %w", len(parts)+1, err)
		}
		parts = append(parts, text)
	}
	return strings.Join(parts, "\n\n"), nil
}

var mailHeaders = []string{"From", "To", "Date", "Subject"}

// renderMessage prints the main headers followed by the text body. HTML-only
// messages are reduced to their visible text.
func renderMessage(r io.Reader) (string, error) {
	env, err := enmime.ReadEnvelope(r)
	if err != nil {
		return "", fmt.Errorf("parse message: %w", err)
	}
	var sb strings.Builder
	for _, h := range mailHeaders {
		if v := env.GetHeader(h); v != "" {
			fmt.Fprintf(&sb, "%s: %s\n", h, v)
		}
	}
	body := strings.TrimSpace(env.Text)
	if body == "" && env.HTML != "" {
		if doc, err := html.Parse(strings.NewReader(env.HTML)); err == nil {
			body = markupText(doc, true)
		}
	}
	if body != "" {
		if sb.Len() > 0 {
			sb.WriteByte('\n')
		}
		sb.WriteString(body)
	}
	return sb.String(), nil
}
