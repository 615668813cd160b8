package docpipe

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

// csvExtractor emits one line per record with fields joined by ", ".
type csvExtractor struct{}

func (csvExtractor) Extract(ctx context.Context, data []byte) (string, error) {
	r := csv.NewReader(strings.NewReader(decodeText(data)))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	var sb strings.Builder
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("parse csv: %w", err)
		}
		sb.WriteString(strings.Join(rec, ", "))
		sb.WriteByte('\n')
	}
	return sb.String(), nil
}

// jsonExtractor pretty-prints the document with two-space indentation.
// Re-indenting the validated bytes keeps object keys in source order,
// which a decode into map[string]any would not.
type jsonExtractor struct{}

func (jsonExtractor) Extract(ctx context.Context, data []byte) (string, error) {
	src := []byte(decodeText(data))
	if !json.Valid(src) {
		var v any
		if err := json.Unmarshal(src, &v); err != nil {
			return "", fmt.Errorf("parse json: %w", err)
		}
		return "", errors.New("parse json: invalid document")
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, src, "", "  "); err != nil {
		return "", fmt.Errorf("indent json: %w", err)
	}
	return buf.String(), nil
}
