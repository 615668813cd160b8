package docpipe

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"unicode"
	"unicode/utf16"

	ledongthuc "github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"golang.org/x/text/encoding/charmap"
)

// pdfExtractor reads page content streams with pdfcpu. Pages where that
// yields nothing, and files pdfcpu refuses, go through ledongthuc/pdf, which
// understands font encodings and CMaps.
type pdfExtractor struct{}

func (pdfExtractor) Extract(ctx context.Context, data []byte) (string, error) {
	pc, err := api.ReadValidateAndOptimize(bytes.NewReader(data), model.NewDefaultConfiguration())
	if err != nil {
		text, ferr := plainPDFText(data, 0)
		if ferr != nil {
			return "", fmt.Errorf("read pdf: %w", err)
		}
		return text, nil
	}

	pages := make([]string, 0, pc.PageCount)
	missing := 0
	for pageNr := 1; pageNr <= pc.PageCount; pageNr++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		text := extractPageText(pc, pageNr)
		if text == "" {
			missing++
		}
		pages = append(pages, text)
	}

	if missing > 0 {
		for i, text := range pages {
			if text != "" {
				continue
			}
			if alt, err := plainPDFText(data, i+1); err == nil {
				pages[i] = strings.TrimSpace(alt)
			}
		}
	}

	var sb strings.Builder
	for _, text := range pages {
		if text == "" {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteByte('\n')
		}
		sb.WriteString(text)
	}
	return sb.String(), nil
}

// plainPDFText extracts one page (1-based) or, for page 0, the whole document.
func plainPDFText(data []byte, page int) (text string, err error) {
	// ledongthuc/pdf panics on some malformed xref tables.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pdf: %v", r)
		}
	}()

	r, err := ledongthuc.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", err
	}
	first, last := 1, r.NumPage()
	if page > 0 {
		if page > last {
			return "", fmt.Errorf("pdf: page %d out of range", page)
		}
		first, last = page, page
	}

	var sb strings.Builder
	for i := first; i <= last; i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			continue
		}
		s, err := p.GetPlainText(nil)
		if err != nil {
			return "", err
		}
		if s = strings.TrimSpace(s); s != "" {
			if sb.Len() > 0 {
				sb.WriteByte('\n')
			}
			sb.WriteString(s)
		}
	}
	return sb.String(), nil
}

// extractPageText decodes the text operators of one page content stream.
func extractPageText(pc *model.Context, pageNr int) string {
	r, err := pdfcpu.ExtractPageContent(pc, pageNr)
	if err != nil || r == nil {
		return ""
	}
	data, err := io.ReadAll(r)
	if err != nil || len(data) == 0 {
		return ""
	}
	return extractTextFromStream(data)
}

// pdfLiterals returns the raw bodies of the literal strings in line,
// honouring backslash escapes and balanced nested parentheses.
func pdfLiterals(line []byte) [][]byte {
	var out [][]byte
	for i := 0; i < len(line); i++ {
		if line[i] != '(' {
			continue
		}
		depth, j := 1, i+1
		for ; j < len(line) && depth > 0; j++ {
			switch line[j] {
			case '\\':
				j++
			case '(':
				depth++
			case ')':
				depth--
			}
		}
		if depth != 0 {
			break
		}
		out = append(out, line[i+1:j-1])
		i = j - 1
	}
	return out
}

// extractTextFromStream parses PDF content stream operators for text.
func extractTextFromStream(data []byte) string {
	var sb strings.Builder

	lines := bytes.Split(data, []byte{'\n'})
	for _, line := range lines {
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}

		// (text) Tj and [(text) -100 (more)] TJ
		if bytes.HasSuffix(line, []byte("Tj")) || bytes.HasSuffix(line, []byte("TJ")) {
			for _, lit := range pdfLiterals(line) {
				sb.WriteString(decodePDFString(lit))
			}
		}

		// ' operator (move to next line and show text): (text) '
		if bytes.HasSuffix(line, []byte("'")) && bytes.Contains(line, []byte("(")) {
			for _, lit := range pdfLiterals(line) {
				sb.WriteByte('\n')
				sb.WriteString(decodePDFString(lit))
			}
		}

		// Td/TD moves the pen.
		if bytes.HasSuffix(line, []byte("Td")) || bytes.HasSuffix(line, []byte("TD")) {
			if sb.Len() > 0 {
				sb.WriteByte(' ')
			}
		}

		// T* starts a new line.
		if bytes.Equal(line, []byte("T*")) {
			sb.WriteByte('\n')
		}
	}

	return cleanPDFText(sb.String())
}

// decodePDFString resolves the escapes of a literal string and decodes the
// bytes as UTF-16BE when they carry a byte order mark, else as WinAnsi.
func decodePDFString(raw []byte) string {
	b := unescapePDFString(raw)
	if len(b) >= 2 && b[0] == 0xfe && b[1] == 0xff {
		units := make([]uint16, 0, (len(b)-2)/2)
		for i := 2; i+1 < len(b); i += 2 {
			units = append(units, uint16(b[i])<<8|uint16(b[i+1]))
		}
		return string(utf16.Decode(units))
	}
	out, err := charmap.Windows1252.NewDecoder().Bytes(b)
	if err != nil {
		return string(b)
	}
	return string(out)
}

func unescapePDFString(raw []byte) []byte {
	var sb bytes.Buffer
	for i := 0; i < len(raw); i++ {
		if raw[i] == '\\' && i+1 < len(raw) {
			i++
			switch raw[i] {
			case 'n':
				sb.WriteByte('\n')
			case 'r':
				sb.WriteByte('\r')
			case 't':
				sb.WriteByte('\t')
			case '\\':
				sb.WriteByte('\\')
			case '(':
				sb.WriteByte('(')
			case ')':
				sb.WriteByte(')')
			default:
				// \ddd
				if raw[i] >= '0' && raw[i] <= '7' {
					val := int(raw[i] - '0')
					if i+1 < len(raw) && raw[i+1] >= '0' && raw[i+1] <= '7' {
						i++
						val = val*8 + int(raw[i]-'0')
						if i+1 < len(raw) && raw[i+1] >= '0' && raw[i+1] <= '7' {
							i++
							val = val*8 + int(raw[i]-'0')
						}
					}
					sb.WriteByte(byte(val))
				} else {
					sb.WriteByte(raw[i])
				}
			}
		} else {
			sb.WriteByte(raw[i])
		}
	}
	return sb.Bytes()
}

// cleanPDFText collapses whitespace runs and drops non-printable runes.
func cleanPDFText(text string) string {
	var sb strings.Builder
	prevSpace := false
	for _, r := range text {
		if unicode.IsSpace(r) {
			if !prevSpace && sb.Len() > 0 {
				sb.WriteByte(' ')
				prevSpace = true
			}
		} else if unicode.IsPrint(r) {
			sb.WriteRune(r)
			prevSpace = false
		}
	}
	return strings.TrimSpace(sb.String())
}
