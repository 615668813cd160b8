package docpipe

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// wordprocessing describes where a zipped XML word-processing format keeps
// its body and which elements carry paragraphs and inline whitespace.
type wordprocessing struct {
	member string
	para   map[string]bool
	// run is the only element whose character data is text; empty means
	// any character data inside a paragraph counts.
	run   string
	tab   string
	brk   map[string]bool
	space string // ODF <text:s text:c="n"/>
	// skip holds property containers whose children are not content,
	// such as the tab stop list of a docx paragraph.
	skip map[string]bool
}

var (
	docxLayout = wordprocessing{
		member: "word/document.xml",
		para:   map[string]bool{"p": true},
		run:    "t",
		tab:    "tab",
		brk:    map[string]bool{"br": true, "cr": true},
		skip:   map[string]bool{"pPr": true, "rPr": true},
	}
	odtLayout = wordprocessing{
		member: "content.xml",
		para:   map[string]bool{"p": true, "h": true},
		tab:    "tab",
		brk:    map[string]bool{"line-break": true},
		space:  "s",
	}
)

// Extract emits every paragraph of the body followed by a newline, in
// document order.
func (w wordprocessing) Extract(ctx context.Context, data []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("open zip: %w", err)
	}
	var body *zip.File
	for _, f := range zr.File {
		if f.Name == w.member {
			body = f
			break
		}
	}
	if body == nil {
		return "", fmt.Errorf("%s not found in archive", w.member)
	}
	rc, err := body.Open()
	if err != nil {
		return "", fmt.Errorf("open %s: %w", w.member, err)
	}
	defer rc.Close()

	var (
		out   strings.Builder
		para  strings.Builder
		depth int // nested paragraphs, e.g. ODF notes
		inRun bool
		skip  int
	)
	dec := xml.NewDecoder(rc)
	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("parse %s: %w", w.member, err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			name := t.Name.Local
			if skip > 0 || w.skip[name] {
				skip++
				continue
			}
			switch {
			case w.para[name]:
				if depth == 0 {
					para.Reset()
				}
				depth++
			case depth == 0:
			case name == w.run:
				inRun = true
			case name == w.tab:
				para.WriteByte('\t')
			case w.brk[name]:
				para.WriteByte('\n')
			case w.space != "" && name == w.space:
				n := 1
				for _, a := range t.Attr {
					if a.Name.Local == "c" {
						if v, err := strconv.Atoi(a.Value); err == nil && v > 0 {
							n = v
						}
					}
				}
				para.WriteString(strings.Repeat(" ", n))
			}
		case xml.CharData:
			if skip == 0 && depth > 0 && (w.run == "" || inRun) {
				para.Write(t)
			}
		case xml.EndElement:
			if skip > 0 {
				skip--
				continue
			}
			name := t.Name.Local
			switch {
			case w.para[name] && depth > 0:
				depth--
				if depth == 0 {
					out.WriteString(para.String())
					out.WriteByte('\n')
				}
			case name == w.run:
				inRun = false
			}
		}
	}
	return out.String(), nil
}
