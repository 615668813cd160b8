package docpipe

import (
	"bytes"
	"context"
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// markupExtractor handles HTML and XML with the HTML5 parser. Text nodes are
// emitted one per line and script and style bodies are skipped. With page
// set, elements hidden from a browser reader are skipped as well; XML data
// keeps every element.
type markupExtractor struct {
	page bool
}

func (m markupExtractor) Extract(_ context.Context, data []byte) (string, error) {
	doc, err := html.Parse(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("parse markup: %w", err)
	}
	return markupText(doc, m.page), nil
}

var hiddenStylePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)display\s*:\s*none`),
	regexp.MustCompile(`(?i)visibility\s*:\s*hidden`),
	regexp.MustCompile(`(?i)font-size\s*:\s*0([^.0-9]|$)`),
	regexp.MustCompile(`(?i)opacity\s*:\s*0([^.0-9]|$)`),
	regexp.MustCompile(`(?i)position\s*:\s*absolute[^;]*-\d{4,}`),
}

func hasHiddenStyle(n *html.Node) bool {
	for _, a := range n.Attr {
		if a.Key == "hidden" && !strings.EqualFold(strings.TrimSpace(a.Val), "false") {
			return true
		}
		if a.Key != "style" {
			continue
		}
		for _, pat := range hiddenStylePatterns {
			if pat.MatchString(a.Val) {
				return true
			}
		}
	}
	return false
}

// markupText joins the text nodes under n with newlines.
func markupText(n *html.Node, page bool) string {
	var lines []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			if s := strings.TrimSpace(n.Data); s != "" {
				lines = append(lines, s)
			}
			return
		case html.ElementNode:
			switch n.DataAtom {
			case atom.Script, atom.Style:
				return
			case atom.Noscript, atom.Template:
				if page {
					return
				}
			}
			if page && hasHiddenStyle(n) {
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.Join(lines, "\n")
}
