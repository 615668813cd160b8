package docpipe

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/hazyhaar/docsum/kit"
)

func TestExtractAll_CSV(t *testing.T) {
	p := New(Config{})
	c, err := p.ExtractAll(context.Background(), []Source{{Name: "data.csv", Data: []byte("a,b\nc,d\ne,f\n")}})
	if err != nil {
		t.Fatal(err)
	}
	if c.Text != "a, b\nc, d\ne, f" {
		t.Errorf("text = %q", c.Text)
	}
	if c.Truncated {
		t.Error("unexpected truncation")
	}
}

func TestExtractAll_NoSources(t *testing.T) {
	p := New(Config{})
	if _, err := p.ExtractAll(context.Background(), nil); !errors.Is(err, ErrNoSources) {
		t.Fatalf("err = %v, want ErrNoSources", err)
	}
}

func TestExtractAll_OrderAndSeparator(t *testing.T) {
	p := New(Config{Parallelism: 8})
	// Slow first extractor; output order must follow input order anyway.
	p.Register(FormatTXT, ExtractorFunc(func(ctx context.Context, data []byte) (string, error) {
		if string(data) == "first" {
			time.Sleep(20 * time.Millisecond)
		}
		return string(data), nil
	}))
	srcs := []Source{
		{Name: "1.txt", Data: []byte("first")},
		{Name: "2.txt", Data: []byte("second")},
		{Name: "3.txt", Data: []byte("third")},
	}
	c, err := p.ExtractAll(context.Background(), srcs)
	if err != nil {
		t.Fatal(err)
	}
	if c.Text != "first\n\nsecond\n\nthird" {
		t.Errorf("text = %q", c.Text)
	}
	for i, r := range c.Results {
		if r.Name != srcs[i].Name {
			t.Errorf("results[%d].Name = %q, want %q", i, r.Name, srcs[i].Name)
		}
	}
}

func TestExtractAll_Placeholders(t *testing.T) {
	p := New(Config{})
	p.Register(FormatPDF, ExtractorFunc(func(context.Context, []byte) (string, error) {
		return "", errors.New("broken xref")
	}))
	c, err := p.ExtractAll(context.Background(), []Source{
		{Name: "uploads/bad.pdf", Data: []byte("%PDF")},
		{Name: "empty.txt", Data: []byte("  \n\t ")},
		{Name: "ok.txt", Data: []byte("fine")},
	})
	if err != nil {
		t.Fatal(err)
	}
	parts := strings.Split(c.Text, Separator)
	if len(parts) != 3 {
		t.Fatalf("got %d parts: %q", len(parts), c.Text)
	}
	if parts[0] != "Could not extract readable text from bad.pdf: broken xref" {
		t.Errorf("failure placeholder = %q", parts[0])
	}
	if parts[1] != "Could not extract readable text from empty.txt. File may be scanned or empty." {
		t.Errorf("empty placeholder = %q", parts[1])
	}
	if parts[2] != "fine" {
		t.Errorf("parts[2] = %q", parts[2])
	}
	if w := c.Warnings(); len(w) != 2 {
		t.Errorf("warnings = %v", w)
	}
}

func TestExtractOne_PanicBecomesPlaceholder(t *testing.T) {
	p := New(Config{})
	p.Register(FormatJSON, ExtractorFunc(func(context.Context, []byte) (string, error) {
		panic("boom")
	}))
	res := p.ExtractOne(context.Background(), Source{Name: "x.json", Data: []byte("{}")})
	if !strings.HasPrefix(res.Text, PlaceholderPrefix+" x.json: ") {
		t.Errorf("text = %q", res.Text)
	}
}

func TestExtractOne_SourceErrorLogged(t *testing.T) {
	var buf bytes.Buffer
	p := New(Config{Logger: slog.New(slog.NewJSONHandler(&buf, nil))})
	ctx := kit.WithTransport(context.Background(), "mcp")
	res := p.ExtractOne(ctx, Source{Name: "gone.pdf", Err: errors.New("stored file is missing")})
	if res.Text != PlaceholderPrefix+" gone.pdf: stored file is missing" {
		t.Errorf("text = %q", res.Text)
	}
	if !strings.Contains(buf.String(), `"transport":"mcp"`) {
		t.Errorf("log lacks transport: %s", buf.String())
	}
}

func TestExtractOne_TooLarge(t *testing.T) {
	p := New(Config{MaxFileSize: 4})
	res := p.ExtractOne(context.Background(), Source{Name: "big.txt", Data: []byte("12345")})
	if !strings.HasPrefix(res.Text, PlaceholderPrefix) || !strings.Contains(res.Text, ErrTooLarge.Error()) {
		t.Errorf("text = %q", res.Text)
	}
}

func TestExtractOne_UnknownFallsBackToText(t *testing.T) {
	p := New(Config{})
	res := p.ExtractOne(context.Background(), Source{Name: "notes.xyz", Data: []byte("plain words\xff")})
	if res.Format != FormatUnknown || res.Text != "plain words" {
		t.Errorf("res = %+v", res)
	}
}

func TestExtractOne_ImagesUseOCR(t *testing.T) {
	r := &fakeRunner{stdout: "scanned words"}
	p := New(Config{Runner: r})
	for _, name := range []string{"a.jpg", "b.PNG", "c.webp"} {
		res := p.ExtractOne(context.Background(), Source{Name: name, Data: []byte("img")})
		if res.Text != "scanned words" {
			t.Errorf("%s: text = %q", name, res.Text)
		}
	}
}

func TestExtractAll_Truncation(t *testing.T) {
	p := New(Config{MaxChars: 10})
	c, err := p.ExtractAll(context.Background(), []Source{{Name: "a.txt", Data: []byte(strings.Repeat("é", 25))}})
	if err != nil {
		t.Fatal(err)
	}
	if !c.Truncated || utf8.RuneCountInString(c.Text) != 10 || !utf8.ValidString(c.Text) {
		t.Errorf("text = %q truncated=%v", c.Text, c.Truncated)
	}
}

func TestExtractAll_DefaultLimit(t *testing.T) {
	p := New(Config{})
	srcs := make([]Source, 5)
	for i := range srcs {
		srcs[i] = Source{Name: fmt.Sprintf("%d.txt", i), Data: []byte(strings.Repeat("x", 5000))}
	}
	c, err := p.ExtractAll(context.Background(), srcs)
	if err != nil {
		t.Fatal(err)
	}
	if n := utf8.RuneCountInString(c.Text); n != DefaultMaxChars {
		t.Errorf("len = %d, want %d", n, DefaultMaxChars)
	}
}

func TestExtractAll_Idempotent(t *testing.T) {
	p := New(Config{})
	srcs := []Source{
		{Name: "a.csv", Data: []byte("1,2\n")},
		{Name: "b.json", Data: []byte(`{"k":"v"}`)},
		{Name: "c.html", Data: []byte("<p>hi</p>")},
	}
	first, err := p.ExtractAll(context.Background(), srcs)
	if err != nil {
		t.Fatal(err)
	}
	second, err := p.ExtractAll(context.Background(), srcs)
	if err != nil {
		t.Fatal(err)
	}
	if first.Text != second.Text {
		t.Errorf("non-deterministic output:\n%q\n%q", first.Text, second.Text)
	}
}

func TestExtractAll_ParallelismLimit(t *testing.T) {
	var cur, peak atomic.Int32
	p := New(Config{Parallelism: 2})
	p.Register(FormatTXT, ExtractorFunc(func(context.Context, []byte) (string, error) {
		n := cur.Add(1)
		for {
			old := peak.Load()
			if n <= old || peak.CompareAndSwap(old, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		cur.Add(-1)
		return "x", nil
	}))
	srcs := make([]Source, 8)
	for i := range srcs {
		srcs[i] = Source{Name: "f.txt", Data: []byte("x")}
	}
	if _, err := p.ExtractAll(context.Background(), srcs); err != nil {
		t.Fatal(err)
	}
	if peak.Load() > 2 {
		t.Errorf("peak concurrency %d > 2", peak.Load())
	}
}

func TestExtractAll_Cancelled(t *testing.T) {
	p := New(Config{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := p.ExtractAll(ctx, []Source{{Name: "a.txt", Data: []byte("x")}}); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		in   string
		max  int
		want string
		cut  bool
	}{
		{"hello", 10, "hello", false},
		{"hello", 5, "hello", false},
		{"hello", 3, "hel", true},
		{"日本語テキスト", 3, "日本語", true},
		{"abc", 0, "abc", false},
	}
	for _, tt := range tests {
		got, cut := Truncate(tt.in, tt.max)
		if got != tt.want || cut != tt.cut {
			t.Errorf("Truncate(%q, %d) = %q, %v; want %q, %v", tt.in, tt.max, got, cut, tt.want, tt.cut)
		}
	}
}
