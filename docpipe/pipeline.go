// Package docpipe turns uploaded documents of mixed formats into one plain
// text suitable for a language model prompt. Every source yields text: when
// a format cannot be read the source contributes a placeholder instead.
package docpipe

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"

	"github.com/hazyhaar/docsum/kit"
)

// PlaceholderPrefix starts the text of every source that yielded nothing.
const PlaceholderPrefix = "Could not extract readable text from"

// Separator joins per-source texts in the combined output.
const Separator = "\n\n"

// Pipeline extracts text from documents of mixed formats. Register must not
// be called concurrently with extraction.
type Pipeline struct {
	cfg        Config
	logger     *slog.Logger
	extractors map[Format]Extractor
	fallback   Extractor
}

// New builds a pipeline with the built-in extractor for every supported format.
func New(cfg Config) *Pipeline {
	cfg.defaults()
	p := &Pipeline{
		cfg:        cfg,
		logger:     cfg.Logger,
		extractors: make(map[Format]Extractor),
		fallback:   textExtractor{},
	}

	ocr := &ocrExtractor{cfg: cfg.OCR, runner: cfg.Runner}
	for f, e := range map[Format]Extractor{
		FormatPDF:  pdfExtractor{},
		FormatDOCX: docxLayout,
		FormatODT:  odtLayout,
		FormatCSV:  csvExtractor{},
		FormatJSON: jsonExtractor{},
		FormatHTML: markupExtractor{page: true},
		FormatHTM:  markupExtractor{page: true},
		FormatXML:  markupExtractor{},
		FormatXLSX: xlsxExtractor{},
		FormatEML:  emlExtractor{},
		FormatMBOX: mboxExtractor{},
		FormatTXT:  textExtractor{},
		FormatMD:   textExtractor{},
	} {
		p.extractors[f] = e
	}
	for _, f := range SupportedFormats() {
		if f.IsImage() {
			p.extractors[f] = ocr
		}
	}
	return p
}

// Register installs or replaces the extractor for a format.
// FormatUnknown replaces the fallback.
func (p *Pipeline) Register(f Format, e Extractor) {
	if f == FormatUnknown {
		p.fallback = e
		return
	}
	p.extractors[f] = e
}

// Config returns the effective configuration, defaults applied.
func (p *Pipeline) Config() Config { return p.cfg }

func (p *Pipeline) extractor(f Format) Extractor {
	if e, ok := p.extractors[f]; ok {
		return e
	}
	return p.fallback
}

// ExtractOne extracts a single source. It never fails: problems turn into a
// placeholder text and a Warning.
func (p *Pipeline) ExtractOne(ctx context.Context, src Source) Result {
	format := Sniff(src.Name)
	name := baseName(src.Name)
	res := Result{Name: name, Format: format}

	text, err := p.run(ctx, format, src)
	if err != nil {
		xerr := &ExtractionError{Source: name, Format: format, Cause: err}
		p.logger.Warn("docpipe: extraction failed", "source", name, "format", format,
			"transport", kit.GetTransport(ctx), "error", err)
		res.Text = fmt.Sprintf("%s %s: %v", PlaceholderPrefix, name, err)
		res.Warning = xerr.Error()
		return res
	}

	text = strings.TrimSpace(text)
	if text == "" {
		p.logger.Info("docpipe: no text", "source", name, "format", format)
		res.Text = fmt.Sprintf("%s %s. File may be scanned or empty.", PlaceholderPrefix, name)
		res.Warning = "no readable text"
		return res
	}
	p.logger.Debug("docpipe: extracted", "source", name, "format", format, "chars", utf8.RuneCountInString(text))
	res.Text = text
	return res
}

func (p *Pipeline) run(ctx context.Context, format Format, src Source) (text string, err error) {
	if src.Err != nil {
		return "", src.Err
	}
	if int64(len(src.Data)) > p.cfg.MaxFileSize {
		return "", fmt.Errorf("%w (%d bytes, max %d)", ErrTooLarge, len(src.Data), p.cfg.MaxFileSize)
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("extractor panic: %v", r)
		}
	}()
	return p.extractor(format).Extract(ctx, src.Data)
}

// ExtractAll extracts every source and joins the texts with Separator in
// input order, then truncates the result to Config.MaxChars runes.
// Per-source failures never abort the batch; only an empty input or a
// cancelled context return an error.
func (p *Pipeline) ExtractAll(ctx context.Context, srcs []Source) (*Combined, error) {
	if len(srcs) == 0 {
		return nil, ErrNoSources
	}

	results := make([]Result, len(srcs))
	var g errgroup.Group
	g.SetLimit(p.cfg.Parallelism)
	for i, src := range srcs {
		g.Go(func() error {
			results[i] = p.ExtractOne(ctx, src)
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	texts := make([]string, len(results))
	for i, r := range results {
		texts[i] = r.Text
	}
	text, truncated := Truncate(strings.Join(texts, Separator), p.cfg.MaxChars)
	if truncated {
		p.logger.Info("docpipe: combined text truncated", "sources", len(srcs), "max_chars", p.cfg.MaxChars)
	}
	return &Combined{Text: text, Results: results, Truncated: truncated}, nil
}

// ExtractFile reads a file from disk and extracts it.
func (p *Pipeline) ExtractFile(ctx context.Context, path string) (Result, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return Result{}, err
	}
	if fi.IsDir() {
		return Result{}, errors.New("docpipe: path is a directory")
	}
	if fi.Size() > p.cfg.MaxFileSize {
		return Result{}, fmt.Errorf("docpipe: %w (%d bytes, max %d)", ErrTooLarge, fi.Size(), p.cfg.MaxFileSize)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Result{}, err
	}
	return p.ExtractOne(ctx, Source{Name: path, Data: data}), nil
}

// Truncate keeps the first max runes of s. A non-positive max disables it.
func Truncate(s string, max int) (string, bool) {
	if max <= 0 || len(s) <= max {
		return s, false
	}
	n := 0
	for i := range s {
		if n == max {
			return s[:i], true
		}
		n++
	}
	return s, false
}
