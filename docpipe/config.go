package docpipe

import "log/slog"

// Config configures a Pipeline. The zero value is usable.
type Config struct {
	// MaxChars bounds the combined text, in runes (default 12000).
	MaxChars int `json:"max_chars" yaml:"max_chars"`

	// MaxFileSize rejects larger sources with a placeholder (default 100 MB).
	MaxFileSize int64 `json:"max_file_size" yaml:"max_file_size"`

	// Parallelism is the number of sources extracted at once (default 4).
	Parallelism int `json:"parallelism" yaml:"parallelism"`

	OCR OCRConfig `json:"ocr" yaml:"ocr"`

	// Runner executes the OCR engine. Nil uses os/exec.
	Runner Runner `json:"-" yaml:"-"`

	Logger *slog.Logger `json:"-" yaml:"-"`
}

// OCRConfig selects the tesseract binary and language.
type OCRConfig struct {
	Command     string `json:"command" yaml:"command"`
	Lang        string `json:"lang" yaml:"lang"`
	TessdataDir string `json:"tessdata_dir" yaml:"tessdata_dir"`
}

const (
	DefaultMaxChars    = 12000
	DefaultMaxFileSize = 100 << 20
)

func (c *Config) defaults() {
	if c.MaxChars <= 0 {
		c.MaxChars = DefaultMaxChars
	}
	if c.MaxFileSize <= 0 {
		c.MaxFileSize = DefaultMaxFileSize
	}
	if c.Parallelism <= 0 {
		c.Parallelism = 4
	}
	if c.OCR.Command == "" {
		c.OCR.Command = "tesseract"
	}
	if c.OCR.Lang == "" {
		c.OCR.Lang = "eng"
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Runner == nil {
		c.Runner = execRunner{logger: c.Logger}
	}
}
