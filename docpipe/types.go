package docpipe

import "fmt"

// Format is the normalized, lowercase extension token produced by Sniff
// (".pdf", ".docx", ...), or FormatUnknown.
type Format string

const (
	FormatPDF  Format = ".pdf"
	FormatDOCX Format = ".docx"
	FormatODT  Format = ".odt"
	FormatCSV  Format = ".csv"
	FormatJSON Format = ".json"
	FormatHTML Format = ".html"
	FormatHTM  Format = ".htm"
	FormatXML  Format = ".xml"
	FormatJPG  Format = ".jpg"
	FormatJPEG Format = ".jpeg"
	FormatPNG  Format = ".png"
	FormatBMP  Format = ".bmp"
	FormatTIFF Format = ".tiff"
	FormatWEBP Format = ".webp"
	FormatXLSX Format = ".xlsx"
	FormatEML  Format = ".eml"
	FormatMBOX Format = ".mbox"
	FormatTXT  Format = ".txt"
	FormatMD   Format = ".md"

	FormatUnknown Format = "unknown"
)

// IsImage reports whether f is routed to OCR.
func (f Format) IsImage() bool {
	switch f {
	case FormatJPG, FormatJPEG, FormatPNG, FormatBMP, FormatTIFF, FormatWEBP:
		return true
	}
	return false
}

// Source is one document handed to the pipeline: its bytes and the name the
// format is sniffed from. The pipeline does not retain it.
type Source struct {
	Name string
	Data []byte
	// Err is set when the bytes could not be read. The source then yields
	// a placeholder naming the cause.
	Err error
}

// Result is the outcome for one Source. Text is never empty: when extraction
// fails or finds nothing it holds a placeholder, and Warning says why.
type Result struct {
	Name    string `json:"name"`
	Format  Format `json:"format"`
	Text    string `json:"text"`
	Warning string `json:"warning,omitempty"`
}

// Combined is the output of ExtractAll.
type Combined struct {
	Text      string   `json:"text"`
	Results   []Result `json:"results"`
	Truncated bool     `json:"truncated"`
}

// Warnings returns the warnings of all results, prefixed with their source.
func (c *Combined) Warnings() []string {
	var out []string
	for _, r := range c.Results {
		if r.Warning != "" {
			out = append(out, fmt.Sprintf("%s: %s", r.Name, r.Warning))
		}
	}
	return out
}
