package docpipe

import (
	"net/url"
	"path"
	"slices"
	"strings"
)

var known = map[Format]bool{
	FormatPDF: true, FormatDOCX: true, FormatODT: true, FormatCSV: true,
	FormatJSON: true, FormatHTML: true, FormatHTM: true, FormatXML: true,
	FormatJPG: true, FormatJPEG: true, FormatPNG: true, FormatBMP: true,
	FormatTIFF: true, FormatWEBP: true, FormatXLSX: true, FormatEML: true,
	FormatMBOX: true, FormatTXT: true, FormatMD: true,
}

// Sniff maps a filename, object key or URL to its Format. It never fails:
// a missing or unrecognized extension yields FormatUnknown.
func Sniff(name string) Format {
	if strings.Contains(name, "://") {
		if u, err := url.Parse(name); err == nil {
			name = u.Path
		}
	}
	name = strings.ReplaceAll(name, `\`, "/")
	ext := Format(strings.ToLower(path.Ext(path.Base(name))))
	if known[ext] {
		return ext
	}
	return FormatUnknown
}

// SupportedFormats lists every Format with a dedicated extractor, sorted.
func SupportedFormats() []Format {
	out := make([]Format, 0, len(known))
	for f := range known {
		out = append(out, f)
	}
	slices.Sort(out)
	return out
}

// baseName is the display name used in placeholders.
func baseName(name string) string {
	if strings.Contains(name, "://") {
		if u, err := url.Parse(name); err == nil {
			name = u.Path
		}
	}
	name = strings.ReplaceAll(name, `\`, "/")
	if b := path.Base(name); b != "." && b != "/" {
		return b
	}
	return name
}
