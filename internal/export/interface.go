package export

import (
	"fmt"
	"io"
	"strings"
)

// Exporter writes a transcript in one output format
type Exporter interface {
	Export(t *Transcript, w io.Writer) error
	Extension() string
}

var formats = map[string]func() Exporter{
	"jsonl":    func() Exporter { return &JSONLExporter{} },
	"md":       func() Exporter { return &MarkdownExporter{} },
	"markdown": func() Exporter { return &MarkdownExporter{} },
	"yaml":     func() Exporter { return &YAMLExporter{} },
	"yml":      func() Exporter { return &YAMLExporter{} },
	"json":     func() Exporter { return &JSONExporter{} },
}

// Formats lists the canonical format names
func Formats() []string {
	return []string{"jsonl", "md", "yaml", "json"}
}

// NewExporter returns a fresh exporter for format. Names are matched
// case-insensitively and "markdown" and "yml" are accepted as aliases.
func NewExporter(format string) (Exporter, error) {
	newFn, ok := formats[strings.ToLower(strings.TrimSpace(format))]
	if !ok {
		return nil, fmt.Errorf("unsupported format: %q (supported: %s)", format, strings.Join(Formats(), ", "))
	}
	return newFn(), nil
}
