// Package output writes crawl documents in the formats the CLI offers.
package output

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/ramkansal/deepcrawl/pkg/plugin"
)

// Format names a document encoding.
type Format string

const (
	FormatNDJSON Format = "ndjson"
	FormatJSON   Format = "json"
	FormatText   Format = "text"
)

// ParseFormat validates a format name. Empty means NDJSON.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return FormatNDJSON, nil
	case FormatNDJSON, FormatJSON, FormatText:
		return f, nil
	}
	return "", fmt.Errorf("unknown output format %q (want ndjson, json or text)", s)
}

// New returns the writer for format, writing to w.
func New(format Format, w io.Writer) (plugin.OutputWriter, error) {
	switch format {
	case FormatNDJSON, "":
		return NewNDJSONWriter(w), nil
	case FormatJSON:
		return NewJSONWriter(w), nil
	case FormatText:
		return NewTextWriter(w), nil
	}
	return nil, fmt.Errorf("unknown output format %q", format)
}

// Open returns the destination for path. An empty path or "-" means
// stdout, which Close leaves open.
func Open(path string) (io.WriteCloser, error) {
	if path == "" || path == "-" {
		return nopCloser{os.Stdout}, nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("open output: %w", err)
	}
	return f, nil
}

type nopCloser struct{ io.Writer }

func (nopCloser) Close() error { return nil }

func fmtDur(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	m := int(d.Minutes())
	s := int(d.Seconds()) % 60
	return fmt.Sprintf("%dm%ds", m, s)
}
