package output

import (
	"encoding/json"
	"io"
	"sync"

	"github.com/ramkansal/deepcrawl/pkg/plugin"
)

// JSONWriter buffers documents and writes a single indented object
// holding the summary and every document on Finalize.
type JSONWriter struct {
	w    io.Writer
	mu   sync.Mutex
	docs []plugin.Document
}

// NewJSONWriter creates a new JSON output writer.
func NewJSONWriter(w io.Writer) *JSONWriter {
	return &JSONWriter{w: w}
}

func (w *JSONWriter) Name() string { return "json" }

func (w *JSONWriter) WriteDocuments(docs []plugin.Document) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.docs = append(w.docs, docs...)
	return nil
}

type jsonReport struct {
	Summary   *plugin.CrawlSummary `json:"summary"`
	Documents []plugin.Document    `json:"documents"`
}

func (w *JSONWriter) Finalize(summary *plugin.CrawlSummary) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	docs := w.docs
	if docs == nil {
		docs = []plugin.Document{}
	}
	enc := json.NewEncoder(w.w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(jsonReport{Summary: summary, Documents: docs})
}
