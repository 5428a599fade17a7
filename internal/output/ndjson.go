package output

import (
	"bufio"
	"encoding/json"
	"io"
	"sync"

	"github.com/ramkansal/deepcrawl/pkg/plugin"
)

// NDJSONWriter writes one JSON document per line. The summary is not
// written so that every line has the same shape.
type NDJSONWriter struct {
	mu  sync.Mutex
	buf *bufio.Writer
	enc *json.Encoder
}

// NewNDJSONWriter creates a writer that streams documents to w.
func NewNDJSONWriter(w io.Writer) *NDJSONWriter {
	buf := bufio.NewWriter(w)
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	return &NDJSONWriter{buf: buf, enc: enc}
}

func (w *NDJSONWriter) Name() string { return "ndjson" }

func (w *NDJSONWriter) WriteDocuments(docs []plugin.Document) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	for i := range docs {
		if err := w.enc.Encode(&docs[i]); err != nil {
			return err
		}
	}
	return nil
}

func (w *NDJSONWriter) Finalize(*plugin.CrawlSummary) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.buf.Flush()
}
