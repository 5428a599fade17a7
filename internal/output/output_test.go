package output

import (
	"bufio"
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ramkansal/deepcrawl/pkg/plugin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleDocs() []plugin.Document {
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	return []plugin.Document{
		{
			PageContent: "Intro <b>paragraph</b>\n\nSecond block",
			Metadata: plugin.DocumentMetadata{
				URL: "https://ex.com/", Title: "Home", Depth: 0, SourceType: plugin.SourceSeed,
				FetchedAt: at, BlockCount: 2, OriginalBlockCount: 3, OrgID: "acme",
			},
		},
		{
			PageContent: "Only block",
			Metadata: plugin.DocumentMetadata{
				URL: "https://ex.com/a", Depth: 1, SourceType: plugin.SourceCrawl,
				FetchedAt: at, BlockCount: 1, OriginalBlockCount: 2, OrgID: "acme", Language: "en",
			},
		},
	}
}

func sampleSummary() *plugin.CrawlSummary {
	return &plugin.CrawlSummary{
		RunID:          "run-1",
		TargetURL:      "https://ex.com/",
		StartedAt:      time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		Duration:       1500 * time.Millisecond,
		TotalDocuments: 2,
		CommonBlocks:   1,
		Stats:          plugin.CrawlStats{PagesFetched: 3, PagesRecorded: 2, PagesSkipped: 1, UniqueBlocks: 4},
	}
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat("")
	require.NoError(t, err)
	assert.Equal(t, FormatNDJSON, f)

	f, err = ParseFormat(" JSON ")
	require.NoError(t, err)
	assert.Equal(t, FormatJSON, f)

	_, err = ParseFormat("yaml")
	assert.Error(t, err)
}

func TestNew(t *testing.T) {
	for _, f := range []Format{FormatNDJSON, FormatJSON, FormatText} {
		w, err := New(f, &bytes.Buffer{})
		require.NoError(t, err)
		assert.Equal(t, string(f), w.Name())
	}
	_, err := New("csv", &bytes.Buffer{})
	assert.Error(t, err)
}

func TestNDJSONWriter(t *testing.T) {
	var buf bytes.Buffer
	w := NewNDJSONWriter(&buf)

	require.NoError(t, w.WriteDocuments(sampleDocs()))
	require.NoError(t, w.Finalize(sampleSummary()))

	var lines []string
	sc := bufio.NewScanner(&buf)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "<b>paragraph</b>")

	var doc map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &doc))
	assert.Equal(t, "Only block", doc["pageContent"])
	meta := doc["metadata"].(map[string]any)
	assert.Equal(t, "https://ex.com/a", meta["url"])
	assert.Equal(t, "crawl", meta["sourceType"])
	assert.Equal(t, "acme", meta["orgId"])
	assert.Equal(t, "en", meta["language"])
	assert.NotContains(t, meta, "title")
}

func TestJSONWriter(t *testing.T) {
	var buf bytes.Buffer
	w := NewJSONWriter(&buf)

	require.NoError(t, w.WriteDocuments(sampleDocs()[:1]))
	require.NoError(t, w.WriteDocuments(sampleDocs()[1:]))
	assert.Zero(t, buf.Len(), "nothing is written before Finalize")
	require.NoError(t, w.Finalize(sampleSummary()))

	var report struct {
		Summary   plugin.CrawlSummary `json:"summary"`
		Documents []plugin.Document   `json:"documents"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &report))
	assert.Equal(t, "run-1", report.Summary.RunID)
	require.Len(t, report.Documents, 2)
	assert.Equal(t, "Home", report.Documents[0].Metadata.Title)
}

func TestJSONWriter_NoDocuments(t *testing.T) {
	var buf bytes.Buffer
	w := NewJSONWriter(&buf)
	require.NoError(t, w.Finalize(sampleSummary()))
	assert.Contains(t, buf.String(), `"documents": []`)
}

func TestTextWriter(t *testing.T) {
	var buf bytes.Buffer
	w := NewTextWriter(&buf)

	require.NoError(t, w.WriteDocuments(sampleDocs()))
	require.NoError(t, w.Finalize(sampleSummary()))

	out := buf.String()
	assert.Contains(t, out, "Target: https://ex.com/")
	assert.Contains(t, out, "[d0 seed] https://ex.com/ (2/3 blocks) Home")
	assert.Contains(t, out, "      | Second block")
	assert.Contains(t, out, "Documents: 2 in 1.5s")
	assert.Contains(t, out, "1 common removed")
	assert.False(t, strings.Contains(out, "Sitemaps:"))
}

func TestOpen(t *testing.T) {
	stdout, err := Open("-")
	require.NoError(t, err)
	assert.NoError(t, stdout.Close())

	path := filepath.Join(t.TempDir(), "docs.ndjson")
	f, err := Open(path)
	require.NoError(t, err)
	_, err = f.Write([]byte("x\n"))
	require.NoError(t, err)
	require.NoError(t, f.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "x\n", string(data))

	_, err = Open(filepath.Join(t.TempDir(), "missing", "out.json"))
	assert.Error(t, err)
}

func TestFmtDur(t *testing.T) {
	assert.Equal(t, "250ms", fmtDur(250*time.Millisecond))
	assert.Equal(t, "2.5s", fmtDur(2500*time.Millisecond))
	assert.Equal(t, "1m5s", fmtDur(65*time.Second))
}
