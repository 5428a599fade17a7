package crawler

import (
	"sync"
	"time"

	"github.com/ramkansal/deepcrawl/internal/extractor"
	"github.com/ramkansal/deepcrawl/pkg/plugin"
)

// PageResult is one collected page and its original block list.
type PageResult struct {
	URL         string
	Title       string
	Depth       int
	SourceType  plugin.SourceType
	FetchedAt   time.Time
	Blocks      []string
	Description string
	Language    string
	Canonical   string
}

// PageStore collects page results and tallies, per distinct block, how
// many pages contain it. It is safe for concurrent use.
type PageStore struct {
	maxPages      int
	minBlockChars int

	mu    sync.Mutex
	pages []PageResult
	freq  map[string]int
}

// NewPageStore creates a store holding at most maxPages pages (0 is
// unlimited). Blocks shorter than minBlockChars are discarded.
func NewPageStore(maxPages, minBlockChars int) *PageStore {
	return &PageStore{
		maxPages:      maxPages,
		minBlockChars: minBlockChars,
		freq:          make(map[string]int),
	}
}

// Record segments rawText into blocks and stores the page. It returns false
// when the cap is already reached or the text yields no qualifying block;
// such pages are not stored and not counted.
func (s *PageStore) Record(p PageResult, rawText string) bool {
	if s.Full() {
		return false
	}
	cleaned := extractor.CleanText(rawText)
	if cleaned == "" {
		return false
	}
	blocks := extractor.Blocks(cleaned, s.minBlockChars)
	if len(blocks) == 0 {
		return false
	}
	p.Blocks = blocks

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.maxPages > 0 && len(s.pages) >= s.maxPages {
		return false
	}
	s.pages = append(s.pages, p)

	counted := make(map[string]struct{}, len(blocks))
	for _, b := range blocks {
		if _, ok := counted[b]; ok {
			continue
		}
		counted[b] = struct{}{}
		s.freq[b]++
	}
	return true
}

// Full reports whether the page cap has been reached.
func (s *PageStore) Full() bool {
	if s.maxPages <= 0 {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pages) >= s.maxPages
}

// Len returns the number of stored pages.
func (s *PageStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pages)
}

// UniqueBlocks returns the number of distinct blocks seen so far.
func (s *PageStore) UniqueBlocks() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.freq)
}

// Frequency returns how many stored pages contain block.
func (s *PageStore) Frequency(block string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.freq[block]
}

// Snapshot returns copies of the page list and the frequency table.
func (s *PageStore) Snapshot() ([]PageResult, map[string]int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pages := make([]PageResult, len(s.pages))
	copy(pages, s.pages)
	freq := make(map[string]int, len(s.freq))
	for k, v := range s.freq {
		freq[k] = v
	}
	return pages, freq
}
