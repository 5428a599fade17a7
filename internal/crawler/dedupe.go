package crawler

import (
	"math"
	"strings"

	"github.com/ramkansal/deepcrawl/pkg/plugin"
)

// DedupeResult is the output of the common-block pass.
type DedupeResult struct {
	Documents      []plugin.Document
	CommonBlocks   int
	ThresholdCount int
	TotalBlocks    int
	// Applied is false when the pass was skipped (disabled or <= 1 page).
	Applied bool
}

// ThresholdCount is the number of pages a block must appear on to be
// considered common: ceil(pages * clamp(threshold, 0, 1)).
func ThresholdCount(pages int, threshold float64) int {
	return int(math.Ceil(float64(pages) * clampThreshold(threshold)))
}

// Deduplicate removes common blocks from every page and builds the output
// documents. freq must have been computed over exactly these pages. Pages
// left with no blocks are dropped.
func Deduplicate(pages []PageResult, freq map[string]int, enabled bool, threshold float64, orgID string) DedupeResult {
	res := DedupeResult{TotalBlocks: len(freq)}

	var common map[string]struct{}
	if enabled && len(pages) > 1 {
		res.Applied = true
		res.ThresholdCount = ThresholdCount(len(pages), threshold)
		common = make(map[string]struct{})
		for block, n := range freq {
			if n >= res.ThresholdCount {
				common[block] = struct{}{}
			}
		}
		res.CommonBlocks = len(common)
	}

	for _, p := range pages {
		kept := make([]string, 0, len(p.Blocks))
		for _, b := range p.Blocks {
			if _, drop := common[b]; !drop {
				kept = append(kept, b)
			}
		}
		if len(kept) == 0 {
			continue
		}
		res.Documents = append(res.Documents, plugin.Document{
			PageContent: strings.Join(kept, "\n\n"),
			Metadata: plugin.DocumentMetadata{
				URL:                p.URL,
				Title:              p.Title,
				Depth:              p.Depth,
				SourceType:         p.SourceType,
				FetchedAt:          p.FetchedAt,
				BlockCount:         len(kept),
				OriginalBlockCount: len(p.Blocks),
				OrgID:              orgID,
				Description:        p.Description,
				Language:           p.Language,
				Canonical:          p.Canonical,
			},
		})
	}
	return res
}
