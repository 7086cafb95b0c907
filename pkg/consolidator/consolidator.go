// Package consolidator merges per-chunk fact sets into one deduplicated set
// and compacts oversized sets down to a token budget through recursive model
// summarization.
package consolidator

import (
	"strings"

	"github.com/soulprintco/imprint/pkg/chunker"
	"github.com/soulprintco/imprint/pkg/extractor"
)

// Consolidate unions all chunk fact sets per category, dropping exact
// duplicates. First occurrence wins, so chunk order determines fact order.
func Consolidate(sets []extractor.ChunkFacts) extractor.FactSet {
	var out extractor.FactSet
	for _, category := range extractor.Categories {
		seen := map[string]bool{}
		var merged []string
		for _, cf := range sets {
			for _, fact := range cf.Facts.ByCategory(category) {
				fact = strings.TrimSpace(fact)
				if fact == "" || seen[fact] {
					continue
				}
				seen[fact] = true
				merged = append(merged, fact)
			}
		}
		out.SetCategory(category, merged)
	}
	return out
}

// FactTokens estimates the token footprint of a fact set, counting a
// newline separator per fact.
func FactTokens(facts extractor.FactSet) int {
	total := 0
	for _, category := range extractor.Categories {
		for _, fact := range facts.ByCategory(category) {
			total += chunker.EstimateTokens(fact) + 1
		}
	}
	return total
}
