// Package extractor turns conversation chunks into structured fact sets via
// bounded-concurrency model calls. Extraction degrades gracefully: a chunk
// whose call fails contributes an empty fact set and the batch proceeds.
package extractor

// FactSet is the categorized output of extracting one chunk.
type FactSet struct {
	Preferences []string `json:"preferences"`
	Projects    []string `json:"projects"`
	KeyDates    []string `json:"dates"`
	Beliefs     []string `json:"beliefs"`
	Decisions   []string `json:"decisions"`
}

// Categories lists the fact categories in canonical order.
var Categories = []string{"preferences", "projects", "dates", "beliefs", "decisions"}

// ByCategory returns the facts for a named category. Unknown categories
// return nil.
func (f FactSet) ByCategory(category string) []string {
	switch category {
	case "preferences":
		return f.Preferences
	case "projects":
		return f.Projects
	case "dates":
		return f.KeyDates
	case "beliefs":
		return f.Beliefs
	case "decisions":
		return f.Decisions
	default:
		return nil
	}
}

// SetCategory replaces the facts for a named category.
func (f *FactSet) SetCategory(category string, facts []string) {
	switch category {
	case "preferences":
		f.Preferences = facts
	case "projects":
		f.Projects = facts
	case "dates":
		f.KeyDates = facts
	case "beliefs":
		f.Beliefs = facts
	case "decisions":
		f.Decisions = facts
	}
}

// Len counts facts across all categories.
func (f FactSet) Len() int {
	n := 0
	for _, c := range Categories {
		n += len(f.ByCategory(c))
	}
	return n
}

// Empty reports whether no category holds any facts.
func (f FactSet) Empty() bool {
	return f.Len() == 0
}

// ChunkFacts pairs a chunk id with the facts extracted from it.
type ChunkFacts struct {
	ChunkID string  `json:"chunk_id"`
	Facts   FactSet `json:"facts"`
}
