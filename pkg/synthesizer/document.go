// Package synthesizer turns a consolidated fact set into the final memory
// document: a fixed-section narrative profile validated against placeholder
// output before it is accepted.
package synthesizer

import (
	"fmt"
	"strings"
	"time"
)

// Sections holds the document body, one narrative per fact category.
type Sections struct {
	Preferences string `json:"preferences"`
	Projects    string `json:"projects"`
	KeyDates    string `json:"dates"`
	Beliefs     string `json:"beliefs"`
	Decisions   string `json:"decisions"`
}

// sectionLayout fixes the render order and headings.
var sectionLayout = []struct {
	key   string
	title string
}{
	{"preferences", "Preferences & Tastes"},
	{"projects", "Projects & Work"},
	{"dates", "Key Dates"},
	{"beliefs", "Beliefs & Values"},
	{"decisions", "Decisions"},
}

func (s Sections) byKey(key string) string {
	switch key {
	case "preferences":
		return s.Preferences
	case "projects":
		return s.Projects
	case "dates":
		return s.KeyDates
	case "beliefs":
		return s.Beliefs
	case "decisions":
		return s.Decisions
	default:
		return ""
	}
}

// MemoryDocument is the pipeline's end product. Valid is set by the
// synthesizer's self-check; consumers must not serve invalid documents.
type MemoryDocument struct {
	Sections    Sections  `json:"sections"`
	GeneratedAt time.Time `json:"generated_at"`
	Valid       bool      `json:"valid"`
}

// Markdown renders the document with its fixed headings.
func (d MemoryDocument) Markdown() string {
	var b strings.Builder
	b.WriteString("# Memory\n")
	b.WriteString(fmt.Sprintf("_Generated %s_\n", d.GeneratedAt.Format(time.RFC3339)))
	for _, section := range sectionLayout {
		b.WriteString(fmt.Sprintf("\n## %s\n\n%s\n", section.title, strings.TrimSpace(d.Sections.byKey(section.key))))
	}
	return b.String()
}

// placeholderMarkers are boilerplate phrases models emit instead of real
// content. A section containing any of them fails validation.
var placeholderMarkers = []string{
	"not enough data",
	"insufficient data",
	"no information available",
	"nothing to report",
	"unable to determine",
	"[placeholder]",
}

// validate returns the reason a document's sections are unacceptable, or ""
// when every section carries real content.
func validate(s Sections) string {
	for _, section := range sectionLayout {
		body := strings.TrimSpace(s.byKey(section.key))
		if body == "" {
			return fmt.Sprintf("section %q is empty", section.key)
		}
		lower := strings.ToLower(body)
		for _, marker := range placeholderMarkers {
			if strings.Contains(lower, marker) {
				return fmt.Sprintf("section %q contains placeholder text %q", section.key, marker)
			}
		}
	}
	return ""
}
