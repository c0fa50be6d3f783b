package article

import (
	"fmt"
	"strings"
	"time"
)

// Category is one of the fixed topical buckets.
type Category string

const (
	Local    Category = "local"
	Politics Category = "politics"
	Economy  Category = "economy"
	Tech     Category = "tech"
)

// PriorityOrder returns all categories, most local first. Cross-category
// dedup attributes a shared article to the earliest category in this list.
func PriorityOrder() []Category {
	return []Category{Local, Politics, Economy, Tech}
}

// ParseCategory maps a name to a Category, case-insensitively.
func ParseCategory(s string) (Category, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, c := range PriorityOrder() {
		if string(c) == s {
			return c, nil
		}
	}
	return "", fmt.Errorf("unknown category %q (valid: local, politics, economy, tech)", s)
}

// SourceType identifies the adapter kind that produced an article.
type SourceType string

const (
	SourceFeed       SourceType = "feed"
	SourceReddit     SourceType = "reddit"
	SourceHackerNews SourceType = "hackernews"
	SourceNewsAPI    SourceType = "newsapi"
)

// Article is the canonical record produced by every source adapter.
//
// Title, URL, Snippet, PublishedDate and Source are set once by the adapter.
// The remaining fields are derived by later stages, which work on copies.
type Article struct {
	Title         string `json:"title"`
	URL           string `json:"url"`
	Snippet       string `json:"snippet"`
	PublishedDate string `json:"published_date"`
	Source        string `json:"source"`

	Category      Category   `json:"category,omitempty"`
	Score         int        `json:"score"`
	Neighborhoods []string   `json:"neighborhoods,omitempty"`
	SourceType    SourceType `json:"source_type,omitempty"`
	Priority      int        `json:"priority,omitempty"`
}

// Published returns the parsed publish time, if the date is parseable.
func (a Article) Published() (time.Time, bool) {
	return ParseDate(a.PublishedDate)
}
