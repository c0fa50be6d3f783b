// Package snapshot builds the read-side view of an aggregation run: the
// per-category lists plus lookup indices by neighborhood and by source.
package snapshot

import (
	"sort"
	"strings"
	"time"

	"github.com/TobiSchelling/CityPulse/internal/aggregate"
	"github.com/TobiSchelling/CityPulse/internal/article"
)

// Snapshot is an immutable view of one run.
type Snapshot struct {
	RunID       string                                 `json:"run_id"`
	GeneratedAt time.Time                              `json:"generated_at"`
	Categories  map[article.Category][]article.Article `json:"categories"`

	// Indices keyed by the display name; lookups are case-insensitive.
	ByNeighborhood map[string][]article.Article `json:"by_neighborhood"`
	BySource       map[string][]article.Article `json:"by_source"`

	Stats aggregate.RunStats `json:"stats"`
}

// Build indexes an aggregation result. Index lists follow category priority
// order, then rank within the category.
func Build(r *aggregate.Result) *Snapshot {
	s := &Snapshot{
		RunID:          r.Stats.RunID,
		GeneratedAt:    r.Stats.FinishedAt,
		Categories:     make(map[article.Category][]article.Article, len(r.Categories)),
		ByNeighborhood: make(map[string][]article.Article),
		BySource:       make(map[string][]article.Article),
		Stats:          r.Stats,
	}
	if s.GeneratedAt.IsZero() {
		s.GeneratedAt = time.Now()
	}

	for _, c := range orderedCategories(r.Categories) {
		list := append([]article.Article{}, r.Categories[c]...)
		s.Categories[c] = list
		for _, a := range list {
			for _, n := range a.Neighborhoods {
				s.ByNeighborhood[n] = append(s.ByNeighborhood[n], a)
			}
			if a.Source != "" {
				s.BySource[a.Source] = append(s.BySource[a.Source], a)
			}
		}
	}
	return s
}

// FromCategories rebuilds a snapshot from stored category lists.
func FromCategories(runID string, generatedAt time.Time, cats map[article.Category][]article.Article, stats aggregate.RunStats) *Snapshot {
	stats.RunID = runID
	if stats.FinishedAt.IsZero() {
		stats.FinishedAt = generatedAt
	}
	return Build(&aggregate.Result{Categories: cats, Stats: stats})
}

// Total returns the number of articles across categories.
func (s *Snapshot) Total() int {
	n := 0
	for _, list := range s.Categories {
		n += len(list)
	}
	return n
}

// Category returns the ranked list for c.
func (s *Snapshot) Category(c article.Category) []article.Article {
	return s.Categories[c]
}

// OrderedCategories returns the categories present, in priority order.
func (s *Snapshot) OrderedCategories() []article.Category {
	return orderedCategories(s.Categories)
}

// Neighborhood returns the articles mentioning name, matched
// case-insensitively.
func (s *Snapshot) Neighborhood(name string) []article.Article {
	return lookup(s.ByNeighborhood, name)
}

// Source returns the articles from the named outlet or provider.
func (s *Snapshot) Source(name string) []article.Article {
	return lookup(s.BySource, name)
}

// NeighborhoodNames returns the indexed neighborhoods sorted by article
// count, then name.
func (s *Snapshot) NeighborhoodNames() []string {
	return rankedKeys(s.ByNeighborhood)
}

// SourceNames returns the indexed sources sorted by article count, then name.
func (s *Snapshot) SourceNames() []string {
	return rankedKeys(s.BySource)
}

func lookup(index map[string][]article.Article, name string) []article.Article {
	if list, ok := index[name]; ok {
		return list
	}
	for k, list := range index {
		if strings.EqualFold(k, strings.TrimSpace(name)) {
			return list
		}
	}
	return nil
}

func rankedKeys(index map[string][]article.Article) []string {
	keys := make([]string, 0, len(index))
	for k := range index {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if len(index[keys[i]]) != len(index[keys[j]]) {
			return len(index[keys[i]]) > len(index[keys[j]])
		}
		return keys[i] < keys[j]
	})
	return keys
}

func orderedCategories(m map[article.Category][]article.Article) []article.Category {
	var out []article.Category
	seen := make(map[article.Category]bool)
	for _, c := range article.PriorityOrder() {
		if _, ok := m[c]; ok {
			out = append(out, c)
			seen[c] = true
		}
	}
	var extra []article.Category
	for c := range m {
		if !seen[c] {
			extra = append(extra, c)
		}
	}
	sort.Slice(extra, func(i, j int) bool { return extra[i] < extra[j] })
	return append(out, extra...)
}
