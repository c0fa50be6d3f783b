// Package digest renders a snapshot as a Markdown briefing.
package digest

import (
	"fmt"
	"strings"
	"time"

	"github.com/TobiSchelling/CityPulse/internal/article"
	"github.com/TobiSchelling/CityPulse/internal/snapshot"
)

const (
	headlineCount     = 5
	neighborhoodCount = 8
)

var titles = map[article.Category]string{
	article.Local:    "Local",
	article.Politics: "Politics",
	article.Economy:  "Economy",
	article.Tech:     "Tech",
}

var linkEscaper = strings.NewReplacer("[", `\[`, "]", `\]`)

// Markdown renders the snapshot: a headline list of the top articles across
// categories, one section per category in priority order, and a neighborhood
// tally. Sections are separated by horizontal rules.
func Markdown(s *snapshot.Snapshot) string {
	var sections []string
	sections = append(sections, header(s))

	if s.Total() == 0 {
		sections = append(sections, "No articles collected in this run.")
		return strings.Join(sections, "\n\n---\n\n") + "\n"
	}

	sections = append(sections, headlines(s))
	for _, c := range s.OrderedCategories() {
		sections = append(sections, categorySection(c, s.Category(c)))
	}
	if hoods := neighborhoods(s); hoods != "" {
		sections = append(sections, hoods)
	}
	return strings.Join(sections, "\n\n---\n\n") + "\n"
}

// FormatRunTime formats a run timestamp for display, e.g. "Feb 06, 2026 14:05".
func FormatRunTime(t time.Time, loc *time.Location) string {
	if loc != nil {
		t = t.In(loc)
	}
	return t.Format("Jan 02, 2006 15:04")
}

func header(s *snapshot.Snapshot) string {
	line := fmt.Sprintf("# City Pulse: %s\n\n%d articles", FormatRunTime(s.GeneratedAt, nil), s.Total())
	if s.Stats.BackupCalls > 0 {
		line += fmt.Sprintf(", %d backup searches", s.Stats.BackupCalls)
	}
	return line
}

// headlines picks the highest-scored articles across every category. Ties
// keep category priority order.
func headlines(s *snapshot.Snapshot) string {
	var all []article.Article
	for _, c := range s.OrderedCategories() {
		all = append(all, s.Category(c)...)
	}
	top := make([]article.Article, 0, headlineCount)
	for range min(headlineCount, len(all)) {
		best := -1
		for i, a := range all {
			if best < 0 || a.Score > all[best].Score {
				best = i
			}
		}
		top = append(top, all[best])
		all = append(all[:best], all[best+1:]...)
	}

	lines := make([]string, 0, len(top))
	for _, a := range top {
		lines = append(lines, fmt.Sprintf("- %s (%s)", link(a), label(a.Category)))
	}
	return "## Top stories\n\n" + strings.Join(lines, "\n")
}

func categorySection(c article.Category, list []article.Article) string {
	section := "## " + label(c)
	if len(list) == 0 {
		return section + "\n\nNothing new."
	}
	lines := make([]string, 0, len(list))
	for _, a := range list {
		line := fmt.Sprintf("- %s\n  %s", link(a), meta(a))
		if a.Snippet != "" {
			line += "\n  " + a.Snippet
		}
		lines = append(lines, line)
	}
	return section + "\n\n" + strings.Join(lines, "\n")
}

func neighborhoods(s *snapshot.Snapshot) string {
	names := s.NeighborhoodNames()
	if len(names) == 0 {
		return ""
	}
	names = names[:min(neighborhoodCount, len(names))]
	lines := make([]string, 0, len(names))
	for _, n := range names {
		lines = append(lines, fmt.Sprintf("- %s: %d", n, len(s.Neighborhood(n))))
	}
	return "## Neighborhoods\n\n" + strings.Join(lines, "\n")
}

func link(a article.Article) string {
	return fmt.Sprintf("[%s](%s)", linkEscaper.Replace(a.Title), a.URL)
}

func meta(a article.Article) string {
	parts := []string{a.Source}
	if t, ok := a.Published(); ok {
		parts = append(parts, t.Format("Jan 02 15:04"))
	}
	parts = append(parts, fmt.Sprintf("score %d", a.Score))
	if len(a.Neighborhoods) > 0 {
		parts = append(parts, strings.Join(a.Neighborhoods, ", "))
	}
	return "_" + strings.Join(parts, " · ") + "_"
}

func label(c article.Category) string {
	if t, ok := titles[c]; ok {
		return t
	}
	return string(c)
}
