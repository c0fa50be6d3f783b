// Package relevance scores articles for local relevance.
package relevance

import (
	"regexp"
	"strings"
	"time"

	"github.com/TobiSchelling/CityPulse/internal/article"
)

const (
	DefaultPrimaryWeight      = 10
	DefaultAliasWeight        = 5
	DefaultNeighborhoodWeight = 3
	DefaultReputationBonus    = 5
)

// Recency tiers. Only articles strictly in the past earn a bonus.
const (
	freshBonus  = 10 // < 6h
	todayBonus  = 5  // < 24h
	recentBonus = 2  // < 72h
)

// Locale holds the phrase lists the scorer matches against. All entries are
// matched case-insensitively; place names as substrings, outlets as whole
// words of the source name.
type Locale struct {
	Names         []string
	Aliases       []string
	Neighborhoods []string
	Outlets       []string
}

// Scorer computes the integer relevance score. It has no side effects; the
// clock is injected so scores are deterministic in tests.
type Scorer struct {
	names         []string
	aliases       []string
	neighborhoods []string
	outlets       *regexp.Regexp
	displayNames  []string

	PrimaryWeight      int
	AliasWeight        int
	NeighborhoodWeight int
	ReputationBonus    int

	now func() time.Time
}

// New creates a scorer for the given locale with default weights.
func New(loc Locale) *Scorer {
	return &Scorer{
		names:              lowerAll(loc.Names),
		aliases:            lowerAll(loc.Aliases),
		neighborhoods:      lowerAll(loc.Neighborhoods),
		outlets:            outletPattern(loc.Outlets),
		displayNames:       trimAll(loc.Neighborhoods),
		PrimaryWeight:      DefaultPrimaryWeight,
		AliasWeight:        DefaultAliasWeight,
		NeighborhoodWeight: DefaultNeighborhoodWeight,
		ReputationBonus:    DefaultReputationBonus,
		now:                time.Now,
	}
}

// WithClock returns a copy of the scorer using now as its time source.
func (s *Scorer) WithClock(now func() time.Time) *Scorer {
	c := *s
	c.now = now
	return &c
}

// Score returns keyword relevance + recency bonus + source reputation.
func (s *Scorer) Score(a article.Article) int {
	text := strings.ToLower(a.Title + " " + a.Snippet)
	return s.keywordScore(text) + s.recencyBonus(a.PublishedDate) + s.reputationBonus(a.Source)
}

// Neighborhoods returns the configured neighborhood names mentioned in the
// article, in configuration order and spelling.
func (s *Scorer) Neighborhoods(a article.Article) []string {
	text := strings.ToLower(a.Title + " " + a.Snippet)
	var found []string
	for i, n := range s.neighborhoods {
		if strings.Contains(text, n) {
			found = append(found, s.displayNames[i])
		}
	}
	return found
}

func (s *Scorer) keywordScore(text string) int {
	if strings.TrimSpace(text) == "" {
		return 0
	}
	score := 0
	for _, n := range s.names {
		if strings.Contains(text, n) {
			score += s.PrimaryWeight
		}
	}
	for _, al := range s.aliases {
		if strings.Contains(text, al) {
			score += s.AliasWeight
		}
	}
	for _, n := range s.neighborhoods {
		if strings.Contains(text, n) {
			score += s.NeighborhoodWeight
		}
	}
	return score
}

func (s *Scorer) recencyBonus(published string) int {
	t, ok := article.ParseDate(published)
	if !ok {
		return 0
	}
	hours := s.now().Sub(t).Hours()
	// Future-dated or clock-skewed records get nothing.
	if hours <= 0 {
		return 0
	}
	switch {
	case hours < 6:
		return freshBonus
	case hours < 24:
		return todayBonus
	case hours < 72:
		return recentBonus
	default:
		return 0
	}
}

func (s *Scorer) reputationBonus(source string) int {
	if s.outlets == nil || source == "" {
		return 0
	}
	if s.outlets.MatchString(source) {
		return s.ReputationBonus
	}
	return 0
}

// outletPattern matches any outlet bounded by non-word characters, so "KRON"
// credits "KRON 4" but not "Kronos Blog". Returns nil for an empty list.
func outletPattern(outlets []string) *regexp.Regexp {
	quoted := make([]string, 0, len(outlets))
	for _, o := range outlets {
		if o = strings.TrimSpace(o); o != "" {
			quoted = append(quoted, regexp.QuoteMeta(o))
		}
	}
	if len(quoted) == 0 {
		return nil
	}
	return regexp.MustCompile(`(?i)(?:^|\W)(?:` + strings.Join(quoted, "|") + `)(?:\W|$)`)
}

func trimAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func lowerAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.ToLower(strings.TrimSpace(s))
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}
