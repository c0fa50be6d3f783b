package collect

import (
	"regexp"
	"strings"

	"github.com/TobiSchelling/CityPulse/internal/article"
)

// tagCategories maps provider-declared tags (feed <category> elements,
// Reddit link flair) to a category. Keys are lowercase.
var tagCategories = map[string]article.Category{
	"local":          article.Local,
	"local news":     article.Local,
	"neighborhoods":  article.Local,
	"community":      article.Local,
	"crime":          article.Local,
	"public safety":  article.Local,
	"transportation": article.Local,
	"transit":        article.Local,
	"housing":        article.Local,
	"education":      article.Local,
	"food":           article.Local,
	"arts":           article.Local,
	"culture":        article.Local,
	"weather":        article.Local,

	"politics":             article.Politics,
	"government":           article.Politics,
	"city hall":            article.Politics,
	"elections":            article.Politics,
	"election":             article.Politics,
	"policy":               article.Politics,
	"board of supervisors": article.Politics,
	"opinion":              article.Politics,

	"business":    article.Economy,
	"economy":     article.Economy,
	"real estate": article.Economy,
	"jobs":        article.Economy,
	"labor":       article.Economy,
	"finance":     article.Economy,
	"retail":      article.Economy,
	"restaurants": article.Economy,

	"tech":           article.Tech,
	"technology":     article.Tech,
	"startups":       article.Tech,
	"ai":             article.Tech,
	"science":        article.Tech,
	"venture":        article.Tech,
	"silicon valley": article.Tech,
}

// categoryKeywords drive content-based inference. Categories are checked in
// the order of keywordOrder; the first with any match wins.
var categoryKeywords = map[article.Category][]string{
	article.Politics: {
		"mayor", "supervisor", "supervisors", "city hall", "ballot", "election",
		"measure", "proposition", "legislation", "lawmakers", "city attorney",
		"district attorney", "governor", "senator", "council", "recall", "vote",
	},
	article.Economy: {
		"business", "economy", "economic", "jobs", "layoffs", "unemployment",
		"rent", "real estate", "housing market", "office vacancy", "retail",
		"restaurant closes", "revenue", "budget deficit", "tourism", "downtown recovery",
	},
	article.Tech: {
		"tech", "startup", "startups", "ai", "artificial intelligence", "software",
		"app", "venture capital", "funding round", "robotaxi", "autonomous",
		"self-driving", "silicon valley", "ipo",
	},
	article.Local: {
		"neighborhood", "muni", "bart", "police", "fire", "park", "school",
		"street", "community", "residents", "homeless", "shooting",
	},
}

var keywordOrder = []article.Category{article.Politics, article.Economy, article.Tech, article.Local}

var keywordPatterns = compileKeywordPatterns()

func compileKeywordPatterns() map[article.Category]*regexp.Regexp {
	out := make(map[article.Category]*regexp.Regexp, len(categoryKeywords))
	for cat, words := range categoryKeywords {
		out[cat] = wordPattern(words)
	}
	return out
}

// wordPattern builds a case-insensitive regexp matching any of words on word
// boundaries, so "ai" does not match "said".
func wordPattern(words []string) *regexp.Regexp {
	quoted := make([]string, 0, len(words))
	for _, w := range words {
		w = strings.TrimSpace(w)
		if w == "" {
			continue
		}
		quoted = append(quoted, regexp.QuoteMeta(strings.ToLower(w)))
	}
	if len(quoted) == 0 {
		return nil
	}
	return regexp.MustCompile(`(?i)\b(?:` + strings.Join(quoted, "|") + `)\b`)
}

// CategoryForTag looks a declared tag up in the tag table.
func CategoryForTag(tag string) (article.Category, bool) {
	c, ok := tagCategories[strings.ToLower(strings.TrimSpace(tag))]
	return c, ok
}

// InferCategory assigns a category from declared tags, then keyword search
// over text, then falls back to local.
func InferCategory(tags []string, text string) article.Category {
	for _, t := range tags {
		if c, ok := CategoryForTag(t); ok {
			return c
		}
	}
	for _, c := range keywordOrder {
		if re := keywordPatterns[c]; re != nil && re.MatchString(text) {
			return c
		}
	}
	return article.Local
}

// resolveCategory honours a configured affinity before inferring.
func resolveCategory(affinity article.Category, tags []string, text string) article.Category {
	if affinity != "" {
		return affinity
	}
	return InferCategory(tags, text)
}
