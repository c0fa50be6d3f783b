// Package dedup canonicalizes article URLs and removes duplicate articles
// within and across categories.
package dedup

import (
	"net/url"
	"sort"
	"strings"

	"github.com/TobiSchelling/CityPulse/internal/article"
)

// trackingParams are dropped during normalization. Anything not listed here
// (pagination, item ids, search terms) is kept.
var trackingParams = map[string]struct{}{
	"fbclid":   {},
	"gclid":    {},
	"dclid":    {},
	"msclkid":  {},
	"yclid":    {},
	"mc_cid":   {},
	"mc_eid":   {},
	"igshid":   {},
	"ref":      {},
	"ref_src":  {},
	"ref_url":  {},
	"referrer": {},
	"source":   {},
	"_ga":      {},
	"_hsenc":   {},
	"_hsmi":    {},
	"cmpid":    {},
	"ocid":     {},
}

func isTracking(key string) bool {
	k := strings.ToLower(key)
	if strings.HasPrefix(k, "utm_") {
		return true
	}
	_, ok := trackingParams[k]
	return ok
}

// NormalizeURL returns the dedup key for a URL: host+path[?sorted-query]
// without scheme, "www.", trailing slash, fragment or tracking parameters.
func NormalizeURL(raw string) string {
	raw = strings.TrimSpace(raw)
	u, err := url.Parse(raw)
	if err == nil && u.Host != "" {
		return canonical(u)
	}
	// Keys are scheme-less, so "x.com/a" and "x.com:8080/a" must parse
	// again here. Go reads the ported form as scheme "x.com" with an opaque
	// "8080/a".
	if schemeless(raw, u, err) {
		if u2, err2 := url.Parse("http://" + raw); err2 == nil && u2.Host != "" {
			return canonical(u2)
		}
	}
	return fallback(raw)
}

func schemeless(raw string, u *url.URL, err error) bool {
	if raw == "" || strings.HasPrefix(raw, "/") {
		return false
	}
	if i := strings.Index(raw, "://"); i > 0 && !strings.ContainsAny(raw[:i], "/?#") {
		return false
	}
	if err != nil || u.Scheme == "" {
		return true
	}
	return u.Opaque != "" && u.Opaque[0] >= '0' && u.Opaque[0] <= '9'
}

func canonical(u *url.URL) string {
	host := strings.ToLower(u.Host)
	for strings.HasPrefix(host, "www.") {
		host = host[len("www."):]
	}

	path := strings.TrimRight(u.EscapedPath(), "/")

	type kv struct{ k, v string }
	var kept []kv
	for key, values := range u.Query() {
		if isTracking(key) {
			continue
		}
		for _, v := range values {
			kept = append(kept, kv{key, v})
		}
	}
	sort.Slice(kept, func(i, j int) bool {
		if kept[i].k != kept[j].k {
			return kept[i].k < kept[j].k
		}
		return kept[i].v < kept[j].v
	})

	var b strings.Builder
	b.WriteString(host)
	b.WriteString(path)
	for i, p := range kept {
		if i == 0 {
			b.WriteByte('?')
		} else {
			b.WriteByte('&')
		}
		b.WriteString(url.QueryEscape(p.k))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(p.v))
	}
	return b.String()
}

func fallback(raw string) string {
	s := strings.ToLower(raw)
	if i := strings.IndexByte(s, '#'); i >= 0 {
		s = s[:i]
	}
	return s
}

// WithinCategory keeps the first article for each normalized URL, preserving
// input order.
func WithinCategory(articles []article.Article) []article.Article {
	seen := make(map[string]struct{}, len(articles))
	out := make([]article.Article, 0, len(articles))
	for _, a := range articles {
		key := NormalizeURL(a.URL)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, a)
	}
	return out
}

// AcrossCategories attributes each normalized URL to exactly one category:
// the first one in article.PriorityOrder that contains it. Categories not in
// the priority order are processed afterwards in name order. The input map is
// not modified.
func AcrossCategories(byCategory map[article.Category][]article.Article) map[article.Category][]article.Article {
	out := make(map[article.Category][]article.Article, len(byCategory))
	kept := make(map[string]struct{})

	for _, cat := range walkOrder(byCategory) {
		list := byCategory[cat]
		filtered := make([]article.Article, 0, len(list))
		for _, a := range list {
			key := NormalizeURL(a.URL)
			if _, ok := kept[key]; ok {
				continue
			}
			kept[key] = struct{}{}
			filtered = append(filtered, a)
		}
		out[cat] = filtered
	}
	return out
}

func walkOrder(byCategory map[article.Category][]article.Article) []article.Category {
	order := article.PriorityOrder()
	known := make(map[article.Category]struct{}, len(order))
	var walk []article.Category
	for _, c := range order {
		known[c] = struct{}{}
		if _, ok := byCategory[c]; ok {
			walk = append(walk, c)
		}
	}

	var extra []article.Category
	for c := range byCategory {
		if _, ok := known[c]; !ok {
			extra = append(extra, c)
		}
	}
	sort.Slice(extra, func(i, j int) bool { return extra[i] < extra[j] })
	return append(walk, extra...)
}
