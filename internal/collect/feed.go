package collect

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/TobiSchelling/CityPulse/internal/article"
	"github.com/TobiSchelling/CityPulse/internal/config"
	"github.com/TobiSchelling/CityPulse/internal/fetch"
)

// DefaultMaxItems caps the entries converted per feed.
const DefaultMaxItems = 30

// FeedItem is one entry as read from a feed document, before cleaning.
type FeedItem struct {
	Title     string
	Link      string
	Summary   string
	Published string
	Tags      []string
}

// FeedParser turns a raw feed document into entries. Entries missing a title
// or link are dropped by the parser.
type FeedParser interface {
	Parse(data []byte) ([]FeedItem, error)
}

// NewParser returns the parser registered under name. Empty means tolerant.
func NewParser(name string) (FeedParser, error) {
	switch strings.ToLower(name) {
	case "", "tolerant":
		return TolerantParser{}, nil
	case "strict":
		return NewStrictParser(), nil
	default:
		return nil, fmt.Errorf("unknown feed parser %q", name)
	}
}

// FeedAdapter reads a single RSS or Atom feed.
type FeedAdapter struct {
	feed     config.Feed
	name     string
	affinity article.Category
	client   *fetch.Client
	parser   FeedParser
	maxItems int
	now      func() time.Time
}

// NewFeedAdapter creates an adapter for one configured feed.
func NewFeedAdapter(feed config.Feed, client *fetch.Client) (*FeedAdapter, error) {
	parser, err := NewParser(feed.Parser)
	if err != nil {
		return nil, fmt.Errorf("feed %s: %w", feed.URL, err)
	}
	name := feed.Name
	if name == "" {
		name = extractSourceName(feed.URL)
	}
	maxItems := feed.MaxItems
	if maxItems <= 0 {
		maxItems = DefaultMaxItems
	}
	return &FeedAdapter{
		feed:     feed,
		name:     name,
		affinity: config.Affinity(feed.Category),
		client:   client,
		parser:   parser,
		maxItems: maxItems,
		now:      time.Now,
	}, nil
}

// WithParser swaps the parser. Used to plug in alternative implementations.
func (f *FeedAdapter) WithParser(p FeedParser) *FeedAdapter {
	f.parser = p
	return f
}

func (f *FeedAdapter) Name() string { return f.name }
func (f *FeedAdapter) Kind() article.SourceType { return article.SourceFeed }

// IsAvailable probes the feed URL.
func (f *FeedAdapter) IsAvailable(ctx context.Context) bool {
	return f.client.Probe(ctx, f.feed.URL)
}

// FetchArticles downloads and converts the feed.
func (f *FeedAdapter) FetchArticles(ctx context.Context, opts FetchOptions) *Result {
	r := &Result{}
	guard(f.name, r, func() {
		body, err := f.client.Get(ctx, f.feed.URL, map[string]string{
			"Accept": "application/rss+xml, application/atom+xml, application/xml;q=0.9, */*;q=0.8",
		})
		if err != nil {
			log.Printf("Warning: failed to fetch feed %s: %v", f.name, err)
			r.fail()
			return
		}

		items, err := f.parser.Parse(body)
		if err != nil {
			log.Printf("Warning: failed to parse feed %s: %v", f.name, err)
			r.fail()
			return
		}
		r.ok()

		fetchedAt := f.now()
		for _, item := range items {
			if len(r.Articles) >= f.maxItems {
				break
			}
			a := f.convert(item, fetchedAt)
			if !keep(a) {
				continue
			}
			if opts.Category != "" && a.Category != opts.Category {
				continue
			}
			r.Articles = append(r.Articles, a)
		}
		log.Printf("Parsed %d entries from %s", len(r.Articles), f.name)
	})
	return r
}

func (f *FeedAdapter) convert(item FeedItem, fetchedAt time.Time) article.Article {
	title := CleanText(item.Title)
	snippet := CleanSnippet(item.Summary)
	return article.Article{
		Title:         title,
		URL:           strings.TrimSpace(DecodeEntities(item.Link)),
		Snippet:       snippet,
		PublishedDate: article.NormalizeDate(item.Published, fetchedAt),
		Source:        f.name,
		Category:      resolveCategory(f.affinity, item.Tags, title+" "+snippet),
		SourceType:    article.SourceFeed,
		Priority:      f.feed.Priority,
	}
}

// extractSourceName derives a display name from a feed host, e.g.
// "feeds.example.com" becomes "Example".
func extractSourceName(feedURL string) string {
	u, err := url.Parse(feedURL)
	if err != nil || u.Hostname() == "" {
		return feedURL
	}
	host := strings.ToLower(u.Hostname())

	for _, prefix := range []string{"www.", "blog.", "blogs.", "rss.", "feeds."} {
		host = strings.TrimPrefix(host, prefix)
	}

	parts := strings.Split(host, ".")
	if len(parts) >= 2 {
		name := parts[len(parts)-2]
		return strings.ToUpper(name[:1]) + name[1:]
	}
	return strings.ToUpper(host[:1]) + host[1:]
}

// TolerantParser extracts entries with tag-scoped regular expressions. It
// accepts documents that are not well-formed XML, as long as each entry's
// tags are balanced.
type TolerantParser struct{}

var (
	itemBlockRe  = regexp.MustCompile(`(?is)<item(?:\s[^>]*)?>(.*?)</item>`)
	entryBlockRe = regexp.MustCompile(`(?is)<entry(?:\s[^>]*)?>(.*?)</entry>`)
	cdataRe      = regexp.MustCompile(`(?s)<!\[CDATA\[(.*?)\]\]>`)
	linkTagRe    = regexp.MustCompile(`(?is)<link(\s[^>]*)?/?>`)
	categoryRe   = regexp.MustCompile(`(?is)<category(\s[^>]*)?/?>`)
	attrRe       = regexp.MustCompile(`([\w:-]+)\s*=\s*(?:"([^"]*)"|'([^']*)')`)
)

var tagTextRes = func() map[string]*regexp.Regexp {
	out := map[string]*regexp.Regexp{}
	for _, name := range []string{
		"title", "link", "guid", "id", "description", "summary", "content:encoded",
		"content", "pubDate", "published", "updated", "dc:date", "category",
	} {
		out[name] = compileTagText(name)
	}
	return out
}()

// compileTagText matches <name ...>text</name> but not the self-closing form.
func compileTagText(name string) *regexp.Regexp {
	q := regexp.QuoteMeta(name)
	return regexp.MustCompile(`(?is)<` + q + `(?:\s[^>]*[^/>])?>(.*?)</` + q + `>`)
}

func tagTextRe(name string) *regexp.Regexp {
	if re, ok := tagTextRes[name]; ok {
		return re
	}
	return compileTagText(name)
}

// Parse implements FeedParser. A document without entries yields no items
// and no error.
func (TolerantParser) Parse(data []byte) ([]FeedItem, error) {
	doc := string(data)
	blocks := itemBlockRe.FindAllStringSubmatch(doc, -1)
	blocks = append(blocks, entryBlockRe.FindAllStringSubmatch(doc, -1)...)

	var items []FeedItem
	for _, b := range blocks {
		block := b[1]
		item := FeedItem{
			Title:     firstText(block, "title"),
			Link:      extractLink(block),
			Summary:   firstText(block, "description", "summary", "content:encoded", "content"),
			Published: firstText(block, "pubDate", "published", "updated", "dc:date"),
			Tags:      extractCategories(block),
		}
		if strings.TrimSpace(item.Title) == "" || item.Link == "" {
			continue
		}
		items = append(items, item)
	}
	return items, nil
}

// firstText returns the unwrapped text of the first listed tag that is
// present and non-empty.
func firstText(block string, names ...string) string {
	for _, name := range names {
		m := tagTextRe(name).FindStringSubmatch(block)
		if m == nil {
			continue
		}
		if s := unwrap(m[1]); s != "" {
			return s
		}
	}
	return ""
}

// unwrap removes CDATA wrappers and surrounding whitespace.
func unwrap(s string) string {
	return strings.TrimSpace(cdataRe.ReplaceAllString(s, "$1"))
}

func attrs(s string) map[string]string {
	out := map[string]string{}
	for _, m := range attrRe.FindAllStringSubmatch(s, -1) {
		v := m[2]
		if v == "" {
			v = m[3]
		}
		out[strings.ToLower(m[1])] = v
	}
	return out
}

// extractLink prefers <link>text</link>, then an href link with
// rel="alternate" (or no rel), then any href, then a URL-looking guid or id.
func extractLink(block string) string {
	if s := firstText(block, "link"); looksLikeURL(s) {
		return s
	}

	var fallback string
	for _, m := range linkTagRe.FindAllStringSubmatch(block, -1) {
		a := attrs(m[1])
		href := strings.TrimSpace(a["href"])
		if href == "" {
			continue
		}
		rel := strings.ToLower(a["rel"])
		if rel == "" || rel == "alternate" {
			return href
		}
		if fallback == "" {
			fallback = href
		}
	}
	if fallback != "" {
		return fallback
	}

	if s := firstText(block, "guid", "id"); looksLikeURL(s) {
		return s
	}
	return ""
}

func extractCategories(block string) []string {
	var tags []string
	for _, m := range tagTextRe("category").FindAllStringSubmatch(block, -1) {
		if s := CleanText(unwrap(m[1])); s != "" {
			tags = append(tags, s)
		}
	}
	for _, m := range categoryRe.FindAllStringSubmatch(block, -1) {
		if term := strings.TrimSpace(attrs(m[1])["term"]); term != "" {
			tags = append(tags, DecodeEntities(term))
		}
	}
	return tags
}

func looksLikeURL(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

// StrictParser parses well-formed RSS, Atom and JSON feeds with gofeed.
type StrictParser struct {
	parser *gofeed.Parser
}

// NewStrictParser creates a gofeed-backed parser.
func NewStrictParser() *StrictParser {
	return &StrictParser{parser: gofeed.NewParser()}
}

// Parse implements FeedParser.
func (p *StrictParser) Parse(data []byte) ([]FeedItem, error) {
	feed, err := p.parser.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("parsing feed: %w", err)
	}

	var items []FeedItem
	for _, it := range feed.Items {
		if it == nil {
			continue
		}
		link := it.Link
		if link == "" && len(it.Links) > 0 {
			link = it.Links[0]
		}
		if link == "" && looksLikeURL(it.GUID) {
			link = it.GUID
		}
		if strings.TrimSpace(it.Title) == "" || link == "" {
			continue
		}

		summary := it.Description
		if summary == "" {
			summary = it.Content
		}

		published := it.Published
		if it.PublishedParsed != nil {
			published = it.PublishedParsed.UTC().Format(time.RFC3339)
		} else if published == "" {
			published = it.Updated
			if it.UpdatedParsed != nil {
				published = it.UpdatedParsed.UTC().Format(time.RFC3339)
			}
		}

		items = append(items, FeedItem{
			Title:     it.Title,
			Link:      link,
			Summary:   summary,
			Published: published,
			Tags:      it.Categories,
		})
	}
	return items, nil
}
