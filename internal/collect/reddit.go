package collect

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/url"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/TobiSchelling/CityPulse/internal/article"
	"github.com/TobiSchelling/CityPulse/internal/config"
	"github.com/TobiSchelling/CityPulse/internal/fetch"
	"github.com/TobiSchelling/CityPulse/internal/pacing"
)

var (
	// Only subreddit housekeeping. News headlines use "rules", "Meta" and
	// "daily" as ordinary words, so each form is anchored or phrased.
	metaPostRe = regexp.MustCompile(`(?i)` +
		`^\s*(?:\[meta\]|\(meta\)|meta\s*:|rules\s*(?:$|[:|-]))` +
		`|\b(?:subreddit|sub|community|posting) rules\b` +
		`|\bmega ?thread\b` +
		`|\b(?:mod|moderator) (?:post|announcement|update)\b` +
		`|\b(?:weekly|daily|monthly) (?:discussion |random |open |questions? )?thread\b` +
		`|\bdiscussion thread\b`)

	questionOpeners = []string{
		"what", "where", "when", "how", "why", "who", "which", "anyone", "does",
		"do", "is there", "are there", "can", "should", "could", "would",
	}
)

// redditListing is the subset of the listing payload the adapter reads.
type redditListing struct {
	Data struct {
		Children []struct {
			Kind string     `json:"kind"`
			Data redditPost `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

type redditPost struct {
	Title             string  `json:"title"`
	URL               string  `json:"url"`
	Permalink         string  `json:"permalink"`
	Selftext          string  `json:"selftext"`
	Score             int     `json:"score"`
	Stickied          bool    `json:"stickied"`
	IsSelf            bool    `json:"is_self"`
	CreatedUTC        float64 `json:"created_utc"`
	LinkFlairText     string  `json:"link_flair_text"`
	RemovedByCategory string  `json:"removed_by_category"`
}

// RedditAdapter reads the listings of the configured communities, one after
// another with a fixed pause between requests.
type RedditAdapter struct {
	cfg      config.RedditConfig
	affinity article.Category
	client   *fetch.Client
	pace     pacing.Scheduler
	now      func() time.Time
}

// NewRedditAdapter creates the discussion-listing adapter.
func NewRedditAdapter(cfg config.RedditConfig, delay time.Duration, client *fetch.Client) *RedditAdapter {
	if cfg.Sort == "" {
		cfg.Sort = "hot"
	}
	if cfg.Limit <= 0 {
		cfg.Limit = 25
	}
	return &RedditAdapter{
		cfg:      cfg,
		affinity: config.Affinity(cfg.Category),
		client:   client,
		pace:     pacing.NewInterval(delay),
		now:      time.Now,
	}
}

func (a *RedditAdapter) Name() string { return "Reddit" }
func (a *RedditAdapter) Kind() article.SourceType { return article.SourceReddit }

// IsAvailable probes the first community's listing page.
func (a *RedditAdapter) IsAvailable(ctx context.Context) bool {
	if len(a.cfg.Communities) == 0 {
		return false
	}
	return a.client.Probe(ctx, a.listingURL(a.cfg.Communities[0]))
}

func (a *RedditAdapter) listingURL(community string) string {
	q := url.Values{}
	q.Set("limit", fmt.Sprintf("%d", a.cfg.Limit))
	q.Set("t", "day")
	return fmt.Sprintf("%s/r/%s/%s.json?%s",
		strings.TrimRight(a.cfg.BaseURL, "/"), url.PathEscape(community), a.cfg.Sort, q.Encode())
}

// FetchArticles fetches every community sequentially. A failing community
// does not stop the others.
func (a *RedditAdapter) FetchArticles(ctx context.Context, opts FetchOptions) *Result {
	r := &Result{}
	guard(a.Name(), r, func() {
		err := pacing.Each(ctx, a.pace, a.cfg.Communities, func(community string) {
			posts, err := a.fetchCommunity(ctx, community)
			if err != nil {
				log.Printf("Warning: failed to fetch r/%s: %v", community, err)
				r.fail()
				return
			}
			r.ok()

			fetchedAt := a.now()
			kept := 0
			for _, p := range posts {
				if reason := a.rejectReason(p); reason != "" {
					debugf("Skipping r/%s post %q: %s", community, p.Title, reason)
					continue
				}
				art := a.convert(community, p, fetchedAt)
				if !keep(art) {
					continue
				}
				if opts.Category != "" && art.Category != opts.Category {
					continue
				}
				r.Articles = append(r.Articles, art)
				kept++
			}
			log.Printf("Kept %d of %d posts from r/%s", kept, len(posts), community)
		})
		if err != nil {
			log.Printf("Warning: reddit fetch interrupted: %v", err)
		}
	})
	return r
}

func (a *RedditAdapter) fetchCommunity(ctx context.Context, community string) ([]redditPost, error) {
	body, err := a.client.Get(ctx, a.listingURL(community), map[string]string{"Accept": "application/json"})
	if err != nil {
		return nil, err
	}
	var listing redditListing
	if err := json.Unmarshal(body, &listing); err != nil {
		return nil, fmt.Errorf("decoding listing: %w", err)
	}
	posts := make([]redditPost, 0, len(listing.Data.Children))
	for _, c := range listing.Data.Children {
		if c.Kind != "" && c.Kind != "t3" {
			continue
		}
		posts = append(posts, c.Data)
	}
	return posts, nil
}

// rejectReason applies the quality filter. An empty string keeps the post.
func (a *RedditAdapter) rejectReason(p redditPost) string {
	title := strings.TrimSpace(DecodeEntities(p.Title))
	switch {
	case p.Score < a.cfg.MinScore:
		return "low score"
	case utf8.RuneCountInString(title) < a.cfg.MinTitleLength:
		return "short title"
	case p.Stickied:
		return "stickied"
	case isRemoved(p):
		return "removed"
	case metaPostRe.MatchString(title):
		return "meta post"
	case isQuestion(title):
		return "question"
	}
	return ""
}

func isRemoved(p redditPost) bool {
	if p.RemovedByCategory != "" {
		return true
	}
	for _, s := range []string{p.Title, p.Selftext} {
		switch strings.TrimSpace(s) {
		case "[removed]", "[deleted]":
			return true
		}
	}
	return false
}

// isQuestion reports titles that ask rather than report.
func isQuestion(title string) bool {
	t := strings.ToLower(strings.TrimSpace(title))
	if strings.HasSuffix(t, "?") {
		return true
	}
	for _, opener := range questionOpeners {
		if t == opener || strings.HasPrefix(t, opener+" ") {
			return true
		}
	}
	return false
}

func (a *RedditAdapter) convert(community string, p redditPost, fetchedAt time.Time) article.Article {
	link := strings.TrimSpace(p.URL)
	if p.IsSelf || link == "" || strings.HasPrefix(link, "/") {
		link = ""
		if p.Permalink != "" {
			link = strings.TrimRight(a.cfg.BaseURL, "/") + p.Permalink
		}
	}

	published := ""
	if p.CreatedUTC > 0 {
		published = article.FormatDate(time.Unix(int64(p.CreatedUTC), 0))
	}

	title := CleanText(p.Title)
	snippet := CleanSnippet(p.Selftext)
	var tags []string
	if p.LinkFlairText != "" {
		tags = []string{p.LinkFlairText}
	}

	return article.Article{
		Title:         title,
		URL:           DecodeEntities(link),
		Snippet:       snippet,
		PublishedDate: article.NormalizeDate(published, fetchedAt),
		Source:        "r/" + community,
		Category:      resolveCategory(a.affinity, tags, title+" "+snippet),
		SourceType:    article.SourceReddit,
		Priority:      a.cfg.Priority,
	}
}
