package collect

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/TobiSchelling/CityPulse/internal/article"
	"github.com/TobiSchelling/CityPulse/internal/config"
	"github.com/TobiSchelling/CityPulse/internal/fetch"
)

// Locale match weights and the popularity cap for ordering HN stories.
const (
	hnNameWeight         = 10
	hnAliasWeight        = 5
	hnOrganizationWeight = 3
	hnPointsPerBonus     = 50
	hnMaxPointsBonus     = 5
)

type hnItem struct {
	ID      int    `json:"id"`
	Type    string `json:"type"`
	Title   string `json:"title"`
	URL     string `json:"url"`
	Text    string `json:"text"`
	Score   int    `json:"score"`
	Time    int64  `json:"time"`
	Dead    bool   `json:"dead"`
	Deleted bool   `json:"deleted"`
}

type weightedTerm struct {
	re     *regexp.Regexp
	weight int
}

// HackerNewsAdapter reads top stories and keeps the ones that mention the
// locale.
type HackerNewsAdapter struct {
	cfg      config.HackerNewsConfig
	affinity article.Category
	terms    []weightedTerm
	client   *fetch.Client
	now      func() time.Time
}

// NewHackerNewsAdapter creates the link-aggregator adapter.
func NewHackerNewsAdapter(cfg config.HackerNewsConfig, loc config.Locale, client *fetch.Client) *HackerNewsAdapter {
	if cfg.MaxStories <= 0 {
		cfg.MaxStories = 200
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 20
	}
	var terms []weightedTerm
	add := func(words []string, weight int) {
		for _, w := range words {
			if re := wordPattern([]string{w}); re != nil {
				terms = append(terms, weightedTerm{re: re, weight: weight})
			}
		}
	}
	add(loc.Names, hnNameWeight)
	add(loc.Aliases, hnAliasWeight)
	add(loc.Organizations, hnOrganizationWeight)

	return &HackerNewsAdapter{
		cfg:      cfg,
		affinity: config.Affinity(cfg.Category),
		terms:    terms,
		client:   client,
		now:      time.Now,
	}
}

func (h *HackerNewsAdapter) Name() string { return "Hacker News" }
func (h *HackerNewsAdapter) Kind() article.SourceType { return article.SourceHackerNews }

// IsAvailable probes the top stories endpoint.
func (h *HackerNewsAdapter) IsAvailable(ctx context.Context) bool {
	return h.client.Probe(ctx, h.endpoint("topstories.json"))
}

func (h *HackerNewsAdapter) endpoint(path string) string {
	return strings.TrimRight(h.cfg.BaseURL, "/") + "/" + path
}

// localScore sums matched locale term weights. Zero means not local.
func (h *HackerNewsAdapter) localScore(text string) int {
	score := 0
	for _, t := range h.terms {
		if t.re.MatchString(text) {
			score += t.weight
		}
	}
	return score
}

type rankedStory struct {
	item  hnItem
	score int
}

// FetchArticles fetches the ranked ID list, then item details in batches.
func (h *HackerNewsAdapter) FetchArticles(ctx context.Context, opts FetchOptions) *Result {
	r := &Result{}
	guard(h.Name(), r, func() {
		ids, err := h.topStories(ctx)
		if err != nil {
			log.Printf("Warning: failed to fetch Hacker News top stories: %v", err)
			r.fail()
			return
		}
		r.ok()

		items := h.fetchItems(ctx, ids, r)

		var ranked []rankedStory
		for _, it := range items {
			if it == nil || it.Type != "story" || it.Dead || it.Deleted || strings.TrimSpace(it.Title) == "" {
				continue
			}
			local := h.localScore(CleanText(it.Title + " " + it.Text))
			if local == 0 {
				continue
			}
			ranked = append(ranked, rankedStory{item: *it, score: local + min(it.Score/hnPointsPerBonus, hnMaxPointsBonus)})
		}
		sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })

		fetchedAt := h.now()
		for _, s := range ranked {
			a := h.convert(ctx, s.item, fetchedAt)
			if !keep(a) {
				continue
			}
			if opts.Category != "" && a.Category != opts.Category {
				continue
			}
			r.Articles = append(r.Articles, a)
		}
		log.Printf("Kept %d of %d Hacker News stories mentioning the locale", len(r.Articles), len(ids))
	})
	return r
}

func (h *HackerNewsAdapter) topStories(ctx context.Context) ([]int, error) {
	body, err := h.client.Get(ctx, h.endpoint("topstories.json"), nil)
	if err != nil {
		return nil, err
	}
	var ids []int
	if err := json.Unmarshal(body, &ids); err != nil {
		return nil, fmt.Errorf("decoding top stories: %w", err)
	}
	if len(ids) > h.cfg.MaxStories {
		ids = ids[:h.cfg.MaxStories]
	}
	return ids, nil
}

// fetchItems loads item details batch by batch. Within a batch at most
// BatchSize requests are in flight. The returned slice is index-aligned with
// ids; failed items are nil.
func (h *HackerNewsAdapter) fetchItems(ctx context.Context, ids []int, r *Result) []*hnItem {
	items := make([]*hnItem, len(ids))
	var mu sync.Mutex

	for start := 0; start < len(ids); start += h.cfg.BatchSize {
		end := min(start+h.cfg.BatchSize, len(ids))

		var g errgroup.Group
		g.SetLimit(h.cfg.BatchSize)
		for i := start; i < end; i++ {
			g.Go(func() error {
				it, err := h.fetchItem(ctx, ids[i])
				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					debugf("Hacker News item %d: %v", ids[i], err)
					r.fail()
					return nil
				}
				r.ok()
				items[i] = it
				return nil
			})
		}
		_ = g.Wait()
	}
	return items
}

func (h *HackerNewsAdapter) fetchItem(ctx context.Context, id int) (*hnItem, error) {
	body, err := h.client.Get(ctx, h.endpoint(fmt.Sprintf("item/%d.json", id)), nil)
	if err != nil {
		return nil, err
	}
	var it hnItem
	if err := json.Unmarshal(body, &it); err != nil {
		return nil, fmt.Errorf("decoding item %d: %w", id, err)
	}
	if it.ID == 0 {
		return nil, fmt.Errorf("item %d: empty payload", id)
	}
	return &it, nil
}

func (h *HackerNewsAdapter) convert(ctx context.Context, it hnItem, fetchedAt time.Time) article.Article {
	link := strings.TrimSpace(it.URL)
	if link == "" {
		link = fmt.Sprintf("https://news.ycombinator.com/item?id=%d", it.ID)
	}

	snippet := CleanSnippet(it.Text)
	if snippet == "" && h.cfg.EnrichSnippets && it.URL != "" {
		text, err := h.client.Excerpt(ctx, it.URL)
		if err != nil {
			debugf("No excerpt for %s: %v", it.URL, err)
		} else {
			snippet = CleanSnippet(text)
		}
	}

	published := ""
	if it.Time > 0 {
		published = article.FormatDate(time.Unix(it.Time, 0))
	}

	title := CleanText(it.Title)
	return article.Article{
		Title:         title,
		URL:           link,
		Snippet:       snippet,
		PublishedDate: article.NormalizeDate(published, fetchedAt),
		Source:        "Hacker News",
		Category:      resolveCategory(h.affinity, nil, title+" "+snippet),
		SourceType:    article.SourceHackerNews,
		Priority:      h.cfg.Priority,
	}
}
