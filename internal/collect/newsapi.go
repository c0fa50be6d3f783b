package collect

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/url"
	"strings"
	"time"

	"github.com/TobiSchelling/CityPulse/internal/article"
	"github.com/TobiSchelling/CityPulse/internal/budget"
	"github.com/TobiSchelling/CityPulse/internal/config"
	"github.com/TobiSchelling/CityPulse/internal/fetch"
)

const removedPlaceholder = "[Removed]"

// newsAPIResponse is the subset of the search payload the adapter reads.
type newsAPIResponse struct {
	Status   string `json:"status"`
	Code     string `json:"code"`
	Message  string `json:"message"`
	Articles []struct {
		URL         string `json:"url"`
		Title       string `json:"title"`
		PublishedAt string `json:"publishedAt"`
		Content     string `json:"content"`
		Description string `json:"description"`
		Source      struct {
			Name string `json:"name"`
		} `json:"source"`
	} `json:"articles"`
}

// NewsAPIAdapter is the metered backup source. Every attempted call spends
// one unit of the shared daily budget.
type NewsAPIAdapter struct {
	cfg    config.NewsAPIConfig
	apiKey string
	budget budget.Budget
	client *fetch.Client
	now    func() time.Time
}

// NewNewsAPIAdapter creates the backup adapter. The API key is read from the
// configured environment variable once, at construction. Retries are turned
// off on the adapter's copy of client so each budget unit is one request.
func NewNewsAPIAdapter(cfg config.NewsAPIConfig, b budget.Budget, client *fetch.Client) *NewsAPIAdapter {
	if cfg.PageSize <= 0 {
		cfg.PageSize = 20
	}
	if cfg.PageSize > 100 {
		cfg.PageSize = 100
	}
	return &NewsAPIAdapter{
		cfg:    cfg,
		apiKey: cfg.APIKey(),
		budget: b,
		client: client.WithRetry(0, 0),
		now:    time.Now,
	}
}

func (n *NewsAPIAdapter) Name() string { return "NewsAPI" }
func (n *NewsAPIAdapter) Kind() article.SourceType { return article.SourceNewsAPI }

// IsAvailable reports whether a key is configured and quota remains. It
// never calls the network.
func (n *NewsAPIAdapter) IsAvailable(ctx context.Context) bool {
	return n.apiKey != "" && n.reserveCheck() == nil
}

func (n *NewsAPIAdapter) reserveCheck() error {
	if n.budget == nil {
		return nil
	}
	if left := n.budget.Remaining(); left < n.cfg.SafetyMargin {
		return fmt.Errorf("%w: %d left, margin %d", budget.ErrExhausted, left, n.cfg.SafetyMargin)
	}
	return nil
}

// query returns the search query for a category, falling back to the local
// query when the category has none.
func (n *NewsAPIAdapter) query(cat article.Category) string {
	if q := strings.TrimSpace(n.cfg.Queries[string(cat)]); q != "" {
		return q
	}
	return strings.TrimSpace(n.cfg.Queries[string(article.Local)])
}

// FetchArticles runs one search for opts.Category (local when empty) and
// stamps that category on every result.
func (n *NewsAPIAdapter) FetchArticles(ctx context.Context, opts FetchOptions) *Result {
	r := &Result{}
	cat := opts.Category
	if cat == "" {
		cat = article.Local
	}

	guard(n.Name(), r, func() {
		if n.apiKey == "" {
			log.Printf("Warning: NewsAPI key not set (%s); skipping backup search", n.cfg.APIKeyEnv)
			return
		}
		if err := n.reserveCheck(); err != nil {
			log.Printf("Warning: NewsAPI skipped for %s: %v", cat, err)
			return
		}
		q := n.query(cat)
		if q == "" {
			log.Printf("Warning: no NewsAPI query configured for %s", cat)
			return
		}

		// Attempted calls count against quota whether or not they succeed.
		if n.budget != nil {
			n.budget.Consume()
		}

		params := url.Values{
			"q":        {q},
			"language": {n.cfg.Language},
			"pageSize": {fmt.Sprintf("%d", n.cfg.PageSize)},
			"sortBy":   {"publishedAt"},
			"apiKey":   {n.apiKey},
		}
		if n.cfg.Language == "" {
			params.Del("language")
		}

		body, err := n.client.Get(ctx, n.cfg.BaseURL+"?"+params.Encode(), map[string]string{"Accept": "application/json"})
		if err != nil {
			log.Printf("Warning: NewsAPI error: %v", err)
			r.fail()
			return
		}

		var resp newsAPIResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			log.Printf("Warning: NewsAPI decode error: %v", err)
			r.fail()
			return
		}
		if resp.Status != "ok" {
			log.Printf("Warning: NewsAPI status %s: %s %s", resp.Status, resp.Code, resp.Message)
			r.fail()
			return
		}
		r.ok()

		fetchedAt := n.now()
		for _, item := range resp.Articles {
			title := CleanText(item.Title)
			if title == removedPlaceholder || item.URL == "https://removed.com" {
				continue
			}
			snippet := item.Description
			if strings.TrimSpace(snippet) == "" {
				snippet = item.Content
			}
			source := strings.TrimSpace(item.Source.Name)
			if source == "" {
				source = n.Name()
			}
			a := article.Article{
				Title:         title,
				URL:           strings.TrimSpace(item.URL),
				Snippet:       CleanSnippet(snippet),
				PublishedDate: article.NormalizeDate(item.PublishedAt, fetchedAt),
				Source:        source,
				Category:      cat,
				SourceType:    article.SourceNewsAPI,
				Priority:      n.cfg.Priority,
			}
			if !keep(a) {
				continue
			}
			r.Articles = append(r.Articles, a)
		}
		log.Printf("Fetched %d articles from NewsAPI for %s", len(r.Articles), cat)
	})
	return r
}
