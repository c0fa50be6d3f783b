package aggregate

import (
	"log"

	"github.com/TobiSchelling/CityPulse/internal/budget"
	"github.com/TobiSchelling/CityPulse/internal/collect"
	"github.com/TobiSchelling/CityPulse/internal/config"
	"github.com/TobiSchelling/CityPulse/internal/fetch"
	"github.com/TobiSchelling/CityPulse/internal/relevance"
)

// NewFromConfig wires the enabled sources from cfg. The budget is shared by
// every run of the returned aggregator; pass the same one for the whole
// process lifetime.
func NewFromConfig(cfg *config.Config, b budget.Budget) (*Aggregator, error) {
	client := fetch.NewClient(cfg.RequestTimeout())
	src := cfg.Sources

	var primary []collect.Adapter
	for _, f := range src.Feeds {
		if !f.IsEnabled() {
			continue
		}
		fa, err := collect.NewFeedAdapter(f, client)
		if err != nil {
			return nil, err
		}
		primary = append(primary, fa)
	}
	if src.Reddit.Enabled && len(src.Reddit.Communities) > 0 {
		primary = append(primary, collect.NewRedditAdapter(src.Reddit, cfg.RedditDelay(), client))
	}
	if src.HackerNews.Enabled {
		primary = append(primary, collect.NewHackerNewsAdapter(src.HackerNews, cfg.Locale, client))
	}

	var backup collect.Adapter
	if src.NewsAPI.Enabled {
		n := collect.NewNewsAPIAdapter(src.NewsAPI, b, client)
		if src.NewsAPI.APIKey() == "" {
			log.Printf("Warning: %s is not set; backup search disabled", src.NewsAPI.APIKeyEnv)
		}
		backup = n
	}

	scorer := relevance.New(relevance.Locale{
		Names:         cfg.Locale.Names,
		Aliases:       cfg.Locale.Aliases,
		Neighborhoods: cfg.Locale.Neighborhoods,
		Outlets:       cfg.Locale.Outlets,
	})

	return New(primary, backup, scorer).WithMinPerCategory(cfg.Aggregation.MinPerCategory), nil
}
