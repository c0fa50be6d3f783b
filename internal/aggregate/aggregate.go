// Package aggregate fans out to the source adapters and merges their output
// into ranked, deduplicated per-category lists.
package aggregate

import (
	"context"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/TobiSchelling/CityPulse/internal/article"
	"github.com/TobiSchelling/CityPulse/internal/collect"
	"github.com/TobiSchelling/CityPulse/internal/dedup"
	"github.com/TobiSchelling/CityPulse/internal/relevance"
)

const (
	// DefaultLimit is the per-category cap when Options.Limit is not set.
	DefaultLimit = 20
	// DefaultMinPerCategory is the count below which FetchAll asks the
	// backup source for more.
	DefaultMinPerCategory = 3
)

// Options controls a single run.
type Options struct {
	Since      time.Time // drop articles published before this; zero keeps all
	Limit      int       // per category; <= 0 means DefaultLimit
	SkipBackup bool      // FetchAll never calls the backup source
	UseBackup  bool      // FetchCategory also queries the backup source
}

// Result is the output of one run.
type Result struct {
	Categories map[article.Category][]article.Article
	Stats      RunStats
}

// Aggregator runs the primary adapters in parallel and tops up thin
// categories from the backup adapter.
type Aggregator struct {
	primary        []collect.Adapter
	backup         collect.Adapter
	scorer         *relevance.Scorer
	minPerCategory int
	now            func() time.Time
}

// New creates an aggregator. backup may be nil.
func New(primary []collect.Adapter, backup collect.Adapter, scorer *relevance.Scorer) *Aggregator {
	return &Aggregator{
		primary:        primary,
		backup:         backup,
		scorer:         scorer,
		minPerCategory: DefaultMinPerCategory,
		now:            time.Now,
	}
}

// WithMinPerCategory overrides the backup threshold.
func (a *Aggregator) WithMinPerCategory(n int) *Aggregator {
	if n > 0 {
		a.minPerCategory = n
	}
	return a
}

// Adapters returns the primary adapters followed by the backup, if any.
func (a *Aggregator) Adapters() []collect.Adapter {
	out := append([]collect.Adapter(nil), a.primary...)
	if a.backup != nil {
		out = append(out, a.backup)
	}
	return out
}

// FetchAll runs every primary adapter, tops up categories below the
// threshold from the backup, and deduplicates across categories. Every
// category is present in the result, possibly with an empty list.
func (a *Aggregator) FetchAll(ctx context.Context, opts Options) *Result {
	stats := a.newStats()
	log.Printf("Starting aggregation run %s across %d sources", stats.RunID, len(a.primary))

	byCat := make(map[article.Category][]article.Article)
	for _, c := range article.PriorityOrder() {
		byCat[c] = nil
	}
	for _, art := range a.fanOut(ctx, collect.FetchOptions{}, &stats) {
		c := art.Category
		if c == "" {
			c = article.Local
		}
		byCat[c] = append(byCat[c], art)
	}

	if !opts.SkipBackup && a.backup != nil {
		for _, c := range article.PriorityOrder() {
			if len(byCat[c]) >= a.minPerCategory {
				continue
			}
			log.Printf("Only %d %s articles; querying %s", len(byCat[c]), c, a.backup.Name())
			stats.BackupCalls++
			byCat[c] = append(byCat[c], a.call(ctx, a.backup, collect.FetchOptions{Category: c}, c, &stats)...)
		}
	}

	ranked := make(map[article.Category][]article.Article, len(byCat))
	for c, list := range byCat {
		ranked[c] = a.rank(c, list, opts, &stats)
	}

	final := dedup.AcrossCategories(ranked)
	for c, list := range final {
		if list == nil {
			final[c] = []article.Article{}
		}
		stats.CrossDedupRemoved += len(ranked[c]) - len(final[c])
		stats.Total += len(final[c])
	}

	stats.FinishedAt = a.now()
	log.Printf("Aggregation complete: %d articles, %d backup calls, %d cross-category duplicates removed",
		stats.Total, stats.BackupCalls, stats.CrossDedupRemoved)
	return &Result{Categories: final, Stats: stats}
}

// FetchCategory runs the primary adapters for a single category, plus the
// backup when opts.UseBackup is set. No cross-category dedup is applied.
func (a *Aggregator) FetchCategory(ctx context.Context, cat article.Category, opts Options) *Result {
	stats := a.newStats()
	log.Printf("Starting %s run %s across %d sources", cat, stats.RunID, len(a.primary))

	fo := collect.FetchOptions{Category: cat}
	var list []article.Article
	for _, art := range a.fanOut(ctx, fo, &stats) {
		if art.Category == cat {
			list = append(list, art)
		}
	}
	if opts.UseBackup && a.backup != nil {
		stats.BackupCalls++
		list = append(list, a.call(ctx, a.backup, fo, cat, &stats)...)
	}

	ranked := a.rank(cat, list, opts, &stats)
	stats.Total = len(ranked)
	stats.FinishedAt = a.now()
	log.Printf("Fetched %d %s articles", stats.Total, cat)
	return &Result{
		Categories: map[article.Category][]article.Article{cat: ranked},
		Stats:      stats,
	}
}

// fanOut calls every primary adapter concurrently and concatenates their
// articles in adapter-list order.
func (a *Aggregator) fanOut(ctx context.Context, opts collect.FetchOptions, stats *RunStats) []article.Article {
	results := make([]*collect.Result, len(a.primary))
	var wg sync.WaitGroup
	for i, ad := range a.primary {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = safeFetch(ctx, ad, opts)
		}()
	}
	wg.Wait()

	var all []article.Article
	for i, ad := range a.primary {
		all = append(all, a.absorb(ad, results[i], "", stats)...)
	}
	return all
}

// call runs one adapter synchronously and stamps cat on its articles.
func (a *Aggregator) call(ctx context.Context, ad collect.Adapter, opts collect.FetchOptions, cat article.Category, stats *RunStats) []article.Article {
	return a.absorb(ad, safeFetch(ctx, ad, opts), cat, stats)
}

// absorb records an adapter's counters and returns copies of its articles
// with provenance filled in.
func (a *Aggregator) absorb(ad collect.Adapter, r *collect.Result, cat article.Category, stats *RunStats) []article.Article {
	out := make([]article.Article, 0, len(r.Articles))
	for _, art := range r.Articles {
		if cat != "" {
			art.Category = cat
		}
		if art.SourceType == "" {
			art.SourceType = ad.Kind()
		}
		out = append(out, art)
	}
	stats.record(ad.Kind(), r, len(out))
	return out
}

// safeFetch shields the run from adapters that panic despite the contract.
func safeFetch(ctx context.Context, ad collect.Adapter, opts collect.FetchOptions) (r *collect.Result) {
	defer func() {
		if p := recover(); p != nil {
			log.Printf("Warning: source %s panicked: %v", ad.Name(), p)
			r = &collect.Result{Attempted: 1, Failed: 1}
		}
	}()
	r = ad.FetchArticles(ctx, opts)
	if r == nil {
		r = &collect.Result{}
	}
	return r
}

// rank applies the date filter, drops duplicate URLs, scores, sorts and
// truncates one category.
func (a *Aggregator) rank(cat article.Category, list []article.Article, opts Options, stats *RunStats) []article.Article {
	var fresh []article.Article
	for _, art := range list {
		if !opts.Since.IsZero() {
			if t, ok := art.Published(); ok && t.Before(opts.Since) {
				continue
			}
		}
		fresh = append(fresh, art)
	}
	stats.PreDedup[cat] = len(fresh)

	unique := dedup.WithinCategory(fresh)
	stats.PostDedup[cat] = len(unique)

	scored := make([]article.Article, len(unique))
	for i, art := range unique {
		art.Category = cat
		art.Score = a.scorer.Score(art)
		art.Neighborhoods = a.scorer.Neighborhoods(art)
		scored[i] = art
	}
	sort.SliceStable(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })

	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	if len(scored) > limit {
		scored = scored[:limit]
	}
	return scored
}

func (a *Aggregator) newStats() RunStats {
	return RunStats{
		RunID:     uuid.NewString(),
		StartedAt: a.now(),
		Sources:   make(map[article.SourceType]SourceStats),
		PreDedup:  make(map[article.Category]int),
		PostDedup: make(map[article.Category]int),
	}
}
