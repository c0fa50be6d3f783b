// Package pipeline drives one aggregation run end to end: aggregate, index,
// save and prune.
package pipeline

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/TobiSchelling/CityPulse/internal/aggregate"
	"github.com/TobiSchelling/CityPulse/internal/article"
	"github.com/TobiSchelling/CityPulse/internal/snapshot"
)

// StepResult holds the result of a single pipeline step.
type StepResult struct {
	Name    string
	Summary string
	Err     error
}

// Result holds the results of a full pipeline run.
type Result struct {
	RunID    string
	Snapshot *snapshot.Snapshot
	Steps    []StepResult
}

// Failed reports whether any step returned an error.
func (r *Result) Failed() bool {
	for _, s := range r.Steps {
		if s.Err != nil {
			return true
		}
	}
	return false
}

// Source is the aggregation side of a run.
type Source interface {
	FetchAll(ctx context.Context, opts aggregate.Options) *aggregate.Result
	FetchCategory(ctx context.Context, cat article.Category, opts aggregate.Options) *aggregate.Result
}

// Store persists snapshots. *database.DB implements it.
type Store interface {
	SaveRun(s *snapshot.Snapshot) error
	PruneRuns(keep int) (int, error)
}

// Options selects what a run fetches and whether it is saved.
type Options struct {
	Category   article.Category // empty runs every category
	Limit      int
	DaysBack   int
	UseBackup  bool
	SkipBackup bool
	NoSave     bool
	KeepRuns   int
}

// Pipeline orchestrates the run steps.
type Pipeline struct {
	src   Source
	store Store
	now   func() time.Time
}

// New creates a new pipeline. store may be nil, in which case runs are not
// saved.
func New(src Source, store Store) *Pipeline {
	return &Pipeline{src: src, store: store, now: time.Now}
}

// Run executes aggregate, index, save and prune.
func (p *Pipeline) Run(ctx context.Context, opts Options) *Result {
	r := &Result{}

	log.Println("Step 1/4: Aggregating sources...")
	agg := p.aggregate(ctx, opts)
	r.RunID = agg.Stats.RunID
	r.Steps = append(r.Steps, StepResult{Name: "Aggregate", Summary: agg.Stats.Summary()})

	log.Println("Step 2/4: Indexing snapshot...")
	r.Snapshot = snapshot.Build(agg)
	r.Steps = append(r.Steps, StepResult{
		Name: "Index",
		Summary: fmt.Sprintf("Indexed %d neighborhoods and %d sources",
			len(r.Snapshot.ByNeighborhood), len(r.Snapshot.BySource)),
	})

	if opts.NoSave || p.store == nil {
		return r
	}

	log.Println("Step 3/4: Saving run...")
	if err := p.store.SaveRun(r.Snapshot); err != nil {
		r.Steps = append(r.Steps, StepResult{Name: "Save", Err: err})
		return r
	}
	r.Steps = append(r.Steps, StepResult{Name: "Save", Summary: fmt.Sprintf("Saved run %s", r.RunID)})

	log.Println("Step 4/4: Pruning old runs...")
	removed, err := p.store.PruneRuns(opts.KeepRuns)
	if err != nil {
		r.Steps = append(r.Steps, StepResult{Name: "Prune", Err: err})
		return r
	}
	r.Steps = append(r.Steps, StepResult{Name: "Prune", Summary: fmt.Sprintf("Removed %d old runs", removed)})
	return r
}

func (p *Pipeline) aggregate(ctx context.Context, opts Options) *aggregate.Result {
	ao := aggregate.Options{
		Limit:      opts.Limit,
		SkipBackup: opts.SkipBackup,
		UseBackup:  opts.UseBackup,
	}
	if opts.DaysBack > 0 {
		ao.Since = p.now().AddDate(0, 0, -opts.DaysBack)
	}
	if opts.Category != "" {
		return p.src.FetchCategory(ctx, opts.Category, ao)
	}
	return p.src.FetchAll(ctx, ao)
}

// Availability is what DryRun needs from each source.
type Availability interface {
	Name() string
	IsAvailable(ctx context.Context) bool
}

// DryRun probes each source without fetching articles or consuming backup
// quota.
func DryRun[A Availability](ctx context.Context, sources []A) *Result {
	r := &Result{}
	for _, s := range sources {
		status := "reachable"
		if !s.IsAvailable(ctx) {
			status = "unavailable"
		}
		r.Steps = append(r.Steps, StepResult{
			Name:    s.Name(),
			Summary: fmt.Sprintf("[dry-run] %s", status),
		})
	}
	return r
}
