package aggregate

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/TobiSchelling/CityPulse/internal/article"
	"github.com/TobiSchelling/CityPulse/internal/collect"
)

// SourceStats sums the counters of every adapter of one kind.
type SourceStats struct {
	Attempted int `json:"attempted"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	Articles  int `json:"articles"`
}

// RunStats describes one aggregation run.
type RunStats struct {
	RunID      string    `json:"run_id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	Sources     map[article.SourceType]SourceStats `json:"sources"`
	BackupCalls int                                `json:"backup_calls"`

	// PreDedup counts articles per category after the date filter;
	// PostDedup counts them after intra-category dedup, before truncation.
	PreDedup          map[article.Category]int `json:"pre_dedup"`
	PostDedup         map[article.Category]int `json:"post_dedup"`
	CrossDedupRemoved int                      `json:"cross_dedup_removed"`
	Total             int                      `json:"total"`
}

func (s *RunStats) record(kind article.SourceType, r *collect.Result, articles int) {
	cur := s.Sources[kind]
	cur.Attempted += r.Attempted
	cur.Succeeded += r.Succeeded
	cur.Failed += r.Failed
	cur.Articles += articles
	s.Sources[kind] = cur
}

// Duration returns how long the run took.
func (s RunStats) Duration() time.Duration {
	return s.FinishedAt.Sub(s.StartedAt)
}

// Summary renders a one-line description for logs and CLI output.
func (s RunStats) Summary() string {
	kinds := make([]string, 0, len(s.Sources))
	for k := range s.Sources {
		kinds = append(kinds, string(k))
	}
	sort.Strings(kinds)

	parts := make([]string, 0, len(kinds))
	for _, k := range kinds {
		st := s.Sources[article.SourceType(k)]
		parts = append(parts, fmt.Sprintf("%s %d/%d ok, %d articles", k, st.Succeeded, st.Attempted, st.Articles))
	}
	return fmt.Sprintf("%d articles in %s (%s; %d backup calls)",
		s.Total, s.Duration().Round(time.Millisecond), strings.Join(parts, "; "), s.BackupCalls)
}
