package database

import (
	"time"

	"github.com/TobiSchelling/CityPulse/internal/aggregate"
)

// Run is the header row of one stored aggregation run.
type Run struct {
	RunID       string
	StartedAt   time.Time
	FinishedAt  time.Time
	Total       int
	BackupCalls int
	Stats       aggregate.RunStats
}

// Stats contains aggregate store statistics.
type Stats struct {
	Runs          int
	Articles      int
	DistinctURLs  int
	BackupCalls   int
	LatestRunID   string
	LatestRunAt   *time.Time
	SourceFailure map[string]int
}
