package budget

import (
	"errors"
	"sync"
	"time"
)

// ErrExhausted is returned by callers that refuse to spend more quota.
var ErrExhausted = errors.New("daily budget exhausted")

// Budget tracks how many metered calls remain for the current day.
type Budget interface {
	Remaining() int
	Consume()
}

// Daily is a process-local counter that resets whenever the calendar date
// (in loc) changes. It is safe for concurrent use within one process only.
type Daily struct {
	mu        sync.Mutex
	limit     int
	used      int
	resetDate string
	loc       *time.Location
	now       func() time.Time
}

// NewDaily creates a budget allowing limit calls per day.
func NewDaily(limit int, loc *time.Location) *Daily {
	if loc == nil {
		loc = time.Local
	}
	return &Daily{limit: limit, loc: loc, now: time.Now}
}

// SetClock replaces the time source. Intended for tests.
func (d *Daily) SetClock(now func() time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.now = now
}

// Remaining returns how many calls are left today, never below zero.
func (d *Daily) Remaining() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.rollover()
	if d.used >= d.limit {
		return 0
	}
	return d.limit - d.used
}

// Consume records one call against today's budget. Calls beyond the limit are
// still counted so Used reflects real usage.
func (d *Daily) Consume() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.rollover()
	d.used++
}

// Used returns the number of calls recorded today.
func (d *Daily) Used() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.rollover()
	return d.used
}

// Limit returns the configured daily limit.
func (d *Daily) Limit() int {
	return d.limit
}

func (d *Daily) rollover() {
	today := d.now().In(d.loc).Format("2006-01-02")
	if d.resetDate != today {
		d.resetDate = today
		d.used = 0
	}
}
