package collect

import (
	"context"
	"log"
	"runtime/debug"

	"github.com/TobiSchelling/CityPulse/internal/article"
)

// Adapter is a source of canonical articles.
//
// FetchArticles never returns an error: failures are logged and counted, and
// the caller receives whatever could be converted. IsAvailable is a cheap
// probe that does not consume results or quota.
type Adapter interface {
	Name() string
	Kind() article.SourceType
	FetchArticles(ctx context.Context, opts FetchOptions) *Result
	IsAvailable(ctx context.Context) bool
}

// FetchOptions narrows a fetch. An empty Category means all categories.
type FetchOptions struct {
	Category article.Category
}

// Result holds the articles and request counters of one adapter call.
type Result struct {
	Articles  []article.Article
	Attempted int
	Succeeded int
	Failed    int
}

func (r *Result) ok() {
	r.Attempted++
	r.Succeeded++
}

func (r *Result) fail() {
	r.Attempted++
	r.Failed++
}

// guard runs fn and converts a panic into a logged failure, keeping any
// articles already collected.
func guard(name string, r *Result, fn func()) {
	defer func() {
		if p := recover(); p != nil {
			log.Printf("Warning: %s: recovered from panic: %v", name, p)
			if debugStacks {
				log.Printf("%s", debug.Stack())
			}
			r.fail()
		}
	}()
	fn()
}

// debugStacks enables stack traces on recovered panics.
var debugStacks bool

// SetDebug toggles per-item debug logging in adapters.
func SetDebug(on bool) {
	debugStacks = on
}

func debugf(format string, args ...any) {
	if debugStacks {
		log.Printf(format, args...)
	}
}

// keep reports whether a converted record has the fields every article needs.
func keep(a article.Article) bool {
	return a.Title != "" && a.URL != ""
}
