package collect

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/TobiSchelling/CityPulse/internal/article"
	"github.com/TobiSchelling/CityPulse/internal/config"
)

var testLocale = config.Locale{
	Names:         []string{"San Francisco"},
	Aliases:       []string{"Bay Area"},
	Organizations: []string{"Waymo", "Muni"},
}

func hnServer(t *testing.T, ids []int, items map[int]map[string]any, itemCalls *int32) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/topstories.json" {
			json.NewEncoder(w).Encode(ids)
			return
		}
		var id int
		if _, err := fmt.Sscanf(r.URL.Path, "/item/%d.json", &id); err != nil {
			http.NotFound(w, r)
			return
		}
		if itemCalls != nil {
			atomic.AddInt32(itemCalls, 1)
		}
		it, ok := items[id]
		if !ok {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		json.NewEncoder(w).Encode(it)
	}))
}

func TestHackerNewsAdapterFiltersAndOrders(t *testing.T) {
	items := map[int]map[string]any{
		1: {"id": 1, "type": "story", "title": "Waymo expands robotaxi fleet", "url": "https://example.com/waymo", "score": 400, "time": 1714550400},
		2: {"id": 2, "type": "story", "title": "San Francisco passes new zoning rules", "url": "https://example.com/zoning", "score": 10, "time": 1714550400},
		3: {"id": 3, "type": "story", "title": "Rust 2.0 released", "url": "https://example.com/rust", "score": 900},
		4: {"id": 4, "type": "comment", "text": "San Francisco is great"},
		5: {"id": 5, "type": "story", "title": "Ask HN: Moving to the Bay Area", "text": "Any tips for San Francisco?", "score": 60},
		6: {"id": 6, "type": "story", "title": "San Francisco startup shuts down", "dead": true},
		7: {"id": 7, "type": "job", "title": "Waymo is hiring in San Francisco"},
		8: {"id": 8, "type": "story", "title": "Community gardens thrive", "score": 500},
	}
	srv := hnServer(t, []int{1, 2, 3, 4, 5, 6, 7, 8, 9}, items, nil)
	defer srv.Close()

	h := NewHackerNewsAdapter(config.HackerNewsConfig{BaseURL: srv.URL, BatchSize: 3, Category: "tech"}, testLocale, testClient())
	r := h.FetchArticles(context.Background(), FetchOptions{})

	// topstories + 9 item calls, item 9 failing.
	if r.Attempted != 10 || r.Failed != 1 {
		t.Errorf("unexpected counters %+v", r)
	}

	var titles []string
	for _, a := range r.Articles {
		titles = append(titles, a.Title)
	}
	// id5: 10 + 5 + 1 = 16; id2: 10 + 0 = 10; id1: 3 + 5 = 8.
	want := []string{"Ask HN: Moving to the Bay Area", "San Francisco passes new zoning rules", "Waymo expands robotaxi fleet"}
	if strings.Join(titles, "|") != strings.Join(want, "|") {
		t.Fatalf("got %v, want %v", titles, want)
	}

	ask := r.Articles[0]
	if ask.URL != "https://news.ycombinator.com/item?id=5" {
		t.Errorf("expected discussion URL fallback, got %q", ask.URL)
	}
	if ask.Snippet != "Any tips for San Francisco?" {
		t.Errorf("unexpected snippet %q", ask.Snippet)
	}
	for _, a := range r.Articles {
		if a.Category != article.Tech || a.SourceType != article.SourceHackerNews || a.Source != "Hacker News" {
			t.Errorf("unexpected derived fields %+v", a)
		}
	}
}

func TestHackerNewsAdapterMaxStories(t *testing.T) {
	items := map[int]map[string]any{}
	var ids []int
	for i := 1; i <= 30; i++ {
		ids = append(ids, i)
		items[i] = map[string]any{"id": i, "type": "story", "title": fmt.Sprintf("San Francisco story %d", i)}
	}
	var calls int32
	srv := hnServer(t, ids, items, &calls)
	defer srv.Close()

	h := NewHackerNewsAdapter(config.HackerNewsConfig{BaseURL: srv.URL, MaxStories: 12, BatchSize: 5}, testLocale, testClient())
	r := h.FetchArticles(context.Background(), FetchOptions{})
	if n := atomic.LoadInt32(&calls); n != 12 {
		t.Errorf("expected 12 item fetches, got %d", n)
	}
	if len(r.Articles) != 12 {
		t.Fatalf("expected 12 articles, got %d", len(r.Articles))
	}
	// Equal scores keep ranked-list order.
	if r.Articles[0].Title != "San Francisco story 1" || r.Articles[11].Title != "San Francisco story 12" {
		t.Errorf("expected stable order, got first %q last %q", r.Articles[0].Title, r.Articles[11].Title)
	}
}

func TestHackerNewsLocaleWordBoundary(t *testing.T) {
	h := NewHackerNewsAdapter(config.HackerNewsConfig{}, testLocale, testClient())
	if h.localScore("Building community tools") != 0 {
		t.Error("organization names must match whole words")
	}
	if h.localScore("Muni delays in San Francisco") != 13 {
		t.Errorf("expected 13, got %d", h.localScore("Muni delays in San Francisco"))
	}
}

func TestHackerNewsTopStoriesDown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusBadGateway)
	}))
	defer srv.Close()

	h := NewHackerNewsAdapter(config.HackerNewsConfig{BaseURL: srv.URL}, testLocale, testClient())
	r := h.FetchArticles(context.Background(), FetchOptions{})
	if len(r.Articles) != 0 || r.Failed != 1 || r.Attempted != 1 {
		t.Errorf("expected one failed call, got %+v", r)
	}
}

func TestHackerNewsEnrichSnippets(t *testing.T) {
	page := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, `<html><head><title>Fleet</title></head><body><article><h1>Fleet news</h1>
<p>Waymo said on Monday that it would expand its driverless service across San Francisco, adding
hundreds of vehicles and extending hours of operation for riders across the city.</p>
<p>The company has operated in the city for several years and plans further growth in the Bay Area.</p>
</article></body></html>`)
	}))
	defer page.Close()

	items := map[int]map[string]any{
		1: {"id": 1, "type": "story", "title": "Waymo expands in San Francisco", "url": page.URL + "/fleet"},
	}
	srv := hnServer(t, []int{1}, items, nil)
	defer srv.Close()

	h := NewHackerNewsAdapter(config.HackerNewsConfig{BaseURL: srv.URL, EnrichSnippets: true}, testLocale, testClient())
	r := h.FetchArticles(context.Background(), FetchOptions{})
	if len(r.Articles) != 1 {
		t.Fatalf("expected 1 article, got %d", len(r.Articles))
	}
	if !strings.Contains(r.Articles[0].Snippet, "driverless service") {
		t.Errorf("expected readable excerpt, got %q", r.Articles[0].Snippet)
	}
}
