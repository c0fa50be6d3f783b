package snapshot

import (
	"testing"
	"time"

	"github.com/TobiSchelling/CityPulse/internal/aggregate"
	"github.com/TobiSchelling/CityPulse/internal/article"
)

func testResult() *aggregate.Result {
	return &aggregate.Result{
		Categories: map[article.Category][]article.Article{
			article.Tech: {
				{Title: "Robotaxi news", URL: "https://a.com/1", Source: "TechCrunch", Neighborhoods: []string{"SoMa"}},
			},
			article.Local: {
				{Title: "Mission mural", URL: "https://b.com/1", Source: "Mission Local", Neighborhoods: []string{"Mission District"}},
				{Title: "SoMa and Mission", URL: "https://b.com/2", Source: "SF Standard", Neighborhoods: []string{"Mission District", "SoMa"}},
			},
			article.Politics: {},
		},
		Stats: aggregate.RunStats{
			RunID:      "run-1",
			FinishedAt: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		},
	}
}

func TestBuildIndices(t *testing.T) {
	s := Build(testResult())

	if s.RunID != "run-1" || s.Total() != 3 {
		t.Errorf("unexpected snapshot header %s / %d", s.RunID, s.Total())
	}

	soma := s.Neighborhood("soma")
	if len(soma) != 2 {
		t.Fatalf("expected 2 SoMa articles, got %d", len(soma))
	}
	// Local comes before tech in the index.
	if soma[0].Title != "SoMa and Mission" || soma[1].Title != "Robotaxi news" {
		t.Errorf("unexpected index order: %q, %q", soma[0].Title, soma[1].Title)
	}

	if got := s.Source("mission local"); len(got) != 1 {
		t.Errorf("expected one Mission Local article, got %d", len(got))
	}
	if got := s.Neighborhood("Bayview"); got != nil {
		t.Errorf("expected nil for unknown neighborhood, got %v", got)
	}

	names := s.NeighborhoodNames()
	if len(names) != 2 || names[0] != "Mission District" || names[1] != "SoMa" {
		t.Errorf("unexpected neighborhood names %v", names)
	}
}

func TestOrderedCategories(t *testing.T) {
	s := Build(testResult())
	got := s.OrderedCategories()
	want := []article.Category{article.Local, article.Politics, article.Tech}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("position %d: got %q, want %q", i, got[i], want[i])
		}
	}
}

func TestBuildCopiesLists(t *testing.T) {
	r := testResult()
	s := Build(r)
	r.Categories[article.Local][0].Title = "changed"
	if s.Category(article.Local)[0].Title != "Mission mural" {
		t.Error("snapshot should not share backing arrays with the result")
	}
}

func TestFromCategories(t *testing.T) {
	at := time.Date(2024, 5, 2, 8, 0, 0, 0, time.UTC)
	s := FromCategories("run-2", at, testResult().Categories, aggregate.RunStats{})
	if s.RunID != "run-2" || !s.GeneratedAt.Equal(at) {
		t.Errorf("unexpected header %s %v", s.RunID, s.GeneratedAt)
	}
	if len(s.Neighborhood("Mission District")) != 2 {
		t.Error("expected indices rebuilt")
	}
}
